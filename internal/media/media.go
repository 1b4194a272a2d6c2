// Package media defines the media-plane controller boundary consumed by the
// signaling layer. Two backends implement it: a stub for environments
// without media infrastructure, and a pion-based SFU. The backend is picked
// once at process start and never switched per-room.
package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanglechat/rtc-signaling/config"
	"github.com/tanglechat/rtc-signaling/internal/models"
)

var (
	// ErrRoomNotFound is returned by CreateTransport for a room that was
	// never created or has already been closed.
	ErrRoomNotFound = errors.New("media: room not found")
	// ErrTransportFailed wraps backend failures during transport setup.
	ErrTransportFailed = errors.New("media: transport creation failed")
	// ErrBackendUnavailable means the media backend is misconfigured or
	// down. Fatal to new rooms/transports, but existing calls keep running.
	ErrBackendUnavailable = errors.New("media: backend unavailable")
)

// Direction tags a transport as client-to-server or server-to-client.
type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

// ParseDirection validates a wire-level direction string.
func ParseDirection(s string) (Direction, bool) {
	switch Direction(s) {
	case DirectionSend, DirectionRecv:
		return Direction(s), true
	}
	return "", false
}

// Transport is an opaque handle to one directional media connection.
type Transport struct {
	ID        string
	RoomID    string
	DeviceID  string
	Direction Direction
}

// Metrics reports the mode actually in effect plus resource counters, so a
// misconfigured deployment is externally detectable.
type Metrics struct {
	Mode             string `json:"mode"`
	ActiveRooms      int    `json:"activeRooms"`
	ActiveTransports int    `json:"activeTransports"`
}

// Controller is the media-plane contract. All methods are safe to call from
// multiple concurrent signaling sessions. CreateRoom, RemovePeer and
// CloseRoom are idempotent; disconnect paths may observe the same teardown
// twice (socket error plus heartbeat timeout).
type Controller interface {
	CreateRoom(ctx context.Context, roomID string) (models.RouterRTPCaps, error)
	CreateTransport(ctx context.Context, roomID, deviceID string, dir Direction) (Transport, error)
	RemovePeer(ctx context.Context, roomID, deviceID string) error
	CloseRoom(ctx context.Context, roomID string) error
	Metrics() Metrics
}

// New selects the backend from configuration.
func New(cfg config.MediaConfig) (Controller, error) {
	switch cfg.Backend {
	case "stub", "":
		return NewStub(), nil
	case "sfu":
		return NewSFU(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown media backend %q", ErrBackendUnavailable, cfg.Backend)
	}
}
