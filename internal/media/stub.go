package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tanglechat/rtc-signaling/internal/models"
)

// stubCaps is a fixed synthetic capability set sufficient for protocol
// testing without real media infrastructure.
var stubCaps = models.RouterRTPCaps{
	Codecs: []models.RouterCodec{
		{MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{MimeType: "video/VP8", ClockRate: 90000},
	},
}

type stubRoom struct {
	mu sync.Mutex
	// deviceID -> direction -> transportID
	transports map[string]map[Direction]string
}

// Stub is the no-media backend. It tracks rooms and transport handles so
// lifecycle and accounting behave exactly like the real backend.
type Stub struct {
	mu    sync.RWMutex
	rooms map[string]*stubRoom
}

func NewStub() *Stub {
	return &Stub{rooms: make(map[string]*stubRoom)}
}

func (s *Stub) CreateRoom(_ context.Context, roomID string) (models.RouterRTPCaps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = &stubRoom{transports: make(map[string]map[Direction]string)}
	}
	return stubCaps, nil
}

func (s *Stub) CreateTransport(_ context.Context, roomID, deviceID string, dir Direction) (Transport, error) {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	byDir, ok := room.transports[deviceID]
	if !ok {
		byDir = make(map[Direction]string)
		room.transports[deviceID] = byDir
	}
	// Re-requesting the same direction replaces the previous handle.
	id := uuid.New().String()
	byDir[dir] = id

	return Transport{ID: id, RoomID: roomID, DeviceID: deviceID, Direction: dir}, nil
}

func (s *Stub) RemovePeer(_ context.Context, roomID, deviceID string) error {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil // already gone
	}

	room.mu.Lock()
	delete(room.transports, deviceID)
	room.mu.Unlock()
	return nil
}

func (s *Stub) CloseRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
	return nil
}

func (s *Stub) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transports := 0
	for _, room := range s.rooms {
		room.mu.Lock()
		for _, byDir := range room.transports {
			transports += len(byDir)
		}
		room.mu.Unlock()
	}
	return Metrics{Mode: "stub", ActiveRooms: len(s.rooms), ActiveTransports: transports}
}
