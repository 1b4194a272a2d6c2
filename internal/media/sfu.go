package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/tanglechat/rtc-signaling/config"
	"github.com/tanglechat/rtc-signaling/internal/models"
)

// sfuCaps is the capability set of the pion router. It matches the codecs
// RegisterDefaultCodecs installs on the media engine; clients negotiate
// their transports against this list.
var sfuCaps = models.RouterRTPCaps{
	Codecs: []models.RouterCodec{
		{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		{MimeType: webrtc.MimeTypeVP9, ClockRate: 90000},
		{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
	},
}

type sfuTransport struct {
	id string
	pc *webrtc.PeerConnection
}

type sfuRoom struct {
	mu sync.Mutex
	// deviceID -> direction -> transport
	peers map[string]map[Direction]*sfuTransport
}

// SFU is the pion-backed media plane. Each transport is a server-side
// peer connection; a "send" transport receives the peer's media and a
// "recv" transport forwards media from the router to the peer.
type SFU struct {
	api *webrtc.API

	mu    sync.RWMutex
	rooms map[string]*sfuRoom
}

func NewSFU(cfg config.MediaConfig) (*SFU, error) {
	engine := &webrtc.MediaEngine{}
	if err := engine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	settings := webrtc.SettingEngine{}
	if cfg.UDPPortMin > 0 && cfg.UDPPortMax >= cfg.UDPPortMin && cfg.UDPPortMax <= 65535 {
		if err := settings.SetEphemeralUDPPortRange(uint16(cfg.UDPPortMin), uint16(cfg.UDPPortMax)); err != nil {
			return nil, fmt.Errorf("%w: udp port range %d-%d: %v", ErrBackendUnavailable, cfg.UDPPortMin, cfg.UDPPortMax, err)
		}
	}

	return &SFU{
		api:   webrtc.NewAPI(webrtc.WithMediaEngine(engine), webrtc.WithSettingEngine(settings)),
		rooms: make(map[string]*sfuRoom),
	}, nil
}

func (s *SFU) CreateRoom(_ context.Context, roomID string) (models.RouterRTPCaps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		s.rooms[roomID] = &sfuRoom{peers: make(map[string]map[Direction]*sfuTransport)}
	}
	return sfuCaps, nil
}

func (s *SFU) CreateTransport(ctx context.Context, roomID, deviceID string, dir Direction) (Transport, error) {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return Transport{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}

	pc, err := s.newPeerConnection(dir)
	if err != nil {
		return Transport{}, err
	}

	if err := ctx.Err(); err != nil {
		// Caller vanished while the transport was being set up.
		_ = pc.Close()
		return Transport{}, err
	}

	t := &sfuTransport{id: uuid.New().String(), pc: pc}

	room.mu.Lock()
	byDir, ok := room.peers[deviceID]
	if !ok {
		byDir = make(map[Direction]*sfuTransport)
		room.peers[deviceID] = byDir
	}
	if prev, ok := byDir[dir]; ok {
		_ = prev.pc.Close()
	}
	byDir[dir] = t
	room.mu.Unlock()

	return Transport{ID: t.id, RoomID: roomID, DeviceID: deviceID, Direction: dir}, nil
}

// newPeerConnection builds the server-side end of a directional transport.
// Directions are expressed from the peer's point of view, so a peer "send"
// transport is recvonly on the router and a peer "recv" transport is
// sendonly.
func (s *SFU) newPeerConnection(dir Direction) (*webrtc.PeerConnection, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
	}

	routerDir := webrtc.RTPTransceiverDirectionSendonly
	if dir == DirectionSend {
		routerDir = webrtc.RTPTransceiverDirectionRecvonly
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: routerDir}); err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("%w: %v", ErrTransportFailed, err)
		}
	}
	return pc, nil
}

func (s *SFU) RemovePeer(_ context.Context, roomID, deviceID string) error {
	s.mu.RLock()
	room, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if !ok {
		return nil // already gone
	}

	room.mu.Lock()
	byDir := room.peers[deviceID]
	delete(room.peers, deviceID)
	room.mu.Unlock()

	for _, t := range byDir {
		_ = t.pc.Close()
	}
	return nil
}

func (s *SFU) CloseRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	for _, byDir := range room.peers {
		for _, t := range byDir {
			_ = t.pc.Close()
		}
	}
	room.peers = make(map[string]map[Direction]*sfuTransport)
	return nil
}

func (s *SFU) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	transports := 0
	for _, room := range s.rooms {
		room.mu.Lock()
		for _, byDir := range room.peers {
			transports += len(byDir)
		}
		room.mu.Unlock()
	}
	return Metrics{Mode: "sfu", ActiveRooms: len(s.rooms), ActiveTransports: transports}
}
