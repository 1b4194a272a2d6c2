package media

import (
	"context"
	"errors"
	"testing"

	"github.com/tanglechat/rtc-signaling/config"
)

func newTestSFU(t *testing.T) *SFU {
	t.Helper()
	s, err := NewSFU(config.MediaConfig{Backend: "sfu", UDPPortMin: 50000, UDPPortMax: 50099})
	if err != nil {
		t.Fatalf("NewSFU: %v", err)
	}
	return s
}

func TestSFUCreateRoomIdempotent(t *testing.T) {
	s := newTestSFU(t)
	ctx := context.Background()

	caps1, err := s.CreateRoom(ctx, "room_1")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(caps1.Codecs) == 0 {
		t.Fatal("router capability set is empty")
	}

	caps2, err := s.CreateRoom(ctx, "room_1")
	if err != nil {
		t.Fatalf("second CreateRoom: %v", err)
	}
	if len(caps1.Codecs) != len(caps2.Codecs) {
		t.Errorf("capabilities differ: %d vs %d", len(caps1.Codecs), len(caps2.Codecs))
	}
	if rooms := s.Metrics().ActiveRooms; rooms != 1 {
		t.Errorf("active rooms = %d, want 1", rooms)
	}
}

func TestSFUTransportLifecycle(t *testing.T) {
	s := newTestSFU(t)
	ctx := context.Background()

	if _, err := s.CreateTransport(ctx, "nope", "dev_1", DirectionSend); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("CreateTransport without room: got %v, want ErrRoomNotFound", err)
	}

	if _, err := s.CreateRoom(ctx, "room_1"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	tr, err := s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport: %v", err)
	}
	if tr.ID == "" {
		t.Error("transport id is empty")
	}

	m := s.Metrics()
	if m.Mode != "sfu" {
		t.Errorf("mode = %q, want sfu", m.Mode)
	}
	if m.ActiveTransports != 1 {
		t.Errorf("active transports = %d, want 1", m.ActiveTransports)
	}

	// Teardown is idempotent and releases everything
	for i := 0; i < 2; i++ {
		if err := s.RemovePeer(ctx, "room_1", "dev_1"); err != nil {
			t.Fatalf("RemovePeer pass %d: %v", i+1, err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := s.CloseRoom(ctx, "room_1"); err != nil {
			t.Fatalf("CloseRoom pass %d: %v", i+1, err)
		}
	}
	m = s.Metrics()
	if m.ActiveRooms != 0 || m.ActiveTransports != 0 {
		t.Errorf("after teardown: rooms=%d transports=%d, want 0/0", m.ActiveRooms, m.ActiveTransports)
	}
}

func TestSFUCancelledContextAbortsTransport(t *testing.T) {
	s := newTestSFU(t)

	if _, err := s.CreateRoom(context.Background(), "room_1"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend); err == nil {
		t.Fatal("CreateTransport with cancelled context succeeded")
	}
	if n := s.Metrics().ActiveTransports; n != 0 {
		t.Errorf("aborted transport leaked: %d active", n)
	}
}
