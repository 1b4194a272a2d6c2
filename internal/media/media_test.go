package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tanglechat/rtc-signaling/config"
)

func TestParseDirection(t *testing.T) {
	cases := []struct {
		in   string
		want Direction
		ok   bool
	}{
		{"send", DirectionSend, true},
		{"recv", DirectionRecv, true},
		{"", "", false},
		{"both", "", false},
		{"SEND", "", false},
	}
	for _, tc := range cases {
		got, ok := ParseDirection(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseDirection(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctl, err := New(config.MediaConfig{Backend: "stub"})
	if err != nil {
		t.Fatalf("New(stub): %v", err)
	}
	if mode := ctl.Metrics().Mode; mode != "stub" {
		t.Errorf("mode = %q, want stub", mode)
	}

	if _, err := New(config.MediaConfig{Backend: "mediasoup"}); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("New(unknown) error = %v, want ErrBackendUnavailable", err)
	}

	// Empty backend defaults to stub so dev environments work out of the box
	ctl, err = New(config.MediaConfig{})
	if err != nil {
		t.Fatalf("New(default): %v", err)
	}
	if mode := ctl.Metrics().Mode; mode != "stub" {
		t.Errorf("default mode = %q, want stub", mode)
	}
}

func TestStubCreateRoomIdempotent(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	caps1, err := s.CreateRoom(ctx, "room_1")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if len(caps1.Codecs) == 0 {
		t.Fatal("capability set is empty")
	}

	caps2, err := s.CreateRoom(ctx, "room_1")
	if err != nil {
		t.Fatalf("second CreateRoom: %v", err)
	}
	if len(caps1.Codecs) != len(caps2.Codecs) {
		t.Errorf("capabilities differ across calls: %d vs %d", len(caps1.Codecs), len(caps2.Codecs))
	}

	if rooms := s.Metrics().ActiveRooms; rooms != 1 {
		t.Errorf("active rooms = %d, want 1 (double create must not duplicate)", rooms)
	}
}

func TestStubTransportLifecycle(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	if _, err := s.CreateTransport(ctx, "never_created", "dev_1", DirectionSend); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("CreateTransport without room: got %v, want ErrRoomNotFound", err)
	}

	if _, err := s.CreateRoom(ctx, "room_1"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	sendT, err := s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend)
	if err != nil {
		t.Fatalf("CreateTransport(send): %v", err)
	}
	if sendT.ID == "" {
		t.Error("send transport id is empty")
	}

	recvT, err := s.CreateTransport(ctx, "room_1", "dev_1", DirectionRecv)
	if err != nil {
		t.Fatalf("CreateTransport(recv): %v", err)
	}
	if recvT.ID == sendT.ID {
		t.Error("send and recv transports share an id")
	}

	m := s.Metrics()
	if m.ActiveTransports != 2 {
		t.Errorf("active transports = %d, want 2", m.ActiveTransports)
	}
	if m.Mode != "stub" {
		t.Errorf("mode = %q, want stub", m.Mode)
	}
}

func TestStubRemovePeerIdempotent(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	s.CreateRoom(ctx, "room_1")
	s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend)
	s.CreateTransport(ctx, "room_1", "dev_1", DirectionRecv)

	for i := 0; i < 3; i++ {
		if err := s.RemovePeer(ctx, "room_1", "dev_1"); err != nil {
			t.Fatalf("RemovePeer pass %d: %v", i+1, err)
		}
	}
	if err := s.RemovePeer(ctx, "room_1", "never_added"); err != nil {
		t.Fatalf("RemovePeer for unknown peer: %v", err)
	}
	if err := s.RemovePeer(ctx, "no_such_room", "dev_1"); err != nil {
		t.Fatalf("RemovePeer for unknown room: %v", err)
	}

	if n := s.Metrics().ActiveTransports; n != 0 {
		t.Errorf("transports after removal = %d, want 0 (leak)", n)
	}
}

func TestStubCloseRoomIdempotent(t *testing.T) {
	s := NewStub()
	ctx := context.Background()

	s.CreateRoom(ctx, "room_1")
	s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend)

	for i := 0; i < 2; i++ {
		if err := s.CloseRoom(ctx, "room_1"); err != nil {
			t.Fatalf("CloseRoom pass %d: %v", i+1, err)
		}
	}

	m := s.Metrics()
	if m.ActiveRooms != 0 || m.ActiveTransports != 0 {
		t.Errorf("after close: rooms=%d transports=%d, want 0/0", m.ActiveRooms, m.ActiveTransports)
	}

	// A closed room no longer accepts transports
	if _, err := s.CreateTransport(ctx, "room_1", "dev_1", DirectionSend); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("CreateTransport after close: got %v, want ErrRoomNotFound", err)
	}
}

func TestStubConcurrentPeersSameRoom(t *testing.T) {
	s := NewStub()
	ctx := context.Background()
	s.CreateRoom(ctx, "room_1")

	const peers = 16
	var wg sync.WaitGroup
	errs := make(chan error, peers*2)

	for i := 0; i < peers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			dev := fmt.Sprintf("dev_%d", n)
			if _, err := s.CreateTransport(ctx, "room_1", dev, DirectionSend); err != nil {
				errs <- err
				return
			}
			if _, err := s.CreateTransport(ctx, "room_1", dev, DirectionRecv); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent CreateTransport: %v", err)
	}

	if n := s.Metrics().ActiveTransports; n != peers*2 {
		t.Errorf("active transports = %d, want %d", n, peers*2)
	}

	// Concurrent removal of different peers must also be safe
	var wg2 sync.WaitGroup
	for i := 0; i < peers; i++ {
		wg2.Add(1)
		go func(n int) {
			defer wg2.Done()
			s.RemovePeer(ctx, "room_1", fmt.Sprintf("dev_%d", n))
		}(i)
	}
	wg2.Wait()

	if n := s.Metrics().ActiveTransports; n != 0 {
		t.Errorf("transports after concurrent removal = %d, want 0", n)
	}
}
