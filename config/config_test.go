package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Media.Backend != "stub" {
		t.Errorf("Media.Backend = %q, want stub", cfg.Media.Backend)
	}
	if cfg.Turn.CredentialTTL != 10*time.Minute {
		t.Errorf("Turn.CredentialTTL = %v, want 10m", cfg.Turn.CredentialTTL)
	}
	if len(cfg.Turn.URIs) == 0 {
		t.Error("Turn.URIs is empty")
	}
	if cfg.Signaling.RoomGracePeriod != 30*time.Second {
		t.Errorf("RoomGracePeriod = %v, want 30s", cfg.Signaling.RoomGracePeriod)
	}
}

func TestLoadOverridesAndClamping(t *testing.T) {
	t.Setenv("MEDIA_BACKEND", "sfu")
	t.Setenv("TURN_URIS", " stun:a:3478 , turn:b:3478 ,")
	t.Setenv("SIGNALING_PING_INTERVAL", "2m")
	t.Setenv("SIGNALING_PONG_WAIT", "1m")
	t.Setenv("MEDIA_UDP_PORT_MIN", "not-a-number")

	cfg := Load()

	if cfg.Media.Backend != "sfu" {
		t.Errorf("Media.Backend = %q, want sfu", cfg.Media.Backend)
	}
	if len(cfg.Turn.URIs) != 2 || cfg.Turn.URIs[0] != "stun:a:3478" || cfg.Turn.URIs[1] != "turn:b:3478" {
		t.Errorf("Turn.URIs = %v, want trimmed two entries", cfg.Turn.URIs)
	}
	// Ping interval must stay below the pong wait or liveness never fires
	if cfg.Signaling.PingInterval >= cfg.Signaling.PongWait {
		t.Errorf("PingInterval %v not clamped below PongWait %v", cfg.Signaling.PingInterval, cfg.Signaling.PongWait)
	}
	// Invalid ints fall back to defaults
	if cfg.Media.UDPPortMin != 50000 {
		t.Errorf("UDPPortMin = %d, want default 50000", cfg.Media.UDPPortMin)
	}
}
