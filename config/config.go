package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	JWTSecret      string
	Redis          RedisConfig
	Media          MediaConfig
	Turn           TurnConfig
	Signaling      SignalingConfig
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// MediaConfig selects and tunes the media-plane backend. The backend is
// chosen once at startup and never switched per-room.
type MediaConfig struct {
	Backend    string // "stub" or "sfu"
	UDPPortMin int
	UDPPortMax int
}

type TurnConfig struct {
	// STUN/TURN URIs advertised to clients, comma-separated
	// (e.g. "stun:stun.tanglechat.io:3478,turn:turn.tanglechat.io:3478").
	URIs []string
	// Shared secret for coturn REST-style ephemeral credentials.
	// Empty means credential issuance is unavailable.
	SharedSecret  string
	CredentialTTL time.Duration
}

type SignalingConfig struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteTimeout    time.Duration
	RoomGracePeriod time.Duration
	MaxViolations   int
}

func Load() *Config {
	// Parse allowed origins (comma-separated)
	originsStr := getEnv("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	origins := strings.Split(originsStr, ",")

	pongWait := getDuration("SIGNALING_PONG_WAIT", 60*time.Second)
	pingInterval := getDuration("SIGNALING_PING_INTERVAL", 54*time.Second)
	if pingInterval >= pongWait {
		pingInterval = pongWait * 9 / 10
	}

	return &Config{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Media: MediaConfig{
			Backend:    getEnv("MEDIA_BACKEND", "stub"),
			UDPPortMin: getInt("MEDIA_UDP_PORT_MIN", 50000),
			UDPPortMax: getInt("MEDIA_UDP_PORT_MAX", 50199),
		},
		Turn: TurnConfig{
			URIs:          splitNonEmpty(getEnv("TURN_URIS", "stun:stun.l.google.com:19302")),
			SharedSecret:  getEnv("TURN_SHARED_SECRET", ""),
			CredentialTTL: getDuration("TURN_CREDENTIAL_TTL", 10*time.Minute),
		},
		Signaling: SignalingConfig{
			PingInterval:    pingInterval,
			PongWait:        pongWait,
			WriteTimeout:    getDuration("SIGNALING_WRITE_TIMEOUT", 10*time.Second),
			RoomGracePeriod: getDuration("ROOM_GRACE_PERIOD", 30*time.Second),
			MaxViolations:   getInt("SIGNALING_MAX_VIOLATIONS", 8),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
