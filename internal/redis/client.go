package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tanglechat/rtc-signaling/config"
)

// Room metadata, presence sets and call histories all share the same
// retention window. Stale entries age out even if teardown never ran.
const keyTTL = 24 * time.Hour

var client *redis.Client
var ctx = context.Background()

// Connect initializes the Redis client
func Connect(cfg config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	return client
}

// GetContext returns the context for Redis operations
func GetContext() context.Context {
	return ctx
}

// AddRoomPeer records a device in the room's presence set. Presence is
// advisory; the in-process registry remains the source of truth for
// live signaling state.
func AddRoomPeer(roomID, deviceID string) {
	if client == nil {
		return
	}
	key := "room:" + roomID + ":peers"
	client.SAdd(ctx, key, deviceID)
	client.Expire(ctx, key, keyTTL)
}

// RemoveRoomPeer drops a device from the room's presence set.
func RemoveRoomPeer(roomID, deviceID string) {
	if client == nil {
		return
	}
	client.SRem(ctx, "room:"+roomID+":peers", deviceID)
}

// RoomPeerCount returns the size of the room's presence set.
func RoomPeerCount(roomID string) int {
	if client == nil {
		return 0
	}
	n, _ := client.SCard(ctx, "room:"+roomID+":peers").Result()
	return int(n)
}

// AppendCallEvent pushes a serialized call lifecycle event onto the
// call's history list. Best-effort: history must never block signaling.
func AppendCallEvent(callID string, event []byte) error {
	if client == nil {
		return nil
	}
	key := "call:" + callID + ":events"
	if err := client.LPush(ctx, key, event).Err(); err != nil {
		return err
	}
	client.Expire(ctx, key, keyTTL)
	return nil
}
