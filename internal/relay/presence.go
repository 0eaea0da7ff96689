package relay

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quackvoice/quack/internal/util"
)

const (
	presenceTTL     = 24 * time.Hour
	presenceTimeout = 2 * time.Second
)

// Presence mirrors room membership to an external store for observability.
// It is strictly best-effort: failures are logged and never affect routing,
// and the mirror is never read back for room state.
type Presence interface {
	Joined(ctx context.Context, roomID, userID string)
	Left(ctx context.Context, roomID, userID string)
}

// NopPresence is the disabled mirror.
type NopPresence struct{}

func (NopPresence) Joined(context.Context, string, string) {}
func (NopPresence) Left(context.Context, string, string)   {}

// RedisPresence mirrors membership into per-room Redis sets with a TTL.
type RedisPresence struct {
	client *redis.Client
}

// NewRedisPresence wraps an already-connected Redis client.
func NewRedisPresence(client *redis.Client) *RedisPresence {
	return &RedisPresence{client: client}
}

func presenceKey(roomID string) string {
	return "room:" + roomID + ":peers"
}

func (p *RedisPresence) Joined(ctx context.Context, roomID, userID string) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	key := presenceKey(roomID)
	if err := p.client.SAdd(ctx, key, userID).Err(); err != nil {
		util.LogWarning("presence: SAdd %s failed: %v", key, err)
		return
	}
	if err := p.client.Expire(ctx, key, presenceTTL).Err(); err != nil {
		util.LogWarning("presence: Expire %s failed: %v", key, err)
	}
}

func (p *RedisPresence) Left(ctx context.Context, roomID, userID string) {
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	key := presenceKey(roomID)
	if err := p.client.SRem(ctx, key, userID).Err(); err != nil {
		util.LogWarning("presence: SRem %s failed: %v", key, err)
	}
}
