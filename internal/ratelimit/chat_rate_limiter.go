// Package ratelimit implements the chat rate limit named in the Room
// Coordinator's chat operation, generalized from the Redis
// Incr+Expire pipeline idiom used elsewhere in this codebase's
// ancestry for per-endpoint limits to a simple per-player-per-room
// fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a caller exceeds the configured
// chat rate limit.
var ErrRateLimited = fmt.Errorf("ratelimit: rate limit exceeded")

// ChatLimiter enforces a fixed-window limit on chat messages per
// player per room.
type ChatLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewChatLimiter creates a chat rate limiter. A nil redis client
// disables limiting (fail open), consistent with this codebase's
// degrade-gracefully posture for optional infrastructure.
func NewChatLimiter(client *redis.Client, limit int, window time.Duration) *ChatLimiter {
	return &ChatLimiter{redis: client, limit: limit, window: window}
}

// Allow increments the player's message count for the current window
// and reports whether the message is allowed.
func (c *ChatLimiter) Allow(ctx context.Context, roomCode, playerID string) (bool, error) {
	if c.redis == nil {
		return true, nil
	}

	windowID := time.Now().Unix() / int64(c.window.Seconds())
	key := fmt.Sprintf("chat_rl:%s:%s:%d", roomCode, playerID, windowID)

	pipe := c.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("ratelimit: pipeline exec: %w", err)
	}

	return incr.Val() <= int64(c.limit), nil
}
