// Package hotstore wraps Redis as the fast key/value store behind the
// Hybrid Data Layer: game state, private hands, move logs, and
// sessions all live here. It degrades gracefully to a disabled client
// when Redis is unreachable, the way the teacher's cache package does.
package hotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client used as the hot store.
type Store struct {
	client *redis.Client
	ctx    context.Context
}

// Config holds Redis connection configuration.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// New creates a new hot store, connecting to Redis if enabled.
func New(cfg Config) *Store {
	if !cfg.Enabled {
		log.Println("hotstore: redis disabled by configuration")
		return &Store{client: nil, ctx: context.Background()}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("hotstore: redis connection failed: %v, continuing without cache", err)
		return &Store{client: nil, ctx: ctx}
	}

	log.Println("hotstore: redis connected")
	return &Store{client: rdb, ctx: ctx}
}

// IsEnabled returns true if Redis is connected.
func (s *Store) IsEnabled() bool {
	return s.client != nil
}

// GetJSON retrieves and unmarshals a JSON value.
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	if !s.IsEnabled() {
		return fmt.Errorf("hotstore: not enabled")
	}
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), dest)
}

// SetJSON marshals and stores a JSON value with a TTL. A zero TTL
// stores the value without expiry.
func (s *Store) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !s.IsEnabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("hotstore: marshal failed: %w", err)
	}
	return s.client.Set(ctx, key, raw, ttl).Err()
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.client.Del(ctx, key).Err()
}

// Exists reports whether a key exists.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if !s.IsEnabled() {
		return false
	}
	n, err := s.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}

// Expire refreshes a key's TTL without changing its value, used when a
// session's heartbeat bumps its hot-store TTL.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if !s.IsEnabled() {
		return nil
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// RPush appends to a Redis list, used for the append-only move log.
func (s *Store) RPush(ctx context.Context, key string, value interface{}) error {
	if !s.IsEnabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("hotstore: marshal failed: %w", err)
	}
	return s.client.RPush(ctx, key, raw).Err()
}

// LRange returns a range of a Redis list.
func (s *Store) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("hotstore: not enabled")
	}
	return s.client.LRange(ctx, key, start, stop).Result()
}

// Close closes the underlying Redis connection.
func (s *Store) Close() error {
	if !s.IsEnabled() {
		return nil
	}
	return s.client.Close()
}

// Key layout, per the persisted-state key conventions.

func GameStateKey(roomCode string) string {
	return fmt.Sprintf("game:%s:state", roomCode)
}

func PrivateHandKey(roomCode string, seat int) string {
	return fmt.Sprintf("game:%s:hand:%d", roomCode, seat)
}

func MovesKey(roomCode string) string {
	return fmt.Sprintf("game:%s:moves", roomCode)
}

func SessionKey(playerID string) string {
	return fmt.Sprintf("session:%s", playerID)
}

func RoomPlayersKey(roomCode string) string {
	return fmt.Sprintf("room:%s:players", roomCode)
}

func PlayerProfileCacheKey(playerID string) string {
	return fmt.Sprintf("player:%s:profile", playerID)
}

func PlayerStatsCacheKey(playerID string) string {
	return fmt.Sprintf("player:%s:stats", playerID)
}

// TTL constants per the routing table in spec §4.2.
const (
	TTLGameState     = 2 * time.Hour
	TTLPrivateHand   = 2 * time.Hour
	TTLMoveLog       = 1 * time.Hour
	TTLSession       = 30 * time.Minute
	TTLPlayerProfile = 15 * time.Minute
	TTLPlayerStats   = 30 * time.Minute
)
