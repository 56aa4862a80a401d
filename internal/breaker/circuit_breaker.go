// Package breaker implements a generic circuit breaker wrapping calls
// to external stores: it fails fast when a dependency is unhealthy and
// serves last-known-good results from a small TTL cache. Generalized
// from the teacher's Gin-HTTP-middleware-shaped breaker into a plain
// function-wrapping API usable by the hybrid data layer.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is one of the three circuit breaker states.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when a call is rejected because the breaker is
// open and no fallback/cache was available.
var ErrOpen = errors.New("breaker: circuit open")

// Config holds a breaker's tunable parameters, per spec §4.1.
type Config struct {
	FailureThreshold int           // N
	SuccessThreshold int           // M
	OpenTimeout      time.Duration // T
	SlidingWindow    time.Duration // W
	CacheTTL         time.Duration
	CacheSize        int

	MaxRetryAttempts int           // attempts per Call before recording an overall failure
	BaseBackoffDelay time.Duration // delay before the 2nd attempt
	MaxBackoffDelay  time.Duration // cap on the exponential backoff
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      60 * time.Second,
		SlidingWindow:    300 * time.Second,
		CacheTTL:         300 * time.Second,
		CacheSize:        1000,
		MaxRetryAttempts: 3,
		BaseBackoffDelay: time.Second,
		MaxBackoffDelay:  30 * time.Second,
	}
}

// Metrics is a point-in-time snapshot of a breaker's counters.
type Metrics struct {
	TotalCalls   int64
	Failures     int64
	Opens        int64
	Closes       int64
	FallbackUses int64
	CacheHits    int64
}

type windowEntry struct {
	at      time.Time
	success bool
}

// Breaker wraps a single downstream dependency identified by Name.
type Breaker struct {
	Name   string
	config Config

	mu            sync.Mutex
	state         State
	window        []windowEntry
	consecutiveOK int
	lastFailureAt time.Time
	metrics       Metrics

	cache *ttlCache
}

// New creates a breaker. redisClient may be nil, in which case the
// fallback cache is kept in-process instead of shared across
// instances.
func New(name string, config Config, redisClient *redis.Client) *Breaker {
	return &Breaker{
		Name:   name,
		config: config,
		state:  StateClosed,
		cache:  newTTLCache(config.CacheSize, config.CacheTTL, redisClient, name),
	}
}

// Call attempts fn. On success it records the result and, if cacheKey
// is non-empty, caches it. On failure it records the failure and,
// while the circuit is open, serves the fallback path instead of
// invoking fn: a cache hit if cacheKey is provided, else fallbackFn if
// provided, else ErrOpen.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (interface{}, error), fallbackFn func(ctx context.Context) (interface{}, error), cacheKey string) (result interface{}, fromCache bool, err error) {
	b.mu.Lock()
	b.metrics.TotalCalls++
	state := b.currentStateLocked()
	b.mu.Unlock()

	if state == StateOpen {
		return b.serveFallback(ctx, fallbackFn, cacheKey)
	}

	result, err = b.executeWithRetry(ctx, fn)
	if err != nil {
		b.recordFailure()
		if cacheKey != "" {
			if cached, ok := b.cache.get(cacheKey); ok {
				b.mu.Lock()
				b.metrics.CacheHits++
				b.mu.Unlock()
				return cached, true, nil
			}
		}
		if fallbackFn != nil {
			b.mu.Lock()
			b.metrics.FallbackUses++
			b.mu.Unlock()
			res, fbErr := fallbackFn(ctx)
			return res, false, fbErr
		}
		return nil, false, fmt.Errorf("breaker %s: %w", b.Name, err)
	}

	b.recordSuccess()
	if cacheKey != "" {
		b.cache.set(cacheKey, result)
	}
	return result, false, nil
}

// executeWithRetry attempts fn up to MaxRetryAttempts times, sleeping
// between attempts for an exponentially growing delay capped at
// MaxBackoffDelay. It reports the last attempt's error, or ctx.Err() if
// the context is cancelled during a backoff wait; retries happen before
// the overall call is recorded as a failure.
func (b *Breaker) executeWithRetry(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	attempts := b.config.MaxRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result interface{}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == attempts-1 {
			break
		}

		delay := b.config.BaseBackoffDelay * time.Duration(1<<uint(attempt))
		if b.config.MaxBackoffDelay > 0 && delay > b.config.MaxBackoffDelay {
			delay = b.config.MaxBackoffDelay
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return result, err
}

func (b *Breaker) serveFallback(ctx context.Context, fallbackFn func(ctx context.Context) (interface{}, error), cacheKey string) (interface{}, bool, error) {
	if cacheKey != "" {
		if cached, ok := b.cache.get(cacheKey); ok {
			b.mu.Lock()
			b.metrics.CacheHits++
			b.mu.Unlock()
			return cached, true, nil
		}
	}
	if fallbackFn != nil {
		b.mu.Lock()
		b.metrics.FallbackUses++
		b.mu.Unlock()
		res, err := fallbackFn(ctx)
		return res, false, err
	}
	return nil, false, ErrOpen
}

// currentStateLocked evaluates the Open -> HalfOpen transition and
// must be called with b.mu held.
func (b *Breaker) currentStateLocked() State {
	if b.state == StateOpen && time.Since(b.lastFailureAt) >= b.config.OpenTimeout {
		b.state = StateHalfOpen
		b.consecutiveOK = 0
	}
	return b.state
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.metrics.Failures++
	b.lastFailureAt = now
	b.consecutiveOK = 0

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.metrics.Opens++
		return
	}

	b.window = append(b.window, windowEntry{at: now, success: false})
	b.pruneWindowLocked(now)

	if b.failureCountLocked() >= b.config.FailureThreshold {
		if b.state != StateOpen {
			b.metrics.Opens++
		}
		b.state = StateOpen
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.window = append(b.window, windowEntry{at: now, success: true})
	b.pruneWindowLocked(now)

	if b.state == StateHalfOpen {
		b.consecutiveOK++
		if b.consecutiveOK >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.metrics.Closes++
			b.window = nil
		}
	}
}

func (b *Breaker) pruneWindowLocked(now time.Time) {
	cutoff := now.Add(-b.config.SlidingWindow)
	i := 0
	for ; i < len(b.window); i++ {
		if b.window[i].at.After(cutoff) {
			break
		}
	}
	b.window = b.window[i:]
}

func (b *Breaker) failureCountLocked() int {
	n := 0
	for _, e := range b.window {
		if !e.success {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of the breaker's current metrics.
func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// CurrentState returns the breaker's state, evaluating any pending
// Open -> HalfOpen transition.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}
