package datalayer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"hokm/internal/breaker"
	"hokm/internal/coldstore"
	"hokm/internal/hotstore"
	"hokm/internal/identity"
)

// Config tunes the sync queue's worker pools and retry policy, per
// spec §4.2's priority sync queue.
type Config struct {
	HighPriorityWorkers   int
	MediumPriorityWorkers int
	LowPriorityWorkers    int
	MaxRetries            int
	QueueCapacity         int
	PeriodicFlushInterval time.Duration
}

// DefaultConfig returns reasonable worker pool sizing.
func DefaultConfig() Config {
	return Config{
		HighPriorityWorkers:   4,
		MediumPriorityWorkers: 2,
		LowPriorityWorkers:    1,
		MaxRetries:            5,
		QueueCapacity:         1000,
		PeriodicFlushInterval: 5 * time.Second,
	}
}

type dirtyEntry struct {
	entity   Entity
	key      string
	interval time.Duration
	dueAt    time.Time
}

// DataLayer is the Hybrid Data Layer: it routes entity reads/writes
// across the hot (Redis) and cold (relational) stores according to
// the routing table, wraps both stores in circuit breakers, and
// reconciles them asynchronously through a priority sync queue.
type DataLayer struct {
	routes map[Entity]RoutingRule

	hot   *hotstore.Store
	blobs *coldstore.BlobRepository

	players *coldstore.PlayerRepository
	stats   *coldstore.PlayerStatsRepository
	games   *coldstore.GameRecordRepository

	hotBreaker  *breaker.Breaker
	coldBreaker *breaker.Breaker

	queue *syncQueue

	dirtyMu sync.Mutex
	dirty   map[string]*dirtyEntry

	stopCh chan struct{}
}

// New wires a DataLayer over an already-connected hot store and cold
// database.
func New(hot *hotstore.Store, cold *coldstore.Database, breakerCfg breaker.Config, cfg Config) *DataLayer {
	d := &DataLayer{
		routes:      defaultRoutingTable(),
		hot:         hot,
		blobs:       coldstore.NewBlobRepository(cold.DB),
		players:     coldstore.NewPlayerRepository(cold.DB),
		stats:       coldstore.NewPlayerStatsRepository(cold.DB),
		games:       coldstore.NewGameRecordRepository(cold.DB),
		hotBreaker:  breaker.New("hotstore", breakerCfg, nil),
		coldBreaker: breaker.New("coldstore", breakerCfg, nil),
		dirty:       make(map[string]*dirtyEntry),
		stopCh:      make(chan struct{}),
	}
	d.queue = newSyncQueue(cfg.QueueCapacity, cfg.HighPriorityWorkers, cfg.MediumPriorityWorkers, cfg.LowPriorityWorkers, cfg.MaxRetries, d.syncToSecondary)

	interval := cfg.PeriodicFlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go d.periodicFlushLoop(interval)
	return d
}

// Close stops the sync queue and periodic flusher.
func (d *DataLayer) Close() {
	close(d.stopCh)
	d.queue.Close()
}

// Put writes value for key under entity to its primary store, per the
// routing table, then schedules propagation to the secondary store.
// event names the operation that triggered the write (e.g.
// "hand_complete", "game_over"); pass "" when no event applies. It is
// used to decide whether an on-event sync policy fires immediately.
func (d *DataLayer) Put(ctx context.Context, entity Entity, key string, value interface{}, event string) error {
	rule, ok := d.routes[entity]
	if !ok {
		return fmt.Errorf("datalayer: no routing rule for entity %q", entity)
	}
	if err := d.writeStore(ctx, rule.Primary, entity, key, value, rule.HotTTL); err != nil {
		return err
	}
	d.scheduleSync(entity, key, rule, event)
	return nil
}

// Get reads value for key under entity into dest. For cold-primary
// entities with a hot secondary, the hot store is consulted first as
// a read cache and populated on a cold hit.
func (d *DataLayer) Get(ctx context.Context, entity Entity, key string, dest interface{}) error {
	rule, ok := d.routes[entity]
	if !ok {
		return fmt.Errorf("datalayer: no routing rule for entity %q", entity)
	}

	if rule.Primary == StoreCold && rule.Secondary == StoreHot {
		if err := d.readStore(ctx, StoreHot, entity, key, dest); err == nil {
			return nil
		}
		if err := d.readStore(ctx, StoreCold, entity, key, dest); err != nil {
			return err
		}
		if err := d.writeStore(ctx, StoreHot, entity, key, dest, rule.HotTTL); err != nil {
			log.Printf("datalayer: cache populate failed for %s/%s: %v", entity, key, err)
		}
		return nil
	}

	return d.readStore(ctx, rule.Primary, entity, key, dest)
}

// Delete removes key under entity from both its primary and secondary
// store, best-effort, returning the first error encountered.
func (d *DataLayer) Delete(ctx context.Context, entity Entity, key string) error {
	rule, ok := d.routes[entity]
	if !ok {
		return fmt.Errorf("datalayer: no routing rule for entity %q", entity)
	}
	var firstErr error
	for _, kind := range []StoreKind{rule.Primary, rule.Secondary} {
		if err := d.deleteStore(ctx, kind, entity, key); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WriteThrough writes the cold store first, then the hot store,
// failing the call if either write fails. Used for data that must be
// durable before it is considered committed (completed game records).
func (d *DataLayer) WriteThrough(ctx context.Context, entity Entity, key string, value interface{}, ttl time.Duration) error {
	if err := d.writeStore(ctx, StoreCold, entity, key, value, ttl); err != nil {
		return fmt.Errorf("datalayer: write-through cold leg: %w", err)
	}
	if err := d.writeStore(ctx, StoreHot, entity, key, value, ttl); err != nil {
		return fmt.Errorf("datalayer: write-through hot leg: %w", err)
	}
	return nil
}

// WriteBehind writes the hot store synchronously and enqueues a
// high-priority task to propagate the write to the cold store,
// returning before the cold write completes.
func (d *DataLayer) WriteBehind(ctx context.Context, entity Entity, key string, value interface{}, ttl time.Duration) error {
	if err := d.writeStore(ctx, StoreHot, entity, key, value, ttl); err != nil {
		return err
	}
	if err := d.queue.Enqueue(entity, key, PriorityHigh); err != nil {
		log.Printf("datalayer: write-behind enqueue failed for %s/%s: %v", entity, key, err)
	}
	return nil
}

// Eventual writes only the entity's primary store, relying on the
// routing table's periodic sync policy to reconcile the secondary
// store later.
func (d *DataLayer) Eventual(ctx context.Context, entity Entity, key string, value interface{}) error {
	rule, ok := d.routes[entity]
	if !ok {
		return fmt.Errorf("datalayer: no routing rule for entity %q", entity)
	}
	return d.writeStore(ctx, rule.Primary, entity, key, value, rule.HotTTL)
}

// SingleStore writes directly to one named store, bypassing mirroring
// entirely. Used for entities with no secondary (player hands,
// sessions).
func (d *DataLayer) SingleStore(ctx context.Context, store StoreKind, entity Entity, key string, value interface{}, ttl time.Duration) error {
	return d.writeStore(ctx, store, entity, key, value, ttl)
}

// DeadLetters returns sync tasks that exhausted their retry budget.
func (d *DataLayer) DeadLetters() []DeadLetter {
	return d.queue.DeadLetters()
}

// Players, stats, and completed games are structured cold-store
// entities backed by dedicated repositories rather than the generic
// JSON blob table; the data layer still fronts them with the hot
// cache and circuit breaker.

func (d *DataLayer) SavePlayerProfile(ctx context.Context, player identity.Player) error {
	_, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, d.players.Create(ctx, player)
	}, nil, "")
	return err
}

func (d *DataLayer) GetPlayerProfile(ctx context.Context, playerID string) (identity.Player, error) {
	cacheKey := hotstore.PlayerProfileCacheKey(playerID)

	var cached identity.Player
	if err := d.hot.GetJSON(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	result, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return d.players.GetByID(ctx, playerID)
	}, nil, "")
	if err != nil {
		return identity.Player{}, err
	}
	player := result.(identity.Player)
	if setErr := d.hot.SetJSON(ctx, cacheKey, player, hotstore.TTLPlayerProfile); setErr != nil {
		log.Printf("datalayer: profile cache populate failed: %v", setErr)
	}
	return player, nil
}

func (d *DataLayer) GetPlayerStats(ctx context.Context, playerID string) (identity.Stats, error) {
	cacheKey := hotstore.PlayerStatsCacheKey(playerID)

	var cached identity.Stats
	if err := d.hot.GetJSON(ctx, cacheKey, &cached); err == nil {
		return cached, nil
	}

	result, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return d.stats.Get(ctx, playerID)
	}, nil, "")
	if err != nil {
		return identity.Stats{}, err
	}
	stats := result.(identity.Stats)
	if setErr := d.hot.SetJSON(ctx, cacheKey, stats, hotstore.TTLPlayerStats); setErr != nil {
		log.Printf("datalayer: stats cache populate failed: %v", setErr)
	}
	return stats, nil
}

// RecordCompletedGame persists a finished game and its moves, cold
// store only, bumps each participant's games_played (and wins for the
// winning team) with no rating change, and invalidates the
// participants' cached stats so the next read repopulates from the
// freshly updated rows. A failed stats update is logged and does not
// fail the call.
func (d *DataLayer) RecordCompletedGame(ctx context.Context, game coldstore.CompletedGame, moves []coldstore.GameMove) error {
	_, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, d.games.SaveCompletedGame(ctx, game, moves)
	}, nil, "")
	if err != nil {
		return err
	}
	for _, p := range game.Participants {
		p := p
		if _, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, d.stats.IncrementAfterGame(ctx, p.PlayerID.String(), p.Won, 0)
		}, nil, ""); err != nil {
			log.Printf("datalayer: stats update for %s failed: %v", p.PlayerID, err)
		}
		_ = d.hot.Delete(ctx, hotstore.PlayerStatsCacheKey(p.PlayerID.String()))
	}
	return nil
}

func (d *DataLayer) writeStore(ctx context.Context, kind StoreKind, entity Entity, key string, value interface{}, ttl time.Duration) error {
	switch kind {
	case StoreHot:
		_, _, err := d.hotBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, d.hot.SetJSON(ctx, key, value, ttl)
		}, nil, "")
		return err
	case StoreCold:
		_, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, d.blobs.Put(ctx, string(entity), key, value)
		}, nil, "")
		return err
	default:
		return nil
	}
}

func (d *DataLayer) readStore(ctx context.Context, kind StoreKind, entity Entity, key string, dest interface{}) error {
	switch kind {
	case StoreHot:
		_, _, err := d.hotBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, d.hot.GetJSON(ctx, key, dest)
		}, nil, "")
		return err
	case StoreCold:
		_, _, err := d.coldBreaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, d.blobs.Get(ctx, string(entity), key, dest)
		}, nil, "")
		return err
	default:
		return fmt.Errorf("datalayer: entity %q has no readable store configured", entity)
	}
}

func (d *DataLayer) deleteStore(ctx context.Context, kind StoreKind, entity Entity, key string) error {
	switch kind {
	case StoreHot:
		return d.hot.Delete(ctx, key)
	case StoreCold:
		return d.blobs.Delete(ctx, string(entity), key)
	default:
		return nil
	}
}

func (d *DataLayer) scheduleSync(entity Entity, key string, rule RoutingRule, event string) {
	if rule.Secondary == StoreNone {
		return
	}
	switch rule.Sync.Kind {
	case SyncImmediate:
		if err := d.queue.Enqueue(entity, key, PriorityHigh); err != nil {
			log.Printf("datalayer: immediate sync enqueue failed for %s/%s: %v", entity, key, err)
		}
	case SyncOnEvent:
		if rule.Sync.matchesEvent(event) {
			if err := d.queue.Enqueue(entity, key, PriorityHigh); err != nil {
				log.Printf("datalayer: on-event sync enqueue failed for %s/%s: %v", entity, key, err)
			}
			return
		}
		d.markDirty(entity, key, rule.Sync.Interval)
	case SyncPeriodic:
		d.markDirty(entity, key, rule.Sync.Interval)
	}
}

func (d *DataLayer) markDirty(entity Entity, key string, interval time.Duration) {
	if interval <= 0 {
		return
	}
	dirtyKey := string(entity) + "|" + key
	d.dirtyMu.Lock()
	defer d.dirtyMu.Unlock()
	if _, exists := d.dirty[dirtyKey]; exists {
		return
	}
	d.dirty[dirtyKey] = &dirtyEntry{entity: entity, key: key, interval: interval, dueAt: time.Now().Add(interval)}
}

func (d *DataLayer) periodicFlushLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case now := <-ticker.C:
			d.flushDue(now)
		}
	}
}

func (d *DataLayer) flushDue(now time.Time) {
	d.dirtyMu.Lock()
	due := make([]*dirtyEntry, 0)
	for k, e := range d.dirty {
		if !now.Before(e.dueAt) {
			due = append(due, e)
			delete(d.dirty, k)
		}
	}
	d.dirtyMu.Unlock()

	for _, e := range due {
		if err := d.queue.Enqueue(e.entity, e.key, PriorityMedium); err != nil {
			log.Printf("datalayer: periodic sync enqueue failed for %s/%s: %v", e.entity, e.key, err)
		}
	}
}

// syncToSecondary reads entity/key from its primary store and mirrors
// the value into its secondary store. Passed to the sync queue as its
// task handler.
func (d *DataLayer) syncToSecondary(ctx context.Context, entity Entity, key string) error {
	rule, ok := d.routes[entity]
	if !ok || rule.Secondary == StoreNone {
		return nil
	}
	var payload interface{}
	if err := d.readStore(ctx, rule.Primary, entity, key, &payload); err != nil {
		return fmt.Errorf("datalayer: sync read primary: %w", err)
	}
	if err := d.writeStore(ctx, rule.Secondary, entity, key, payload, rule.HotTTL); err != nil {
		return fmt.Errorf("datalayer: sync write secondary: %w", err)
	}
	return nil
}
