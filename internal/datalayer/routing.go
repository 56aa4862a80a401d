// Package datalayer implements the Hybrid Data Layer: a routing table
// that decides, per entity type, which store is primary and which is
// a mirror, plus the transaction modes and background sync queue that
// keep the two in step. All store access is wrapped in a
// *breaker.Breaker so a slow or unreachable store degrades to cache or
// fallback behavior instead of blocking the caller.
package datalayer

import "time"

// Entity identifies one of the data layer's routable entity types.
type Entity string

const (
	EntityGameState          Entity = "game_state"
	EntityPlayerHand          Entity = "player_hand"
	EntityMoveLog             Entity = "move_log"
	EntitySession             Entity = "session"
	EntityPlayerProfile       Entity = "player_profile"
	EntityPlayerStats         Entity = "player_stats"
	EntityCompletedGameRecord Entity = "completed_game_record"
)

// StoreKind names a backing store, or its absence.
type StoreKind string

const (
	StoreHot  StoreKind = "hot"
	StoreCold StoreKind = "cold"
	StoreNone StoreKind = "none"
)

// SyncPolicyKind names how a mirrored write reaches the secondary
// store.
type SyncPolicyKind string

const (
	// SyncNone: no secondary, nothing to sync.
	SyncNone SyncPolicyKind = "none"
	// SyncImmediate: every write enqueues a high-priority sync task.
	SyncImmediate SyncPolicyKind = "immediate"
	// SyncOnEvent: a write enqueues a high-priority sync task only when
	// tagged with one of Events; otherwise it's left for the periodic
	// sweep.
	SyncOnEvent SyncPolicyKind = "on_event"
	// SyncPeriodic: writes are batched and flushed to the secondary on
	// Interval.
	SyncPeriodic SyncPolicyKind = "periodic"
)

// SyncPolicy describes when a dirty primary-store write propagates to
// the secondary store.
type SyncPolicy struct {
	Kind     SyncPolicyKind
	Events   []string      // relevant when Kind == SyncOnEvent
	Interval time.Duration // periodic fallback cadence; 0 disables it
}

func (p SyncPolicy) matchesEvent(event string) bool {
	if event == "" {
		return false
	}
	for _, e := range p.Events {
		if e == event {
			return true
		}
	}
	return false
}

// RoutingRule is one row of the routing table.
type RoutingRule struct {
	Primary   StoreKind
	Secondary StoreKind
	HotTTL    time.Duration
	Sync      SyncPolicy
}

// defaultRoutingTable mirrors spec §4.2's entity routing table.
func defaultRoutingTable() map[Entity]RoutingRule {
	return map[Entity]RoutingRule{
		EntityGameState: {
			Primary: StoreHot, Secondary: StoreCold, HotTTL: 2 * time.Hour,
			Sync: SyncPolicy{Kind: SyncOnEvent, Events: []string{"hand_complete", "game_over"}, Interval: 60 * time.Second},
		},
		EntityPlayerHand: {
			Primary: StoreHot, Secondary: StoreNone, HotTTL: 2 * time.Hour,
			Sync: SyncPolicy{Kind: SyncNone},
		},
		EntityMoveLog: {
			Primary: StoreHot, Secondary: StoreCold, HotTTL: time.Hour,
			Sync: SyncPolicy{Kind: SyncImmediate},
		},
		EntitySession: {
			Primary: StoreHot, Secondary: StoreNone, HotTTL: 30 * time.Minute,
			Sync: SyncPolicy{Kind: SyncNone},
		},
		EntityPlayerProfile: {
			Primary: StoreCold, Secondary: StoreHot, HotTTL: 15 * time.Minute,
			Sync: SyncPolicy{Kind: SyncPeriodic, Interval: 15 * time.Minute},
		},
		EntityPlayerStats: {
			Primary: StoreCold, Secondary: StoreHot, HotTTL: 30 * time.Minute,
			Sync: SyncPolicy{Kind: SyncPeriodic, Interval: 30 * time.Minute},
		},
		EntityCompletedGameRecord: {
			Primary: StoreCold, Secondary: StoreNone, HotTTL: 0,
			Sync: SyncPolicy{Kind: SyncNone},
		},
	}
}
