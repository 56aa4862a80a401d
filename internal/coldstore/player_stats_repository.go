package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hokm/internal/identity"
)

// PlayerStatsRepository persists the cold-store copy of player
// statistics; the hot store caches reads and batches updates per the
// routing table's "batched updates" sync policy.
type PlayerStatsRepository struct {
	db *sql.DB
}

// NewPlayerStatsRepository creates a new player stats repository.
func NewPlayerStatsRepository(db *sql.DB) *PlayerStatsRepository {
	return &PlayerStatsRepository{db: db}
}

// Get retrieves a player's stats. A player with no stats row yet gets
// zero games and wins and the schema's default rating of 1000.
func (r *PlayerStatsRepository) Get(ctx context.Context, playerID string) (identity.Stats, error) {
	const query = `SELECT games_played, wins, rating FROM player_stats WHERE player_id = $1`
	var s identity.Stats
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(&s.GamesPlayed, &s.Wins, &s.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.Stats{Rating: 1000}, nil
	}
	if err != nil {
		return identity.Stats{}, fmt.Errorf("coldstore: get player stats: %w", err)
	}
	return s, nil
}

// Upsert inserts or replaces a player's full stats row in the cold
// store.
func (r *PlayerStatsRepository) Upsert(ctx context.Context, playerID string, s identity.Stats) error {
	const query = `
		INSERT INTO player_stats (player_id, games_played, wins, rating, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP)
		ON CONFLICT (player_id) DO UPDATE SET
			games_played = excluded.games_played,
			wins = excluded.wins,
			rating = excluded.rating,
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query, playerID, s.GamesPlayed, s.Wins, s.Rating)
	if err != nil {
		return fmt.Errorf("coldstore: upsert player stats: %w", err)
	}
	return nil
}

// IncrementAfterGame bumps games_played and wins (if won) and applies
// a rating delta, used by the data layer's RecordCompletedGame for
// each participant of a finished game.
func (r *PlayerStatsRepository) IncrementAfterGame(ctx context.Context, playerID string, won bool, ratingDelta float64) error {
	current, err := r.Get(ctx, playerID)
	if err != nil {
		return err
	}
	current.GamesPlayed++
	if won {
		current.Wins++
	}
	current.Rating += ratingDelta
	return r.Upsert(ctx, playerID, current)
}
