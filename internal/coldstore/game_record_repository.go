package coldstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"hokm/internal/carddeck"
)

// CompletedGame is the immutable record of a finished game, written
// through at game_over per the routing table's "immediate write-through"
// sync policy.
type CompletedGame struct {
	ID           uuid.UUID
	RoomCode     string
	WinningTeam  int
	FinalScores  [2]int
	StartedAt    time.Time
	CompletedAt  time.Time
	Participants []GameParticipant
}

// GameParticipant is one seat's membership in a completed game.
type GameParticipant struct {
	PlayerID uuid.UUID
	Seat     int
	Team     int
	Won      bool
}

// GameMove is a single audit-log entry persisted from the hot store's
// append-only move list per the "immediate" sync policy.
type GameMove struct {
	GameID     string
	RoomCode   string
	HandNumber int
	Seat       int
	Card       carddeck.Card
	PlayedAt   time.Time
}

// GameRecordRepository persists completed games, their participants,
// and their move logs.
type GameRecordRepository struct {
	db *sql.DB
}

// NewGameRecordRepository creates a new game record repository.
func NewGameRecordRepository(db *sql.DB) *GameRecordRepository {
	return &GameRecordRepository{db: db}
}

// SaveCompletedGame writes the game, its participants, and any pending
// move-log rows transactionally, so a reader never observes a game
// record with no participants.
func (r *GameRecordRepository) SaveCompletedGame(ctx context.Context, g CompletedGame, moves []GameMove) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("coldstore: begin transaction: %w", err)
	}
	defer tx.Rollback()

	scores, err := json.Marshal(g.FinalScores)
	if err != nil {
		return fmt.Errorf("coldstore: marshal final scores: %w", err)
	}

	const insertGame = `
		INSERT INTO completed_games (id, room_code, winning_team, final_scores, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.ExecContext(ctx, insertGame, g.ID.String(), g.RoomCode, g.WinningTeam, string(scores), g.StartedAt, g.CompletedAt); err != nil {
		return fmt.Errorf("coldstore: insert completed game: %w", err)
	}

	const insertParticipant = `
		INSERT INTO game_participants (id, game_id, player_id, seat, team, won)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, p := range g.Participants {
		if _, err := tx.ExecContext(ctx, insertParticipant, uuid.New().String(), g.ID.String(), p.PlayerID.String(), p.Seat, p.Team, p.Won); err != nil {
			return fmt.Errorf("coldstore: insert game participant: %w", err)
		}
	}

	const insertMove = `
		INSERT INTO game_moves (id, game_id, room_code, hand_number, seat, card, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, insertMove, uuid.New().String(), g.ID.String(), m.RoomCode, m.HandNumber, m.Seat, m.Card.String(), m.PlayedAt); err != nil {
			return fmt.Errorf("coldstore: insert game move: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("coldstore: commit completed game: %w", err)
	}
	return nil
}

// GetByID retrieves a completed game record by ID.
func (r *GameRecordRepository) GetByID(ctx context.Context, id string) (CompletedGame, error) {
	const query = `
		SELECT id, room_code, winning_team, final_scores, started_at, completed_at
		FROM completed_games WHERE id = $1
	`
	var g CompletedGame
	var idStr, scoresJSON string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&idStr, &g.RoomCode, &g.WinningTeam, &scoresJSON, &g.StartedAt, &g.CompletedAt)
	if err != nil {
		return CompletedGame{}, fmt.Errorf("coldstore: get completed game: %w", err)
	}
	parsedID, err := parseUUID(idStr)
	if err != nil {
		return CompletedGame{}, err
	}
	g.ID = parsedID
	if err := json.Unmarshal([]byte(scoresJSON), &g.FinalScores); err != nil {
		return CompletedGame{}, fmt.Errorf("coldstore: decode final scores: %w", err)
	}
	return g, nil
}

// GetPlayerHistory retrieves a player's most recent completed games.
func (r *GameRecordRepository) GetPlayerHistory(ctx context.Context, playerID string, limit int) ([]CompletedGame, error) {
	const query = `
		SELECT g.id, g.room_code, g.winning_team, g.final_scores, g.started_at, g.completed_at
		FROM completed_games g
		JOIN game_participants p ON p.game_id = g.id
		WHERE p.player_id = $1
		ORDER BY g.completed_at DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("coldstore: get player history: %w", err)
	}
	defer rows.Close()

	var games []CompletedGame
	for rows.Next() {
		var g CompletedGame
		var idStr, scoresJSON string
		if err := rows.Scan(&idStr, &g.RoomCode, &g.WinningTeam, &scoresJSON, &g.StartedAt, &g.CompletedAt); err != nil {
			return nil, fmt.Errorf("coldstore: scan completed game: %w", err)
		}
		parsedID, err := parseUUID(idStr)
		if err != nil {
			return nil, err
		}
		g.ID = parsedID
		if err := json.Unmarshal([]byte(scoresJSON), &g.FinalScores); err != nil {
			return nil, fmt.Errorf("coldstore: decode final scores: %w", err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}
