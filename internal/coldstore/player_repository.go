package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"hokm/internal/identity"
)

// ErrPlayerNotFound is returned when a lookup finds no matching row.
var ErrPlayerNotFound = errors.New("coldstore: player not found")

// PlayerRepository persists Player Identity rows.
type PlayerRepository struct {
	db *sql.DB
}

// NewPlayerRepository creates a new player repository.
func NewPlayerRepository(db *sql.DB) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// Create inserts a new player identity row.
func (r *PlayerRepository) Create(ctx context.Context, p identity.Player) error {
	const query = `
		INSERT INTO players (id, username, email, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID.String(), p.Username, p.Email, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("coldstore: create player: %w", err)
	}
	return nil
}

// GetByUsername retrieves a player by username.
func (r *PlayerRepository) GetByUsername(ctx context.Context, username string) (identity.Player, error) {
	const query = `SELECT id, username, email, created_at FROM players WHERE username = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetByID retrieves a player by ID.
func (r *PlayerRepository) GetByID(ctx context.Context, id string) (identity.Player, error) {
	const query = `SELECT id, username, email, created_at FROM players WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PlayerRepository) scanOne(row *sql.Row) (identity.Player, error) {
	var p identity.Player
	var id string
	if err := row.Scan(&id, &p.Username, &p.Email, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Player{}, ErrPlayerNotFound
		}
		return identity.Player{}, fmt.Errorf("coldstore: get player: %w", err)
	}
	parsed, err := parseUUID(id)
	if err != nil {
		return identity.Player{}, err
	}
	p.ID = parsed
	return p, nil
}
