package coldstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrCredentialNotFound is returned when no password hash is on file
// for a player.
var ErrCredentialNotFound = errors.New("coldstore: credential not found")

// CredentialRepository persists password hashes, kept separate from
// PlayerRepository so the players table stays free of auth-specific
// columns. Implements authsvc.CredentialRepository.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create stores a player's password hash.
func (r *CredentialRepository) Create(ctx context.Context, playerID, passwordHash string) error {
	const query = `INSERT INTO player_credentials (player_id, password_hash) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, playerID, passwordHash); err != nil {
		return fmt.Errorf("coldstore: create credential: %w", err)
	}
	return nil
}

// GetPasswordHash retrieves a player's stored password hash.
func (r *CredentialRepository) GetPasswordHash(ctx context.Context, playerID string) (string, error) {
	const query = `SELECT password_hash FROM player_credentials WHERE player_id = $1`
	var hash string
	err := r.db.QueryRowContext(ctx, query, playerID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrCredentialNotFound
	}
	if err != nil {
		return "", fmt.Errorf("coldstore: get credential: %w", err)
	}
	return hash, nil
}
