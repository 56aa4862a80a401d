package coldstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBlobNotFound is returned when a generic entity blob has no row.
var ErrBlobNotFound = errors.New("coldstore: blob not found")

// BlobRepository stores the generic JSON-blob cold mirror used by the
// Hybrid Data Layer for entities whose cold representation doesn't
// need its own relational schema (game state snapshots, move log
// archives). Structured entities (players, completed games) use their
// own dedicated repositories instead.
type BlobRepository struct {
	db *sql.DB
}

// NewBlobRepository creates a new blob repository.
func NewBlobRepository(db *sql.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// EnsureBlobSchema creates the generic blob table if absent.
// Database.Migrate creates the same table with its own inline
// statement and does not call this function.
func EnsureBlobSchema(db *sql.DB) error {
	const stmt = `CREATE TABLE IF NOT EXISTS cold_entity_blobs (
		entity_type TEXT NOT NULL,
		key TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (entity_type, key)
	)`
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("coldstore: create blob table: %w", err)
	}
	return nil
}

// Put upserts a JSON-serialized entity value.
func (r *BlobRepository) Put(ctx context.Context, entityType, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("coldstore: marshal blob: %w", err)
	}
	const query = `
		INSERT INTO cold_entity_blobs (entity_type, key, payload, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (entity_type, key) DO UPDATE SET
			payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, entityType, key, string(payload)); err != nil {
		return fmt.Errorf("coldstore: put blob: %w", err)
	}
	return nil
}

// Get retrieves and unmarshals a JSON blob.
func (r *BlobRepository) Get(ctx context.Context, entityType, key string, dest interface{}) error {
	const query = `SELECT payload FROM cold_entity_blobs WHERE entity_type = $1 AND key = $2`
	var payload string
	err := r.db.QueryRowContext(ctx, query, entityType, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrBlobNotFound
	}
	if err != nil {
		return fmt.Errorf("coldstore: get blob: %w", err)
	}
	return json.Unmarshal([]byte(payload), dest)
}

// Delete removes a blob row.
func (r *BlobRepository) Delete(ctx context.Context, entityType, key string) error {
	const query = `DELETE FROM cold_entity_blobs WHERE entity_type = $1 AND key = $2`
	if _, err := r.db.ExecContext(ctx, query, entityType, key); err != nil {
		return fmt.Errorf("coldstore: delete blob: %w", err)
	}
	return nil
}
