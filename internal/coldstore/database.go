// Package coldstore wraps the relational durable store: players,
// completed game sessions, game participants, game moves, and player
// statistics. Completed game data is immutable once written.
package coldstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Database wraps a *sql.DB opened against either postgres or sqlite.
type Database struct {
	*sql.DB
	driver string
}

// Config holds connection parameters for the cold store.
type Config struct {
	Driver   string // "postgres" or "sqlite"
	DSN      string // used directly for sqlite
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// NewDatabase opens a connection to the configured cold store and
// verifies it with a ping.
func NewDatabase(cfg Config) (*Database, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "sqlite"
	}

	var dsn string
	switch driver {
	case "postgres":
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	default:
		driver = "sqlite"
		dsn = cfg.DSN
		if dsn == "" {
			dsn = "./hokm.db"
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("coldstore: failed to open %s connection: %w", driver, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("coldstore: failed to ping %s: %w", driver, err)
	}

	log.Printf("coldstore: connected (%s)", driver)
	return &Database{DB: db, driver: driver}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Migrate runs the cold-store schema migrations. Schema follows the
// conceptual tables named in the persisted-state layout: players,
// completed game sessions, game participants, game moves, player
// statistics.
func (d *Database) Migrate() error {
	log.Println("coldstore: running migrations")

	statements := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS player_credentials (
			player_id TEXT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS player_stats (
			player_id TEXT PRIMARY KEY REFERENCES players(id) ON DELETE CASCADE,
			games_played INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			rating REAL NOT NULL DEFAULT 1000,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS completed_games (
			id TEXT PRIMARY KEY,
			room_code TEXT NOT NULL,
			winning_team INTEGER NOT NULL,
			final_scores TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS game_participants (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL REFERENCES completed_games(id) ON DELETE CASCADE,
			player_id TEXT NOT NULL REFERENCES players(id),
			seat INTEGER NOT NULL,
			team INTEGER NOT NULL,
			won BOOLEAN NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_participants_game ON game_participants(game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_game_participants_player ON game_participants(player_id)`,
		`CREATE TABLE IF NOT EXISTS game_moves (
			id TEXT PRIMARY KEY,
			game_id TEXT NOT NULL,
			room_code TEXT NOT NULL,
			hand_number INTEGER NOT NULL,
			seat INTEGER NOT NULL,
			card TEXT NOT NULL,
			played_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_game_moves_room ON game_moves(room_code)`,
		`CREATE TABLE IF NOT EXISTS cold_entity_blobs (
			entity_type TEXT NOT NULL,
			key TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entity_type, key)
		)`,
	}

	for _, stmt := range statements {
		if _, err := d.Exec(stmt); err != nil {
			return fmt.Errorf("coldstore: migration failed: %w", err)
		}
	}

	log.Println("coldstore: migrations completed")
	return nil
}

// Health pings the database with a bounded timeout.
func (d *Database) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.PingContext(ctx)
}
