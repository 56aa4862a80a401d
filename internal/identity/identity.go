// Package identity defines the durable Player Identity entity shared
// across sessions, rooms, and the cold store.
package identity

import (
	"time"

	"github.com/google/uuid"
)

// Stats holds durable per-player statistics, mutated on game completion
// and administrative actions.
type Stats struct {
	GamesPlayed int     `json:"games_played"`
	Wins        int     `json:"wins"`
	Rating      float64 `json:"rating"`
}

// Player is a stable, opaque identity independent of any live
// connection. It outlives sessions, rooms, and games.
type Player struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	Email       *string   `json:"email,omitempty"`
	Stats       Stats     `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
}

// New creates a fresh Player identity with zeroed stats.
func New(username string, email *string) Player {
	return Player{
		ID:        uuid.New(),
		Username:  username,
		Email:     email,
		Stats:     Stats{},
		CreatedAt: time.Now(),
	}
}
