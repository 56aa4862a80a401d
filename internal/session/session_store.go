// Package session implements the ephemeral binding of a live connection
// to a Player Identity: heartbeat tracking, connection status, room
// membership, and the disconnect grace window that allows rejoin.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the connection status of a session.
type Status string

const (
	StatusActive       Status = "active"
	StatusDisconnected Status = "disconnected"
	StatusMigrating    Status = "migrating"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExpired  = errors.New("session: expired")
)

// Session binds a Player Identity to a live connection. RoomCode is
// empty when the player is not currently seated anywhere.
type Session struct {
	Token         string    `json:"token"`
	PlayerID      uuid.UUID `json:"player_id"`
	Status        Status    `json:"connection_status"`
	RoomCode      string    `json:"room_code,omitempty"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	CreatedAt     time.Time `json:"created_at"`
	// graceDeadline is set when Status transitions to disconnected; the
	// session is destroyed once this deadline passes without a rejoin.
	graceDeadline time.Time
}

// Store is a mutex-guarded in-memory session registry with a
// background sweep for grace-window expiry, generalized from a plain
// login-session map to the richer session entity the room coordinator
// and wsgateway rely on.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	graceWindow   time.Duration
	tokenLifetime time.Duration
	stopCh        chan struct{}
}

// NewStore creates a session store and starts its background cleanup
// goroutine.
func NewStore(graceWindow, tokenLifetime time.Duration) *Store {
	s := &Store{
		sessions:      make(map[string]*Session),
		graceWindow:   graceWindow,
		tokenLifetime: tokenLifetime,
		stopCh:        make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweep goroutine.
func (s *Store) Close() {
	close(s.stopCh)
}

// Create establishes a new active session for a player, generating a
// fresh random token.
func (s *Store) Create(playerID uuid.UUID) (*Session, error) {
	token, err := randomToken(32)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	sess := &Session{
		Token:         token,
		PlayerID:      playerID,
		Status:        StatusActive,
		LastHeartbeat: now,
		CreatedAt:     now,
	}
	s.mu.Lock()
	s.sessions[token] = sess
	s.mu.Unlock()
	return sess, nil
}

// Validate returns the session for a token, rejecting it if the token
// lifetime has elapsed since creation.
func (s *Store) Validate(token string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if time.Since(sess.CreatedAt) > s.tokenLifetime {
		s.Delete(token)
		return nil, ErrSessionExpired
	}
	return sess, nil
}

// Heartbeat refreshes a session's last-heartbeat timestamp and marks it
// active, canceling any pending grace-window expiry.
func (s *Store) Heartbeat(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastHeartbeat = time.Now()
	sess.Status = StatusActive
	sess.graceDeadline = time.Time{}
	return nil
}

// BindRoom records which room a session's player has joined.
func (s *Store) BindRoom(token, roomCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	sess.RoomCode = roomCode
	return nil
}

// MarkDisconnected transitions a session to disconnected and starts its
// grace window; the session is destroyed if not reclaimed in time.
func (s *Store) MarkDisconnected(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = StatusDisconnected
	sess.graceDeadline = time.Now().Add(s.graceWindow)
	return nil
}

// MarkMigrating transitions a session to migrating. Nothing in this
// repository calls it; the edge proxy keeps its own per-connection
// state and does not use this store.
func (s *Store) MarkMigrating(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = StatusMigrating
	return nil
}

// Delete removes a session outright.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepExpired()
		}
	}
}

func (s *Store) sweepExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for token, sess := range s.sessions {
		if sess.Status == StatusDisconnected && !sess.graceDeadline.IsZero() && now.After(sess.graceDeadline) {
			delete(s.sessions, token)
			continue
		}
		if now.Sub(sess.CreatedAt) > s.tokenLifetime {
			delete(s.sessions, token)
		}
	}
}

func randomToken(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	encoded := base64.URLEncoding.EncodeToString(buf)
	if len(encoded) > length {
		encoded = encoded[:length]
	}
	return encoded, nil
}
