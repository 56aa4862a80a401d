// Package authsvc supplies the minimal auth collaborator spec.md
// treats as external: authenticate(username, password) -> token and
// validate(token) -> player identity. It exists so the server is
// runnable standalone; credential storage format is explicitly out of
// the core's scope, so this implementation is deliberately small —
// bcrypt + JWT, no OAuth, MFA, or RBAC.
package authsvc

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
	"hokm/internal/coldstore"
	"hokm/internal/identity"
)

var (
	ErrInvalidCredentials = errors.New("authsvc: invalid username or password")
	ErrUsernameTaken      = errors.New("authsvc: username already registered")
)

// CredentialRepository persists the password hash alongside a player.
// Kept separate from PlayerRepository so coldstore's player table stays
// free of auth-specific columns.
type CredentialRepository interface {
	Create(ctx context.Context, playerID, passwordHash string) error
	GetPasswordHash(ctx context.Context, playerID string) (string, error)
}

// Service authenticates players and issues tokens.
type Service struct {
	players     *coldstore.PlayerRepository
	credentials CredentialRepository
	tokens      *TokenIssuer
}

// NewService creates an auth service backed by the cold store and a
// token issuer.
func NewService(players *coldstore.PlayerRepository, credentials CredentialRepository, tokens *TokenIssuer) *Service {
	return &Service{players: players, credentials: credentials, tokens: tokens}
}

// Register creates a new player identity with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, password string, email *string) (identity.Player, error) {
	if _, err := s.players.GetByUsername(ctx, username); err == nil {
		return identity.Player{}, ErrUsernameTaken
	} else if !errors.Is(err, coldstore.ErrPlayerNotFound) {
		return identity.Player{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return identity.Player{}, fmt.Errorf("authsvc: hash password: %w", err)
	}

	player := identity.New(username, email)
	if err := s.players.Create(ctx, player); err != nil {
		return identity.Player{}, err
	}
	if err := s.credentials.Create(ctx, player.ID.String(), string(hash)); err != nil {
		return identity.Player{}, err
	}
	return player, nil
}

// Authenticate validates a username/password pair and issues a token,
// fulfilling spec.md's authenticate(username, password) -> token
// interface.
func (s *Service) Authenticate(ctx context.Context, username, password string) (identity.Player, string, error) {
	player, err := s.players.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, coldstore.ErrPlayerNotFound) {
			return identity.Player{}, "", ErrInvalidCredentials
		}
		return identity.Player{}, "", err
	}

	hash, err := s.credentials.GetPasswordHash(ctx, player.ID.String())
	if err != nil {
		return identity.Player{}, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return identity.Player{}, "", ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(player.ID, player.Username)
	if err != nil {
		return identity.Player{}, "", err
	}
	return player, token, nil
}

// Validate resolves a token back to a player identity, fulfilling
// spec.md's validate(token) -> player_identity interface.
func (s *Service) Validate(ctx context.Context, token string) (identity.Player, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return identity.Player{}, err
	}
	return s.players.GetByID(ctx, claims.PlayerID)
}
