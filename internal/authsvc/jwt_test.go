package authsvc

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)
	playerID := uuid.New()

	token, err := issuer.Issue(playerID, "alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, playerID.String(), claims.PlayerID)
	assert.Equal(t, "alice", claims.Username)
}

func TestTokenIssuerRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Hour)
	token, err := issuer.Issue(uuid.New(), "bob")
	require.NoError(t, err)

	_, err = issuer.Parse(token)
	assert.Error(t, err)
}

func TestTokenIssuerRejectsWrongSecret(t *testing.T) {
	issuer := NewTokenIssuer([]byte("secret-a"), time.Hour)
	token, err := issuer.Issue(uuid.New(), "carol")
	require.NoError(t, err)

	other := NewTokenIssuer([]byte("secret-b"), time.Hour)
	_, err = other.Parse(token)
	assert.Error(t, err)
}
