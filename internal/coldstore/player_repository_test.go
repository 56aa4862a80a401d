package coldstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hokm/internal/identity"
)

func TestPlayerRepositoryCreate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPlayerRepository(db)
	p := identity.New("alice", nil)

	mock.ExpectExec("INSERT INTO players").
		WithArgs(p.ID.String(), p.Username, p.Email, p.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = repo.Create(context.Background(), p)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlayerRepositoryGetByUsernameNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPlayerRepository(db)

	mock.ExpectQuery("SELECT id, username, email, created_at FROM players WHERE username").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}))

	_, err = repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrPlayerNotFound)
}

func TestPlayerRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPlayerRepository(db)
	p := identity.New("bob", nil)
	now := time.Now()

	mock.ExpectQuery("SELECT id, username, email, created_at FROM players WHERE id").
		WithArgs(p.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "email", "created_at"}).
			AddRow(p.ID.String(), p.Username, nil, now))

	got, err := repo.GetByID(context.Background(), p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "bob", got.Username)
}
