package datalayer

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hokm/internal/breaker"
	"hokm/internal/coldstore"
	"hokm/internal/hotstore"
)

func newTestLayer(t *testing.T) (*DataLayer, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	coldDB := coldstore.NewDatabaseForTest(db)

	hot := hotstore.New(hotstore.Config{Enabled: false})

	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.PeriodicFlushInterval = 50 * time.Millisecond

	bcfg := breaker.DefaultConfig()
	bcfg.MaxRetryAttempts = 1

	d := New(hot, coldDB, bcfg, cfg)
	t.Cleanup(d.Close)
	return d, mock
}

func TestColdPrimaryRoundTrip(t *testing.T) {
	d, mock := newTestLayer(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO cold_entity_blobs").
		WithArgs(string(EntityCompletedGameRecord), "game-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := d.Put(ctx, EntityCompletedGameRecord, "game-1", map[string]string{"winner": "team-0"}, "")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"payload"}).AddRow(`{"winner":"team-0"}`)
	mock.ExpectQuery("SELECT payload FROM cold_entity_blobs").
		WithArgs(string(EntityCompletedGameRecord), "game-1").
		WillReturnRows(rows)

	var dest map[string]string
	err = d.Get(ctx, EntityCompletedGameRecord, "game-1", &dest)
	require.NoError(t, err)
	assert.Equal(t, "team-0", dest["winner"])
}

func TestUnknownEntityRejected(t *testing.T) {
	d, _ := newTestLayer(t)
	err := d.Put(context.Background(), Entity("bogus"), "k", 1, "")
	assert.Error(t, err)
}

func TestImmediateSyncDeadLettersWhenPrimaryUnreadable(t *testing.T) {
	d, _ := newTestLayer(t)
	ctx := context.Background()

	// hot store is disabled: SetJSON no-ops successfully but GetJSON
	// always errors, so the queued sync (which reads the primary back)
	// can never succeed and must eventually dead-letter.
	err := d.Put(ctx, EntityMoveLog, "room-1", []string{"A_hearts"}, "")
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(d.DeadLetters()) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	letters := d.DeadLetters()
	require.NotEmpty(t, letters)
	assert.Equal(t, EntityMoveLog, letters[0].Entity)
}

func TestWriteThroughFailsFastOnColdError(t *testing.T) {
	d, mock := newTestLayer(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO cold_entity_blobs").
		WillReturnError(assert.AnError)

	err := d.WriteThrough(ctx, EntityCompletedGameRecord, "game-2", map[string]int{"score": 1}, time.Hour)
	assert.Error(t, err)
}
