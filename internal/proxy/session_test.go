package proxy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hokm/internal/config"
)

func newTestSession() *Session {
	p := &Proxy{
		cfg: config.ProxyConfig{
			MaxMigrationsPerWindow: 3,
			MigrationWindow:        60 * time.Second,
			MinMigrationGap:        5 * time.Second,
		},
	}
	return &Session{proxy: p}
}

func TestAllowMigrationEnforcesMinimumGap(t *testing.T) {
	s := newTestSession()
	assert.True(t, s.allowMigrationLocked())
	assert.False(t, s.allowMigrationLocked(), "second attempt inside the minimum gap must be rejected")
}

func TestAllowMigrationEnforcesWindowCap(t *testing.T) {
	s := newTestSession()
	s.proxy.cfg.MinMigrationGap = 0

	for i := 0; i < 3; i++ {
		assert.True(t, s.allowMigrationLocked())
	}
	assert.False(t, s.allowMigrationLocked(), "fourth attempt within the window must be rejected")
}

func TestAllowMigrationResetsOutsideWindow(t *testing.T) {
	s := newTestSession()
	s.proxy.cfg.MinMigrationGap = 0
	s.migrations = []time.Time{time.Now().Add(-time.Hour)}

	assert.True(t, s.allowMigrationLocked())
}
