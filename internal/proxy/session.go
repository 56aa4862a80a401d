package proxy

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Session is one client's proxied connection: a client socket paired
// with whichever backend socket it's currently forwarding to. Exactly
// one of the two forwarding loops detecting a close ends the session,
// the same shape as wsgateway's readPump/writePump pairing but with
// both ends being live sockets instead of one being an in-process
// channel.
type Session struct {
	proxy  *Proxy
	client *websocket.Conn

	mu             sync.Mutex
	currentBackend *Backend
	migrations     []time.Time
	migrating      bool
	closed         bool
}

func newSession(p *Proxy, client *websocket.Conn, backend *Backend) *Session {
	return &Session{proxy: p, client: client, currentBackend: backend}
}

func (s *Session) backend() *Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentBackend
}

// run pumps frames bidirectionally between the client and backend
// sockets until either side closes, then tears the session down.
func (s *Session) run(backendConn *websocket.Conn) {
	defer s.teardown(backendConn)

	done := make(chan struct{}, 2)
	go forward(s.client, backendConn, done)
	go forward(backendConn, s.client, done)
	<-done
}

func (s *Session) teardown(backendConn *websocket.Conn) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	backend := s.currentBackend
	s.mu.Unlock()

	s.proxy.unregister(s)
	if backend != nil {
		backend.incConnections(-1)
	}
	backendConn.Close()
	s.client.Close()
}

// forward copies messages from src to dst until either side errors,
// then signals done exactly once.
func forward(src, dst *websocket.Conn, done chan<- struct{}) {
	for {
		msgType, data, err := src.ReadMessage()
		if err != nil {
			done <- struct{}{}
			return
		}
		if err := dst.WriteMessage(msgType, data); err != nil {
			done <- struct{}{}
			return
		}
	}
}

// migrateTo sends the client a server_migration frame and rewires this
// session onto target, subject to the reconnect rate limit. Called
// from the proxy's health-monitor goroutine, never from run's own
// forwarding goroutines.
func (s *Session) migrateTo(target *Backend) {
	s.mu.Lock()
	if s.closed || s.migrating {
		s.mu.Unlock()
		return
	}
	if !s.allowMigrationLocked() {
		s.mu.Unlock()
		log.Printf("proxy: reconnect rate limit exceeded, dropping client")
		s.client.Close()
		return
	}
	s.migrating = true
	s.mu.Unlock()

	migrationFrame, _ := json.Marshal(map[string]interface{}{
		"type":       "server_migration",
		"new_server": target.Name,
	})
	s.client.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.client.WriteMessage(websocket.TextMessage, migrationFrame); err != nil {
		log.Printf("proxy: failed to signal migration to client: %v", err)
	}

	backendConn, _, err := websocket.DefaultDialer.Dial(target.URL, nil)
	if err != nil {
		log.Printf("proxy: migration dial to %s failed: %v", target.Name, err)
		s.client.Close()
		return
	}

	s.mu.Lock()
	old := s.currentBackend
	s.currentBackend = target
	s.migrating = false
	s.mu.Unlock()

	if old != nil {
		old.incConnections(-1)
	}
	target.incConnections(1)

	s.run(backendConn)
}

// allowMigrationLocked enforces spec.md's reconnect rate limit (max
// migrations per window, minimum gap between attempts). Must be called
// with s.mu held.
func (s *Session) allowMigrationLocked() bool {
	now := time.Now()
	window := s.proxy.cfg.MigrationWindow
	cutoff := now.Add(-window)

	kept := s.migrations[:0]
	for _, t := range s.migrations {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.migrations = kept

	if len(s.migrations) > 0 {
		if now.Sub(s.migrations[len(s.migrations)-1]) < s.proxy.cfg.MinMigrationGap {
			return false
		}
	}
	if len(s.migrations) >= s.proxy.cfg.MaxMigrationsPerWindow {
		return false
	}
	s.migrations = append(s.migrations, now)
	return true
}
