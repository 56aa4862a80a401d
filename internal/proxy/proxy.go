package proxy

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"hokm/internal/config"
)

// Proxy is the Edge Proxy: a health-monitored backend list plus a
// registry of live client sessions, so a backend's health transition
// can find and migrate every session currently bound to it.
type Proxy struct {
	cfg      config.ProxyConfig
	backends []*Backend

	mu       sync.Mutex
	sessions map[*Session]struct{}

	stopCh chan struct{}
}

// New creates a proxy over the configured backend list, named in
// configuration order (primary, secondary, ...).
func New(cfg config.ProxyConfig) *Proxy {
	backends := make([]*Backend, len(cfg.Backends))
	for i, url := range cfg.Backends {
		backends[i] = newBackend(backendName(i), url)
	}
	return &Proxy{
		cfg:      cfg,
		backends: backends,
		sessions: make(map[*Session]struct{}),
		stopCh:   make(chan struct{}),
	}
}

var ordinalNames = []string{"primary", "secondary", "tertiary", "quaternary"}

func backendName(i int) string {
	if i < len(ordinalNames) {
		return ordinalNames[i]
	}
	return "backend-" + strconv.Itoa(i)
}

// Run starts the health monitoring loop; it blocks until ctx is
// cancelled or Stop is called.
func (p *Proxy) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	p.checkAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.checkAll()
		}
	}
}

// Stop halts the health monitoring loop.
func (p *Proxy) Stop() {
	close(p.stopCh)
}

func (p *Proxy) checkAll() {
	var wg sync.WaitGroup
	for _, b := range p.backends {
		wg.Add(1)
		go func(b *Backend) {
			defer wg.Done()
			ok := b.probe(p.cfg.HealthCheckTimeout, p.cfg.HealthCheckTimeout)
			if b.recordResult(ok, p.cfg.FailoverThreshold) {
				p.migrateFrom(b)
			}
		}(b)
	}
	wg.Wait()
}

// healthyBackend returns the first available backend in configured
// order, or nil.
func (p *Proxy) healthyBackend() *Backend {
	for _, b := range p.backends {
		if b.available() {
			return b
		}
	}
	return nil
}

func (p *Proxy) healthyBackendExcept(exclude *Backend) *Backend {
	for _, b := range p.backends {
		if b != exclude && b.available() {
			return b
		}
	}
	return nil
}

// HandleClient upgrades an inbound client connection and forwards it
// to a healthy backend for the life of the connection.
func (p *Proxy) HandleClient(w http.ResponseWriter, r *http.Request) {
	backend := p.healthyBackend()
	if backend == nil {
		http.Error(w, "no healthy backend available", http.StatusServiceUnavailable)
		return
	}

	clientConn, err := clientUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("proxy: client upgrade failed: %v", err)
		return
	}

	backendConn, _, err := websocket.DefaultDialer.Dial(backend.URL, nil)
	if err != nil {
		log.Printf("proxy: backend dial failed: %v", err)
		clientConn.Close()
		return
	}

	sess := newSession(p, clientConn, backend)
	backend.incConnections(1)
	p.register(sess)
	sess.run(backendConn)
}

func (p *Proxy) register(s *Session) {
	p.mu.Lock()
	p.sessions[s] = struct{}{}
	p.mu.Unlock()
}

func (p *Proxy) unregister(s *Session) {
	p.mu.Lock()
	delete(p.sessions, s)
	p.mu.Unlock()
}

// migrateFrom sends every session bound to a newly-unhealthy backend a
// server_migration frame and rewires it onto a healthy alternate,
// subject to each session's own reconnect rate limit.
func (p *Proxy) migrateFrom(failed *Backend) {
	target := p.healthyBackendExcept(failed)
	if target == nil {
		log.Printf("proxy: no healthy backend to migrate connections from %s onto", failed.Name)
		return
	}

	p.mu.Lock()
	var affected []*Session
	for s := range p.sessions {
		if s.backend() == failed {
			affected = append(affected, s)
		}
	}
	p.mu.Unlock()

	log.Printf("proxy: migrating %d connections from %s to %s", len(affected), failed.Name, target.Name)
	for _, s := range affected {
		go s.migrateTo(target)
	}
}

var clientUpgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	HandshakeTimeout:  10 * time.Second,
	EnableCompression: true,
	CheckOrigin:       func(r *http.Request) bool { return true },
}
