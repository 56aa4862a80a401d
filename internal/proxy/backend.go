// Package proxy implements the Edge Proxy: the public-facing listener
// that health-checks backend game server instances, forwards client
// connections to a healthy one, and migrates live connections when a
// backend fails. Grounded on the original Python load balancer's
// GameServerLoadBalancer for the health/failover/migration sequence,
// and on internal/wsgateway's client read/write pump shape for the
// actual frame forwarding.
package proxy

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status is a backend's health as seen by the proxy's probes.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Backend is one game server instance the proxy can forward to.
// Backends are tried in the order they're configured, matching
// spec.md's primary/secondary/... total order.
type Backend struct {
	Name string
	URL  string

	mu                  sync.Mutex
	status              Status
	consecutiveFailures int
	connectionCount     int
}

func newBackend(name, url string) *Backend {
	return &Backend{Name: name, URL: url, status: StatusUnknown}
}

func (b *Backend) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// available reports whether new connections may be routed here:
// spec.md's proxy picks the first backend whose health is healthy or
// degraded; this module has no separate "degraded" state, so healthy
// is the sole acceptance criterion.
func (b *Backend) available() bool {
	return b.Status() == StatusHealthy
}

func (b *Backend) incConnections(delta int) {
	b.mu.Lock()
	b.connectionCount += delta
	if b.connectionCount < 0 {
		b.connectionCount = 0
	}
	b.mu.Unlock()
}

// probe dials the backend, sends a health_check frame, and waits up to
// timeout for any response. A response timeout is not itself a
// failure — the original load balancer treats a successful connection
// with no reply as healthy, since most reply-less probes just mean
// the backend doesn't echo the frame.
func (b *Backend) probe(dialTimeout, timeout time.Duration) bool {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(b.URL, nil)
	if err != nil {
		return false
	}
	defer conn.Close()

	frame, _ := json.Marshal(map[string]string{"type": "health_check"})
	conn.SetWriteDeadline(time.Now().Add(timeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return false
	}

	conn.SetReadDeadline(time.Now().Add(timeout))
	_, _, _ = conn.ReadMessage()
	return true
}

// recordResult updates status/failure bookkeeping per a probe result
// and reports whether this transitioned the backend healthy->unhealthy
// (the signal that triggers migration).
func (b *Backend) recordResult(ok bool, failoverThreshold int) (transitionedUnhealthy bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	previous := b.status
	if ok {
		b.consecutiveFailures = 0
		if b.status != StatusHealthy {
			log.Printf("proxy: backend %s is now healthy", b.Name)
		}
		b.status = StatusHealthy
		return false
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= failoverThreshold && b.status != StatusUnhealthy {
		log.Printf("proxy: backend %s marked unhealthy after %d failures", b.Name, b.consecutiveFailures)
		b.status = StatusUnhealthy
		return previous == StatusHealthy
	}
	return false
}
