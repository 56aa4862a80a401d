// Package websocket is the connection gateway: it upgrades HTTP
// connections to WebSockets, authenticates and routes frames to
// internal/session, internal/authsvc, and internal/room, and
// translates internal errors into wire error frames. Generalized from
// a single process-wide broadcast hub to a thin per-connection router
// over many independent Room Coordinators.
package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"hokm/internal/authsvc"
	"hokm/internal/protocol"
	"hokm/internal/room"
	"hokm/internal/session"
)

// Hub owns the collaborators needed to service connections: auth,
// sessions, and the room registry. It holds no per-connection state of
// its own; every live connection manages itself via its own Client.
type Hub struct {
	auth     *authsvc.Service
	sessions *session.Store
	rooms    *room.Registry
}

// NewHub wires the gateway's three collaborators.
func NewHub(auth *authsvc.Service, sessions *session.Store, rooms *room.Registry) *Hub {
	return &Hub{auth: auth, sessions: sessions, rooms: rooms}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:    1024,
	WriteBufferSize:   4096,
	HandshakeTimeout:  10 * time.Second,
	EnableCompression: true,
	CheckOrigin: func(r *http.Request) bool {
		// Origin allowlisting belongs to the edge proxy / reverse
		// proxy in front of this server, not the game server itself.
		return true
	},
}

// HandleWebSocket upgrades the connection and hands it to a fresh
// Client. Authentication happens per-frame over the socket (an auth
// frame is the first message a client must send), matching the wire
// protocol's auth frame rather than a query-string token.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("wsgateway: upgrade failed: %v", err)
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan protocol.OutFrame, 64),
	}
	go client.writePump()
	go client.readPump()
}

// Send implements room.Connection over a live client's outbound queue.
func (c *Client) Send(frame protocol.OutFrame) error {
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendBufferFull
	}
}

var errSendBufferFull = errSendFull{}

type errSendFull struct{}

func (errSendFull) Error() string { return "wsgateway: client send buffer full" }
