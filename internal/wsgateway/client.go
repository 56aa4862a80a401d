package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"hokm/internal/authsvc"
	"hokm/internal/carddeck"
	"hokm/internal/engine"
	"hokm/internal/identity"
	"hokm/internal/protocol"
	"hokm/internal/ratelimit"
	"hokm/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	opTimeout      = 5 * time.Second
)

// Client owns one live WebSocket connection and the session/room state
// bound to it over that connection's lifetime.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan protocol.OutFrame

	sess     *session.Session
	player   identity.Player
	roomCode string
}

// readPump decodes inbound frames and dispatches them; it owns the
// connection's lifecycle and unregisters session/room state on exit.
func (c *Client) readPump() {
	defer c.cleanup()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("wsgateway: read error: %v", err)
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.sendError(protocol.CodeProtocolError, "malformed frame")
			continue
		}
		c.dispatch(env.Type, raw)
	}
}

// writePump serializes outbound frames and pings the peer, the
// single-writer side of the connection required by gorilla/websocket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.writeFrame(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeFrame tags the frame's fields with its type, flattened into a
// single JSON object rather than nested under a "data" key, matching
// the wire protocol's flat frame shape.
func (c *Client) writeFrame(frame protocol.OutFrame) error {
	body, err := json.Marshal(frame)
	if err != nil {
		log.Printf("wsgateway: marshal frame: %v", err)
		return nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		log.Printf("wsgateway: flatten frame: %v", err)
		return nil
	}
	fields["type"] = frame.FrameType()
	data, err := json.Marshal(fields)
	if err != nil {
		log.Printf("wsgateway: marshal frame: %v", err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) dispatch(frameType string, raw []byte) {
	switch frameType {
	case "auth":
		c.handleAuth(raw)
	case "auth_token":
		c.handleAuthToken(raw)
	case "join":
		c.handleJoin(raw)
	case "rejoin":
		c.handleRejoin(raw)
	case "leave":
		c.handleLeave(raw)
	case "hokm_selected":
		c.handleHokmSelection(raw)
	case "play_card":
		c.handlePlayCard(raw)
	case "chat":
		c.handleChat(raw)
	case "heartbeat":
		c.handleHeartbeat()
	case "health_check":
		c.Send(protocol.HealthCheckAck{})
	default:
		c.sendError(protocol.CodeProtocolError, "unknown frame type: "+frameType)
	}
}

func (c *Client) handleAuth(raw []byte) {
	var f protocol.AuthFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed auth frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	player, _, err := c.hub.auth.Authenticate(ctx, f.Username, f.Password)
	if err != nil {
		c.Send(protocol.AuthFailed{Reason: authFailureReason(err)})
		return
	}
	c.bindSession(player)
}

func (c *Client) handleAuthToken(raw []byte) {
	var f protocol.AuthTokenFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed auth_token frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	player, err := c.hub.auth.Validate(ctx, f.Token)
	if err != nil {
		c.Send(protocol.AuthFailed{Reason: "session expired"})
		return
	}
	c.bindSession(player)
}

func (c *Client) bindSession(player identity.Player) {
	sess, err := c.hub.sessions.Create(player.ID)
	if err != nil {
		c.sendError(protocol.CodeInternalError, "could not create session")
		return
	}
	c.sess = sess
	c.player = player
	c.Send(protocol.AuthSuccess{PlayerID: player.ID.String(), Token: sess.Token})
}

func (c *Client) handleJoin(raw []byte) {
	if !c.authenticated() {
		return
	}
	var f protocol.JoinFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed join frame")
		return
	}

	r := c.hub.rooms.JoinOrCreate(f.RoomCode)
	if _, err := r.Join(c.player, c); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
		return
	}
	c.roomCode = f.RoomCode
	c.hub.sessions.BindRoom(c.sess.Token, f.RoomCode)
}

func (c *Client) handleRejoin(raw []byte) {
	if !c.authenticated() {
		return
	}
	var f protocol.RejoinFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed rejoin frame")
		return
	}

	r := c.hub.rooms.Get(f.RoomCode)
	if r == nil {
		c.sendError(protocol.CodeWrongPhase, "room not found")
		return
	}
	if err := r.Rejoin(c.player, c); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
		return
	}
	c.roomCode = f.RoomCode
	c.hub.sessions.BindRoom(c.sess.Token, f.RoomCode)
}

func (c *Client) handleLeave(raw []byte) {
	if !c.authenticated() || c.roomCode == "" {
		return
	}
	r := c.hub.rooms.Get(c.roomCode)
	if r == nil {
		return
	}
	if err := r.Leave(c.player.ID); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
		return
	}
	c.hub.sessions.MarkDisconnected(c.sess.Token)
}

func (c *Client) handleHokmSelection(raw []byte) {
	if !c.requireRoom() {
		return
	}
	var f protocol.HokmSelectedFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed hokm_selected frame")
		return
	}
	r := c.hub.rooms.Get(c.roomCode)
	if r == nil {
		c.sendError(protocol.CodeWrongPhase, "room not found")
		return
	}
	if err := r.SelectHokm(c.player.ID, f.Suit); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
	}
}

func (c *Client) handlePlayCard(raw []byte) {
	if !c.requireRoom() {
		return
	}
	var f protocol.PlayCardFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed play_card frame")
		return
	}
	card, err := carddeck.ParseCard(f.Card)
	if err != nil {
		c.sendError(protocol.CodeInvalidCard, err.Error())
		return
	}
	r := c.hub.rooms.Get(c.roomCode)
	if r == nil {
		c.sendError(protocol.CodeWrongPhase, "room not found")
		return
	}
	if err := r.PlayCard(c.player.ID, card); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
	}
}

func (c *Client) handleChat(raw []byte) {
	if !c.requireRoom() {
		return
	}
	var f protocol.ChatFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		c.sendError(protocol.CodeProtocolError, "malformed chat frame")
		return
	}
	r := c.hub.rooms.Get(c.roomCode)
	if r == nil {
		return
	}
	if err := r.Chat(c.player.ID, f.Text); err != nil {
		c.sendError(codeForRoomError(err), err.Error())
	}
}

func (c *Client) handleHeartbeat() {
	if c.sess != nil {
		c.hub.sessions.Heartbeat(c.sess.Token)
	}
}

func (c *Client) authenticated() bool {
	if c.sess == nil {
		c.sendError(protocol.CodeSessionExpired, "not authenticated")
		return false
	}
	return true
}

func (c *Client) requireRoom() bool {
	if !c.authenticated() {
		return false
	}
	if c.roomCode == "" {
		c.sendError(protocol.CodeWrongPhase, "not in a room")
		return false
	}
	return true
}

func (c *Client) sendError(code, message string) {
	c.Send(protocol.ErrorFrame{Code: code, Message: message})
}

func (c *Client) cleanup() {
	if c.sess != nil && c.roomCode != "" {
		if r := c.hub.rooms.Get(c.roomCode); r != nil {
			r.Leave(c.player.ID)
		}
		c.hub.sessions.MarkDisconnected(c.sess.Token)
	}
	close(c.send)
	c.conn.Close()
}

// codeForRoomError translates an internal sentinel error into the
// wire error taxonomy. Internal error text never reaches the client
// directly through this path; only the code and the error's own
// message (which is already user-safe across this codebase) do.
func codeForRoomError(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotYourTurn):
		return protocol.CodeNotYourTurn
	case errors.Is(err, engine.ErrWrongPhase):
		return protocol.CodeWrongPhase
	case errors.Is(err, engine.ErrCardNotInHand):
		return protocol.CodeInvalidCard
	case errors.Is(err, engine.ErrMustFollowSuit):
		return protocol.CodeMustFollowSuit
	case errors.Is(err, engine.ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, engine.ErrAlreadySeated), errors.Is(err, engine.ErrNotSeated):
		return protocol.CodeWrongPhase
	case errors.Is(err, engine.ErrNotHakem), errors.Is(err, engine.ErrInvalidSuit):
		return protocol.CodeWrongPhase
	case errors.Is(err, ratelimit.ErrRateLimited):
		return protocol.CodeRateLimited
	default:
		return protocol.CodeInternalError
	}
}

func authFailureReason(err error) string {
	if errors.Is(err, authsvc.ErrInvalidCredentials) {
		return "invalid username or password"
	}
	return "authentication failed"
}
