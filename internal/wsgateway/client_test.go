package websocket

import (
	"encoding/json"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hokm/internal/breaker"
	"hokm/internal/coldstore"
	"hokm/internal/datalayer"
	"hokm/internal/hotstore"
	"hokm/internal/identity"
	"hokm/internal/protocol"
	"hokm/internal/ratelimit"
	"hokm/internal/room"
	"hokm/internal/session"
)

func newDispatchTestRoom(t *testing.T) (*room.Room, []*Client) {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	coldDB := coldstore.NewDatabaseForTest(db)
	hot := hotstore.New(hotstore.Config{Enabled: false})
	dl := datalayer.New(hot, coldDB, breaker.DefaultConfig(), datalayer.DefaultConfig())
	t.Cleanup(dl.Close)

	chat := ratelimit.NewChatLimiter(nil, 5, time.Minute)
	cfg := room.Config{
		TurnTimeout:      time.Minute,
		DisconnectGrace:  time.Minute,
		GameOverLinger:   time.Minute,
		DataLayerTimeout: time.Second,
	}
	registry := room.NewRegistry(dl, chat, cfg)
	r := registry.JoinOrCreate("DISPATCH")
	hub := &Hub{rooms: registry}

	players := []identity.Player{
		identity.New("alice", nil),
		identity.New("bob", nil),
		identity.New("carol", nil),
		identity.New("dave", nil),
	}
	clients := make([]*Client, len(players))
	for i, p := range players {
		c := &Client{
			hub:      hub,
			send:     make(chan protocol.OutFrame, 64),
			sess:     &session.Session{PlayerID: p.ID},
			player:   p,
			roomCode: "DISPATCH",
		}
		clients[i] = c
		_, err := r.Join(p, c)
		require.NoError(t, err)
	}
	return r, clients
}

// drain removes every frame currently buffered on a client's send
// channel, so a later assertion only sees frames produced after it.
func drain(c *Client) {
	for len(c.send) > 0 {
		<-c.send
	}
}

// TestDispatchRoutesHokmSelectedToHandler guards the wire frame type
// tag against drifting from the dispatch switch: a client that sends
// "hokm_selected" (the tag spec.md actually uses, both directions)
// must reach handleHokmSelection instead of falling through to the
// unknown-frame-type default, regardless of whether the sender turns
// out to be the hakem.
func TestDispatchRoutesHokmSelectedToHandler(t *testing.T) {
	_, clients := newDispatchTestRoom(t)

	raw, err := json.Marshal(protocol.HokmSelectedFrame{RoomCode: "DISPATCH", Suit: "hearts"})
	require.NoError(t, err)

	sender := clients[0]
	drain(sender)
	sender.dispatch("hokm_selected", raw)

	require.NotEmpty(t, sender.send, "dispatch must have produced a response frame")
	for len(sender.send) > 0 {
		frame := <-sender.send
		if errFrame, ok := frame.(protocol.ErrorFrame); ok {
			assert.NotEqual(t, protocol.CodeProtocolError, errFrame.Code,
				"hokm_selected must not be treated as an unknown frame type")
		}
	}
}

func TestDispatchRejectsUnknownFrameType(t *testing.T) {
	_, clients := newDispatchTestRoom(t)

	sender := clients[0]
	drain(sender)
	sender.dispatch("not_a_real_frame", []byte(`{}`))

	frame := <-sender.send
	errFrame, ok := frame.(protocol.ErrorFrame)
	require.True(t, ok)
	assert.Equal(t, protocol.CodeProtocolError, errFrame.Code)
}
