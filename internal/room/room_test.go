package room

import (
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hokm/internal/breaker"
	"hokm/internal/coldstore"
	"hokm/internal/datalayer"
	"hokm/internal/hotstore"
	"hokm/internal/identity"
	"hokm/internal/protocol"
	"hokm/internal/ratelimit"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []protocol.OutFrame
}

func (f *fakeConn) Send(frame protocol.OutFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

func (f *fakeConn) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.FrameType()
	}
	return out
}

func (f *fakeConn) last(frameType string) protocol.OutFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].FrameType() == frameType {
			return f.frames[i]
		}
	}
	return nil
}

func newTestRoom(t *testing.T) *Room {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	coldDB := coldstore.NewDatabaseForTest(db)
	hot := hotstore.New(hotstore.Config{Enabled: false})
	dl := datalayer.New(hot, coldDB, breaker.DefaultConfig(), datalayer.DefaultConfig())
	t.Cleanup(dl.Close)

	chat := ratelimit.NewChatLimiter(nil, 5, time.Minute)

	cfg := Config{
		TurnTimeout:      time.Minute,
		DisconnectGrace:  time.Minute,
		GameOverLinger:   time.Minute,
		DataLayerTimeout: time.Second,
	}
	return New("ROOM01", dl, chat, cfg, nil)
}

func fourPlayers() []identity.Player {
	return []identity.Player{
		identity.New("alice", nil),
		identity.New("bob", nil),
		identity.New("carol", nil),
		identity.New("dave", nil),
	}
}

func TestJoinAutoStartsOnFourthPlayer(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	conns := make([]*fakeConn, 4)

	for i, p := range players {
		conns[i] = &fakeConn{}
		seat, err := r.Join(p, conns[i])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, seat, 0)
	}

	// every connection should have received join_success plus, once
	// seats filled, team_assignment and their own initial_deal
	for _, c := range conns {
		types := c.types()
		assert.Contains(t, types, "join_success")
		assert.Contains(t, types, "team_assignment")
		assert.Contains(t, types, "initial_deal")
	}
}

func TestJoinRejectsDuplicateAndFullRoom(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	for _, p := range players {
		_, err := r.Join(p, &fakeConn{})
		require.NoError(t, err)
	}

	_, err := r.Join(players[0], &fakeConn{})
	assert.Error(t, err)

	fifth := identity.New("eve", nil)
	_, err = r.Join(fifth, &fakeConn{})
	assert.Error(t, err)
}

func TestSelectHokmByNonHakemRejected(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	for _, p := range players {
		_, err := r.Join(p, &fakeConn{})
		require.NoError(t, err)
	}

	var hakemID uuid.UUID
	var notHakemID uuid.UUID
	r.submit(func() {
		hakemID = r.state.Seating[r.state.Hakem]
		for _, p := range players {
			if p.ID != hakemID {
				notHakemID = p.ID
				break
			}
		}
	})

	err := r.SelectHokm(notHakemID, "hearts")
	assert.Error(t, err)

	err = r.SelectHokm(hakemID, "hearts")
	assert.NoError(t, err)
}

func TestLeaveAndRejoin(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	conns := make([]*fakeConn, 4)
	for i, p := range players {
		conns[i] = &fakeConn{}
		_, err := r.Join(p, conns[i])
		require.NoError(t, err)
	}

	err := r.Leave(players[0].ID)
	require.NoError(t, err)

	newConn := &fakeConn{}
	err = r.Rejoin(players[0], newConn)
	require.NoError(t, err)
	assert.Contains(t, newConn.types(), "phase_change")
	assert.Contains(t, newConn.types(), "team_assignment")
}

// TestRejoinMidGameResendsTeamsHakemAndHand advances a room all the way
// into gameplay, then checks a reconnecting player's snapshot carries
// the same team/hakem/hand state as the rest of the room, per the
// mid-game reconnect guarantee.
func TestRejoinMidGameResendsTeamsHakemAndHand(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	conns := make([]*fakeConn, 4)
	for i, p := range players {
		conns[i] = &fakeConn{}
		_, err := r.Join(p, conns[i])
		require.NoError(t, err)
	}

	var hakemID uuid.UUID
	var teams [4]int
	var hakemSeat int
	r.submit(func() {
		hakemID = r.state.Seating[r.state.Hakem]
		teams = r.state.Teams
		hakemSeat = r.state.Hakem
	})

	err := r.SelectHokm(hakemID, "hearts")
	require.NoError(t, err)

	rejoining := players[0]
	err = r.Leave(rejoining.ID)
	require.NoError(t, err)

	var wantHand []string
	r.submit(func() {
		seat := r.state.SeatOf(rejoining.ID)
		wantHand = cardsToWire(r.state.Hands[seat])
	})

	newConn := &fakeConn{}
	err = r.Rejoin(rejoining, newConn)
	require.NoError(t, err)

	teamFrame, ok := newConn.last("team_assignment").(protocol.TeamAssignment)
	require.True(t, ok, "expected a team_assignment frame on rejoin")
	assert.Equal(t, teams, teamFrame.Teams)
	assert.Equal(t, hakemSeat, teamFrame.Hakem)

	turnFrame, ok := newConn.last("turn_start").(protocol.TurnStart)
	require.True(t, ok, "expected a turn_start frame carrying the hand on rejoin")
	assert.Equal(t, wantHand, turnFrame.Hand)
}

func TestRejoinUnseatedPlayerFails(t *testing.T) {
	r := newTestRoom(t)
	stranger := identity.New("stranger", nil)
	err := r.Rejoin(stranger, &fakeConn{})
	assert.Error(t, err)
}

func TestChatBroadcastsToSeatedPlayers(t *testing.T) {
	r := newTestRoom(t)
	players := fourPlayers()
	conns := make([]*fakeConn, 4)
	for i, p := range players {
		conns[i] = &fakeConn{}
		_, err := r.Join(p, conns[i])
		require.NoError(t, err)
	}

	err := r.Chat(players[0].ID, "good luck")
	require.NoError(t, err)

	for _, c := range conns {
		assert.Contains(t, c.types(), "chat")
	}
}

func TestChatFromUnseatedPlayerFails(t *testing.T) {
	r := newTestRoom(t)
	stranger := identity.New("stranger", nil)
	err := r.Chat(stranger.ID, "hi")
	assert.Error(t, err)
}
