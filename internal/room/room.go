// Package room implements the Room Coordinator: the single-writer
// authority over one room's Game State. All mutation flows through a
// single goroutine draining a command channel, the same actor shape
// as a connection hub's run loop generalized from one instance per
// process to one instance per room.
package room

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"hokm/internal/carddeck"
	"hokm/internal/coldstore"
	"hokm/internal/datalayer"
	"hokm/internal/engine"
	"hokm/internal/identity"
	"hokm/internal/protocol"
	"hokm/internal/ratelimit"
)

// Connection is the Room Coordinator's view of a client connection:
// anything that can be handed an outbound frame. wsgateway supplies
// the real implementation; tests supply a recording fake.
type Connection interface {
	Send(frame protocol.OutFrame) error
}

// Config holds the Room Coordinator's timing policy.
type Config struct {
	TurnTimeout      time.Duration
	DisconnectGrace  time.Duration
	GameOverLinger   time.Duration
	DataLayerTimeout time.Duration
}

// Room owns one room's Game State and is the sole writer of it.
type Room struct {
	Code   string
	gameID uuid.UUID

	cmds   chan func()
	stopCh chan struct{}

	state            engine.State
	lastBroadcastPhase engine.Phase
	handNumber       int
	moveLog          []coldstore.GameMove
	startedAt        time.Time

	conns          map[uuid.UUID]Connection
	usernames      map[uuid.UUID]string
	disconnectedAt map[uuid.UUID]time.Time
	graceTimers    map[uuid.UUID]*time.Timer
	turnTimer      *time.Timer

	rng *rand.Rand

	dl   *datalayer.DataLayer
	chat *ratelimit.ChatLimiter
	cfg  Config

	onDestroy func(code string)
}

// New creates an empty room in waiting_for_players and starts its
// command loop.
func New(code string, dl *datalayer.DataLayer, chat *ratelimit.ChatLimiter, cfg Config, onDestroy func(string)) *Room {
	r := &Room{
		Code:           code,
		gameID:         uuid.New(),
		cmds:           make(chan func(), 64),
		stopCh:         make(chan struct{}),
		state:          engine.NewState([4]uuid.UUID{}),
		conns:          make(map[uuid.UUID]Connection),
		usernames:      make(map[uuid.UUID]string),
		disconnectedAt: make(map[uuid.UUID]time.Time),
		graceTimers:    make(map[uuid.UUID]*time.Timer),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		dl:             dl,
		chat:           chat,
		cfg:            cfg,
		startedAt:      time.Now(),
		onDestroy:      onDestroy,
	}
	r.lastBroadcastPhase = r.state.Phase
	go r.run()
	return r
}

func (r *Room) run() {
	for {
		select {
		case <-r.stopCh:
			return
		case fn := <-r.cmds:
			fn()
		}
	}
}

// submit runs fn on the room's single writer goroutine and blocks
// until it completes.
func (r *Room) submit(fn func()) {
	done := make(chan struct{})
	select {
	case r.cmds <- func() { fn(); close(done) }:
		<-done
	case <-r.stopCh:
	}
}

// Stop shuts down the room's command loop without further cleanup;
// used by the registry once a room's linger period elapses.
func (r *Room) Stop() {
	close(r.stopCh)
}

// Join seats a new player, auto-starting the hand once all four seats
// are filled.
func (r *Room) Join(player identity.Player, conn Connection) (int, error) {
	var seat int
	var err error
	r.submit(func() {
		if r.state.SeatOf(player.ID) != -1 {
			err = engine.ErrAlreadySeated
			return
		}
		seat = -1
		for i, p := range r.state.Seating {
			if p == uuid.Nil {
				seat = i
				break
			}
		}
		if seat == -1 {
			err = engine.ErrRoomFull
			return
		}
		r.state.Seating[seat] = player.ID
		r.conns[player.ID] = conn
		r.usernames[player.ID] = player.Username

		r.sendTo(player.ID, protocol.JoinSuccess{
			RoomCode: r.Code,
			Seat:     seat,
			Players:  r.playerList(),
		})
		r.persist(context.Background(), "")

		if r.state.EmptySeats() == 0 {
			r.startHand()
		}
	})
	return seat, err
}

// Rejoin re-binds a connection to a previously seated player still
// within its grace window and sends a full private state snapshot.
func (r *Room) Rejoin(player identity.Player, conn Connection) error {
	var err error
	r.submit(func() {
		seat := r.state.SeatOf(player.ID)
		if seat == -1 {
			err = engine.ErrNotSeated
			return
		}
		r.conns[player.ID] = conn
		delete(r.disconnectedAt, player.ID)
		r.cancelGraceTimer(player.ID)

		r.broadcastAll(protocol.PlayerReconnected{Player: r.usernames[player.ID]})
		r.sendSnapshot(player.ID, seat)

		if r.state.Phase == engine.PhaseGameplay && r.state.CurrentTurn == seat {
			r.armTurnTimer()
		}
	})
	return err
}

// Leave marks a seated player disconnected and starts their grace
// window. The seat is retained; the game is aborted only on grace
// expiry.
func (r *Room) Leave(playerID uuid.UUID) error {
	var err error
	r.submit(func() {
		seat := r.state.SeatOf(playerID)
		if seat == -1 {
			err = engine.ErrNotSeated
			return
		}
		r.conns[playerID] = nil
		r.disconnectedAt[playerID] = time.Now()
		r.broadcastAll(protocol.PlayerDisconnected{Player: r.usernames[playerID]})

		if r.state.Phase == engine.PhaseGameplay && r.state.CurrentTurn == seat {
			r.cancelTurnTimer()
		}
		r.armGraceTimer(playerID)
	})
	return err
}

// SelectHokm delegates hokm selection to the engine and, on success,
// deals the remaining cards and starts gameplay.
func (r *Room) SelectHokm(playerID uuid.UUID, suit string) error {
	var err error
	r.submit(func() {
		s, selErr := engine.SelectHokm(r.state, playerID, suit)
		if selErr != nil {
			err = selErr
			return
		}
		r.state = s
		r.transitionTo(s.Phase)
		r.broadcastAll(protocol.HokmSelected{Suit: suit})
		r.persist(context.Background(), "")

		s2, dealErr := engine.DealFinal(r.state)
		if dealErr != nil {
			err = dealErr
			return
		}
		r.state = s2
		r.transitionTo(s2.Phase)
		for seat, pid := range s2.Seating {
			r.sendTo(pid, protocol.FinalDeal{Hand: cardsToWire(s2.Hands[seat])})
		}
		r.persist(context.Background(), "")
		r.armTurnTimer()
		r.broadcastTurnStart()
	})
	return err
}

// PlayCard validates and applies a play, broadcasting the resulting
// trick/hand/game events.
func (r *Room) PlayCard(playerID uuid.UUID, card carddeck.Card) error {
	var err error
	r.submit(func() {
		seat := r.state.SeatOf(playerID)
		if seat == -1 {
			err = engine.ErrNotSeated
			return
		}
		if valErr := engine.ValidatePlay(r.state, seat, card); valErr != nil {
			err = valErr
			return
		}
		r.cancelTurnTimer()
		r.applyPlay(seat, card)
	})
	return err
}

// Chat broadcasts a chat message to all seated players, subject to the
// chat rate limiter.
func (r *Room) Chat(playerID uuid.UUID, text string) error {
	var err error
	r.submit(func() {
		if r.state.SeatOf(playerID) == -1 {
			err = engine.ErrNotSeated
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DataLayerTimeout)
		defer cancel()
		allowed, rlErr := r.chat.Allow(ctx, r.Code, playerID.String())
		if rlErr != nil {
			log.Printf("room %s: chat rate limit check failed, allowing: %v", r.Code, rlErr)
			allowed = true
		}
		if !allowed {
			err = ratelimit.ErrRateLimited
			return
		}
		r.broadcastAll(protocol.ChatBroadcast{Player: r.usernames[playerID], Text: text})
	})
	return err
}

// applyPlay runs a pre-validated play through the engine and
// broadcasts every resulting event, including cascading hand and game
// completion. Must run on the room's writer goroutine.
func (r *Room) applyPlay(seat int, card carddeck.Card) {
	s, outcome, err := engine.ApplyPlay(r.state, r.rng, seat, card)
	if err != nil {
		log.Printf("room %s: apply play failed unexpectedly: %v", r.Code, err)
		return
	}
	playerID := r.state.Seating[seat]
	r.moveLog = append(r.moveLog, coldstore.GameMove{
		GameID: r.gameID.String(), RoomCode: r.Code, HandNumber: r.handNumber,
		Seat: seat, Card: card, PlayedAt: time.Now(),
	})

	r.broadcastAll(protocol.CardPlayed{Player: r.usernames[playerID], Card: card.String()})

	if outcome.TrickResolved {
		r.broadcastAll(protocol.TrickResult{
			Winner:     r.usernames[r.state.Seating[outcome.TrickWinner]],
			TeamTricks: s.TricksWon,
		})
	}

	r.state = s
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DataLayerTimeout)
	defer cancel()
	if err := r.dl.Put(ctx, datalayer.EntityMoveLog, hotstoreMovesKey(r.Code), r.moveLog, ""); err != nil {
		log.Printf("room %s: persist move log failed: %v", r.Code, err)
	}

	if !outcome.HandComplete {
		r.persist(context.Background(), "")
		r.armTurnTimer()
		r.broadcastTurnStart()
		return
	}

	r.transitionTo(engine.PhaseHandComplete)
	r.broadcastAll(protocol.HandComplete{WinningTeam: outcome.HandWinner, RoundScores: s.RoundsWon})
	r.persist(context.Background(), "hand_complete")
	r.handNumber++

	if outcome.GameOver {
		r.transitionTo(engine.PhaseGameOver)
		r.broadcastAll(protocol.GameOver{WinningTeam: outcome.GameWinner, FinalScores: s.RoundsWon})
		r.finishGame(outcome.GameWinner)
		return
	}

	// Engine already rotated to a fresh initial_deal state; deal the
	// next hand immediately.
	r.transitionTo(r.state.Phase)
	s2, dealErr := engine.DealInitial(r.state, r.rng)
	if dealErr != nil {
		log.Printf("room %s: deal next hand failed: %v", r.Code, dealErr)
		return
	}
	r.state = s2
	r.transitionTo(s2.Phase)
	for i, pid := range s2.Seating {
		r.sendTo(pid, protocol.InitialDeal{Hand: cardsToWire(s2.Hands[i]), IsHakem: i == s2.Hakem})
	}
	r.persist(context.Background(), "")
}

// startHand fixes teams and the hakem, then deals the first hand.
// Must run on the room's writer goroutine.
func (r *Room) startHand() {
	s, err := engine.AssignTeamsAndHakem(r.state, r.rng)
	if err != nil {
		log.Printf("room %s: assign teams failed: %v", r.Code, err)
		return
	}
	r.state = s
	r.broadcastAll(protocol.TeamAssignment{Teams: s.Teams, Hakem: s.Hakem})
	r.persist(context.Background(), "")

	s2, err := engine.DealInitial(r.state, r.rng)
	if err != nil {
		log.Printf("room %s: initial deal failed: %v", r.Code, err)
		return
	}
	r.state = s2
	r.transitionTo(s2.Phase)
	for seat, pid := range s2.Seating {
		r.sendTo(pid, protocol.InitialDeal{Hand: cardsToWire(s2.Hands[seat]), IsHakem: seat == s2.Hakem})
	}
	r.persist(context.Background(), "")
}

func (r *Room) onTurnTimeout() {
	if r.state.Phase != engine.PhaseGameplay {
		return
	}
	seat := r.state.CurrentTurn
	card, ok := r.firstLegalCard(seat)
	if !ok {
		return
	}
	r.applyPlay(seat, card)
}

func (r *Room) onGraceExpired(playerID uuid.UUID) {
	if _, stillDisconnected := r.disconnectedAt[playerID]; !stillDisconnected {
		return
	}
	seat := r.state.SeatOf(playerID)
	if seat == -1 {
		return
	}
	r.state.Seating[seat] = uuid.Nil
	r.state.Phase = engine.PhaseGameOver
	r.cancelTurnTimer()
	r.transitionTo(engine.PhaseGameOver)
	r.broadcastAll(protocol.GameOver{WinningTeam: -1, FinalScores: r.state.RoundsWon})
	r.finishGame(-1)
}

func (r *Room) finishGame(winningTeam int) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DataLayerTimeout)
	defer cancel()

	game := coldstore.CompletedGame{
		ID: r.gameID, RoomCode: r.Code, WinningTeam: winningTeam,
		FinalScores: r.state.RoundsWon, StartedAt: r.startedAt, CompletedAt: time.Now(),
	}
	for seat, pid := range r.state.Seating {
		if pid == uuid.Nil {
			continue
		}
		game.Participants = append(game.Participants, coldstore.GameParticipant{
			PlayerID: pid, Seat: seat, Team: r.state.TeamOf(seat), Won: r.state.TeamOf(seat) == winningTeam,
		})
	}
	if err := r.dl.RecordCompletedGame(ctx, game, r.moveLog); err != nil {
		log.Printf("room %s: record completed game failed: %v", r.Code, err)
	}

	if r.onDestroy != nil {
		time.AfterFunc(r.cfg.GameOverLinger, func() { r.onDestroy(r.Code) })
	}
}

func (r *Room) firstLegalCard(seat int) (carddeck.Card, bool) {
	hand := r.state.Hands[seat]
	if len(hand) == 0 {
		return carddeck.Card{}, false
	}
	if r.state.LedSuit != nil {
		for _, c := range hand {
			if c.Suit == *r.state.LedSuit {
				return c, true
			}
		}
	}
	return hand[0], true
}

func (r *Room) armTurnTimer() {
	r.cancelTurnTimer()
	r.turnTimer = time.AfterFunc(r.cfg.TurnTimeout, func() {
		r.submit(r.onTurnTimeout)
	})
}

func (r *Room) cancelTurnTimer() {
	if r.turnTimer != nil {
		r.turnTimer.Stop()
		r.turnTimer = nil
	}
}

func (r *Room) armGraceTimer(playerID uuid.UUID) {
	r.cancelGraceTimer(playerID)
	r.graceTimers[playerID] = time.AfterFunc(r.cfg.DisconnectGrace, func() {
		r.submit(func() { r.onGraceExpired(playerID) })
	})
}

func (r *Room) cancelGraceTimer(playerID uuid.UUID) {
	if t, ok := r.graceTimers[playerID]; ok {
		t.Stop()
		delete(r.graceTimers, playerID)
	}
}

func (r *Room) broadcastTurnStart() {
	current := r.state.Seating[r.state.CurrentTurn]
	for seat, pid := range r.state.Seating {
		if pid == uuid.Nil {
			continue
		}
		r.sendTo(pid, protocol.TurnStart{
			CurrentPlayer: r.usernames[current],
			YourTurn:      pid == current,
			Hand:          cardsToWire(r.state.Hands[seat]),
		})
	}
}

func (r *Room) sendSnapshot(playerID uuid.UUID, seat int) {
	r.sendTo(playerID, protocol.PhaseChange{NewPhase: string(r.state.Phase)})
	if r.state.Phase != engine.PhaseWaitingForPlayers {
		r.sendTo(playerID, protocol.TeamAssignment{Teams: r.state.Teams, Hakem: r.state.Hakem})
	}
	if r.state.Hokm != nil {
		r.sendTo(playerID, protocol.HokmSelected{Suit: r.state.Hokm.String()})
	}
	if r.state.Phase == engine.PhaseGameplay {
		current := r.state.Seating[r.state.CurrentTurn]
		r.sendTo(playerID, protocol.TurnStart{
			CurrentPlayer: r.usernames[current],
			YourTurn:      playerID == current,
			Hand:          cardsToWire(r.state.Hands[seat]),
		})
	}
}

func (r *Room) transitionTo(phase engine.Phase) {
	if phase == r.lastBroadcastPhase {
		return
	}
	r.lastBroadcastPhase = phase
	r.broadcastAll(protocol.PhaseChange{NewPhase: string(phase)})
}

func (r *Room) broadcastAll(frame protocol.OutFrame) {
	for _, pid := range r.state.Seating {
		if pid == uuid.Nil {
			continue
		}
		r.sendTo(pid, frame)
	}
}

func (r *Room) sendTo(playerID uuid.UUID, frame protocol.OutFrame) {
	conn, ok := r.conns[playerID]
	if !ok || conn == nil {
		return
	}
	if err := conn.Send(frame); err != nil {
		log.Printf("room %s: send to %s failed: %v", r.Code, playerID, err)
	}
}

func (r *Room) playerList() []string {
	var out []string
	for _, pid := range r.state.Seating {
		if pid == uuid.Nil {
			continue
		}
		out = append(out, r.usernames[pid])
	}
	return out
}

func (r *Room) persist(ctx context.Context, event string) {
	opCtx, cancel := context.WithTimeout(ctx, r.cfg.DataLayerTimeout)
	defer cancel()
	if err := r.dl.Put(opCtx, datalayer.EntityGameState, r.Code, r.state, event); err != nil {
		log.Printf("room %s: persist game state failed: %v", r.Code, err)
	}
}

func cardsToWire(cards []carddeck.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}

func hotstoreMovesKey(roomCode string) string {
	return "game:" + roomCode + ":moves"
}
