// Package engine implements the pure Hokm rule engine: deck, deal,
// hokm (trump) selection, trick resolution, and hand/game scoring. It
// performs no I/O and has no notion of connections or persistence; the
// Room Coordinator is the sole caller and the sole place mutations are
// made visible.
package engine

import (
	"time"

	"github.com/google/uuid"
	"hokm/internal/carddeck"
)

// Phase is a state in the per-room game state machine.
type Phase string

const (
	PhaseWaitingForPlayers Phase = "waiting_for_players"
	PhaseTeamAssignment    Phase = "team_assignment"
	PhaseInitialDeal       Phase = "initial_deal"
	PhaseHokmSelection     Phase = "hokm_selection"
	PhaseFinalDeal         Phase = "final_deal"
	PhaseGameplay          Phase = "gameplay"
	PhaseHandComplete      Phase = "hand_complete"
	PhaseGameOver          Phase = "game_over"
)

// RoundsToWin is the number of hands a team must win to win the game.
const RoundsToWin = 7

// TricksPerHand is the number of tricks dealt in a single hand.
const TricksPerHand = 13

// Play is one seat's card within a trick, in the order played.
type Play struct {
	Seat int            `json:"seat"`
	Card carddeck.Card  `json:"card"`
}

// State is the complete authoritative game state for one room. It is a
// plain value: every engine operation takes a State and returns a new
// State plus a description of what happened, never mutating shared
// memory behind the caller's back.
type State struct {
	Phase Phase `json:"phase"`

	// Seating holds the four seated player IDs in fixed turn order.
	// The zero uuid.UUID marks an empty seat.
	Seating [4]uuid.UUID `json:"seating"`

	// Teams maps seat index to team 0 or 1 (seats 0,2 vs 1,3).
	Teams [4]int `json:"teams"`

	Hakem int             `json:"hakem"`
	Hokm  *carddeck.Suit  `json:"hokm,omitempty"`

	Hands [4][]carddeck.Card `json:"hands"`

	CurrentTrick []Play         `json:"current_trick"`
	LedSuit      *carddeck.Suit `json:"led_suit,omitempty"`
	CurrentTurn  int            `json:"current_turn"`

	TricksWon [2]int `json:"tricks_won"`
	RoundsWon [2]int `json:"rounds_won"`

	PlayedCards []carddeck.Card `json:"played_cards"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	// pendingDeck holds the remainder of the shuffled deck between the
	// initial and final deal. It is not part of the persisted/broadcast
	// state and is cleared once DealFinal consumes it.
	pendingDeck []carddeck.Card `json:"-"`
}

// NewState returns a freshly initialized state in waiting_for_players
// with the given four seats (zero UUID for unfilled seats).
func NewState(seating [4]uuid.UUID) State {
	now := time.Now()
	return State{
		Phase:          PhaseWaitingForPlayers,
		Seating:        seating,
		Teams:          [4]int{0, 1, 0, 1},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// SeatOf returns the seat index for a player ID, or -1 if not seated.
func (s State) SeatOf(player uuid.UUID) int {
	for i, p := range s.Seating {
		if p == player {
			return i
		}
	}
	return -1
}

// TeamOf returns the team (0 or 1) that owns the given seat.
func (s State) TeamOf(seat int) int {
	return s.Teams[seat]
}

// EmptySeats returns the count of unfilled seats.
func (s State) EmptySeats() int {
	n := 0
	for _, p := range s.Seating {
		if p == uuid.Nil {
			n++
		}
	}
	return n
}

func clone(s State) State {
	out := s
	out.Hands = [4][]carddeck.Card{}
	for i := range s.Hands {
		out.Hands[i] = append([]carddeck.Card(nil), s.Hands[i]...)
	}
	out.CurrentTrick = append([]Play(nil), s.CurrentTrick...)
	out.PlayedCards = append([]carddeck.Card(nil), s.PlayedCards...)
	if s.Hokm != nil {
		h := *s.Hokm
		out.Hokm = &h
	}
	if s.LedSuit != nil {
		l := *s.LedSuit
		out.LedSuit = &l
	}
	out.pendingDeck = append([]carddeck.Card(nil), s.pendingDeck...)
	return out
}
