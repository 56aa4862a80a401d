package engine

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"hokm/internal/carddeck"
)

// Seat returns a fresh State with all four seats filled, in
// waiting_for_players, ready for AssignTeamsAndHakem.
func Seat(players [4]uuid.UUID) State {
	return NewState(players)
}

// AssignTeamsAndHakem partitions seats 0,2 vs 1,3 into teams, picks a
// random hakem seat via the injected PRNG, and rotates the seating so
// the hakem is seat 0. Preconditions: phase == team_assignment (or
// waiting_for_players, for the very first hand) and all seats filled.
func AssignTeamsAndHakem(s State, rng *rand.Rand) (State, error) {
	if s.Phase != PhaseTeamAssignment && s.Phase != PhaseWaitingForPlayers {
		return s, ErrWrongPhase
	}
	if s.EmptySeats() > 0 {
		return s, ErrWrongPhase
	}
	out := clone(s)
	out.Teams = [4]int{0, 1, 0, 1}
	hakemSeat := rng.Intn(4)
	out = rotateSeating(out, hakemSeat)
	out.Hakem = 0
	out.Phase = PhaseInitialDeal
	out.LastActivityAt = time.Now()
	return out, nil
}

// rotateSeating rotates seating and teams so seat `hakemSeat` becomes
// seat 0. Hands and the deck are left as they are.
func rotateSeating(s State, hakemSeat int) State {
	out := clone(s)
	var seating [4]uuid.UUID
	var teams [4]int
	for i := 0; i < 4; i++ {
		src := (hakemSeat + i) % 4
		seating[i] = s.Seating[src]
		teams[i] = s.Teams[src]
	}
	out.Seating = seating
	out.Teams = teams
	return out
}

// DealInitial shuffles a fresh deck and deals five cards to each seat,
// transitioning to hokm_selection. Precondition: phase == initial_deal.
func DealInitial(s State, rng *rand.Rand) (State, error) {
	if s.Phase != PhaseInitialDeal {
		return s, ErrWrongPhase
	}
	deck := carddeck.Shuffle(rng)
	out := clone(s)
	out.Hands = [4][]carddeck.Card{}
	for seat := 0; seat < 4; seat++ {
		out.Hands[seat] = append([]carddeck.Card(nil), deck[seat*5:seat*5+5]...)
	}
	out.pendingDeck = deck[20:]
	out.Phase = PhaseHokmSelection
	out.LastActivityAt = time.Now()
	return out, nil
}

// SelectHokm validates the caller is the hakem and the suit is legal,
// records the trump, and transitions to final_deal.
func SelectHokm(s State, caller uuid.UUID, suit string) (State, error) {
	if s.Phase != PhaseHokmSelection {
		return s, ErrWrongPhase
	}
	if s.SeatOf(caller) != s.Hakem {
		return s, ErrNotHakem
	}
	parsed, err := carddeck.ParseSuit(suit)
	if err != nil {
		return s, ErrInvalidSuit
	}
	out := clone(s)
	out.Hokm = &parsed
	out.Phase = PhaseFinalDeal
	out.LastActivityAt = time.Now()
	return out, nil
}

// DealFinal deals the remaining eight cards (from the deck set aside by
// DealInitial) to each seat, transitions to gameplay, and sets
// current_turn to the hakem.
func DealFinal(s State) (State, error) {
	if s.Phase != PhaseFinalDeal {
		return s, ErrWrongPhase
	}
	out := clone(s)
	rest := s.pendingDeck
	for seat := 0; seat < 4; seat++ {
		out.Hands[seat] = append(append([]carddeck.Card(nil), s.Hands[seat]...), rest[seat*8:seat*8+8]...)
	}
	out.pendingDeck = nil
	out.Phase = PhaseGameplay
	out.CurrentTurn = out.Hakem
	out.TricksWon = [2]int{0, 0}
	out.LastActivityAt = time.Now()
	return out, nil
}

// ValidatePlay checks whether `seat` may legally play `card` right now,
// per spec: correct phase, correct turn, card held, and suit-following.
func ValidatePlay(s State, seat int, card carddeck.Card) error {
	if s.Phase != PhaseGameplay {
		return ErrWrongPhase
	}
	if seat != s.CurrentTurn {
		return ErrNotYourTurn
	}
	if !handContains(s.Hands[seat], card) {
		return ErrCardNotInHand
	}
	if s.LedSuit != nil && card.Suit != *s.LedSuit && handHasSuit(s.Hands[seat], *s.LedSuit) {
		return ErrMustFollowSuit
	}
	return nil
}

func handContains(hand []carddeck.Card, card carddeck.Card) bool {
	for _, c := range hand {
		if c == card {
			return true
		}
	}
	return false
}

func handHasSuit(hand []carddeck.Card, suit carddeck.Suit) bool {
	for _, c := range hand {
		if c.Suit == suit {
			return true
		}
	}
	return false
}

// TrickOutcome describes what happened as a result of ApplyPlay, so the
// Room Coordinator can decide which broadcast events to emit.
type TrickOutcome struct {
	TrickResolved bool
	TrickWinner   int
	HandComplete  bool
	HandWinner    int
	GameOver      bool
	GameWinner    int
}

// ApplyPlay applies a previously validated play: removes the card from
// the seat's hand, advances the trick, resolves it when complete, and
// cascades into hand/game completion per the state machine. Callers
// must call ValidatePlay first; ApplyPlay does not re-validate.
func ApplyPlay(s State, rng *rand.Rand, seat int, card carddeck.Card) (State, TrickOutcome, error) {
	out := clone(s)
	out.Hands[seat] = removeCard(out.Hands[seat], card)
	out.CurrentTrick = append(out.CurrentTrick, Play{Seat: seat, Card: card})
	out.PlayedCards = append(out.PlayedCards, card)
	if out.LedSuit == nil {
		suit := card.Suit
		out.LedSuit = &suit
	}
	out.LastActivityAt = time.Now()

	var outcome TrickOutcome
	if len(out.CurrentTrick) < 4 {
		out.CurrentTurn = (seat + 1) % 4
		return out, outcome, nil
	}

	winner := resolveTrick(out.CurrentTrick, *out.Hokm, *out.LedSuit)
	team := out.TeamOf(winner)
	out.TricksWon[team]++
	out.CurrentTrick = nil
	out.LedSuit = nil
	out.CurrentTurn = winner

	outcome.TrickResolved = true
	outcome.TrickWinner = winner

	tricksPlayed := out.TricksWon[0] + out.TricksWon[1]
	if out.TricksWon[0] >= RoundsToWin || out.TricksWon[1] >= RoundsToWin || tricksPlayed >= TricksPerHand {
		handWinner := 0
		if out.TricksWon[1] > out.TricksWon[0] {
			handWinner = 1
		}
		out.RoundsWon[handWinner]++
		out.Phase = PhaseHandComplete
		outcome.HandComplete = true
		outcome.HandWinner = handWinner

		if out.RoundsWon[handWinner] >= RoundsToWin {
			out.Phase = PhaseGameOver
			outcome.GameOver = true
			outcome.GameWinner = handWinner
		} else {
			out = prepareNextHand(out, rng, handWinner)
		}
	}
	return out, outcome, nil
}

// prepareNextHand resets per-hand state and rotates the hakem to a
// player on the winning team, ready for the next DealInitial.
func prepareNextHand(s State, rng *rand.Rand, winningTeam int) State {
	out := clone(s)
	out.Hands = [4][]carddeck.Card{}
	out.CurrentTrick = nil
	out.PlayedCards = nil
	out.LedSuit = nil
	out.Hokm = nil
	out.TricksWon = [2]int{0, 0}

	candidates := []int{}
	for seat := 0; seat < 4; seat++ {
		if out.TeamOf(seat) == winningTeam {
			candidates = append(candidates, seat)
		}
	}
	newHakemSeat := candidates[rng.Intn(len(candidates))]
	out = rotateSeating(out, newHakemSeat)
	out.Hakem = 0
	out.Phase = PhaseInitialDeal
	return out
}

func removeCard(hand []carddeck.Card, card carddeck.Card) []carddeck.Card {
	out := make([]carddeck.Card, 0, len(hand))
	for _, c := range hand {
		if c != card {
			out = append(out, c)
		}
	}
	return out
}

// resolveTrick determines the winning seat of a completed trick: the
// highest trump if any trump was played, else the highest card of the
// led suit.
func resolveTrick(trick []Play, trump carddeck.Suit, led carddeck.Suit) int {
	bestTrumpIdx := -1
	bestLedIdx := -1
	for i, p := range trick {
		if p.Card.Suit == trump {
			if bestTrumpIdx == -1 || p.Card.Rank > trick[bestTrumpIdx].Card.Rank {
				bestTrumpIdx = i
			}
		} else if p.Card.Suit == led {
			if bestLedIdx == -1 || p.Card.Rank > trick[bestLedIdx].Card.Rank {
				bestLedIdx = i
			}
		}
	}
	if bestTrumpIdx != -1 {
		return trick[bestTrumpIdx].Seat
	}
	return trick[bestLedIdx].Seat
}
