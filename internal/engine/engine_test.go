package engine

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hokm/internal/carddeck"
)

func fourPlayers() [4]uuid.UUID {
	return [4]uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
}

func dealtState(t *testing.T, seed int64) (State, *rand.Rand) {
	rng := rand.New(rand.NewSource(seed))
	s := Seat(fourPlayers())
	s, err := AssignTeamsAndHakem(s, rng)
	require.NoError(t, err)
	s, err = DealInitial(s, rng)
	require.NoError(t, err)
	suit := carddeck.Hearts
	s, err = SelectHokm(s, s.Seating[s.Hakem], suit.String())
	require.NoError(t, err)
	s, err = DealFinal(s)
	require.NoError(t, err)
	return s, rng
}

func TestFullDealInvariants(t *testing.T) {
	s, _ := dealtState(t, 1)
	total := 0
	for seat := 0; seat < 4; seat++ {
		assert.Len(t, s.Hands[seat], 13)
		total += len(s.Hands[seat])
	}
	assert.Equal(t, 52, total+len(s.PlayedCards))

	seen := make(map[carddeck.Card]bool)
	for seat := 0; seat < 4; seat++ {
		for _, c := range s.Hands[seat] {
			assert.False(t, seen[c])
			seen[c] = true
		}
	}
	assert.Len(t, seen, 52)
}

func TestSelectHokmRejectsNonHakem(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	s := Seat(fourPlayers())
	s, err := AssignTeamsAndHakem(s, rng)
	require.NoError(t, err)
	s, err = DealInitial(s, rng)
	require.NoError(t, err)

	notHakem := s.Seating[(s.Hakem+1)%4]
	_, err = SelectHokm(s, notHakem, "hearts")
	assert.ErrorIs(t, err, ErrNotHakem)
}

func TestSelectHokmRejectsInvalidSuit(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	s := Seat(fourPlayers())
	s, err := AssignTeamsAndHakem(s, rng)
	require.NoError(t, err)
	s, err = DealInitial(s, rng)
	require.NoError(t, err)
	_, err = SelectHokm(s, s.Seating[s.Hakem], "bogus")
	assert.ErrorIs(t, err, ErrInvalidSuit)
}

// Scenario 1: must-follow-suit.
func TestMustFollowSuit(t *testing.T) {
	s, rng := dealtState(t, 4)
	leader := s.CurrentTurn
	ledCard := s.Hands[leader][0]
	s, _, err := ApplyPlay(s, rng, leader, ledCard)
	require.NoError(t, err)

	next := s.CurrentTurn
	// Force the next seat's hand to contain a card of the led suit and
	// an off-suit card, matching the spec's concrete example shape.
	s.Hands[next] = []carddeck.Card{
		{Rank: carddeck.Two, Suit: *s.LedSuit},
		{Rank: carddeck.King, Suit: otherSuit(*s.LedSuit)},
	}
	offSuitCard := s.Hands[next][1]
	err = ValidatePlay(s, next, offSuitCard)
	assert.ErrorIs(t, err, ErrMustFollowSuit)

	followCard := s.Hands[next][0]
	err = ValidatePlay(s, next, followCard)
	assert.NoError(t, err)
}

func otherSuit(s carddeck.Suit) carddeck.Suit {
	if s == carddeck.Spades {
		return carddeck.Clubs
	}
	return carddeck.Spades
}

// Scenario 2: trump beats led suit.
func TestTrumpBeatsLed(t *testing.T) {
	s, rng := dealtState(t, 5)
	trump := carddeck.Spades
	s.Hokm = &trump

	seats := [4]int{s.CurrentTurn, (s.CurrentTurn + 1) % 4, (s.CurrentTurn + 2) % 4, (s.CurrentTurn + 3) % 4}
	plays := []carddeck.Card{
		{Rank: carddeck.Ace, Suit: carddeck.Diamonds},
		{Rank: carddeck.King, Suit: carddeck.Diamonds},
		{Rank: carddeck.Two, Suit: carddeck.Spades},
		{Rank: carddeck.Queen, Suit: carddeck.Diamonds},
	}
	for i, seat := range seats {
		s.Hands[seat] = []carddeck.Card{plays[i]}
	}
	s.CurrentTurn = seats[0]
	s.LedSuit = nil

	var outcome TrickOutcome
	var err error
	for i, seat := range seats {
		s, outcome, err = ApplyPlay(s, rng, seat, plays[i])
		require.NoError(t, err)
	}
	assert.True(t, outcome.TrickResolved)
	assert.Equal(t, seats[2], outcome.TrickWinner)
}

// Scenario 3 & 4: hand completion at 7 tricks and game over.
func TestHandCompletionAndGameOver(t *testing.T) {
	s, rng := dealtState(t, 6)
	s.TricksWon = [2]int{6, 0}
	team0Seats := []int{}
	for seat := 0; seat < 4; seat++ {
		if s.TeamOf(seat) == 0 {
			team0Seats = append(team0Seats, seat)
		}
	}
	winningSeat := team0Seats[0]
	card := carddeck.Card{Rank: carddeck.Ace, Suit: carddeck.Hearts}
	s.Hands[winningSeat] = []carddeck.Card{card}
	s.CurrentTrick = []Play{
		{Seat: (winningSeat + 1) % 4, Card: {Rank: carddeck.Two, Suit: carddeck.Hearts}},
		{Seat: (winningSeat + 2) % 4, Card: {Rank: carddeck.Three, Suit: carddeck.Hearts}},
		{Seat: (winningSeat + 3) % 4, Card: {Rank: carddeck.Four, Suit: carddeck.Hearts}},
	}
	led := carddeck.Hearts
	s.LedSuit = &led
	s.CurrentTurn = winningSeat

	s, outcome, err := ApplyPlay(s, rng, winningSeat, card)
	require.NoError(t, err)
	assert.True(t, outcome.HandComplete)
	assert.Equal(t, 0, outcome.HandWinner)
	assert.Equal(t, 1, s.RoundsWon[0])
	assert.False(t, outcome.GameOver)
	assert.Equal(t, PhaseInitialDeal, s.Phase)

	// Game over path: rounds_won = [6,3], team 0 wins the next hand.
	s.RoundsWon = [2]int{6, 3}
	s.Phase = PhaseGameplay
	s.TricksWon = [2]int{6, 0}
	s.Hands[winningSeat] = []carddeck.Card{card}
	s.CurrentTrick = []Play{
		{Seat: (winningSeat + 1) % 4, Card: {Rank: carddeck.Two, Suit: carddeck.Hearts}},
		{Seat: (winningSeat + 2) % 4, Card: {Rank: carddeck.Three, Suit: carddeck.Hearts}},
		{Seat: (winningSeat + 3) % 4, Card: {Rank: carddeck.Four, Suit: carddeck.Hearts}},
	}
	s.LedSuit = &led
	s.Hokm = &led
	s.CurrentTurn = winningSeat

	s, outcome, err = ApplyPlay(s, rng, winningSeat, card)
	require.NoError(t, err)
	assert.True(t, outcome.GameOver)
	assert.Equal(t, PhaseGameOver, s.Phase)

	err = ValidatePlay(s, s.CurrentTurn, card)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestValidatePlayWrongTurn(t *testing.T) {
	s, _ := dealtState(t, 7)
	other := (s.CurrentTurn + 1) % 4
	err := ValidatePlay(s, other, s.Hands[other][0])
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestValidatePlayCardNotInHand(t *testing.T) {
	s, _ := dealtState(t, 8)
	fake := carddeck.Card{Rank: carddeck.Ace, Suit: carddeck.Hearts}
	for handContains(s.Hands[s.CurrentTurn], fake) {
		fake.Rank++
	}
	err := ValidatePlay(s, s.CurrentTurn, fake)
	assert.ErrorIs(t, err, ErrCardNotInHand)
}
