package carddeck

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCardWireEncodingRoundTrip(t *testing.T) {
	cases := []Card{
		{Rank: Ace, Suit: Hearts},
		{Rank: Ten, Suit: Spades},
		{Rank: Two, Suit: Clubs},
		{Rank: Jack, Suit: Diamonds},
	}
	for _, c := range cases {
		s := c.String()
		parsed, err := ParseCard(s)
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}
	assert.Equal(t, "A_hearts", Card{Rank: Ace, Suit: Hearts}.String())
	assert.Equal(t, "10_spades", Card{Rank: Ten, Suit: Spades}.String())
}

func TestParseCardInvalid(t *testing.T) {
	_, err := ParseCard("zz_hearts")
	assert.Error(t, err)
	_, err = ParseCard("A_nosuit")
	assert.Error(t, err)
	_, err = ParseCard("nodelimiter")
	assert.Error(t, err)
}

func TestNewDeckHas52UniqueCards(t *testing.T) {
	deck := NewDeck()
	require.Len(t, deck, 52)
	seen := make(map[Card]bool, 52)
	for _, c := range deck {
		assert.False(t, seen[c], "duplicate card %v", c)
		seen[c] = true
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := Shuffle(rand.New(rand.NewSource(42)))
	b := Shuffle(rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
	require.Len(t, a, 52)
}

func TestRankOrdering(t *testing.T) {
	assert.Less(t, int(Two), int(Ten))
	assert.Less(t, int(Ten), int(Jack))
	assert.Less(t, int(King), int(Ace))
}
