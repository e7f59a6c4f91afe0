// Package deck provides the 52-card model shared by the rules engine and
// the persistence layer. The deck itself is plain []Card: game state stores
// the remaining undealt cards directly, and the durable layer reconstructs
// them as the universe minus every dealt card.
package deck

import rand "math/rand/v2"

// universe holds all 52 cards in a fixed order. Built once; callers always
// receive copies.
var universe = buildUniverse()

func buildUniverse() [52]Card {
	var cards [52]Card
	i := 0
	for suit := Hearts; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			cards[i] = NewCard(rank, suit)
			i++
		}
	}
	return cards
}

// Universe returns a fresh copy of all 52 cards in canonical order.
func Universe() []Card {
	cards := make([]Card, len(universe))
	copy(cards, universe[:])
	return cards
}

// Shuffled returns a full 52-card deck shuffled with Fisher-Yates using the
// provided RNG. A nil RNG falls back to the global source.
func Shuffled(rng *rand.Rand) []Card {
	cards := Universe()
	for i := len(cards) - 1; i > 0; i-- {
		var j int
		if rng != nil {
			j = rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		cards[i], cards[j] = cards[j], cards[i]
	}
	return cards
}

// Remaining returns the universe minus the dealt cards, preserving canonical
// order. Cards not in the universe are ignored.
func Remaining(dealt []Card) []Card {
	used := make(map[Card]bool, len(dealt))
	for _, c := range dealt {
		used[c] = true
	}
	remaining := make([]Card, 0, 52-len(used))
	for _, c := range universe {
		if !used[c] {
			remaining = append(remaining, c)
		}
	}
	return remaining
}
