// Package evaluator ranks poker hands of five or more cards into the nine
// standard categories. It is pure: no I/O, no randomness, no clock.
//
// Tie-breaking within a category is a single integer value. Paired categories
// that need two components (full house, two pair) concatenate them as
// high*100 + low so that values stay comparable with plain integer ordering.
package evaluator

import (
	"errors"
	"sort"

	"github.com/tablestakes/holdem-core/internal/deck"
)

// ErrInsufficientCards indicates the evaluator was handed fewer than five
// cards. This is an upstream bug, never a user error.
var ErrInsufficientCards = errors.New("hand evaluation requires at least 5 cards")

// Category is a hand category, ordered from weakest (HighCard) to strongest
// (StraightFlush). The numeric values are part of the persistence contract.
type Category int

const (
	HighCard Category = iota
	OnePair
	TwoPair
	ThreeOfAKind
	Straight
	Flush
	FullHouse
	FourOfAKind
	StraightFlush
)

// String returns the display name of the category.
func (c Category) String() string {
	switch c {
	case HighCard:
		return "High Card"
	case OnePair:
		return "One Pair"
	case TwoPair:
		return "Two Pair"
	case ThreeOfAKind:
		return "Three of a Kind"
	case Straight:
		return "Straight"
	case Flush:
		return "Flush"
	case FullHouse:
		return "Full House"
	case FourOfAKind:
		return "Four of a Kind"
	case StraightFlush:
		return "Straight Flush"
	default:
		return "Unknown"
	}
}

// HandValue is the result of evaluating a set of cards.
type HandValue struct {
	Category Category
	Value    int
	Name     string
}

// Compare returns a negative number if a is weaker than b, positive if
// stronger, zero on a true tie (split pot).
func Compare(a, b HandValue) int {
	if a.Category != b.Category {
		return int(a.Category) - int(b.Category)
	}
	return a.Value - b.Value
}

// Evaluate ranks the given cards (typically 7: two hole plus five community)
// and returns the best category they form with its tie-break value.
func Evaluate(cards []deck.Card) (HandValue, error) {
	if len(cards) < 5 {
		return HandValue{}, ErrInsufficientCards
	}

	rankCounts := make(map[deck.Rank]int)
	suitCounts := make(map[deck.Suit]int)
	for _, c := range cards {
		rankCounts[c.Rank]++
		suitCounts[c.Suit]++
	}

	flushSuit, hasFlush := flushSuit(suitCounts)

	if hasFlush {
		var suited []deck.Card
		for _, c := range cards {
			if c.Suit == flushSuit {
				suited = append(suited, c)
			}
		}
		if high, ok := straightHigh(suited); ok {
			return result(StraightFlush, high), nil
		}
	}

	quads, trips, pairs := groupRanks(rankCounts)

	if len(quads) > 0 {
		return result(FourOfAKind, int(quads[0])), nil
	}

	if pair, ok := bestFullHousePair(trips, pairs); ok {
		return result(FullHouse, int(trips[0])*100+int(pair)), nil
	}

	if hasFlush {
		high := deck.Rank(0)
		for _, c := range cards {
			if c.Suit == flushSuit && c.Rank > high {
				high = c.Rank
			}
		}
		return result(Flush, int(high)), nil
	}

	if high, ok := straightHigh(cards); ok {
		return result(Straight, high), nil
	}

	if len(trips) > 0 {
		return result(ThreeOfAKind, int(trips[0])), nil
	}

	if len(pairs) >= 2 {
		return result(TwoPair, int(pairs[0])*100+int(pairs[1])), nil
	}

	if len(pairs) == 1 {
		return result(OnePair, int(pairs[0])), nil
	}

	high := deck.Rank(0)
	for _, c := range cards {
		if c.Rank > high {
			high = c.Rank
		}
	}
	return result(HighCard, int(high)), nil
}

func result(c Category, value int) HandValue {
	return HandValue{Category: c, Value: value, Name: c.String()}
}

// flushSuit returns the suit with five or more cards, if any.
func flushSuit(suitCounts map[deck.Suit]int) (deck.Suit, bool) {
	for suit, n := range suitCounts {
		if n >= 5 {
			return suit, true
		}
	}
	return 0, false
}

// groupRanks splits the rank histogram into quads, trips and pairs, each
// sorted descending by rank.
func groupRanks(rankCounts map[deck.Rank]int) (quads, trips, pairs []deck.Rank) {
	for rank, n := range rankCounts {
		switch {
		case n >= 4:
			quads = append(quads, rank)
		case n == 3:
			trips = append(trips, rank)
		case n == 2:
			pairs = append(pairs, rank)
		}
	}
	desc := func(s []deck.Rank) {
		sort.Slice(s, func(i, j int) bool { return s[i] > s[j] })
	}
	desc(quads)
	desc(trips)
	desc(pairs)
	return quads, trips, pairs
}

// bestFullHousePair finds the pair component of a full house: the highest
// standalone pair, or a second set of trips demoted to a pair.
func bestFullHousePair(trips, pairs []deck.Rank) (deck.Rank, bool) {
	if len(trips) == 0 {
		return 0, false
	}
	best := deck.Rank(0)
	if len(pairs) > 0 {
		best = pairs[0]
	}
	if len(trips) > 1 && trips[1] > best {
		best = trips[1]
	}
	if best == 0 {
		return 0, false
	}
	return best, true
}

// straightHigh scans the distinct ranks for five spanning exactly four, and
// special-cases the wheel (A-2-3-4-5) whose value is 5 rather than ace-high.
func straightHigh(cards []deck.Card) (int, bool) {
	distinct := make(map[deck.Rank]bool, len(cards))
	for _, c := range cards {
		distinct[c.Rank] = true
	}
	ranks := make([]deck.Rank, 0, len(distinct))
	for r := range distinct {
		ranks = append(ranks, r)
	}
	sort.Slice(ranks, func(i, j int) bool { return ranks[i] > ranks[j] })

	for i := 0; i+4 < len(ranks); i++ {
		if ranks[i]-ranks[i+4] == 4 {
			return int(ranks[i]), true
		}
	}

	// The wheel: ace plays low, and the straight is valued at 5.
	if distinct[deck.Ace] && distinct[deck.Two] && distinct[deck.Three] &&
		distinct[deck.Four] && distinct[deck.Five] {
		return int(deck.Five), true
	}

	return 0, false
}
