package deck

import "fmt"

// Suit represents a card suit
type Suit uint8

const (
	Hearts Suit = iota
	Diamonds
	Clubs
	Spades
)

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	case Clubs:
		return "♣"
	case Spades:
		return "♠"
	default:
		return "?"
	}
}

// Rank represents a card rank. Aces are high (14); the wheel straight
// treats the ace as low during evaluation only.
type Rank uint8

const (
	Two Rank = iota + 2
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// String returns the string representation of a rank
func (r Rank) String() string {
	switch {
	case r >= Two && r <= Ten:
		return fmt.Sprintf("%d", int(r))
	case r == Jack:
		return "J"
	case r == Queen:
		return "Q"
	case r == King:
		return "K"
	case r == Ace:
		return "A"
	default:
		return "?"
	}
}

// Card is an immutable playing card. Equality is by (rank, suit).
type Card struct {
	Rank Rank
	Suit Suit
}

// NewCard creates a new card
func NewCard(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Valid reports whether the card is a member of the 52-card universe.
func (c Card) Valid() bool {
	return c.Rank >= Two && c.Rank <= Ace && c.Suit <= Spades
}
