// Package engine implements the pure Texas Hold'em state machine: action
// validation and execution, turn and round progression, showdown resolution
// and timeout semantics. Every operation is a pure function from one
// GameState to the next; the package performs no I/O, reads no clock and
// never retries.
package engine

import (
	"time"

	"github.com/tablestakes/holdem-core/internal/deck"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Round is one of the five betting phases of a hand.
type Round string

const (
	RoundPreFlop  Round = "pre-flop"
	RoundFlop     Round = "flop"
	RoundTurn     Round = "turn"
	RoundRiver    Round = "river"
	RoundShowdown Round = "showdown"
)

// Player is one in-hand participant. Seat and stack persist across hands;
// everything else is reset when a new hand starts.
type Player struct {
	ID         string
	Seat       int
	Stack      int
	CurrentBet int

	HasFolded bool
	IsButton  bool
	HasWon    bool
	ShowCards bool

	// HasActed tracks whether the player has taken a voluntary action this
	// betting round. Blinds do not count, which is what gives the big blind
	// its pre-flop option.
	HasActed bool

	HoleCards []deck.Card

	// Set only by showdown evaluation.
	HandRank  int
	HandValue int
	HandName  string

	IsBot       bool
	BotStrategy string

	// Seat removal is deferred to the between-hands reset; these flags mark
	// a departing or disconnected player in the meantime.
	LeaveAfterHand bool
	Disconnected   bool
}

// GameState describes the full state of one table. Treat values as
// immutable: every transition returns a fresh deep copy.
type GameState struct {
	ID     string
	HandID int
	Status Status

	CurrentRound      Round
	CurrentHighestBet int
	CurrentPlayerTurn string
	LastAggressorID   string

	Pot        int
	BigBlind   int
	SmallBlind int

	LastAction    ActionType
	LastBetAmount int

	Players        []Player
	CommunityCards []deck.Card
	Deck           []deck.Card

	TurnTimeoutAt time.Time
	TurnMs        int
}

// Clone returns a deep copy of the state.
func (s GameState) Clone() GameState {
	next := s
	next.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		next.Players[i] = p
		next.Players[i].HoleCards = append([]deck.Card(nil), p.HoleCards...)
	}
	next.CommunityCards = append([]deck.Card(nil), s.CommunityCards...)
	next.Deck = append([]deck.Card(nil), s.Deck...)
	return next
}

// PlayerByID returns a pointer into s.Players for in-place mutation by the
// transition functions, or nil if absent.
func (s *GameState) PlayerByID(id string) *Player {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return &s.Players[i]
		}
	}
	return nil
}

// PlayersInHand returns the players still contesting the current hand.
func (s *GameState) PlayersInHand() []Player {
	var in []Player
	for _, p := range s.Players {
		if !p.HasFolded {
			in = append(in, p)
		}
	}
	return in
}

// DealtCards returns every card currently out of the deck: all hole cards
// plus the community cards.
func (s *GameState) DealtCards() []deck.Card {
	var dealt []deck.Card
	for _, p := range s.Players {
		dealt = append(dealt, p.HoleCards...)
	}
	return append(dealt, s.CommunityCards...)
}

// TotalChips returns the conserved quantity: every stack plus the pot.
// CurrentBet is not added because committed chips already live in the pot.
func (s *GameState) TotalChips() int {
	total := s.Pot
	for _, p := range s.Players {
		total += p.Stack
	}
	return total
}

// buttonIndex returns the index of the player holding the button, or -1.
func (s *GameState) buttonIndex() int {
	for i, p := range s.Players {
		if p.IsButton {
			return i
		}
	}
	return -1
}

// canAct reports whether the player participates in turn rotation: neither
// folded nor all-in.
func canAct(p Player) bool {
	return !p.HasFolded && p.Stack > 0
}
