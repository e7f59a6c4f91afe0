package engine

import (
	"time"

	rand "math/rand/v2"

	"github.com/tablestakes/holdem-core/internal/deck"
)

// Default table stakes and turn budget.
const (
	DefaultBigBlind   = 20
	DefaultSmallBlind = 10
	DefaultTurnMs     = 30000
)

// Option configures a new game state.
type Option func(*GameState)

// WithBlinds overrides the default blind sizes.
func WithBlinds(smallBlind, bigBlind int) Option {
	return func(s *GameState) {
		s.SmallBlind = smallBlind
		s.BigBlind = bigBlind
	}
}

// WithTurnBudget overrides the per-turn time budget in milliseconds.
func WithTurnBudget(turnMs int) Option {
	return func(s *GameState) {
		s.TurnMs = turnMs
	}
}

// New creates an empty waiting table with a full shuffled deck.
func New(id string, rng *rand.Rand, opts ...Option) GameState {
	s := GameState{
		ID:           id,
		Status:       StatusWaiting,
		CurrentRound: RoundPreFlop,
		BigBlind:     DefaultBigBlind,
		SmallBlind:   DefaultSmallBlind,
		TurnMs:       DefaultTurnMs,
		Deck:         deck.Shuffled(rng),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// AddPlayer seats a new player. The seat index is the current player count.
// Reaching two players auto-starts the first hand. A player joining while a
// hand is in progress sits out (folded) until the next hand.
func AddPlayer(s GameState, playerID string, stack int, rng *rand.Rand, now time.Time) (GameState, error) {
	next := s.Clone()
	if next.PlayerByID(playerID) != nil {
		return s, invalidf("player %q is already seated", playerID)
	}
	if stack <= 0 {
		return s, invalidf("initial stack must be positive")
	}

	p := Player{
		ID:    playerID,
		Seat:  len(next.Players),
		Stack: stack,
	}
	if next.Status == StatusActive {
		p.HasFolded = true // joined mid-hand, waits for the next deal
	}
	next.Players = append(next.Players, p)

	if next.Status == StatusWaiting && len(next.Players) >= 2 {
		return StartHand(next, rng, now)
	}
	return next, nil
}

// AddBot seats an automated player. Bot membership lives on the state
// itself, so every observer of the game sees which seats are automated and
// which strategy drives them.
func AddBot(s GameState, playerID string, stack int, strategy string, rng *rand.Rand, now time.Time) (GameState, error) {
	next, err := AddPlayer(s, playerID, stack, rng, now)
	if err != nil {
		return next, err
	}
	p := next.PlayerByID(playerID)
	p.IsBot = true
	p.BotStrategy = strategy
	return next, nil
}

// StartHand begins a new hand: reshuffles, rotates the button, posts blinds,
// deals hole cards and sets the first player to act. The hand counter is
// incremented here and nowhere else.
func StartHand(s GameState, rng *rand.Rand, now time.Time) (GameState, error) {
	next := s.Clone()

	eligible := 0
	for _, p := range next.Players {
		if p.Stack > 0 {
			eligible++
		}
	}
	if eligible < 2 {
		next.Status = StatusCompleted
		next.CurrentPlayerTurn = ""
		return next, invalidf("need at least 2 players with chips to start a hand")
	}

	next.HandID++
	next.Status = StatusActive
	next.CurrentRound = RoundPreFlop
	next.Pot = 0
	next.LastAction = ""
	next.LastBetAmount = 0
	next.LastAggressorID = ""
	next.CommunityCards = nil
	next.Deck = deck.Shuffled(rng)

	for i := range next.Players {
		p := &next.Players[i]
		p.CurrentBet = 0
		p.HasFolded = false
		p.HasWon = false
		p.ShowCards = false
		p.HasActed = false
		p.HoleCards = nil
		p.HandRank = 0
		p.HandValue = 0
		p.HandName = ""
	}

	rotateButton(&next)

	// Post blinds as forced bets. Short stacks post what they can.
	n := len(next.Players)
	button := next.buttonIndex()
	sb := &next.Players[(button+1)%n]
	bb := &next.Players[(button+2)%n]
	postBlind(&next, sb, next.SmallBlind)
	postBlind(&next, bb, next.BigBlind)
	next.CurrentHighestBet = next.BigBlind

	// Two hole cards each, one player at a time.
	for i := range next.Players {
		next.Players[i].HoleCards = drawCards(&next, 2)
	}

	// Under the gun: the seat after the big blind.
	utg := nextActingIndex(&next, (button+2)%n)
	if utg < 0 {
		return next, invalidf("no player able to act")
	}
	next.CurrentPlayerTurn = next.Players[utg].ID
	armTurnTimer(&next, now)

	return next, nil
}

// ValidateAction checks an action against the current state without mutating
// anything. A nil return means the action is legal.
func ValidateAction(s GameState, a Action) error {
	if s.Status != StatusActive {
		return invalidf("game is not active")
	}
	p := s.PlayerByID(a.PlayerID)
	if p == nil {
		return &NotFoundError{Kind: "player", ID: a.PlayerID}
	}
	if p.HasFolded {
		return invalidf("player has folded")
	}
	if s.CurrentPlayerTurn != a.PlayerID {
		return invalidf("not your turn")
	}

	switch a.Type {
	case ActionCheck:
		if s.CurrentHighestBet > p.CurrentBet {
			return invalidf("cannot check, there is %d to call", s.CurrentHighestBet-p.CurrentBet)
		}
	case ActionCall:
		if s.CurrentHighestBet <= p.CurrentBet {
			return invalidf("nothing to call, check instead")
		}
	case ActionBet, ActionRaise:
		if a.Amount <= 0 {
			return invalidf("%s amount must be positive", a.Type)
		}
		if a.Amount > p.Stack {
			return invalidf("bet of %d exceeds stack of %d", a.Amount, p.Stack)
		}
	case ActionFold:
		// always legal on your turn
	default:
		return invalidf("unknown action %q", a.Type)
	}
	return nil
}

// ApplyAction validates and executes an action, returning the next state.
// The input state is never mutated.
func ApplyAction(s GameState, a Action, now time.Time) (GameState, error) {
	if err := ValidateAction(s, a); err != nil {
		return s, err
	}

	next := s.Clone()
	p := next.PlayerByID(a.PlayerID)

	moved := 0
	switch a.Type {
	case ActionFold:
		p.HasFolded = true
	case ActionCheck:
		// no chips move
	case ActionCall:
		// An under-stacked call goes all-in for less.
		moved = min(next.CurrentHighestBet-p.CurrentBet, p.Stack)
		commitChips(&next, p, moved)
	case ActionBet, ActionRaise:
		moved = a.Amount
		commitChips(&next, p, moved)
		if p.CurrentBet > next.CurrentHighestBet {
			next.CurrentHighestBet = p.CurrentBet
			next.LastAggressorID = p.ID
		}
	}
	p.HasActed = true
	next.LastAction = a.Type
	next.LastBetAmount = moved

	// A fold can end the hand immediately.
	if a.Type == ActionFold {
		if in := next.PlayersInHand(); len(in) == 1 {
			return handleSinglePlayerWin(next, in[0].ID)
		}
	}

	return progress(next, now, true)
}

// Advance idempotently re-runs the round-completion and showdown checks. If
// the state is already waiting on a player it is returned unchanged.
func Advance(s GameState, now time.Time) (GameState, error) {
	if s.Status != StatusActive {
		return s, nil
	}
	if in := s.PlayersInHand(); len(in) == 1 {
		return handleSinglePlayerWin(s.Clone(), in[0].ID)
	}
	return progress(s.Clone(), now, false)
}

// ForceFold folds a player regardless of whose turn it is. Used when a
// seated player leaves or disconnects mid-hand so the table is not held up
// waiting on them.
func ForceFold(s GameState, playerID string, now time.Time) (GameState, error) {
	next := s.Clone()
	p := next.PlayerByID(playerID)
	if p == nil {
		return s, &NotFoundError{Kind: "player", ID: playerID}
	}
	if next.Status != StatusActive || p.HasFolded {
		return next, nil
	}
	wasTheirTurn := next.CurrentPlayerTurn == playerID
	p.HasFolded = true
	next.LastAction = ActionFold
	next.LastBetAmount = 0

	if in := next.PlayersInHand(); len(in) == 1 {
		return handleSinglePlayerWin(next, in[0].ID)
	}
	return progress(next, now, wasTheirTurn)
}

// progress moves the state machine forward after an action: closes completed
// betting rounds (cascading through all-in runouts to showdown) or, when the
// round is still open and an action was just applied, rotates the turn
// pointer.
func progress(next GameState, now time.Time, rotate bool) (GameState, error) {
	for next.Status == StatusActive && bettingRoundComplete(&next) {
		if next.CurrentRound == RoundRiver {
			return handleShowdown(next)
		}
		advanceRound(&next, now)
		rotate = false // the new round already set the first to act
	}
	if next.Status == StatusActive && rotate {
		advanceTurn(&next, now)
	}
	return next, nil
}

// bettingRoundComplete reports whether every player who can still act has
// acted and matched the highest bet. All-in and folded players are excluded,
// so an all-in table cascades straight through the remaining streets.
func bettingRoundComplete(s *GameState) bool {
	for _, p := range s.Players {
		if !canAct(p) {
			continue
		}
		if !p.HasActed || p.CurrentBet != s.CurrentHighestBet {
			return false
		}
	}
	return true
}

// advanceRound deals the next street and resets per-round betting state.
func advanceRound(s *GameState, now time.Time) {
	for i := range s.Players {
		s.Players[i].CurrentBet = 0
		s.Players[i].HasActed = false
	}
	s.CurrentHighestBet = 0
	s.LastAggressorID = ""
	s.LastAction = ""
	s.LastBetAmount = 0

	switch s.CurrentRound {
	case RoundPreFlop:
		s.CurrentRound = RoundFlop
		s.CommunityCards = append(s.CommunityCards, drawCards(s, 3)...)
	case RoundFlop:
		s.CurrentRound = RoundTurn
		s.CommunityCards = append(s.CommunityCards, drawCards(s, 1)...)
	case RoundTurn:
		s.CurrentRound = RoundRiver
		s.CommunityCards = append(s.CommunityCards, drawCards(s, 1)...)
	}

	// Post-flop action starts with the first eligible seat after the button.
	first := nextActingIndex(s, s.buttonIndex())
	if first < 0 {
		s.CurrentPlayerTurn = ""
		return
	}
	s.CurrentPlayerTurn = s.Players[first].ID
	armTurnTimer(s, now)
}

// advanceTurn rotates the turn pointer to the next seat that can act.
func advanceTurn(s *GameState, now time.Time) {
	current := -1
	for i, p := range s.Players {
		if p.ID == s.CurrentPlayerTurn {
			current = i
			break
		}
	}
	nextIdx := nextActingIndex(s, current)
	if nextIdx < 0 {
		s.CurrentPlayerTurn = ""
		return
	}
	s.CurrentPlayerTurn = s.Players[nextIdx].ID
	armTurnTimer(s, now)
}

// nextActingIndex returns the first index after from (wrapping) whose player
// can act, or -1 if nobody can.
func nextActingIndex(s *GameState, from int) int {
	n := len(s.Players)
	for off := 1; off <= n; off++ {
		i := (from + off) % n
		if canAct(s.Players[i]) {
			return i
		}
	}
	return -1
}

// rotateButton moves the dealer button to the next seated player, or assigns
// it to seat 0 on the first hand.
func rotateButton(s *GameState) {
	button := s.buttonIndex()
	if button >= 0 {
		s.Players[button].IsButton = false
	}
	next := (button + 1) % len(s.Players)
	s.Players[next].IsButton = true
}

// postBlind moves a forced bet from stack to pot before any cards are dealt.
func postBlind(s *GameState, p *Player, blind int) {
	commitChips(s, p, min(blind, p.Stack))
}

// commitChips moves amount from the player's stack into the pot and their
// per-round commitment. Chip conservation holds by construction.
func commitChips(s *GameState, p *Player, amount int) {
	p.Stack -= amount
	p.CurrentBet += amount
	s.Pot += amount
}

func drawCards(s *GameState, n int) []deck.Card {
	if n > len(s.Deck) {
		n = len(s.Deck)
	}
	cards := append([]deck.Card(nil), s.Deck[:n]...)
	s.Deck = s.Deck[n:]
	return cards
}

func armTurnTimer(s *GameState, now time.Time) {
	s.TurnTimeoutAt = now.Add(time.Duration(s.TurnMs) * time.Millisecond)
}
