// Package bot provides the built-in bot strategies and the scheduler that
// plays them through the same action entry point humans use.
package bot

import "github.com/tablestakes/holdem-core/internal/engine"

// Strategy names accepted by ByName and stored on bot seats.
const (
	StrategyAlwaysFold      = "always-fold"
	StrategyCallAny         = "call-any"
	StrategyTightAggressive = "tight-aggressive"
	StrategyLoosePassive    = "loose-passive"
	StrategyHuman           = "human"
	StrategyScripted        = "scripted"
)

// Decision is a bot's chosen move.
type Decision struct {
	Type   engine.ActionType
	Amount int
}

// Strategy picks a move for the given player against a freshly loaded
// state. A nil return defers to a human (the scheduler does nothing).
type Strategy func(s engine.GameState, playerID string) *Decision

// ByName resolves a strategy name. Human and scripted seats resolve to a
// nil strategy: known, but never scheduled.
func ByName(name string) (Strategy, bool) {
	switch name {
	case StrategyAlwaysFold:
		return alwaysFold, true
	case StrategyCallAny:
		return callAny, true
	case StrategyTightAggressive:
		return tightAggressive, true
	case StrategyLoosePassive:
		return loosePassive, true
	case StrategyHuman:
		return nil, true
	case StrategyScripted:
		// Reserved for replaying scripted action sequences.
		return nil, true
	}
	return nil, false
}

func alwaysFold(s engine.GameState, playerID string) *Decision {
	return &Decision{Type: engine.ActionFold}
}

// callAny checks when nothing is owed and otherwise calls the minimum.
func callAny(s engine.GameState, playerID string) *Decision {
	p := s.PlayerByID(playerID)
	if p == nil {
		return nil
	}
	if s.CurrentHighestBet > p.CurrentBet {
		return &Decision{Type: engine.ActionCall}
	}
	return &Decision{Type: engine.ActionCheck}
}

// tightAggressive open-raises to three big blinds pre-flop when nobody has
// raised yet, and otherwise plays like callAny.
func tightAggressive(s engine.GameState, playerID string) *Decision {
	p := s.PlayerByID(playerID)
	if p == nil {
		return nil
	}
	unopposed := s.CurrentRound == engine.RoundPreFlop &&
		s.LastAggressorID == "" &&
		s.CurrentHighestBet == s.BigBlind
	if unopposed {
		amount := 3*s.BigBlind - p.CurrentBet
		if amount > p.Stack {
			amount = p.Stack
		}
		if amount > 0 {
			return &Decision{Type: engine.ActionRaise, Amount: amount}
		}
	}
	return callAny(s, playerID)
}

// loosePassive never raises: it calls any size (going all-in for less when
// short) and checks when free.
func loosePassive(s engine.GameState, playerID string) *Decision {
	return callAny(s, playerID)
}
