package engine

import "fmt"

// ActionType is one of the five betting actions.
type ActionType string

const (
	ActionBet   ActionType = "bet"
	ActionCheck ActionType = "check"
	ActionCall  ActionType = "call"
	ActionRaise ActionType = "raise"
	ActionFold  ActionType = "fold"
)

// ActorSource identifies who originated an action. Every entry point (human
// request, bot scheduler, timeout watchdog) submits the same Action shape and
// is validated identically.
type ActorSource string

const (
	SourceHuman  ActorSource = "human"
	SourceBot    ActorSource = "bot"
	SourceSystem ActorSource = "system" // synthesized timeout actions
)

// Action is the sole external input to the rules engine.
type Action struct {
	PlayerID string
	Type     ActionType
	Amount   int

	Source ActorSource
	// BotStrategy names the strategy that produced a bot action, for logging
	// and audit only; it never affects validation.
	BotStrategy string
}

// ValidationError reports an illegal action against the current state. It is
// always recoverable and never accompanies a state mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing game or player.
type NotFoundError struct {
	Kind string // "game" or "player"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
