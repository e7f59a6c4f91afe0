package engine

import "time"

// SkewTolerance absorbs clock drift between the claiming client and the
// server: a timeout claim is accepted this long before the stored deadline.
const SkewTolerance = 250 * time.Millisecond

// ValidateTimeout checks whether a timeout claim against the given player is
// legitimate at the server's clock reading. The claim is valid only once the
// turn deadline (minus skew tolerance) has passed for the player who is
// actually on the clock. Duplicate claims after the turn has advanced fail
// validation and are harmless.
func ValidateTimeout(s GameState, playerID string, now time.Time) error {
	if s.Status != StatusActive {
		return invalidf("game is not active")
	}
	if s.PlayerByID(playerID) == nil {
		return &NotFoundError{Kind: "player", ID: playerID}
	}
	if s.CurrentPlayerTurn != playerID {
		return invalidf("player %s is not on the clock", playerID)
	}
	if s.TurnTimeoutAt.IsZero() {
		return invalidf("no turn deadline is set")
	}
	if now.Before(s.TurnTimeoutAt.Add(-SkewTolerance)) {
		return invalidf("turn has not timed out yet")
	}
	return nil
}

// TimeoutAction synthesizes the action a timed-out player is forced to take:
// a check when nothing is owed, otherwise a fold. The result runs through the
// normal ApplyAction path so every invariant holds.
func TimeoutAction(s GameState, playerID string) Action {
	a := Action{PlayerID: playerID, Type: ActionCheck, Source: SourceSystem}
	if p := s.PlayerByID(playerID); p != nil && s.CurrentHighestBet > p.CurrentBet {
		a.Type = ActionFold
	}
	return a
}
