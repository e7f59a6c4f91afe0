package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTimeout(t *testing.T) {
	s := newTestGame(t, 1000, 1000, 1000)
	deadline := s.TurnTimeoutAt
	onClock := s.CurrentPlayerTurn

	tests := []struct {
		name     string
		playerID string
		now      time.Time
		wantErr  bool
	}{
		{"too early", onClock, testNow, true},
		{"just inside tolerance", onClock, deadline.Add(-SkewTolerance), false},
		{"exactly at deadline", onClock, deadline, false},
		{"well past deadline", onClock, deadline.Add(5 * time.Second), false},
		{"before tolerance window", onClock, deadline.Add(-SkewTolerance - time.Millisecond), true},
		{"wrong player", "p1", deadline.Add(time.Second), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTimeout(s, tt.playerID, tt.now)
			if tt.wantErr {
				var verr *ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTimeoutInactiveGame(t *testing.T) {
	s := New("g", nil)
	err := ValidateTimeout(s, "p0", testNow)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestValidateTimeoutUnknownPlayer(t *testing.T) {
	s := newTestGame(t, 1000, 1000)
	err := ValidateTimeout(s, "ghost", s.TurnTimeoutAt)
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestTimeoutActionSynthesizesFoldWhenFacingBet(t *testing.T) {
	s := newTestGame(t, 1000, 1000, 1000)
	// Pre-flop under the gun owes the big blind: the timeout folds.
	a := TimeoutAction(s, s.CurrentPlayerTurn)
	assert.Equal(t, ActionFold, a.Type)
	assert.Equal(t, SourceSystem, a.Source)
}

func TestTimeoutActionSynthesizesCheckWhenFree(t *testing.T) {
	s := newTestGame(t, 1000, 1000, 1000)
	s = mustApply(t, s, Action{PlayerID: "p0", Type: ActionCall})
	s = mustApply(t, s, Action{PlayerID: "p1", Type: ActionCall})
	s = mustApply(t, s, Action{PlayerID: "p2", Type: ActionCheck})
	require.Equal(t, RoundFlop, s.CurrentRound)

	// Nothing to call on the flop: the timeout checks instead of folding.
	a := TimeoutAction(s, s.CurrentPlayerTurn)
	assert.Equal(t, ActionCheck, a.Type)
}

func TestTimeoutActionAppliesThroughNormalPath(t *testing.T) {
	s := newTestGame(t, 1000, 1000, 1000)
	total := s.TotalChips()
	onClock := s.CurrentPlayerTurn

	a := TimeoutAction(s, onClock)
	next, err := ApplyAction(s, a, s.TurnTimeoutAt)
	require.NoError(t, err)

	assert.True(t, next.PlayerByID(onClock).HasFolded)
	assert.NotEqual(t, onClock, next.CurrentPlayerTurn)
	assert.Equal(t, total, next.TotalChips())

	// A duplicate claim now fails validation: the turn has moved on.
	err = ValidateTimeout(next, onClock, next.TurnTimeoutAt.Add(time.Second))
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
}
