package timeout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/persist"
	"github.com/tablestakes/holdem-core/internal/randutil"
	"github.com/tablestakes/holdem-core/internal/service"
	"github.com/tablestakes/holdem-core/internal/store"
)

// fixture is a running heads-up game plus the shared mock clock that drives
// both the service's deadline validation and the watcher's timers.
type fixture struct {
	svc    *service.Service
	clock  *quartz.Mock
	gameID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	adapter := persist.New(store.NewMemory(), log.New(io.Discard))
	clock := quartz.NewMock(t)
	svc := service.New(adapter, log.New(io.Discard), clock, randutil.New(1))

	state, err := svc.CreateGame(ctx, "game-1")
	require.NoError(t, err)
	_, err = svc.Join(ctx, state.ID, "alice", 1000)
	require.NoError(t, err)
	_, err = svc.Join(ctx, state.ID, "bob", 1000)
	require.NoError(t, err)
	return &fixture{svc: svc, clock: clock, gameID: state.ID}
}

func (f *fixture) state(t *testing.T) engine.GameState {
	t.Helper()
	s, err := f.svc.Load(context.Background(), f.gameID)
	require.NoError(t, err)
	return s
}

func (f *fixture) watcher(t *testing.T, localID string) *Watcher {
	t.Helper()
	return New(f.svc, f.gameID, localID, log.New(io.Discard), f.clock, randutil.New(7))
}

func TestDeadline(t *testing.T) {
	f := newFixture(t)
	s := f.state(t)

	deadline, ok := Deadline(s)
	require.True(t, ok)
	assert.True(t, deadline.After(f.clock.Now()))

	s.Status = engine.StatusCompleted
	_, ok = Deadline(s)
	assert.False(t, ok)

	s = f.state(t)
	s.CurrentPlayerTurn = ""
	_, ok = Deadline(s)
	assert.False(t, ok)
}

func TestPrimaryFiresAtDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	onClock := f.state(t).CurrentPlayerTurn

	w := f.watcher(t, onClock)
	w.Start(ctx)
	defer w.Stop()

	// The primary timer fires exactly at the deadline, well inside the
	// grace window an observer would add.
	f.clock.Advance(30*time.Second + 100*time.Millisecond).MustWait(ctx)

	after := f.state(t)
	assert.True(t, after.PlayerByID(onClock).HasFolded)
	// Heads-up, so the forced fold ends the hand.
	assert.Equal(t, engine.StatusCompleted, after.Status)
}

func TestObserverWaitsOutGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.state(t)
	onClock := s.CurrentPlayerTurn
	observer := "alice"
	if observer == onClock {
		observer = "bob"
	}

	w := f.watcher(t, observer)
	w.Start(ctx)
	defer w.Stop()

	// Just past the deadline: the fallback timer is still inside its
	// jittered grace and must not have claimed yet.
	f.clock.Advance(30*time.Second + 100*time.Millisecond).MustWait(ctx)
	before := f.state(t)
	assert.False(t, before.PlayerByID(onClock).HasFolded)

	f.clock.Advance(GraceMax).MustWait(ctx)
	after := f.state(t)
	assert.True(t, after.PlayerByID(onClock).HasFolded)
}

func TestNothingFiresBeforeDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	onClock := f.state(t).CurrentPlayerTurn

	w := f.watcher(t, onClock)
	w.Start(ctx)
	defer w.Stop()

	f.clock.Advance(29 * time.Second).MustWait(ctx)

	after := f.state(t)
	assert.False(t, after.PlayerByID(onClock).HasFolded)
	assert.Equal(t, engine.StatusActive, after.Status)
	assert.Equal(t, onClock, after.CurrentPlayerTurn)
}

func TestRacingWatchersProduceOneTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.state(t)
	onClock := start.CurrentPlayerTurn
	total := start.TotalChips()

	primary := f.watcher(t, onClock)
	observer := f.watcher(t, "")
	primary.Start(ctx)
	defer primary.Stop()
	observer.Start(ctx)
	defer observer.Stop()

	// Both timers fire; the server accepts exactly the first claim.
	f.clock.Advance(32 * time.Second).MustWait(ctx)

	after := f.state(t)
	folded := 0
	for _, p := range after.Players {
		if p.HasFolded {
			folded++
		}
	}
	assert.Equal(t, 1, folded)
	assert.True(t, after.PlayerByID(onClock).HasFolded)
	assert.Equal(t, total, after.TotalChips(), "a duplicate claim must not move chips twice")
}

func TestTurnChangeRearmsWatcher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.state(t)
	first := s.CurrentPlayerTurn

	w := f.watcher(t, "")
	w.Start(ctx)
	defer w.Stop()

	// The first player acts in time; the stale timer must not fold the
	// player now on the clock once the old deadline passes.
	f.clock.Advance(10 * time.Second).MustWait(ctx)
	_, err := f.svc.Act(ctx, f.gameID, engine.Action{PlayerID: first, Type: engine.ActionCall})
	require.NoError(t, err)

	f.clock.Advance(21 * time.Second).MustWait(ctx)

	after := f.state(t)
	for _, p := range after.Players {
		assert.False(t, p.HasFolded)
	}
	assert.Equal(t, engine.StatusActive, after.Status)
}

func TestStopDisarms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	onClock := f.state(t).CurrentPlayerTurn

	w := f.watcher(t, onClock)
	w.Start(ctx)
	w.Stop()

	f.clock.Advance(40 * time.Second).MustWait(ctx)
	after := f.state(t)
	assert.False(t, after.PlayerByID(onClock).HasFolded)
}
