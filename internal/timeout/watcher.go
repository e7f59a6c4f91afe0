// Package timeout watches turn deadlines and converts missed ones into
// timeout claims. Every connected client runs a Watcher: the one whose turn
// it is fires exactly at the deadline, everyone else fires after a jittered
// grace so an unreachable primary client cannot stall the table. All timers
// converge on the same server-validated ClaimTimeout operation, so firing
// late, twice or spuriously is harmless.
package timeout

import (
	"context"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/randutil"
	"github.com/tablestakes/holdem-core/internal/service"
)

const (
	// DefaultWatchdogInterval is how often the periodic catch-up check
	// re-reads the state, recovering from a missed timer.
	DefaultWatchdogInterval = 2 * time.Second

	// GraceMin and GraceMax bound the jitter added to the deadline by
	// watchers whose seat is not on the clock.
	GraceMin = 300 * time.Millisecond
	GraceMax = 1250 * time.Millisecond
)

// GameService is the slice of the service layer the watcher needs.
type GameService interface {
	Load(ctx context.Context, gameID string) (engine.GameState, error)
	ClaimTimeout(ctx context.Context, gameID, playerID string) (service.TimeoutResult, error)
}

// Deadline returns the absolute turn deadline, or false when no turn clock
// is running (game waiting, completed, or between turns).
func Deadline(s engine.GameState) (time.Time, bool) {
	if s.Status != engine.StatusActive || s.CurrentPlayerTurn == "" || s.TurnTimeoutAt.IsZero() {
		return time.Time{}, false
	}
	return s.TurnTimeoutAt, true
}

// turnKey identifies one turn's deadline. A timer stays armed while the key
// is unchanged and is re-armed when any part of it moves.
type turnKey struct {
	handID     int
	round      engine.Round
	playerID   string
	deadlineMs int64
}

// Watcher tracks a single game on behalf of a single local seat.
type Watcher struct {
	games    GameService
	gameID   string
	localID  string
	logger   *log.Logger
	clock    quartz.Clock
	interval time.Duration

	mu       sync.Mutex
	rng      *rand.Rand
	timer    *quartz.Timer
	armedFor turnKey
	armed    bool
	cancel   context.CancelFunc
	done     chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithWatchdogInterval overrides the periodic catch-up interval.
func WithWatchdogInterval(d time.Duration) Option {
	return func(w *Watcher) { w.interval = d }
}

// New creates a watcher for one game and one local seat. localPlayerID may
// be empty for a pure observer, which then always applies the grace delay.
func New(games GameService, gameID, localPlayerID string, logger *log.Logger, clock quartz.Clock, rng *rand.Rand, opts ...Option) *Watcher {
	w := &Watcher{
		games:    games,
		gameID:   gameID,
		localID:  localPlayerID,
		logger:   logger.WithPrefix("timeout").With("game", gameID),
		clock:    clock,
		interval: DefaultWatchdogInterval,
		rng:      rng,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching: an immediate check, then the periodic watchdog.
// Stop (or cancelling ctx) ends it.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	w.cancel = cancel
	w.done = done
	w.mu.Unlock()

	go func() {
		defer close(done)
		ticker := w.clock.TickerFunc(ctx, w.interval, func() error {
			w.CheckNow(ctx)
			return nil
		}, "timeout-watchdog")
		_ = ticker.Wait()
	}()

	w.CheckNow(ctx)
}

// Stop disarms the pending timer and stops the watchdog.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.disarmLocked()
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// CheckNow re-reads the state and re-arms the deadline timer. It is called
// by the watchdog tick and should also be called on visibility or
// reconnection transitions, where a slept timer may have been missed.
func (w *Watcher) CheckNow(ctx context.Context) {
	state, err := w.games.Load(ctx, w.gameID)
	if err != nil {
		w.logger.Warn("deadline check failed to load state", "error", err)
		return
	}
	w.observe(ctx, state)
}

func (w *Watcher) observe(ctx context.Context, s engine.GameState) {
	deadline, ok := Deadline(s)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !ok {
		w.disarmLocked()
		return
	}

	key := turnKey{
		handID:     s.HandID,
		round:      s.CurrentRound,
		playerID:   s.CurrentPlayerTurn,
		deadlineMs: deadline.UnixMilli(),
	}
	if w.armed && key == w.armedFor {
		return
	}
	w.disarmLocked()

	// The primary watcher fires at the deadline; everyone else waits out
	// a jittered grace first so the primary usually wins the claim.
	fireAt := deadline
	if s.CurrentPlayerTurn != w.localID {
		fireAt = fireAt.Add(randutil.DurationBetween(w.rng, GraceMin, GraceMax))
	}
	wait := fireAt.Sub(w.clock.Now())
	if wait < 0 {
		wait = 0
	}

	player := s.CurrentPlayerTurn
	w.armedFor = key
	w.armed = true
	w.timer = w.clock.AfterFunc(wait, func() {
		w.claim(ctx, player)
	})
}

// claim submits the timeout to the server, which is authoritative: a stale
// or racing claim simply validates as a no-op.
func (w *Watcher) claim(ctx context.Context, playerID string) {
	res, err := w.games.ClaimTimeout(ctx, w.gameID, playerID)
	if err != nil {
		w.logger.Warn("timeout claim failed", "player", playerID, "error", err)
		return
	}
	if res.Valid {
		w.logger.Info("timeout claim accepted", "player", playerID)
	} else {
		w.logger.Debug("timeout claim rejected", "player", playerID, "reason", res.Reason)
	}
	// Pick up the next turn's deadline right away instead of waiting for
	// the watchdog.
	w.CheckNow(ctx)
}

func (w *Watcher) disarmLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.armed = false
}
