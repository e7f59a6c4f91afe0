package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/weedbox/timebank"

	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/randutil"
)

const (
	// DefaultPollInterval is how often a worker re-reads its game looking
	// for a new bot turn.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultDelayMin and DefaultDelayMax bound the jittered thinking
	// delay before a bot submits its decision.
	DefaultDelayMin = 400 * time.Millisecond
	DefaultDelayMax = 1600 * time.Millisecond
)

// GameService is the slice of the service layer the scheduler needs. Bot
// actions go through the same Act entry point as human ones.
type GameService interface {
	Load(ctx context.Context, gameID string) (engine.GameState, error)
	Act(ctx context.Context, gameID string, action engine.Action) (engine.GameState, error)
}

// turnKey identifies one turn. A worker schedules at most one decision per
// key, and a pending decision is discarded if the key has moved on.
type turnKey struct {
	handID   int
	round    engine.Round
	playerID string
}

func keyOf(s engine.GameState) turnKey {
	return turnKey{handID: s.HandID, round: s.CurrentRound, playerID: s.CurrentPlayerTurn}
}

// Scheduler drives bot seats across any number of watched games. One worker
// polls per game; decisions are computed against freshly loaded state,
// delayed by seedable jitter, re-validated, then submitted.
type Scheduler struct {
	games    GameService
	logger   *log.Logger
	clock    quartz.Clock
	poll     time.Duration
	delayMin time.Duration
	delayMax time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	workers map[string]*worker
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPollInterval overrides the per-game polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.poll = d }
}

// WithDelayWindow overrides the jittered thinking-delay bounds.
func WithDelayWindow(min, max time.Duration) Option {
	return func(s *Scheduler) { s.delayMin, s.delayMax = min, max }
}

// NewScheduler creates a scheduler. The rng drives delay jitter; pass a
// seeded one for reproducible runs.
func NewScheduler(games GameService, logger *log.Logger, clock quartz.Clock, rng *rand.Rand, opts ...Option) *Scheduler {
	s := &Scheduler{
		games:    games,
		logger:   logger.WithPrefix("bots"),
		clock:    clock,
		poll:     DefaultPollInterval,
		delayMin: DefaultDelayMin,
		delayMax: DefaultDelayMax,
		rng:      rng,
		workers:  make(map[string]*worker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type worker struct {
	gameID string
	cancel context.CancelFunc
	done   chan struct{}
	tb     *timebank.TimeBank

	mu      sync.Mutex
	lastKey turnKey
	seen    bool
}

// Watch starts a worker for the game. Watching an already-watched game is a
// no-op.
func (s *Scheduler) Watch(ctx context.Context, gameID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workers[gameID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &worker{
		gameID: gameID,
		cancel: cancel,
		done:   make(chan struct{}),
		tb:     timebank.NewTimeBank(),
	}
	s.workers[gameID] = w

	go func() {
		defer close(w.done)
		ticker := s.clock.TickerFunc(ctx, s.poll, func() error {
			s.observe(ctx, w)
			return nil
		}, "bot-scheduler", gameID)
		_ = ticker.Wait()
	}()
	s.logger.Info("watching game", "game", gameID)
}

// Unwatch stops and removes the game's worker.
func (s *Scheduler) Unwatch(gameID string) {
	s.mu.Lock()
	w := s.workers[gameID]
	delete(s.workers, gameID)
	s.mu.Unlock()
	if w == nil {
		return
	}
	w.cancel()
	w.tb.Cancel()
	<-w.done
	s.logger.Info("stopped watching game", "game", gameID)
}

// Stop stops every worker.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.workers))
	for id := range s.workers {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Unwatch(id)
	}
}

// observe is one poll: if the turn has not moved since the last poll it does
// nothing, which is what prevents duplicate scheduling. A new turn on a bot
// seat gets a decision scheduled after the jittered delay.
func (s *Scheduler) observe(ctx context.Context, w *worker) {
	state, err := s.games.Load(ctx, w.gameID)
	if err != nil {
		s.logger.Warn("poll failed to load state", "game", w.gameID, "error", err)
		return
	}
	if state.Status != engine.StatusActive || state.CurrentPlayerTurn == "" {
		return
	}

	key := keyOf(state)
	w.mu.Lock()
	if w.seen && key == w.lastKey {
		w.mu.Unlock()
		return
	}
	w.lastKey = key
	w.seen = true
	w.mu.Unlock()

	p := state.PlayerByID(key.playerID)
	if p == nil || !p.IsBot {
		return
	}
	strategy, ok := ByName(p.BotStrategy)
	if !ok {
		s.logger.Warn("bot has unknown strategy", "game", w.gameID, "player", p.ID, "strategy", p.BotStrategy)
		return
	}
	if strategy == nil {
		return
	}
	decision := strategy(state, p.ID)
	if decision == nil {
		return
	}

	action := engine.Action{
		PlayerID:    p.ID,
		Type:        decision.Type,
		Amount:      decision.Amount,
		Source:      engine.SourceBot,
		BotStrategy: p.BotStrategy,
	}

	s.mu.Lock()
	delay := randutil.DurationBetween(s.rng, s.delayMin, s.delayMax)
	s.mu.Unlock()

	s.logger.Debug("scheduling bot action",
		"game", w.gameID, "player", p.ID, "strategy", p.BotStrategy,
		"action", action.Type, "amount", action.Amount, "delay", delay)

	err = w.tb.NewTask(delay, func(isCancelled bool) {
		if isCancelled {
			return
		}
		s.submit(ctx, w.gameID, key, action)
	})
	if err != nil {
		s.logger.Warn("failed to schedule bot action", "game", w.gameID, "error", err)
	}
}

// submit re-validates that the turn the decision was computed for is still
// current, then plays it. A moved turn means the decision is stale and is
// discarded rather than applied.
func (s *Scheduler) submit(ctx context.Context, gameID string, key turnKey, action engine.Action) {
	state, err := s.games.Load(ctx, gameID)
	if err != nil {
		s.logger.Warn("bot submit failed to load state", "game", gameID, "error", err)
		return
	}
	if keyOf(state) != key {
		s.logger.Debug("discarding stale bot action", "game", gameID, "player", action.PlayerID)
		return
	}

	if _, err := s.games.Act(ctx, gameID, action); err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			// Lost a race with another actor between the staleness check
			// and the save; the action no longer applies.
			s.logger.Debug("bot action rejected", "game", gameID, "player", action.PlayerID, "reason", verr.Reason)
			return
		}
		s.logger.Error("bot action failed", "game", gameID, "player", action.PlayerID, "error", err)
	}
}
