// Package service exposes the core's entry points: join, act, advance,
// reset, leave and claim-timeout. Every caller — human request, bot
// scheduler or timeout watchdog — goes through the same load → validate →
// transition → save cycle, serialized per game by the persistence adapter.
// The service owns the retry-once-on-conflict policy; the engine below it
// never retries.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	rand "math/rand/v2"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/google/uuid"

	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/persist"
)

// TimeoutResult reports the outcome of a timeout claim. An invalid claim is
// not an error: it usually means another claimer won the race and the turn
// has already advanced.
type TimeoutResult struct {
	Valid  bool
	Reason string
}

// Service implements the external interface of the core.
type Service struct {
	adapter *persist.Adapter
	logger  *log.Logger
	clock   quartz.Clock

	// rng feeds deck shuffles. math/rand/v2 sources are not goroutine-safe,
	// and actions arrive from many goroutines.
	rngMu sync.Mutex
	rng   *rand.Rand

	gameOpts []engine.Option
}

// New creates a service. The rng drives shuffles; pass a seeded one for
// reproducible runs.
func New(adapter *persist.Adapter, logger *log.Logger, clock quartz.Clock, rng *rand.Rand, gameOpts ...engine.Option) *Service {
	return &Service{
		adapter:  adapter,
		logger:   logger.WithPrefix("service"),
		clock:    clock,
		rng:      rng,
		gameOpts: gameOpts,
	}
}

// CreateGame creates a new empty table. An empty id is replaced with a
// generated one.
func (s *Service) CreateGame(ctx context.Context, gameID string) (engine.GameState, error) {
	if gameID == "" {
		gameID = uuid.NewString()
	}
	s.rngMu.Lock()
	state := engine.New(gameID, s.rng, s.gameOpts...)
	s.rngMu.Unlock()

	snap, err := s.adapter.Create(ctx, state)
	if err != nil {
		return engine.GameState{}, err
	}
	s.logger.Info("game created", "game", gameID, "bigBlind", state.BigBlind, "smallBlind", state.SmallBlind)
	return snap.State, nil
}

// Join seats a user at the table and returns their player. The second seat
// auto-starts the first hand.
func (s *Service) Join(ctx context.Context, gameID, userID string, stack int) (engine.Player, error) {
	state, err := s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		return engine.AddPlayer(cur, userID, stack, s.rng, now)
	})
	if err != nil {
		return engine.Player{}, err
	}
	p := state.PlayerByID(userID)
	s.logger.Info("player joined", "game", gameID, "player", userID, "seat", p.Seat, "stack", p.Stack)
	return *p, nil
}

// JoinBot seats an automated player with the named strategy. The bot
// scheduler picks the seat up from the persisted state.
func (s *Service) JoinBot(ctx context.Context, gameID, userID string, stack int, strategy string) (engine.Player, error) {
	state, err := s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		s.rngMu.Lock()
		defer s.rngMu.Unlock()
		return engine.AddBot(cur, userID, stack, strategy, s.rng, now)
	})
	if err != nil {
		return engine.Player{}, err
	}
	p := state.PlayerByID(userID)
	s.logger.Info("bot joined", "game", gameID, "player", userID, "seat", p.Seat, "strategy", strategy)
	return *p, nil
}

// Act validates and executes a player action, returning the new state.
func (s *Service) Act(ctx context.Context, gameID string, action engine.Action) (engine.GameState, error) {
	state, err := s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		return engine.ApplyAction(cur, action, now)
	})
	if err != nil {
		return engine.GameState{}, err
	}
	s.logger.Debug("action applied",
		"game", gameID, "player", action.PlayerID, "action", action.Type,
		"amount", action.Amount, "source", action.Source, "pot", state.Pot,
		"round", state.CurrentRound)
	return state, nil
}

// Advance idempotently progresses turn, round or showdown. Calling it when
// nothing is due is a no-op.
func (s *Service) Advance(ctx context.Context, gameID string) (engine.GameState, error) {
	return s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		return engine.Advance(cur, now)
	})
}

// Leave flags a player to be removed between hands and, if a hand is in
// progress, immediately folds them so the table is not held up. The seat
// itself is pruned by the next Reset.
func (s *Service) Leave(ctx context.Context, gameID, userID string) (engine.GameState, error) {
	state, err := s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		next := cur.Clone()
		p := next.PlayerByID(userID)
		if p == nil {
			return cur, &engine.NotFoundError{Kind: "player", ID: userID}
		}
		p.LeaveAfterHand = true
		p.Disconnected = true
		if next.Status == engine.StatusActive && !p.HasFolded {
			return engine.ForceFold(next, userID, now)
		}
		return next, nil
	})
	if err != nil {
		return engine.GameState{}, err
	}
	s.logger.Info("player leaving after hand", "game", gameID, "player", userID)
	return state, nil
}

// Reset starts the next hand: departing players are pruned first, then — if
// at least two funded seats remain — a fresh hand is dealt. Otherwise the
// game stays completed.
func (s *Service) Reset(ctx context.Context, gameID string) (engine.GameState, error) {
	snap, err := s.adapter.Load(ctx, gameID)
	if err != nil {
		return engine.GameState{}, err
	}

	var leavers []string
	for _, p := range snap.State.Players {
		if p.LeaveAfterHand {
			leavers = append(leavers, p.ID)
		}
	}
	if err := s.adapter.DeletePlayers(ctx, gameID, leavers); err != nil {
		return engine.GameState{}, err
	}
	if len(leavers) > 0 {
		s.logger.Info("pruned departing players", "game", gameID, "players", leavers)
	}

	next := snap.State.Clone()
	if len(leavers) > 0 {
		kept := next.Players[:0]
		for _, p := range next.Players {
			if !p.LeaveAfterHand {
				kept = append(kept, p)
			}
		}
		next.Players = kept
	}

	funded := 0
	for _, p := range next.Players {
		if p.Stack > 0 {
			funded++
		}
	}
	if funded >= 2 {
		s.rngMu.Lock()
		next, err = engine.StartHand(next, s.rng, s.clock.Now())
		s.rngMu.Unlock()
		if err != nil {
			return engine.GameState{}, err
		}
	} else {
		next.Status = engine.StatusCompleted
		next.CurrentPlayerTurn = ""
	}

	saved, err := s.adapter.Save(ctx, next, &snap)
	if err != nil {
		return engine.GameState{}, err
	}
	s.logger.Info("hand reset", "game", gameID, "handID", saved.State.HandID, "status", saved.State.Status)
	return saved.State, nil
}

// ClaimTimeout validates and executes a timeout claim against the player on
// the clock. Claims are idempotent under races: the first one advances the
// state, later ones observe the advanced turn and report invalid.
func (s *Service) ClaimTimeout(ctx context.Context, gameID, playerID string) (TimeoutResult, error) {
	var result TimeoutResult
	_, err := s.mutate(ctx, gameID, func(cur engine.GameState, now time.Time) (engine.GameState, error) {
		if verr := engine.ValidateTimeout(cur, playerID, now); verr != nil {
			var v *engine.ValidationError
			if errors.As(verr, &v) {
				result = TimeoutResult{Valid: false, Reason: v.Reason}
				return cur, nil // no-op save
			}
			return cur, verr
		}
		result = TimeoutResult{Valid: true}
		return engine.ApplyAction(cur, engine.TimeoutAction(cur, playerID), now)
	})
	if err != nil {
		return TimeoutResult{}, err
	}
	if result.Valid {
		s.logger.Info("turn timed out", "game", gameID, "player", playerID)
	} else {
		s.logger.Debug("timeout claim rejected", "game", gameID, "player", playerID, "reason", result.Reason)
	}
	return result, nil
}

// Load returns the current state without mutating anything. Readers may see
// slightly stale state; all mutation paths re-validate server-side.
func (s *Service) Load(ctx context.Context, gameID string) (engine.GameState, error) {
	snap, err := s.adapter.Load(ctx, gameID)
	if err != nil {
		return engine.GameState{}, err
	}
	return snap.State, nil
}

// mutate runs one load → transition → save cycle, retrying exactly once when
// the save loses a race. The transition is re-run against the freshly loaded
// state, so its validation decides whether the action still applies.
func (s *Service) mutate(ctx context.Context, gameID string, fn func(engine.GameState, time.Time) (engine.GameState, error)) (engine.GameState, error) {
	for attempt := 0; ; attempt++ {
		snap, err := s.adapter.Load(ctx, gameID)
		if err != nil {
			return engine.GameState{}, err
		}
		next, err := fn(snap.State, s.clock.Now())
		if err != nil {
			return engine.GameState{}, err
		}
		saved, err := s.adapter.Save(ctx, next, &snap)
		if err == nil {
			return saved.State, nil
		}
		if errors.Is(err, persist.ErrConflict) && attempt == 0 {
			s.logger.Debug("persistence conflict, retrying", "game", gameID)
			continue
		}
		return engine.GameState{}, err
	}
}
