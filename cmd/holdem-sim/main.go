package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	rand "math/rand/v2"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/tablestakes/holdem-core/internal/bot"
	"github.com/tablestakes/holdem-core/internal/config"
	"github.com/tablestakes/holdem-core/internal/engine"
	"github.com/tablestakes/holdem-core/internal/persist"
	"github.com/tablestakes/holdem-core/internal/randutil"
	"github.com/tablestakes/holdem-core/internal/service"
	"github.com/tablestakes/holdem-core/internal/store"
	"github.com/tablestakes/holdem-core/internal/timeout"
)

var CLI struct {
	Config   string `short:"c" long:"config" default:"holdem-sim.hcl" help:"Path to HCL configuration file"`
	Hands    int    `short:"n" long:"hands" help:"Number of hands to play (overrides config)"`
	Seed     int64  `short:"s" long:"seed" help:"RNG seed for a reproducible run (overrides config)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
}

func main() {
	kctx := kong.Parse(&CLI)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		kctx.Exit(1)
	}

	// Apply command line overrides
	if CLI.Hands > 0 {
		cfg.Game.Hands = CLI.Hands
	}
	if CLI.Seed != 0 {
		cfg.Game.Seed = CLI.Seed
	}
	if CLI.LogLevel != "" {
		cfg.Game.LogLevel = CLI.LogLevel
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		kctx.Exit(1)
	}

	logger := log.New(os.Stderr)
	switch cfg.Game.LogLevel {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "info":
		logger.SetLevel(log.InfoLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Simulation failed", "error", err)
		kctx.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Service, scheduler and watcher each get their own stream so they
	// never contend on one shared rand.Rand.
	seed := cfg.Game.Seed
	newRng := func(stream int64) *rand.Rand {
		if seed == 0 {
			return randutil.NewTimeSeeded()
		}
		return randutil.New(seed + stream)
	}
	if seed != 0 {
		logger.Info("Deterministic run", "seed", seed)
	}

	clock := quartz.NewReal()
	adapter := persist.New(store.NewMemory(), logger)
	svc := service.New(adapter, logger, clock, newRng(0),
		engine.WithBlinds(cfg.Game.SmallBlind, cfg.Game.BigBlind),
		engine.WithTurnBudget(cfg.Game.TurnMs),
	)

	state, err := svc.CreateGame(ctx, "")
	if err != nil {
		return err
	}
	gameID := state.ID
	logger.Info("Created game",
		"game", gameID,
		"stakes", fmt.Sprintf("%d/%d", cfg.Game.SmallBlind, cfg.Game.BigBlind),
		"hands", cfg.Game.Hands)

	for _, bc := range cfg.Bots {
		p, err := svc.JoinBot(ctx, gameID, bc.Name, bc.BuyIn, bc.Strategy)
		if err != nil {
			return fmt.Errorf("seating bot %s: %w", bc.Name, err)
		}
		logger.Info("Seated bot", "bot", bc.Name, "seat", p.Seat, "strategy", bc.Strategy, "buyIn", bc.BuyIn)
	}

	scheduler := bot.NewScheduler(svc, logger, clock, newRng(1))
	scheduler.Watch(ctx, gameID)
	defer scheduler.Stop()

	// An observer watcher: if a bot seat ever stalls (unknown strategy, a
	// scripted placeholder) the turn deadline still resolves the hand.
	watcher := timeout.New(svc, gameID, "", logger, clock, newRng(2))
	watcher.Start(ctx)
	defer watcher.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return playHands(ctx, svc, gameID, cfg.Game.Hands, logger)
	})
	return g.Wait()
}

// playHands waits out each hand and resets the table between them, until
// the configured count is reached or the table can no longer field a hand.
func playHands(ctx context.Context, svc *service.Service, gameID string, hands int, logger *log.Logger) error {
	for hand := 1; hand <= hands; hand++ {
		state, err := waitForHand(ctx, svc, gameID)
		if err != nil {
			return err
		}
		logHandResult(logger, state)

		if hand == hands {
			break
		}
		next, err := svc.Reset(ctx, gameID)
		if err != nil {
			return err
		}
		if next.Status != engine.StatusActive {
			logger.Info("Table can no longer field a hand, stopping early", "handsPlayed", hand)
			break
		}
	}
	logger.Info("Simulation complete")
	return nil
}

func waitForHand(ctx context.Context, svc *service.Service, gameID string) (engine.GameState, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return engine.GameState{}, ctx.Err()
		case <-ticker.C:
			state, err := svc.Load(ctx, gameID)
			if err != nil {
				return engine.GameState{}, err
			}
			if state.Status == engine.StatusCompleted {
				return state, nil
			}
		}
	}
}

func logHandResult(logger *log.Logger, s engine.GameState) {
	for _, p := range s.Players {
		if !p.HasWon {
			continue
		}
		if p.HandName != "" {
			logger.Info("Hand complete",
				"hand", s.HandID, "winner", p.ID, "with", p.HandName, "stack", p.Stack)
		} else {
			logger.Info("Hand complete",
				"hand", s.HandID, "winner", p.ID, "with", "all others folded", "stack", p.Stack)
		}
	}
}
