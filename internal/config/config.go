// Package config loads the simulator's HCL configuration: one game block
// and any number of bot seats.
package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/tablestakes/holdem-core/internal/bot"
	"github.com/tablestakes/holdem-core/internal/engine"
)

// Config is the complete simulator configuration.
type Config struct {
	Game *GameSettings `hcl:"game,block"`
	Bots []BotConfig   `hcl:"bot,block"`
}

// GameSettings contains table-level configuration.
type GameSettings struct {
	SmallBlind int    `hcl:"small_blind,optional"`
	BigBlind   int    `hcl:"big_blind,optional"`
	TurnMs     int    `hcl:"turn_ms,optional"`
	Hands      int    `hcl:"hands,optional"`
	Seed       int64  `hcl:"seed,optional"`
	LogLevel   string `hcl:"log_level,optional"`
}

// BotConfig defines one automated seat.
type BotConfig struct {
	Name     string `hcl:"name,label"`
	Strategy string `hcl:"strategy"`
	BuyIn    int    `hcl:"buy_in,optional"`
}

// Default returns the configuration used when no file is present: a
// heads-up call-any table.
func Default() *Config {
	return &Config{
		Game: &GameSettings{
			SmallBlind: engine.DefaultSmallBlind,
			BigBlind:   engine.DefaultBigBlind,
			TurnMs:     engine.DefaultTurnMs,
			Hands:      5,
			LogLevel:   "info",
		},
		Bots: []BotConfig{
			{Name: "bot1", Strategy: bot.StrategyCallAny, BuyIn: 1000},
			{Name: "bot2", Strategy: bot.StrategyCallAny, BuyIn: 1000},
		},
	}
}

// Load reads the HCL configuration file. A missing file yields Default();
// missing values within an existing file get the same defaults.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	if config.Game == nil {
		config.Game = &GameSettings{}
	}
	if config.Game.SmallBlind == 0 {
		config.Game.SmallBlind = engine.DefaultSmallBlind
	}
	if config.Game.BigBlind == 0 {
		config.Game.BigBlind = engine.DefaultBigBlind
	}
	if config.Game.TurnMs == 0 {
		config.Game.TurnMs = engine.DefaultTurnMs
	}
	if config.Game.Hands == 0 {
		config.Game.Hands = 5
	}
	if config.Game.LogLevel == "" {
		config.Game.LogLevel = "info"
	}

	for i := range config.Bots {
		if config.Bots[i].BuyIn == 0 {
			config.Bots[i].BuyIn = config.Game.BigBlind * 50
		}
	}

	return &config, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Game.SmallBlind <= 0 {
		return fmt.Errorf("small blind must be positive")
	}
	if c.Game.BigBlind <= c.Game.SmallBlind {
		return fmt.Errorf("big blind %d must be greater than small blind %d", c.Game.BigBlind, c.Game.SmallBlind)
	}
	if c.Game.TurnMs <= 0 {
		return fmt.Errorf("turn budget must be positive")
	}
	if c.Game.Hands <= 0 {
		return fmt.Errorf("hand count must be positive")
	}
	if len(c.Bots) < 2 {
		return fmt.Errorf("at least two bot seats must be configured")
	}

	seen := make(map[string]bool)
	for _, b := range c.Bots {
		if seen[b.Name] {
			return fmt.Errorf("bot %s: duplicate name", b.Name)
		}
		seen[b.Name] = true
		if _, ok := bot.ByName(b.Strategy); !ok {
			return fmt.Errorf("bot %s: unknown strategy %s", b.Name, b.Strategy)
		}
		if b.BuyIn <= 0 {
			return fmt.Errorf("bot %s: buy-in must be positive", b.Name)
		}
	}
	return nil
}
