package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/config"
	"github.com/talgya/schelling/internal/entropy"
	"github.com/talgya/schelling/internal/logging"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/population"
)

// addSimFlags registers the flags shared by commands that build a grid.
func addSimFlags(cmd *cobra.Command) {
	cmd.Flags().Int("dimension", 0, "Side length of the torus")
	cmd.Flags().Int("radius", 0, "Agent view radius")
	cmd.Flags().Int("ticks", 0, "Maximum number of ticks")
	cmd.Flags().Int64("seed", 0, "Random seed (0 = random)")
	cmd.Flags().String("population", "", "Population kind: likes-same, likes-others, ages or clustered")
	cmd.Flags().Float64("preference", 0, "Agent preference threshold, 0.0-1.0")
}

// loadConfig reads the config file and environment, applies any flags the
// user set, validates the result and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("db") {
		cfg.Storage.DB, _ = flags.GetString("db")
	}
	if flags.Lookup("dimension") != nil {
		if flags.Changed("dimension") {
			cfg.Grid.Dimension, _ = flags.GetInt("dimension")
		}
		if flags.Changed("radius") {
			cfg.Grid.ViewRadius, _ = flags.GetInt("radius")
		}
		if flags.Changed("ticks") {
			cfg.Run.MaxTicks, _ = flags.GetInt("ticks")
		}
		if flags.Changed("seed") {
			cfg.Run.Seed, _ = flags.GetInt64("seed")
		}
		if flags.Changed("population") {
			cfg.Population.Kind, _ = flags.GetString("population")
		}
		if flags.Changed("preference") {
			cfg.Population.Preference, _ = flags.GetFloat64("preference")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(logging.NewLogger(cfg.Logging.Level, os.Stderr))
	return cfg, nil
}

// resolveSeed returns the configured seed or draws a fresh one.
func resolveSeed(cfg *config.Config) int64 {
	return entropy.Seed(cfg.Run.Seed, entropy.NewClient(cfg.Run.RandomOrgKey))
}

// populate builds the starting grid. The same seed always gives the same
// grid and the same sequence of moves.
func populate(cfg *config.Config, seed int64) (*neighborhood.Grid, error) {
	spawner := population.NewSpawner(seed)
	opt := neighborhood.WithSeed(seed)
	switch cfg.Population.Kind {
	case config.KindLikesSame:
		return spawner.LikesSame(cfg.Split(), opt)
	case config.KindLikesOthers:
		return spawner.LikesOthers(cfg.Split(), opt)
	case config.KindAges:
		return spawner.Ages(cfg.Ages(), opt)
	case config.KindClustered:
		return spawner.Clustered(cfg.Clustered(), opt)
	default:
		return nil, fmt.Errorf("unknown population kind %q", cfg.Population.Kind)
	}
}
