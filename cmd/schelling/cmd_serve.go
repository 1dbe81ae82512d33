package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/api"
	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/persistence"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a paced simulation behind the HTTP observation API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port, _ = cmd.Flags().GetInt("port")
			}
			keepAlive, _ := cmd.Flags().GetBool("keep-alive")

			// ── Database ──────────────────────────────────────────────
			db, err := persistence.Open(cfg.Storage.DB)
			if err != nil {
				return err
			}
			defer db.Close()
			slog.Info("database opened", "path", cfg.Storage.DB)

			// ── Neighborhood ──────────────────────────────────────────
			seed := resolveSeed(cfg)
			g, err := populate(cfg, seed)
			if err != nil {
				return fmt.Errorf("populate: %w", err)
			}
			run, err := persistence.NewRun(seed, cfg.Grid.Dimension, cfg.Population.Kind, cfg)
			if err != nil {
				return err
			}
			sim := engine.NewSimulation(g)

			save := func() {
				history := sim.History()
				var err error
				sim.View(func(g *neighborhood.Grid) {
					err = db.SaveRun(run, history, g)
				})
				if err != nil {
					slog.Error("save failed", "run", run.ID, "error", err)
				}
			}

			// ── Engine ────────────────────────────────────────────────
			eng := engine.NewEngine()
			eng.Interval = cfg.Run.Interval
			maxTicks := uint64(cfg.Run.MaxTicks)
			eng.OnTick = func(tick uint64) bool {
				if maxTicks > 0 && tick >= maxTicks && !keepAlive {
					return false
				}
				_, done, err := sim.Step()
				if err != nil {
					slog.Error("tick failed", "tick", tick, "error", err)
					return false
				}
				if done && !keepAlive {
					slog.Info("neighborhood settled", "tick", tick)
					return false
				}
				return true
			}
			eng.OnReport = func(tick uint64) {
				save()
			}

			// ── HTTP API ──────────────────────────────────────────────
			if cfg.API.AdminKey == "" {
				slog.Warn("SCHELLING_ADMIN_KEY not set, admin POST endpoints will be disabled")
			}
			apiServer := &api.Server{
				Sim:      sim,
				Eng:      eng,
				DB:       db,
				Run:      run,
				Port:     cfg.API.Port,
				AdminKey: cfg.API.AdminKey,
				Origins:  cfg.API.CORSOrigins,
			}
			apiServer.Start()

			// ── Start ─────────────────────────────────────────────────
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Neighborhood of %s agents on a %dx%d torus (seed %d, run %s)\n",
				humanize.Comma(int64(len(g.Agents))), cfg.Grid.Dimension, cfg.Grid.Dimension, seed, run.ID)
			fmt.Fprintf(out, "API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
			fmt.Fprintln(out, "Starting simulation... (Ctrl+C to stop)")

			eng.Run(ctx)

			slog.Info("final save...")
			save()
			st := sim.Status()
			fmt.Fprintf(out, "Simulation stopped after %d ticks (converged: %t). Run %s saved.\n",
				st.Ticks, st.Converged, run.ID)
			return nil
		},
	}

	addSimFlags(cmd)
	cmd.Flags().Int("port", 0, "HTTP API port")
	cmd.Flags().Bool("keep-alive", false, "Keep the engine and API up after the neighborhood settles")
	return cmd
}
