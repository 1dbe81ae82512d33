package main

import (
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/config"
	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/export"
	"github.com/talgya/schelling/internal/logging"
	"github.com/talgya/schelling/internal/neighborhood"
	"github.com/talgya/schelling/internal/persistence"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation until no agent is unhappy or the tick limit is hit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			csvPath, _ := cmd.Flags().GetString("csv")
			historyPath, _ := cmd.Flags().GetString("history")
			chartPath, _ := cmd.Flags().GetString("chart")
			save, _ := cmd.Flags().GetBool("save")
			verify, _ := cmd.Flags().GetBool("verify")

			seed := resolveSeed(cfg)
			g, err := populate(cfg, seed)
			if err != nil {
				return fmt.Errorf("populate: %w", err)
			}

			history, err := engine.Run(g, cfg.Run.MaxTicks)
			if err != nil {
				return err
			}
			if logging.TraceEnabled() {
				for _, info := range engine.UnhappyInfo(g) {
					logging.Trace("still unhappy", "agent", info)
				}
			}
			if verify {
				if err := g.Check(); err != nil {
					return fmt.Errorf("grid inconsistent after run: %w", err)
				}
			}

			if csvPath != "" {
				if err := export.WriteCSVFile(csvPath, g); err != nil {
					return err
				}
				slog.Info("grid written", "path", csvPath)
			}
			if historyPath != "" {
				if err := writeHistoryFile(historyPath, history); err != nil {
					return err
				}
				slog.Info("history written", "path", historyPath)
			}
			if chartPath != "" {
				title := fmt.Sprintf("%s, seed %d", cfg.Population.Kind, seed)
				if err := export.WriteHistoryChartFile(chartPath, history, title); err != nil {
					return err
				}
				slog.Info("chart written", "path", chartPath)
			}

			var runID string
			if save {
				runID, err = saveRun(cfg, seed, history, g)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return printJSON(out, map[string]any{
					"run_id":    runID,
					"seed":      seed,
					"agents":    len(g.Agents),
					"converged": history.Converged(),
					"history":   history,
				})
			}
			for _, rec := range history {
				fmt.Fprintf(out, "%d %s\n", rec.Tick, rec.Stats)
			}
			status := "did not converge"
			if history.Converged() {
				status = "converged"
			}
			fmt.Fprintf(out, "%s agents, %s after %d ticks (seed %d)\n",
				humanize.Comma(int64(len(g.Agents))), status, len(history), seed)
			if runID != "" {
				fmt.Fprintf(out, "saved as run %s\n", runID)
			}
			return nil
		},
	}

	addSimFlags(cmd)
	cmd.Flags().String("csv", "", "Write the final grid as CSV (e.g. "+export.DefaultGridFile+")")
	cmd.Flags().String("history", "", "Write the per-tick history as CSV")
	cmd.Flags().String("chart", "", "Write the per-tick history as a PNG chart")
	cmd.Flags().Bool("save", false, "Store the run in the database")
	cmd.Flags().Bool("verify", false, "Check grid consistency after the run")
	return cmd
}

// saveRun stores a finished run in the configured database.
func saveRun(cfg *config.Config, seed int64, history engine.History, g *neighborhood.Grid) (string, error) {
	db, err := persistence.Open(cfg.Storage.DB)
	if err != nil {
		return "", err
	}
	defer db.Close()

	run, err := persistence.NewRun(seed, cfg.Grid.Dimension, cfg.Population.Kind, cfg)
	if err != nil {
		return "", err
	}
	if err := db.SaveRun(run, history, g); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	return run.ID, nil
}
