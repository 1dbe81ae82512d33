package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/engine"
	"github.com/talgya/schelling/internal/export"
	"github.com/talgya/schelling/internal/persistence"
	"github.com/talgya/schelling/internal/world"
)

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Export a stored run's final grid, history or chart",
		Long: `Export a stored run. Without a run id the most recently saved run is used.
The grid export records type labels only; preferences are not kept.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			csvPath, _ := cmd.Flags().GetString("csv")
			historyPath, _ := cmd.Flags().GetString("history")
			chartPath, _ := cmd.Flags().GetString("chart")
			if csvPath == "" && historyPath == "" && chartPath == "" {
				csvPath = export.DefaultGridFile
			}

			db, err := persistence.Open(cfg.Storage.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			var id string
			if len(args) == 1 {
				id = args[0]
			} else if id, err = db.GetMeta("last_run"); err != nil {
				return fmt.Errorf("no saved runs: %w", err)
			}
			run, err := db.GetRun(id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if csvPath != "" {
				lots, err := db.LoadLots(run.ID)
				if err != nil {
					return err
				}
				layout := export.Layout{Dimension: run.Dimension}
				for _, lot := range lots {
					layout.Cells = append(layout.Cells, export.Cell{
						Coord: world.Coord{X: lot.X, Y: lot.Y},
						Label: lot.Label,
					})
				}
				g, err := layout.Build(0)
				if err != nil {
					return fmt.Errorf("rebuild grid: %w", err)
				}
				if err := export.WriteCSVFile(csvPath, g); err != nil {
					return err
				}
				fmt.Fprintf(out, "grid of run %s written to %s\n", run.ID, csvPath)
			}

			if historyPath != "" || chartPath != "" {
				history, err := db.LoadHistory(run.ID)
				if err != nil {
					return err
				}
				if historyPath != "" {
					if err := writeHistoryFile(historyPath, history); err != nil {
						return err
					}
					fmt.Fprintf(out, "history of run %s written to %s\n", run.ID, historyPath)
				}
				if chartPath != "" {
					title := fmt.Sprintf("%s, seed %d", run.Population, run.Seed)
					if err := export.WriteHistoryChartFile(chartPath, history, title); err != nil {
						return err
					}
					fmt.Fprintf(out, "chart of run %s written to %s\n", run.ID, chartPath)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("csv", "", "Grid CSV output path (default "+export.DefaultGridFile+" when nothing else is asked for)")
	cmd.Flags().String("history", "", "History CSV output path")
	cmd.Flags().String("chart", "", "History PNG chart output path")
	return cmd
}

func writeHistoryFile(path string, h engine.History) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteHistoryCSV(f, h); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
