package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/talgya/schelling/internal/persistence"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			jsonOut, _ := cmd.Flags().GetBool("json")

			db, err := persistence.Open(cfg.Storage.DB)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.ListRuns(limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if runs == nil {
					runs = []persistence.Run{}
				}
				return printJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs stored.")
				return nil
			}
			for _, r := range runs {
				started := r.Started
				if t, err := time.Parse(time.RFC3339, r.Started); err == nil {
					started = humanize.Time(t)
				}
				status := "unsettled"
				if r.Converged {
					status = "converged"
				}
				fmt.Fprintf(out, "%s  %-12s %4dx%-4d seed %-20d %4d ticks  %-9s  %s\n",
					r.ID, r.Population, r.Dimension, r.Dimension, r.Seed, r.Ticks, status, started)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum number of runs to list")
	return cmd
}
