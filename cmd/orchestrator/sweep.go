package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcflow/orchestrator/job"
)

func sweepCmd() *cobra.Command {
	var postgresDSN string
	var sqlitePath string
	var maxWallClock time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a single supervisor pass over stuck jobs",
		Long:  "sweep fails every job that has been running longer than job_max_wall_clock (spec §4.6 Recovery). It runs one pass and exits, rather than the long-running ticker loop, since this core has no persistent server process (spec §4.8).",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, cleanup, err := buildRuntime(ctx, postgresDSN, sqlitePath)
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			defer cleanup()

			wallClock := maxWallClock
			if wallClock <= 0 {
				wallClock = rt.cfg.Global.JobMaxWallClock
			}
			sup := job.NewSupervisor(rt.states, rt.manager, wallClock)

			cutoff := time.Now().UTC().Add(-sup.MaxWallClock)
			stuck := rt.states.StuckSince(cutoff)
			sup.Sweep(ctx)

			ids := make([]string, 0, len(stuck))
			for _, j := range stuck {
				ids = append(ids, j.JobID)
			}
			out, err := json.MarshalIndent(map[string]any{"swept_job_ids": ids}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal sweep report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres DSN for the config store (default: in-memory, loaded from --config)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite file path for the record store (default: in-memory)")
	cmd.Flags().DurationVar(&maxWallClock, "max-wall-clock", 0, "override job_max_wall_clock from config")
	return cmd
}
