package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arcflow/orchestrator/config"
)

func runCmd() *cobra.Command {
	var postgresDSN string
	var sqlitePath string
	var envelopePath string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single job envelope to completion and print its result",
		Long:  "run reads one JobEnvelope (from --envelope or stdin), drives it through the playbook, and prints the resulting job state as JSON (spec §4.8: each job is a one-shot unit of work).",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readEnvelopeSource(envelopePath)
			if err != nil {
				return err
			}

			var env config.JobEnvelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return fmt.Errorf("parse job envelope: %w", err)
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			rt, cleanup, err := buildRuntime(ctx, postgresDSN, sqlitePath)
			if err != nil {
				return fmt.Errorf("build runtime: %w", err)
			}
			defer cleanup()

			res, runErr := rt.orch.Run(ctx, env)
			if res == nil {
				if runErr != nil {
					return runErr
				}
				return fmt.Errorf("orchestrator returned no result")
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			// runErr is still surfaced as the command's exit status even though
			// the job's own failed/cancelled state is already in the printed
			// result (spec §4.6: a failed job is a normal outcome, not a crash).
			return runErr
		},
	}

	cmd.Flags().StringVar(&envelopePath, "envelope", "", "path to a JSON JobEnvelope file (default: read from stdin)")
	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres DSN for the config store (default: in-memory, loaded from --config)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite file path for the record store (default: in-memory)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall command timeout (default: envelope's own deadline)")
	return cmd
}

func readEnvelopeSource(path string) ([]byte, error) {
	if path == "" {
		raw, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read envelope from stdin: %w", err)
		}
		return raw, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope file %q: %w", path, err)
	}
	return raw, nil
}
