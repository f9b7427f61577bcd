// Command orchestrator is the one-shot CLI entry point for the
// orchestrator core (spec §4.8 step 1: "dispatched as a one-shot task;
// there is no long-running server in this core — each job is a unit of
// work"). It reads a single JobEnvelope, runs it to completion (or
// failure/clarification), and prints the resulting job state as JSON.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFile    string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Multi-tenant agent orchestration engine",
	Long:  "orchestrator resolves a domain's playbook into a DAG of agent invocations, aggregates their confidence, and persists the result — one JobEnvelope per invocation.",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "orchestrator.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "log file path (empty = stderr)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("orchestrator dev")
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
