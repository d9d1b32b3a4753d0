package main

import (
	"log/slog"
	"os"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/internal/logger"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    executor.WorkerCommand,
	Short:  "Run one isolated invocation (internal)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE:   runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker reads one request from stdin and writes the worker protocol to
// stdout. Logs go to stderr, which the host forwards.
func runWorker(cmd *cobra.Command, args []string) error {
	log := logger.New(os.Stderr, slog.LevelWarn, logger.FormatText)
	slog.SetDefault(log)

	runners, err := newRunners(cmd, log)
	if err != nil {
		return err
	}
	defer runners.Close()

	return executor.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), runners)
}
