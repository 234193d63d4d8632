// Package main implements sandboxctl, a small CLI around the script
// sandbox: run a script file against a fresh Sandbox, validate a tool
// registry's schemas, print rendered tool docs, and watch a script
// directory in dev mode.
//
// Command implementations are split across cmd_*.go files, mirroring
// how larger CLI entry points in this codebase separate command
// registration (this file) from command bodies.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nostrband/keep.ai-sub004/internal/logging"
)

var (
	verbose   bool
	workspace string
	timeoutMs int64

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "sandboxctl drives the script sandbox from the command line",
	Long: `sandboxctl is a development CLI for the script execution engine.

It runs scripts against a fresh Sandbox, validates tool registries,
renders tool documentation, and watches a script directory for
iterative development.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws := workspace
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().Int64Var(&timeoutMs, "timeout-ms", 300, "Evaluate deadline in milliseconds, -1 for infinite")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
