package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nostrband/keep.ai-sub004/internal/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run <script-file>",
	Short: "Evaluate a script file in a fresh sandbox",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	code, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	sb, err := sandbox.New(sandbox.Options{})
	if err != nil {
		return fmt.Errorf("failed to initialize sandbox: %w", err)
	}
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), string(code), sandbox.EvaluateOptions{
		Filename:  args[0],
		TimeoutMs: timeoutMs,
	})

	if !res.Ok {
		return fmt.Errorf("script failed: %s", res.ErrMsg)
	}

	fmt.Printf("%v\n", res.Result)
	return nil
}
