package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/nostrband/keep.ai-sub004/internal/sandbox"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <script-dir>",
	Short: "Re-run a script on every change, for iterative development",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 150*time.Millisecond, "Minimum time between re-runs")
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	fmt.Printf("watching %s, ctrl-c to stop\n", dir)

	var lastRun time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".go") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if time.Since(lastRun) < watchDebounce {
				continue
			}
			lastRun = time.Now()
			runWatchedScript(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func runWatchedScript(path string) {
	code, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
		return
	}

	sb, err := sandbox.New(sandbox.Options{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize sandbox: %v\n", err)
		return
	}
	defer sb.Dispose()

	res := sb.Evaluate(context.Background(), string(code), sandbox.EvaluateOptions{
		Filename:  filepath.Base(path),
		TimeoutMs: timeoutMs,
	})

	if !res.Ok {
		fmt.Printf("[%s] FAIL: %s\n", filepath.Base(path), res.ErrMsg)
		return
	}
	fmt.Printf("[%s] OK: %v\n", filepath.Base(path), res.Result)
}
