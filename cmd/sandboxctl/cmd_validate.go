package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nostrband/keep.ai-sub004/internal/tools"
)

var validateCmd = &cobra.Command{
	Use:   "validate <manifest-file>",
	Short: "Check a tool manifest's schemas compile and register cleanly",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// toolManifestEntry mirrors tools.Tool's serializable fields; Execute/
// IsReadOnly are behavior, not data, so a manifest only describes shape.
type toolManifestEntry struct {
	Namespace    string        `json:"Namespace"`
	Name         string        `json:"Name"`
	Description  string        `json:"Description"`
	InputSchema  *tools.Schema `json:"InputSchema"`
	OutputSchema *tools.Schema `json:"OutputSchema"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var entries []toolManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	reg := tools.NewRegistry()
	var failures int
	for _, e := range entries {
		t := &tools.Tool{
			Namespace:    e.Namespace,
			Name:         e.Name,
			Description:  e.Description,
			InputSchema:  e.InputSchema,
			OutputSchema: e.OutputSchema,
			Execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
				return nil, fmt.Errorf("manifest tool has no executable body")
			},
		}
		if err := reg.Register(t); err != nil {
			failures++
			fmt.Printf("FAIL %s: %v\n", t.FullName(), err)
			continue
		}
		fmt.Printf("OK   %s\n", t.FullName())
	}

	fmt.Printf("\n%d tool(s) checked, %d failed\n", len(entries), failures)
	if failures > 0 {
		return fmt.Errorf("%d tool(s) failed validation", failures)
	}
	return nil
}
