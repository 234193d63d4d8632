package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nostrband/keep.ai-sub004/internal/tools"
)

var docsCmd = &cobra.Command{
	Use:   "docs <manifest-file> [name-prefix]",
	Short: "Render tool documentation from a manifest",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDocs,
}

func runDocs(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var entries []toolManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("failed to parse manifest: %w", err)
	}

	reg := tools.NewRegistry()
	for _, e := range entries {
		t := &tools.Tool{
			Namespace:    e.Namespace,
			Name:         e.Name,
			Description:  e.Description,
			InputSchema:  e.InputSchema,
			OutputSchema: e.OutputSchema,
			Execute: func(ctx context.Context, input map[string]any) (map[string]any, error) {
				return nil, nil
			},
		}
		_ = reg.Register(t)
	}

	prefix := ""
	if len(args) == 2 {
		prefix = args[1]
	}

	doc := reg.GetDocs(prefix)
	if doc == "" {
		fmt.Println("no matching tools")
		return nil
	}
	fmt.Println(doc)
	return nil
}
