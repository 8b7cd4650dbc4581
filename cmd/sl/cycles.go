package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
)

var cyclesCmd = &cobra.Command{
	Use:   "cycles",
	Short: "Check the dependency graph for cycles",
	Long: `Scan the tenant's dependency graph for directed cycles. The engine
rejects cycle-creating edges on insert, so any finding points at data
written outside the engine (imports, manual database edits).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		cycles, err := engine.FindCycles(ctx, config.Tenant())
		if err != nil {
			return err
		}
		if len(cycles) == 0 {
			fmt.Println("No cycles found")
			return nil
		}
		for _, cycle := range cycles {
			fmt.Printf("Cycle: %s -> %s\n", strings.Join(cycle, " -> "), cycle[0])
		}
		return fmt.Errorf("found %d cycle(s)", len(cycles))
	},
}

func init() {
	rootCmd.AddCommand(cyclesCmd)
}
