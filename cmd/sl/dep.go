package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage task dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <task-id> <depends-on-id>",
	Short: "Add a dependency edge",
	Long: `Record that the first task depends on the second.

The edge is rejected when it would create a self-dependency, duplicate an
existing edge of the same type, close a cycle, push the task past its
outgoing dependency limit, or cross tenants.

Examples:
  sl dep add PAY-102 PAY-101
  sl dep add PAY-103 PAY-101 --type start-to-start`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		depType, _ := cmd.Flags().GetString("type")
		edgeID, err := engine.AddDependency(ctx, config.Tenant(), args[0], args[1],
			types.DependencyType(depType), config.Actor())
		if err != nil {
			return err
		}
		fmt.Printf("Added dependency [%d]: %s -(%s)-> %s\n", edgeID, args[0], depType, args[1])
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:     "remove <edge-id>",
	Aliases: []string{"rm"},
	Short:   "Remove a dependency edge by ID",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		edgeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid edge ID %q", args[0])
		}
		if err := engine.RemoveDependency(ctx, config.Tenant(), edgeID, config.Actor()); err != nil {
			return err
		}
		fmt.Printf("Removed dependency [%d]\n", edgeID)
		return nil
	},
}

var depListCmd = &cobra.Command{
	Use:   "list <task-id>",
	Short: "List a task's outgoing dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		deps, err := engine.Dependencies(ctx, config.Tenant(), args[0])
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(deps)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "EDGE\tDEPENDS ON\tTYPE\tCREATED BY")
		for _, dep := range deps {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", dep.ID, dep.DependsOnID, dep.Type, dep.CreatedBy)
		}
		return w.Flush()
	},
}

func init() {
	depAddCmd.Flags().String("type", string(types.DepFinishToStart),
		"dependency type (finish-to-start, start-to-start, finish-to-finish, start-to-finish)")
	depListCmd.Flags().Bool("json", false, "output as JSON")

	depCmd.AddCommand(depAddCmd)
	depCmd.AddCommand(depRemoveCmd)
	depCmd.AddCommand(depListCmd)
	rootCmd.AddCommand(depCmd)
}
