package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/types"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Create and inspect tasks",
}

var taskCreateCmd = &cobra.Command{
	Use:   "create <id> <title>",
	Short: "Create a task",
	Long: `Create a task in the current tenant.

Examples:
  sl task create PAY-101 "Implement checkout flow"
  sl task create BUG-7 "Payment times out" --kind defect --project payments`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		kind, _ := cmd.Flags().GetString("kind")
		project, _ := cmd.Flags().GetString("project")

		task := &types.Task{
			ID:        args[0],
			TenantID:  config.Tenant(),
			ProjectID: project,
			Title:     args[1],
			Kind:      types.EntityKind(kind),
			Status:    types.StatusTodo,
			CreatedBy: config.Actor(),
		}
		if err := engine.CreateTask(ctx, task); err != nil {
			return err
		}
		fmt.Printf("Created %s %s: %s\n", task.Kind, task.ID, task.Title)
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tenant's tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tasks, err := engine.ListTasks(ctx, config.Tenant())
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(tasks)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTITLE")
		for _, task := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", task.ID, task.Kind, task.Status, task.Title)
		}
		return w.Flush()
	},
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its dependencies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tenant := config.Tenant()
		task, err := engine.GetTask(ctx, tenant, args[0])
		if err != nil {
			return err
		}
		deps, err := engine.Dependencies(ctx, tenant, task.ID)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(struct {
				Task         *types.Task            `json:"task"`
				Dependencies []*types.TaskDependency `json:"dependencies"`
			}{task, deps})
		}

		fmt.Printf("%s [%s] %s\n", task.ID, task.Status, task.Title)
		fmt.Printf("  kind: %s  project: %s  created by: %s\n", task.Kind, task.ProjectID, task.CreatedBy)
		if len(deps) > 0 {
			fmt.Println("  depends on:")
			for _, dep := range deps {
				fmt.Printf("    [%d] %s (%s)\n", dep.ID, dep.DependsOnID, dep.Type)
			}
		}
		return nil
	},
}

func init() {
	taskCreateCmd.Flags().String("kind", string(types.KindTask), "entity kind (task, defect)")
	taskCreateCmd.Flags().String("project", "", "project the task belongs to")
	taskListCmd.Flags().Bool("json", false, "output as JSON")
	taskShowCmd.Flags().Bool("json", false, "output as JSON")

	taskCmd.AddCommand(taskCreateCmd)
	taskCmd.AddCommand(taskListCmd)
	taskCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(taskCmd)
}
