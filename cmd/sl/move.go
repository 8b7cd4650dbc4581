package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/service"
	"github.com/sprintlane/sprintlane/internal/types"
	"github.com/sprintlane/sprintlane/internal/workflow"
)

var moveCmd = &cobra.Command{
	Use:   "move <task-id> <to-status>",
	Short: "Move a task to a new workflow status",
	Long: `Validate and apply a workflow transition. The move is checked against
the transition table for the task's kind, the acting role's capabilities,
and any named condition on the table entry. Every attempt, allowed or
denied, lands in the audit trail.

Conditions the operator has verified out-of-band are asserted with
--satisfy; for example review sign-off:

  sl move PAY-101 in_progress
  sl move PAY-101 done --satisfy qa_approval
  sl move PAY-101 done --dry-run`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		satisfied, _ := cmd.Flags().GetStringSlice("satisfy")
		evaluator := workflow.ConditionFunc(func(_ context.Context, condition, _, _ string) (bool, error) {
			for _, s := range satisfied {
				if s == condition {
					return true, nil
				}
			}
			return false, nil
		})

		engine, store, err := newEngine(ctx, service.WithConditionEvaluator(evaluator))
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		tenant := config.Tenant()
		to := types.Status(args[1])
		if !to.IsValid() {
			return fmt.Errorf("invalid status %q", args[1])
		}

		task, err := engine.GetTask(ctx, tenant, args[0])
		if err != nil {
			return err
		}

		req := workflow.TransitionRequest{
			Kind:      task.Kind,
			EntityID:  task.ID,
			From:      task.Status,
			To:        to,
			ActorID:   config.Actor(),
			TenantID:  tenant,
			ProjectID: task.ProjectID,
		}

		var decision workflow.Decision
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			decision, err = engine.ValidateTransition(ctx, req)
		} else {
			decision, err = engine.ApplyTransition(ctx, req)
		}
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return fmt.Errorf("transition %s -> %s denied: %s", task.Status, to, decision.Reason)
		}

		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			fmt.Printf("Transition %s: %s -> %s would be allowed\n", task.ID, task.Status, to)
		} else {
			fmt.Printf("Moved %s: %s -> %s\n", task.ID, task.Status, to)
		}
		return nil
	},
}

func init() {
	moveCmd.Flags().StringSlice("satisfy", nil, "named conditions verified by the operator")
	moveCmd.Flags().Bool("dry-run", false, "validate without applying")
	rootCmd.AddCommand(moveCmd)
}
