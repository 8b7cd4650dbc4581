package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
)

var auditCmd = &cobra.Command{
	Use:   "audit [task-id]",
	Short: "Show the transition audit trail",
	Long: `List recorded workflow transition attempts, most recent first. With a
task ID only that task's attempts are shown; without one the tenant's full
trail is listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		engine, store, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		entityID := ""
		if len(args) == 1 {
			entityID = args[0]
		}
		attempts, err := engine.Audit(ctx, config.Tenant(), entityID)
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(os.Stdout).Encode(attempts)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "WHEN\tENTITY\tFROM\tTO\tROLE\tRESULT\tREASON")
		for _, a := range attempts {
			result := "allowed"
			if !a.Allowed {
				result = "denied"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				a.AttemptedAt.Format("2006-01-02 15:04:05"),
				a.EntityID, a.FromStatus, a.ToStatus, a.ActingRole, result, a.Reason)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(auditCmd)
}
