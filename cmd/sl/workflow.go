package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/log"
)

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Show the active transition tables",
	Long: `Print every transition the active workflow tables define, with the
required capability and condition per entry. The tables come from the
configured workflow file, or the built-in defaults when none is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		machine, err := loadStateMachine()
		if err != nil {
			return err
		}

		if path := config.WorkflowFile(); path != "" {
			fmt.Printf("Tables from %s\n\n", path)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tFROM\tTO\tREQUIRES\tCONDITION")
		for _, rule := range machine.Rules() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", rule.Kind, rule.From, rule.To, rule.Requires, rule.Condition)
		}
		return w.Flush()
	},
}

var workflowWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the workflow file for edits",
	Long: `Watch the configured workflow file and report edits. Transition tables
are immutable at runtime; running engines pick a changed file up only on
restart, and this command tells the operator when that is due.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.WorkflowFile()
		if path == "" {
			return fmt.Errorf("no workflow file configured")
		}

		logger := log.GetLogger()
		stop, err := config.WatchWorkflowFile(path, logger, func() {
			if _, err := loadStateMachine(); err != nil {
				logger.WithError(err).Error("changed workflow file does not validate")
				return
			}
			logger.Info("workflow file validates; restart engines to apply")
		})
		if err != nil {
			return err
		}
		defer stop()

		fmt.Printf("Watching %s (Ctrl-C to stop)\n", path)
		<-cmd.Context().Done()
		return nil
	},
}

func init() {
	workflowCmd.AddCommand(workflowWatchCmd)
	rootCmd.AddCommand(workflowCmd)
}
