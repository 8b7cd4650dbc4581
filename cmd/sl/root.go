package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sprintlane/sprintlane/internal/config"
	"github.com/sprintlane/sprintlane/internal/log"
	"github.com/sprintlane/sprintlane/internal/service"
	"github.com/sprintlane/sprintlane/internal/storage"
	"github.com/sprintlane/sprintlane/internal/storage/factory"
	"github.com/sprintlane/sprintlane/internal/types"
	"github.com/sprintlane/sprintlane/internal/workflow"
)

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Sprintlane task dependency and workflow engine",
	Long: `sl manages the task dependency graph and workflow transitions of a
Sprintlane project: add and remove depends-on edges (with cycle, duplicate
and limit enforcement), move tasks through their status workflow, and
inspect the transition audit trail.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		bindRootFlags(cmd)
		log.Configure(log.Options{
			Level: config.LogLevel(),
			JSON:  config.LogJSON(),
			File:  config.LogFile(),
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("tenant", "", "tenant to operate in (default from config)")
	rootCmd.PersistentFlags().String("actor", "", "acting user recorded on writes")
	rootCmd.PersistentFlags().String("role", "", "acting role (viewer, contributor, reviewer, maintainer)")
	rootCmd.PersistentFlags().String("backend", "", "storage backend (memory, sqlite, postgres)")
	rootCmd.PersistentFlags().String("db", "", "database path (sqlite) or connection string (postgres)")
}

// bindRootFlags copies set persistent flags over the config singleton, so
// flags beat both environment and config file.
func bindRootFlags(cmd *cobra.Command) {
	flags := cmd.Root().PersistentFlags()
	if v, _ := flags.GetString("tenant"); v != "" {
		config.Set("tenant", v)
	}
	if v, _ := flags.GetString("actor"); v != "" {
		config.Set("actor", v)
	}
	if v, _ := flags.GetString("role"); v != "" {
		config.Set("role", v)
	}
	if v, _ := flags.GetString("backend"); v != "" {
		config.Set("backend", v)
	}
	if v, _ := flags.GetString("db"); v != "" {
		switch config.Backend() {
		case config.BackendPostgres:
			config.Set("database-url", v)
		default:
			config.Set("sqlite-path", v)
		}
	}
}

// openStore opens the configured storage backend.
func openStore(ctx context.Context) (storage.Store, error) {
	backend := config.Backend()
	dsn := config.SQLitePath()
	if backend == config.BackendPostgres {
		dsn = config.DatabaseURL()
	}
	return factory.New(ctx, backend, dsn)
}

// loadStateMachine returns the configured transition tables, falling back
// to the built-in defaults.
func loadStateMachine() (*workflow.StateMachine, error) {
	if path := config.WorkflowFile(); path != "" {
		return workflow.LoadStateMachine(path)
	}
	return workflow.DefaultStateMachine(), nil
}

// newEngine opens the store and assembles the engine façade. The caller
// must Close the returned store.
func newEngine(ctx context.Context, opts ...service.EngineOption) (*service.Engine, storage.Store, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	machine, err := loadStateMachine()
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	role := types.Role(config.Role())
	if !role.IsValid() {
		_ = store.Close()
		return nil, nil, fmt.Errorf("invalid role %q", config.Role())
	}

	base := []service.EngineOption{
		service.WithLogger(log.GetLogger()),
		service.WithRoleResolver(&service.StaticRoleResolver{Default: role}),
	}
	engine := service.NewEngine(store, machine, append(base, opts...)...)
	return engine, store, nil
}
