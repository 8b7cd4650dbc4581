// Package config holds the runtime configuration for the engine: storage
// backend selection, workflow table location and logging. Configuration
// merges (highest precedence first) SL_* environment variables, a
// config.yaml, and built-in defaults. A .env file is loaded first when
// present, so container deployments can ship connection strings without
// exporting them.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage backend names accepted in configuration.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	// Load .env if present; real environment always wins.
	_ = godotenv.Load()

	v = viper.New()
	v.SetConfigType("yaml")

	// Explicitly locate config.yaml.
	// Precedence: project .sprintlane/config.yaml > ~/.config/sl/config.yaml > ~/.sprintlane/config.yaml
	configFileSet := false

	// 1. Walk up from CWD to find project .sprintlane/config.yaml, so
	//    commands work from subdirectories.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".sprintlane", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/sl/config.yaml)
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "sl", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory (~/.sprintlane/config.yaml)
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".sprintlane", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
			}
		}
	}

	// Environment variables take precedence over the config file.
	// E.g., SL_BACKEND, SL_TENANT, SL_DATABASE_URL, SL_WORKFLOW_FILE
	v.SetEnvPrefix("SL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("sqlite-path", defaultSQLitePath())
	v.SetDefault("database-url", "")
	v.SetDefault("tenant", "default")
	v.SetDefault("actor", "")
	v.SetDefault("role", "contributor")
	v.SetDefault("workflow-file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("log.file", "")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env apply.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && v.ConfigFileUsed() != "" {
			return fmt.Errorf("failed to read config %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return nil
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "sprintlane.db"
	}
	return filepath.Join(home, ".sprintlane", "sprintlane.db")
}

func ensure() *viper.Viper {
	if v == nil {
		_ = Initialize()
	}
	return v
}

// Backend returns the configured storage backend name.
func Backend() string {
	return ensure().GetString("backend")
}

// SQLitePath returns the SQLite database file path.
func SQLitePath() string {
	return ensure().GetString("sqlite-path")
}

// DatabaseURL returns the postgres connection string.
func DatabaseURL() string {
	return ensure().GetString("database-url")
}

// Tenant returns the tenant the CLI operates in.
func Tenant() string {
	return ensure().GetString("tenant")
}

// Actor returns the acting user ID recorded on writes. Falls back to the
// OS user when unset.
func Actor() string {
	if actor := ensure().GetString("actor"); actor != "" {
		return actor
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

// Role returns the configured acting role name.
func Role() string {
	return ensure().GetString("role")
}

// WorkflowFile returns the path of the transition table file. Empty means
// the built-in tables.
func WorkflowFile() string {
	return ensure().GetString("workflow-file")
}

// LogLevel returns the configured log level.
func LogLevel() string {
	return ensure().GetString("log.level")
}

// LogJSON reports whether logs use the JSON formatter.
func LogJSON() bool {
	return ensure().GetBool("log.json")
}

// LogFile returns the rotating log file path, empty for stderr only.
func LogFile() string {
	return ensure().GetString("log.file")
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	return ensure().ConfigFileUsed()
}

// Set overrides a config value at runtime. Used by CLI flag binding.
func Set(key string, value interface{}) {
	ensure().Set(key, value)
}
