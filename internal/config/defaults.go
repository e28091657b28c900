package config

import "time"

// Default configuration values.
const (
	DefaultWorkspace     = "default"
	DefaultModelsDir     = "models"
	DefaultMacrosDir     = "macros"
	DefaultStoragePath   = ".workbench/session.db"
	DefaultHistoryPath   = ".workbench/history.db"
	DefaultMaxTabs       = 12
	DefaultMaxResults    = 5
	DefaultMaxOutputs    = 200
	DefaultFlushInterval = 500 * time.Millisecond
	DefaultMaxRows       = 1000
	DefaultQueryTimeout  = 30 * time.Second
	DefaultEnvironment   = "dev"
	DefaultPort          = 8765
)

// MemoryPath selects an in-memory database for storage.path or history.path.
const MemoryPath = ":memory:"

func defaults() map[string]any {
	return map[string]any{
		"workspace":              DefaultWorkspace,
		"models_dir":             DefaultModelsDir,
		"macros_dir":             DefaultMacrosDir,
		"storage.path":           DefaultStoragePath,
		"history.path":           DefaultHistoryPath,
		"session.max_tabs":       DefaultMaxTabs,
		"session.max_results":    DefaultMaxResults,
		"session.max_outputs":    DefaultMaxOutputs,
		"session.flush_interval": DefaultFlushInterval.String(),
		"query.max_rows":         DefaultMaxRows,
		"query.timeout":          DefaultQueryTimeout.String(),
		"default_environment":    DefaultEnvironment,
		"ui.port":                DefaultPort,
		"ui.secure_cookies":      false,
		"verbose":                false,
	}
}

// defaultEnvironments is used when the configuration declares none.
func defaultEnvironments() map[string]EnvironmentConfig {
	return map[string]EnvironmentConfig{
		DefaultEnvironment: {Name: "Development", Driver: "sqlite", DSN: MemoryPath},
	}
}
