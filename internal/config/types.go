// Package config loads the workbench configuration. Values are layered as
// defaults, then workbench.yaml, then WORKBENCH_ environment variables,
// then command-line flags.
package config

import (
	"sort"
	"time"

	"github.com/leapstack-labs/workbench/internal/backend"
)

// Config is the complete workbench configuration.
type Config struct {
	Workspace          string                       `koanf:"workspace"`
	ProjectDir         string                       `koanf:"project_dir"`
	ModelsDir          string                       `koanf:"models_dir"`
	MacrosDir          string                       `koanf:"macros_dir"`
	Storage            StorageConfig                `koanf:"storage"`
	History            StorageConfig                `koanf:"history"`
	Session            SessionConfig                `koanf:"session"`
	Query              QueryConfig                  `koanf:"query"`
	DefaultEnvironment string                       `koanf:"default_environment"`
	Environments       map[string]EnvironmentConfig `koanf:"environments"`
	UI                 UIConfig                     `koanf:"ui"`
	Verbose            bool                         `koanf:"verbose"`

	// ConfigFile is the file that was loaded, empty when none was found.
	ConfigFile string `koanf:"-"`
}

// StorageConfig locates a SQLite database. Relative paths are resolved
// against the project directory.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// SessionConfig bounds the session state.
type SessionConfig struct {
	MaxTabs       int           `koanf:"max_tabs"`
	MaxResults    int           `koanf:"max_results"`
	MaxOutputs    int           `koanf:"max_outputs"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// QueryConfig bounds one execution.
type QueryConfig struct {
	MaxRows int           `koanf:"max_rows"`
	Timeout time.Duration `koanf:"timeout"`
}

// EnvironmentConfig is one execution target.
type EnvironmentConfig struct {
	Name     string `koanf:"name"`
	Driver   string `koanf:"driver"` // sqlite, duckdb or pgx
	DSN      string `koanf:"dsn"`
	Schema   string `koanf:"schema"`
	Database string `koanf:"database"`
}

// UIConfig configures the HTTP server.
type UIConfig struct {
	Port          int    `koanf:"port"`
	SessionSecret string `koanf:"session_secret"`
	// SecureCookies marks the workspace cookie Secure; enable behind HTTPS.
	SecureCookies bool `koanf:"secure_cookies"`
}

// BackendEnvironments converts the environments for backend.New, sorted by id.
func (c *Config) BackendEnvironments() []backend.Environment {
	ids := make([]string, 0, len(c.Environments))
	for id := range c.Environments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]backend.Environment, 0, len(ids))
	for _, id := range ids {
		e := c.Environments[id]
		out = append(out, backend.Environment{
			ID:       id,
			Name:     e.Name,
			Driver:   e.Driver,
			DSN:      e.DSN,
			Schema:   e.Schema,
			Database: e.Database,
		})
	}
	return out
}
