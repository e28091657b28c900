package config

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/workbench/internal/backend"
)

// Validate checks the configuration. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Workspace == "" {
		errs = append(errs, errors.New("workspace is required"))
	}
	if c.ModelsDir == "" {
		errs = append(errs, errors.New("models_dir is required"))
	}
	if c.Session.MaxTabs < 1 {
		errs = append(errs, fmt.Errorf("session.max_tabs must be at least 1, got %d", c.Session.MaxTabs))
	}
	if c.Session.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("session.max_results must be at least 1, got %d", c.Session.MaxResults))
	}
	if c.Session.MaxOutputs < 1 {
		errs = append(errs, fmt.Errorf("session.max_outputs must be at least 1, got %d", c.Session.MaxOutputs))
	}
	if c.Session.FlushInterval < 0 {
		errs = append(errs, fmt.Errorf("session.flush_interval must not be negative"))
	}
	if c.Query.MaxRows < 1 {
		errs = append(errs, fmt.Errorf("query.max_rows must be at least 1, got %d", c.Query.MaxRows))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("query.timeout must be positive"))
	}
	if c.UI.Port < 0 || c.UI.Port > 65535 {
		errs = append(errs, fmt.Errorf("ui.port out of range: %d", c.UI.Port))
	}

	for id, e := range c.Environments {
		if _, err := backend.LookupDriver(e.Driver); err != nil {
			errs = append(errs, fmt.Errorf("environments.%s: %w", id, err))
		}
	}
	if _, ok := c.Environments[c.DefaultEnvironment]; !ok {
		errs = append(errs, fmt.Errorf("default_environment %q is not configured", c.DefaultEnvironment))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
