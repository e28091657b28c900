package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/leapstack-labs/workbench/internal/backend"
	"github.com/leapstack-labs/workbench/internal/config"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// Stack is the set of services built from one configuration.
type Stack struct {
	Config  *config.Config
	Project *project.Project
	History *history.Store
	Backend *backend.Backend
	Storage *state.SQLiteStore

	logger *slog.Logger
}

// OpenStack opens the project, the history and session databases and the
// query backend. Close releases them.
func OpenStack(cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	s := &Stack{Config: cfg, logger: logger}

	p, err := project.Open(project.Config{
		Root:      cfg.ProjectDir,
		ModelsDir: cfg.ModelsDir,
		MacrosDir: cfg.MacrosDir,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	s.Project = p

	if s.History, err = history.Open(cfg.History.Path); err != nil {
		return nil, err
	}
	if s.Storage, err = state.OpenSQLiteStore(cfg.Storage.Path); err != nil {
		_ = s.Close()
		return nil, err
	}

	s.Backend, err = backend.New(backend.Config{
		Project:            p,
		Environments:       cfg.BackendEnvironments(),
		DefaultEnvironment: cfg.DefaultEnvironment,
		History:            s.History,
		MaxRows:            cfg.Query.MaxRows,
		Timeout:            cfg.Query.Timeout,
		Logger:             logger,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to create backend: %w", err)
	}
	return s, nil
}

// NewManager creates the session manager of workspaceID.
func (s *Stack) NewManager(workspaceID string) *workbench.Manager {
	return s.newManager(workspaceID, nil)
}

func (s *Stack) newManager(workspaceID string, confirmer workbench.Confirmer) *workbench.Manager {
	return workbench.New(workbench.Config{
		WorkspaceID:        workspaceID,
		DefaultEnvironment: s.Config.DefaultEnvironment,
		Query:              s.Backend,
		Files:              s.Project,
		Environments:       s.Backend,
		Storage:            s.Storage,
		Confirmer:          confirmer,
		Logger:             s.logger,
		MaxTabs:            s.Config.Session.MaxTabs,
		MaxResults:         s.Config.Session.MaxResults,
		MaxOutputs:         s.Config.Session.MaxOutputs,
	})
}

// Close releases every opened service.
func (s *Stack) Close() error {
	var errs []error
	if s.Backend != nil {
		errs = append(errs, s.Backend.Close())
	}
	if s.Storage != nil {
		errs = append(errs, s.Storage.Close())
	}
	if s.History != nil {
		errs = append(errs, s.History.Close())
	}
	return errors.Join(errs...)
}
