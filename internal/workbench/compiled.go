package workbench

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// ResolveOptions tunes ResolveCompiled.
type ResolveOptions struct {
	// Force skips the cache.
	Force bool
	// HydrateSourceSQL replaces the buffer with the model source reported by
	// the compiler. Used when first opening a model, not when re-running it.
	HydrateSourceSQL bool
	// ModelID defaults to the tab's bound model.
	ModelID string
	// EnvironmentID defaults to the session environment.
	EnvironmentID string
}

// ResolveCompiled returns the compiled SQL of a bound-model tab.
//
// A cache hit needs !Force, a non-empty payload and a payload stamped with
// the requested environment. On a miss the compile service is called without
// the lock; the response is applied only if the tab still exists, no newer
// compile was issued for it, and neither the session environment, the bound
// model nor the workspace changed meanwhile. Otherwise ErrStaleResponse is
// returned and the response is dropped.
func (m *Manager) ResolveCompiled(ctx context.Context, tabID string, opts ResolveOptions) (*core.CompiledSQL, error) {
	m.mu.Lock()
	tab, ok := m.state.Tab(tabID)
	if !ok {
		m.unlock()
		return nil, ErrTabNotFound
	}
	modelID := opts.ModelID
	if modelID == "" {
		modelID = tab.BoundModelID
	}
	if modelID == "" {
		m.unlock()
		return nil, ErrNotBoundModel
	}
	env := opts.EnvironmentID
	if env == "" {
		env = m.state.EnvironmentID
	}

	if !opts.Force && tab.CompiledValidFor(env) && tab.BoundModelID == modelID {
		m.unlock()
		return &core.CompiledSQL{
			CompiledSQL:      tab.CompiledSQL,
			Checksum:         tab.CompiledChecksum,
			TargetName:       tab.CompiledTarget,
			OriginalFilePath: tab.SourceFilePath,
		}, nil
	}

	if m.cfg.Query == nil {
		m.unlock()
		return nil, ErrNotConfigured
	}
	ns, err := ApplyCompileStart(m.state, tabID)
	if err != nil {
		m.unlock()
		return nil, err
	}
	m.compileSeq++
	ticket := compileTicket{
		seq:        m.compileSeq,
		generation: m.generation,
		sessionEnv: m.state.EnvironmentID,
		modelID:    modelID,
	}
	m.compiles[tabID] = ticket
	m.state = ns
	m.emit(bus.TopicSessionChanged, nil)
	m.unlock()

	log := m.logger.With("tab_id", tabID, "model_id", modelID, "environment_id", env)
	log.Debug("compiling model")
	res, callErr := m.cfg.Query.GetCompiledSQL(ctx, modelID, env)

	m.mu.Lock()
	defer m.unlock()

	if !m.compileCurrent(tabID, ticket) {
		log.Debug("discarding stale compile response")
		return nil, ErrStaleResponse
	}
	delete(m.compiles, tabID)

	if callErr != nil {
		m.commit(ApplyCompileFailure(m.state, tabID, callErr.Error()))
		m.output(core.OutputError, fmt.Sprintf("Compilation of %s failed: %v", modelID, callErr))
		return nil, serviceErr("compile model", callErr)
	}
	if res == nil || res.CompiledSQL == "" {
		msg := "compiler returned no SQL"
		m.commit(ApplyCompileFailure(m.state, tabID, msg))
		m.output(core.OutputError, fmt.Sprintf("Compilation of %s failed: %s", modelID, msg))
		return nil, serviceErr("compile model", fmt.Errorf("%s", msg))
	}

	m.commit(ApplyCompileSuccess(m.state, tabID, env, *res, opts.HydrateSourceSQL))
	return res, nil
}

func (m *Manager) compileCurrent(tabID string, ticket compileTicket) bool {
	cur, ok := m.compiles[tabID]
	if !ok || cur.seq != ticket.seq || ticket.generation != m.generation {
		return false
	}
	tab, ok := m.state.Tab(tabID)
	if !ok || !tab.IsLoadingCompiled {
		return false
	}
	if m.state.EnvironmentID != ticket.sessionEnv {
		return false
	}
	return tab.BoundModelID == "" || tab.BoundModelID == ticket.modelID
}

// SetEnvironment selects the execution environment and eagerly invalidates
// the compiled SQL of every bound-model tab. In-flight executions are
// cancelled and their results discarded. When an EnvironmentService is
// configured the id must be one it lists; "" selects the default.
func (m *Manager) SetEnvironment(ctx context.Context, environmentID string) error {
	if environmentID != "" && m.cfg.Environments != nil {
		envs, err := m.cfg.Environments.ListEnvironments(ctx)
		if err != nil {
			return serviceErr("list environments", err)
		}
		known := false
		for _, e := range envs {
			if e.ID == environmentID {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("%w: %s", ErrUnknownEnvironment, environmentID)
		}
	}

	m.mu.Lock()
	defer m.unlock()
	if environmentID == "" {
		environmentID = m.cfg.DefaultEnvironment
	}
	if m.state.EnvironmentID == environmentID {
		return nil
	}
	m.compiles = make(map[string]compileTicket)
	ns := ApplySetEnvironment(m.state, environmentID)
	for id, r := range m.runs {
		r.cancel()
		ns = ApplyRunEnd(ns, id)
	}
	m.runs = make(map[string]*runTicket)
	m.commit(ns)
	m.output(core.OutputInfo, fmt.Sprintf("Environment set to %s", displayEnv(environmentID)))
	return nil
}

// Environment returns the selected environment id.
func (m *Manager) Environment() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.EnvironmentID
}

// Environments lists execution targets.
func (m *Manager) Environments(ctx context.Context) ([]core.Environment, error) {
	if m.cfg.Environments == nil {
		return nil, ErrNotConfigured
	}
	envs, err := m.cfg.Environments.ListEnvironments(ctx)
	if err != nil {
		return nil, serviceErr("list environments", err)
	}
	return envs, nil
}

func displayEnv(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
