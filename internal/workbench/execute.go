package workbench

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/internal/completion"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// ExecuteOptions tunes Execute.
type ExecuteOptions struct {
	// TabID defaults to the active tab.
	TabID string
	// SQL overrides the text of a raw-SQL tab, e.g. with a selection.
	SQL              string
	IncludeProfiling bool
}

// Execute runs a tab. Raw-SQL tabs run their text; bound-model tabs first
// make sure their compiled SQL is valid for the current environment and
// then run the model. One execution per tab may be in flight. A result that
// arrives after CancelExecution, an environment change, a workspace switch or
// the tab's closing is discarded with ErrStaleResponse.
func (m *Manager) Execute(ctx context.Context, opts ExecuteOptions) (*core.ResultTab, error) {
	if m.cfg.Query == nil {
		return nil, ErrNotConfigured
	}

	m.mu.Lock()
	tabID := opts.TabID
	if tabID == "" {
		tabID = m.state.ActiveTabID
	}
	tab, ok := m.state.Tab(tabID)
	env := m.state.EnvironmentID
	m.mu.Unlock()
	switch {
	case !ok:
		return nil, ErrTabNotFound
	case tab.IsRunning:
		return nil, ErrExecutionInFlight
	case tab.IsLoadingCompiled:
		return nil, ErrCompileInFlight
	}

	sql := opts.SQL
	if tab.Mode == core.TabModeBoundModel {
		compiled, err := m.ResolveCompiled(ctx, tabID, ResolveOptions{})
		if err != nil {
			if errors.Is(err, ErrStaleResponse) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrCannotExecute, err)
		}
		sql = compiled.CompiledSQL
	} else if strings.TrimSpace(sql) == "" {
		sql = tab.Text
	}
	if strings.TrimSpace(sql) == "" {
		return nil, ErrCannotExecute
	}

	m.mu.Lock()
	if tab.Mode == core.TabModeBoundModel {
		cur, ok := m.state.Tab(tabID)
		if !ok || !cur.CompiledValidFor(m.state.EnvironmentID) {
			m.unlock()
			return nil, ErrStaleResponse
		}
		env = m.state.EnvironmentID
	}
	ns, err := ApplyRunStart(m.state, tabID)
	if err != nil {
		m.unlock()
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runSeq++
	ticket := &runTicket{seq: m.runSeq, generation: m.generation, cancel: cancel}
	m.runs[tabID] = ticket
	m.state = ns
	m.emit(bus.TopicSessionChanged, nil)
	m.unlock()
	defer cancel()

	log := m.logger.With("tab_id", tabID, "environment_id", env)
	var result *core.QueryResult
	if tab.Mode == core.TabModeBoundModel {
		log.Debug("executing model", "model_id", tab.BoundModelID)
		result, err = m.cfg.Query.ExecuteModel(runCtx, core.ModelRequest{
			ModelUniqueID:    tab.BoundModelID,
			EnvironmentID:    env,
			IncludeProfiling: opts.IncludeProfiling,
		})
	} else {
		log.Debug("executing query")
		result, err = m.cfg.Query.ExecuteQuery(runCtx, core.QueryRequest{
			SQL:              sql,
			EnvironmentID:    env,
			IncludeProfiling: opts.IncludeProfiling,
		})
	}

	m.mu.Lock()
	defer m.unlock()
	if cur, ok := m.runs[tabID]; !ok || cur != ticket || ticket.generation != m.generation {
		log.Debug("discarding stale execution result")
		return nil, ErrStaleResponse
	}
	delete(m.runs, tabID)
	m.commit(ApplyRunEnd(m.state, tabID))

	if err != nil {
		m.output(core.OutputError, fmt.Sprintf("Execution failed: %v", err))
		return nil, serviceErr("execute", err)
	}
	if result == nil {
		result = &core.QueryResult{}
	}

	rt := m.ledger.AddResult(tabID, sql, *result)
	msg := fmt.Sprintf("Query returned %d rows in %d ms", result.RowCount, result.ExecutionTimeMS)
	if result.Truncated {
		msg += " (truncated)"
	}
	m.output(core.OutputSuccess, msg)
	panel := core.PanelResults
	if opts.IncludeProfiling && len(result.Profiling) > 0 {
		panel = core.PanelProfiling
	}
	m.openPanel(panel)
	return &rt, nil
}

// CancelExecution stops reflecting a tab's in-flight execution. The backend
// call is not interrupted beyond a best-effort context cancel; its eventual
// result is discarded. It reports whether anything was running.
func (m *Manager) CancelExecution(tabID string) bool {
	m.mu.Lock()
	defer m.unlock()

	if tabID == "" {
		tabID = m.state.ActiveTabID
	}
	r, ok := m.runs[tabID]
	if !ok {
		return false
	}
	r.cancel()
	delete(m.runs, tabID)
	m.runSeq++
	m.commit(ApplyRunEnd(m.state, tabID))
	m.output(core.OutputWarning, "Cancellation requested. The running query result will be ignored.")
	return true
}

// RefreshMetadata reloads and caches the catalog.
func (m *Manager) RefreshMetadata(ctx context.Context) (*core.Metadata, error) {
	if m.cfg.Query == nil {
		return nil, ErrNotConfigured
	}
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	md, err := m.cfg.Query.GetMetadata(ctx)

	m.mu.Lock()
	defer m.unlock()
	if gen != m.generation {
		return nil, ErrStaleResponse
	}
	if err != nil {
		m.output(core.OutputError, fmt.Sprintf("Failed to load metadata: %v", err))
		return nil, serviceErr("load metadata", err)
	}
	m.metadata = md
	return md, nil
}

// Metadata returns the cached catalog, or nil before the first refresh.
func (m *Manager) Metadata() *core.Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metadata
}

// Complete resolves suggestions for the active buffer at cursor against the
// cached catalog. A negative cursor means end of text.
func (m *Manager) Complete(cursor int) []completion.Suggestion {
	m.mu.Lock()
	tab, _ := m.state.ActiveTab()
	md := m.metadata
	m.mu.Unlock()
	return completion.Resolve(tab.Text, cursor, md)
}

// History lists executed queries.
func (m *Manager) History(ctx context.Context, filter core.HistoryFilter) (*core.HistoryPage, error) {
	if m.cfg.Query == nil {
		return nil, ErrNotConfigured
	}
	page, err := m.cfg.Query.GetHistory(ctx, filter)
	if err != nil {
		m.mu.Lock()
		m.output(core.OutputError, fmt.Sprintf("Failed to load history: %v", err))
		m.unlock()
		return nil, serviceErr("load history", err)
	}
	return page, nil
}

// DeleteHistoryEntry removes one history entry.
func (m *Manager) DeleteHistoryEntry(ctx context.Context, id string) error {
	if m.cfg.Query == nil {
		return ErrNotConfigured
	}
	if err := m.cfg.Query.DeleteHistoryEntry(ctx, id); err != nil {
		m.mu.Lock()
		m.output(core.OutputError, fmt.Sprintf("Failed to delete history entry: %v", err))
		m.unlock()
		return serviceErr("delete history entry", err)
	}
	return nil
}
