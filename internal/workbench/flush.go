package workbench

import (
	"context"
	"time"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// DefaultFlushInterval is the persistence debounce used by RunFlusher.
const DefaultFlushInterval = 500 * time.Millisecond

// Flush writes the session if it changed since the last write. Storage
// failures are logged by the codec and never returned; the in-memory state
// stays authoritative. It reports whether a write was attempted.
func (m *Manager) Flush() bool {
	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	m.mu.Lock()
	if !m.dirty {
		m.mu.Unlock()
		return false
	}
	sess := m.state.ToSession()
	ws := m.workspaceID
	m.dirty = false
	m.mu.Unlock()

	m.codec.Save(ws, sess)
	return true
}

// Dirty reports whether unsaved session changes are pending.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// RunFlusher flushes at most once per interval until ctx is done, then
// flushes once more. Rapid changes within an interval collapse into one write.
func (m *Manager) RunFlusher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Flush()
			return nil
		case <-ticker.C:
			m.Flush()
		}
	}
}

// Snapshot is a read-only copy of everything a host renders.
type Snapshot struct {
	WorkspaceID       string             `json:"workspaceId"`
	Tabs              []core.Tab         `json:"tabs"`
	ActiveTabID       string             `json:"activeTabId"`
	EnvironmentID     string             `json:"environmentId"`
	EditorTheme       core.EditorTheme   `json:"editorTheme"`
	ActiveBottomPanel core.BottomPanel   `json:"activeBottomPanel"`
	Layout            core.Layout        `json:"layout"`
	Results           []core.ResultTab   `json:"results"`
	ActiveResultID    string             `json:"activeResultId,omitempty"`
	Outputs           []core.OutputEntry `json:"outputs"`
}

// Snapshot copies the current session and ledger.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	snap := Snapshot{
		WorkspaceID:       m.workspaceID,
		Tabs:              append([]core.Tab(nil), m.state.Tabs...),
		ActiveTabID:       m.state.ActiveTabID,
		EnvironmentID:     m.state.EnvironmentID,
		EditorTheme:       m.state.EditorTheme,
		ActiveBottomPanel: m.state.ActiveBottomPanel,
		Layout:            m.state.Layout,
	}
	m.mu.Unlock()

	snap.Results = m.ledger.Results()
	snap.Outputs = m.ledger.Outputs()
	if active, ok := m.ledger.Active(); ok {
		snap.ActiveResultID = active.ID
	}
	return snap
}
