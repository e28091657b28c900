package workbench

import (
	"errors"
	"fmt"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// OpenTab opens a tab, merging into an existing tab for the same file or
// model unless opts.ForceNew is set. At the cap the least recently used clean
// tab is evicted; if every tab is dirty ErrTabLimitReached is returned and
// nothing changes.
func (m *Manager) OpenTab(opts OpenOptions) (OpenResult, error) {
	m.mu.Lock()
	defer m.unlock()
	return m.openTabLocked(opts)
}

func (m *Manager) openTabLocked(opts OpenOptions) (OpenResult, error) {
	ns, res, err := ApplyOpenTab(m.state, opts, m.newID(), m.clock.Now())
	if err != nil {
		if errors.Is(err, ErrTabLimitReached) {
			m.output(core.OutputWarning, fmt.Sprintf("Tab limit of %d reached. Save or close a tab before opening another.", m.state.max()))
			m.emit(bus.TopicTabLimitReached, bus.TabLimitReached{Max: m.state.max()})
		}
		return OpenResult{}, err
	}
	if res.Evicted != "" {
		m.forgetTab(res.Evicted)
		m.logger.Debug("evicted tab", "tab_id", res.Evicted)
	}
	m.commit(ns)
	return res, nil
}

// forgetTab drops in-flight bookkeeping for a removed tab.
func (m *Manager) forgetTab(id string) {
	delete(m.compiles, id)
	if r, ok := m.runs[id]; ok {
		r.cancel()
		delete(m.runs, id)
	}
}

// CloseTab closes a tab. A dirty tab is closed only if the Confirmer agrees.
func (m *Manager) CloseTab(id string) error {
	m.mu.Lock()
	tab, ok := m.state.Tab(id)
	confirmer := m.cfg.Confirmer
	m.mu.Unlock()
	if !ok {
		return ErrTabNotFound
	}

	confirmed := false
	if tab.IsDirty {
		if confirmer == nil || !confirmer.ConfirmClose(tab) {
			return ErrCloseRejected
		}
		confirmed = true
	}
	// The tab may have been edited while unlocked; ApplyCloseTab checks again.
	return m.closeTab(id, confirmed)
}

// ForceCloseTab closes a tab whose closing the host has already confirmed.
func (m *Manager) ForceCloseTab(id string) error {
	return m.closeTab(id, true)
}

func (m *Manager) closeTab(id string, confirmed bool) error {
	m.mu.Lock()
	defer m.unlock()

	ns, err := ApplyCloseTab(m.state, id, confirmed, m.newID(), m.clock.Now())
	if err != nil {
		return err
	}
	m.forgetTab(id)
	m.commit(ns)
	return nil
}

// SetActiveTab activates a tab.
func (m *Manager) SetActiveTab(id string) error {
	m.mu.Lock()
	defer m.unlock()

	ns, err := ApplySetActiveTab(m.state, id, m.clock.Now())
	if err != nil {
		return err
	}
	m.commit(ns)
	return nil
}

// UpdateActiveText replaces the active tab's text and marks it dirty.
func (m *Manager) UpdateActiveText(text string) error {
	m.mu.Lock()
	defer m.unlock()

	cur, _ := m.state.ActiveTab()
	ns, err := ApplyUpdateActiveText(m.state, text, m.clock.Now())
	if err != nil {
		return err
	}
	if cur.Text == text {
		return nil
	}
	m.commit(ns)
	return nil
}

// RenameTab changes a tab title.
func (m *Manager) RenameTab(id, title string) error {
	m.mu.Lock()
	defer m.unlock()

	ns, err := ApplyRenameTab(m.state, id, title)
	if err != nil {
		return err
	}
	m.commit(ns)
	return nil
}

// Tabs returns copies of the open tabs in display order.
func (m *Manager) Tabs() []core.Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Tab(nil), m.state.Tabs...)
}

// ActiveTab returns a copy of the active tab.
func (m *Manager) ActiveTab() core.Tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, _ := m.state.ActiveTab()
	return t
}
