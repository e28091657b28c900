// Package workbench is the session engine of the SQL workbench.
//
// A Manager owns one workspace's State: open tabs, their compiled-SQL
// caches, the selected environment, theme, bottom panel and layout. Every
// mutation goes through a pure Apply* transition, marks the session for
// persistence and publishes TopicSessionChanged on the bus. Service calls
// run without the lock; their responses are applied only if the tab,
// environment and workspace they were issued for are still current.
package workbench

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/internal/layout"
	"github.com/leapstack-labs/workbench/internal/ledger"
	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Confirmer decides whether a dirty tab may be closed.
type Confirmer interface {
	ConfirmClose(tab core.Tab) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(tab core.Tab) bool

// ConfirmClose calls f.
func (f ConfirmFunc) ConfirmClose(tab core.Tab) bool { return f(tab) }

// Config holds the collaborators and limits of a Manager.
type Config struct {
	WorkspaceID        string
	DefaultEnvironment string

	Query        core.QueryService
	Files        core.FileService
	Environments core.EnvironmentService
	Storage      core.Storage
	Clock        core.Clock
	Confirmer    Confirmer
	Bus          *bus.Bus
	Logger       *slog.Logger

	MaxTabs    int
	MaxResults int
	MaxOutputs int

	NewID func() string
}

// Manager is the tab/session state machine of one workspace at a time.
type Manager struct {
	mu sync.Mutex

	cfg    Config
	logger *slog.Logger
	clock  core.Clock
	newID  func() string
	bus    *bus.Bus
	codec  *state.Codec
	ledger *ledger.Ledger
	layout *layout.Controller

	workspaceID string
	state       State
	metadata    *core.Metadata
	dirty       bool
	pending     []bus.Event

	// generation changes on workspace switch; in-flight responses from an
	// older generation are discarded.
	generation uint64
	compileSeq uint64
	compiles   map[string]compileTicket
	runSeq     uint64
	runs       map[string]*runTicket

	// saveMu is held by Flush from snapshot through write so an older
	// snapshot never lands after a newer one.
	saveMu sync.Mutex
}

type compileTicket struct {
	seq        uint64
	generation uint64
	sessionEnv string
	modelID    string
}

type runTicket struct {
	seq        uint64
	generation uint64
	cancel     context.CancelFunc
}

// New creates a manager and loads (or creates) the session of cfg.WorkspaceID.
func New(cfg Config) *Manager {
	if cfg.WorkspaceID == "" {
		cfg.WorkspaceID = state.DefaultWorkspace
	}
	if cfg.MaxTabs <= 0 {
		cfg.MaxTabs = DefaultMaxTabs
	}
	if cfg.Clock == nil {
		cfg.Clock = core.SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Bus == nil {
		cfg.Bus = bus.New()
	}

	m := &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "workbench"),
		clock:  cfg.Clock,
		newID:  cfg.NewID,
		bus:    cfg.Bus,
		codec: state.NewCodec(state.CodecConfig{
			Storage: cfg.Storage,
			Clock:   cfg.Clock,
			Logger:  cfg.Logger,
			MaxTabs: cfg.MaxTabs,
			NewID:   cfg.NewID,
		}),
		ledger: ledger.New(ledger.Config{
			MaxResults: cfg.MaxResults,
			MaxOutputs: cfg.MaxOutputs,
			Clock:      cfg.Clock,
			NewID:      cfg.NewID,
		}),
		compiles: make(map[string]compileTicket),
		runs:     make(map[string]*runTicket),
	}

	m.workspaceID = cfg.WorkspaceID
	m.state = m.loadState(cfg.WorkspaceID)
	m.layout = layout.New(m.state.Layout, m.onLayoutChange)
	return m
}

func (m *Manager) loadState(workspaceID string) State {
	sess := m.codec.Load(workspaceID)
	if sess == nil {
		s := NewState(m.cfg.MaxTabs, m.newID(), m.clock.Now())
		s.EnvironmentID = m.cfg.DefaultEnvironment
		m.logger.Debug("created fresh session", "workspace_id", workspaceID)
		return s
	}
	s := StateFromSession(sess, m.cfg.MaxTabs)
	if s.EnvironmentID == "" {
		s.EnvironmentID = m.cfg.DefaultEnvironment
	}
	m.logger.Debug("loaded session", "workspace_id", workspaceID, "tabs", len(s.Tabs))
	return s
}

// Bus returns the event bus hosts subscribe to.
func (m *Manager) Bus() *bus.Bus { return m.bus }

// Layout returns the split-layout controller bound to this session.
func (m *Manager) Layout() *layout.Controller { return m.layout }

// Ledger returns the result/output ledger.
func (m *Manager) Ledger() *ledger.Ledger { return m.ledger }

// WorkspaceID returns the current workspace identity.
func (m *Manager) WorkspaceID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.workspaceID
}

// State returns a copy of the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

// unlock releases the lock and publishes events queued while it was held.
func (m *Manager) unlock() {
	events := m.pending
	m.pending = nil
	m.mu.Unlock()
	for _, e := range events {
		m.bus.Publish(e)
	}
}

func (m *Manager) emit(topic bus.Topic, payload any) {
	m.pending = append(m.pending, bus.Event{Topic: topic, WorkspaceID: m.workspaceID, Payload: payload})
}

// commit installs ns and schedules persistence.
func (m *Manager) commit(ns State) {
	m.state = ns
	m.dirty = true
	m.emit(bus.TopicSessionChanged, nil)
}

func (m *Manager) output(level core.OutputLevel, msg string) {
	e := m.ledger.AppendOutput(level, msg)
	m.emit(bus.TopicOutputAppended, e)
}

func (m *Manager) onLayoutChange(l core.Layout) {
	m.mu.Lock()
	defer m.unlock()
	if m.state.Layout == l {
		return
	}
	ns := m.state.clone()
	ns.Layout = l
	m.commit(ns)
}

// SetTheme selects the editor theme.
func (m *Manager) SetTheme(theme core.EditorTheme) error {
	if !theme.Valid() {
		return ErrInvalidOption
	}
	m.mu.Lock()
	defer m.unlock()
	if m.state.EditorTheme == theme {
		return nil
	}
	ns := m.state.clone()
	ns.EditorTheme = theme
	m.commit(ns)
	return nil
}

// SetBottomPanel selects the bottom panel and asks hosts to reveal it.
func (m *Manager) SetBottomPanel(panel core.BottomPanel) error {
	if !panel.Valid() {
		return ErrInvalidOption
	}
	m.mu.Lock()
	defer m.unlock()
	m.openPanel(panel)
	return nil
}

func (m *Manager) openPanel(panel core.BottomPanel) {
	if m.state.ActiveBottomPanel != panel {
		ns := m.state.clone()
		ns.ActiveBottomPanel = panel
		m.commit(ns)
	}
	m.emit(bus.TopicPanelOpen, bus.PanelOpen{Panel: panel})
}

// SwitchWorkspace flushes the current session, discards every piece of
// in-memory state and loads (or creates) the session of workspaceID.
func (m *Manager) SwitchWorkspace(workspaceID string) {
	if workspaceID == "" {
		workspaceID = state.DefaultWorkspace
	}
	m.Flush()

	m.mu.Lock()
	if workspaceID == m.workspaceID {
		m.mu.Unlock()
		return
	}
	for _, r := range m.runs {
		r.cancel()
	}
	m.generation++
	m.compiles = make(map[string]compileTicket)
	m.runs = make(map[string]*runTicket)
	m.metadata = nil
	m.ledger.Reset()

	m.workspaceID = workspaceID
	m.state = m.loadState(workspaceID)
	m.dirty = false
	m.emit(bus.TopicSessionChanged, nil)
	l := m.state.Layout
	m.unlock()

	m.layout.SetLayout(l)
	m.logger.Info("switched workspace", "workspace_id", workspaceID)
}
