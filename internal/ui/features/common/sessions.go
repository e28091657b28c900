package common

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/sessions"

	"github.com/leapstack-labs/workbench/internal/bus"
	"github.com/leapstack-labs/workbench/internal/ui/notifier"
	"github.com/leapstack-labs/workbench/internal/workbench"
)

// Cookie session name and the key holding the workspace identity.
const (
	SessionName  = "workbench"
	workspaceKey = "workspace_id"
)

var workspacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// ValidWorkspaceID reports whether id may be used as a workspace identity.
func ValidWorkspaceID(id string) bool { return workspacePattern.MatchString(id) }

// ManagerFactory creates the manager of a workspace.
type ManagerFactory func(workspaceID string) *workbench.Manager

// SessionsConfig configures a Sessions registry.
type SessionsConfig struct {
	Factory          ManagerFactory
	CookieStore      sessions.Store
	Notifier         *notifier.Notifier
	DefaultWorkspace string
	FlushInterval    time.Duration
	Logger           *slog.Logger
}

// Sessions holds one Manager per workspace, created on first request and
// kept until shutdown. Session changes ping the workspace's SSE listeners.
type Sessions struct {
	cfg    SessionsConfig
	logger *slog.Logger

	mu       sync.Mutex
	managers map[string]*workbench.Manager
	runCtx   context.Context
	wg       sync.WaitGroup
}

// NewSessions creates an empty registry.
func NewSessions(cfg SessionsConfig) *Sessions {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notifier.New()
	}
	return &Sessions{
		cfg:      cfg,
		logger:   cfg.Logger,
		managers: make(map[string]*workbench.Manager),
	}
}

// Notifier returns the notifier pinged on session changes.
func (s *Sessions) Notifier() *notifier.Notifier { return s.cfg.Notifier }

// Get returns the manager of workspaceID, creating it if needed.
func (s *Sessions) Get(workspaceID string) *workbench.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m, ok := s.managers[workspaceID]; ok {
		return m
	}
	m := s.cfg.Factory(workspaceID)
	ping := func(bus.Event) { s.cfg.Notifier.Broadcast(workspaceID) }
	m.Bus().Subscribe(bus.TopicSessionChanged, ping)
	m.Bus().Subscribe(bus.TopicOutputAppended, ping)
	s.managers[workspaceID] = m
	if s.runCtx != nil {
		s.startFlusher(m)
	}
	s.logger.Debug("session opened", "workspace_id", workspaceID)
	return m
}

// All returns the open managers ordered by workspace id.
func (s *Sessions) All() []*workbench.Manager {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.managers))
	for id := range s.managers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*workbench.Manager, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.managers[id])
	}
	return out
}

// Run flushes every open session at most once per flush interval until ctx
// is done, then flushes once more and returns.
func (s *Sessions) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx = ctx
	for _, m := range s.managers {
		s.startFlusher(m)
	}
	s.mu.Unlock()

	<-ctx.Done()
	s.wg.Wait()
	s.FlushAll()
	return nil
}

func (s *Sessions) startFlusher(m *workbench.Manager) {
	if s.runCtx.Err() != nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := m.RunFlusher(s.runCtx, s.cfg.FlushInterval); err != nil && s.runCtx.Err() == nil {
			s.logger.Warn("flusher stopped", "workspace_id", m.WorkspaceID(), "error", err)
		}
	}()
}

// FlushAll writes every dirty session.
func (s *Sessions) FlushAll() {
	for _, m := range s.All() {
		m.Flush()
	}
}

// WorkspaceID returns the workspace identity of the request's cookie
// session, falling back to the default workspace.
func (s *Sessions) WorkspaceID(r *http.Request) string {
	if s.cfg.CookieStore == nil {
		return s.cfg.DefaultWorkspace
	}
	sess, err := s.cfg.CookieStore.Get(r, SessionName)
	if err != nil {
		return s.cfg.DefaultWorkspace
	}
	if id, ok := sess.Values[workspaceKey].(string); ok && ValidWorkspaceID(id) {
		return id
	}
	return s.cfg.DefaultWorkspace
}

// SetWorkspaceID stores id in the request's cookie session.
func (s *Sessions) SetWorkspaceID(w http.ResponseWriter, r *http.Request, id string) error {
	if !ValidWorkspaceID(id) {
		return fmt.Errorf("%w: invalid workspace id %q", ErrBadRequest, id)
	}
	if s.cfg.CookieStore == nil {
		return fmt.Errorf("%w: cookie sessions", workbench.ErrNotConfigured)
	}
	// A cookie that fails to decode is replaced.
	sess, _ := s.cfg.CookieStore.Get(r, SessionName)
	sess.Values[workspaceKey] = id
	return sess.Save(r, w)
}

// ForRequest returns the manager of the request's workspace.
func (s *Sessions) ForRequest(r *http.Request) *workbench.Manager {
	return s.Get(s.WorkspaceID(r))
}
