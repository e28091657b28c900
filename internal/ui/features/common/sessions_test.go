package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/internal/workbench"
	"github.com/leapstack-labs/workbench/pkg/core"
)

func newTestSessions(store core.Storage) *Sessions {
	return NewSessions(SessionsConfig{
		Factory: func(ws string) *workbench.Manager {
			return workbench.New(workbench.Config{WorkspaceID: ws, Storage: store})
		},
		CookieStore:      sessions.NewCookieStore([]byte("0123456789abcdef0123456789abcdef")),
		DefaultWorkspace: "default",
		FlushInterval:    10 * time.Millisecond,
	})
}

func TestSessionsGetCaches(t *testing.T) {
	s := newTestSessions(state.NewMemoryStore())

	a := s.Get("a")
	assert.Same(t, a, s.Get("a"))
	assert.NotSame(t, a, s.Get("b"))
	assert.Equal(t, "a", a.WorkspaceID())

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].WorkspaceID())
	assert.Equal(t, "b", all[1].WorkspaceID())
}

func TestSessionsBroadcastOnChange(t *testing.T) {
	s := newTestSessions(state.NewMemoryStore())
	m := s.Get("a")

	mine := s.Notifier().Subscribe("a")
	other := s.Notifier().Subscribe("b")
	defer s.Notifier().Unsubscribe(mine)
	defer s.Notifier().Unsubscribe(other)

	require.NoError(t, m.SetTheme(core.ThemeDark))

	select {
	case <-mine:
	case <-time.After(time.Second):
		t.Fatal("expected a ping for workspace a")
	}
	select {
	case <-other:
		t.Fatal("unexpected ping for workspace b")
	default:
	}
}

func TestSessionsRunFlushes(t *testing.T) {
	store := state.NewMemoryStore()
	s := newTestSessions(store)
	require.NoError(t, s.Get("a").SetTheme(core.ThemeDark))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// a manager created while running gets its own flusher
	require.NoError(t, s.Get("b").SetTheme(core.ThemeDark))
	require.Eventually(t, func() bool { return !s.Get("b").Dirty() }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Get("a").Dirty())

	reloaded := workbench.New(workbench.Config{WorkspaceID: "a", Storage: store})
	assert.Equal(t, core.ThemeDark, reloaded.State().EditorTheme)
}

func TestSessionsWorkspaceCookie(t *testing.T) {
	s := newTestSessions(state.NewMemoryStore())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "default", s.WorkspaceID(r))

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetWorkspaceID(rec, r, "team"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionName, cookies[0].Name)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(cookies[0])
	assert.Equal(t, "team", s.WorkspaceID(r))
	assert.Equal(t, "team", s.ForRequest(r).WorkspaceID())

	assert.ErrorIs(t, s.SetWorkspaceID(httptest.NewRecorder(), r, "bad id"), ErrBadRequest)
}
