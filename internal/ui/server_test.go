package ui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/internal/backend"
	"github.com/leapstack-labs/workbench/internal/history"
	"github.com/leapstack-labs/workbench/internal/project"
	"github.com/leapstack-labs/workbench/internal/state"
	"github.com/leapstack-labs/workbench/internal/testutil"
	"github.com/leapstack-labs/workbench/internal/ui/features/common"
	"github.com/leapstack-labs/workbench/internal/workbench"
	"github.com/leapstack-labs/workbench/pkg/core"
)

type testClient struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newTestServer(t *testing.T) (*testClient, *common.Sessions) {
	t.Helper()
	logger := testutil.NewTestLogger(t)

	p, err := project.Open(project.Config{Root: testutil.SetupTestProject(t, nil), Logger: logger})
	require.NoError(t, err)
	hs, err := history.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = hs.Close() })

	b, err := backend.New(backend.Config{
		Project:            p,
		Environments:       []backend.Environment{{ID: "dev", Name: "Development", Driver: "sqlite"}},
		DefaultEnvironment: "dev",
		History:            hs,
		Logger:             logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	storage := state.NewMemoryStore()
	sessions := common.NewSessions(common.SessionsConfig{
		Factory: func(ws string) *workbench.Manager {
			return workbench.New(workbench.Config{
				WorkspaceID:        ws,
				DefaultEnvironment: "dev",
				Query:              b,
				Files:              p,
				Environments:       b,
				Storage:            storage,
				Logger:             logger,
			})
		},
		CookieStore:      NewCookieStore("0123456789abcdef0123456789abcdef", false),
		DefaultWorkspace: "default",
		Logger:           logger,
	})

	handler, err := NewServer(Config{Sessions: sessions, Logger: logger}).Handler()
	require.NoError(t, err)
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testClient{t: t, base: ts.URL, client: &http.Client{Jar: jar}}, sessions
}

func (c *testClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, r)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response, wantStatus int) T {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, wantStatus, resp.StatusCode, string(body))
	var v T
	if len(body) > 0 {
		require.NoError(t, json.Unmarshal(body, &v), string(body))
	}
	return v
}

type openResponse struct {
	TabID   string `json:"tabId"`
	Created bool   `json:"created"`
	Reused  bool   `json:"reused"`
}

func TestSessionSnapshot(t *testing.T) {
	c, _ := newTestServer(t)

	snap := decode[workbench.Snapshot](t, c.do(http.MethodGet, "/api/session", nil), http.StatusOK)
	assert.Equal(t, "default", snap.WorkspaceID)
	assert.Equal(t, "dev", snap.EnvironmentID)
	require.Len(t, snap.Tabs, 1)
	assert.Equal(t, snap.Tabs[0].ID, snap.ActiveTabID)
}

func TestIndexAndStatic(t *testing.T) {
	c, _ := newTestServer(t)

	resp := c.do(http.MethodGet, "/", nil)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "/api/session/updates")

	resp = c.do(http.MethodGet, "/static/app.css", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTabLifecycle(t *testing.T) {
	c, _ := newTestServer(t)

	text := "select 1"
	opened := decode[openResponse](t, c.do(http.MethodPost, "/api/tabs", map[string]any{
		"title": "Scratch", "mode": "raw_sql", "text": text, "forceNew": true,
	}), http.StatusCreated)
	require.NotEmpty(t, opened.TabID)

	tab := decode[core.Tab](t, c.do(http.MethodPut, "/api/tabs/active/text", map[string]string{"text": "select 2"}), http.StatusOK)
	assert.Equal(t, opened.TabID, tab.ID)
	assert.True(t, tab.IsDirty)

	resp := c.do(http.MethodPut, "/api/tabs/"+opened.TabID+"/title", map[string]string{"title": "Renamed"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	tabs := decode[[]core.Tab](t, c.do(http.MethodGet, "/api/tabs", nil), http.StatusOK)
	require.Len(t, tabs, 2)
	assert.Equal(t, "Renamed", tabs[1].Title)

	errBody := decode[common.ErrorBody](t, c.do(http.MethodDelete, "/api/tabs/"+opened.TabID, nil), http.StatusConflict)
	assert.Contains(t, errBody.Error, "not confirmed")

	resp = c.do(http.MethodDelete, "/api/tabs/"+opened.TabID+"?force=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	decode[common.ErrorBody](t, c.do(http.MethodPost, "/api/tabs/nope/activate", nil), http.StatusNotFound)
}

func TestExecuteAndHistory(t *testing.T) {
	c, _ := newTestServer(t)

	decode[core.Tab](t, c.do(http.MethodPut, "/api/tabs/active/text", map[string]string{"text": "select 1 as one"}), http.StatusOK)

	res := decode[core.ResultTab](t, c.do(http.MethodPost, "/api/execute", map[string]any{}), http.StatusOK)
	require.Len(t, res.Result.Columns, 1)
	assert.Equal(t, "one", res.Result.Columns[0].Name)
	assert.Equal(t, []any{float64(1)}, res.Result.Rows[0])

	page := decode[core.HistoryPage](t, c.do(http.MethodGet, "/api/history?limit=10", nil), http.StatusOK)
	require.Equal(t, 1, page.TotalCount)
	assert.Equal(t, "select 1 as one", page.Items[0].SQL)

	resp := c.do(http.MethodDelete, "/api/history/"+page.Items[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	decode[common.ErrorBody](t, c.do(http.MethodDelete, "/api/history/"+page.Items[0].ID, nil), http.StatusNotFound)

	decode[common.ErrorBody](t, c.do(http.MethodGet, "/api/history?limit=-1", nil), http.StatusBadRequest)

	snap := decode[workbench.Snapshot](t, c.do(http.MethodGet, "/api/session", nil), http.StatusOK)
	assert.Len(t, snap.Results, 1)
	assert.Equal(t, core.PanelResults, snap.ActiveBottomPanel)
}

func TestExecuteFailure(t *testing.T) {
	c, _ := newTestServer(t)

	decode[core.Tab](t, c.do(http.MethodPut, "/api/tabs/active/text", map[string]string{"text": "select * from missing"}), http.StatusOK)
	body := decode[common.ErrorBody](t, c.do(http.MethodPost, "/api/execute", map[string]any{}), http.StatusBadGateway)
	assert.Equal(t, "transient", body.Kind)
}

func TestFilesOpenCompileSave(t *testing.T) {
	c, _ := newTestServer(t)

	tree := decode[struct {
		Rows []struct {
			Path  string `json:"path"`
			Depth int    `json:"depth"`
		} `json:"rows"`
		AutoExpanded []string `json:"autoExpanded"`
	}](t, c.do(http.MethodGet, "/api/files/tree?q=revenue", nil), http.StatusOK)
	paths := make([]string, 0, len(tree.Rows))
	for _, r := range tree.Rows {
		paths = append(paths, r.Path)
	}
	assert.Equal(t, []string{"models", "models/marts", "models/marts/revenue.sql"}, paths)

	opened := decode[openResponse](t, c.do(http.MethodPost, "/api/files/open", map[string]string{"path": "models/marts/revenue.sql"}), http.StatusOK)
	require.True(t, opened.Created)

	compiled := decode[core.CompiledSQL](t, c.do(http.MethodPost, "/api/tabs/"+opened.TabID+"/compile", map[string]bool{"force": true}), http.StatusOK)
	assert.Equal(t, "select sum(amount) as total from main.stg_orders where 'main' = 'main'", compiled.CompiledSQL)

	decode[common.ErrorBody](t, c.do(http.MethodPost, "/api/files/save", map[string]any{"authorized": false}), http.StatusForbidden)

	decode[common.ErrorBody](t, c.do(http.MethodPost, "/api/files/open", map[string]string{"path": "  "}), http.StatusBadRequest)

	st := decode[core.VCSStatus](t, c.do(http.MethodGet, "/api/vcs", nil), http.StatusOK)
	assert.False(t, st.Configured)
}

func TestSessionSettings(t *testing.T) {
	c, _ := newTestServer(t)

	snap := decode[workbench.Snapshot](t, c.do(http.MethodPut, "/api/session/theme", map[string]string{"theme": "dark"}), http.StatusOK)
	assert.Equal(t, core.EditorTheme("dark"), snap.EditorTheme)
	decode[common.ErrorBody](t, c.do(http.MethodPut, "/api/session/theme", map[string]string{"theme": "neon"}), http.StatusBadRequest)

	snap = decode[workbench.Snapshot](t, c.do(http.MethodPut, "/api/session/panel", map[string]string{"panel": "history"}), http.StatusOK)
	assert.Equal(t, core.BottomPanel("history"), snap.ActiveBottomPanel)

	l := decode[core.Layout](t, c.do(http.MethodPut, "/api/session/layout", map[string]any{"leftPaneWidth": 9999, "bottomPaneHeight": 10}), http.StatusOK)
	assert.Equal(t, core.MaxLeftPaneWidth, l.LeftPaneWidth)
	assert.Equal(t, core.MinBottomPaneHeight, l.BottomPaneHeight)

	l = decode[core.Layout](t, c.do(http.MethodPost, "/api/session/layout/reset", nil), http.StatusOK)
	assert.Equal(t, core.DefaultLayout(), l)

	decode[common.ErrorBody](t, c.do(http.MethodPut, "/api/session/environment", map[string]string{"environmentId": "staging"}), http.StatusBadRequest)

	envs := decode[[]core.Environment](t, c.do(http.MethodGet, "/api/environments", nil), http.StatusOK)
	assert.Equal(t, []core.Environment{{ID: "dev", Name: "Development", IsDefault: true}}, envs)

	decode[common.ErrorBody](t, c.do(http.MethodPut, "/api/session/theme", map[string]any{"theme": "dark", "extra": 1}), http.StatusBadRequest)
}

func TestWorkspaceCookie(t *testing.T) {
	c, sessions := newTestServer(t)

	snap := decode[workbench.Snapshot](t, c.do(http.MethodPut, "/api/workspace", map[string]string{"workspaceId": "team"}), http.StatusOK)
	assert.Equal(t, "team", snap.WorkspaceID)

	snap = decode[workbench.Snapshot](t, c.do(http.MethodGet, "/api/session", nil), http.StatusOK)
	assert.Equal(t, "team", snap.WorkspaceID)

	decode[common.ErrorBody](t, c.do(http.MethodPut, "/api/workspace", map[string]string{"workspaceId": "../x"}), http.StatusBadRequest)

	got := make([]string, 0)
	for _, m := range sessions.All() {
		got = append(got, m.WorkspaceID())
	}
	assert.Equal(t, []string{"default", "team"}, got)
}

func TestNewCookieStore(t *testing.T) {
	tests := []struct {
		name   string
		secure bool
	}{
		{name: "plain http", secure: false},
		{name: "behind https", secure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewCookieStore("0123456789abcdef0123456789abcdef", tt.secure)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()

			sess, err := store.Get(req, common.SessionName)
			require.NoError(t, err)
			sess.Values["k"] = "v"
			require.NoError(t, sess.Save(req, rec))

			header := rec.Header().Get("Set-Cookie")
			assert.Contains(t, header, "HttpOnly")
			assert.Equal(t, tt.secure, strings.Contains(header, "; Secure"))
		})
	}
}

func TestComplete(t *testing.T) {
	c, _ := newTestServer(t)

	decode[core.Metadata](t, c.do(http.MethodGet, "/api/metadata", nil), http.StatusOK)
	text := `select * from {{ ref("stg`
	decode[core.Tab](t, c.do(http.MethodPut, "/api/tabs/active/text", map[string]string{"text": text}), http.StatusOK)

	suggestions := decode[[]struct {
		Label string `json:"label"`
	}](t, c.do(http.MethodGet, "/api/complete?cursor="+strconv.Itoa(len(text)), nil), http.StatusOK)
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "stg_orders", suggestions[0].Label)

	decode[common.ErrorBody](t, c.do(http.MethodGet, "/api/complete?cursor=x", nil), http.StatusBadRequest)
}

func TestUpdatesStream(t *testing.T) {
	c, sessions := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/session/updates", nil)
	require.NoError(t, err)
	resp, err := c.client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
		for sc.Scan() {
			if line := sc.Text(); strings.HasPrefix(line, "data:") {
				events <- line
			}
		}
		close(events)
	}()

	first := <-events
	assert.Contains(t, first, `"workspaceId":"default"`)

	require.NoError(t, sessions.Get("default").SetTheme(core.EditorTheme("dark")))
	require.Eventually(t, func() bool {
		select {
		case line := <-events:
			return strings.Contains(line, `"editorTheme":"dark"`)
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
