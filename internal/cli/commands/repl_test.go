package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/internal/cli/output"
	"github.com/leapstack-labs/workbench/internal/completion"
	"github.com/leapstack-labs/workbench/internal/testutil"
	"github.com/leapstack-labs/workbench/pkg/core"
)

type replEnv struct {
	s       *replSession
	out     *bytes.Buffer
	confirm bool
}

func newTestREPL(t *testing.T) *replEnv {
	t.Helper()
	st, err := OpenStack(testConfig(t), testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	env := &replEnv{out: new(bytes.Buffer)}
	r := output.NewRenderer(env.out, env.out, output.ModeText)
	env.s = newREPLSession(st, "default", r, func(string) bool { return env.confirm })
	return env
}

func (e *replEnv) run(t *testing.T, lines ...string) string {
	t.Helper()
	e.out.Reset()
	for _, line := range lines {
		require.False(t, e.s.HandleLine(context.Background(), line), line)
	}
	return e.out.String()
}

func TestREPLExecutesStatements(t *testing.T) {
	e := newTestREPL(t)

	out := e.run(t, "select 1 as one;")
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "Query returned 1 rows")

	out = e.run(t, "select 2", "as two;")
	assert.Contains(t, out, "two")
	assert.Equal(t, "select 2\nas two", e.s.m.ActiveTab().Text)
	assert.Len(t, e.s.m.Tabs(), 1)

	assert.Contains(t, e.run(t, ".history"), "select 1 as one")
}

func TestREPLPendingPrompt(t *testing.T) {
	e := newTestREPL(t)

	assert.Contains(t, e.s.prompt(), "[dev]> ")
	e.run(t, "select")
	assert.Equal(t, "    ...> ", e.s.prompt())
	e.s.resetPending()
	assert.NotEqual(t, "    ...> ", e.s.prompt())
}

func TestREPLTabs(t *testing.T) {
	e := newTestREPL(t)

	e.run(t, ".new scratch", "select 3;")
	tabs := e.s.m.Tabs()
	require.Len(t, tabs, 2)
	assert.Equal(t, "scratch", e.s.m.ActiveTab().Title)
	assert.True(t, e.s.m.ActiveTab().IsDirty)

	assert.Contains(t, e.run(t, ".tabs"), "scratch *")

	e.confirm = false
	assert.Contains(t, e.run(t, ".close"), "kept scratch")
	assert.Len(t, e.s.m.Tabs(), 2)

	e.confirm = true
	e.run(t, ".close 2")
	assert.Len(t, e.s.m.Tabs(), 1)

	e.run(t, ".use 1", ".rename main")
	assert.Equal(t, "main", e.s.m.ActiveTab().Title)

	assert.Contains(t, e.run(t, ".use 9"), "no tab 9")
}

func TestREPLOpenAndCompile(t *testing.T) {
	e := newTestREPL(t)

	e.run(t, ".open models/marts/revenue.sql")
	tab := e.s.m.ActiveTab()
	assert.Equal(t, core.TabModeBoundModel, tab.Mode)

	assert.Contains(t, e.run(t, ".compile"), revenueSQL)

	// SQL typed on a model tab goes to a new raw tab
	e.run(t, "select 4;")
	assert.Len(t, e.s.m.Tabs(), 3)
	assert.Equal(t, core.TabModeRawSQL, e.s.m.ActiveTab().Mode)
}

func TestREPLSessionCommands(t *testing.T) {
	e := newTestREPL(t)

	assert.Contains(t, e.run(t, ".env"), "* dev  Development")
	assert.Contains(t, e.run(t, ".env staging"), "Error:")

	e.run(t, ".theme dark")
	assert.Equal(t, core.ThemeDark, e.s.m.State().EditorTheme)
	assert.Contains(t, e.run(t, ".theme neon"), "Error:")

	assert.Contains(t, e.run(t, ".tree revenue"), "revenue.sql")

	e.run(t, ".workspace team")
	assert.Equal(t, "team", e.s.m.WorkspaceID())
	assert.Contains(t, e.run(t, ".workspace ../x"), "invalid workspace id")

	assert.Contains(t, e.run(t, ".bogus"), "unknown command")
	assert.True(t, e.s.HandleLine(context.Background(), ".quit"))
}

func TestCompletionCandidates(t *testing.T) {
	got := completionCandidates([]completion.Suggestion{
		{Label: "stg_orders"},
		{Label: "main.stg_orders"},
		{Label: "revenue"},
		{Label: "STG_users"},
	}, "stg")

	assert.Equal(t, [][]rune{[]rune("_orders"), []rune("_users")}, got)
}

func TestSessionCompleter(t *testing.T) {
	e := newTestREPL(t)
	_, err := e.s.m.RefreshMetadata(context.Background())
	require.NoError(t, err)
	c := newSessionCompleter(e.s)

	line := []rune(`select * from {{ ref("stg`)
	candidates, length := c.Do(line, len(line))
	assert.Equal(t, 3, length)
	assert.Contains(t, candidates, []rune("_orders"))

	line = []rune(".ta")
	candidates, _ = c.Do(line, len(line))
	assert.NotEmpty(t, candidates)
}
