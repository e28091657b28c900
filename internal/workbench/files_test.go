package workbench

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/pkg/core"
)

func withOrdersModel(te *testEnv) {
	te.query.metadata = &core.Metadata{Models: []core.Relation{{
		UniqueID:         "model.orders",
		Name:             "orders",
		RelationName:     "main.orders",
		OriginalFilePath: "models/orders.sql",
	}}}
	te.query.setCompiled("model.orders", "dev", "select * from main.raw_orders", "select * from {{ ref('raw_orders') }}")
	te.files.files["models/orders.sql"] = core.FileContent{Path: "models/orders.sql", Content: "stale on disk"}
}

func TestLoadFileIntoTabBindsModel(t *testing.T) {
	te := newTestManager(t)
	withOrdersModel(te)
	ctx := context.Background()

	res, err := te.m.LoadFileIntoTab(ctx, "./models/orders.sql")
	require.NoError(t, err)
	assert.True(t, res.Created)

	tab := te.m.ActiveTab()
	assert.Equal(t, res.TabID, tab.ID)
	assert.Equal(t, core.TabModeBoundModel, tab.Mode)
	assert.Equal(t, "model.orders", tab.BoundModelID)
	assert.Equal(t, "orders", tab.Title)
	assert.Equal(t, "models/orders.sql", tab.SourceFilePath)
	assert.Equal(t, "select * from {{ ref('raw_orders') }}", tab.Text, "hydrated from compiler source")
	assert.Equal(t, "select * from main.raw_orders", tab.CompiledSQL)
	assert.False(t, tab.IsDirty)

	again, err := te.m.LoadFileIntoTab(ctx, "models/orders.sql")
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, res.TabID, again.TabID)
	assert.Len(t, te.m.Tabs(), 2)
}

func TestLoadFileIntoTabPlainFile(t *testing.T) {
	te := newTestManager(t)
	te.files.files["analysis/adhoc.sql"] = core.FileContent{Path: "analysis/adhoc.sql", Content: "select 1", Readonly: true}

	_, err := te.m.LoadFileIntoTab(context.Background(), "analysis/adhoc.sql")
	require.NoError(t, err)

	tab := te.m.ActiveTab()
	assert.Equal(t, core.TabModeRawSQL, tab.Mode)
	assert.Equal(t, "adhoc.sql", tab.Title)
	assert.Equal(t, "select 1", tab.Text)
	assert.True(t, tab.IsReadonly)
	assert.ErrorIs(t, te.m.UpdateActiveText("select 2"), ErrReadonly)
}

func TestLoadFileIntoTabReadFailure(t *testing.T) {
	te := newTestManager(t)
	te.files.readErr = errors.New("permission denied")
	before := te.m.State()

	_, err := te.m.LoadFileIntoTab(context.Background(), "models/orders.sql")
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
	assert.Equal(t, before.Tabs, te.m.State().Tabs)
}

func TestSaveActiveTab(t *testing.T) {
	te := newTestManager(t)
	te.files.files["analysis/adhoc.sql"] = core.FileContent{Path: "analysis/adhoc.sql", Content: "select 1"}
	te.files.normalize = func(s string) string { return strings.TrimSpace(s) + "\n" }
	ctx := context.Background()

	_, err := te.m.LoadFileIntoTab(ctx, "analysis/adhoc.sql")
	require.NoError(t, err)
	require.NoError(t, te.m.UpdateActiveText("  select 2  "))

	_, err = te.m.SaveActiveTab(ctx, SaveOptions{})
	assert.ErrorIs(t, err, ErrUnauthorized)

	res, err := te.m.SaveActiveTab(ctx, SaveOptions{Authorized: true, Message: "tweak"})
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	require.Len(t, te.files.writes, 1)
	assert.Equal(t, "tweak", te.files.writes[0].Message)
	assert.Equal(t, "  select 2  ", te.files.writes[0].Content)

	tab := te.m.ActiveTab()
	assert.False(t, tab.IsDirty)
	assert.Equal(t, "select 2\n", tab.Text, "buffer reloaded from disk")

	outputs := te.m.Snapshot().Outputs
	assert.Equal(t, core.OutputSuccess, outputs[len(outputs)-1].Level)
}

func TestSaveActiveTabValidationFailure(t *testing.T) {
	te := newTestManager(t)
	te.files.files["models/schema.yml"] = core.FileContent{Path: "models/schema.yml", Content: "version: 2"}
	ctx := context.Background()

	_, err := te.m.LoadFileIntoTab(ctx, "models/schema.yml")
	require.NoError(t, err)
	require.NoError(t, te.m.UpdateActiveText("version: [2"))

	te.files.invalid = []string{"yaml: did not find expected node content"}
	res, err := te.m.SaveActiveTab(ctx, SaveOptions{Authorized: true})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "models/schema.yml", ve.Path)
	assert.Equal(t, te.files.invalid, ve.Errors)
	assert.False(t, res.IsValid)

	tab := te.m.ActiveTab()
	assert.True(t, tab.IsDirty)
	assert.Equal(t, "version: [2", tab.Text)
}

func TestSaveActiveTabGuards(t *testing.T) {
	te := newTestManager(t)
	ctx := context.Background()

	_, err := te.m.SaveActiveTab(ctx, SaveOptions{Authorized: true})
	assert.ErrorIs(t, err, ErrNoFilePath)

	te.files.files["seeds/ro.csv"] = core.FileContent{Path: "seeds/ro.csv", Content: "a,b", Readonly: true}
	_, err = te.m.LoadFileIntoTab(ctx, "seeds/ro.csv")
	require.NoError(t, err)
	_, err = te.m.SaveActiveTab(ctx, SaveOptions{Authorized: true})
	assert.ErrorIs(t, err, ErrReadonly)
	assert.Empty(t, te.files.writes)
}

func TestSaveActiveTabWriteFailure(t *testing.T) {
	te := newTestManager(t)
	te.files.files["a.sql"] = core.FileContent{Path: "a.sql", Content: "select 1"}
	ctx := context.Background()

	_, err := te.m.LoadFileIntoTab(ctx, "a.sql")
	require.NoError(t, err)
	require.NoError(t, te.m.UpdateActiveText("select 2"))

	te.files.writeErr = errors.New("disk full")
	_, err = te.m.SaveActiveTab(ctx, SaveOptions{Authorized: true})
	assert.ErrorContains(t, err, "disk full")
	assert.True(t, te.m.ActiveTab().IsDirty)
}

func TestFileTree(t *testing.T) {
	te := newTestManager(t)
	for _, p := range []string{"models/marts/orders.sql", "models/staging/stg_payments.sql", "README.md"} {
		te.files.files[p] = core.FileContent{Path: p}
	}
	ctx := context.Background()

	view, err := te.m.FileTree(ctx, "", nil)
	require.NoError(t, err)
	require.Len(t, view.Tree, 2)
	assert.Equal(t, "models", view.Tree[0].Name)
	assert.Len(t, view.Rows, 2, "collapsed by default")

	view, err = te.m.FileTree(ctx, "ORDERS", nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"models", "models/marts"}, view.AutoExpanded)

	var paths []string
	for _, r := range view.Rows {
		paths = append(paths, r.Node.Path)
	}
	assert.Equal(t, []string{"models", "models/marts", "models/marts/orders.sql"}, paths)
	assert.Equal(t, 2, view.Rows[2].Depth)

	st, err := te.m.VCSStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
}
