package workbench

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/pkg/core"
)

func openModelTab(t *testing.T, te *testEnv, model string) string {
	t.Helper()
	res, err := te.m.OpenTab(OpenOptions{Mode: core.TabModeBoundModel, ModelID: model})
	require.NoError(t, err)
	return res.TabID
}

func TestResolveCompiledCachesPerEnvironment(t *testing.T) {
	te := newTestManager(t)
	te.query.setCompiled("model.orders", "dev", "select * from dev.orders", "")
	te.query.setCompiled("model.orders", "prod", "select * from prod.orders", "")
	id := openModelTab(t, te, "model.orders")
	ctx := context.Background()

	got, err := te.m.ResolveCompiled(ctx, id, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "select * from dev.orders", got.CompiledSQL)
	assert.Equal(t, 1, te.query.compiles)

	got, err = te.m.ResolveCompiled(ctx, id, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "sum-dev", got.Checksum)
	assert.Equal(t, 1, te.query.compiles, "second call served from cache")

	_, err = te.m.ResolveCompiled(ctx, id, ResolveOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, te.query.compiles)

	require.NoError(t, te.m.SetEnvironment(ctx, "prod"))
	tab := te.m.ActiveTab()
	assert.False(t, tab.HasCompiled(), "environment change clears the cache eagerly")

	got, err = te.m.ResolveCompiled(ctx, id, ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, "select * from prod.orders", got.CompiledSQL)
	assert.Equal(t, "prod", te.m.ActiveTab().CompiledForEnvironmentID)
}

func TestResolveCompiledExplicitEnvironment(t *testing.T) {
	te := newTestManager(t)
	te.query.setCompiled("model.orders", "prod", "select 'prod'", "")
	id := openModelTab(t, te, "model.orders")

	got, err := te.m.ResolveCompiled(context.Background(), id, ResolveOptions{EnvironmentID: "prod"})
	require.NoError(t, err)
	assert.Equal(t, "select 'prod'", got.CompiledSQL)
	assert.Equal(t, "prod", te.m.ActiveTab().CompiledForEnvironmentID)
	assert.Equal(t, "dev", te.m.Environment())
}

func TestResolveCompiledHydratesSource(t *testing.T) {
	te := newTestManager(t)
	te.query.setCompiled("model.orders", "dev", "select 1", "select {{ 1 }}")
	id := openModelTab(t, te, "model.orders")
	require.NoError(t, te.m.UpdateActiveText("edited"))

	_, err := te.m.ResolveCompiled(context.Background(), id, ResolveOptions{HydrateSourceSQL: true})
	require.NoError(t, err)
	tab := te.m.ActiveTab()
	assert.Equal(t, "select {{ 1 }}", tab.Text)
	assert.False(t, tab.IsDirty)
}

func TestResolveCompiledErrors(t *testing.T) {
	te := newTestManager(t)
	ctx := context.Background()

	_, err := te.m.ResolveCompiled(ctx, "ghost", ResolveOptions{})
	assert.ErrorIs(t, err, ErrTabNotFound)

	_, err = te.m.ResolveCompiled(ctx, te.m.ActiveTab().ID, ResolveOptions{})
	assert.ErrorIs(t, err, ErrNotBoundModel)

	id := openModelTab(t, te, "model.missing")
	_, err = te.m.ResolveCompiled(ctx, id, ResolveOptions{})
	require.Error(t, err)
	assert.Equal(t, KindTransient, Classify(err))
	assert.Contains(t, err.Error(), "failed to compile model")

	tab := te.m.ActiveTab()
	assert.False(t, tab.IsLoadingCompiled)
	assert.False(t, tab.HasCompiled())
	assert.NotEmpty(t, tab.CompileError)
	outputs := te.m.Snapshot().Outputs
	require.NotEmpty(t, outputs)
	assert.Equal(t, core.OutputError, outputs[len(outputs)-1].Level)

	te.query.compileErr = errors.New("boom")
	te.query.setCompiled("model.missing", "dev", "select 1", "")
	_, err = te.m.ResolveCompiled(ctx, id, ResolveOptions{})
	assert.ErrorContains(t, err, "boom")
}

func TestResolveCompiledDiscardsResponseAfterEnvironmentChange(t *testing.T) {
	te := newTestManager(t)
	te.query.setCompiled("model.orders", "dev", "select 'dev'", "")
	id := openModelTab(t, te, "model.orders")

	te.query.compileGate = make(chan struct{})
	te.query.compileCall = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := te.m.ResolveCompiled(context.Background(), id, ResolveOptions{})
		errc <- err
	}()

	<-te.query.compileCall
	assert.True(t, te.m.ActiveTab().IsLoadingCompiled)
	require.NoError(t, te.m.SetEnvironment(context.Background(), "prod"))
	close(te.query.compileGate)

	assert.ErrorIs(t, <-errc, ErrStaleResponse)
	tab := te.m.ActiveTab()
	assert.False(t, tab.HasCompiled(), "dev SQL must not land under prod")
	assert.False(t, tab.IsLoadingCompiled)
}

func TestResolveCompiledDiscardsResponseForClosedTab(t *testing.T) {
	te := newTestManager(t)
	te.query.setCompiled("model.orders", "dev", "select 1", "")
	id := openModelTab(t, te, "model.orders")

	te.query.compileGate = make(chan struct{})
	te.query.compileCall = make(chan struct{})

	errc := make(chan error, 1)
	go func() {
		_, err := te.m.ResolveCompiled(context.Background(), id, ResolveOptions{})
		errc <- err
	}()

	<-te.query.compileCall
	require.NoError(t, te.m.ForceCloseTab(id))
	close(te.query.compileGate)

	assert.ErrorIs(t, <-errc, ErrStaleResponse)
	_, ok := te.m.State().Tab(id)
	assert.False(t, ok)
}

func TestSetEnvironment(t *testing.T) {
	te := newTestManager(t)
	ctx := context.Background()

	err := te.m.SetEnvironment(ctx, "staging")
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
	assert.Equal(t, "dev", te.m.Environment())

	require.NoError(t, te.m.SetEnvironment(ctx, "prod"))
	assert.Equal(t, "prod", te.m.Environment())

	require.NoError(t, te.m.SetEnvironment(ctx, ""))
	assert.Equal(t, "dev", te.m.Environment(), "empty selects the default")

	envs, err := te.m.Environments(ctx)
	require.NoError(t, err)
	assert.Len(t, envs, 2)
}
