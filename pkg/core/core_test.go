package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTabModeValid(t *testing.T) {
	assert.True(t, TabModeRawSQL.Valid())
	assert.True(t, TabModeBoundModel.Valid())
	assert.False(t, TabMode("model").Valid())
	assert.False(t, TabMode("").Valid())
}

func TestTabCompiledValidFor(t *testing.T) {
	tab := &Tab{CompiledSQL: "select 1", CompiledForEnvironmentID: "dev"}
	assert.True(t, tab.CompiledValidFor("dev"))
	assert.False(t, tab.CompiledValidFor("prod"))

	tab.ClearCompiled()
	assert.False(t, tab.HasCompiled())
	assert.Empty(t, tab.CompiledForEnvironmentID)
	assert.False(t, tab.CompiledValidFor("dev"))
}

func TestEnumsValid(t *testing.T) {
	assert.True(t, ThemeDark.Valid())
	assert.False(t, EditorTheme("solarized").Valid())
	assert.True(t, PanelProfiling.Valid())
	assert.False(t, BottomPanel("graph").Valid())
}

func TestMetadataModelByID(t *testing.T) {
	md := &Metadata{Models: []Relation{{UniqueID: "model.orders", Name: "orders"}}}

	r, ok := md.ModelByID("model.orders")
	assert.True(t, ok)
	assert.Equal(t, "orders", r.Name)

	_, ok = md.ModelByID("model.missing")
	assert.False(t, ok)

	var nilMD *Metadata
	_, ok = nilMD.ModelByID("x")
	assert.False(t, ok)
}
