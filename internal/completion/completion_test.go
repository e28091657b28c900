package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leapstack-labs/workbench/pkg/core"
)

func testMetadata() *core.Metadata {
	return &core.Metadata{
		Models: []core.Relation{
			{
				UniqueID: "model.stg_orders", Name: "stg_orders", RelationName: "main.stg_orders",
				Columns: []core.Column{{Name: "order_id", DataType: "integer"}, {Name: "amount", DataType: "double"}},
			},
			{
				UniqueID: "model.revenue", Name: "revenue", RelationName: "main.revenue",
				Columns: []core.Column{{Name: "total", DataType: "double"}, {Name: "order_id", DataType: "bigint"}},
			},
		},
		Sources: []core.Relation{
			{
				Name: "customers", RelationName: "raw.customers",
				Columns: []core.Column{{Name: "id", DataType: "integer"}, {Name: "email", DataType: "text"}},
			},
		},
	}
}

func labels(s []Suggestion) []string {
	out := make([]string, 0, len(s))
	for _, x := range s {
		out = append(out, x.Label)
	}
	return out
}

func TestDetectContext(t *testing.T) {
	tests := []struct {
		name   string
		before string
		want   Context
	}{
		{"empty", "", Context{Type: ContextGeneral}},
		{"word", "select am", Context{Type: ContextGeneral, Prefix: "am"}},
		{"ref open", `select * from {{ ref("`, Context{Type: ContextModelRef}},
		{"ref partial", `{{ ref('stg`, Context{Type: ContextModelRef, Prefix: "stg"}},
		{"ref bare", `{{ ref(rev`, Context{Type: ContextModelRef, Prefix: "rev"}},
		{"alias dot", "select o.", Context{Type: ContextColumnAccess, Qualifier: "o"}},
		{"alias dot partial", "select o.am", Context{Type: ContextColumnAccess, Qualifier: "o", Prefix: "am"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectContext(tt.before))
		})
	}
}

func TestParseAliases(t *testing.T) {
	aliases := ParseAliases(`select * from main.stg_orders o
		join raw.customers AS c on c.id = o.order_id
		left join main.revenue where 1 = 1`)

	assert.Equal(t, "main.stg_orders", aliases["o"])
	assert.Equal(t, "main.stg_orders", aliases["stg_orders"])
	assert.Equal(t, "raw.customers", aliases["c"])
	assert.Equal(t, "main.revenue", aliases["revenue"])
	assert.NotContains(t, aliases, "where")
	assert.NotContains(t, aliases, "on")
}

func TestResolveModelRef(t *testing.T) {
	text := `select * from {{ ref("re`
	got := Resolve(text, len(text), testMetadata())
	assert.Equal(t, []string{"revenue"}, labels(got))
	assert.Equal(t, KindModel, got[0].Kind)

	text = `select * from {{ ref("`
	assert.Equal(t, []string{"stg_orders", "revenue"}, labels(Resolve(text, -1, testMetadata())))
}

func TestResolveAliasColumns(t *testing.T) {
	md := testMetadata()
	text := "select o. from main.stg_orders as o"
	cursor := len("select o.")

	got := Resolve(text, cursor, md)
	assert.Equal(t, []string{"order_id", "amount"}, labels(got))
	for _, s := range got {
		assert.Equal(t, KindColumn, s.Kind)
	}

	text = "select c.em from raw.customers c"
	assert.Equal(t, []string{"email"}, labels(Resolve(text, len("select c.em"), md)))
}

func TestResolveAliasUnknownRelation(t *testing.T) {
	text := "select x. from mystery x"
	assert.Empty(t, Resolve(text, len("select x."), testMetadata()))
}

func TestResolveUnknownAliasFallsBack(t *testing.T) {
	got := Resolve("select zz.id", -1, testMetadata())
	assert.Equal(t, []string{"id", "order_id"}, labels(got))
}

func TestResolveGeneral(t *testing.T) {
	got := Resolve("select ", -1, testMetadata())
	assert.Equal(t, []string{
		"main.stg_orders", "main.revenue", "raw.customers",
		"order_id", "amount", "total", "id", "email",
	}, labels(got))

	// first-seen wins for duplicate columns
	for _, s := range got {
		if s.Label == "order_id" {
			assert.Equal(t, "integer", s.Detail)
		}
	}
}

func TestResolveGeneralRanking(t *testing.T) {
	md := testMetadata()
	md.Schemas = map[string][]core.Relation{
		"main": {{Name: "orders_archive", RelationName: "main.orders_archive"}},
	}

	got := Resolve("select * from ord", -1, md)
	assert.Equal(t, []string{"main.orders_archive", "order_id", "main.stg_orders"}, labels(got))
}

func TestResolveNilMetadata(t *testing.T) {
	assert.Empty(t, Resolve("select ", -1, nil))
}
