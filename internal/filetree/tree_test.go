package filetree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/workbench/pkg/core"
)

func names(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.Name)
	}
	return out
}

func TestBuildTree(t *testing.T) {
	records := []core.FileRecord{
		{Path: "README.md", Category: "other"},
		{Path: "models/staging/stg_orders.sql", Category: "model"},
		{Path: "models/Base/base.sql", Category: "model"},
		{Path: "models/a.sql", Category: "model"},
		{Path: "", Category: "other"},
		{Path: "/seeds/Countries.csv", Category: "seed"},
		{Path: "macros/util.star", Category: "macro"},
	}

	tree := BuildTree(records)

	assert.Equal(t, []string{"macros", "models", "seeds", "README.md"}, names(tree))

	models := tree[1]
	require.True(t, models.IsFolder())
	assert.Equal(t, "models", models.Path)
	assert.Equal(t, []string{"Base", "staging", "a.sql"}, names(models.Children))

	stg := models.Children[1].Children[0]
	assert.Equal(t, "models/staging/stg_orders.sql", stg.Path)
	assert.Equal(t, NodeFile, stg.Type)
	assert.Equal(t, "model", stg.Category)

	assert.Equal(t, "seeds/Countries.csv", tree[2].Children[0].Path)
}

func TestBuildTreeOrderIndependent(t *testing.T) {
	a := []core.FileRecord{{Path: "b/x.sql"}, {Path: "a.sql"}, {Path: "B.sql"}, {Path: "b/Y.sql"}}
	b := []core.FileRecord{{Path: "b/Y.sql"}, {Path: "B.sql"}, {Path: "a.sql"}, {Path: "b/x.sql"}}

	assert.Equal(t, BuildTree(a), BuildTree(b))
	assert.Equal(t, []string{"b", "a.sql", "B.sql"}, names(BuildTree(a)))
}

func TestBuildTreeDuplicatePath(t *testing.T) {
	tree := BuildTree([]core.FileRecord{
		{Path: "models/a.sql", Category: "other"},
		{Path: "models/a.sql", Category: "model"},
	})
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "model", tree[0].Children[0].Category)
}

func TestFilter(t *testing.T) {
	tree := BuildTree([]core.FileRecord{
		{Path: "models/staging/stg_orders.sql"},
		{Path: "models/base/base.sql"},
	})

	filtered, expanded := Filter(tree, "orders")

	require.Len(t, filtered, 1)
	assert.Equal(t, "models", filtered[0].Name)
	require.Len(t, filtered[0].Children, 1)
	assert.Equal(t, "staging", filtered[0].Children[0].Name)
	require.Len(t, filtered[0].Children[0].Children, 1)
	assert.Equal(t, "stg_orders.sql", filtered[0].Children[0].Children[0].Name)
	assert.ElementsMatch(t, []string{"models", "models/staging"}, expanded)

	// the source tree is untouched
	assert.Len(t, tree[0].Children, 2)
}

func TestFilterFolderMatchKeepsChildren(t *testing.T) {
	tree := BuildTree([]core.FileRecord{
		{Path: "models/staging/stg_orders.sql"},
		{Path: "models/staging/stg_users.sql"},
	})

	filtered, expanded := Filter(tree, "STAGING")

	require.Len(t, filtered, 1)
	staging := filtered[0].Children[0]
	assert.Len(t, staging.Children, 2)
	assert.Equal(t, []string{"models"}, expanded)
}

func TestFilterEmptyQuery(t *testing.T) {
	tree := BuildTree([]core.FileRecord{{Path: "a/b.sql"}})

	filtered, expanded := Filter(tree, "  ")
	assert.Equal(t, tree, filtered)
	assert.Empty(t, expanded)
}

func TestFilterNoMatch(t *testing.T) {
	tree := BuildTree([]core.FileRecord{{Path: "a/b.sql"}})

	filtered, expanded := Filter(tree, "zzz")
	assert.Empty(t, filtered)
	assert.Empty(t, expanded)
}

func TestFlatten(t *testing.T) {
	tree := BuildTree([]core.FileRecord{
		{Path: "models/staging/stg_orders.sql"},
		{Path: "models/base.sql"},
		{Path: "top.sql"},
	})

	tests := []struct {
		name     string
		expanded map[string]bool
		want     []string
		depths   []int
	}{
		{
			name:   "collapsed",
			want:   []string{"models", "top.sql"},
			depths: []int{0, 0},
		},
		{
			name:     "one level",
			expanded: ExpandedSet([]string{"models"}),
			want:     []string{"models", "staging", "base.sql", "top.sql"},
			depths:   []int{0, 1, 1, 0},
		},
		{
			name:     "all",
			expanded: ExpandedSet(CollectFolderPaths(tree)),
			want:     []string{"models", "staging", "stg_orders.sql", "base.sql", "top.sql"},
			depths:   []int{0, 1, 2, 1, 0},
		},
		{
			name:     "child expanded but parent collapsed",
			expanded: ExpandedSet([]string{"models/staging"}),
			want:     []string{"models", "top.sql"},
			depths:   []int{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := Flatten(tree, tt.expanded)
			var got []string
			var depths []int
			for _, r := range rows {
				got = append(got, r.Node.Name)
				depths = append(depths, r.Depth)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.depths, depths)
		})
	}
}

func TestCollectFolderPaths(t *testing.T) {
	tree := BuildTree([]core.FileRecord{
		{Path: "models/staging/stg_orders.sql"},
		{Path: "models/base/base.sql"},
		{Path: "x.sql"},
	})
	assert.Equal(t, []string{"models", "models/base", "models/staging"}, CollectFolderPaths(tree))
}
