package filetree

import (
	"strings"

	"golang.org/x/text/cases"
)

// Filter keeps nodes whose name contains query, case-insensitively.
//
// A folder whose own name matches keeps its full subtree. A folder kept only
// because some descendant matched keeps just the matching descendants and its
// path is returned in autoExpanded. An empty query returns tree unchanged.
func Filter(tree []*Node, query string) (filtered []*Node, autoExpanded []string) {
	query = strings.TrimSpace(query)
	if query == "" {
		return tree, nil
	}

	fold := cases.Fold()
	f := &filterer{needle: fold.String(query), fold: fold}
	filtered = f.nodes(tree)
	return filtered, f.expanded
}

type filterer struct {
	needle   string
	fold     cases.Caser
	expanded []string
}

func (f *filterer) nodes(nodes []*Node) []*Node {
	var out []*Node
	for _, n := range nodes {
		if kept := f.node(n); kept != nil {
			out = append(out, kept)
		}
	}
	return out
}

func (f *filterer) node(n *Node) *Node {
	matches := strings.Contains(f.fold.String(n.Name), f.needle)
	if !n.IsFolder() {
		if matches {
			return n
		}
		return nil
	}
	if matches {
		return n
	}

	children := f.nodes(n.Children)
	if len(children) == 0 {
		return nil
	}
	f.expanded = append(f.expanded, n.Path)
	clone := *n
	clone.Children = children
	return &clone
}

// Flatten walks the tree depth-first, descending into a folder only when its
// path is in expanded.
func Flatten(tree []*Node, expanded map[string]bool) []Row {
	var rows []Row
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			rows = append(rows, Row{Node: n, Depth: depth})
			if n.IsFolder() && expanded[n.Path] {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(tree, 0)
	return rows
}

// CollectFolderPaths returns every folder path in the tree in depth-first order.
func CollectFolderPaths(tree []*Node) []string {
	var paths []string
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if n.IsFolder() {
				paths = append(paths, n.Path)
				walk(n.Children)
			}
		}
	}
	walk(tree)
	return paths
}

// ExpandedSet builds a lookup set from a list of folder paths.
func ExpandedSet(paths ...[]string) map[string]bool {
	set := make(map[string]bool)
	for _, list := range paths {
		for _, p := range list {
			set[p] = true
		}
	}
	return set
}
