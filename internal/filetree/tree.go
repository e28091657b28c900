// Package filetree indexes flat project paths into a sorted folder/file tree.
package filetree

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// NodeType distinguishes folders from files.
type NodeType string

// Node types.
const (
	NodeFolder NodeType = "folder"
	NodeFile   NodeType = "file"
)

// Node is one entry of the tree. Path is the full "/"-joined path.
type Node struct {
	Name     string   `json:"name"`
	Path     string   `json:"path"`
	Type     NodeType `json:"type"`
	Category string   `json:"category,omitempty"`
	Children []*Node  `json:"children,omitempty"`
}

// IsFolder reports whether n is a folder.
func (n *Node) IsFolder() bool {
	return n.Type == NodeFolder
}

// Row is one flattened, display-ordered node.
type Row struct {
	Node  *Node
	Depth int
}

// BuildTree turns a flat list of file records into a sorted tree.
// Records with no path segments are dropped. The result does not depend on input order.
func BuildTree(records []core.FileRecord) []*Node {
	root := &Node{Type: NodeFolder}
	folders := map[string]*Node{"": root}

	for _, rec := range records {
		segments := splitPath(rec.Path)
		if len(segments) == 0 {
			continue
		}

		parent := root
		for i, seg := range segments[:len(segments)-1] {
			p := strings.Join(segments[:i+1], "/")
			folder, ok := folders[p]
			if !ok {
				folder = &Node{Name: seg, Path: p, Type: NodeFolder}
				folders[p] = folder
				parent.Children = append(parent.Children, folder)
			}
			parent = folder
		}

		full := strings.Join(segments, "/")
		if existing := findChild(parent, full); existing != nil {
			if existing.Type == NodeFile {
				existing.Category = rec.Category
			}
			continue
		}
		parent.Children = append(parent.Children, &Node{
			Name:     segments[len(segments)-1],
			Path:     full,
			Type:     NodeFile,
			Category: rec.Category,
		})
	}

	sortNodes(root.Children, cases.Fold())
	return root.Children
}

func splitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, part := range parts {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func findChild(parent *Node, path string) *Node {
	for _, c := range parent.Children {
		if c.Path == path {
			return c
		}
	}
	return nil
}

// sortNodes orders folders before files, then by case-folded name, then by raw name.
func sortNodes(nodes []*Node, fold cases.Caser) {
	keys := make(map[*Node]string, len(nodes))
	for _, n := range nodes {
		keys[n] = fold.String(n.Name)
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := nodes[i], nodes[j]
		if a.IsFolder() != b.IsFolder() {
			return a.IsFolder()
		}
		if keys[a] != keys[b] {
			return keys[a] < keys[b]
		}
		return a.Name < b.Name
	})
	for _, n := range nodes {
		if n.IsFolder() {
			sortNodes(n.Children, fold)
		}
	}
}
