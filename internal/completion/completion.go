// Package completion suggests model, relation and column names for the editor.
//
// Resolution is a pure function of the buffer text, the cursor and the
// catalog snapshot. Nothing is cached between calls.
package completion

import (
	"regexp"
	"sort"
	"strings"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// Kind classifies a suggestion.
type Kind string

// Suggestion kinds.
const (
	KindModel    Kind = "model"
	KindRelation Kind = "relation"
	KindColumn   Kind = "column"
)

// Suggestion is one completion candidate.
type Suggestion struct {
	Label  string `json:"label"`
	Kind   Kind   `json:"kind"`
	Detail string `json:"detail,omitempty"`
}

// ContextType describes where the cursor sits.
type ContextType int

// Completion contexts, checked in this order.
const (
	ContextGeneral     ContextType = iota
	ContextModelRef                // inside ref("...
	ContextColumnAccess            // after "alias."
)

var (
	refCallRe    = regexp.MustCompile(`\bref\(\s*["']?([A-Za-z0-9_.]*)$`)
	aliasClause  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([A-Za-z_][A-Za-z0-9_.]*)(?:\s+(?:AS\s+)?([A-Za-z_][A-Za-z0-9_]*))?`)
	columnAccess = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z0-9_]*)$`)
)

// reservedAliases are keywords the alias pattern would otherwise capture.
var reservedAliases = map[string]bool{
	"WHERE": true, "ON": true, "JOIN": true, "LEFT": true, "RIGHT": true,
	"INNER": true, "OUTER": true, "FULL": true, "CROSS": true, "NATURAL": true,
	"GROUP": true, "ORDER": true, "LIMIT": true, "OFFSET": true, "HAVING": true,
	"UNION": true, "EXCEPT": true, "INTERSECT": true, "USING": true, "WINDOW": true,
	"LATERAL": true, "SELECT": true, "AS": true, "AND": true, "OR": true,
}

// Context is the detected cursor context.
type Context struct {
	Type ContextType
	// Prefix is the partial word typed at the cursor.
	Prefix string
	// Qualifier is the alias before the dot for ContextColumnAccess.
	Qualifier string
}

// Resolve returns ranked suggestions for the cursor position, a byte offset
// into text. An out-of-range cursor means end of text.
func Resolve(text string, cursor int, md *core.Metadata) []Suggestion {
	if cursor < 0 || cursor > len(text) {
		cursor = len(text)
	}
	before := text[:cursor]
	if md == nil {
		md = &core.Metadata{}
	}

	ctx := DetectContext(before)
	switch ctx.Type {
	case ContextModelRef:
		return rank(modelSuggestions(md), ctx.Prefix)
	case ContextColumnAccess:
		aliases := ParseAliases(text)
		if rel, ok := aliases[strings.ToLower(ctx.Qualifier)]; ok {
			return rank(columnSuggestions(lookupRelation(md, rel)), ctx.Prefix)
		}
		ctx.Prefix = currentWord(before)
	}

	return rank(generalSuggestions(md), ctx.Prefix)
}

// DetectContext classifies the text before the cursor.
func DetectContext(before string) Context {
	if m := refCallRe.FindStringSubmatch(before); m != nil {
		return Context{Type: ContextModelRef, Prefix: m[1]}
	}
	if m := columnAccess.FindStringSubmatch(before); m != nil {
		return Context{Type: ContextColumnAccess, Qualifier: m[1], Prefix: m[2]}
	}
	return Context{Type: ContextGeneral, Prefix: currentWord(before)}
}

// ParseAliases maps lower-cased aliases, and the relation names themselves,
// to the relation they name in FROM and JOIN clauses.
func ParseAliases(text string) map[string]string {
	aliases := make(map[string]string)
	for _, m := range aliasClause.FindAllStringSubmatch(text, -1) {
		rel := m[1]
		aliases[strings.ToLower(rel)] = rel
		if i := strings.LastIndex(rel, "."); i >= 0 && i < len(rel)-1 {
			short := strings.ToLower(rel[i+1:])
			if _, taken := aliases[short]; !taken {
				aliases[short] = rel
			}
		}
		if alias := m[2]; alias != "" && !reservedAliases[strings.ToUpper(alias)] {
			aliases[strings.ToLower(alias)] = rel
		}
	}
	return aliases
}

func lookupRelation(md *core.Metadata, name string) *core.Relation {
	lower := strings.ToLower(name)
	var fallback *core.Relation
	for _, rel := range allRelations(md) {
		if strings.ToLower(rel.RelationName) == lower || strings.ToLower(rel.UniqueID) == lower {
			return &rel
		}
		if fallback == nil && strings.ToLower(rel.Name) == lower {
			fallback = &rel
		}
	}
	return fallback
}

// allRelations lists models, then sources, then schema relations by schema name.
func allRelations(md *core.Metadata) []core.Relation {
	out := make([]core.Relation, 0, len(md.Models)+len(md.Sources))
	out = append(out, md.Models...)
	out = append(out, md.Sources...)

	schemas := make([]string, 0, len(md.Schemas))
	for name := range md.Schemas {
		schemas = append(schemas, name)
	}
	sort.Strings(schemas)
	for _, name := range schemas {
		out = append(out, md.Schemas[name]...)
	}
	return out
}

func modelSuggestions(md *core.Metadata) []Suggestion {
	seen := make(map[string]bool)
	var out []Suggestion
	for _, m := range md.Models {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		out = append(out, Suggestion{Label: m.Name, Kind: KindModel, Detail: m.RelationName})
	}
	return out
}

func columnSuggestions(rel *core.Relation) []Suggestion {
	if rel == nil {
		return nil
	}
	out := make([]Suggestion, 0, len(rel.Columns))
	seen := make(map[string]bool)
	for _, c := range rel.Columns {
		if seen[c.Name] {
			continue
		}
		seen[c.Name] = true
		out = append(out, Suggestion{Label: c.Name, Kind: KindColumn, Detail: c.DataType})
	}
	return out
}

// generalSuggestions lists relation names first, then first-seen-wins columns.
func generalSuggestions(md *core.Metadata) []Suggestion {
	rels := allRelations(md)
	var out []Suggestion

	seenRel := make(map[string]bool)
	for _, r := range rels {
		label := relationLabel(r)
		if label == "" || seenRel[label] {
			continue
		}
		seenRel[label] = true
		out = append(out, Suggestion{Label: label, Kind: KindRelation, Detail: r.Name})
	}

	seenCol := make(map[string]bool)
	for _, r := range rels {
		for _, c := range r.Columns {
			if seenCol[c.Name] {
				continue
			}
			seenCol[c.Name] = true
			out = append(out, Suggestion{Label: c.Name, Kind: KindColumn, Detail: c.DataType})
		}
	}
	return out
}

func relationLabel(r core.Relation) string {
	if r.RelationName != "" {
		return r.RelationName
	}
	return r.Name
}

// rank keeps candidates matching prefix. Case-insensitive prefix matches come
// first, then substring matches, each group in input order.
func rank(candidates []Suggestion, prefix string) []Suggestion {
	if prefix == "" {
		return candidates
	}
	p := strings.ToLower(prefix)
	var head, tail []Suggestion
	for _, c := range candidates {
		label := strings.ToLower(c.Label)
		switch {
		case strings.HasPrefix(label, p), strings.HasPrefix(lastSegment(label), p):
			head = append(head, c)
		case strings.Contains(label, p):
			tail = append(tail, c)
		}
	}
	return append(head, tail...)
}

func lastSegment(s string) string {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return s[i+1:]
	}
	return s
}

func currentWord(before string) string {
	start := len(before)
	for start > 0 && isIdentChar(before[start-1]) {
		start--
	}
	return before[start:]
}

func isIdentChar(c byte) bool {
	return (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') ||
		c == '_'
}
