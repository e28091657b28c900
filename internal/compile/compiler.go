// Package compile renders SQL model files into executable SQL.
//
// A model file is an optional YAML frontmatter block followed by SQL with
// {{ expr }} expressions. Expressions are Starlark, evaluated against the
// globals env, target, config and this, the builtins ref(name) and
// source(source, table), and one namespace per macro file.
package compile

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path"
	"strings"

	"go.starlark.net/starlark"
)

// Compiler renders model files. It is safe for concurrent use.
type Compiler struct {
	resolver Resolver
	macros   starlark.StringDict
}

// New creates a compiler resolving ref() and source() through r.
func New(r Resolver, macros starlark.StringDict) *Compiler {
	if macros == nil {
		macros = starlark.StringDict{}
	}
	for _, m := range macros {
		m.Freeze()
	}
	return &Compiler{resolver: r, macros: macros}
}

// Input is one model file to compile.
type Input struct {
	Path    string
	Content string
	Env     string
	Target  Target
}

// Result is a compiled model.
type Result struct {
	Name      string
	SQL       string
	SourceSQL string
	Checksum  string
	Refs      []string
	Config    *Frontmatter
}

// Compile renders in.Content. SourceSQL is the file content unchanged and
// Checksum is the hex SHA-256 of the rendered SQL.
func (c *Compiler) Compile(in Input) (*Result, error) {
	fm, err := ExtractFrontmatter(in.Content)
	if err != nil {
		var fe *FrontmatterError
		if errors.As(err, &fe) {
			fe.File = in.Path
		}
		return nil, err
	}
	cfg := fm.Config
	cfg.ApplyDefaults(path.Base(in.Path))

	this := This{Name: cfg.Name, Schema: cfg.Schema}
	if this.Schema == "" {
		this.Schema = in.Target.Schema
	}
	ctx, err := newEvalContext(in.Env, in.Target, this, cfg.ToMap(), c.macros, c.resolver)
	if err != nil {
		return nil, err
	}

	sql, err := render(ctx, in.Path, fm.SQL)
	if err != nil {
		return nil, err
	}
	return &Result{
		Name:      cfg.Name,
		SQL:       sql,
		SourceSQL: in.Content,
		Checksum:  Checksum(sql),
		Refs:      ctx.refList(),
		Config:    cfg,
	}, nil
}

func render(ctx *evalContext, file, tmpl string) (string, error) {
	segs, err := newLexer(tmpl, file).segments()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range segs {
		if s.kind == segmentText {
			b.WriteString(s.value)
			continue
		}
		out, err := ctx.eval(s)
		if err != nil {
			return "", err
		}
		b.WriteString(out)
	}
	return strings.TrimSpace(b.String()), nil
}

// Checksum returns the hex SHA-256 of sql.
func Checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
