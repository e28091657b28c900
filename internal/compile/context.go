package compile

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// Target is the environment exposed to templates as "target".
type Target struct {
	Type     string
	Schema   string
	Database string
}

// This is the model being compiled, exposed as "this".
type This struct {
	Name   string
	Schema string
}

// Resolver maps ref() and source() arguments to schemas. An empty schema
// means the target schema.
type Resolver interface {
	ModelSchema(name string) (schema string, ok bool)
	SourceSchema(source, table string) (schema string, ok bool)
}

var fileOptions = &syntax.FileOptions{}

// evalContext holds the globals of one compilation and records refs.
type evalContext struct {
	globals  starlark.StringDict
	target   Target
	resolver Resolver
	refs     map[string]bool
}

func newEvalContext(env string, target Target, this This, config map[string]any, macros starlark.StringDict, r Resolver) (*evalContext, error) {
	cfg, err := toStarlark(config)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ctx := &evalContext{target: target, resolver: r, refs: map[string]bool{}}

	globals := make(starlark.StringDict, len(macros)+6)
	for name, m := range macros {
		globals[name] = m
	}
	globals["config"] = cfg
	globals["env"] = starlark.String(env)
	globals["target"] = starlarkstruct.FromStringDict(starlark.String("target"), starlark.StringDict{
		"type":     starlark.String(target.Type),
		"schema":   starlark.String(target.Schema),
		"database": starlark.String(target.Database),
	})
	globals["this"] = starlarkstruct.FromStringDict(starlark.String("this"), starlark.StringDict{
		"name":   starlark.String(this.Name),
		"schema": starlark.String(this.Schema),
	})
	globals["ref"] = starlark.NewBuiltin("ref", ctx.ref)
	globals["source"] = starlark.NewBuiltin("source", ctx.source)
	ctx.globals = globals
	return ctx, nil
}

// reserved global names; macro namespaces may not shadow them
var reserved = map[string]bool{
	"config": true,
	"env":    true,
	"target": true,
	"this":   true,
	"ref":    true,
	"source": true,
}

func (c *evalContext) ref(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	if c.resolver == nil {
		return nil, fmt.Errorf("ref: unknown model %q", name)
	}
	schema, ok := c.resolver.ModelSchema(name)
	if !ok {
		return nil, fmt.Errorf("ref: unknown model %q", name)
	}
	c.refs[name] = true
	return starlark.String(c.qualify(schema, name)), nil
}

func (c *evalContext) source(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src, table string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &src, &table); err != nil {
		return nil, err
	}
	if c.resolver == nil {
		return nil, fmt.Errorf("source: unknown source %s.%s", src, table)
	}
	schema, ok := c.resolver.SourceSchema(src, table)
	if !ok {
		return nil, fmt.Errorf("source: unknown source %s.%s", src, table)
	}
	return starlark.String(c.qualify(schema, table)), nil
}

func (c *evalContext) qualify(schema, name string) string {
	if schema == "" {
		schema = c.target.Schema
	}
	if schema == "" {
		return name
	}
	return schema + "." + name
}

// eval evaluates one expression and renders its value as SQL text.
func (c *evalContext) eval(seg segment) (string, error) {
	thread := &starlark.Thread{Name: seg.pos.File, Print: func(*starlark.Thread, string) {}}
	v, err := starlark.EvalOptions(fileOptions, thread, seg.pos.File, seg.value, c.globals)
	if err != nil {
		return "", &TemplateError{Pos: seg.pos, Expr: seg.value, Message: err.Error()}
	}
	switch v := v.(type) {
	case starlark.String:
		return string(v), nil
	case starlark.NoneType:
		return "", nil
	default:
		return v.String(), nil
	}
}

func (c *evalContext) refList() []string {
	out := make([]string, 0, len(c.refs))
	for r := range c.refs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// toStarlark converts decoded YAML values.
func toStarlark(v any) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case []string:
		list := make([]starlark.Value, len(val))
		for i, s := range val {
			list[i] = starlark.String(s)
		}
		return starlark.NewList(list), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, fmt.Errorf("list index %d: %w", i, err)
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		dict := starlark.NewDict(len(val))
		for _, k := range keys {
			sv, err := toStarlark(val[k])
			if err != nil {
				return nil, fmt.Errorf("dict key %q: %w", k, err)
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
