package project

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/workbench/internal/compile"
	"github.com/leapstack-labs/workbench/pkg/core"
)

// Model is a discovered model file.
type Model struct {
	UniqueID string // "model.<name>"
	Name     string
	Path     string // project-relative
	Schema   string // frontmatter override; empty means the target schema
	Columns  []core.Column
	Content  string
}

// SourceTable is one table of a declared source.
type SourceTable struct {
	Name    string
	Columns []core.Column
}

// Source is a group of external tables declared in sources.yml.
type Source struct {
	Name   string
	Schema string
	Tables []SourceTable
}

// DiscoveryError is a non-fatal problem found while building the catalog.
type DiscoveryError struct {
	Path    string
	Message string
}

// Catalog is the discovered set of models and sources.
type Catalog struct {
	Models  []Model
	Sources []Source
	Errors  []DiscoveryError

	byName map[string]int
	byID   map[string]int
}

// Catalog returns the cached catalog, discovering it on first use or after
// a write or file change.
func (p *Project) Catalog(ctx context.Context) (*Catalog, error) {
	p.mu.Lock()
	cached := p.catalog
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	c, err := p.discover(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.catalog = c
	p.mu.Unlock()
	return c, nil
}

func (p *Project) discover(ctx context.Context) (*Catalog, error) {
	c := &Catalog{byName: map[string]int{}, byID: map[string]int{}}
	log := p.logger.With("models_dir", p.modelsDir)
	log.Debug("discovering models")

	modelsAbs := filepath.Join(p.root, filepath.FromSlash(p.modelsDir))
	err := filepath.WalkDir(p.root, func(abs string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if abs != p.root && (ignoredDirs[d.Name()] || d.Name() == "target") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, _ := filepath.Rel(p.root, abs)
		rel = filepath.ToSlash(rel)

		switch {
		case isSourcesFile(d.Name()):
			p.addSources(c, abs, rel)
		case strings.HasSuffix(d.Name(), ".sql") && strings.HasPrefix(abs, modelsAbs+string(filepath.Separator)):
			p.addModel(c, abs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover models: %w", err)
	}

	sort.Slice(c.Models, func(i, j int) bool { return c.Models[i].Name < c.Models[j].Name })
	sort.Slice(c.Sources, func(i, j int) bool { return c.Sources[i].Name < c.Sources[j].Name })
	for i, m := range c.Models {
		c.byName[m.Name] = i
		c.byID[m.UniqueID] = i
	}

	log.Debug("discovery completed", "models_total", len(c.Models), "sources_total", len(c.Sources), "errors", len(c.Errors))
	return c, nil
}

func (p *Project) addModel(c *Catalog, abs, rel string) {
	data, err := os.ReadFile(abs) //nolint:gosec // G304: walked under the project root
	if err != nil {
		c.Errors = append(c.Errors, DiscoveryError{Path: rel, Message: err.Error()})
		return
	}
	fm, err := compile.ExtractFrontmatter(string(data))
	if err != nil {
		c.Errors = append(c.Errors, DiscoveryError{Path: rel, Message: err.Error()})
		return
	}
	cfg := fm.Config
	cfg.ApplyDefaults(path.Base(rel))

	for _, m := range c.Models {
		if m.Name == cfg.Name {
			c.Errors = append(c.Errors, DiscoveryError{Path: rel, Message: fmt.Sprintf("duplicate model name %q (also %s)", cfg.Name, m.Path)})
			return
		}
	}
	c.Models = append(c.Models, Model{
		UniqueID: "model." + cfg.Name,
		Name:     cfg.Name,
		Path:     rel,
		Schema:   cfg.Schema,
		Columns:  cfg.Columns,
		Content:  string(data),
	})
}

func (p *Project) addSources(c *Catalog, abs, rel string) {
	data, err := os.ReadFile(abs) //nolint:gosec // G304: walked under the project root
	if err != nil {
		c.Errors = append(c.Errors, DiscoveryError{Path: rel, Message: err.Error()})
		return
	}
	sources, err := parseSources(data)
	if err != nil {
		c.Errors = append(c.Errors, DiscoveryError{Path: rel, Message: err.Error()})
		return
	}
	c.Sources = append(c.Sources, sources...)
}

type sourcesFile struct {
	Sources []struct {
		Name   string `yaml:"name"`
		Schema string `yaml:"schema"`
		Tables []struct {
			Name    string `yaml:"name"`
			Columns []struct {
				Name     string `yaml:"name"`
				DataType string `yaml:"data_type"`
			} `yaml:"columns"`
		} `yaml:"tables"`
	} `yaml:"sources"`
}

func parseSources(data []byte) ([]Source, error) {
	var f sourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid sources file: %w", err)
	}
	out := make([]Source, 0, len(f.Sources))
	for i, s := range f.Sources {
		if s.Name == "" {
			return nil, fmt.Errorf("sources[%d]: name is required", i)
		}
		src := Source{Name: s.Name, Schema: s.Schema}
		for j, t := range s.Tables {
			if t.Name == "" {
				return nil, fmt.Errorf("sources[%d].tables[%d]: name is required", i, j)
			}
			table := SourceTable{Name: t.Name}
			for _, col := range t.Columns {
				table.Columns = append(table.Columns, core.Column{Name: col.Name, DataType: col.DataType})
			}
			src.Tables = append(src.Tables, table)
		}
		out = append(out, src)
	}
	return out, nil
}

// Model returns the model with the given unique id.
func (c *Catalog) Model(uniqueID string) (Model, bool) {
	i, ok := c.byID[uniqueID]
	if !ok {
		return Model{}, false
	}
	return c.Models[i], true
}

// ModelSchema implements compile.Resolver.
func (c *Catalog) ModelSchema(name string) (string, bool) {
	i, ok := c.byName[name]
	if !ok {
		return "", false
	}
	return c.Models[i].Schema, true
}

// SourceSchema implements compile.Resolver.
func (c *Catalog) SourceSchema(source, table string) (string, bool) {
	for _, s := range c.Sources {
		if s.Name != source {
			continue
		}
		for _, t := range s.Tables {
			if t.Name == table {
				return s.Schema, true
			}
		}
	}
	return "", false
}

// Metadata projects the catalog for a target schema. Schemas groups every
// relation by its schema.
func (c *Catalog) Metadata(targetSchema string) *core.Metadata {
	md := &core.Metadata{Schemas: map[string][]core.Relation{}}
	qualify := func(schema, name string) (string, string) {
		if schema == "" {
			schema = targetSchema
		}
		if schema == "" {
			return "", name
		}
		return schema, schema + "." + name
	}

	for _, m := range c.Models {
		schema, rel := qualify(m.Schema, m.Name)
		r := core.Relation{
			UniqueID:         m.UniqueID,
			Name:             m.Name,
			RelationName:     rel,
			Columns:          m.Columns,
			OriginalFilePath: m.Path,
			Schema:           schema,
		}
		md.Models = append(md.Models, r)
		md.Schemas[schema] = append(md.Schemas[schema], r)
	}
	for _, s := range c.Sources {
		for _, t := range s.Tables {
			schema, rel := qualify(s.Schema, t.Name)
			r := core.Relation{
				UniqueID:     "source." + s.Name + "." + t.Name,
				Name:         t.Name,
				RelationName: rel,
				Columns:      t.Columns,
				Schema:       schema,
			}
			md.Sources = append(md.Sources, r)
			md.Schemas[schema] = append(md.Schemas[schema], r)
		}
	}
	return md
}

var _ compile.Resolver = (*Catalog)(nil)
