package compile

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/workbench/pkg/core"
)

// Frontmatter is the parsed YAML header of a model file.
// Unknown fields are rejected; use Meta for extensions.
type Frontmatter struct {
	Name         string
	Description  string
	Materialized string
	Schema       string
	Tags         []string
	Columns      []core.Column
	Meta         map[string]any
}

// FrontmatterResult holds a model file split into header and body.
type FrontmatterResult struct {
	Config  *Frontmatter
	SQL     string // body after the frontmatter block
	HasYAML bool
}

// matches /*--- ... ---*/ at the start of the file
var frontmatterPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

type columnYAML struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"data_type"`
}

type frontmatterYAML struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Materialized string         `yaml:"materialized"`
	Schema       string         `yaml:"schema"`
	Tags         []string       `yaml:"tags"`
	Columns      []columnYAML   `yaml:"columns"`
	Meta         map[string]any `yaml:"meta"`
}

var knownFields = map[string]bool{
	"name":         true,
	"description":  true,
	"materialized": true,
	"schema":       true,
	"tags":         true,
	"columns":      true,
	"meta":         true,
}

var validMaterialized = map[string]bool{
	"table":       true,
	"view":        true,
	"incremental": true,
}

// ExtractFrontmatter splits content into its frontmatter and SQL body.
// Content without a frontmatter block is returned as-is with an empty config.
func ExtractFrontmatter(content string) (*FrontmatterResult, error) {
	result := &FrontmatterResult{Config: &Frontmatter{}, SQL: content}

	m := frontmatterPattern.FindStringSubmatch(content)
	if len(m) < 2 {
		return result, nil
	}
	result.HasYAML = true
	result.SQL = strings.TrimSpace(frontmatterPattern.ReplaceAllString(content, ""))

	cfg, err := parseFrontmatter(m[1])
	if err != nil {
		return nil, err
	}
	result.Config = cfg
	return result, nil
}

func parseFrontmatter(src string) (*Frontmatter, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, &FrontmatterError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	for field := range raw {
		if !knownFields[field] {
			return nil, &FrontmatterError{Message: fmt.Sprintf("unknown field %q (use meta for custom fields)", field)}
		}
	}

	var y frontmatterYAML
	if err := yaml.Unmarshal([]byte(src), &y); err != nil {
		return nil, &FrontmatterError{Message: fmt.Sprintf("failed to parse frontmatter: %v", err)}
	}
	if y.Materialized != "" && !validMaterialized[y.Materialized] {
		return nil, &FrontmatterError{
			Message: fmt.Sprintf("invalid materialized value: %q, must be one of: table, view, incremental", y.Materialized),
		}
	}

	cfg := &Frontmatter{
		Name:         y.Name,
		Description:  y.Description,
		Materialized: y.Materialized,
		Schema:       y.Schema,
		Tags:         y.Tags,
		Meta:         y.Meta,
	}
	for i, c := range y.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, &FrontmatterError{Message: fmt.Sprintf("columns[%d]: name is required", i)}
		}
		cfg.Columns = append(cfg.Columns, core.Column{Name: c.Name, DataType: c.DataType})
	}
	return cfg, nil
}

// ApplyDefaults fills the name from the file name and materialized with "table".
func (f *Frontmatter) ApplyDefaults(filename string) {
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filename, ".sql")
	}
	if f.Materialized == "" {
		f.Materialized = "table"
	}
}

// ToMap returns the config exposed to templates as the "config" global.
func (f *Frontmatter) ToMap() map[string]any {
	m := map[string]any{
		"name":         f.Name,
		"materialized": f.Materialized,
	}
	if f.Description != "" {
		m["description"] = f.Description
	}
	if f.Schema != "" {
		m["schema"] = f.Schema
	}
	if len(f.Tags) > 0 {
		m["tags"] = f.Tags
	}
	if len(f.Meta) > 0 {
		m["meta"] = f.Meta
	}
	return m
}

// FrontmatterError reports an invalid frontmatter block.
type FrontmatterError struct {
	File    string
	Message string
}

func (e *FrontmatterError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s: frontmatter: %s", e.File, e.Message)
	}
	return "frontmatter: " + e.Message
}
