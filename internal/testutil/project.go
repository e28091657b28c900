package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// ProjectFiles is the default content of SetupTestProject.
var ProjectFiles = map[string]string{
	"workbench.yaml": `workspace: test
default_environment: dev
environments:
  dev:
    name: Development
    driver: sqlite
    dsn: ":memory:"
    schema: main
`,
	"models/staging/stg_orders.sql": `/*---
name: stg_orders
columns:
  - name: order_id
    data_type: integer
  - name: amount
    data_type: double
---*/
select 1 as order_id, 9.5 as amount
`,
	"models/marts/revenue.sql": `/*---
columns:
  - name: total
    data_type: double
---*/
select sum(amount) as total from {{ ref("stg_orders") }} where '{{ target.schema }}' = 'main'
`,
	"sources.yml": `sources:
  - name: raw
    schema: main
    tables:
      - name: customers
        columns:
          - name: id
            data_type: integer
          - name: email
            data_type: text
`,
	"seeds/countries.csv": "code,name\nNL,Netherlands\n",
	"macros/util.star":    "def upper(s):\n    return s.upper()\n",
	"target/compiled/stg_orders.sql": "select 1 as order_id, 9.5 as amount\n",
}

// SetupTestProject writes files (ProjectFiles when nil) into a temp dir and returns it.
func SetupTestProject(t *testing.T, files map[string]string) string {
	t.Helper()

	if files == nil {
		files = ProjectFiles
	}
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", rel, err)
		}
	}
	return dir
}
