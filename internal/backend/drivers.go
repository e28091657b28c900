package backend

import (
	"fmt"
	"sort"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"  // registers the "pgx" driver
	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver
	_ "modernc.org/sqlite"              // registers the "sqlite" driver
)

// Driver describes how to reach one kind of database through database/sql.
type Driver struct {
	// Name is the environment driver key, e.g. "duckdb".
	Name string
	// SQLDriver is the database/sql driver name.
	SQLDriver string
	// ExplainPrefix turns a query into its plan query.
	ExplainPrefix string
	// DefaultSchema is used when the environment sets none.
	DefaultSchema string
	// DefaultDSN is used when the environment sets none.
	DefaultDSN string
	// SingleConn is set for in-memory databases that are private to a connection.
	SingleConn func(dsn string) bool
}

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

func init() {
	memory := func(dsn string) bool { return dsn == "" || dsn == ":memory:" }
	RegisterDriver(Driver{
		Name:          "sqlite",
		SQLDriver:     "sqlite",
		ExplainPrefix: "EXPLAIN QUERY PLAN ",
		DefaultSchema: "main",
		DefaultDSN:    ":memory:",
		SingleConn:    memory,
	})
	RegisterDriver(Driver{
		Name:          "duckdb",
		SQLDriver:     "duckdb",
		ExplainPrefix: "EXPLAIN ",
		DefaultSchema: "main",
		SingleConn:    memory,
	})
	RegisterDriver(Driver{
		Name:          "pgx",
		SQLDriver:     "pgx",
		ExplainPrefix: "EXPLAIN ",
		DefaultSchema: "public",
	})
}

// RegisterDriver adds or replaces a driver.
func RegisterDriver(d Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[d.Name] = d
}

// LookupDriver returns the driver registered under name.
func LookupDriver(name string) (Driver, error) {
	driversMu.RLock()
	defer driversMu.RUnlock()
	d, ok := drivers[name]
	if !ok {
		return Driver{}, &UnknownDriverError{Name: name, Available: listDriversLocked()}
	}
	return d, nil
}

// ListDrivers returns the registered driver names, sorted.
func ListDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	return listDriversLocked()
}

func listDriversLocked() []string {
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnknownDriverError is returned for an environment with an unregistered driver.
type UnknownDriverError struct {
	Name      string
	Available []string
}

func (e *UnknownDriverError) Error() string {
	return fmt.Sprintf("unknown driver %q (available: %v)", e.Name, e.Available)
}
