// Package storage persists the unified time-series table.
//
// Backends live in sub-packages and register themselves from init();
// blank-import internal/storage/all to get every backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects and connects a backend.
type Config struct {
	// Kind is a registered backend name: "postgres", "sqlite" or "mssql".
	Kind string
	// DSN is passed through to the backend driver.
	DSN string
}

// Repository is the backend contract. Each backend implements idempotent
// inserts in its own dialect (ON CONFLICT, OR IGNORE, NOT EXISTS).
type Repository interface {
	// Close releases connections. Call it once.
	Close()

	// EnsureTable creates the table if it does not exist. An existing table
	// is left as is.
	EnsureTable(ctx context.Context, spec TableSpec) error

	// Truncate removes every row from table.
	Truncate(ctx context.Context, table string) error

	// InsertRows inserts rows whose values line up with columns. When
	// conflictColumns is non-empty, rows whose conflict key already exists
	// are skipped instead of failing. It returns the number of rows written.
	InsertRows(ctx context.Context, table string, columns []string, rows [][]any, conflictColumns []string) (int64, error)
}

// Factory opens a Repository.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. It panics on an empty kind,
// a nil factory or a duplicate registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a repository with the factory registered for cfg.Kind.
//
// Errors:
//   - cfg.Kind is empty or not registered.
//   - Whatever the backend factory returns (bad DSN, unreachable server).
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Kind, err)
	}
	return repo, nil
}

// Kinds lists registered backends, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
