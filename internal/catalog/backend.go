package catalog

import (
	"context"
	"sync"

	"github.com/tcgvision/cardmatch/internal/conf"
	"github.com/tcgvision/cardmatch/internal/errors"
	"github.com/tcgvision/cardmatch/internal/imagehash"
	"github.com/tcgvision/cardmatch/internal/logger"
)

// Backend stores complete catalog snapshots.
type Backend interface {
	// Load returns every stored record in insertion order. A missing store is empty.
	Load(ctx context.Context) ([]Record, error)
	// Save replaces the stored snapshot with records. It must be all-or-nothing.
	Save(ctx context.Context, records []Record) error
	Close() error
	Name() string
}

// NewBackend returns the backend selected by settings.Driver.
func NewBackend(settings conf.CatalogSettings, shape imagehash.Shape, log logger.Logger) (Backend, error) {
	switch settings.Driver {
	case conf.DriverFile, "":
		return NewFileBackend(settings.Path)
	case conf.DriverSQLite:
		return NewSQLiteBackend(settings.SQLitePath, shape, log)
	case conf.DriverMySQL:
		return NewMySQLBackend(settings.MySQL, shape, log)
	default:
		return nil, errors.Newf("unknown catalog driver %q", settings.Driver).
			Component("catalog").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// MemoryBackend keeps snapshots in memory. It backs tests and dry runs.
type MemoryBackend struct {
	mu      sync.Mutex
	records []Record
	saveErr error
	saves   int
	closed  bool
}

// NewMemoryBackend returns a backend preloaded with records.
func NewMemoryBackend(records ...Record) *MemoryBackend {
	return &MemoryBackend{records: append([]Record(nil), records...)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.records = append([]Record(nil), records...)
	m.saves++
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return "memory" }

// FailSaves makes every following Save return err; nil restores normal operation.
func (m *MemoryBackend) FailSaves(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

// Saves returns the number of successful Save calls.
func (m *MemoryBackend) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Stored returns a copy of the last saved snapshot.
func (m *MemoryBackend) Stored() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}
