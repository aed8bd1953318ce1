// internal/store/memory.go
//
// In-memory registry of live tables.
// Games never outlive the process, so this is the only store.
//
// Characteristics:
//   - Stores *table.Table keyed by ID in a map.
//   - Concurrency-safe via RWMutex (concurrent reads allowed, writes exclusive).
//   - Bounded: when full, the oldest table that is finished, closed, or idle
//     longer than the idle TTL is evicted to make room; if none qualifies,
//     Save fails with ErrFull.
//   - Delete and CloseAll stop the tables they remove.

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/memorymatch/internal/table"
)

var (
	ErrNotFound = errors.New("not found")
	ErrFull     = errors.New("store full")
)

// Store defines the registry interface for live tables.
type Store interface {
	// Save registers a table under its ID.
	Save(ctx context.Context, t *table.Table) error

	// Get retrieves a table by ID.
	// Returns ErrNotFound if the table is not registered.
	Get(ctx context.Context, id string) (*table.Table, error)

	// Delete closes and removes a table.
	Delete(ctx context.Context, id string) error

	// Len is the number of registered tables.
	Len() int

	// CloseAll closes and removes every table.
	CloseAll()
}

// memory is an in-memory map-based Store implementation.
type memory struct {
	mu      sync.RWMutex            // guards tables
	tables  map[string]*table.Table // keyed by Table.ID
	limit   int
	idleTTL time.Duration
	clock   clock.Clock
}

// NewMemoryStore constructs a new in-memory Store holding at most limit tables.
// A limit of zero or less means unbounded. Tables with no selection for longer
// than idleTTL become evictable; zero or less disables that. A nil clk uses
// the wall clock.
func NewMemoryStore(limit int, idleTTL time.Duration, clk clock.Clock) Store {
	if clk == nil {
		clk = clock.New()
	}
	return &memory{
		tables:  make(map[string]*table.Table),
		limit:   limit,
		idleTTL: idleTTL,
		clock:   clk,
	}
}

// Save adds the table, evicting a finished one first if the store is full.
func (m *memory) Save(ctx context.Context, t *table.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[t.ID]; !ok && m.limit > 0 && len(m.tables) >= m.limit {
		if !m.evictLocked() {
			return ErrFull
		}
	}
	m.tables[t.ID] = t
	return nil
}

// evictLocked removes the oldest table that is closed, over, or idle.
func (m *memory) evictLocked() bool {
	now := m.clock.Now()
	var victim *table.Table
	for _, t := range m.tables {
		if !m.evictable(t, now) {
			continue
		}
		if victim == nil || t.CreatedAt.Before(victim.CreatedAt) {
			victim = t
		}
	}
	if victim == nil {
		return false
	}
	delete(m.tables, victim.ID)
	go victim.Close()
	log.Debug().Str("game_id", victim.ID).Msg("evicted table")
	return true
}

// Get looks up a table by ID.
func (m *memory) Get(ctx context.Context, id string) (*table.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.tables[id]; ok {
		return t, nil
	}
	return nil, ErrNotFound
}

// Delete removes the table and waits for its loop to stop.
func (m *memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	t, ok := m.tables[id]
	delete(m.tables, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	t.Close()
	return nil
}

func (m *memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables)
}

func (m *memory) CloseAll() {
	m.mu.Lock()
	tables := m.tables
	m.tables = make(map[string]*table.Table)
	m.mu.Unlock()
	for _, t := range tables {
		t.Close()
	}
}

func (m *memory) evictable(t *table.Table, now time.Time) bool {
	if t.Over() || isDone(t) {
		return true
	}
	return m.idleTTL > 0 && now.Sub(t.LastActive()) > m.idleTTL
}

func isDone(t *table.Table) bool {
	select {
	case <-t.Done():
		return true
	default:
		return false
	}
}
