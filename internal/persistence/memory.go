package persistence

import (
	"context"
	"sync"

	"github.com/switchboardhq/supervisor/internal/core/patch"
	"github.com/switchboardhq/supervisor/internal/core/state"
)

// MemoryStore is a pure in-memory Store, used by the persistence tests
// alongside the SQLite store. It applies the same op semantics a
// SQL-backed store would, just against Go maps.
type MemoryStore struct {
	mu       sync.Mutex
	state    *state.BrowserState
	revision uint64
}

// NewMemoryStore creates an empty store, equivalent to first boot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: state.New()}
}

func (m *MemoryStore) Load(ctx context.Context) (*state.BrowserState, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seedGenerators(m.state)
	return m.state.Clone(), m.revision, nil
}

func (m *MemoryStore) Commit(ops []patch.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if err := applyToState(m.state, op); err != nil {
			return err
		}
	}
	m.revision++
	return nil
}

func (m *MemoryStore) Close() error { return nil }
