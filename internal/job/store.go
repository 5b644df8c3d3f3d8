// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package job

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pdiddy/veritas/pkg/types"
)

// Store persists jobs. Update applies fn atomically with respect to other
// updates of the same job and rejects terminal jobs with ErrTerminal
// without calling fn. Unknown IDs yield ErrNotFound.
type Store interface {
	Create(ctx context.Context, j Job) error
	Get(ctx context.Context, id string) (Job, error)
	Update(ctx context.Context, id string, fn func(*Job) error) (Job, error)
	Delete(ctx context.Context, id string) error

	// List returns every job, oldest first.
	List(ctx context.Context) ([]Job, error)
}

// applyUpdate is the shared Update rule for all backends.
func applyUpdate(j *Job, fn func(*Job) error) error {
	if j.Terminal() {
		return ErrTerminal
	}
	return fn(j)
}

// OpenStore builds the Store selected by cfg. The close function is never nil.
func OpenStore(ctx context.Context, cfg types.JobsConfig) (Store, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Store {
	case types.JobStoreMemory, "":
		return NewMemoryStore(), noop, nil
	case types.JobStoreSQLite:
		s, err := NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	case types.JobStorePostgres:
		s, err := NewPostgresStore(ctx, cfg.DSN)
		if err != nil {
			return nil, noop, err
		}
		return s, func() error { s.Close(); return nil }, nil
	default:
		return nil, noop, fmt.Errorf("unknown job store %q", cfg.Store)
	}
}

// MemoryStore keeps jobs in a map. Jobs are lost on restart.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (m *MemoryStore) Create(_ context.Context, j Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; ok {
		return fmt.Errorf("job %s already exists", j.ID)
	}
	m.jobs[j.ID] = j.clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return j.clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Job) error) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	j := cur.clone()
	if err := applyUpdate(&j, fn); err != nil {
		return cur.clone(), err
	}
	m.jobs[id] = j
	return j.clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(m.jobs, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j.clone())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}
