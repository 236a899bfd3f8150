package station

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository keeps stations in process memory. Used when no
// database is configured, and in tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	stations map[string]*Station
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		stations: make(map[string]*Station),
	}
}

func (r *InMemoryRepository) Get(ctx context.Context, id string) (*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *st
	return &cp, nil
}

func (r *InMemoryRepository) Put(ctx context.Context, st *Station) error {
	if err := st.Validate(); err != nil {
		return err
	}
	st.UpdatedAt = time.Now().UTC()
	cp := *st

	r.mu.Lock()
	r.stations[st.ID] = &cp
	r.mu.Unlock()
	return nil
}

func (r *InMemoryRepository) List(ctx context.Context) ([]*Station, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Station, 0, len(r.stations))
	for _, st := range r.stations {
		cp := *st
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.stations[id]; !ok {
		return ErrNotFound
	}
	delete(r.stations, id)
	return nil
}
