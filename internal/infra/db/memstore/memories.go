package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/memory"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]domain.Memory
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]domain.Memory{}}
}

func (r *MemoryRepo) Save(_ context.Context, m *domain.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[m.ID] = cloneMemory(*m)
	return nil
}

func (r *MemoryRepo) ListActive(_ context.Context, productID string) ([]*domain.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Memory, 0)
	for _, m := range r.rows {
		if m.ProductID == productID && m.Active {
			c := cloneMemory(m)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) Touch(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rows[id]
	if !ok {
		return apperr.NotFound("Memory")
	}
	m.AccessCount++
	m.LastAccessed = at
	r.rows[id] = m
	return nil
}

func (r *MemoryRepo) Statistics(ctx context.Context, productID string) (domain.Statistics, error) {
	list, err := r.ListActive(ctx, productID)
	if err != nil {
		return domain.EmptyStatistics(), err
	}
	return domain.Compute(list), nil
}

// ByProduct returns every memory of a product, inactive ones included.
func (r *MemoryRepo) ByProduct(productID string) []*domain.Memory {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Memory
	for _, m := range r.rows {
		if m.ProductID == productID {
			c := cloneMemory(m)
			out = append(out, &c)
		}
	}
	return out
}

func cloneMemory(m domain.Memory) domain.Memory {
	m.Vector = append([]float32(nil), m.Vector...)
	m.Tags = append([]string(nil), m.Tags...)
	return m
}
