// Package memstore keeps every aggregate in process memory. It backs the
// "memory" database driver and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

type ProductRepo struct {
	mu   sync.RWMutex
	rows map[string]domain.Product
}

func NewProductRepo() *ProductRepo {
	return &ProductRepo{rows: map[string]domain.Product{}}
}

func (r *ProductRepo) Save(_ context.Context, p *domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[p.ID] = cloneProduct(*p)
	return nil
}

func (r *ProductRepo) Get(_ context.Context, id string) (*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("Product")
	}
	out := cloneProduct(p)
	return &out, nil
}

func (r *ProductRepo) List(_ context.Context, f domain.ListFilter) ([]*domain.Product, int64, error) {
	r.mu.RLock()
	matched := make([]domain.Product, 0)
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, p := range r.rows {
		if !ownedBy(p.Owner, f.Owners) {
			continue
		}
		if !f.IncludeInactive && !p.Active {
			continue
		}
		if f.Category != "" && p.Category != f.Category {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		matched = append(matched, cloneProduct(p))
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	lo, hi := pageBounds(len(matched), f.Page, f.PageSize)
	out := make([]*domain.Product, 0, hi-lo)
	for i := lo; i < hi; i++ {
		p := matched[i]
		out = append(out, &p)
	}
	return out, total, nil
}

func (r *ProductRepo) FindByIDs(_ context.Context, ids []string, owners []domain.Owner) ([]*domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := r.rows[id]
		if !ok || !p.Active || !ownedBy(p.Owner, owners) {
			continue
		}
		c := cloneProduct(p)
		out = append(out, &c)
	}
	return out, nil
}

func (r *ProductRepo) SetActive(_ context.Context, id string, active bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return apperr.NotFound("Product")
	}
	p.Active = active
	p.UpdatedAt = at
	r.rows[id] = p
	return nil
}

func (r *ProductRepo) MarkAnalyzed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return apperr.NotFound("Product")
	}
	t := at
	p.LastAnalyzed = &t
	p.UpdatedAt = at
	r.rows[id] = p
	return nil
}

func (r *ProductRepo) Stats(_ context.Context, owners []domain.Owner) (domain.Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := domain.EmptyStats()
	counts := map[domain.Category]int{}
	for _, p := range r.rows {
		if !ownedBy(p.Owner, owners) {
			continue
		}
		st.TotalProducts++
		if p.Active {
			st.ActiveProducts++
		}
		counts[p.Category]++
		if p.LastAnalyzed != nil && (st.LastAnalyzed == nil || p.LastAnalyzed.After(*st.LastAnalyzed)) {
			t := *p.LastAnalyzed
			st.LastAnalyzed = &t
		}
	}
	for _, c := range domain.Categories {
		if n := counts[c]; n > 0 {
			st.CategoryDistribution = append(st.CategoryDistribution, domain.CategoryCount{Category: c, Count: n})
		}
	}
	return st, nil
}

func (r *ProductRepo) IDs(_ context.Context, owners []domain.Owner) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := []string{}
	for id, p := range r.rows {
		if ownedBy(p.Owner, owners) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func matchesSearch(p domain.Product, search string) bool {
	for _, field := range []string{p.Name, p.Description, p.Technology} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func ownedBy(o domain.Owner, owners []domain.Owner) bool {
	for _, x := range owners {
		if domain.SameOwner(o, x) {
			return true
		}
	}
	return false
}

func cloneProduct(p domain.Product) domain.Product {
	p.Metadata.Tags = append([]string(nil), p.Metadata.Tags...)
	if p.LastAnalyzed != nil {
		t := *p.LastAnalyzed
		p.LastAnalyzed = &t
	}
	return p
}

func pageBounds(n, page, size int) (int, int) {
	if size <= 0 {
		return 0, n
	}
	if page < 1 {
		page = 1
	}
	lo := (page - 1) * size
	if lo > n {
		lo = n
	}
	hi := lo + size
	if hi > n {
		hi = n
	}
	return lo, hi
}
