package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
)

type AssessmentRepo struct {
	mu   sync.RWMutex
	rows map[string]domain.Assessment
	// insertion order for stable newest-first listing at equal timestamps
	seq   map[string]int
	count int
}

func NewAssessmentRepo() *AssessmentRepo {
	return &AssessmentRepo{rows: map[string]domain.Assessment{}, seq: map[string]int{}}
}

func (r *AssessmentRepo) Save(_ context.Context, a *domain.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		r.count++
		r.seq[a.ID] = r.count
	}
	r.rows[a.ID] = cloneAssessment(*a)
	return nil
}

func (r *AssessmentRepo) Update(_ context.Context, a *domain.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[a.ID]; !ok {
		return apperr.NotFound("Assessment")
	}
	r.rows[a.ID] = cloneAssessment(*a)
	return nil
}

func (r *AssessmentRepo) Get(_ context.Context, id string) (*domain.Assessment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("Assessment")
	}
	out := cloneAssessment(a)
	return &out, nil
}

func (r *AssessmentRepo) ListByProduct(_ context.Context, productID string, page, pageSize int) ([]*domain.Assessment, int64, error) {
	r.mu.RLock()
	matched := make([]domain.Assessment, 0)
	seq := map[string]int{}
	for _, a := range r.rows {
		if a.ProductID == productID {
			matched = append(matched, cloneAssessment(a))
			seq[a.ID] = r.seq[a.ID]
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return seq[matched[i].ID] > seq[matched[j].ID]
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})
	lo, hi := pageBounds(len(matched), page, pageSize)
	out := make([]*domain.Assessment, 0, hi-lo)
	for i := lo; i < hi; i++ {
		a := matched[i]
		out = append(out, &a)
	}
	return out, int64(len(matched)), nil
}

func (r *AssessmentRepo) Statistics(_ context.Context, productIDs []string) (domain.Statistics, error) {
	want := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		want[id] = true
	}
	r.mu.RLock()
	list := make([]*domain.Assessment, 0)
	for _, a := range r.rows {
		if want[a.ProductID] {
			c := a
			list = append(list, &c)
		}
	}
	r.mu.RUnlock()
	return domain.Compute(list), nil
}

// Count returns the number of stored assessments.
func (r *AssessmentRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

func cloneAssessment(a domain.Assessment) domain.Assessment {
	a.Vulnerabilities = append([]string(nil), a.Vulnerabilities...)
	a.Recommendations = append([]string(nil), a.Recommendations...)
	a.Input.ComplianceRequirements = append([]string(nil), a.Input.ComplianceRequirements...)
	return a
}
