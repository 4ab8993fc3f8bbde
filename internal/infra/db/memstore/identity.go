package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
)

type UserRepo struct {
	mu   sync.RWMutex
	rows map[string]identity.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{rows: map[string]identity.User{}}
}

// Put inserts or replaces a user; used for seeding.
func (r *UserRepo) Put(u identity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[u.ID] = u
}

func (r *UserRepo) Save(_ context.Context, u *identity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, other := range r.rows {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return apperr.Validation(map[string]string{"email": "is already registered"})
		}
	}
	r.rows[u.ID] = *u
	return nil
}

func (r *UserRepo) Get(_ context.Context, id string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("User")
	}
	return &u, nil
}

func (r *UserRepo) FindByEmail(_ context.Context, email string) (*identity.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.rows {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, apperr.NotFound("User")
}

func (r *UserRepo) ListByOrganization(_ context.Context, orgID string, page, limit int) ([]*identity.User, int64, error) {
	r.mu.RLock()
	members := make([]identity.User, 0)
	for _, u := range r.rows {
		if u.OrganizationID == orgID {
			members = append(members, u)
		}
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool {
		if !members[i].CreatedAt.Equal(members[j].CreatedAt) {
			return members[i].CreatedAt.Before(members[j].CreatedAt)
		}
		return members[i].ID < members[j].ID
	})
	lo, hi := pageBounds(len(members), page, limit)
	out := make([]*identity.User, 0, hi-lo)
	for i := lo; i < hi; i++ {
		u := members[i]
		out = append(out, &u)
	}
	return out, int64(len(members)), nil
}

func (r *UserRepo) CountByOrganization(_ context.Context, orgID string) (int, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total, active int
	for _, u := range r.rows {
		if u.OrganizationID != orgID {
			continue
		}
		total++
		if u.Active {
			active++
		}
	}
	return total, active, nil
}

type OrganizationRepo struct {
	mu   sync.RWMutex
	rows map[string]identity.Organization
}

func NewOrganizationRepo() *OrganizationRepo {
	return &OrganizationRepo{rows: map[string]identity.Organization{}}
}

func (r *OrganizationRepo) Put(o identity.Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[o.ID] = cloneOrganization(o)
}

func (r *OrganizationRepo) Save(_ context.Context, o *identity.Organization) error {
	r.Put(*o)
	return nil
}

func (r *OrganizationRepo) Get(_ context.Context, id string) (*identity.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.rows[id]
	if !ok {
		return nil, apperr.NotFound("Organization")
	}
	o = cloneOrganization(o)
	return &o, nil
}

func cloneOrganization(o identity.Organization) identity.Organization {
	o.MemberIDs = append([]string{}, o.MemberIDs...)
	o.ProductIDs = append([]string{}, o.ProductIDs...)
	return o
}
