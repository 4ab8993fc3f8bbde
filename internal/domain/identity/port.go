package identity

import "context"

// UserRepository port. Get and FindByEmail return apperr NotFound when no
// user matches.
type UserRepository interface {
	Get(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Save inserts or replaces a user by id.
	Save(ctx context.Context, u *User) error
	// ListByOrganization pages members oldest first.
	ListByOrganization(ctx context.Context, orgID string, page, limit int) ([]*User, int64, error)
	CountByOrganization(ctx context.Context, orgID string) (total int, active int, err error)
}

// OrganizationRepository port
type OrganizationRepository interface {
	Get(ctx context.Context, id string) (*Organization, error)
	// Save inserts or replaces the organization profile and settings.
	// Member and product lists may be derived by the store.
	Save(ctx context.Context, o *Organization) error
}
