package assessments

import "context"

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, a *Assessment) error
	// Update overwrites status, result fields, error message and updated_at.
	Update(ctx context.Context, a *Assessment) error
	// Get returns apperr NotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Assessment, error)
	// ListByProduct returns newest first.
	ListByProduct(ctx context.Context, productID string, page, pageSize int) ([]*Assessment, int64, error)
	// Statistics is computed over completed assessments of the given products.
	Statistics(ctx context.Context, productIDs []string) (Statistics, error)
}
