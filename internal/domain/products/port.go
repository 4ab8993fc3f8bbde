package products

import (
	"context"
	"time"
)

// ListFilter buat listing produk yang sudah di-scope ke owner tertentu
type ListFilter struct {
	Owners   []Owner
	Category Category
	Search   string
	// IncludeInactive keeps soft-deleted products in the result.
	IncludeInactive bool
	Page            int
	PageSize        int
}

// Page of products
type Page struct {
	Data       []*Product `json:"products"`
	Page       int        `json:"currentPage"`
	PageSize   int        `json:"pageSize"`
	Total      int64      `json:"totalProducts"`
	TotalPages int        `json:"totalPages"`
}

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, p *Product) error
	// Get returns apperr NotFound when the id is unknown.
	Get(ctx context.Context, id string) (*Product, error)
	List(ctx context.Context, f ListFilter) ([]*Product, int64, error)
	// FindByIDs returns only the products among ids owned by one of owners.
	FindByIDs(ctx context.Context, ids []string, owners []Owner) ([]*Product, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	MarkAnalyzed(ctx context.Context, id string, at time.Time) error
	Stats(ctx context.Context, owners []Owner) (Stats, error)
	// IDs lists ids of every product, active or not, owned by one of owners.
	IDs(ctx context.Context, owners []Owner) ([]string, error)
}
