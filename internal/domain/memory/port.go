package memory

import (
	"context"
	"time"
)

// Repository port (interface untuk persistence)
type Repository interface {
	Save(ctx context.Context, m *Memory) error
	// ListActive returns every active memory of a product, vectors included.
	ListActive(ctx context.Context, productID string) ([]*Memory, error)
	// Touch increments access_count and sets last_accessed.
	Touch(ctx context.Context, id string, at time.Time) error
	Statistics(ctx context.Context, productID string) (Statistics, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}
