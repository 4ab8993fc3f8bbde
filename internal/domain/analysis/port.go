package analysis

import "context"

// Client is the contract with the external analysis engine. Every error it
// returns is an *apperr.Error classified by transport outcome.
type Client interface {
	Submit(ctx context.Context, product ProductInput, opts Options) (*Result, error)
	Status(ctx context.Context, requestID string) (map[string]any, error)
	ListModels(ctx context.Context) (map[string]any, error)
	// HealthCheck never fails; transport errors are reported as unhealthy.
	HealthCheck(ctx context.Context) Health
	BatchSubmit(ctx context.Context, products []ProductInput, opts Options) (*BatchResult, error)
}
