package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("loading product: %w", NotFound("Product"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrAccessDenied))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, "Product not found", MessageOf(err))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(cause, KindServiceUnavailable, "analysis service is unavailable")

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestMessageOfHidesForeignErrors(t *testing.T) {
	assert.Equal(t, "Internal server error", MessageOf(errors.New("pq: relation does not exist")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "Internal server error", MessageOf(Wrap(errors.New("x"), KindInternal, "secret detail")))
}

func TestRetryable(t *testing.T) {
	cases := map[Kind]bool{
		KindTimeout:            true,
		KindServiceUnavailable: true,
		KindRateLimited:        false,
		KindInvalidRequest:     false,
		KindNetwork:            false,
		KindAnalysisFailed:     false,
		KindNotFound:           false,
	}
	for kind, want := range cases {
		assert.Equal(t, want, Retryable(New(kind, "x")), string(kind))
	}
}

func TestValidationFields(t *testing.T) {
	err := Validation(map[string]string{"depth": "must be one of: standard detailed comprehensive"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Validation failed", err.Error())
	assert.Len(t, err.Fields, 1)
}
