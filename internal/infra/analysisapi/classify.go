package analysisapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"syscall"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

// classifyTransport maps an error that produced no HTTP response.
func classifyTransport(err error) *apperr.Error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return apperr.Wrap(err, apperr.KindServiceUnavailable, "LLM service is unavailable. Please try again later.")
	case isTimeout(err):
		return apperr.Wrap(err, apperr.KindTimeout, "Analysis request timed out. Please try again.")
	default:
		return apperr.Wrap(err, apperr.KindNetwork, "Analysis failed: "+err.Error())
	}
}

// classifyStatus maps a non-2xx response.
func classifyStatus(status int, msg string) *apperr.Error {
	if msg == "" {
		msg = "Analysis failed"
	}
	switch {
	case status == http.StatusBadRequest:
		return apperr.New(apperr.KindInvalidRequest, "Invalid request: %s", msg)
	case status == http.StatusTooManyRequests:
		return apperr.New(apperr.KindRateLimited, "Rate limit exceeded. Please try again later.")
	case status >= 500:
		return apperr.New(apperr.KindServiceUnavailable, "LLM service is experiencing issues. Please try again later.")
	default:
		return apperr.New(apperr.KindAnalysisFailed, "Analysis failed: %s", msg)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
