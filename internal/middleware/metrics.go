package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPRecorder receives request metrics.
type HTTPRecorder interface {
	RequestStarted()
	RequestFinished()
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Metrics tracks request metrics labelled by the matched chi route pattern,
// so path ids do not explode label cardinality.
func Metrics(rec HTTPRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec.RequestStarted()
			defer rec.RequestFinished()

			start := time.Now()
			wrapped := wrapWriter(w)
			next.ServeHTTP(wrapped, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			rec.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
