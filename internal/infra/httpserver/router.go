package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	apporgs "github.com/bryanwahyu/automaton-risk/internal/application/organizations"
	appproducts "github.com/bryanwahyu/automaton-risk/internal/application/products"
	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	appstats "github.com/bryanwahyu/automaton-risk/internal/application/stats"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Deps are the collaborators the REST surface needs. Metrics, Checkers and
// RateLimiter are optional.
type Deps struct {
	Risk          *apprisk.Service
	Products      *appproducts.Service
	Stats         *appstats.Aggregator
	Organizations *apporgs.Service
	Users         identity.UserRepository
	JWTSecret     []byte
	Metrics       MetricsSink
	Checkers      map[string]middleware.HealthChecker
	RateLimiter   *middleware.RateLimiter
	CORSOrigins   []string
	Log           *zap.Logger
}

// MetricsSink is the HTTP side of the metrics recorder plus its scrape handler.
type MetricsSink interface {
	middleware.HTTPRecorder
	Handler() http.Handler
}

type Router struct {
	risk     *apprisk.Service
	products *appproducts.Service
	stats    *appstats.Aggregator
	orgs     *apporgs.Service
	log      *zap.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{risk: d.Risk, products: d.Products, stats: d.Stats, orgs: d.Organizations, log: log}

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	mux.Use(middleware.RequestLogger(log))
	if d.Metrics != nil {
		mux.Use(middleware.Metrics(d.Metrics))
	}
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	mux.Get("/health", middleware.LivenessHandler)
	mux.Get("/ready", middleware.ReadinessHandler(d.Checkers))
	if d.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	mux.Group(func(rt chi.Router) {
		rt.Use(middleware.JWTAuth(d.JWTSecret, d.Users, log))
		if d.RateLimiter != nil {
			rt.Use(d.RateLimiter.Middleware)
		}

		rt.Route("/risk", func(rr chi.Router) {
			rr.Post("/analyze/{productId}", r.wrap(r.handleAnalyze))
			rr.Get("/history/{productId}", r.wrap(r.handleHistory))
			rr.Get("/assessment/{assessmentId}", r.wrap(r.handleAssessment))
			rr.Get("/statistics/{productId}", r.wrap(r.handleStatistics))
			rr.Post("/batch-analyze", r.wrap(r.handleBatchAnalyze))
			rr.Get("/service/health", r.wrap(r.handleServiceHealth))
			rr.Get("/service/models", r.wrap(r.handleModels))
			rr.Get("/service/status/{requestId}", r.wrap(r.handleAnalysisStatus))
		})

		rt.Route("/products", func(pr chi.Router) {
			pr.Post("/", r.wrap(r.handleCreateProduct))
			pr.Get("/", r.wrap(r.handleListProducts))
			pr.Get("/stats", r.wrap(r.handleProductStats))
			pr.Get("/{productId}", r.wrap(r.handleGetProduct))
			pr.Put("/{productId}", r.wrap(r.handleUpdateProduct))
			pr.Delete("/{productId}", r.wrap(r.handleDeleteProduct))
		})

		rt.Route("/organizations/{organizationId}", func(or chi.Router) {
			or.Get("/", r.wrap(r.handleGetOrganization))
			or.Put("/", r.wrap(r.handleUpdateOrganization))
			or.Get("/stats", r.wrap(r.handleOrganizationStats))
			or.Put("/settings", r.wrap(r.handleUpdateSettings))
			or.Get("/users", r.wrap(r.handleListOrganizationUsers))
			or.Post("/users", r.wrap(r.handleAddOrganizationUser))
			or.Delete("/users/{userId}", r.wrap(r.handleRemoveOrganizationUser))
		})
	})

	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Route not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// dataError carries a payload to send alongside the error, e.g. the summary
// of an assessment that was recorded as failed.
type dataError struct {
	error
	data any
}

func (e *dataError) Unwrap() error { return e.error }

func withData(err error, data any) error {
	if err == nil {
		return nil
	}
	return &dataError{error: err, data: data}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		env := middleware.Envelope{Success: false}
		var de *dataError
		if errors.As(err, &de) {
			env.Data = de.data
		}

		kind := apperr.KindOf(err)
		status := statusFor(kind)
		if kind == apperr.KindInternal {
			r.log.Error("request failed",
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.String("path", req.URL.Path),
				zap.Error(err))
			env.Message = "Internal server error"
		} else {
			env.Message = apperr.MessageOf(err)
			var ae *apperr.Error
			if errors.As(err, &ae) && len(ae.Fields) > 0 {
				env.Errors = ae.Fields
			}
		}
		_ = middleware.WriteJSON(w, status, env)
	}
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindAccessDenied:
		return http.StatusForbidden
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindInvalidRequest, apperr.KindNetwork, apperr.KindAnalysisFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func ok(w http.ResponseWriter, status int, message string, data any) error {
	return middleware.WriteJSON(w, status, middleware.Envelope{Success: true, Message: message, Data: data})
}

// decode reads a JSON body into dst; an empty body leaves dst untouched.
func decode(req *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, req.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation(map[string]string{"body": fmt.Sprintf("invalid JSON: %v", err)})
	}
	return nil
}

func principal(req *http.Request) (identity.Principal, error) {
	p, found := middleware.PrincipalFrom(req.Context())
	if !found {
		return identity.Principal{}, apperr.New(apperr.KindAccessDenied, "Access denied. No token provided.")
	}
	return p, nil
}

func pathID(req *http.Request, name string) (string, error) {
	id := chi.URLParam(req, name)
	if err := middleware.ValidateID(name, id); err != nil {
		return "", err
	}
	return id, nil
}

// queryInt reads a positive int query parameter; absent means 0.
func queryInt(req *http.Request, name string) (int, error) {
	raw := req.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.Validation(map[string]string{name: "must be a positive integer"})
	}
	return n, nil
}
