package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	appmemory "github.com/bryanwahyu/automaton-risk/internal/application/memory"
	apporgs "github.com/bryanwahyu/automaton-risk/internal/application/organizations"
	appproducts "github.com/bryanwahyu/automaton-risk/internal/application/products"
	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	appstats "github.com/bryanwahyu/automaton-risk/internal/application/stats"
	"github.com/bryanwahyu/automaton-risk/internal/config"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/memory"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
	"github.com/bryanwahyu/automaton-risk/internal/infra/ai/openai"
	"github.com/bryanwahyu/automaton-risk/internal/infra/analysisapi"
	rediscache "github.com/bryanwahyu/automaton-risk/internal/infra/cache/redis"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/memstore"
	mysqlp "github.com/bryanwahyu/automaton-risk/internal/infra/db/mysql"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/postgres"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/automaton-risk/internal/infra/httpserver"
	"github.com/bryanwahyu/automaton-risk/internal/infra/logging"
	"github.com/bryanwahyu/automaton-risk/internal/infra/metrics"
	minioStore "github.com/bryanwahyu/automaton-risk/internal/infra/storage"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

// repos groups the persistence ports for whichever driver is configured.
type repos struct {
	products      products.Repository
	assessments   assessments.Repository
	memories      memory.Repository
	users         identity.UserRepository
	organizations identity.OrganizationRepository
	db            *sql.DB
}

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	r, err := openRepos(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if r.db != nil {
		defer r.db.Close()
	}

	// analysis engine, optionally behind the redis model cache
	engine, err := analysisapi.New(analysisapi.Config{BaseURL: cfg.Analysis.BaseURL, Timeout: cfg.Analysis.Timeout}, logger)
	if err != nil {
		return err
	}
	var client analysis.Client = engine
	if cfg.Redis.Addr != "" {
		rdb, err := rediscache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis connect: %w", err)
		}
		defer rdb.Close()
		client = rediscache.NewModelCatalog(engine, rdb, cfg.Redis.ModelTTL, logger)
	}

	clock := application.SystemClock{}
	memStore := &appmemory.Store{Repo: r.memories, Clock: clock, Log: logger.Named("memory")}
	if cfg.OpenAI.APIKey != "" {
		memStore.Embedder = openai.NewEmbedderWithBaseURL(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbeddingModel)
	} else {
		logger.Info("openai api key not set, memories are stored without embeddings")
	}

	rec := metrics.New(true)
	risk := &apprisk.Service{
		Products:     r.products,
		Assessments:  r.assessments,
		Memory:       memStore,
		Client:       client,
		Metrics:      rec,
		Clock:        clock,
		Log:          logger.Named("risk"),
		MaxRetries:   cfg.Analysis.MaxRetries,
		RetryBackoff: cfg.Analysis.RetryBackoff,
	}

	// init minio
	if cfg.Minio.Enabled {
		store, err := minioStore.New(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return fmt.Errorf("minio init: %w", err)
		}
		risk.Archive = store
	}

	checkers := map[string]middleware.HealthChecker{
		"analysis": middleware.CheckerFunc(func(ctx context.Context) error {
			if h := client.HealthCheck(ctx); !h.Healthy {
				return errors.New(h.Error)
			}
			return nil
		}),
	}
	if r.db != nil {
		checkers["database"] = &middleware.DatabaseHealthChecker{DB: r.db}
	}

	handler := httpserver.NewRouter(httpserver.Deps{
		Risk:          risk,
		Products:      &appproducts.Service{Repo: r.products, Organizations: r.organizations, Clock: clock, Log: logger.Named("products")},
		Stats:         &appstats.Aggregator{Products: r.products, Assessments: r.assessments, Users: r.users, Organizations: r.organizations},
		Organizations: &apporgs.Service{Organizations: r.organizations, Users: r.users, Clock: clock, Log: logger.Named("organizations")},
		Users:         r.users,
		JWTSecret:     []byte(cfg.Auth.JWTSecret),
		Metrics:       rec,
		Checkers:      checkers,
		RateLimiter:   middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst),
		CORSOrigins:   cfg.Server.CORSOrigins,
		Log:           logger,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", addr), zap.String("db_driver", cfg.Database.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx2)
}

func openRepos(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repos, error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory store, data is lost on restart")
		users, orgs := memstore.NewUserRepo(), memstore.NewOrganizationRepo()
		seedOrgs, seedUsers := cfg.SeedAccounts(time.Now().UTC())
		for _, o := range seedOrgs {
			orgs.Put(o)
		}
		for _, u := range seedUsers {
			users.Put(u)
		}
		if len(seedUsers) == 0 {
			logger.Warn("no seed users configured, every authenticated route will answer 401")
		} else {
			logger.Info("seeded in-memory accounts",
				zap.Int("organizations", len(seedOrgs)), zap.Int("users", len(seedUsers)))
		}
		return &repos{
			products:      memstore.NewProductRepo(),
			assessments:   memstore.NewAssessmentRepo(),
			memories:      memstore.NewMemoryRepo(),
			users:         users,
			organizations: orgs,
		}, nil
	}

	d, err := sqlstore.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	var db *sql.DB
	switch d {
	case sqlstore.MySQL:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN(), mysqlp.Pool{MaxOpen: cfg.Database.MaxOpen, MaxIdle: cfg.Database.MaxIdle})
	case sqlstore.Postgres:
		db, err = postgres.Connect(ctx, cfg.PostgresDSN(), cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	}
	if err != nil {
		return nil, fmt.Errorf("%s connect: %w", d, err)
	}
	if cfg.Database.Migrate {
		if err := sqlstore.Migrate(ctx, db, d); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database schema applied", zap.String("dialect", string(d)))
	}
	return &repos{
		products:      sqlstore.NewProductRepository(db, d),
		assessments:   sqlstore.NewAssessmentRepository(db, d),
		memories:      sqlstore.NewMemoryRepository(db, d),
		users:         sqlstore.NewUserRepository(db, d),
		organizations: sqlstore.NewOrganizationRepository(db, d),
		db:            db,
	}, nil
}
