package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		CORSOrigins     []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Database struct {
		// Driver is mysql, postgres or memory.
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		MaxOpen  int    `yaml:"maxOpenConns"`
		MaxIdle  int    `yaml:"maxIdleConns"`
		Migrate  bool   `yaml:"migrate"`
	} `yaml:"database"`

	Analysis struct {
		BaseURL      string        `yaml:"baseURL"`
		Timeout      time.Duration `yaml:"timeout"`
		MaxRetries   int           `yaml:"maxRetries"`
		RetryBackoff time.Duration `yaml:"retryBackoff"`
	} `yaml:"analysis"`

	OpenAI struct {
		APIKey         string `yaml:"apiKey"`
		BaseURL        string `yaml:"baseURL"`
		EmbeddingModel string `yaml:"embeddingModel"`
	} `yaml:"openai"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Redis struct {
		Addr     string        `yaml:"addr"`
		Password string        `yaml:"password"`
		DB       int           `yaml:"db"`
		ModelTTL time.Duration `yaml:"modelTTL"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	RateLimit struct {
		RequestsPerMinute int `yaml:"requestsPerMinute"`
		Burst             int `yaml:"burst"`
	} `yaml:"rateLimit"`

	// Seed provisions accounts when database.driver is memory.
	Seed struct {
		Organizations []SeedOrganization `yaml:"organizations"`
		Users         []SeedUser         `yaml:"users"`
	} `yaml:"seed"`
}

// SeedOrganization; a zero limit keeps the default.
type SeedOrganization struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Domain      string `yaml:"domain"`
	AdminEmail  string `yaml:"adminEmail"`
	Description string `yaml:"description"`
	MaxUsers    int    `yaml:"maxUsers"`
	MaxProducts int    `yaml:"maxProducts"`
}

type SeedUser struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	Email          string `yaml:"email"`
	Role           string `yaml:"role"`
	OrganizationID string `yaml:"organizationId"`
}

// Defaults returns a config that runs locally against the in-memory store.
func Defaults() *Config {
	var c Config
	c.Server.Port = 8080
	c.Server.ReadTimeout = 15 * time.Second
	c.Server.WriteTimeout = 60 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.CORSOrigins = []string{"*"}
	c.Database.Driver = "memory"
	c.Database.SSLMode = "disable"
	c.Analysis.BaseURL = "http://localhost:8000"
	c.Analysis.Timeout = 30 * time.Second
	c.Analysis.RetryBackoff = 500 * time.Millisecond
	c.Minio.Region = "us-east-1"
	c.Redis.ModelTTL = 10 * time.Minute
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.RateLimit.RequestsPerMinute = 100
	c.RateLimit.Burst = 20
	return &c
}

// Load baca file config.yaml di atas Defaults, lalu override dari env RISK_*.
// A missing file is fine; env and defaults still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	num("RISK_SERVER_PORT", &c.Server.Port)
	if v, ok := lookup("RISK_CORS_ORIGINS"); ok {
		c.Server.CORSOrigins = strings.Split(v, ",")
	}
	str("RISK_DB_DRIVER", &c.Database.Driver)
	str("RISK_DB_HOST", &c.Database.Host)
	num("RISK_DB_PORT", &c.Database.Port)
	str("RISK_DB_USER", &c.Database.User)
	str("RISK_DB_PASSWORD", &c.Database.Password)
	str("RISK_DB_NAME", &c.Database.Name)
	flag("RISK_DB_MIGRATE", &c.Database.Migrate)
	str("RISK_ANALYSIS_BASE_URL", &c.Analysis.BaseURL)
	dur("RISK_ANALYSIS_TIMEOUT", &c.Analysis.Timeout)
	num("RISK_ANALYSIS_MAX_RETRIES", &c.Analysis.MaxRetries)
	str("RISK_OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("RISK_OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("RISK_OPENAI_EMBEDDING_MODEL", &c.OpenAI.EmbeddingModel)
	flag("RISK_MINIO_ENABLED", &c.Minio.Enabled)
	str("RISK_MINIO_ENDPOINT", &c.Minio.Endpoint)
	str("RISK_MINIO_ACCESS_KEY", &c.Minio.AccessKey)
	str("RISK_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	str("RISK_MINIO_BUCKET", &c.Minio.BucketName)
	str("RISK_REDIS_ADDR", &c.Redis.Addr)
	str("RISK_REDIS_PASSWORD", &c.Redis.Password)
	str("RISK_JWT_SECRET", &c.Auth.JWTSecret)
	str("RISK_LOG_LEVEL", &c.Log.Level)
	str("RISK_LOG_FORMAT", &c.Log.Format)
	num("RISK_RATE_LIMIT_RPM", &c.RateLimit.RequestsPerMinute)
	return errors.Join(errs...)
}

// Validate rejects configs the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be mysql, postgres or memory", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwtSecret is required"))
	}
	if c.Analysis.BaseURL == "" {
		errs = append(errs, errors.New("analysis.baseURL is required"))
	}
	if c.Analysis.MaxRetries < 0 {
		errs = append(errs, errors.New("analysis.maxRetries cannot be negative"))
	}
	errs = append(errs, c.validateSeed()...)
	return errors.Join(errs...)
}

func (c *Config) validateSeed() []error {
	var errs []error
	orgs := map[string]bool{}
	for i, o := range c.Seed.Organizations {
		if o.ID == "" || o.Name == "" {
			errs = append(errs, fmt.Errorf("seed.organizations[%d]: id and name are required", i))
			continue
		}
		if orgs[o.ID] {
			errs = append(errs, fmt.Errorf("seed.organizations[%d]: duplicate id %q", i, o.ID))
		}
		orgs[o.ID] = true
	}
	users := map[string]bool{}
	for i, u := range c.Seed.Users {
		if u.ID == "" {
			errs = append(errs, fmt.Errorf("seed.users[%d]: id is required", i))
			continue
		}
		if users[u.ID] {
			errs = append(errs, fmt.Errorf("seed.users[%d]: duplicate id %q", i, u.ID))
		}
		users[u.ID] = true
		role := identity.Role(u.Role)
		if u.Role != "" && !role.Valid() {
			errs = append(errs, fmt.Errorf("seed.users[%d]: role %q must be individual or organizationAdmin", i, u.Role))
		}
		if u.OrganizationID != "" && !orgs[u.OrganizationID] {
			errs = append(errs, fmt.Errorf("seed.users[%d]: unknown organization %q", i, u.OrganizationID))
		}
		if role == identity.RoleOrganizationAdmin && u.OrganizationID == "" {
			errs = append(errs, fmt.Errorf("seed.users[%d]: organizationAdmin needs an organizationId", i))
		}
	}
	return errs
}

// SeedAccounts converts the seed section into domain records; members are
// listed on their organization in seed order.
func (c *Config) SeedAccounts(now time.Time) ([]identity.Organization, []identity.User) {
	orgs := make([]identity.Organization, 0, len(c.Seed.Organizations))
	index := map[string]int{}
	for _, o := range c.Seed.Organizations {
		settings := identity.DefaultOrganizationSettings()
		if o.MaxUsers > 0 {
			settings.MaxUsers = o.MaxUsers
		}
		if o.MaxProducts > 0 {
			settings.MaxProducts = o.MaxProducts
		}
		index[o.ID] = len(orgs)
		orgs = append(orgs, identity.Organization{
			ID: o.ID, Name: o.Name, Domain: o.Domain, AdminEmail: o.AdminEmail, Description: o.Description,
			MemberIDs: []string{}, ProductIDs: []string{}, Active: true, Settings: settings, CreatedAt: now,
		})
	}
	users := make([]identity.User, 0, len(c.Seed.Users))
	for _, u := range c.Seed.Users {
		role := identity.Role(u.Role)
		if role == "" {
			role = identity.RoleIndividual
		}
		users = append(users, identity.User{
			ID: u.ID, Name: u.Name, Email: strings.ToLower(u.Email), Role: role,
			OrganizationID: u.OrganizationID, Active: true, CreatedAt: now,
		})
		if i, ok := index[u.OrganizationID]; ok {
			orgs[i].MemberIDs = append(orgs[i].MemberIDs, u.ID)
		}
	}
	return orgs, users
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
