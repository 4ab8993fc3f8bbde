package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
)

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: postgres
  host: db
  port: 5432
  user: risk
  password: secret
  name: risk
analysis:
  baseURL: http://engine:8000
  timeout: 45s
auth:
  jwtSecret: from-file
`), 0o600))

	t.Setenv("RISK_JWT_SECRET", "from-env")
	t.Setenv("RISK_ANALYSIS_MAX_RETRIES", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 45*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 2, cfg.Analysis.MaxRetries)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "host=db port=5432 user=risk password=secret dbname=risk sslmode=disable", cfg.PostgresDSN())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("RISK_JWT_SECRET", "s")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Zero(t, cfg.Analysis.MaxRetries)
}

func TestApplyEnvRejectsBadNumbers(t *testing.T) {
	cfg := Defaults()
	env := map[string]string{"RISK_SERVER_PORT": "http", "RISK_ANALYSIS_TIMEOUT": "soon"}
	err := cfg.applyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RISK_SERVER_PORT")
	assert.Contains(t, err.Error(), "RISK_ANALYSIS_TIMEOUT")
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = "sqlite"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "jwtSecret")
}

func TestMySQLDSN(t *testing.T) {
	cfg := Defaults()
	cfg.Database.User, cfg.Database.Password = "u", "p"
	cfg.Database.Host, cfg.Database.Port, cfg.Database.Name = "h", 3306, "risk"
	assert.Equal(t, "u:p@tcp(h:3306)/risk?parseTime=true&charset=utf8mb4&loc=UTC", cfg.MySQLDSN())
}

func TestSeedAccounts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
auth:
  jwtSecret: s
seed:
  organizations:
    - id: acme
      name: Acme
      domain: acme.io
      maxUsers: 5
  users:
    - id: olga
      name: Olga
      email: Olga@Acme.io
      role: organizationAdmin
      organizationId: acme
    - id: alice
      name: Alice
      email: alice@mail.com
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	orgs, users := cfg.SeedAccounts(now)

	require.Len(t, orgs, 1)
	assert.Equal(t, []string{"olga"}, orgs[0].MemberIDs)
	assert.Equal(t, 5, orgs[0].Settings.MaxUsers)
	assert.Equal(t, 100, orgs[0].Settings.MaxProducts)
	assert.True(t, orgs[0].Active)

	require.Len(t, users, 2)
	assert.Equal(t, "olga@acme.io", users[0].Email)
	assert.Equal(t, identity.RoleOrganizationAdmin, users[0].Role)
	assert.Equal(t, identity.RoleIndividual, users[1].Role)
	assert.Empty(t, users[1].OrganizationID)
	assert.Equal(t, now, users[1].CreatedAt)
}

func TestValidateSeed(t *testing.T) {
	cfg := Defaults()
	cfg.Auth.JWTSecret = "s"
	cfg.Seed.Organizations = []SeedOrganization{{ID: "acme", Name: "Acme"}}
	cfg.Seed.Users = []SeedUser{
		{ID: "u1", Role: "root"},
		{ID: "u1", OrganizationID: "globex"},
		{ID: "u2", Role: "organizationAdmin"},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `role "root"`)
	assert.Contains(t, err.Error(), `duplicate id "u1"`)
	assert.Contains(t, err.Error(), `unknown organization "globex"`)
	assert.Contains(t, err.Error(), "organizationAdmin needs an organizationId")
}
