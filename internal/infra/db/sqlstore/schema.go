package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the idempotent schema for d, one statement at a time.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	raw, err := migrations.ReadFile("migrations/" + string(d) + ".sql")
	if err != nil {
		return fmt.Errorf("schema for %s: %w", d, err)
	}
	for _, stmt := range statements(string(raw)) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func statements(script string) []string {
	var out []string
	for _, s := range strings.Split(script, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
