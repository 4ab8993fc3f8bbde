// Package sqlstore implements the repositories on database/sql. One set of
// queries serves MySQL and Postgres; Dialect papers over placeholders and
// upserts.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect accepts the database driver name from config.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", driver)
}

// Rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) Rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// upsert returns the conflict clause updating cols on a duplicate id.
func (d Dialect) upsert(cols ...string) string {
	parts := make([]string, len(cols))
	if d == Postgres {
		for i, c := range cols {
			parts[i] = c + " = EXCLUDED." + c
		}
		return "\nON CONFLICT (id) DO UPDATE SET " + strings.Join(parts, ", ")
	}
	for i, c := range cols {
		parts[i] = c + "=VALUES(" + c + ")"
	}
	return "\nON DUPLICATE KEY UPDATE " + strings.Join(parts, ", ")
}

// base carries the pool and dialect shared by every repo.
type base struct {
	db *sql.DB
	d  Dialect
}

func (b base) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return b.db.ExecContext(ctx, b.d.Rebind(q), args...)
}

func (b base) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return b.db.QueryContext(ctx, b.d.Rebind(q), args...)
}

func (b base) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return b.db.QueryRowContext(ctx, b.d.Rebind(q), args...)
}

// updated reports whether an UPDATE hit a row. MySQL reports zero affected
// rows when nothing changed, so a miss is confirmed with a lookup.
func (b base) updated(ctx context.Context, res sql.Result, table, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		return true, nil
	}
	var one int
	err = b.queryRow(ctx, "SELECT 1 FROM "+table+" WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}
