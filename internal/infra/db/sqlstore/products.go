package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

const productCols = `id, name, description, category, technology, version,
       owner_type, owner_id, is_active, metadata, last_analyzed, created_at, updated_at`

type ProductRepository struct {
	base
}

func NewProductRepository(db *sql.DB, d Dialect) *ProductRepository {
	return &ProductRepository{base{db: db, d: d}}
}

// Save insert/update Product record
func (r *ProductRepository) Save(ctx context.Context, p *domain.Product) error {
	if p.Owner == nil {
		return fmt.Errorf("save product %s: owner is required", p.ID)
	}
	meta, err := toJSON(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode product metadata: %w", err)
	}
	q := `
INSERT INTO products
(id, name, description, category, technology, version,
 owner_type, owner_id, is_active, metadata, last_analyzed, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)` + r.d.upsert(
		"name", "description", "category", "technology", "version",
		"is_active", "metadata", "last_analyzed", "updated_at")

	_, err = r.exec(ctx, q,
		p.ID, p.Name, p.Description, string(p.Category), p.Technology, p.Version,
		string(p.Owner.Type()), p.Owner.ID(), p.Active, meta, nullTime(p.LastAnalyzed),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save product %s: %w", p.ID, err)
	}
	return nil
}

func (r *ProductRepository) Get(ctx context.Context, id string) (*domain.Product, error) {
	row := r.queryRow(ctx, `SELECT `+productCols+` FROM products WHERE id = ? LIMIT 1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Product")
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", id, err)
	}
	return p, nil
}

// List returns one page of products plus the total matching the filter,
// newest first.
func (r *ProductRepository) List(ctx context.Context, f domain.ListFilter) ([]*domain.Product, int64, error) {
	if len(f.Owners) == 0 {
		return []*domain.Product{}, 0, nil
	}
	where, args := ownerClause(f.Owners)
	if !f.IncludeInactive {
		where += " AND is_active = ?"
		args = append(args, true)
	}
	if f.Category != "" {
		where += " AND category = ?"
		args = append(args, string(f.Category))
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		where += " AND (LOWER(name) LIKE ? ESCAPE '!' OR LOWER(description) LIKE ? ESCAPE '!' OR LOWER(technology) LIKE ? ESCAPE '!')"
		like := "%" + likeEscaper.Replace(s) + "%"
		args = append(args, like, like, like)
	}

	var total int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM products WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count products: %w", err)
	}

	q := `SELECT ` + productCols + ` FROM products WHERE ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.PageSize > 0 {
		limit, offset := pageArgs(f.Page, f.PageSize)
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	out, err := r.collect(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	return out, total, nil
}

func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string, owners []domain.Owner) ([]*domain.Product, error) {
	ids = dedupe(ids)
	if len(ids) == 0 || len(owners) == 0 {
		return []*domain.Product{}, nil
	}
	where, args := ownerClause(owners)
	args = append(stringIDs(ids), args...)
	args = append(args, true)
	q := `SELECT ` + productCols + ` FROM products WHERE id IN (` + placeholders(len(ids)) + `) AND ` +
		where + ` AND is_active = ?`
	out, err := r.collect(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	return out, nil
}

func (r *ProductRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.exec(ctx, `UPDATE products SET is_active = ?, updated_at = ? WHERE id = ?`, active, at, id)
	if err != nil {
		return fmt.Errorf("set product %s active: %w", id, err)
	}
	return r.mustExist(ctx, res, id)
}

func (r *ProductRepository) MarkAnalyzed(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx, `UPDATE products SET last_analyzed = ?, updated_at = ? WHERE id = ?`, at, at, id)
	if err != nil {
		return fmt.Errorf("mark product %s analyzed: %w", id, err)
	}
	return r.mustExist(ctx, res, id)
}

// Stats counts every product of owners, soft-deleted included.
func (r *ProductRepository) Stats(ctx context.Context, owners []domain.Owner) (domain.Stats, error) {
	st := domain.EmptyStats()
	if len(owners) == 0 {
		return st, nil
	}
	where, args := ownerClause(owners)

	var active sql.NullInt64
	var last sql.NullTime
	q := `SELECT COUNT(*), SUM(CASE WHEN is_active THEN 1 ELSE 0 END), MAX(last_analyzed) FROM products WHERE ` + where
	if err := r.queryRow(ctx, q, args...).Scan(&st.TotalProducts, &active, &last); err != nil {
		return domain.EmptyStats(), fmt.Errorf("product stats: %w", err)
	}
	st.ActiveProducts = int(active.Int64)
	st.LastAnalyzed = timePtr(last)

	rows, err := r.query(ctx, `SELECT category, COUNT(*) FROM products WHERE `+where+` GROUP BY category`, args...)
	if err != nil {
		return domain.EmptyStats(), fmt.Errorf("product categories: %w", err)
	}
	defer rows.Close()
	counts := map[domain.Category]int{}
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return domain.EmptyStats(), err
		}
		counts[domain.Category(c)] = n
	}
	if err := rows.Err(); err != nil {
		return domain.EmptyStats(), err
	}
	for _, c := range domain.Categories {
		if n := counts[c]; n > 0 {
			st.CategoryDistribution = append(st.CategoryDistribution, domain.CategoryCount{Category: c, Count: n})
		}
	}
	return st, nil
}

func (r *ProductRepository) IDs(ctx context.Context, owners []domain.Owner) ([]string, error) {
	ids := []string{}
	if len(owners) == 0 {
		return ids, nil
	}
	where, args := ownerClause(owners)
	rows, err := r.query(ctx, `SELECT id FROM products WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("product ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ProductRepository) mustExist(ctx context.Context, res sql.Result, id string) error {
	ok, err := r.updated(ctx, res, "products", id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Product")
	}
	return nil
}

func (r *ProductRepository) collect(ctx context.Context, q string, args ...any) ([]*domain.Product, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ownerClause matches any of owners by discriminator and id.
func ownerClause(owners []domain.Owner) (string, []any) {
	parts := make([]string, len(owners))
	args := make([]any, 0, 2*len(owners))
	for i, o := range owners {
		parts[i] = "(owner_type = ? AND owner_id = ?)"
		args = append(args, string(o.Type()), o.ID())
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func scanProduct(sc scanner) (*domain.Product, error) {
	var (
		p                  domain.Product
		category           string
		ownerType, ownerID string
		meta               []byte
		last               sql.NullTime
	)
	if err := sc.Scan(
		&p.ID, &p.Name, &p.Description, &category, &p.Technology, &p.Version,
		&ownerType, &ownerID, &p.Active, &meta, &last, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	owner, err := domain.ParseOwner(ownerType, ownerID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", p.ID, err)
	}
	if err := fromJSON(meta, &p.Metadata); err != nil {
		return nil, fmt.Errorf("product %s metadata: %w", p.ID, err)
	}
	p.Category = domain.Category(category)
	p.Owner = owner
	p.LastAnalyzed = timePtr(last)
	return &p, nil
}
