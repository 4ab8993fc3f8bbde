package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

// UserRepository stores accounts; passwords and login live in the identity service.
type UserRepository struct {
	base
}

func NewUserRepository(db *sql.DB, d Dialect) *UserRepository {
	return &UserRepository{base{db: db, d: d}}
}

const userCols = `id, name, email, role, organization_id, is_active, last_login, created_at`

func scanUser(row scanner) (*identity.User, error) {
	var (
		u     identity.User
		role  string
		orgID sql.NullString
		last  sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &orgID, &u.Active, &last, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = identity.Role(role)
	u.OrganizationID = orgID.String
	u.LastLogin = timePtr(last)
	return &u, nil
}

func (r *UserRepository) Get(ctx context.Context, id string) (*identity.User, error) {
	u, err := scanUser(r.queryRow(ctx, `SELECT `+userCols+` FROM users WHERE id = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("User")
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	u, err := scanUser(r.queryRow(ctx, `SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER(?) LIMIT 1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("User")
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

// Save upserts the account fields this service manages; created_at is kept.
func (r *UserRepository) Save(ctx context.Context, u *identity.User) error {
	q := `
INSERT INTO users (` + userCols + `)
VALUES (?,?,?,?,?,?,?,?)` + r.d.upsert("name", "email", "role", "organization_id", "is_active", "last_login")
	orgID := sql.NullString{String: u.OrganizationID, Valid: u.OrganizationID != ""}
	_, err := r.exec(ctx, q,
		u.ID, u.Name, u.Email, string(u.Role), orgID, u.Active, nullTime(u.LastLogin), u.CreatedAt)
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (r *UserRepository) ListByOrganization(ctx context.Context, orgID string, page, limit int) ([]*identity.User, int64, error) {
	var total int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE organization_id = ?`, orgID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members of %s: %w", orgID, err)
	}
	q := `SELECT ` + userCols + ` FROM users WHERE organization_id = ? ORDER BY created_at ASC, id ASC`
	args := []any{orgID}
	if limit > 0 {
		lim, offset := pageArgs(page, limit)
		q += ` LIMIT ? OFFSET ?`
		args = append(args, lim, offset)
	}
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members of %s: %w", orgID, err)
	}
	defer rows.Close()
	out := []*identity.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *UserRepository) CountByOrganization(ctx context.Context, orgID string) (int, int, error) {
	var total int
	var active sql.NullInt64
	const q = `SELECT COUNT(*), SUM(CASE WHEN is_active THEN 1 ELSE 0 END) FROM users WHERE organization_id = ?`
	if err := r.queryRow(ctx, q, orgID).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count users of %s: %w", orgID, err)
	}
	return total, int(active.Int64), nil
}

type OrganizationRepository struct {
	base
}

func NewOrganizationRepository(db *sql.DB, d Dialect) *OrganizationRepository {
	return &OrganizationRepository{base{db: db, d: d}}
}

// Get loads the organization; member and product ids are resolved by
// querying users and products that reference it.
func (r *OrganizationRepository) Get(ctx context.Context, id string) (*identity.Organization, error) {
	const q = `
SELECT id, name, domain, admin_email, description, is_active, settings, created_at
FROM organizations WHERE id = ? LIMIT 1`
	var (
		o        identity.Organization
		settings []byte
	)
	err := r.queryRow(ctx, q, id).Scan(&o.ID, &o.Name, &o.Domain, &o.AdminEmail, &o.Description, &o.Active, &settings, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Organization")
	}
	if err != nil {
		return nil, fmt.Errorf("get organization %s: %w", id, err)
	}
	o.Settings = identity.DefaultOrganizationSettings()
	if err := fromJSON(settings, &o.Settings); err != nil {
		return nil, fmt.Errorf("organization %s settings: %w", id, err)
	}

	if o.MemberIDs, err = r.ids(ctx, `SELECT id FROM users WHERE organization_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("organization %s members: %w", id, err)
	}
	if o.ProductIDs, err = r.ids(ctx, `SELECT id FROM products WHERE owner_type = ? AND owner_id = ? ORDER BY id`,
		string(products.OwnerTypeOrganization), id); err != nil {
		return nil, fmt.Errorf("organization %s products: %w", id, err)
	}
	return &o, nil
}

// Save upserts profile, status and settings. Members and products are
// derived from the rows that reference the organization.
func (r *OrganizationRepository) Save(ctx context.Context, o *identity.Organization) error {
	settings, err := toJSON(o.Settings)
	if err != nil {
		return fmt.Errorf("encode organization settings: %w", err)
	}
	q := `
INSERT INTO organizations (id, name, domain, admin_email, description, is_active, settings, created_at)
VALUES (?,?,?,?,?,?,?,?)` + r.d.upsert("name", "domain", "admin_email", "description", "is_active", "settings")
	if _, err := r.exec(ctx, q,
		o.ID, o.Name, o.Domain, o.AdminEmail, o.Description, o.Active, settings, o.CreatedAt); err != nil {
		return fmt.Errorf("save organization %s: %w", o.ID, err)
	}
	return nil
}

func (r *OrganizationRepository) ids(ctx context.Context, q string, args ...any) ([]string, error) {
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
