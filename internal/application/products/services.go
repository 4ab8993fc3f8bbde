package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	"github.com/bryanwahyu/automaton-risk/internal/domain/access"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

// Service implements product registration and lookup.
type Service struct {
	Repo          domain.Repository
	Organizations identity.OrganizationRepository
	Clock         application.Clock
	Log           *zap.Logger
}

// CreateCommand untuk registrasi produk baru
type CreateCommand struct {
	Name        string
	Description string
	Category    domain.Category
	Technology  string
	Version     string
	Metadata    domain.Metadata
	// Personal makes an organization admin register the product under their
	// own user instead of the organization.
	Personal bool
}

// Create registers a product owned by the caller or the caller's organization.
func (s *Service) Create(ctx context.Context, p identity.Principal, cmd CreateCommand) (*domain.Product, error) {
	owner, err := s.ownerFor(p, cmd.Personal)
	if err != nil {
		return nil, err
	}
	now := application.NowOr(s.Clock)
	cat := cmd.Category
	if cat == "" {
		cat = domain.CategoryWebApplication
	}
	prod := &domain.Product{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(cmd.Name),
		Description: strings.TrimSpace(cmd.Description),
		Category:    cat,
		Technology:  strings.TrimSpace(cmd.Technology),
		Version:     strings.TrimSpace(cmd.Version),
		Owner:       owner,
		Active:      true,
		Metadata:    cmd.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := prod.Validate(); err != nil {
		return nil, err
	}
	if org, ok := owner.(domain.OrganizationOwner); ok && s.Organizations != nil {
		if err := s.checkQuota(ctx, org); err != nil {
			return nil, err
		}
	}
	if err := s.Repo.Save(ctx, prod); err != nil {
		return nil, fmt.Errorf("save product: %w", err)
	}
	if s.Log != nil {
		s.Log.Info("product registered",
			zap.String("product_id", prod.ID),
			zap.String("owner_type", string(owner.Type())),
			zap.String("owner_id", owner.ID()))
	}
	return prod, nil
}

func (s *Service) ownerFor(p identity.Principal, personal bool) (domain.Owner, error) {
	switch p.Role {
	case identity.RoleIndividual:
		return domain.UserOwner{UserID: p.UserID}, nil
	case identity.RoleOrganizationAdmin:
		if personal || p.OrganizationID == "" {
			return domain.UserOwner{UserID: p.UserID}, nil
		}
		return domain.OrganizationOwner{OrganizationID: p.OrganizationID}, nil
	}
	return nil, apperr.New(apperr.KindAccessDenied, "Role %q cannot register products", p.Role)
}

func (s *Service) checkQuota(ctx context.Context, owner domain.OrganizationOwner) error {
	org, err := s.Organizations.Get(ctx, owner.OrganizationID)
	if err != nil {
		return fmt.Errorf("get organization: %w", err)
	}
	if org.Settings.MaxProducts <= 0 {
		return nil
	}
	st, err := s.Repo.Stats(ctx, []domain.Owner{owner})
	if err != nil {
		return fmt.Errorf("count products: %w", err)
	}
	if st.ActiveProducts >= org.Settings.MaxProducts {
		return apperr.Validation(map[string]string{
			"organization": fmt.Sprintf("product limit of %d reached", org.Settings.MaxProducts),
		})
	}
	return nil
}

// ListQuery filters a product listing.
type ListQuery struct {
	Category domain.Category
	Search   string
	Page     int
	Limit    int
}

// List returns active products visible to p, newest first.
func (s *Service) List(ctx context.Context, p identity.Principal, q ListQuery) (*domain.Page, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	out := &domain.Page{Data: []*domain.Product{}, Page: page, PageSize: limit}
	owners := access.Scope(p)
	if len(owners) == 0 {
		return out, nil
	}
	list, total, err := s.Repo.List(ctx, domain.ListFilter{
		Owners: owners, Category: q.Category, Search: q.Search, Page: page, PageSize: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	if list != nil {
		out.Data = list
	}
	out.Total = total
	out.TotalPages = int((total + int64(limit) - 1) / int64(limit))
	return out, nil
}

// Get returns an active product the caller may access.
func (s *Service) Get(ctx context.Context, p identity.Principal, id string) (*domain.Product, error) {
	prod, err := s.Repo.Get(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("Product")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !prod.Active {
		return nil, apperr.NotFound("Product")
	}
	if err := access.Require(p, prod.Owner, "product"); err != nil {
		return nil, err
	}
	return prod, nil
}

// UpdateCommand carries the fields to change; nil leaves a field as is.
type UpdateCommand struct {
	Name        *string
	Description *string
	Category    *domain.Category
	Technology  *string
	Version     *string
	Metadata    *domain.Metadata
}

// Update edits an active product the caller may access. Ownership and the
// active flag never change here.
func (s *Service) Update(ctx context.Context, p identity.Principal, id string, cmd UpdateCommand) (*domain.Product, error) {
	prod, err := s.Get(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if cmd.Name != nil {
		prod.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Description != nil {
		prod.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Category != nil {
		prod.Category = *cmd.Category
	}
	if cmd.Technology != nil {
		prod.Technology = strings.TrimSpace(*cmd.Technology)
	}
	if cmd.Version != nil {
		prod.Version = strings.TrimSpace(*cmd.Version)
	}
	if cmd.Metadata != nil {
		prod.Metadata = *cmd.Metadata
	}
	if err := prod.Validate(); err != nil {
		return nil, err
	}
	prod.UpdatedAt = application.NowOr(s.Clock)
	if err := s.Repo.Save(ctx, prod); err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}
	if s.Log != nil {
		s.Log.Info("product updated", zap.String("product_id", prod.ID))
	}
	return prod, nil
}

// Deactivate soft-deletes a product; its assessments are kept.
func (s *Service) Deactivate(ctx context.Context, p identity.Principal, id string) error {
	prod, err := s.Get(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.Repo.SetActive(ctx, prod.ID, false, application.NowOr(s.Clock)); err != nil {
		return fmt.Errorf("deactivate product: %w", err)
	}
	return nil
}
