package organizations

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
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Service manages an organization's profile, settings and membership.
// Every operation is limited to the admin of that organization.
type Service struct {
	Organizations identity.OrganizationRepository
	Users         identity.UserRepository
	Clock         application.Clock
	Log           *zap.Logger
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// load rejects callers outside orgID before reading it.
func (s *Service) load(ctx context.Context, p identity.Principal, orgID string) (*identity.Organization, error) {
	if err := access.Require(p, products.OrganizationOwner{OrganizationID: orgID}, "organization"); err != nil {
		return nil, err
	}
	org, err := s.Organizations.Get(ctx, orgID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("Organization")
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return org, nil
}

func (s *Service) Get(ctx context.Context, p identity.Principal, orgID string) (*identity.Organization, error) {
	return s.load(ctx, p, orgID)
}

// UpdateCommand; nil fields stay unchanged.
type UpdateCommand struct {
	Name        *string
	Domain      *string
	Description *string
}

func (s *Service) Update(ctx context.Context, p identity.Principal, orgID string, cmd UpdateCommand) (*identity.Organization, error) {
	org, err := s.load(ctx, p, orgID)
	if err != nil {
		return nil, err
	}
	if cmd.Name != nil {
		org.Name = strings.TrimSpace(*cmd.Name)
	}
	if cmd.Domain != nil {
		org.Domain = strings.ToLower(strings.TrimSpace(*cmd.Domain))
	}
	if cmd.Description != nil {
		org.Description = strings.TrimSpace(*cmd.Description)
	}
	if err := org.Validate(); err != nil {
		return nil, err
	}
	if err := s.Organizations.Save(ctx, org); err != nil {
		return nil, fmt.Errorf("save organization: %w", err)
	}
	s.log().Info("organization updated", zap.String("organization_id", org.ID))
	return org, nil
}

// SettingsCommand; nil fields keep the current value.
type SettingsCommand struct {
	AllowUserRegistration *bool
	MaxUsers              *int
	MaxProducts           *int
}

func (s *Service) UpdateSettings(ctx context.Context, p identity.Principal, orgID string, cmd SettingsCommand) (identity.OrganizationSettings, error) {
	org, err := s.load(ctx, p, orgID)
	if err != nil {
		return identity.OrganizationSettings{}, err
	}
	next := org.Settings
	if cmd.AllowUserRegistration != nil {
		next.AllowUserRegistration = *cmd.AllowUserRegistration
	}
	if cmd.MaxUsers != nil {
		next.MaxUsers = *cmd.MaxUsers
	}
	if cmd.MaxProducts != nil {
		next.MaxProducts = *cmd.MaxProducts
	}
	if err := next.Validate(); err != nil {
		return identity.OrganizationSettings{}, err
	}
	org.Settings = next
	if err := s.Organizations.Save(ctx, org); err != nil {
		return identity.OrganizationSettings{}, fmt.Errorf("save organization settings: %w", err)
	}
	s.log().Info("organization settings updated",
		zap.String("organization_id", org.ID),
		zap.Int("max_users", next.MaxUsers),
		zap.Int("max_products", next.MaxProducts))
	return next, nil
}

// AddUserCommand names the account to attach; it is created when the email
// is unknown.
type AddUserCommand struct {
	Email string
	Name  string
	Role  identity.Role
}

type OrganizationRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type AddUserResult struct {
	User         *identity.User  `json:"user"`
	Organization OrganizationRef `json:"organization"`
}

func (s *Service) AddUser(ctx context.Context, p identity.Principal, orgID string, cmd AddUserCommand) (*AddUserResult, error) {
	org, err := s.load(ctx, p, orgID)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" {
		return nil, apperr.Validation(map[string]string{"email": "is required"})
	}
	role := cmd.Role
	if role == "" {
		role = identity.RoleIndividual
	}
	if !role.Valid() {
		return nil, apperr.Validation(map[string]string{"role": "must be individual or organizationAdmin"})
	}

	user, err := s.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if user.OrganizationID == org.ID {
			return nil, apperr.New(apperr.KindValidation, "User is already in this organization")
		}
		if user.OrganizationID != "" {
			return nil, apperr.New(apperr.KindValidation, "User is already in another organization")
		}
	case apperr.KindOf(err) == apperr.KindNotFound:
		user = nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}

	total, _, err := s.Users.CountByOrganization(ctx, org.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	if org.Settings.MaxUsers > 0 && total >= org.Settings.MaxUsers {
		return nil, apperr.Validation(map[string]string{
			"organization": fmt.Sprintf("user limit of %d reached", org.Settings.MaxUsers),
		})
	}

	if user == nil {
		name := strings.TrimSpace(cmd.Name)
		if n := len([]rune(name)); n < 2 || n > 100 {
			return nil, apperr.Validation(map[string]string{"name": "must be between 2 and 100 characters"})
		}
		user = &identity.User{
			ID:        uuid.NewString(),
			Name:      name,
			Email:     email,
			Role:      role,
			Active:    true,
			CreatedAt: application.NowOr(s.Clock),
		}
	}
	user.OrganizationID = org.ID
	if err := s.Users.Save(ctx, user); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	if !org.HasMember(user.ID) {
		org.MemberIDs = append(org.MemberIDs, user.ID)
		if err := s.Organizations.Save(ctx, org); err != nil {
			return nil, fmt.Errorf("save organization members: %w", err)
		}
	}
	s.log().Info("user added to organization",
		zap.String("organization_id", org.ID),
		zap.String("user_id", user.ID),
		zap.String("role", string(user.Role)))
	return &AddUserResult{User: user, Organization: OrganizationRef{ID: org.ID, Name: org.Name}}, nil
}

// RemoveUser detaches a member; the account stays and becomes an individual.
func (s *Service) RemoveUser(ctx context.Context, p identity.Principal, orgID, userID string) error {
	org, err := s.load(ctx, p, orgID)
	if err != nil {
		return err
	}
	user, err := s.Users.Get(ctx, userID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return apperr.NotFound("User")
		}
		return fmt.Errorf("get user: %w", err)
	}
	if user.OrganizationID != org.ID {
		return apperr.New(apperr.KindValidation, "User is not in this organization")
	}
	user.OrganizationID = ""
	user.Role = identity.RoleIndividual
	if err := s.Users.Save(ctx, user); err != nil {
		return fmt.Errorf("save user: %w", err)
	}

	members := org.MemberIDs[:0]
	for _, id := range org.MemberIDs {
		if id != user.ID {
			members = append(members, id)
		}
	}
	org.MemberIDs = members
	if err := s.Organizations.Save(ctx, org); err != nil {
		return fmt.Errorf("save organization members: %w", err)
	}
	s.log().Info("user removed from organization",
		zap.String("organization_id", org.ID),
		zap.String("user_id", user.ID))
	return nil
}

type Pagination struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalUsers  int64 `json:"totalUsers"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

type UsersPage struct {
	Users      []*identity.User `json:"users"`
	Pagination Pagination       `json:"pagination"`
}

// ListUsers pages members oldest first; limit defaults to 10, capped at 100.
func (s *Service) ListUsers(ctx context.Context, p identity.Principal, orgID string, page, limit int) (*UsersPage, error) {
	org, err := s.load(ctx, p, orgID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	list, total, err := s.Users.ListByOrganization(ctx, org.ID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if list == nil {
		list = []*identity.User{}
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &UsersPage{
		Users: list,
		Pagination: Pagination{
			CurrentPage: page,
			TotalPages:  totalPages,
			TotalUsers:  total,
			HasNext:     page < totalPages,
			HasPrev:     page > 1,
		},
	}, nil
}
