package organizations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/memstore"
)

var (
	t0       = time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	admin    = identity.Principal{UserID: "olga", Role: identity.RoleOrganizationAdmin, OrganizationID: "acme"}
	outsider = identity.Principal{UserID: "zed", Role: identity.RoleOrganizationAdmin, OrganizationID: "globex"}
	solo     = identity.Principal{UserID: "alice", Role: identity.RoleIndividual}
)

type fixture struct {
	svc   *Service
	users *memstore.UserRepo
	orgs  *memstore.OrganizationRepo
}

func newFixture(maxUsers int) fixture {
	users := memstore.NewUserRepo()
	users.Put(identity.User{ID: "olga", Name: "Olga", Email: "olga@acme.io", Role: identity.RoleOrganizationAdmin, OrganizationID: "acme", Active: true, CreatedAt: t0})
	users.Put(identity.User{ID: "zed", Name: "Zed", Email: "zed@globex.com", Role: identity.RoleOrganizationAdmin, OrganizationID: "globex", Active: true, CreatedAt: t0})
	users.Put(identity.User{ID: "alice", Name: "Alice", Email: "alice@mail.com", Role: identity.RoleIndividual, Active: true, CreatedAt: t0})

	settings := identity.DefaultOrganizationSettings()
	settings.MaxUsers = maxUsers
	orgs := memstore.NewOrganizationRepo()
	orgs.Put(identity.Organization{ID: "acme", Name: "Acme", Domain: "acme.io", AdminEmail: "olga@acme.io",
		MemberIDs: []string{"olga"}, Active: true, Settings: settings, CreatedAt: t0})
	orgs.Put(identity.Organization{ID: "globex", Name: "Globex", Domain: "globex.com",
		MemberIDs: []string{"zed"}, Active: true, Settings: identity.DefaultOrganizationSettings(), CreatedAt: t0})

	return fixture{
		svc:   &Service{Organizations: orgs, Users: users, Clock: application.NewFixedClock(t0.Add(time.Hour))},
		users: users,
		orgs:  orgs,
	}
}

func strPtr(s string) *string { return &s }

func TestGetIsLimitedToTheAdmin(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	org, err := f.svc.Get(ctx, admin, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme", org.Name)

	_, err = f.svc.Get(ctx, outsider, "acme")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	assert.Equal(t, "Access denied to this organization", apperr.MessageOf(err))

	_, err = f.svc.Get(ctx, solo, "acme")
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)

	lost := identity.Principal{UserID: "olga", Role: identity.RoleOrganizationAdmin, OrganizationID: "gone"}
	_, err = f.svc.Get(ctx, lost, "gone")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Organization not found", apperr.MessageOf(err))
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	org, err := f.svc.Update(ctx, admin, "acme", UpdateCommand{Name: strPtr(" Acme Corp "), Domain: strPtr("ACME.com")})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", org.Name)
	assert.Equal(t, "acme.com", org.Domain)

	stored, err := f.orgs.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", stored.Name)
	assert.Equal(t, []string{"olga"}, stored.MemberIDs)

	_, err = f.svc.Update(ctx, admin, "acme", UpdateCommand{Name: strPtr("A")})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUpdateSettingsMergesAndValidates(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	off := false
	three := 3
	st, err := f.svc.UpdateSettings(ctx, admin, "acme", SettingsCommand{AllowUserRegistration: &off, MaxUsers: &three})
	require.NoError(t, err)
	assert.Equal(t, identity.OrganizationSettings{AllowUserRegistration: false, MaxUsers: 3, MaxProducts: 100}, st)

	stored, err := f.orgs.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, st, stored.Settings)

	tooMany := identity.MaxUsersLimit + 1
	_, err = f.svc.UpdateSettings(ctx, admin, "acme", SettingsCommand{MaxUsers: &tooMany})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.UpdateSettings(ctx, outsider, "acme", SettingsCommand{MaxUsers: &three})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestAddUserCreatesOrAttaches(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	res, err := f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: " Budi@Acme.io ", Name: "Budi"})
	require.NoError(t, err)
	assert.Equal(t, "budi@acme.io", res.User.Email)
	assert.Equal(t, identity.RoleIndividual, res.User.Role)
	assert.Equal(t, "acme", res.User.OrganizationID)
	assert.True(t, res.User.Active)
	assert.Equal(t, t0.Add(time.Hour), res.User.CreatedAt)
	assert.Equal(t, OrganizationRef{ID: "acme", Name: "Acme"}, res.Organization)

	res, err = f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "alice@mail.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice", res.User.ID)
	assert.Equal(t, "Alice", res.User.Name)

	stored, err := f.users.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "acme", stored.OrganizationID)

	org, err := f.orgs.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Len(t, org.MemberIDs, 3)
	assert.True(t, org.HasMember("alice"))
}

func TestAddUserRejections(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()

	_, err := f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "olga@acme.io"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "User is already in this organization", apperr.MessageOf(err))

	_, err = f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "zed@globex.com"})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "User is already in another organization", apperr.MessageOf(err))

	_, err = f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "new@acme.io", Name: "N"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "new@acme.io", Name: "Nina", Role: "root"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = f.svc.AddUser(ctx, solo, "acme", AddUserCommand{Email: "new@acme.io", Name: "Nina"})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestAddUserEnforcesMaxUsers(t *testing.T) {
	f := newFixture(2)
	ctx := context.Background()

	_, err := f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "budi@acme.io", Name: "Budi"})
	require.NoError(t, err)

	_, err = f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "citra@acme.io", Name: "Citra"})
	require.ErrorIs(t, err, apperr.ErrValidation)
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "user limit of 2 reached", ae.Fields["organization"])

	_, err = f.users.FindByEmail(ctx, "citra@acme.io")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveUser(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()
	res, err := f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: "budi@acme.io", Name: "Budi", Role: identity.RoleOrganizationAdmin})
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveUser(ctx, admin, "acme", res.User.ID))
	u, err := f.users.Get(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Empty(t, u.OrganizationID)
	assert.Equal(t, identity.RoleIndividual, u.Role)

	org, err := f.orgs.Get(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"olga"}, org.MemberIDs)

	err = f.svc.RemoveUser(ctx, admin, "acme", res.User.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, "User is not in this organization", apperr.MessageOf(err))

	err = f.svc.RemoveUser(ctx, admin, "acme", "ghost")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "User not found", apperr.MessageOf(err))
}

func TestListUsersPages(t *testing.T) {
	f := newFixture(10)
	ctx := context.Background()
	for _, n := range []string{"budi", "citra"} {
		_, err := f.svc.AddUser(ctx, admin, "acme", AddUserCommand{Email: n + "@acme.io", Name: n})
		require.NoError(t, err)
	}

	page, err := f.svc.ListUsers(ctx, admin, "acme", 1, 2)
	require.NoError(t, err)
	require.Len(t, page.Users, 2)
	assert.Equal(t, "olga", page.Users[0].ID)
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 2, TotalUsers: 3, HasNext: true}, page.Pagination)

	page, err = f.svc.ListUsers(ctx, admin, "acme", 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Users, 1)
	assert.True(t, page.Pagination.HasPrev)
	assert.False(t, page.Pagination.HasNext)

	page, err = f.svc.ListUsers(ctx, admin, "acme", 0, 0)
	require.NoError(t, err)
	assert.Len(t, page.Users, 3)
	assert.Equal(t, 1, page.Pagination.TotalPages)

	_, err = f.svc.ListUsers(ctx, outsider, "acme", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}
