package httpserver

import (
	"net/http"

	apporgs "github.com/bryanwahyu/automaton-risk/internal/application/organizations"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

type updateOrganizationRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Domain      *string `json:"domain" validate:"omitempty,fqdn"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

type settingsRequest struct {
	Settings struct {
		AllowUserRegistration *bool `json:"allowUserRegistration"`
		MaxUsers              *int  `json:"maxUsers" validate:"omitempty,min=1,max=1000"`
		MaxProducts           *int  `json:"maxProducts" validate:"omitempty,min=1,max=10000"`
	} `json:"settings"`
}

type addUserRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"omitempty,min=2,max=100"`
	Role  string `json:"role" validate:"omitempty,oneof=individual organizationAdmin"`
}

// GET /organizations/{organizationId}
func (r *Router) handleGetOrganization(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	org, err := r.orgs.Get(req.Context(), p, orgID)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", map[string]any{"organization": org})
}

// PUT /organizations/{organizationId}
func (r *Router) handleUpdateOrganization(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	var body updateOrganizationRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	body.Name = sanitized(body.Name)
	body.Domain = sanitized(body.Domain)
	body.Description = sanitized(body.Description)
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}
	org, err := r.orgs.Update(req.Context(), p, orgID, apporgs.UpdateCommand{
		Name:        body.Name,
		Domain:      body.Domain,
		Description: body.Description,
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "Organization updated successfully", map[string]any{"organization": org})
}

// PUT /organizations/{organizationId}/settings
func (r *Router) handleUpdateSettings(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	var body settingsRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}
	st, err := r.orgs.UpdateSettings(req.Context(), p, orgID, apporgs.SettingsCommand{
		AllowUserRegistration: body.Settings.AllowUserRegistration,
		MaxUsers:              body.Settings.MaxUsers,
		MaxProducts:           body.Settings.MaxProducts,
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "Organization settings updated successfully", map[string]any{"settings": st})
}

// GET /organizations/{organizationId}/users?page=&limit=
func (r *Router) handleListOrganizationUsers(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	page, err := queryInt(req, "page")
	if err != nil {
		return err
	}
	limit, err := queryInt(req, "limit")
	if err != nil {
		return err
	}
	res, err := r.orgs.ListUsers(req.Context(), p, orgID, page, limit)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}

// POST /organizations/{organizationId}/users
func (r *Router) handleAddOrganizationUser(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	var body addUserRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	body.Name = middleware.SanitizeString(body.Name)
	body.Email = middleware.SanitizeString(body.Email)
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}
	res, err := r.orgs.AddUser(req.Context(), p, orgID, apporgs.AddUserCommand{
		Email: body.Email,
		Name:  body.Name,
		Role:  identity.Role(body.Role),
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "User added to organization successfully", res)
}

// DELETE /organizations/{organizationId}/users/{userId}
func (r *Router) handleRemoveOrganizationUser(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	userID, err := pathID(req, "userId")
	if err != nil {
		return err
	}
	if err := r.orgs.RemoveUser(req.Context(), p, orgID, userID); err != nil {
		return err
	}
	return ok(w, http.StatusOK, "User removed from organization successfully", nil)
}

// GET /organizations/{organizationId}/stats
func (r *Router) handleOrganizationStats(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	orgID, err := pathID(req, "organizationId")
	if err != nil {
		return err
	}
	res, err := r.stats.Organization(req.Context(), p, orgID)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}
