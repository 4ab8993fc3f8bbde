package identity

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

// Role enum
type Role string

const (
	RoleIndividual        Role = "individual"
	RoleOrganizationAdmin Role = "organizationAdmin"
)

func (r Role) Valid() bool {
	return r == RoleIndividual || r == RoleOrganizationAdmin
}

// User is an account; products owned directly have a UserOwner.
type User struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Role           Role       `json:"role"`
	OrganizationID string     `json:"organizationId,omitempty"`
	Active         bool       `json:"isActive"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// Principal returns the access-control view of the user.
func (u *User) Principal() Principal {
	return Principal{UserID: u.ID, Role: u.Role, OrganizationID: u.OrganizationID}
}

// OrganizationSettings value object
type OrganizationSettings struct {
	AllowUserRegistration bool `json:"allowUserRegistration"`
	MaxUsers              int  `json:"maxUsers"`
	MaxProducts           int  `json:"maxProducts"`
}

// DefaultOrganizationSettings mirrors what a freshly registered tenant gets.
func DefaultOrganizationSettings() OrganizationSettings {
	return OrganizationSettings{AllowUserRegistration: true, MaxUsers: 50, MaxProducts: 100}
}

const (
	MaxUsersLimit    = 1000
	MaxProductsLimit = 10000
)

func (s OrganizationSettings) Validate() error {
	fields := map[string]string{}
	if s.MaxUsers < 1 || s.MaxUsers > MaxUsersLimit {
		fields["settings.maxUsers"] = fmt.Sprintf("must be between 1 and %d", MaxUsersLimit)
	}
	if s.MaxProducts < 1 || s.MaxProducts > MaxProductsLimit {
		fields["settings.maxProducts"] = fmt.Sprintf("must be between 1 and %d", MaxProductsLimit)
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// Organization is a tenant owning users and products by reference.
type Organization struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Domain      string               `json:"domain"`
	AdminEmail  string               `json:"adminEmail"`
	Description string               `json:"description,omitempty"`
	MemberIDs   []string             `json:"users"`
	ProductIDs  []string             `json:"products"`
	Active      bool                 `json:"isActive"`
	Settings    OrganizationSettings `json:"settings"`
	CreatedAt   time.Time            `json:"createdAt"`
}

// Validate checks the editable profile fields.
func (o *Organization) Validate() error {
	fields := map[string]string{}
	if n := utf8.RuneCountInString(strings.TrimSpace(o.Name)); n < 2 || n > 100 {
		fields["name"] = "must be between 2 and 100 characters"
	}
	if strings.TrimSpace(o.Domain) == "" {
		fields["domain"] = "is required"
	}
	if utf8.RuneCountInString(o.Description) > 500 {
		fields["description"] = "cannot exceed 500 characters"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// HasMember reports whether userID is listed on the organization.
func (o *Organization) HasMember(userID string) bool {
	for _, id := range o.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Principal is the authenticated actor making a request.
type Principal struct {
	UserID         string `json:"userId"`
	Role           Role   `json:"role"`
	OrganizationID string `json:"organizationId,omitempty"`
}
