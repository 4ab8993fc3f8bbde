// Package access decides whether a principal may act on a resource owned by a
// user or an organization. It has no I/O; callers load the owner first.
package access

import (
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

// CanAccess reports whether p may access a resource owned by owner.
//
// Individuals reach only what they own. Organization admins reach what they
// own personally plus everything owned by their organization. Every other
// role is denied.
func CanAccess(p identity.Principal, owner products.Owner) bool {
	if owner == nil || p.UserID == "" {
		return false
	}
	switch p.Role {
	case identity.RoleIndividual:
		o, ok := owner.(products.UserOwner)
		return ok && o.UserID == p.UserID
	case identity.RoleOrganizationAdmin:
		switch o := owner.(type) {
		case products.UserOwner:
			return o.UserID == p.UserID
		case products.OrganizationOwner:
			return p.OrganizationID != "" && o.OrganizationID == p.OrganizationID
		}
	}
	return false
}

// Scope lists the owners whose resources p may see. The result is consistent
// with CanAccess: an owner is in Scope(p) iff CanAccess(p, owner).
func Scope(p identity.Principal) []products.Owner {
	if p.UserID == "" {
		return nil
	}
	switch p.Role {
	case identity.RoleIndividual:
		return []products.Owner{products.UserOwner{UserID: p.UserID}}
	case identity.RoleOrganizationAdmin:
		out := []products.Owner{products.UserOwner{UserID: p.UserID}}
		if p.OrganizationID != "" {
			out = append(out, products.OrganizationOwner{OrganizationID: p.OrganizationID})
		}
		return out
	}
	return nil
}

// Require returns an AccessDenied error naming what when CanAccess is false.
func Require(p identity.Principal, owner products.Owner, what string) error {
	if CanAccess(p, owner) {
		return nil
	}
	return apperr.AccessDenied(what)
}
