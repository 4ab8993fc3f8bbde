package products

import "fmt"

// OwnerType discriminator as persisted.
type OwnerType string

const (
	OwnerTypeUser         OwnerType = "user"
	OwnerTypeOrganization OwnerType = "organization"
)

// Owner is a closed sum type: UserOwner | OrganizationOwner.
type Owner interface {
	Type() OwnerType
	ID() string
	sealedOwner()
}

// UserOwner marks a product owned by an individual user.
type UserOwner struct{ UserID string }

// OrganizationOwner marks a product owned by an organization.
type OrganizationOwner struct{ OrganizationID string }

func (o UserOwner) Type() OwnerType { return OwnerTypeUser }
func (o UserOwner) ID() string      { return o.UserID }
func (UserOwner) sealedOwner()      {}

func (o OrganizationOwner) Type() OwnerType { return OwnerTypeOrganization }
func (o OrganizationOwner) ID() string      { return o.OrganizationID }
func (OrganizationOwner) sealedOwner()      {}

// ParseOwner rebuilds an Owner from its persisted columns.
func ParseOwner(ownerType, ownerID string) (Owner, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner id is empty")
	}
	switch OwnerType(ownerType) {
	case OwnerTypeUser:
		return UserOwner{UserID: ownerID}, nil
	case OwnerTypeOrganization:
		return OrganizationOwner{OrganizationID: ownerID}, nil
	default:
		return nil, fmt.Errorf("unknown owner type %q", ownerType)
	}
}

// SameOwner compares two owners by discriminator and id.
func SameOwner(a, b Owner) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Type() == b.Type() && a.ID() == b.ID()
}
