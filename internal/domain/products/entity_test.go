package products

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

func validProduct() *Product {
	return &Product{
		Name:        "Chat assistant",
		Description: "Customer-facing LLM chat assistant",
		Category:    CategoryWebApplication,
		Owner:       UserOwner{UserID: "u1"},
		Active:      true,
	}
}

func TestValidateAcceptsBounds(t *testing.T) {
	require.NoError(t, validProduct().Validate())
}

func TestValidateReportsEveryField(t *testing.T) {
	p := validProduct()
	p.Name = "x"
	p.Description = "short"
	p.Category = "spaceship"
	p.Version = strings.Repeat("1", 51)
	p.Metadata.Tags = []string{strings.Repeat("t", 51)}
	p.Owner = nil

	err := p.Validate()
	require.ErrorIs(t, err, apperr.ErrValidation)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	for _, f := range []string{"name", "description", "category", "version", "metadata.tags", "owner"} {
		assert.Contains(t, ae.Fields, f)
	}
}

func TestParseOwner(t *testing.T) {
	o, err := ParseOwner("organization", "org-1")
	require.NoError(t, err)
	assert.Equal(t, OrganizationOwner{OrganizationID: "org-1"}, o)

	_, err = ParseOwner("team", "x")
	assert.Error(t, err)
	_, err = ParseOwner("user", "")
	assert.Error(t, err)

	assert.True(t, SameOwner(UserOwner{UserID: "a"}, UserOwner{UserID: "a"}))
	assert.False(t, SameOwner(UserOwner{UserID: "a"}, OrganizationOwner{OrganizationID: "a"}))
}

func TestMarshalFlattensOwner(t *testing.T) {
	p := validProduct()
	p.ID = "p1"
	b, err := json.Marshal(p)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "user", got["ownerType"])
	assert.Equal(t, "u1", got["ownerId"])
	assert.Equal(t, "p1", got["id"])
	assert.NotContains(t, got, "Owner")
}
