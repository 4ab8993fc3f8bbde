package products

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

// Category enum (closed)
type Category string

const (
	CategoryWebApplication Category = "web-application"
	CategoryMobileApp      Category = "mobile-app"
	CategoryAPI            Category = "api"
	CategoryDesktopApp     Category = "desktop-app"
	CategoryIoTDevice      Category = "iot-device"
	CategoryOther          Category = "other"
)

// Categories lists every accepted category.
var Categories = []Category{
	CategoryWebApplication, CategoryMobileApp, CategoryAPI,
	CategoryDesktopApp, CategoryIoTDevice, CategoryOther,
}

func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// Metadata value object
type Metadata struct {
	Repository    string   `json:"repository,omitempty"`
	DeploymentURL string   `json:"deploymentUrl,omitempty"`
	Documentation string   `json:"documentation,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Product is an analyzable system. Its assessments are found by querying
// assessments by product id; no id list is kept here.
type Product struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	Category     Category   `json:"category"`
	Technology   string     `json:"technology,omitempty"`
	Version      string     `json:"version,omitempty"`
	Owner        Owner      `json:"-"`
	Active       bool       `json:"isActive"`
	Metadata     Metadata   `json:"metadata"`
	LastAnalyzed *time.Time `json:"lastAnalyzed"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// MarshalJSON flattens the owner into ownerType/ownerId.
func (p Product) MarshalJSON() ([]byte, error) {
	type alias Product
	out := struct {
		alias
		OwnerType OwnerType `json:"ownerType"`
		OwnerID   string    `json:"ownerId"`
	}{alias: alias(p)}
	if p.Owner != nil {
		out.OwnerType = p.Owner.Type()
		out.OwnerID = p.Owner.ID()
	}
	return json.Marshal(out)
}

// Validate checks the field bounds a stored product must satisfy.
func (p *Product) Validate() error {
	fields := map[string]string{}
	name := strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(name); n < 2 || n > 100 {
		fields["name"] = "must be between 2 and 100 characters"
	}
	desc := strings.TrimSpace(p.Description)
	if n := utf8.RuneCountInString(desc); n < 10 || n > 1000 {
		fields["description"] = "must be between 10 and 1000 characters"
	}
	if !p.Category.Valid() {
		fields["category"] = fmt.Sprintf("must be one of: %s", joinCategories())
	}
	if utf8.RuneCountInString(p.Technology) > 200 {
		fields["technology"] = "cannot exceed 200 characters"
	}
	if utf8.RuneCountInString(p.Version) > 50 {
		fields["version"] = "cannot exceed 50 characters"
	}
	for _, t := range p.Metadata.Tags {
		if utf8.RuneCountInString(t) > 50 {
			fields["metadata.tags"] = "each tag cannot exceed 50 characters"
			break
		}
	}
	if p.Owner == nil || p.Owner.ID() == "" {
		fields["owner"] = "is required"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func joinCategories() string {
	parts := make([]string, len(Categories))
	for i, c := range Categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, " ")
}

// CategoryCount is one bucket of a category distribution.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Stats is the product rollup for a set of owners.
type Stats struct {
	TotalProducts        int             `json:"totalProducts"`
	ActiveProducts       int             `json:"activeProducts"`
	CategoryDistribution []CategoryCount `json:"categoryDistribution"`
	LastAnalyzed         *time.Time      `json:"lastAnalyzed"`
}

// EmptyStats is the zero rollup with a non-nil distribution.
func EmptyStats() Stats {
	return Stats{CategoryDistribution: []CategoryCount{}}
}
