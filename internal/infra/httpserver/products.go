package httpserver

import (
	"net/http"

	appproducts "github.com/bryanwahyu/automaton-risk/internal/application/products"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/products"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

type createProductRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=100"`
	Description string `json:"description" validate:"required,min=10,max=1000"`
	Category    string `json:"category" validate:"omitempty,oneof=web-application mobile-app api desktop-app iot-device other"`
	Technology  string `json:"technology" validate:"max=200"`
	Version     string `json:"version" validate:"max=50"`
	Metadata    struct {
		Repository    string   `json:"repository" validate:"omitempty,url"`
		DeploymentURL string   `json:"deploymentUrl" validate:"omitempty,url"`
		Documentation string   `json:"documentation" validate:"omitempty,url"`
		Tags          []string `json:"tags" validate:"max=20,dive,max=50"`
	} `json:"metadata"`
	// Personal registers the product under the caller even when they
	// administer an organization.
	Personal bool `json:"personal"`
}

// POST /products
func (r *Router) handleCreateProduct(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	var body createProductRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	body.Name = middleware.SanitizeString(body.Name)
	body.Description = middleware.SanitizeString(body.Description)
	body.Technology = middleware.SanitizeString(body.Technology)
	body.Version = middleware.SanitizeString(body.Version)
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}

	tags := make([]string, 0, len(body.Metadata.Tags))
	for _, t := range body.Metadata.Tags {
		if t = middleware.SanitizeString(t); t != "" {
			tags = append(tags, t)
		}
	}
	prod, err := r.products.Create(req.Context(), p, appproducts.CreateCommand{
		Name:        body.Name,
		Description: body.Description,
		Category:    domain.Category(body.Category),
		Technology:  body.Technology,
		Version:     body.Version,
		Metadata: domain.Metadata{
			Repository:    body.Metadata.Repository,
			DeploymentURL: body.Metadata.DeploymentURL,
			Documentation: body.Metadata.Documentation,
			Tags:          tags,
		},
		Personal: body.Personal,
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusCreated, "Product created successfully", map[string]any{"product": prod})
}

// GET /products?page=&limit=&category=&search=
func (r *Router) handleListProducts(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
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
	q := req.URL.Query()
	cat := domain.Category(q.Get("category"))
	if cat != "" && !cat.Valid() {
		return apperr.Validation(map[string]string{"category": "Invalid category"})
	}
	res, err := r.products.List(req.Context(), p, appproducts.ListQuery{
		Category: cat,
		Search:   middleware.SanitizeString(q.Get("search")),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}

// GET /products/stats
func (r *Router) handleProductStats(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	res, err := r.stats.Overview(req.Context(), p)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}

// GET /products/{productId}
func (r *Router) handleGetProduct(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "productId")
	if err != nil {
		return err
	}
	prod, err := r.products.Get(req.Context(), p, id)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", map[string]any{"product": prod})
}

type updateProductRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string `json:"description" validate:"omitempty,min=10,max=1000"`
	Category    *string `json:"category" validate:"omitempty,oneof=web-application mobile-app api desktop-app iot-device other"`
	Technology  *string `json:"technology" validate:"omitempty,max=200"`
	Version     *string `json:"version" validate:"omitempty,max=50"`
	Metadata    *struct {
		Repository    string   `json:"repository" validate:"omitempty,url"`
		DeploymentURL string   `json:"deploymentUrl" validate:"omitempty,url"`
		Documentation string   `json:"documentation" validate:"omitempty,url"`
		Tags          []string `json:"tags" validate:"max=20,dive,max=50"`
	} `json:"metadata"`
}

func sanitized(v *string) *string {
	if v == nil {
		return nil
	}
	s := middleware.SanitizeString(*v)
	return &s
}

// PUT /products/{productId}
func (r *Router) handleUpdateProduct(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "productId")
	if err != nil {
		return err
	}
	var body updateProductRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	body.Name = sanitized(body.Name)
	body.Description = sanitized(body.Description)
	body.Technology = sanitized(body.Technology)
	body.Version = sanitized(body.Version)
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}

	cmd := appproducts.UpdateCommand{
		Name:        body.Name,
		Description: body.Description,
		Technology:  body.Technology,
		Version:     body.Version,
	}
	if body.Category != nil {
		cat := domain.Category(*body.Category)
		cmd.Category = &cat
	}
	if m := body.Metadata; m != nil {
		tags := make([]string, 0, len(m.Tags))
		for _, t := range m.Tags {
			if t = middleware.SanitizeString(t); t != "" {
				tags = append(tags, t)
			}
		}
		cmd.Metadata = &domain.Metadata{
			Repository:    m.Repository,
			DeploymentURL: m.DeploymentURL,
			Documentation: m.Documentation,
			Tags:          tags,
		}
	}
	prod, err := r.products.Update(req.Context(), p, id, cmd)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "Product updated successfully", map[string]any{"product": prod})
}

// DELETE /products/{productId}
func (r *Router) handleDeleteProduct(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "productId")
	if err != nil {
		return err
	}
	if err := r.products.Deactivate(req.Context(), p, id); err != nil {
		return err
	}
	return ok(w, http.StatusOK, "Product deleted successfully", nil)
}
