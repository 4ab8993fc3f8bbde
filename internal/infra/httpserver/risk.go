package httpserver

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"

	apprisk "github.com/bryanwahyu/automaton-risk/internal/application/risk"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-risk/internal/middleware"
)

type analyzeRequest struct {
	AnalysisType           string         `json:"analysisType" validate:"omitempty,oneof=comprehensive quick deep focused"`
	Focus                  string         `json:"focus" validate:"omitempty,oneof=security performance compliance all"`
	Depth                  string         `json:"depth" validate:"omitempty,oneof=standard detailed comprehensive"`
	IncludeRecommendations *bool          `json:"includeRecommendations"`
	Questionnaire          map[string]any `json:"questionnaire"`
	PreviousAssessments    []string       `json:"previousAssessments" validate:"max=20,dive,max=5000"`
	OrganizationProfile    map[string]any `json:"organizationProfile"`
	ComplianceRequirements []string       `json:"complianceRequirements" validate:"max=20,dive,required,max=100"`
}

func (b analyzeRequest) options() analysis.Options {
	prev := make([]string, 0, len(b.PreviousAssessments))
	for _, s := range b.PreviousAssessments {
		if s = middleware.SanitizeString(s); s != "" {
			prev = append(prev, s)
		}
	}
	return analysis.Options{
		Type:                   analysis.Type(b.AnalysisType),
		Focus:                  analysis.Focus(b.Focus),
		Depth:                  analysis.Depth(b.Depth),
		IncludeRecommendations: b.IncludeRecommendations,
		Questionnaire:          b.Questionnaire,
		PreviousAssessments:    prev,
		OrganizationProfile:    b.OrganizationProfile,
		ComplianceRequirements: b.ComplianceRequirements,
	}
}

type batchRequest struct {
	ProductIDs      []string       `json:"productIds" validate:"max=10,dive,required,max=64"`
	AnalysisOptions analyzeRequest `json:"analysisOptions"`
}

// POST /risk/analyze/{productId}
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	productID, err := pathID(req, "productId")
	if err != nil {
		return err
	}
	var body analyzeRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}

	res, err := r.risk.Analyze(req.Context(), p, productID, apprisk.AnalyzeCommand{
		Options: body.options(),
		Meta: apprisk.RequestMeta{
			RequestID: chimw.GetReqID(req.Context()),
			IPAddress: req.RemoteAddr,
			UserAgent: req.UserAgent(),
			SessionID: req.Header.Get("X-Session-ID"),
		},
	})
	if err != nil {
		if res != nil {
			return withData(err, res)
		}
		return err
	}
	return ok(w, http.StatusOK, "Risk analysis completed successfully", res)
}

// GET /risk/history/{productId}?page=&limit=
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	productID, err := pathID(req, "productId")
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
	res, err := r.risk.History(req.Context(), p, productID, page, limit)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}

// GET /risk/assessment/{assessmentId}
func (r *Router) handleAssessment(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	id, err := pathID(req, "assessmentId")
	if err != nil {
		return err
	}
	a, err := r.risk.Get(req.Context(), p, id)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", map[string]any{"riskAssessment": a})
}

// GET /risk/statistics/{productId}
func (r *Router) handleStatistics(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	productID, err := pathID(req, "productId")
	if err != nil {
		return err
	}
	res, err := r.risk.Statistics(req.Context(), p, productID)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", res)
}

// POST /risk/batch-analyze
func (r *Router) handleBatchAnalyze(w http.ResponseWriter, req *http.Request) error {
	p, err := principal(req)
	if err != nil {
		return err
	}
	var body batchRequest
	if err := decode(req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateStruct(body); err != nil {
		return err
	}
	res, err := r.risk.BatchAnalyze(req.Context(), p, apprisk.BatchCommand{
		ProductIDs: body.ProductIDs,
		Options:    body.AnalysisOptions.options(),
	})
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "Batch analysis initiated", res)
}

// GET /risk/service/health
func (r *Router) handleServiceHealth(w http.ResponseWriter, req *http.Request) error {
	return ok(w, http.StatusOK, "", r.risk.ServiceHealth(req.Context()))
}

// GET /risk/service/models
func (r *Router) handleModels(w http.ResponseWriter, req *http.Request) error {
	models, err := r.risk.Models(req.Context())
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", models)
}

// GET /risk/service/status/{requestId}
func (r *Router) handleAnalysisStatus(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "requestId")
	if err != nil {
		return err
	}
	st, err := r.risk.AnalysisStatus(req.Context(), id)
	if err != nil {
		return err
	}
	return ok(w, http.StatusOK, "", st)
}
