package analysis

import (
	"strings"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

// Type enum
type Type string

const (
	TypeComprehensive Type = "comprehensive"
	TypeQuick         Type = "quick"
	TypeDeep          Type = "deep"
	TypeFocused       Type = "focused"
)

// Focus enum
type Focus string

const (
	FocusSecurity    Focus = "security"
	FocusPerformance Focus = "performance"
	FocusCompliance  Focus = "compliance"
	FocusAll         Focus = "all"
)

// Depth enum
type Depth string

const (
	DepthStandard      Depth = "standard"
	DepthDetailed      Depth = "detailed"
	DepthComprehensive Depth = "comprehensive"
)

// ProductInput is the product view sent to the engine.
type ProductInput struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Technology  string `json:"technology,omitempty"`
	Version     string `json:"version,omitempty"`
}

// Options shape one analysis request.
type Options struct {
	Type                   Type
	Focus                  Focus
	Depth                  Depth
	IncludeRecommendations *bool
	Questionnaire          map[string]any
	PreviousAssessments    []string
	OrganizationProfile    map[string]any
	ComplianceRequirements []string

	UserID    string
	ProductID string
	SessionID string
	BatchID   string
}

// WithDefaults fills unset enums and flags.
func (o Options) WithDefaults() Options {
	if o.Type == "" {
		o.Type = TypeComprehensive
	}
	if o.Focus == "" {
		o.Focus = FocusSecurity
	}
	if o.Depth == "" {
		o.Depth = DepthStandard
	}
	if o.IncludeRecommendations == nil {
		t := true
		o.IncludeRecommendations = &t
	}
	return o
}

// Recommendations reports the effective includeRecommendations flag.
func (o Options) Recommendations() bool {
	return o.IncludeRecommendations == nil || *o.IncludeRecommendations
}

// Validate checks enum values; empty values are accepted and defaulted later.
func (o Options) Validate() error {
	fields := map[string]string{}
	switch o.Type {
	case "", TypeComprehensive, TypeQuick, TypeDeep, TypeFocused:
	default:
		fields["analysisType"] = "must be one of: comprehensive quick deep focused"
	}
	switch o.Focus {
	case "", FocusSecurity, FocusPerformance, FocusCompliance, FocusAll:
	default:
		fields["focus"] = "must be one of: security performance compliance all"
	}
	switch o.Depth {
	case "", DepthStandard, DepthDetailed, DepthComprehensive:
	default:
		fields["depth"] = "must be one of: standard detailed comprehensive"
	}
	for _, c := range o.ComplianceRequirements {
		if strings.TrimSpace(c) == "" {
			fields["complianceRequirements"] = "entries cannot be empty"
			break
		}
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// Result of a successful analysis. Confidence is nil when the engine did not
// report one.
type Result struct {
	Summary          string    `json:"summary"`
	Vulnerabilities  []string  `json:"vulnerabilities"`
	Recommendations  []string  `json:"recommendations"`
	RiskScore        float64   `json:"riskScore"`
	RiskLevel        string    `json:"riskLevel"`
	ProcessingTimeMS int64     `json:"processingTime"`
	Model            string    `json:"model"`
	Confidence       *float64  `json:"confidence,omitempty"`
	RequestID        string    `json:"requestId,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Health of the engine.
type Health struct {
	Healthy   bool           `json:"healthy"`
	Status    string         `json:"status,omitempty"`
	Error     string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// BatchResult acknowledges a batch submission.
type BatchResult struct {
	BatchID string         `json:"batchId"`
	Raw     map[string]any `json:"raw,omitempty"`
}
