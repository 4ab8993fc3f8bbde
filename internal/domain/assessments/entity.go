package assessments

import (
	"fmt"
	"time"
)

// Status enum. Transitions only move forward; completed and failed are terminal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusCompleted || to == StatusFailed
	}
	return false
}

// RiskLevel enum
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskLevels in ascending severity.
var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskCritical}

// ParseRiskLevel maps unknown or empty values to low.
func ParseRiskLevel(s string) RiskLevel {
	for _, l := range RiskLevels {
		if string(l) == s {
			return l
		}
	}
	return RiskLow
}

// ClampScore bounds a score into [0,10].
func ClampScore(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 10:
		return 10
	}
	return v
}

// Metadata captured from the calling request.
type Metadata struct {
	RequestID string `json:"requestId,omitempty"`
	Model     string `json:"model,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

// Aggregate Root: Assessment
type Assessment struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"productId"`
	UserID           string    `json:"userId"`
	Input            Input     `json:"inputData"`
	Status           Status    `json:"status"`
	RiskScore        float64   `json:"riskScore"`
	RiskLevel        RiskLevel `json:"riskLevel"`
	Vulnerabilities  []string  `json:"vulnerabilities"`
	Recommendations  []string  `json:"recommendations"`
	ResultSummary    string    `json:"resultSummary,omitempty"`
	LLMModel         string    `json:"llmModel,omitempty"`
	ProcessingTimeMS int64     `json:"processingTime"`
	ErrorMessage     string    `json:"errorMessage,omitempty"`
	Metadata         Metadata  `json:"metadata"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Input is the sanitized options payload that started the run.
type Input struct {
	AnalysisType           string         `json:"analysisType"`
	Focus                  string         `json:"focus"`
	Depth                  string         `json:"depth"`
	IncludeRecommendations bool           `json:"includeRecommendations"`
	Questionnaire          map[string]any `json:"questionnaire,omitempty"`
	ComplianceRequirements []string       `json:"complianceRequirements,omitempty"`
}

// Transition moves the assessment to next or returns an error naming both states.
func (a *Assessment) Transition(next Status, at time.Time) error {
	if !CanTransition(a.Status, next) {
		return fmt.Errorf("assessment %s: illegal transition %s -> %s", a.ID, a.Status, next)
	}
	a.Status = next
	a.UpdatedAt = at
	return nil
}

// Summary is the public view returned by analyze and history.
type Summary struct {
	ID                  string    `json:"id"`
	ProductID           string    `json:"productId"`
	RiskScore           float64   `json:"riskScore"`
	RiskLevel           RiskLevel `json:"riskLevel"`
	VulnerabilityCount  int       `json:"vulnerabilityCount"`
	RecommendationCount int       `json:"recommendationCount"`
	Status              Status    `json:"status"`
	ErrorMessage        string    `json:"errorMessage,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

func (a *Assessment) Summary() Summary {
	return Summary{
		ID:                  a.ID,
		ProductID:           a.ProductID,
		RiskScore:           a.RiskScore,
		RiskLevel:           a.RiskLevel,
		VulnerabilityCount:  len(a.Vulnerabilities),
		RecommendationCount: len(a.Recommendations),
		Status:              a.Status,
		ErrorMessage:        a.ErrorMessage,
		Timestamp:           a.Timestamp,
	}
}

// LevelCount is one bucket of a risk level distribution.
type LevelCount struct {
	Level RiskLevel `json:"level"`
	Count int       `json:"count"`
}

// Statistics over completed assessments.
type Statistics struct {
	TotalAssessments      int          `json:"totalAssessments"`
	AverageRiskScore      float64      `json:"averageRiskScore"`
	MaxRiskScore          float64      `json:"maxRiskScore"`
	MinRiskScore          float64      `json:"minRiskScore"`
	RiskLevelDistribution []LevelCount `json:"riskLevelDistribution"`
}

// EmptyStatistics is the zero rollup with a non-nil distribution.
func EmptyStatistics() Statistics {
	return Statistics{RiskLevelDistribution: []LevelCount{}}
}

// Compute builds statistics from completed assessments; other statuses are
// skipped. The distribution is ordered by ascending severity.
func Compute(list []*Assessment) Statistics {
	st := EmptyStatistics()
	counts := map[RiskLevel]int{}
	var sum float64
	for _, a := range list {
		if a.Status != StatusCompleted {
			continue
		}
		if st.TotalAssessments == 0 || a.RiskScore > st.MaxRiskScore {
			st.MaxRiskScore = a.RiskScore
		}
		if st.TotalAssessments == 0 || a.RiskScore < st.MinRiskScore {
			st.MinRiskScore = a.RiskScore
		}
		st.TotalAssessments++
		sum += a.RiskScore
		counts[a.RiskLevel]++
	}
	if st.TotalAssessments > 0 {
		st.AverageRiskScore = sum / float64(st.TotalAssessments)
	}
	st.RiskLevelDistribution = Distribution(counts)
	return st
}

// Distribution orders level counts by severity, skipping empty buckets.
func Distribution(counts map[RiskLevel]int) []LevelCount {
	out := []LevelCount{}
	for _, l := range RiskLevels {
		if n := counts[l]; n > 0 {
			out = append(out, LevelCount{Level: l, Count: n})
		}
	}
	return out
}
