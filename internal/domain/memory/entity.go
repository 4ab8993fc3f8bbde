package memory

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

const (
	MaxContextLength = 5000
	MaxTagLength     = 50

	DefaultEmbeddingModel = "text-embedding-ada-002"
	DefaultDimension      = 1536
)

// Type enum
type Type string

const (
	TypeRiskPattern          Type = "risk-pattern"
	TypeVulnerabilityHistory Type = "vulnerability-history"
	TypeRecommendation       Type = "recommendation"
	TypeUserFeedback         Type = "user-feedback"
	TypeSystemLearning       Type = "system-learning"
)

var Types = []Type{TypeRiskPattern, TypeVulnerabilityHistory, TypeRecommendation, TypeUserFeedback, TypeSystemLearning}

func (t Type) Valid() bool {
	for _, k := range Types {
		if t == k {
			return true
		}
	}
	return false
}

// SourceKind enum
type SourceKind string

const (
	SourceRiskAssessment  SourceKind = "risk-assessment"
	SourceUserInput       SourceKind = "user-input"
	SourceSystemGenerated SourceKind = "system-generated"
	SourceExternal        SourceKind = "external-source"
)

func (s SourceKind) Valid() bool {
	switch s {
	case SourceRiskAssessment, SourceUserInput, SourceSystemGenerated, SourceExternal:
		return true
	}
	return false
}

// Source metadata
type Source struct {
	Source   SourceKind `json:"source"`
	Version  string     `json:"version,omitempty"`
	Language string     `json:"language,omitempty"`
	Domain   string     `json:"domain,omitempty"`
}

// Memory is a context fragment of a past analysis, tied to a product.
type Memory struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"productId"`
	ContextText    string    `json:"contextText"`
	Type           Type      `json:"memoryType"`
	Vector         []float32 `json:"vector,omitempty"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embeddingModel"`
	Confidence     float64   `json:"confidence"`
	Tags           []string  `json:"tags"`
	Source         Source    `json:"metadata"`
	Active         bool      `json:"isActive"`
	LastAccessed   time.Time `json:"lastAccessed"`
	AccessCount    int       `json:"accessCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate checks required fields and bounds.
func (m *Memory) Validate() error {
	fields := map[string]string{}
	if m.ProductID == "" {
		fields["productId"] = "is required"
	}
	if m.ContextText == "" {
		fields["contextText"] = "is required"
	} else if utf8.RuneCountInString(m.ContextText) > MaxContextLength {
		fields["contextText"] = fmt.Sprintf("cannot exceed %d characters", MaxContextLength)
	}
	if !m.Type.Valid() {
		fields["memoryType"] = "is required and must be a known memory type"
	}
	if m.Confidence < 0 || m.Confidence > 1 || math.IsNaN(m.Confidence) {
		fields["confidence"] = "must be between 0 and 1"
	}
	for _, t := range m.Tags {
		if utf8.RuneCountInString(t) > MaxTagLength {
			fields["tags"] = fmt.Sprintf("each tag cannot exceed %d characters", MaxTagLength)
			break
		}
	}
	if m.Source.Source != "" && !m.Source.Source.Valid() {
		fields["metadata.source"] = "must be a known source"
	}
	if len(m.Vector) > 0 && m.Dimension != 0 && m.Dimension != len(m.Vector) {
		fields["dimension"] = "must match the vector length"
	}
	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

// CosineSimilarity of two vectors; 0 when lengths differ or either is zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Scored pairs a memory with its similarity to the query.
type Scored struct {
	Memory     *Memory `json:"memory"`
	Similarity float64 `json:"similarity"`
}

// TypeCount is one bucket of a memory type distribution.
type TypeCount struct {
	Type  Type `json:"type"`
	Count int  `json:"count"`
}

// Statistics over active memories of a product.
type Statistics struct {
	TotalMemories          int         `json:"totalMemories"`
	AverageConfidence      float64     `json:"averageConfidence"`
	MemoryTypeDistribution []TypeCount `json:"memoryTypeDistribution"`
	TotalAccessCount       int         `json:"totalAccessCount"`
}

func EmptyStatistics() Statistics {
	return Statistics{MemoryTypeDistribution: []TypeCount{}}
}

// Compute rolls up active memories; inactive ones are skipped.
func Compute(list []*Memory) Statistics {
	st := EmptyStatistics()
	counts := map[Type]int{}
	var sum float64
	for _, m := range list {
		if !m.Active {
			continue
		}
		st.TotalMemories++
		st.TotalAccessCount += m.AccessCount
		sum += m.Confidence
		counts[m.Type]++
	}
	if st.TotalMemories > 0 {
		st.AverageConfidence = sum / float64(st.TotalMemories)
	}
	for _, t := range Types {
		if n := counts[t]; n > 0 {
			st.MemoryTypeDistribution = append(st.MemoryTypeDistribution, TypeCount{Type: t, Count: n})
		}
	}
	return st
}
