package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/memory"
)

const (
	DefaultLimit     = 5
	DefaultThreshold = 0.7
)

// Store implements the memory use-cases. Embedder is optional; without it
// memories are stored without vectors and similarity search falls back to
// confidence ranking.
type Store struct {
	Repo     domain.Repository
	Embedder domain.Embedder
	Clock    application.Clock
	Log      *zap.Logger
}

func (s *Store) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Create validates and persists m, filling id, counters and the embedding.
func (s *Store) Create(ctx context.Context, m *domain.Memory) (*domain.Memory, error) {
	m.ContextText = strings.TrimSpace(m.ContextText)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	now := application.NowOr(s.Clock)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.Active = true
	m.AccessCount = 0
	m.LastAccessed = now
	m.CreatedAt = now
	if m.Source.Source == "" {
		m.Source.Source = domain.SourceRiskAssessment
	}

	if len(m.Vector) == 0 && s.Embedder != nil {
		vec, err := s.Embedder.Embed(ctx, m.ContextText)
		if err != nil {
			s.log().Warn("memory embedding failed, storing without vector",
				zap.String("product_id", m.ProductID), zap.Error(err))
		} else {
			m.Vector = vec
			m.EmbeddingModel = s.Embedder.Model()
		}
	}
	if len(m.Vector) > 0 {
		m.Dimension = len(m.Vector)
	} else if m.Dimension == 0 {
		m.Dimension = domain.DefaultDimension
	}
	if m.EmbeddingModel == "" {
		m.EmbeddingModel = domain.DefaultEmbeddingModel
	}

	if err := s.Repo.Save(ctx, m); err != nil {
		return nil, fmt.Errorf("save memory: %w", err)
	}
	return m, nil
}

// FindSimilar ranks the active memories of productID against query by cosine
// similarity, keeping those at or above threshold. limit <= 0 means 5 and
// threshold <= 0 means 0.7. An empty query ranks by confidence then access
// count instead.
func (s *Store) FindSimilar(ctx context.Context, productID string, query []float32, limit int, threshold float64) ([]domain.Scored, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	list, err := s.Repo.ListActive(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}

	out := make([]domain.Scored, 0, len(list))
	if len(query) == 0 {
		for _, m := range list {
			out = append(out, domain.Scored{Memory: m})
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i].Memory, out[j].Memory
			if a.Confidence != b.Confidence {
				return a.Confidence > b.Confidence
			}
			return a.AccessCount > b.AccessCount
		})
	} else {
		for _, m := range list {
			if len(m.Vector) != len(query) {
				continue
			}
			if sim := domain.CosineSimilarity(query, m.Vector); sim >= threshold {
				out = append(out, domain.Scored{Memory: m, Similarity: sim})
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Recall finds memories related to text and touches every one returned.
func (s *Store) Recall(ctx context.Context, productID, text string, limit int) ([]domain.Scored, error) {
	var query []float32
	if s.Embedder != nil && strings.TrimSpace(text) != "" {
		vec, err := s.Embedder.Embed(ctx, text)
		if err != nil {
			s.log().Warn("recall embedding failed, ranking by confidence",
				zap.String("product_id", productID), zap.Error(err))
		} else {
			query = vec
		}
	}
	found, err := s.FindSimilar(ctx, productID, query, limit, 0)
	if err != nil {
		return nil, err
	}
	for _, sc := range found {
		if err := s.Touch(ctx, sc.Memory.ID); err != nil {
			s.log().Warn("memory touch failed", zap.String("memory_id", sc.Memory.ID), zap.Error(err))
			continue
		}
		sc.Memory.AccessCount++
	}
	return found, nil
}

// Touch records one retrieval of a memory.
func (s *Store) Touch(ctx context.Context, id string) error {
	return s.Repo.Touch(ctx, id, application.NowOr(s.Clock))
}

// Statistics never fails on an empty product; it returns the zero rollup.
func (s *Store) Statistics(ctx context.Context, productID string) (domain.Statistics, error) {
	st, err := s.Repo.Statistics(ctx, productID)
	if err != nil {
		return domain.EmptyStatistics(), fmt.Errorf("memory statistics: %w", err)
	}
	if st.MemoryTypeDistribution == nil {
		st.MemoryTypeDistribution = []domain.TypeCount{}
	}
	return st, nil
}
