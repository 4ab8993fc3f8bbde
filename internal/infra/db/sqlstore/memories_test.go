package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/memory"
)

type MemoryRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo *MemoryRepository
	now  time.Time
}

func (s *MemoryRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.repo = NewMemoryRepository(s.db, Postgres)
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *MemoryRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *MemoryRepoTestSuite) TestSaveEncodesVector() {
	m := &domain.Memory{
		ID: "m1", ProductID: "p1", ContextText: "XSS in search", Type: domain.TypeRiskPattern,
		Vector: []float32{0.5, 1}, Dimension: 2, EmbeddingModel: domain.DefaultEmbeddingModel,
		Confidence: 0.8, Tags: []string{"security-analysis"}, Source: domain.Source{Source: domain.SourceRiskAssessment},
		Active: true, LastAccessed: s.now, CreatedAt: s.now,
	}
	s.mock.ExpectExec(`INSERT INTO ai_memories .* ON CONFLICT \(id\) DO UPDATE SET context_text = EXCLUDED.context_text`).
		WithArgs("m1", "p1", "XSS in search", "risk-pattern", "[0.5,1]", 2, domain.DefaultEmbeddingModel,
			0.8, `["security-analysis"]`, `{"source":"risk-assessment"}`, true, s.now, 0, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Save(context.Background(), m))
}

func (s *MemoryRepoTestSuite) TestListActive() {
	s.mock.ExpectQuery(`FROM ai_memories WHERE product_id = \$1 AND is_active = \$2 ORDER BY id`).
		WithArgs("p1", true).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "product_id", "context_text", "memory_type", "vector", "dimension", "embedding_model",
			"confidence", "tags", "metadata", "is_active", "last_accessed", "access_count", "created_at",
		}).AddRow("m1", "p1", "XSS in search", "risk-pattern", "[0.5,1]", 2, "ada",
			0.9, `["a"]`, `{"source":"user-input","language":"en"}`, true, s.now, 4, s.now))

	out, err := s.repo.ListActive(context.Background(), "p1")
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal([]float32{0.5, 1}, out[0].Vector)
	s.Equal(domain.SourceUserInput, out[0].Source.Source)
	s.Equal(4, out[0].AccessCount)
}

func (s *MemoryRepoTestSuite) TestTouch() {
	s.mock.ExpectExec(`UPDATE ai_memories SET access_count = access_count \+ 1, last_accessed = \$1 WHERE id = \$2`).
		WithArgs(s.now, "m1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.repo.Touch(context.Background(), "m1", s.now))

	s.mock.ExpectExec(`UPDATE ai_memories`).
		WithArgs(s.now, "gone").
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.ErrorIs(s.repo.Touch(context.Background(), "gone", s.now), apperr.ErrNotFound)
}

func (s *MemoryRepoTestSuite) TestStatistics() {
	s.mock.ExpectQuery(`SELECT COUNT\(\*\), AVG\(confidence\), SUM\(access_count\) FROM ai_memories`).
		WithArgs("p1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "sum"}).AddRow(2, 0.75, 9))
	s.mock.ExpectQuery(`GROUP BY memory_type`).
		WithArgs("p1", true).
		WillReturnRows(sqlmock.NewRows([]string{"memory_type", "count"}).
			AddRow("user-feedback", 1).
			AddRow("risk-pattern", 1))

	st, err := s.repo.Statistics(context.Background(), "p1")
	s.Require().NoError(err)
	s.Equal(2, st.TotalMemories)
	s.Equal(0.75, st.AverageConfidence)
	s.Equal(9, st.TotalAccessCount)
	s.Equal([]domain.TypeCount{
		{Type: domain.TypeRiskPattern, Count: 1},
		{Type: domain.TypeUserFeedback, Count: 1},
	}, st.MemoryTypeDistribution)
}

func TestMemoryRepoTestSuite(t *testing.T) {
	suite.Run(t, new(MemoryRepoTestSuite))
}
