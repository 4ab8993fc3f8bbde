package sqlstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/suite"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
)

var assessmentRowCols = []string{
	"id", "product_id", "user_id", "input_data", "status", "risk_score", "risk_level",
	"vulnerabilities", "recommendations", "result_summary", "llm_model", "processing_time_ms",
	"error_message", "metadata", "assessed_at", "created_at", "updated_at",
}

type AssessmentRepoTestSuite struct {
	suite.Suite
	mock sqlmock.Sqlmock
	db   *sql.DB
	repo *AssessmentRepository
	now  time.Time
}

func (s *AssessmentRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	s.Require().NoError(err)
	s.repo = NewAssessmentRepository(s.db, MySQL)
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
}

func (s *AssessmentRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func (s *AssessmentRepoTestSuite) TestSavePending() {
	a := &domain.Assessment{
		ID: "a1", ProductID: "p1", UserID: "u1", Status: domain.StatusPending,
		Input:     domain.Input{AnalysisType: "comprehensive", Focus: "security", Depth: "standard"},
		Timestamp: s.now, CreatedAt: s.now, UpdatedAt: s.now,
	}
	s.mock.ExpectExec(`INSERT INTO risk_assessments .* ON DUPLICATE KEY UPDATE status=VALUES\(status\)`).
		WithArgs("a1", "p1", "u1", sqlmock.AnyArg(), "pending", 0.0, "",
			"[]", "[]", "", "", int64(0), "", sqlmock.AnyArg(), s.now, s.now, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Save(context.Background(), a))
}

func (s *AssessmentRepoTestSuite) TestUpdateCompleted() {
	a := &domain.Assessment{
		ID: "a1", Status: domain.StatusCompleted, RiskScore: 7.5, RiskLevel: domain.RiskHigh,
		Vulnerabilities: []string{"XSS"}, Recommendations: []string{"Escape output"},
		ResultSummary: "High risk", LLMModel: "llama3", ProcessingTimeMS: 1200, UpdatedAt: s.now,
	}
	s.mock.ExpectExec(`UPDATE risk_assessments SET status = \?, risk_score = \?`).
		WithArgs("completed", 7.5, "high", `["XSS"]`, `["Escape output"]`,
			"High risk", "llama3", int64(1200), "", sqlmock.AnyArg(), s.now, "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	s.NoError(s.repo.Update(context.Background(), a))
}

func (s *AssessmentRepoTestSuite) TestUpdateMissing() {
	s.mock.ExpectExec(`UPDATE risk_assessments`).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(`SELECT 1 FROM risk_assessments WHERE id = \?`).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	err := s.repo.Update(context.Background(), &domain.Assessment{ID: "gone", Status: domain.StatusFailed})
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *AssessmentRepoTestSuite) TestGetDecodesJSONColumns() {
	s.mock.ExpectQuery(`FROM risk_assessments WHERE id = \? LIMIT 1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(assessmentRowCols).AddRow(
			"a1", "p1", "u1", `{"analysisType":"quick","focus":"privacy","depth":"basic","includeRecommendations":true}`,
			"completed", 4.2, "medium", `["weak tls"]`, `[]`, "ok", "gpt", int64(10),
			"", `{"requestId":"req-1"}`, s.now, s.now, s.now,
		))

	a, err := s.repo.Get(context.Background(), "a1")
	s.Require().NoError(err)
	s.Equal("quick", a.Input.AnalysisType)
	s.True(a.Input.IncludeRecommendations)
	s.Equal(domain.RiskMedium, a.RiskLevel)
	s.Equal([]string{"weak tls"}, a.Vulnerabilities)
	s.Equal([]string{}, a.Recommendations)
	s.Equal("req-1", a.Metadata.RequestID)
}

func (s *AssessmentRepoTestSuite) TestGetNotFound() {
	s.mock.ExpectQuery(`FROM risk_assessments WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(assessmentRowCols))

	_, err := s.repo.Get(context.Background(), "a404")
	s.ErrorIs(err, apperr.ErrNotFound)
}

func (s *AssessmentRepoTestSuite) TestListByProductNewestFirst() {
	s.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM risk_assessments WHERE product_id = \?`).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	s.mock.ExpectQuery(`ORDER BY assessed_at DESC, created_at DESC, id DESC LIMIT \? OFFSET \?`).
		WithArgs("p1", 10, 10).
		WillReturnRows(sqlmock.NewRows(assessmentRowCols).AddRow(
			"a0", "p1", "u1", `{}`, "failed", 0.0, "low", `[]`, `[]`, "", "", int64(0),
			"Risk analysis failed: timeout", `{}`, s.now, s.now, s.now,
		))

	out, total, err := s.repo.ListByProduct(context.Background(), "p1", 2, 10)
	s.Require().NoError(err)
	s.EqualValues(11, total)
	s.Require().Len(out, 1)
	s.Equal(domain.StatusFailed, out[0].Status)
}

func (s *AssessmentRepoTestSuite) TestStatistics() {
	s.mock.ExpectQuery(`SELECT COUNT\(\*\), AVG\(risk_score\), MAX\(risk_score\), MIN\(risk_score\) FROM risk_assessments WHERE status = \? AND product_id IN \(\?,\?\)`).
		WithArgs("completed", "p1", "p2").
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "max", "min"}).AddRow(3, 5.0, 9.0, 2.0))
	s.mock.ExpectQuery(`SELECT risk_level, COUNT\(\*\) .* GROUP BY risk_level`).
		WithArgs("completed", "p1", "p2").
		WillReturnRows(sqlmock.NewRows([]string{"risk_level", "count"}).
			AddRow("critical", 1).
			AddRow("low", 2))

	st, err := s.repo.Statistics(context.Background(), []string{"p1", "p2"})
	s.Require().NoError(err)
	s.Equal(3, st.TotalAssessments)
	s.Equal(5.0, st.AverageRiskScore)
	s.Equal(9.0, st.MaxRiskScore)
	s.Equal(2.0, st.MinRiskScore)
	s.Equal([]domain.LevelCount{{Level: domain.RiskLow, Count: 2}, {Level: domain.RiskCritical, Count: 1}}, st.RiskLevelDistribution)
}

func (s *AssessmentRepoTestSuite) TestStatisticsWithoutProducts() {
	st, err := s.repo.Statistics(context.Background(), nil)
	s.NoError(err)
	s.Equal(domain.EmptyStatistics(), st)
}

func TestAssessmentRepoTestSuite(t *testing.T) {
	suite.Run(t, new(AssessmentRepoTestSuite))
}
