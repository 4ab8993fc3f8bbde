package risk

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	memapp "github.com/bryanwahyu/automaton-risk/internal/application/memory"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/memory"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
	"github.com/bryanwahyu/automaton-risk/internal/infra/db/memstore"
)

type mockClient struct{ mock.Mock }

func (m *mockClient) Submit(ctx context.Context, p analysis.ProductInput, o analysis.Options) (*analysis.Result, error) {
	args := m.Called(ctx, p, o)
	r, _ := args.Get(0).(*analysis.Result)
	return r, args.Error(1)
}

func (m *mockClient) Status(ctx context.Context, id string) (map[string]any, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(map[string]any)
	return r, args.Error(1)
}

func (m *mockClient) ListModels(ctx context.Context) (map[string]any, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(map[string]any)
	return r, args.Error(1)
}

func (m *mockClient) HealthCheck(ctx context.Context) analysis.Health {
	return m.Called(ctx).Get(0).(analysis.Health)
}

func (m *mockClient) BatchSubmit(ctx context.Context, ps []analysis.ProductInput, o analysis.Options) (*analysis.BatchResult, error) {
	args := m.Called(ctx, ps, o)
	r, _ := args.Get(0).(*analysis.BatchResult)
	return r, args.Error(1)
}

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

var (
	u1    = identity.Principal{UserID: "u1", Role: identity.RoleIndividual}
	u2    = identity.Principal{UserID: "u2", Role: identity.RoleIndividual}
	admin = identity.Principal{UserID: "adm", Role: identity.RoleOrganizationAdmin, OrganizationID: "acme"}
)

type fixture struct {
	svc         *Service
	client      *mockClient
	products    *memstore.ProductRepo
	assessments *memstore.AssessmentRepo
	memories    *memstore.MemoryRepo
	clock       *application.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		client:      &mockClient{},
		products:    memstore.NewProductRepo(),
		assessments: memstore.NewAssessmentRepo(),
		memories:    memstore.NewMemoryRepo(),
		clock:       application.NewFixedClock(t0),
	}
	f.svc = &Service{
		Products:     f.products,
		Assessments:  f.assessments,
		Memory:       &memapp.Store{Repo: f.memories, Clock: f.clock},
		Client:       f.client,
		Clock:        f.clock,
		RetryBackoff: time.Millisecond,
	}
	f.addProduct(t, "p1", products.UserOwner{UserID: "u1"})
	return f
}

func (f *fixture) addProduct(t *testing.T, id string, owner products.Owner) {
	t.Helper()
	require.NoError(t, f.products.Save(context.Background(), &products.Product{
		ID: id, Name: "Product " + id, Description: "An LLM powered support bot",
		Category: products.CategoryAPI, Owner: owner, Active: true, CreatedAt: t0,
	}))
}

func okResult() *analysis.Result {
	conf := 0.9
	return &analysis.Result{
		Summary:         "Prompt injection exposure in retrieval layer",
		Vulnerabilities: []string{"prompt injection", "data leakage"},
		Recommendations: []string{"sanitize retrieved context"},
		RiskScore:       8.5,
		RiskLevel:       "high",
		Model:           "llama3-70b",
		Confidence:      &conf,
		RequestID:       "req-1",
	}
}

func TestAnalyzeAccessDeniedCreatesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Analyze(context.Background(), u2, "p1", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrAccessDenied)
	assert.Equal(t, 0, f.assessments.Count())
	f.client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeUnknownProduct(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Analyze(context.Background(), u1, "nope", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Product not found", apperr.MessageOf(err))
	assert.Equal(t, 0, f.assessments.Count())
}

func TestAnalyzeInvalidOptionsWritesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{Options: analysis.Options{Depth: "shallow"}})
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, 0, f.assessments.Count())
}

func TestAnalyzeServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.New(apperr.KindServiceUnavailable, "LLM service is unavailable. Please try again later.")).Once()

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrServiceUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, assessments.StatusFailed, res.Assessment.Status)
	assert.Nil(t, res.Analysis)

	stored, gerr := f.assessments.Get(context.Background(), res.Assessment.ID)
	require.NoError(t, gerr)
	assert.Equal(t, assessments.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "unavailable")

	assert.Empty(t, f.memories.ByProduct("p1"))
	p, _ := f.products.Get(context.Background(), "p1")
	assert.Nil(t, p.LastAnalyzed)
	f.client.AssertNumberOfCalls(t, "Submit", 1)
}

func TestAnalyzeSuccess(t *testing.T) {
	f := newFixture(t)
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(okResult(), nil).Once()

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{
		Meta: RequestMeta{IPAddress: "10.0.0.7", UserAgent: "curl/8", SessionID: "sess-9"},
	})
	require.NoError(t, err)
	assert.Equal(t, assessments.StatusCompleted, res.Assessment.Status)
	assert.Equal(t, 8.5, res.Assessment.RiskScore)
	assert.Equal(t, assessments.RiskHigh, res.Assessment.RiskLevel)
	assert.Equal(t, 2, res.Assessment.VulnerabilityCount)
	require.NotNil(t, res.Analysis)

	stored, err := f.assessments.Get(context.Background(), res.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.UserID)
	assert.Equal(t, "llama3-70b", stored.LLMModel)
	assert.Equal(t, "req-1", stored.Metadata.RequestID)
	assert.Equal(t, "sess-9", stored.Metadata.SessionID)
	assert.Equal(t, "comprehensive", stored.Input.AnalysisType)
	assert.True(t, stored.Input.IncludeRecommendations)

	mems := f.memories.ByProduct("p1")
	require.Len(t, mems, 1)
	assert.Equal(t, memory.TypeRiskPattern, mems[0].Type)
	assert.Equal(t, 0.9, mems[0].Confidence)
	assert.Equal(t, []string{"security-analysis", "api", "high"}, mems[0].Tags)

	p, _ := f.products.Get(context.Background(), "p1")
	require.NotNil(t, p.LastAnalyzed)
	assert.Equal(t, t0, *p.LastAnalyzed)
}

func TestAnalyzeDefaultsConfidenceAndClampsScore(t *testing.T) {
	f := newFixture(t)
	r := okResult()
	r.Confidence = nil
	r.RiskScore = 14
	r.RiskLevel = "catastrophic"
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(r, nil).Once()

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.NoError(t, err)
	assert.Equal(t, 10.0, res.Assessment.RiskScore)
	assert.Equal(t, assessments.RiskLow, res.Assessment.RiskLevel)

	mems := f.memories.ByProduct("p1")
	require.Len(t, mems, 1)
	assert.Equal(t, DefaultConfidence, mems[0].Confidence)
}

func TestAnalyzeBoundsEngineConfidence(t *testing.T) {
	cases := map[string]struct {
		in   float64
		want float64
	}{
		"above one": {in: 1.5, want: 1},
		"negative":  {in: -0.2, want: 0},
		"nan":       {in: math.NaN(), want: DefaultConfidence},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			r := okResult()
			r.Confidence = &tc.in
			f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(r, nil).Once()

			res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
			require.NoError(t, err)
			assert.Equal(t, assessments.StatusCompleted, res.Assessment.Status)
			require.NotNil(t, res.Analysis.Confidence)
			assert.Equal(t, tc.want, *res.Analysis.Confidence)

			mems := f.memories.ByProduct("p1")
			require.Len(t, mems, 1)
			assert.Equal(t, memory.TypeRiskPattern, mems[0].Type)
			assert.Equal(t, tc.want, mems[0].Confidence)
		})
	}
}

// flakyAssessments fails the next failUpdates calls to Update.
type flakyAssessments struct {
	*memstore.AssessmentRepo
	failUpdates int
}

func (r *flakyAssessments) Update(ctx context.Context, a *assessments.Assessment) error {
	if r.failUpdates > 0 {
		r.failUpdates--
		return errors.New("connection reset")
	}
	return r.AssessmentRepo.Update(ctx, a)
}

func TestAnalyzeMarkProcessingFailureEndsFailed(t *testing.T) {
	f := newFixture(t)
	f.svc.Assessments = &flakyAssessments{AssessmentRepo: f.assessments, failUpdates: 1}

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	require.NotNil(t, res)

	stored, gerr := f.assessments.Get(context.Background(), res.Assessment.ID)
	require.NoError(t, gerr)
	assert.Equal(t, assessments.StatusFailed, stored.Status)
	f.client.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeRetriesTerminalSave(t *testing.T) {
	f := newFixture(t)
	flaky := &flakyAssessments{AssessmentRepo: f.assessments}
	f.svc.Assessments = flaky
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { flaky.failUpdates = 2 }).
		Return(nil, apperr.New(apperr.KindServiceUnavailable, "LLM service is unavailable. Please try again later.")).Once()

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrServiceUnavailable)
	stored, gerr := f.assessments.Get(context.Background(), res.Assessment.ID)
	require.NoError(t, gerr)
	assert.Equal(t, assessments.StatusFailed, stored.Status)
	assert.Zero(t, flaky.failUpdates)
}

func TestAnalyzeIsNotIdempotent(t *testing.T) {
	f := newFixture(t)
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(okResult(), nil).Twice()

	a, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.NoError(t, err)
	b, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.NoError(t, err)

	assert.NotEqual(t, a.Assessment.ID, b.Assessment.ID)
	assert.Equal(t, 2, f.assessments.Count())
}

func TestAnalyzeFeedsRecalledMemories(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Memory.Create(context.Background(), &memory.Memory{
		ProductID: "p1", ContextText: "earlier: weak tenant isolation", Type: memory.TypeRiskPattern, Confidence: 0.9,
	})
	require.NoError(t, err)

	f.client.On("Submit", mock.Anything, mock.Anything, mock.MatchedBy(func(o analysis.Options) bool {
		return len(o.PreviousAssessments) == 2 &&
			o.PreviousAssessments[0] == "from caller" &&
			o.PreviousAssessments[1] == "earlier: weak tenant isolation" &&
			o.UserID == "u1" && o.ProductID == "p1"
	})).Return(okResult(), nil).Once()

	_, err = f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{
		Options: analysis.Options{PreviousAssessments: []string{"from caller"}},
	})
	require.NoError(t, err)
	f.client.AssertExpectations(t)
}

func TestAnalyzeRetriesOnlyWhenEnabled(t *testing.T) {
	f := newFixture(t)
	f.svc.MaxRetries = 2
	timeout := apperr.New(apperr.KindTimeout, "Analysis request timed out. Please try again.")
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(nil, timeout).Twice()
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(okResult(), nil).Once()

	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.NoError(t, err)
	assert.Equal(t, assessments.StatusCompleted, res.Assessment.Status)
	f.client.AssertNumberOfCalls(t, "Submit", 3)
}

func TestAnalyzeDoesNotRetryInvalidRequest(t *testing.T) {
	f := newFixture(t)
	f.svc.MaxRetries = 3
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, apperr.New(apperr.KindInvalidRequest, "Invalid request: bad questionnaire")).Once()

	_, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrInvalidRequest)
	assert.Equal(t, "Risk analysis failed: Invalid request: bad questionnaire", apperr.MessageOf(err))
	f.client.AssertNumberOfCalls(t, "Submit", 1)
}

func TestAnalyzePersistsTerminalStateAfterCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return(nil, apperr.New(apperr.KindTimeout, "Analysis request timed out. Please try again.")).Once()

	res, err := f.svc.Analyze(ctx, u1, "p1", AnalyzeCommand{})
	require.ErrorIs(t, err, apperr.ErrTimeout)
	stored, gerr := f.assessments.Get(context.Background(), res.Assessment.ID)
	require.NoError(t, gerr)
	assert.Equal(t, assessments.StatusFailed, stored.Status)
}

func TestBatchRejectsForeignProductBeforeSubmit(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "org-1", products.OrganizationOwner{OrganizationID: "acme"})
	f.addProduct(t, "org-2", products.OrganizationOwner{OrganizationID: "acme"})
	f.addProduct(t, "foreign", products.OrganizationOwner{OrganizationID: "globex"})

	_, err := f.svc.BatchAnalyze(context.Background(), admin, BatchCommand{ProductIDs: []string{"org-1", "org-2", "foreign"}})
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Some products not found or access denied", apperr.MessageOf(err))
	f.client.AssertNotCalled(t, "BatchSubmit", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchSubmits(t *testing.T) {
	f := newFixture(t)
	f.addProduct(t, "org-1", products.OrganizationOwner{OrganizationID: "acme"})
	f.addProduct(t, "mine", products.UserOwner{UserID: "adm"})
	f.client.On("BatchSubmit", mock.Anything, mock.MatchedBy(func(ps []analysis.ProductInput) bool { return len(ps) == 2 }), mock.Anything).
		Return(&analysis.BatchResult{BatchID: "batch_1"}, nil).Once()

	res, err := f.svc.BatchAnalyze(context.Background(), admin, BatchCommand{ProductIDs: []string{"org-1", "mine", "mine"}})
	require.NoError(t, err)
	assert.Equal(t, "batch_1", res.BatchID)
	assert.Equal(t, 2, res.ProductsAnalyzed)
	assert.Equal(t, assessments.StatusProcessing, res.Status)
}

func TestBatchValidatesSize(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BatchAnalyze(context.Background(), u1, BatchCommand{})
	require.ErrorIs(t, err, apperr.ErrValidation)

	ids := make([]string, MaxBatchProducts+1)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	_, err = f.svc.BatchAnalyze(context.Background(), u1, BatchCommand{ProductIDs: ids})
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestHistoryPagination(t *testing.T) {
	f := newFixture(t)
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(okResult(), nil)
	for i := 0; i < 3; i++ {
		_, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	h, err := f.svc.History(context.Background(), u1, "p1", 1, 2)
	require.NoError(t, err)
	assert.Len(t, h.Assessments, 2)
	assert.True(t, h.Assessments[0].Timestamp.After(h.Assessments[1].Timestamp))
	assert.Equal(t, Pagination{CurrentPage: 1, TotalPages: 2, TotalAssessments: 3, HasNext: true, HasPrev: false}, h.Pagination)
	assert.Equal(t, 3, h.Statistics.TotalAssessments)

	_, err = f.svc.History(context.Background(), u2, "p1", 1, 10)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestStatisticsZeroDefaults(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Statistics(context.Background(), u1, "p1")
	require.NoError(t, err)
	assert.Equal(t, 0, st.RiskStatistics.TotalAssessments)
	assert.Equal(t, 0.0, st.RiskStatistics.AverageRiskScore)
	assert.NotNil(t, st.RiskStatistics.RiskLevelDistribution)
	assert.Empty(t, st.RiskStatistics.RiskLevelDistribution)
	assert.Equal(t, 0, st.MemoryStatistics.TotalMemories)
}

func TestGetChecksProductOwner(t *testing.T) {
	f := newFixture(t)
	f.client.On("Submit", mock.Anything, mock.Anything, mock.Anything).Return(okResult(), nil).Once()
	res, err := f.svc.Analyze(context.Background(), u1, "p1", AnalyzeCommand{})
	require.NoError(t, err)

	a, err := f.svc.Get(context.Background(), u1, res.Assessment.ID)
	require.NoError(t, err)
	assert.Equal(t, "p1", a.ProductID)

	_, err = f.svc.Get(context.Background(), u2, res.Assessment.ID)
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	assert.Equal(t, "Access denied to this assessment", apperr.MessageOf(err))

	_, err = f.svc.Get(context.Background(), u1, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Risk assessment not found", apperr.MessageOf(err))
}

func TestServiceHealthAndModels(t *testing.T) {
	f := newFixture(t)
	f.client.On("HealthCheck", mock.Anything).Return(analysis.Health{Healthy: false, Error: "connection refused"})
	f.client.On("ListModels", mock.Anything).Return(nil, apperr.New(apperr.KindServiceUnavailable, "LLM service is unavailable. Please try again later."))

	h := f.svc.ServiceHealth(context.Background())
	assert.False(t, h.LLMService.Healthy)
	assert.Equal(t, t0, h.Timestamp)

	_, err := f.svc.Models(context.Background())
	assert.ErrorIs(t, err, apperr.ErrServiceUnavailable)
}

func TestAnalysisStatus(t *testing.T) {
	f := newFixture(t)
	f.client.On("Status", mock.Anything, "req-1").Return(map[string]any{"status": "completed"}, nil)
	f.client.On("Status", mock.Anything, "req-2").Return(nil, apperr.New(apperr.KindNotFound, "Resource not found"))

	st, err := f.svc.AnalysisStatus(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", st["status"])

	_, err = f.svc.AnalysisStatus(context.Background(), "req-2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "Failed to get analysis status: Resource not found", apperr.MessageOf(err))
}

func TestNormalizePage(t *testing.T) {
	p, l := NormalizePage(0, 0)
	assert.Equal(t, 1, p)
	assert.Equal(t, DefaultPageSize, l)
	_, l = NormalizePage(2, 1000)
	assert.Equal(t, MaxPageSize, l)
}
