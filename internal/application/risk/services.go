package risk

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/application"
	"github.com/bryanwahyu/automaton-risk/internal/domain/access"
	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	"github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
	"github.com/bryanwahyu/automaton-risk/internal/domain/identity"
	"github.com/bryanwahyu/automaton-risk/internal/domain/memory"
	"github.com/bryanwahyu/automaton-risk/internal/domain/products"
)

const (
	DefaultConfidence = 0.8
	DefaultPageSize   = 10
	MaxPageSize       = 100
	MaxBatchProducts  = 10
	recallLimit       = 5

	terminalSaveRetries = 3
)

// MemoryStore is the slice of the memory use-cases the orchestrator needs.
type MemoryStore interface {
	Create(ctx context.Context, m *memory.Memory) (*memory.Memory, error)
	Recall(ctx context.Context, productID, text string, limit int) ([]memory.Scored, error)
	Statistics(ctx context.Context, productID string) (memory.Statistics, error)
}

// ReportArchive stores the full report of a completed assessment.
type ReportArchive interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// Recorder receives workflow metrics.
type Recorder interface {
	AnalysisFinished(status, kind string, d time.Duration)
	BatchSubmitted(products int)
	MemoryCreated()
	MemoriesRecalled(n int)
}

// Service orchestrates assessments. Memory, Archive and Metrics are optional.
// Service is safe for concurrent use as long as its ports are.
type Service struct {
	Products    products.Repository
	Assessments assessments.Repository
	Memory      MemoryStore
	Client      analysis.Client
	Archive     ReportArchive
	Metrics     Recorder
	Clock       application.Clock
	Log         *zap.Logger

	// MaxRetries > 0 retries Timeout and ServiceUnavailable submissions with
	// exponential backoff starting at RetryBackoff. Zero keeps a single attempt.
	MaxRetries   int
	RetryBackoff time.Duration
}

func (s *Service) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func (s *Service) now() time.Time { return application.NowOr(s.Clock) }

//
// ==== USE CASES ====
//

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
	SessionID string
}

// AnalyzeCommand untuk trigger analisis satu produk
type AnalyzeCommand struct {
	Options analysis.Options
	Meta    RequestMeta
}

type AnalyzeResult struct {
	Assessment assessments.Summary `json:"riskAssessment"`
	Analysis   *analysis.Result    `json:"analysis,omitempty"`
}

// Analyze runs one assessment of productID on behalf of p. Validation, lookup
// and access failures return before anything is written. Once the assessment
// exists every outcome is persisted; on engine failure the failed summary is
// returned together with the classified error.
func (s *Service) Analyze(ctx context.Context, p identity.Principal, productID string, cmd AnalyzeCommand) (*AnalyzeResult, error) {
	if err := cmd.Options.Validate(); err != nil {
		return nil, err
	}
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, product.Owner, "product"); err != nil {
		return nil, err
	}

	opts := cmd.Options.WithDefaults()
	now := s.now()
	a := &assessments.Assessment{
		ID:        uuid.NewString(),
		ProductID: product.ID,
		UserID:    p.UserID,
		Input: assessments.Input{
			AnalysisType:           string(opts.Type),
			Focus:                  string(opts.Focus),
			Depth:                  string(opts.Depth),
			IncludeRecommendations: opts.Recommendations(),
			Questionnaire:          opts.Questionnaire,
			ComplianceRequirements: opts.ComplianceRequirements,
		},
		Status:    assessments.StatusPending,
		RiskLevel: assessments.RiskLow,
		Metadata: assessments.Metadata{
			RequestID: cmd.Meta.RequestID,
			IPAddress: cmd.Meta.IPAddress,
			UserAgent: cmd.Meta.UserAgent,
			SessionID: cmd.Meta.SessionID,
		},
		Timestamp: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Assessments.Save(ctx, a); err != nil {
		return nil, fmt.Errorf("save assessment: %w", err)
	}

	// From here on the row must reach a terminal state even if the caller
	// goes away.
	persistCtx := context.WithoutCancel(ctx)
	proc := *a
	if err := proc.Transition(assessments.StatusProcessing, s.now()); err != nil {
		return nil, err
	}
	if err := s.Assessments.Update(persistCtx, &proc); err != nil {
		// the row is still pending; pending -> failed is a legal move
		return s.fail(persistCtx, a, apperr.Wrap(err, apperr.KindInternal, "mark processing"), 0)
	}
	*a = proc

	opts.PreviousAssessments = append(opts.PreviousAssessments, s.recall(ctx, product)...)
	opts.UserID = p.UserID
	opts.ProductID = product.ID
	opts.SessionID = cmd.Meta.SessionID

	start := time.Now()
	res, subErr := s.submit(ctx, toInput(product), opts)
	elapsed := time.Since(start)

	if subErr != nil {
		return s.fail(persistCtx, a, subErr, elapsed)
	}
	return s.complete(persistCtx, a, product, res, elapsed)
}

func (s *Service) complete(ctx context.Context, a *assessments.Assessment, product *products.Product, res *analysis.Result, elapsed time.Duration) (*AnalyzeResult, error) {
	res.RiskScore = assessments.ClampScore(res.RiskScore)
	level := assessments.ParseRiskLevel(res.RiskLevel)
	res.RiskLevel = string(level)
	conf := confidence(res.Confidence)
	res.Confidence = &conf

	a.ResultSummary = res.Summary
	a.Vulnerabilities = nonNil(res.Vulnerabilities)
	a.Recommendations = nonNil(res.Recommendations)
	a.RiskScore = res.RiskScore
	a.RiskLevel = level
	a.ProcessingTimeMS = res.ProcessingTimeMS
	a.LLMModel = res.Model
	if res.RequestID != "" {
		a.Metadata.RequestID = res.RequestID
	}
	a.Metadata.Model = res.Model

	now := s.now()
	if err := a.Transition(assessments.StatusCompleted, now); err != nil {
		return nil, err
	}
	if err := s.saveTerminal(ctx, a); err != nil {
		return nil, fmt.Errorf("save completed assessment: %w", err)
	}
	if err := s.Products.MarkAnalyzed(ctx, product.ID, now); err != nil {
		s.log().Error("mark product analyzed failed", zap.String("product_id", product.ID), zap.Error(err))
	}
	s.remember(ctx, a, product, res)
	s.archive(ctx, a, res)

	if s.Metrics != nil {
		s.Metrics.AnalysisFinished(string(assessments.StatusCompleted), "", elapsed)
	}
	s.log().Info("assessment completed",
		zap.String("assessment_id", a.ID),
		zap.String("product_id", a.ProductID),
		zap.Float64("risk_score", a.RiskScore),
		zap.String("risk_level", string(a.RiskLevel)),
		zap.Duration("elapsed", elapsed),
	)
	return &AnalyzeResult{Assessment: a.Summary(), Analysis: res}, nil
}

func (s *Service) fail(ctx context.Context, a *assessments.Assessment, cause error, elapsed time.Duration) (*AnalyzeResult, error) {
	kind := apperr.KindOf(cause)
	msg := apperr.MessageOf(cause)
	a.ErrorMessage = msg
	if err := a.Transition(assessments.StatusFailed, s.now()); err != nil {
		return nil, err
	}
	if err := s.saveTerminal(ctx, a); err != nil {
		s.log().Error("save failed assessment failed", zap.String("assessment_id", a.ID), zap.Error(err))
	}
	if s.Metrics != nil {
		s.Metrics.AnalysisFinished(string(assessments.StatusFailed), string(kind), elapsed)
	}
	s.log().Warn("assessment failed",
		zap.String("assessment_id", a.ID),
		zap.String("product_id", a.ProductID),
		zap.String("kind", string(kind)),
		zap.Error(cause),
	)
	return &AnalyzeResult{Assessment: a.Summary()},
		apperr.Wrap(cause, kind, "Risk analysis failed: "+msg)
}

// saveTerminal persists a completed or failed assessment, retrying a few
// times so a transient store error does not leave the row processing.
func (s *Service) saveTerminal(ctx context.Context, a *assessments.Assessment) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.RetryBackoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 100 * time.Millisecond
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, terminalSaveRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := s.Assessments.Update(ctx, a)
		if apperr.KindOf(err) == apperr.KindNotFound {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		s.log().Warn("retrying assessment save", zap.String("assessment_id", a.ID), zap.Duration("wait", wait), zap.Error(err))
	})
}

// submit calls the engine, retrying only retryable classes when enabled.
func (s *Service) submit(ctx context.Context, in analysis.ProductInput, opts analysis.Options) (*analysis.Result, error) {
	if s.MaxRetries <= 0 {
		return s.Client.Submit(ctx, in, opts)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.RetryBackoff
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = 500 * time.Millisecond
	}
	eb.Multiplier = 2
	eb.RandomizationFactor = 0

	var (
		res     *analysis.Result
		lastErr error
	)
	op := func() error {
		r, err := s.Client.Submit(ctx, in, opts)
		if err != nil {
			lastErr = err
			if !apperr.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		res = r
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.log().Info("retrying analysis", zap.Duration("wait", wait), zap.Error(err))
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.MaxRetries)), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		// a cancelled wait surfaces the context error; keep the engine's classification
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return res, nil
}

// recall returns context text of similar past analyses. Best effort.
func (s *Service) recall(ctx context.Context, product *products.Product) []string {
	if s.Memory == nil {
		return nil
	}
	found, err := s.Memory.Recall(ctx, product.ID, product.Name+"\n"+product.Description, recallLimit)
	if err != nil {
		s.log().Warn("memory recall failed", zap.String("product_id", product.ID), zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(found))
	for _, sc := range found {
		out = append(out, sc.Memory.ContextText)
	}
	if s.Metrics != nil && len(out) > 0 {
		s.Metrics.MemoriesRecalled(len(out))
	}
	return out
}

func (s *Service) remember(ctx context.Context, a *assessments.Assessment, product *products.Product, res *analysis.Result) {
	if s.Memory == nil || strings.TrimSpace(res.Summary) == "" {
		return
	}
	conf := confidence(res.Confidence)
	text := res.Summary
	if r := []rune(text); len(r) > memory.MaxContextLength {
		text = string(r[:memory.MaxContextLength])
	}
	m := &memory.Memory{
		ProductID:   product.ID,
		ContextText: text,
		Type:        memory.TypeRiskPattern,
		Confidence:  conf,
		Tags:        []string{"security-analysis", string(product.Category), string(a.RiskLevel)},
		Source:      memory.Source{Source: memory.SourceRiskAssessment, Version: "1.0", Language: "en"},
	}
	if _, err := s.Memory.Create(ctx, m); err != nil {
		s.log().Error("store memory failed", zap.String("assessment_id", a.ID), zap.Error(err))
		return
	}
	if s.Metrics != nil {
		s.Metrics.MemoryCreated()
	}
}

func (s *Service) archive(ctx context.Context, a *assessments.Assessment, res *analysis.Result) {
	if s.Archive == nil {
		return
	}
	key := fmt.Sprintf("reports/%s/%s.json", a.ProductID, a.ID)
	doc := map[string]any{"assessment": a, "analysis": res}
	if _, err := s.Archive.PutJSON(ctx, key, doc); err != nil {
		s.log().Warn("archive report failed", zap.String("assessment_id", a.ID), zap.Error(err))
	}
}

// BatchCommand untuk batch analyze
type BatchCommand struct {
	ProductIDs []string
	Options    analysis.Options
}

type BatchAnalyzeResult struct {
	BatchID          string             `json:"batchId"`
	ProductsAnalyzed int                `json:"productsAnalyzed"`
	Status           assessments.Status `json:"status"`
}

// BatchAnalyze submits several products at once. Every id must exist and be
// accessible to p, otherwise nothing is sent.
func (s *Service) BatchAnalyze(ctx context.Context, p identity.Principal, cmd BatchCommand) (*BatchAnalyzeResult, error) {
	ids := dedupe(cmd.ProductIDs)
	if len(ids) == 0 {
		return nil, apperr.Validation(map[string]string{"productIds": "Product IDs are required"})
	}
	if len(ids) > MaxBatchProducts {
		return nil, apperr.Validation(map[string]string{"productIds": fmt.Sprintf("must contain between 1 and %d products", MaxBatchProducts)})
	}
	if err := cmd.Options.Validate(); err != nil {
		return nil, err
	}

	found, err := s.Products.FindByIDs(ctx, ids, access.Scope(p))
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	if len(found) != len(ids) {
		return nil, apperr.New(apperr.KindNotFound, "Some products not found or access denied")
	}

	inputs := make([]analysis.ProductInput, 0, len(found))
	for _, prod := range found {
		inputs = append(inputs, toInput(prod))
	}
	opts := cmd.Options.WithDefaults()
	opts.UserID = p.UserID
	res, err := s.Client.BatchSubmit(ctx, inputs, opts)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindOf(err), "Batch analysis failed: "+apperr.MessageOf(err))
	}
	if s.Metrics != nil {
		s.Metrics.BatchSubmitted(len(inputs))
	}
	s.log().Info("batch analysis submitted", zap.String("batch_id", res.BatchID), zap.Int("products", len(inputs)))
	return &BatchAnalyzeResult{BatchID: res.BatchID, ProductsAnalyzed: len(found), Status: assessments.StatusProcessing}, nil
}

type Pagination struct {
	CurrentPage      int   `json:"currentPage"`
	TotalPages       int   `json:"totalPages"`
	TotalAssessments int64 `json:"totalAssessments"`
	HasNext          bool  `json:"hasNext"`
	HasPrev          bool  `json:"hasPrev"`
}

type HistoryResult struct {
	Assessments []*assessments.Assessment `json:"riskAssessments"`
	Statistics  assessments.Statistics    `json:"statistics"`
	Pagination  Pagination                `json:"pagination"`
}

// History lists a product's assessments newest first.
func (s *Service) History(ctx context.Context, p identity.Principal, productID string, page, limit int) (*HistoryResult, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, product.Owner, "product"); err != nil {
		return nil, err
	}
	page, limit = NormalizePage(page, limit)

	list, total, err := s.Assessments.ListByProduct(ctx, product.ID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list assessments: %w", err)
	}
	st, err := s.Assessments.Statistics(ctx, []string{product.ID})
	if err != nil {
		return nil, fmt.Errorf("assessment statistics: %w", err)
	}
	if st.RiskLevelDistribution == nil {
		st.RiskLevelDistribution = []assessments.LevelCount{}
	}
	if list == nil {
		list = []*assessments.Assessment{}
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &HistoryResult{
		Assessments: list,
		Statistics:  st,
		Pagination: Pagination{
			CurrentPage:      page,
			TotalPages:       totalPages,
			TotalAssessments: total,
			HasNext:          page < totalPages,
			HasPrev:          page > 1,
		},
	}, nil
}

// Get returns one assessment; access is decided by its product's owner.
func (s *Service) Get(ctx context.Context, p identity.Principal, assessmentID string) (*assessments.Assessment, error) {
	a, err := s.Assessments.Get(ctx, assessmentID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("Risk assessment")
		}
		return nil, fmt.Errorf("get assessment: %w", err)
	}
	product, err := s.Products.Get(ctx, a.ProductID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.AccessDenied("assessment")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if err := access.Require(p, product.Owner, "assessment"); err != nil {
		return nil, err
	}
	return a, nil
}

type StatisticsResult struct {
	RiskStatistics   assessments.Statistics `json:"riskStatistics"`
	MemoryStatistics memory.Statistics      `json:"memoryStatistics"`
}

// Statistics returns zeroed rollups, never an error, for a product with no data.
func (s *Service) Statistics(ctx context.Context, p identity.Principal, productID string) (*StatisticsResult, error) {
	product, err := s.loadProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := access.Require(p, product.Owner, "product"); err != nil {
		return nil, err
	}
	out := &StatisticsResult{
		RiskStatistics:   assessments.EmptyStatistics(),
		MemoryStatistics: memory.EmptyStatistics(),
	}
	st, err := s.Assessments.Statistics(ctx, []string{product.ID})
	if err != nil {
		return nil, fmt.Errorf("assessment statistics: %w", err)
	}
	if st.RiskLevelDistribution == nil {
		st.RiskLevelDistribution = []assessments.LevelCount{}
	}
	out.RiskStatistics = st
	if s.Memory != nil {
		ms, err := s.Memory.Statistics(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		out.MemoryStatistics = ms
	}
	return out, nil
}

type HealthResult struct {
	LLMService analysis.Health `json:"llmService"`
	Timestamp  time.Time       `json:"timestamp"`
}

// ServiceHealth never fails.
func (s *Service) ServiceHealth(ctx context.Context) HealthResult {
	return HealthResult{LLMService: s.Client.HealthCheck(ctx), Timestamp: s.now()}
}

// Models passes the engine's model catalog through.
func (s *Service) Models(ctx context.Context) (map[string]any, error) {
	m, err := s.Client.ListModels(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindOf(err), "Failed to get models: "+apperr.MessageOf(err))
	}
	return m, nil
}

// AnalysisStatus asks the engine about a request it accepted earlier.
func (s *Service) AnalysisStatus(ctx context.Context, requestID string) (map[string]any, error) {
	st, err := s.Client.Status(ctx, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindOf(err), "Failed to get analysis status: "+apperr.MessageOf(err))
	}
	return st, nil
}

// NormalizePage applies history defaults: page 1, limit 10, limit capped at 100.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

func (s *Service) loadProduct(ctx context.Context, id string) (*products.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.NotFound("Product")
	}
	p, err := s.Products.Get(ctx, id)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, apperr.NotFound("Product")
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	if !p.Active {
		return nil, apperr.NotFound("Product")
	}
	return p, nil
}

func toInput(p *products.Product) analysis.ProductInput {
	return analysis.ProductInput{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    string(p.Category),
		Technology:  p.Technology,
		Version:     p.Version,
	}
}

// confidence bounds the engine's value to [0,1]; missing or NaN means DefaultConfidence.
func confidence(v *float64) float64 {
	switch {
	case v == nil || math.IsNaN(*v):
		return DefaultConfidence
	case *v < 0:
		return 0
	case *v > 1:
		return 1
	}
	return *v
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
