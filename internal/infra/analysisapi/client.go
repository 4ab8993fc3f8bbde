// Package analysisapi talks JSON over HTTP to the external analysis engine and
// classifies every failure into the apperr taxonomy.
package analysisapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/automaton-risk/internal/domain/analysis"
	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "Automaton-Risk/1.0"

	// cap on error bodies read for a server message
	maxErrorBody = 64 << 10
)

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
	log       *zap.Logger
	now       func() time.Time
}

func New(cfg Config, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid analysis base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:   u.String(),
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
		log:       log.Named("analysis"),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

var _ analysis.Client = (*Client)(nil)

type analyzeRequest struct {
	Product       productPayload `json:"product"`
	Analysis      optionsPayload `json:"analysis"`
	Questionnaire map[string]any `json:"questionnaire"`
	Context       contextPayload `json:"context"`
	Metadata      metaPayload    `json:"metadata"`
}

type productPayload struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Technology  string `json:"technology,omitempty"`
	Version     string `json:"version,omitempty"`
}

type optionsPayload struct {
	Type                   string `json:"type"`
	Focus                  string `json:"focus"`
	Depth                  string `json:"depth"`
	IncludeRecommendations *bool  `json:"includeRecommendations,omitempty"`
}

type contextPayload struct {
	PreviousAssessments    []string       `json:"previousAssessments"`
	OrganizationProfile    map[string]any `json:"organizationProfile"`
	ComplianceRequirements []string       `json:"complianceRequirements"`
}

type metaPayload struct {
	UserID    string  `json:"userId,omitempty"`
	ProductID string  `json:"productId,omitempty"`
	BatchID   string  `json:"batchId,omitempty"`
	Timestamp string  `json:"timestamp"`
	SessionID *string `json:"sessionId,omitempty"`
}

type analyzeResponse struct {
	Success         bool     `json:"success"`
	Message         string   `json:"message"`
	Summary         string   `json:"summary"`
	Vulnerabilities []string `json:"vulnerabilities"`
	Recommendations []string `json:"recommendations"`
	RiskScore       float64  `json:"riskScore"`
	RiskLevel       string   `json:"riskLevel"`
	ProcessingTime  float64  `json:"processingTime"`
	Model           string   `json:"model"`
	Confidence      *float64 `json:"confidence"`
	RequestID       string   `json:"requestId"`
	Timestamp       string   `json:"timestamp"`
}

func (c *Client) Submit(ctx context.Context, product analysis.ProductInput, opts analysis.Options) (*analysis.Result, error) {
	opts = opts.WithDefaults()
	req := analyzeRequest{
		Product: productPayload{
			Name:        product.Name,
			Description: product.Description,
			Category:    product.Category,
			Technology:  product.Technology,
			Version:     product.Version,
		},
		Analysis: optionsPayload{
			Type:                   string(opts.Type),
			Focus:                  string(opts.Focus),
			Depth:                  string(opts.Depth),
			IncludeRecommendations: opts.IncludeRecommendations,
		},
		Questionnaire: orEmptyMap(opts.Questionnaire),
		Context: contextPayload{
			PreviousAssessments:    orEmpty(opts.PreviousAssessments),
			OrganizationProfile:    opts.OrganizationProfile,
			ComplianceRequirements: orEmpty(opts.ComplianceRequirements),
		},
		Metadata: metaPayload{
			UserID:    opts.UserID,
			ProductID: firstNonEmpty(opts.ProductID, product.ID),
			Timestamp: c.now().Format(time.RFC3339Nano),
			SessionID: optional(opts.SessionID),
		},
	}

	c.log.Debug("sending analysis request",
		zap.String("product", product.Name), zap.String("type", string(opts.Type)))

	var resp analyzeResponse
	if err := c.do(ctx, http.MethodPost, "/analyze", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, apperr.New(apperr.KindAnalysisFailed, "Analysis failed: Invalid response from analysis service")
	}

	res := &analysis.Result{
		Summary:          resp.Summary,
		Vulnerabilities:  orEmpty(resp.Vulnerabilities),
		Recommendations:  orEmpty(resp.Recommendations),
		RiskScore:        resp.RiskScore,
		RiskLevel:        resp.RiskLevel,
		ProcessingTimeMS: int64(resp.ProcessingTime),
		Model:            resp.Model,
		Confidence:       resp.Confidence,
		RequestID:        resp.RequestID,
		Timestamp:        c.now(),
	}
	if res.Summary == "" {
		res.Summary = "Analysis completed"
	}
	if res.RiskLevel == "" {
		res.RiskLevel = "low"
	}
	if res.Model == "" {
		res.Model = "unknown"
	}
	if t, err := time.Parse(time.RFC3339Nano, resp.Timestamp); err == nil {
		res.Timestamp = t
	}
	return res, nil
}

func (c *Client) Status(ctx context.Context, requestID string) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/status/"+url.PathEscape(requestID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListModels(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/models", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HealthCheck never returns an error; any failure reads as unhealthy.
func (c *Client) HealthCheck(ctx context.Context) analysis.Health {
	details := map[string]any{}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &details); err != nil {
		c.log.Warn("analysis health check failed", zap.Error(err))
		return analysis.Health{Healthy: false, Status: "unhealthy", Error: apperr.MessageOf(err), Timestamp: c.now()}
	}
	return analysis.Health{Healthy: true, Status: "healthy", Details: details, Timestamp: c.now()}
}

type batchRequest struct {
	Products []productPayload `json:"products"`
	Analysis optionsPayload   `json:"analysis"`
	Metadata metaPayload      `json:"metadata"`
}

func (c *Client) BatchSubmit(ctx context.Context, products []analysis.ProductInput, opts analysis.Options) (*analysis.BatchResult, error) {
	opts = opts.WithDefaults()
	now := c.now()
	batchID := opts.BatchID
	if batchID == "" {
		batchID = fmt.Sprintf("batch_%d", now.UnixMilli())
	}
	req := batchRequest{
		Products: make([]productPayload, 0, len(products)),
		Analysis: optionsPayload{Type: string(opts.Type), Focus: string(opts.Focus), Depth: string(opts.Depth)},
		Metadata: metaPayload{BatchID: batchID, Timestamp: now.Format(time.RFC3339Nano)},
	}
	for _, p := range products {
		req.Products = append(req.Products, productPayload{
			ID: p.ID, Name: p.Name, Description: p.Description, Category: p.Category, Technology: p.Technology,
		})
	}
	raw := map[string]any{}
	if err := c.do(ctx, http.MethodPost, "/batch-analyze", req, &raw); err != nil {
		return nil, err
	}
	out := &analysis.BatchResult{BatchID: batchID, Raw: raw}
	if id, ok := raw["batchId"].(string); ok && id != "" {
		out.BatchID = id
	}
	return out, nil
}

// do sends one request and decodes a 2xx JSON body into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(err, apperr.KindInternal, "encode analysis request")
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return apperr.Wrap(err, apperr.KindInternal, "build analysis request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("analysis request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	c.log.Debug("analysis response",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := serverMessage(io.LimitReader(resp.Body, maxErrorBody))
		return classifyStatus(resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if isTimeout(err) {
			return classifyTransport(err)
		}
		return apperr.Wrap(err, apperr.KindAnalysisFailed, "Analysis failed: Invalid response from analysis service")
	}
	return nil
}

func serverMessage(r io.Reader) string {
	var env struct {
		Message string `json:"message"`
		Detail  any    `json:"detail"`
	}
	b, _ := io.ReadAll(r)
	if err := json.Unmarshal(b, &env); err != nil {
		return ""
	}
	if env.Message != "" {
		return env.Message
	}
	if s, ok := env.Detail.(string); ok {
		return s
	}
	return ""
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
