package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/assessments"
)

const assessmentCols = `id, product_id, user_id, input_data, status, risk_score, risk_level,
       vulnerabilities, recommendations, result_summary, llm_model, processing_time_ms,
       error_message, metadata, assessed_at, created_at, updated_at`

type AssessmentRepository struct {
	base
}

func NewAssessmentRepository(db *sql.DB, d Dialect) *AssessmentRepository {
	return &AssessmentRepository{base{db: db, d: d}}
}

type assessmentJSON struct {
	input, vulns, recs, meta string
}

func encodeAssessment(a *domain.Assessment) (assessmentJSON, error) {
	var out assessmentJSON
	var err error
	if out.input, err = toJSON(a.Input); err != nil {
		return out, fmt.Errorf("encode input: %w", err)
	}
	if out.vulns, err = toJSON(a.Vulnerabilities); err != nil {
		return out, fmt.Errorf("encode vulnerabilities: %w", err)
	}
	if out.recs, err = toJSON(a.Recommendations); err != nil {
		return out, fmt.Errorf("encode recommendations: %w", err)
	}
	if out.meta, err = toJSON(a.Metadata); err != nil {
		return out, fmt.Errorf("encode metadata: %w", err)
	}
	return out, nil
}

// Save insert/update Assessment record
func (r *AssessmentRepository) Save(ctx context.Context, a *domain.Assessment) error {
	j, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	q := `
INSERT INTO risk_assessments
(id, product_id, user_id, input_data, status, risk_score, risk_level,
 vulnerabilities, recommendations, result_summary, llm_model, processing_time_ms,
 error_message, metadata, assessed_at, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)` + r.d.upsert(
		"status", "risk_score", "risk_level", "vulnerabilities", "recommendations",
		"result_summary", "llm_model", "processing_time_ms", "error_message", "metadata", "updated_at")

	_, err = r.exec(ctx, q,
		a.ID, a.ProductID, a.UserID, j.input, string(a.Status), a.RiskScore, string(a.RiskLevel),
		j.vulns, j.recs, a.ResultSummary, a.LLMModel, a.ProcessingTimeMS,
		a.ErrorMessage, j.meta, a.Timestamp, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save assessment %s: %w", a.ID, err)
	}
	return nil
}

// Update overwrites the mutable columns of an existing assessment.
func (r *AssessmentRepository) Update(ctx context.Context, a *domain.Assessment) error {
	j, err := encodeAssessment(a)
	if err != nil {
		return err
	}
	const q = `
UPDATE risk_assessments SET
 status = ?, risk_score = ?, risk_level = ?, vulnerabilities = ?, recommendations = ?,
 result_summary = ?, llm_model = ?, processing_time_ms = ?, error_message = ?,
 metadata = ?, updated_at = ?
WHERE id = ?`
	res, err := r.exec(ctx, q,
		string(a.Status), a.RiskScore, string(a.RiskLevel), j.vulns, j.recs,
		a.ResultSummary, a.LLMModel, a.ProcessingTimeMS, a.ErrorMessage,
		j.meta, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("update assessment %s: %w", a.ID, err)
	}
	ok, err := r.updated(ctx, res, "risk_assessments", a.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("Assessment")
	}
	return nil
}

func (r *AssessmentRepository) Get(ctx context.Context, id string) (*domain.Assessment, error) {
	row := r.queryRow(ctx, `SELECT `+assessmentCols+` FROM risk_assessments WHERE id = ? LIMIT 1`, id)
	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("Assessment")
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment %s: %w", id, err)
	}
	return a, nil
}

func (r *AssessmentRepository) ListByProduct(ctx context.Context, productID string, page, pageSize int) ([]*domain.Assessment, int64, error) {
	var total int64
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM risk_assessments WHERE product_id = ?`, productID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count assessments: %w", err)
	}

	q := `SELECT ` + assessmentCols + ` FROM risk_assessments WHERE product_id = ?
ORDER BY assessed_at DESC, created_at DESC, id DESC`
	args := []any{productID}
	if pageSize > 0 {
		limit, offset := pageArgs(page, pageSize)
		q += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list assessments: %w", err)
	}
	defer rows.Close()

	out := []*domain.Assessment{}
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// Statistics aggregates completed assessments of productIDs in SQL.
func (r *AssessmentRepository) Statistics(ctx context.Context, productIDs []string) (domain.Statistics, error) {
	st := domain.EmptyStatistics()
	productIDs = dedupe(productIDs)
	if len(productIDs) == 0 {
		return st, nil
	}
	args := append([]any{string(domain.StatusCompleted)}, stringIDs(productIDs)...)
	where := `status = ? AND product_id IN (` + placeholders(len(productIDs)) + `)`

	var avg, maxScore, minScore sql.NullFloat64
	q := `SELECT COUNT(*), AVG(risk_score), MAX(risk_score), MIN(risk_score) FROM risk_assessments WHERE ` + where
	if err := r.queryRow(ctx, q, args...).Scan(&st.TotalAssessments, &avg, &maxScore, &minScore); err != nil {
		return domain.EmptyStatistics(), fmt.Errorf("assessment statistics: %w", err)
	}
	st.AverageRiskScore = avg.Float64
	st.MaxRiskScore = maxScore.Float64
	st.MinRiskScore = minScore.Float64

	rows, err := r.query(ctx, `SELECT risk_level, COUNT(*) FROM risk_assessments WHERE `+where+` GROUP BY risk_level`, args...)
	if err != nil {
		return domain.EmptyStatistics(), fmt.Errorf("risk level distribution: %w", err)
	}
	defer rows.Close()
	counts := map[domain.RiskLevel]int{}
	for rows.Next() {
		var level string
		var n int
		if err := rows.Scan(&level, &n); err != nil {
			return domain.EmptyStatistics(), err
		}
		counts[domain.ParseRiskLevel(level)] += n
	}
	if err := rows.Err(); err != nil {
		return domain.EmptyStatistics(), err
	}
	st.RiskLevelDistribution = domain.Distribution(counts)
	return st, nil
}

func scanAssessment(sc scanner) (*domain.Assessment, error) {
	var (
		a                        domain.Assessment
		status, level            string
		input, vulns, recs, meta []byte
	)
	if err := sc.Scan(
		&a.ID, &a.ProductID, &a.UserID, &input, &status, &a.RiskScore, &level,
		&vulns, &recs, &a.ResultSummary, &a.LLMModel, &a.ProcessingTimeMS,
		&a.ErrorMessage, &meta, &a.Timestamp, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, c := range []struct {
		raw []byte
		dst any
	}{{input, &a.Input}, {vulns, &a.Vulnerabilities}, {recs, &a.Recommendations}, {meta, &a.Metadata}} {
		if err := fromJSON(c.raw, c.dst); err != nil {
			return nil, fmt.Errorf("assessment %s: %w", a.ID, err)
		}
	}
	a.Status = domain.Status(status)
	a.RiskLevel = domain.ParseRiskLevel(level)
	if a.Vulnerabilities == nil {
		a.Vulnerabilities = []string{}
	}
	if a.Recommendations == nil {
		a.Recommendations = []string{}
	}
	return &a, nil
}
