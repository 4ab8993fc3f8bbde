package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bryanwahyu/automaton-risk/internal/domain/apperr"
	domain "github.com/bryanwahyu/automaton-risk/internal/domain/memory"
)

const memoryCols = `id, product_id, context_text, memory_type, vector, dimension, embedding_model,
       confidence, tags, metadata, is_active, last_accessed, access_count, created_at`

type MemoryRepository struct {
	base
}

func NewMemoryRepository(db *sql.DB, d Dialect) *MemoryRepository {
	return &MemoryRepository{base{db: db, d: d}}
}

// Save insert/update Memory record. The vector is stored as a JSON array.
func (r *MemoryRepository) Save(ctx context.Context, m *domain.Memory) error {
	vec, err := toJSON(m.Vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	tags, err := toJSON(m.Tags)
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}
	meta, err := toJSON(m.Source)
	if err != nil {
		return fmt.Errorf("encode memory metadata: %w", err)
	}
	q := `
INSERT INTO ai_memories
(id, product_id, context_text, memory_type, vector, dimension, embedding_model,
 confidence, tags, metadata, is_active, last_accessed, access_count, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)` + r.d.upsert(
		"context_text", "vector", "dimension", "embedding_model", "confidence",
		"tags", "metadata", "is_active", "last_accessed", "access_count")

	_, err = r.exec(ctx, q,
		m.ID, m.ProductID, m.ContextText, string(m.Type), vec, m.Dimension, m.EmbeddingModel,
		m.Confidence, tags, meta, m.Active, m.LastAccessed, m.AccessCount, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save memory %s: %w", m.ID, err)
	}
	return nil
}

func (r *MemoryRepository) ListActive(ctx context.Context, productID string) ([]*domain.Memory, error) {
	rows, err := r.query(ctx,
		`SELECT `+memoryCols+` FROM ai_memories WHERE product_id = ? AND is_active = ? ORDER BY id`,
		productID, true)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	out := []*domain.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx,
		`UPDATE ai_memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("touch memory %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound("Memory")
	}
	return nil
}

func (r *MemoryRepository) Statistics(ctx context.Context, productID string) (domain.Statistics, error) {
	st := domain.EmptyStatistics()
	var avg sql.NullFloat64
	var accesses sql.NullInt64
	const q = `SELECT COUNT(*), AVG(confidence), SUM(access_count) FROM ai_memories WHERE product_id = ? AND is_active = ?`
	if err := r.queryRow(ctx, q, productID, true).Scan(&st.TotalMemories, &avg, &accesses); err != nil {
		return domain.EmptyStatistics(), fmt.Errorf("memory statistics: %w", err)
	}
	st.AverageConfidence = avg.Float64
	st.TotalAccessCount = int(accesses.Int64)

	rows, err := r.query(ctx,
		`SELECT memory_type, COUNT(*) FROM ai_memories WHERE product_id = ? AND is_active = ? GROUP BY memory_type`,
		productID, true)
	if err != nil {
		return domain.EmptyStatistics(), fmt.Errorf("memory type distribution: %w", err)
	}
	defer rows.Close()
	counts := map[domain.Type]int{}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return domain.EmptyStatistics(), err
		}
		counts[domain.Type(t)] = n
	}
	if err := rows.Err(); err != nil {
		return domain.EmptyStatistics(), err
	}
	for _, t := range domain.Types {
		if n := counts[t]; n > 0 {
			st.MemoryTypeDistribution = append(st.MemoryTypeDistribution, domain.TypeCount{Type: t, Count: n})
		}
	}
	return st, nil
}

func scanMemory(sc scanner) (*domain.Memory, error) {
	var (
		m               domain.Memory
		kind            string
		vec, tags, meta []byte
	)
	if err := sc.Scan(
		&m.ID, &m.ProductID, &m.ContextText, &kind, &vec, &m.Dimension, &m.EmbeddingModel,
		&m.Confidence, &tags, &meta, &m.Active, &m.LastAccessed, &m.AccessCount, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := fromJSON(vec, &m.Vector); err != nil {
		return nil, fmt.Errorf("memory %s vector: %w", m.ID, err)
	}
	if err := fromJSON(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("memory %s tags: %w", m.ID, err)
	}
	if err := fromJSON(meta, &m.Source); err != nil {
		return nil, fmt.Errorf("memory %s metadata: %w", m.ID, err)
	}
	m.Type = domain.Type(kind)
	return &m, nil
}
