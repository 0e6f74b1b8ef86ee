package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/rgknow/edurag/internal/embedding"
)

// Querier is the subset of pgx operations the index needs. *pgxpool.Pool
// satisfies it; tests can substitute a fake.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresIndex is the pgvector-backed Index. One row per (chunk, model) in
// the embeddings table; similarity search runs in SQL with the <=> cosine
// distance operator.
type PostgresIndex struct {
	db Querier
}

// NewPostgresIndex creates an Index over the embeddings table.
func NewPostgresIndex(db Querier) *PostgresIndex {
	return &PostgresIndex{db: db}
}

// Upsert inserts or replaces the row for (chunk, model).
func (p *PostgresIndex) Upsert(ctx context.Context, emb Embedding) error {
	const query = `
		INSERT INTO embeddings (
			chunk_id, knowledge_base_id, vector, model,
			subject, grade, difficulty, concepts, course_id, lesson_id,
			eligible, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (chunk_id, model) DO UPDATE SET
			vector = EXCLUDED.vector,
			subject = EXCLUDED.subject,
			grade = EXCLUDED.grade,
			difficulty = EXCLUDED.difficulty,
			concepts = EXCLUDED.concepts,
			course_id = EXCLUDED.course_id,
			lesson_id = EXCLUDED.lesson_id,
			eligible = EXCLUDED.eligible,
			created_at = now()`

	_, err := p.db.Exec(ctx, query,
		emb.ChunkID, emb.KnowledgeBaseID, pgvector.NewVector(emb.Vector), emb.Model,
		emb.Subject, emb.Grade, emb.Difficulty, emb.Concepts, emb.CourseID, emb.LessonID,
		emb.Eligible,
	)
	if err != nil {
		return fmt.Errorf("upsert embedding: %w", err)
	}
	return nil
}

// Delete removes every model's row for the chunk.
func (p *PostgresIndex) Delete(ctx context.Context, chunkID uuid.UUID) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM embeddings WHERE chunk_id = $1`, chunkID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	return nil
}

// DeleteByKnowledgeBase removes all rows for the knowledge base.
func (p *PostgresIndex) DeleteByKnowledgeBase(ctx context.Context, kbID uuid.UUID) error {
	if _, err := p.db.Exec(ctx, `DELETE FROM embeddings WHERE knowledge_base_id = $1`, kbID); err != nil {
		return fmt.Errorf("delete embeddings for knowledge base: %w", err)
	}
	return nil
}

// SetEligibility flips the retrieval gate on all of the chunk's rows.
func (p *PostgresIndex) SetEligibility(ctx context.Context, chunkID uuid.UUID, eligible bool) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE embeddings SET eligible = $2 WHERE chunk_id = $1`, chunkID, eligible)
	if err != nil {
		return fmt.Errorf("set eligibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEmbeddingNotFound
	}
	return nil
}

// Search runs the similarity query in SQL. The <=> operator yields cosine
// distance in [0, 2]; 1 - distance/2 maps it to the same [0, 1] similarity
// the in-memory index produces.
func (p *PostgresIndex) Search(ctx context.Context, query embedding.Vector, model string, filters Filters, limit int) ([]Result, error) {
	var sb strings.Builder
	args := []any{pgvector.NewVector(query), model}

	sb.WriteString(`
		SELECT chunk_id, knowledge_base_id, 1 - (vector <=> $1) / 2 AS similarity
		FROM embeddings
		WHERE model = $2 AND eligible`)

	addFilter := func(clause string, value any) {
		args = append(args, value)
		fmt.Fprintf(&sb, " AND %s = $%d", clause, len(args))
	}
	if len(filters.KnowledgeBaseIDs) > 0 {
		args = append(args, filters.KnowledgeBaseIDs)
		fmt.Fprintf(&sb, " AND knowledge_base_id = ANY($%d)", len(args))
	}
	if filters.Subject != "" {
		addFilter("subject", filters.Subject)
	}
	if filters.Grade != "" {
		addFilter("grade", filters.Grade)
	}
	if filters.Difficulty != "" {
		addFilter("difficulty", filters.Difficulty)
	}
	if filters.CourseID != nil {
		addFilter("course_id", *filters.CourseID)
	}
	if filters.LessonID != nil {
		addFilter("lesson_id", *filters.LessonID)
	}
	if len(filters.Concepts) > 0 {
		args = append(args, filters.Concepts)
		fmt.Fprintf(&sb, " AND concepts && $%d", len(args))
	}

	args = append(args, limit)
	fmt.Fprintf(&sb, " ORDER BY similarity DESC, created_at DESC LIMIT $%d", len(args))

	rows, err := p.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search embeddings: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var res Result
		if err := rows.Scan(&res.ChunkID, &res.KnowledgeBaseID, &res.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

// Touch increments usage counters and stamps last-used time.
func (p *PostgresIndex) Touch(ctx context.Context, chunkIDs []uuid.UUID) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := p.db.Exec(ctx, `
		UPDATE embeddings
		SET usage_count = usage_count + 1, last_used_at = now()
		WHERE chunk_id = ANY($1)`, chunkIDs)
	if err != nil {
		return fmt.Errorf("touch embeddings: %w", err)
	}
	return nil
}
