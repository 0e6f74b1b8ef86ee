package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx pool operations the store needs. *pgxpool.Pool
// satisfies it.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore is the Postgres-backed Store. Chunk ownership lives in the
// chunks table; a base's ChunkIDs are derived by position order, and chunk
// deletion cascades from the knowledge_bases foreign key.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Store over the knowledge_bases and chunks tables.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateKnowledgeBase(ctx context.Context, kb KnowledgeBase) error {
	const query = `
		INSERT INTO knowledge_bases (
			id, name, description, subject, grade, difficulty,
			content_type, tags, owner_id, is_public,
			embedding_model, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := p.db.Exec(ctx, query,
		kb.ID, kb.Name, kb.Description, kb.Subject, kb.Grade, kb.Difficulty,
		kb.ContentType, kb.Tags, kb.OwnerID, kb.IsPublic,
		kb.EmbeddingModel, kb.CreatedAt, kb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert knowledge base: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetKnowledgeBase(ctx context.Context, id uuid.UUID) (KnowledgeBase, error) {
	const query = baseColumns + ` FROM knowledge_bases WHERE id = $1`

	kb, err := scanBase(p.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return KnowledgeBase{}, ErrKnowledgeBaseNotFound
	}
	if err != nil {
		return KnowledgeBase{}, fmt.Errorf("get knowledge base: %w", err)
	}

	kb.ChunkIDs, err = p.chunkIDs(ctx, id)
	if err != nil {
		return KnowledgeBase{}, err
	}
	return kb, nil
}

func (p *PostgresStore) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	const query = baseColumns + ` FROM knowledge_bases ORDER BY created_at`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list knowledge bases: %w", err)
	}
	defer rows.Close()

	var bases []KnowledgeBase
	for rows.Next() {
		kb, err := scanBase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan knowledge base: %w", err)
		}
		bases = append(bases, kb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate knowledge bases: %w", err)
	}

	for i := range bases {
		if bases[i].ChunkIDs, err = p.chunkIDs(ctx, bases[i].ID); err != nil {
			return nil, err
		}
	}
	return bases, nil
}

func (p *PostgresStore) UpdateEmbeddingModel(ctx context.Context, id uuid.UUID, model string) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE knowledge_bases SET embedding_model = $2, updated_at = now() WHERE id = $1`,
		id, model)
	if err != nil {
		return fmt.Errorf("update embedding model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKnowledgeBaseNotFound
	}
	return nil
}

func (p *PostgresStore) DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	// Chunks cascade via foreign key.
	tag, err := p.db.Exec(ctx, `DELETE FROM knowledge_bases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete knowledge base: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKnowledgeBaseNotFound
	}
	return nil
}

func (p *PostgresStore) AddChunks(ctx context.Context, kbID uuid.UUID, chunks []Chunk) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM knowledge_bases WHERE id = $1)`, kbID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check knowledge base: %w", err)
	}
	if !exists {
		return ErrKnowledgeBaseNotFound
	}

	const insert = `
		INSERT INTO chunks (
			id, knowledge_base_id, content, position, start_offset, end_offset,
			concepts, learning_objectives, prerequisites,
			course_id, lesson_id, validated, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	for _, c := range chunks {
		_, err := tx.Exec(ctx, insert,
			c.ID, kbID, c.Content, c.Position, c.StartOffset, c.EndOffset,
			c.Concepts, c.LearningObjectives, c.Prerequisites,
			c.CourseID, c.LessonID, c.Validated, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert chunk %s: %w", c.ID, err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE knowledge_bases SET updated_at = now() WHERE id = $1`, kbID); err != nil {
		return fmt.Errorf("touch knowledge base: %w", err)
	}
	return tx.Commit(ctx)
}

func (p *PostgresStore) GetChunk(ctx context.Context, id uuid.UUID) (Chunk, error) {
	row := p.db.QueryRow(ctx, chunkColumns+` FROM chunks WHERE id = $1`, id)
	chunk, err := scanChunk(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Chunk{}, ErrChunkNotFound
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("get chunk: %w", err)
	}
	return chunk, nil
}

func (p *PostgresStore) ListChunks(ctx context.Context, kbID uuid.UUID) ([]Chunk, error) {
	var exists bool
	err := p.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM knowledge_bases WHERE id = $1)`, kbID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check knowledge base: %w", err)
	}
	if !exists {
		return nil, ErrKnowledgeBaseNotFound
	}

	rows, err := p.db.Query(ctx,
		chunkColumns+` FROM chunks WHERE knowledge_base_id = $1 ORDER BY created_at, position`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return chunks, nil
}

func (p *PostgresStore) MarkChunkValidated(ctx context.Context, id uuid.UUID) error {
	tag, err := p.db.Exec(ctx, `UPDATE chunks SET validated = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark chunk validated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChunkNotFound
	}
	return nil
}

func (p *PostgresStore) chunkIDs(ctx context.Context, kbID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := p.db.Query(ctx,
		`SELECT id FROM chunks WHERE knowledge_base_id = $1 ORDER BY created_at, position`, kbID)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const baseColumns = `
	SELECT id, name, description, subject, grade, difficulty,
	       content_type, tags, owner_id, is_public,
	       embedding_model, created_at, updated_at`

func scanBase(row pgx.Row) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := row.Scan(
		&kb.ID, &kb.Name, &kb.Description, &kb.Subject, &kb.Grade, &kb.Difficulty,
		&kb.ContentType, &kb.Tags, &kb.OwnerID, &kb.IsPublic,
		&kb.EmbeddingModel, &kb.CreatedAt, &kb.UpdatedAt,
	)
	return kb, err
}

const chunkColumns = `
	SELECT id, knowledge_base_id, content, position, start_offset, end_offset,
	       concepts, learning_objectives, prerequisites,
	       course_id, lesson_id, validated, created_at`

func scanChunk(row pgx.Row) (Chunk, error) {
	var c Chunk
	err := row.Scan(
		&c.ID, &c.KnowledgeBaseID, &c.Content, &c.Position, &c.StartOffset, &c.EndOffset,
		&c.Concepts, &c.LearningObjectives, &c.Prerequisites,
		&c.CourseID, &c.LessonID, &c.Validated, &c.CreatedAt,
	)
	return c, err
}
