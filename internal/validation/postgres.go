package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx operations the store needs. *pgxpool.Pool
// satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is the Postgres-backed Store over content_validations.
type PostgresStore struct {
	db Querier
}

// NewPostgresStore creates a Store over the content_validations table.
func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Append(ctx context.Context, v ContentValidation) error {
	const query = `
		INSERT INTO content_validations (
			id, chunk_id, validator,
			accuracy, relevance, appropriateness, clarity,
			overall, status, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := p.db.Exec(ctx, query,
		v.ID, v.ChunkID, v.Validator,
		v.Scores.Accuracy, v.Scores.Relevance, v.Scores.Appropriateness, v.Scores.Clarity,
		v.Overall, v.Status, v.Notes, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert validation: %w", err)
	}
	return nil
}

func (p *PostgresStore) Latest(ctx context.Context, chunkID uuid.UUID) (ContentValidation, error) {
	row := p.db.QueryRow(ctx, validationColumns+`
		FROM content_validations WHERE chunk_id = $1
		ORDER BY created_at DESC LIMIT 1`, chunkID)

	v, err := scanValidation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ContentValidation{}, ErrNoValidations
	}
	if err != nil {
		return ContentValidation{}, fmt.Errorf("latest validation: %w", err)
	}
	return v, nil
}

func (p *PostgresStore) History(ctx context.Context, chunkID uuid.UUID) ([]ContentValidation, error) {
	rows, err := p.db.Query(ctx, validationColumns+`
		FROM content_validations WHERE chunk_id = $1
		ORDER BY created_at`, chunkID)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var history []ContentValidation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation: %w", err)
		}
		history = append(history, v)
	}
	return history, rows.Err()
}

const validationColumns = `
	SELECT id, chunk_id, validator,
	       accuracy, relevance, appropriateness, clarity,
	       overall, status, notes, created_at`

func scanValidation(row pgx.Row) (ContentValidation, error) {
	var v ContentValidation
	err := row.Scan(
		&v.ID, &v.ChunkID, &v.Validator,
		&v.Scores.Accuracy, &v.Scores.Relevance, &v.Scores.Appropriateness, &v.Scores.Clarity,
		&v.Overall, &v.Status, &v.Notes, &v.CreatedAt,
	)
	return v, err
}
