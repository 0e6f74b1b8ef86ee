package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// PostgresStore is the Postgres-backed Store. Sequence assignment runs in a
// transaction holding a row lock on the session, so concurrent turns on one
// session serialize and sequences never collide.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a Store over the tutor_sessions and interactions
// tables.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreateSession(ctx context.Context, s Session) error {
	const query = `
		INSERT INTO tutor_sessions (
			id, learner_id, knowledge_base_id, personality, session_type, status,
			subject, grade, course_id, lesson_id,
			question_count, retrieval_count, helpful_count, not_helpful_count,
			started_at, last_activity_at, ended_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := p.db.Exec(ctx, query,
		s.ID, s.LearnerID, s.Scope.KnowledgeBaseID, s.Personality, s.Type, s.Status,
		s.Scope.Subject, s.Scope.Grade, s.Scope.CourseID, s.Scope.LessonID,
		s.QuestionCount, s.RetrievalCount, s.HelpfulCount, s.NotHelpfulCount,
		s.StartedAt, s.LastActivityAt, s.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	row := p.db.QueryRow(ctx, sessionColumns+` FROM tutor_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (p *PostgresStore) ListSessionsByLearner(ctx context.Context, learnerID uuid.UUID) ([]Session, error) {
	rows, err := p.db.Query(ctx,
		sessionColumns+` FROM tutor_sessions WHERE learner_id = $1 ORDER BY started_at`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, endedAt *time.Time) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE tutor_sessions SET status = $2, ended_at = $3 WHERE id = $1`,
		id, status, endedAt)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *PostgresStore) ListIdleActive(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id FROM tutor_sessions
		WHERE status = 'active' AND last_activity_at < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle sessions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (p *PostgresStore) RecordInteraction(ctx context.Context, in Interaction) (Interaction, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return Interaction{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM tutor_sessions WHERE id = $1 FOR UPDATE`, in.SessionID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Interaction{}, ErrSessionNotFound
	}
	if err != nil {
		return Interaction{}, fmt.Errorf("lock session: %w", err)
	}
	if status != StatusActive {
		return Interaction{}, ErrSessionNotActive
	}

	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM interactions WHERE session_id = $1`,
		in.SessionID).Scan(&in.Sequence)
	if err != nil {
		return Interaction{}, fmt.Errorf("next sequence: %w", err)
	}

	if in.ID == (uuid.UUID{}) {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now()
	}

	const insert = `
		INSERT INTO interactions (
			id, session_id, sequence, query, rewritten_query, response,
			retrieved_chunks, context_score, latency_ms, feedback, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = tx.Exec(ctx, insert,
		in.ID, in.SessionID, in.Sequence, in.Query, in.RewrittenQuery, in.Response,
		in.RetrievedChunks, in.ContextScore, in.Latency.Milliseconds(), in.Feedback, in.CreatedAt,
	)
	if err != nil {
		return Interaction{}, fmt.Errorf("insert interaction: %w", err)
	}

	retrieved := 0
	if len(in.RetrievedChunks) > 0 {
		retrieved = 1
	}
	_, err = tx.Exec(ctx, `
		UPDATE tutor_sessions
		SET question_count = question_count + 1,
		    retrieval_count = retrieval_count + $3,
		    last_activity_at = $2
		WHERE id = $1`, in.SessionID, in.CreatedAt, retrieved)
	if err != nil {
		return Interaction{}, fmt.Errorf("bump session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Interaction{}, fmt.Errorf("commit: %w", err)
	}
	return in, nil
}

func (p *PostgresStore) AttachFeedback(ctx context.Context, sessionID, interactionID uuid.UUID, fb Feedback) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prev *Feedback
	err = tx.QueryRow(ctx,
		`SELECT feedback FROM interactions WHERE id = $2 AND session_id = $1 FOR UPDATE`,
		sessionID, interactionID).Scan(&prev)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrInteractionNotFound
	}
	if err != nil {
		return fmt.Errorf("lock interaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE interactions SET feedback = $3 WHERE id = $2 AND session_id = $1`,
		sessionID, interactionID, fb)
	if err != nil {
		return fmt.Errorf("attach feedback: %w", err)
	}

	helpful, notHelpful := voteDelta(prev, fb)
	if helpful != 0 || notHelpful != 0 {
		_, err = tx.Exec(ctx, `
			UPDATE tutor_sessions
			SET helpful_count = helpful_count + $2,
			    not_helpful_count = not_helpful_count + $3
			WHERE id = $1`, sessionID, helpful, notHelpful)
		if err != nil {
			return fmt.Errorf("bump votes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresStore) ListInteractions(ctx context.Context, sessionID uuid.UUID, limit int) ([]Interaction, error) {
	query := interactionColumns + ` FROM interactions WHERE session_id = $1 ORDER BY sequence`
	args := []any{sessionID}
	if limit > 0 {
		// Take the newest turns, then flip back to ascending.
		query = interactionColumns + ` FROM (
			SELECT * FROM interactions WHERE session_id = $1
			ORDER BY sequence DESC LIMIT $2
		) recent ORDER BY sequence`
		args = append(args, limit)
	}

	rows, err := p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	var turns []Interaction
	for rows.Next() {
		var in Interaction
		var latencyMS int64
		if err := rows.Scan(
			&in.ID, &in.SessionID, &in.Sequence, &in.Query, &in.RewrittenQuery, &in.Response,
			&in.RetrievedChunks, &in.ContextScore, &latencyMS, &in.Feedback, &in.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.Latency = time.Duration(latencyMS) * time.Millisecond
		turns = append(turns, in)
	}
	return turns, rows.Err()
}

const sessionColumns = `
	SELECT id, learner_id, knowledge_base_id, personality, session_type, status,
	       subject, grade, course_id, lesson_id,
	       question_count, retrieval_count, helpful_count, not_helpful_count,
	       started_at, last_activity_at, ended_at`

const interactionColumns = `
	SELECT id, session_id, sequence, query, rewritten_query, response,
	       retrieved_chunks, context_score, latency_ms, feedback, created_at`

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID, &s.LearnerID, &s.Scope.KnowledgeBaseID, &s.Personality, &s.Type, &s.Status,
		&s.Scope.Subject, &s.Scope.Grade, &s.Scope.CourseID, &s.Scope.LessonID,
		&s.QuestionCount, &s.RetrievalCount, &s.HelpfulCount, &s.NotHelpfulCount,
		&s.StartedAt, &s.LastActivityAt, &s.EndedAt,
	)
	return s, err
}
