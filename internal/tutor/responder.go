package tutor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/guardrail"
	"github.com/rgknow/edurag/internal/knowledge"
	"github.com/rgknow/edurag/internal/retrieval"
)

const (
	// DefaultHistoryWindow is how many recent turns feed the prompt and the
	// query rewrite.
	DefaultHistoryWindow = 6

	// DefaultTopK is how many chunks back a response.
	DefaultTopK = 5

	// blockedResponse replaces a generated response that failed safety
	// screening. The turn is still recorded so the log shows what happened.
	blockedResponse = "I can't help with that one. Let's get back to your course material. What would you like to work on?"
)

// Searcher retrieves content chunks for a query. *knowledge.Service
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string, filters retrieval.Filters, limit int) ([]knowledge.SearchHit, error)
}

// Responder runs the query-to-response pipeline for active sessions:
// screen, rewrite, retrieve, generate, screen again, record.
type Responder struct {
	store     Store
	search    Searcher
	generator Generator
	gate      guardrail.Gate

	retryConfig   RetryConfig
	historyWindow int
	topK          int
	logger        *slog.Logger

	// Per-session locks serialize turns so sequence assignment and history
	// reads are consistent even with impatient clients. Entries are
	// refcounted and dropped on release, so the map stays bounded by the
	// number of sessions answering concurrently.
	locksMu sync.Mutex
	locks   map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Option adjusts responder tuning.
type Option func(*Responder)

// WithHistoryWindow sets how many recent turns feed the prompt and the query
// rewrite. Non-positive values keep the default.
func WithHistoryWindow(n int) Option {
	return func(r *Responder) {
		if n > 0 {
			r.historyWindow = n
		}
	}
}

// WithTopK sets how many chunks back a response. Non-positive values keep
// the default.
func WithTopK(k int) Option {
	return func(r *Responder) {
		if k > 0 {
			r.topK = k
		}
	}
}

// NewResponder wires the response pipeline. gate may be nil for no
// screening.
func NewResponder(store Store, search Searcher, generator Generator, gate guardrail.Gate, logger *slog.Logger, opts ...Option) *Responder {
	if gate == nil {
		gate = guardrail.NopGate{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Responder{
		store:         store,
		search:        search,
		generator:     generator,
		gate:          gate,
		retryConfig:   DefaultRetryConfig(),
		historyWindow: DefaultHistoryWindow,
		topK:          DefaultTopK,
		logger:        logger,
		locks:         make(map[uuid.UUID]*lockEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Respond answers one learner query within an active session and records
// the turn. Nothing is recorded when generation fails, so the log only ever
// holds completed turns.
func (r *Responder) Respond(ctx context.Context, sessionID uuid.UUID, query string) (Interaction, error) {
	if strings.TrimSpace(query) == "" {
		return Interaction{}, apperr.New(apperr.InvalidInput, "query is empty")
	}
	started := time.Now()

	entry := r.acquireSession(sessionID)
	defer r.releaseSession(sessionID, entry)

	session, err := r.store.GetSession(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return Interaction{}, apperr.Wrap(apperr.NotFound, err, "session %s", sessionID)
	}
	if err != nil {
		return Interaction{}, fmt.Errorf("load session: %w", err)
	}
	if session.Status != StatusActive {
		return Interaction{}, apperr.Wrap(apperr.Conflict, ErrSessionNotActive, "session %s is %s", sessionID, session.Status)
	}

	if verdict := r.gate.CheckQuery(query); !verdict.Safe {
		r.logger.Warn("query blocked",
			"session", sessionID, "patterns", len(verdict.Patterns))
		return Interaction{}, apperr.New(apperr.InvalidInput, "query rejected by content screening")
	}

	history, err := r.store.ListInteractions(ctx, sessionID, r.historyWindow)
	if err != nil {
		return Interaction{}, fmt.Errorf("load history: %w", err)
	}

	rewritten := rewriteQuery(query, history)

	hits, err := r.search.Search(ctx, rewritten, scopeFilters(session.Scope), r.topK)
	if err != nil {
		// A tutor that lost retrieval is still a tutor. Degrade to an
		// ungrounded response rather than failing the learner's question.
		r.logger.Warn("retrieval failed, answering without context",
			"session", sessionID, "error", err)
		hits = nil
	}

	prompt := buildPrompt(session, history, query, hits)
	response, err := executeWithRetry(ctx, r.retryConfig, r.logger, func(ctx context.Context) (string, error) {
		return r.generator.Generate(ctx, prompt)
	})
	if err != nil {
		return Interaction{}, apperr.Wrap(apperr.Unavailable, err, "generate response")
	}

	if verdict := r.gate.CheckResponse(response); !verdict.Safe {
		r.logger.Warn("response blocked",
			"session", sessionID, "patterns", len(verdict.Patterns))
		response = blockedResponse
	}

	retrieved := make([]RetrievedChunk, len(hits))
	var contextScore float64
	for i, hit := range hits {
		retrieved[i] = RetrievedChunk{ChunkID: hit.Chunk.ID, Similarity: hit.Similarity}
		if hit.Similarity > contextScore {
			contextScore = hit.Similarity
		}
	}

	interaction, err := r.store.RecordInteraction(ctx, Interaction{
		SessionID:       sessionID,
		Query:           query,
		RewrittenQuery:  rewritten,
		Response:        response,
		RetrievedChunks: retrieved,
		ContextScore:    contextScore,
		Latency:         time.Since(started),
	})
	if errors.Is(err, ErrSessionNotActive) {
		return Interaction{}, apperr.Wrap(apperr.Conflict, err, "session %s", sessionID)
	}
	if err != nil {
		return Interaction{}, fmt.Errorf("record interaction: %w", err)
	}

	r.logger.Info("interaction recorded",
		"session", sessionID, "sequence", interaction.Sequence,
		"chunks", len(retrieved), "context_score", contextScore,
		"latency", interaction.Latency)
	return interaction, nil
}

func (r *Responder) acquireSession(id uuid.UUID) *lockEntry {
	r.locksMu.Lock()
	entry, ok := r.locks[id]
	if !ok {
		entry = &lockEntry{}
		r.locks[id] = entry
	}
	entry.refs++
	r.locksMu.Unlock()

	entry.mu.Lock()
	return entry
}

func (r *Responder) releaseSession(id uuid.UUID, entry *lockEntry) {
	entry.mu.Unlock()

	r.locksMu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(r.locks, id)
	}
	r.locksMu.Unlock()
}

// scopeFilters maps a session scope onto retrieval filters.
func scopeFilters(s Scope) retrieval.Filters {
	f := retrieval.Filters{
		Subject:  s.Subject,
		Grade:    s.Grade,
		CourseID: s.CourseID,
		LessonID: s.LessonID,
	}
	if s.KnowledgeBaseID != nil {
		f.KnowledgeBaseIDs = []uuid.UUID{*s.KnowledgeBaseID}
	}
	return f
}
