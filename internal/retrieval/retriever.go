package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/embedding"
)

const (
	// DefaultLimit is used when the caller asks for zero results.
	DefaultLimit = 8

	// MaxLimit caps a single search so a bad client cannot pull the whole
	// index through one request.
	MaxLimit = 50

	touchTimeout = 5 * time.Second
)

// Retriever runs similarity searches against an Index and records usage.
type Retriever struct {
	index  Index
	logger *slog.Logger
}

// NewRetriever creates a Retriever over the index.
func NewRetriever(index Index, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{index: index, logger: logger}
}

// Retrieve returns up to limit chunks matching the query vector and filters,
// best match first. limit is clamped to [1, MaxLimit]; zero means
// DefaultLimit. Usage counters for returned chunks update asynchronously so
// bookkeeping never adds latency to the search path.
func (r *Retriever) Retrieve(ctx context.Context, query embedding.Vector, model string, filters Filters, limit int) ([]Result, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	results, err := r.index.Search(ctx, query, model, filters, limit)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	if len(results) > 0 {
		r.touchAsync(ctx, results)
	}
	return results, nil
}

// touchAsync records usage in the background. The write outlives request
// cancellation but is bounded, and failures only log.
func (r *Retriever) touchAsync(ctx context.Context, results []Result) {
	ids := make([]uuid.UUID, len(results))
	for i, res := range results {
		ids[i] = res.ChunkID
	}

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		touchCtx, cancel := context.WithTimeout(bgCtx, touchTimeout)
		defer cancel()
		if err := r.index.Touch(touchCtx, ids); err != nil {
			r.logger.Warn("usage tracking failed", "chunks", len(ids), "error", err)
		}
	}()
}
