package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"
)

// DefaultEmbedTimeout bounds a single model call; on expiry the caller
// receives an error it can classify as Unavailable rather than hanging.
const DefaultEmbedTimeout = 15 * time.Second

// GenkitEmbedder bridges a Genkit ai.Embedder to the Embedder interface.
// It adds a per-call timeout and optional proactive rate limiting, and
// normalizes output vectors so the retrieval layer can assume unit length.
type GenkitEmbedder struct {
	name     string
	dim      int
	embedder ai.Embedder
	timeout  time.Duration
	limiter  *rate.Limiter // nil = unlimited
}

// NewGenkitEmbedder wraps a Genkit embedder. dim must match the model's
// declared output dimension; limiter may be nil.
func NewGenkitEmbedder(name string, dim int, embedder ai.Embedder, limiter *rate.Limiter) *GenkitEmbedder {
	return &GenkitEmbedder{
		name:     name,
		dim:      dim,
		embedder: embedder,
		timeout:  DefaultEmbedTimeout,
		limiter:  limiter,
	}
}

// Name returns the model identifier.
func (e *GenkitEmbedder) Name() string { return e.name }

// Dimension returns the fixed output dimension.
func (e *GenkitEmbedder) Dimension() int { return e.dim }

// Embed maps text to a normalized vector via the underlying model.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts in one model call. The provider returns embeddings
// in request order; a count mismatch fails the whole batch.
func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, text := range texts {
		if text == "" {
			return nil, ErrEmptyText
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding generation timeout: %w", err)
		}
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d",
			len(resp.Embeddings), len(texts))
	}

	vectors := make([]Vector, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("empty embedding returned for input %d", i)
		}
		vectors[i] = Normalize(Vector(emb.Embedding))
	}
	return vectors, nil
}
