// Package embedding maps educational content and learner queries to dense
// vectors for similarity search.
//
// Embedders are registered by model id in a Registry; each model has a fixed
// output dimension. Embedding is deterministic for identical (text, model)
// pairs — callers may cache results freely. Batch embedding preserves input
// order and fails atomically: either every text embeds or none do.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Sentinel errors checked with errors.Is.
var (
	// ErrModelNotRegistered indicates the requested embedding model is not
	// registered or loadable. Callers surface this as an Unavailable failure.
	ErrModelNotRegistered = errors.New("embedding model not registered")

	// ErrEmptyText indicates an empty input text.
	ErrEmptyText = errors.New("empty text")
)

// Vector is a fixed-dimension dense embedding. Vectors produced by this
// package are L2-normalized so cosine similarity reduces to a dot product.
type Vector []float32

// Embedder produces embeddings for a single named model.
//
// Implementations must be deterministic for identical input text and safe
// for concurrent use.
type Embedder interface {
	// Name returns the model identifier, e.g. "local-hash-768".
	Name() string

	// Dimension returns the fixed output dimension.
	Dimension() int

	// Embed maps text to a normalized vector.
	Embed(ctx context.Context, text string) (Vector, error)

	// EmbedBatch maps texts to vectors, preserving input order.
	// The batch fails atomically: on any error no vectors are returned.
	EmbedBatch(ctx context.Context, texts []string) ([]Vector, error)
}

// Normalize scales v to unit L2 norm in place. A zero vector is returned
// unchanged (there is no direction to preserve).
func Normalize(v Vector) Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot returns the dot product of two vectors of equal dimension.
// For normalized vectors this is the cosine of the angle between them.
func Dot(a, b Vector) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
