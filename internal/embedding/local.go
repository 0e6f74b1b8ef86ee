package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// LocalEmbedder is a deterministic, dependency-free embedder built on
// feature hashing: each token (and adjacent-token bigram) is hashed into one
// of Dimension buckets with a hash-derived sign, and the resulting vector is
// L2-normalized. Texts sharing vocabulary land on overlapping buckets, so
// cosine similarity tracks lexical overlap.
//
// It is not a substitute for a trained embedding model, but it gives the
// pipeline real vector-space behavior offline: identical inputs produce
// identical vectors, and related texts score above unrelated ones.
type LocalEmbedder struct {
	name string
	dim  int
}

// NewLocalEmbedder creates a local embedder with the given model name and
// dimension.
func NewLocalEmbedder(name string, dim int) *LocalEmbedder {
	return &LocalEmbedder{name: name, dim: dim}
}

// Name returns the model identifier.
func (e *LocalEmbedder) Name() string { return e.name }

// Dimension returns the fixed output dimension.
func (e *LocalEmbedder) Dimension() int { return e.dim }

// Embed maps text to a normalized feature-hashed vector.
func (e *LocalEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	vec := make(Vector, e.dim)
	tokens := tokenize(text)
	for i, tok := range tokens {
		e.addFeature(vec, tok)
		if i+1 < len(tokens) {
			e.addFeature(vec, tok+" "+tokens[i+1])
		}
	}
	return Normalize(vec), nil
}

// EmbedBatch embeds texts in order. The batch fails atomically: the first
// error aborts the whole batch and no vectors are returned.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]Vector, error) {
	vectors := make([]Vector, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = v
	}
	return vectors, nil
}

// addFeature hashes a feature into its bucket with a sign bit.
func (e *LocalEmbedder) addFeature(vec Vector, feature string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dim)) // #nosec G115 -- dim is a small positive int
	if sum&(1<<63) != 0 {
		vec[bucket]--
	} else {
		vec[bucket]++
	}
}

// tokenize lowercases and splits text on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
