package embedding

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Newton's first law describes inertia")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed(ctx, "Newton's first law describes inertia")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	if len(a) != 768 {
		t.Fatalf("dimension = %d, want 768", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestLocalEmbedder_Normalized(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	vec, err := e.Embed(context.Background(), "a force acts on every object")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}

	norm := math.Sqrt(Dot(vec, vec))
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", norm)
	}
}

func TestLocalEmbedder_LexicalOverlapScoresHigher(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	ctx := context.Background()

	doc, _ := e.Embed(ctx, "An object at rest stays at rest unless a force acts on it. This is inertia.")
	related, _ := e.Embed(ctx, "why does a force change the state of an object at rest")
	unrelated, _ := e.Embed(ctx, "photosynthesis converts sunlight into chemical energy in plants")

	if Dot(doc, related) <= Dot(doc, unrelated) {
		t.Errorf("related query (%v) should outscore unrelated (%v)",
			Dot(doc, related), Dot(doc, unrelated))
	}
	if Dot(doc, related) <= 0 {
		t.Errorf("related similarity = %v, want > 0", Dot(doc, related))
	}
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	if _, err := e.Embed(context.Background(), "   "); !errors.Is(err, ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestLocalEmbedder_BatchAtomic(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	ctx := context.Background()

	// Middle item fails: the whole batch must fail with no partial results.
	vectors, err := e.EmbedBatch(ctx, []string{"first chunk", "", "third chunk"})
	if !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
	if vectors != nil {
		t.Errorf("expected no vectors on batch failure, got %d", len(vectors))
	}
}

func TestLocalEmbedder_BatchOrder(t *testing.T) {
	e := NewLocalEmbedder("local-hash-768", 768)
	ctx := context.Background()

	texts := []string{"inertia", "force", "acceleration"}
	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vectors), len(texts))
	}

	for i, text := range texts {
		single, _ := e.Embed(ctx, text)
		if Dot(single, vectors[i]) < 0.999 {
			t.Errorf("batch result %d does not match single embed of %q", i, text)
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(NewLocalEmbedder("local-hash-768", 768))

	if _, err := r.Lookup("local-hash-768"); err != nil {
		t.Errorf("Lookup registered model: %v", err)
	}

	if _, err := r.Embed(context.Background(), "text-embedding-004", "hello"); !errors.Is(err, ErrModelNotRegistered) {
		t.Errorf("expected ErrModelNotRegistered, got %v", err)
	}

	if got := len(r.Models()); got != 1 {
		t.Errorf("Models() len = %d, want 1", got)
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := Vector{0, 0, 0}
	Normalize(v)
	for _, x := range v {
		if x != 0 {
			t.Fatal("zero vector should remain zero")
		}
	}
}

func TestDot_DimensionMismatch(t *testing.T) {
	if got := Dot(Vector{1, 0}, Vector{1, 0, 0}); got != 0 {
		t.Errorf("Dot with mismatched dims = %v, want 0", got)
	}
}
