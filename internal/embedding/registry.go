package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Registry holds the embedding models available to the application, keyed by
// model id. A knowledge base declares which model produced its embeddings;
// the registry resolves that declaration at ingestion and query time.
//
// Registry is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Embedder
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		models: make(map[string]Embedder),
		logger: logger,
	}
}

// Register adds an embedder under its model name, replacing any previous
// registration for the same name.
func (r *Registry) Register(e Embedder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[e.Name()] = e
	r.logger.Debug("registered embedding model", "model", e.Name(), "dimension", e.Dimension())
}

// Lookup resolves a model id to its embedder.
func (r *Registry) Lookup(model string) (Embedder, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.models[model]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotRegistered, model)
	}
	return e, nil
}

// Models returns the registered model ids.
func (r *Registry) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	return names
}

// Embed embeds text with the named model.
func (r *Registry) Embed(ctx context.Context, model, text string) (Vector, error) {
	e, err := r.Lookup(model)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// EmbedBatch embeds texts with the named model, preserving input order and
// failing atomically (no partial batch success).
func (r *Registry) EmbedBatch(ctx context.Context, model string, texts []string) ([]Vector, error) {
	e, err := r.Lookup(model)
	if err != nil {
		return nil, err
	}
	return e.EmbedBatch(ctx, texts)
}
