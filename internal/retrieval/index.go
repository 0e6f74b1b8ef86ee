package retrieval

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rgknow/edurag/internal/embedding"
)

// MemoryIndex is an in-process Index. All rows live in memory; search is an
// exact scan, which is fine at the corpus sizes a single process serves.
type MemoryIndex struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]map[string]*Embedding // chunk id -> model -> row
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{rows: make(map[uuid.UUID]map[string]*Embedding)}
}

// Upsert inserts or replaces the row for (chunk, model).
func (m *MemoryIndex) Upsert(_ context.Context, emb Embedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if emb.CreatedAt.IsZero() {
		emb.CreatedAt = time.Now()
	}
	byModel := m.rows[emb.ChunkID]
	if byModel == nil {
		byModel = make(map[string]*Embedding)
		m.rows[emb.ChunkID] = byModel
	}
	clone := emb
	clone.Concepts = append([]string(nil), emb.Concepts...)
	clone.Vector = append(embedding.Vector(nil), emb.Vector...)
	byModel[emb.Model] = &clone
	return nil
}

// Delete removes every model's row for the chunk.
func (m *MemoryIndex) Delete(_ context.Context, chunkID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, chunkID)
	return nil
}

// DeleteByKnowledgeBase removes all rows for the knowledge base.
func (m *MemoryIndex) DeleteByKnowledgeBase(_ context.Context, kbID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chunkID, byModel := range m.rows {
		for model, row := range byModel {
			if row.KnowledgeBaseID == kbID {
				delete(byModel, model)
			}
		}
		if len(byModel) == 0 {
			delete(m.rows, chunkID)
		}
	}
	return nil
}

// SetEligibility flips the retrieval gate on all of the chunk's rows.
func (m *MemoryIndex) SetEligibility(_ context.Context, chunkID uuid.UUID, eligible bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	byModel, ok := m.rows[chunkID]
	if !ok {
		return ErrEmbeddingNotFound
	}
	for _, row := range byModel {
		row.Eligible = eligible
	}
	return nil
}

// Search scans rows of the given model, gates on eligibility and filters,
// and returns the top results by similarity. Ties break on recency, newest
// first, so fresher content surfaces when scores are equal.
func (m *MemoryIndex) Search(_ context.Context, query embedding.Vector, model string, filters Filters, limit int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		Result
		createdAt time.Time
	}
	var hits []scored
	for _, byModel := range m.rows {
		row, ok := byModel[model]
		if !ok || !row.Eligible || !filters.matches(row) {
			continue
		}
		hits = append(hits, scored{
			Result: Result{
				ChunkID:         row.ChunkID,
				KnowledgeBaseID: row.KnowledgeBaseID,
				Similarity:      cosineSimilarity(query, row.Vector),
			},
			createdAt: row.CreatedAt,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		if !hits[i].createdAt.Equal(hits[j].createdAt) {
			return hits[i].createdAt.After(hits[j].createdAt)
		}
		return hits[i].ChunkID.String() < hits[j].ChunkID.String()
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = h.Result
	}
	return results, nil
}

// Touch increments usage counters and stamps last-used time.
func (m *MemoryIndex) Touch(_ context.Context, chunkIDs []uuid.UUID) error {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range chunkIDs {
		for _, row := range m.rows[id] {
			row.UsageCount++
			t := now
			row.LastUsedAt = &t
		}
	}
	return nil
}

// cosineSimilarity maps cosine from [-1, 1] into [0, 1] so callers compare
// and threshold on a single convention across index implementations.
func cosineSimilarity(a, b embedding.Vector) float64 {
	return (1 + embedding.Dot(a, b)) / 2
}
