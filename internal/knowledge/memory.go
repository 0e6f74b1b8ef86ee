package knowledge

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and memory-mode deployments.
type MemoryStore struct {
	mu     sync.RWMutex
	bases  map[uuid.UUID]*KnowledgeBase
	chunks map[uuid.UUID]*Chunk
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bases:  make(map[uuid.UUID]*KnowledgeBase),
		chunks: make(map[uuid.UUID]*Chunk),
	}
}

func (m *MemoryStore) CreateKnowledgeBase(_ context.Context, kb KnowledgeBase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneBase(kb)
	m.bases[kb.ID] = &clone
	return nil
}

func (m *MemoryStore) GetKnowledgeBase(_ context.Context, id uuid.UUID) (KnowledgeBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kb, ok := m.bases[id]
	if !ok {
		return KnowledgeBase{}, ErrKnowledgeBaseNotFound
	}
	return cloneBase(*kb), nil
}

func (m *MemoryStore) ListKnowledgeBases(_ context.Context) ([]KnowledgeBase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bases := make([]KnowledgeBase, 0, len(m.bases))
	for _, kb := range m.bases {
		bases = append(bases, cloneBase(*kb))
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i].CreatedAt.Before(bases[j].CreatedAt) })
	return bases, nil
}

func (m *MemoryStore) UpdateEmbeddingModel(_ context.Context, id uuid.UUID, model string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kb, ok := m.bases[id]
	if !ok {
		return ErrKnowledgeBaseNotFound
	}
	kb.EmbeddingModel = model
	kb.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) DeleteKnowledgeBase(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kb, ok := m.bases[id]
	if !ok {
		return ErrKnowledgeBaseNotFound
	}
	for _, chunkID := range kb.ChunkIDs {
		delete(m.chunks, chunkID)
	}
	delete(m.bases, id)
	return nil
}

func (m *MemoryStore) AddChunks(_ context.Context, kbID uuid.UUID, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kb, ok := m.bases[kbID]
	if !ok {
		return ErrKnowledgeBaseNotFound
	}
	for _, chunk := range chunks {
		clone := cloneChunk(chunk)
		m.chunks[chunk.ID] = &clone
		kb.ChunkIDs = append(kb.ChunkIDs, chunk.ID)
	}
	kb.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) GetChunk(_ context.Context, id uuid.UUID) (Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return Chunk{}, ErrChunkNotFound
	}
	return cloneChunk(*chunk), nil
}

func (m *MemoryStore) ListChunks(_ context.Context, kbID uuid.UUID) ([]Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	kb, ok := m.bases[kbID]
	if !ok {
		return nil, ErrKnowledgeBaseNotFound
	}
	chunks := make([]Chunk, 0, len(kb.ChunkIDs))
	for _, chunkID := range kb.ChunkIDs {
		if chunk, ok := m.chunks[chunkID]; ok {
			chunks = append(chunks, cloneChunk(*chunk))
		}
	}
	return chunks, nil
}

func (m *MemoryStore) MarkChunkValidated(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return ErrChunkNotFound
	}
	chunk.Validated = true
	return nil
}

func cloneBase(kb KnowledgeBase) KnowledgeBase {
	kb.Tags = append([]string(nil), kb.Tags...)
	kb.ChunkIDs = append([]uuid.UUID(nil), kb.ChunkIDs...)
	return kb
}

func cloneChunk(c Chunk) Chunk {
	c.Concepts = append([]string(nil), c.Concepts...)
	c.LearningObjectives = append([]string(nil), c.LearningObjectives...)
	c.Prerequisites = append([]string(nil), c.Prerequisites...)
	return c
}
