package validation

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// ErrNoValidations indicates the chunk has never been validated.
var ErrNoValidations = errors.New("no validations recorded")

// Store persists the validation audit trail. Append never overwrites.
type Store interface {
	Append(ctx context.Context, v ContentValidation) error
	Latest(ctx context.Context, chunkID uuid.UUID) (ContentValidation, error)
	History(ctx context.Context, chunkID uuid.UUID) ([]ContentValidation, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	byChunk map[uuid.UUID][]ContentValidation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byChunk: make(map[uuid.UUID][]ContentValidation)}
}

func (m *MemoryStore) Append(_ context.Context, v ContentValidation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byChunk[v.ChunkID] = append(m.byChunk[v.ChunkID], v)
	return nil
}

func (m *MemoryStore) Latest(_ context.Context, chunkID uuid.UUID) (ContentValidation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.byChunk[chunkID]
	if len(history) == 0 {
		return ContentValidation{}, ErrNoValidations
	}
	return history[len(history)-1], nil
}

func (m *MemoryStore) History(_ context.Context, chunkID uuid.UUID) ([]ContentValidation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := append([]ContentValidation(nil), m.byChunk[chunkID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt)
	})
	return history, nil
}
