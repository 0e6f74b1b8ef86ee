package knowledge

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors checked with errors.Is.
var (
	ErrKnowledgeBaseNotFound = errors.New("knowledge base not found")
	ErrChunkNotFound         = errors.New("chunk not found")
)

// Store persists knowledge bases and chunks. Implementations must keep a
// knowledge base's ChunkIDs consistent with the chunks it owns: AddChunks
// appends, DeleteKnowledgeBase cascades.
type Store interface {
	CreateKnowledgeBase(ctx context.Context, kb KnowledgeBase) error
	GetKnowledgeBase(ctx context.Context, id uuid.UUID) (KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error)
	UpdateEmbeddingModel(ctx context.Context, id uuid.UUID, model string) error

	// DeleteKnowledgeBase removes the base and all chunks it owns.
	DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error

	// AddChunks persists the chunks and appends their ids to the owning
	// knowledge base, in chunk order.
	AddChunks(ctx context.Context, kbID uuid.UUID, chunks []Chunk) error

	GetChunk(ctx context.Context, id uuid.UUID) (Chunk, error)
	ListChunks(ctx context.Context, kbID uuid.UUID) ([]Chunk, error)

	// MarkChunkValidated records that the chunk has at least one validation.
	MarkChunkValidated(ctx context.Context, id uuid.UUID) error
}
