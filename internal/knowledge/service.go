package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rgknow/edurag/internal/apperr"
	"github.com/rgknow/edurag/internal/embedding"
	"github.com/rgknow/edurag/internal/retrieval"
)

// reindexConcurrency bounds parallel embedding calls during model migration.
const reindexConcurrency = 4

// Service runs the ingestion pipeline: create knowledge bases, split
// documents into chunks, embed them, and keep the retrieval index in sync.
type Service struct {
	store     Store
	index     retrieval.Index
	retriever *retrieval.Retriever
	registry  *embedding.Registry

	chunkSize    int
	chunkOverlap int
	defaultModel string
	logger       *slog.Logger
}

// NewService wires the ingestion pipeline. chunkSize and chunkOverlap are in
// runes; zero values fall back to the defaults.
func NewService(store Store, index retrieval.Index, registry *embedding.Registry, defaultModel string, chunkSize, chunkOverlap int, logger *slog.Logger) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = DefaultChunkOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:        store,
		index:        index,
		retriever:    retrieval.NewRetriever(index, logger),
		registry:     registry,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

// CreateParams describes a new knowledge base.
type CreateParams struct {
	Name           string
	Description    string
	Subject        string
	Grade          string
	Difficulty     Difficulty
	ContentType    string
	Tags           []string
	OwnerID        uuid.UUID
	IsPublic       bool
	EmbeddingModel string // empty = service default
}

// CreateKnowledgeBase validates params and creates an empty knowledge base.
func (s *Service) CreateKnowledgeBase(ctx context.Context, params CreateParams) (KnowledgeBase, error) {
	if strings.TrimSpace(params.Name) == "" {
		return KnowledgeBase{}, apperr.New(apperr.InvalidInput, "name is required")
	}
	if strings.TrimSpace(params.Subject) == "" {
		return KnowledgeBase{}, apperr.New(apperr.InvalidInput, "subject is required")
	}
	if strings.TrimSpace(params.Grade) == "" {
		return KnowledgeBase{}, apperr.New(apperr.InvalidInput, "grade is required")
	}
	if !params.Difficulty.Valid() {
		return KnowledgeBase{}, apperr.New(apperr.InvalidInput, "unknown difficulty %q", params.Difficulty)
	}

	model := params.EmbeddingModel
	if model == "" {
		model = s.defaultModel
	}
	if _, err := s.registry.Lookup(model); err != nil {
		return KnowledgeBase{}, apperr.Wrap(apperr.Unavailable, err, "embedding model %q", model)
	}

	now := time.Now()
	kb := KnowledgeBase{
		ID:             uuid.New(),
		Name:           params.Name,
		Description:    params.Description,
		Subject:        params.Subject,
		Grade:          params.Grade,
		Difficulty:     params.Difficulty,
		ContentType:    params.ContentType,
		Tags:           params.Tags,
		OwnerID:        params.OwnerID,
		IsPublic:       params.IsPublic,
		EmbeddingModel: model,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateKnowledgeBase(ctx, kb); err != nil {
		return KnowledgeBase{}, fmt.Errorf("create knowledge base: %w", err)
	}

	s.logger.Info("knowledge base created",
		"id", kb.ID, "subject", kb.Subject, "grade", kb.Grade, "model", model)
	return kb, nil
}

// GetKnowledgeBase returns the knowledge base or a NotFound error.
func (s *Service) GetKnowledgeBase(ctx context.Context, id uuid.UUID) (KnowledgeBase, error) {
	kb, err := s.store.GetKnowledgeBase(ctx, id)
	if errors.Is(err, ErrKnowledgeBaseNotFound) {
		return KnowledgeBase{}, apperr.Wrap(apperr.NotFound, err, "knowledge base %s", id)
	}
	return kb, err
}

// ListKnowledgeBases returns all knowledge bases, oldest first.
func (s *Service) ListKnowledgeBases(ctx context.Context) ([]KnowledgeBase, error) {
	return s.store.ListKnowledgeBases(ctx)
}

// ProcessContent splits a document into chunks, embeds them with the
// knowledge base's model, persists them, and indexes them for retrieval.
// Embedding runs before anything is persisted, so an embedding failure
// leaves no partial content behind. New chunks are retrievable immediately;
// validation can later revoke them.
func (s *Service) ProcessContent(ctx context.Context, kbID uuid.UUID, document string, meta ContentMetadata) ([]Chunk, error) {
	if strings.TrimSpace(document) == "" {
		return nil, apperr.New(apperr.InvalidInput, "document is empty")
	}

	kb, err := s.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, err
	}

	embedder, err := s.registry.Lookup(kb.EmbeddingModel)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embedding model %q", kb.EmbeddingModel)
	}

	drafts, err := Split(document, s.chunkSize, s.chunkOverlap)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, "split document")
	}

	var collected []ChunkDraft
	for draft := range drafts {
		collected = append(collected, draft)
	}
	if len(collected) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "document produced no chunks")
	}

	texts := make([]string, len(collected))
	for i, draft := range collected {
		texts[i] = draft.Content
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embed %d chunks", len(texts))
	}

	now := time.Now()
	chunks := make([]Chunk, len(collected))
	for i, draft := range collected {
		chunks[i] = Chunk{
			ID:                 uuid.New(),
			KnowledgeBaseID:    kbID,
			Content:            draft.Content,
			Position:           draft.Position,
			StartOffset:        draft.StartOffset,
			EndOffset:          draft.EndOffset,
			Concepts:           meta.Concepts,
			LearningObjectives: meta.LearningObjectives,
			Prerequisites:      meta.Prerequisites,
			CourseID:           meta.CourseID,
			LessonID:           meta.LessonID,
			CreatedAt:          now,
		}
	}
	if err := s.store.AddChunks(ctx, kbID, chunks); err != nil {
		return nil, fmt.Errorf("persist chunks: %w", err)
	}

	for i, chunk := range chunks {
		err := s.index.Upsert(ctx, retrieval.Embedding{
			ChunkID:         chunk.ID,
			KnowledgeBaseID: kbID,
			Vector:          vectors[i],
			Model:           kb.EmbeddingModel,
			Subject:         kb.Subject,
			Grade:           kb.Grade,
			Difficulty:      string(kb.Difficulty),
			Concepts:        chunk.Concepts,
			CourseID:        chunk.CourseID,
			LessonID:        chunk.LessonID,
			Eligible:        true,
			CreatedAt:       now,
		})
		if err != nil {
			return nil, fmt.Errorf("index chunk %s: %w", chunk.ID, err)
		}
	}

	s.logger.Info("content processed",
		"knowledge_base", kbID, "chunks", len(chunks), "model", kb.EmbeddingModel)
	return chunks, nil
}

// DeleteKnowledgeBase removes the base, its chunks, and their index entries.
func (s *Service) DeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteKnowledgeBase(ctx, id); err != nil {
		if errors.Is(err, ErrKnowledgeBaseNotFound) {
			return apperr.Wrap(apperr.NotFound, err, "knowledge base %s", id)
		}
		return fmt.Errorf("delete knowledge base: %w", err)
	}
	if err := s.index.DeleteByKnowledgeBase(ctx, id); err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}
	s.logger.Info("knowledge base deleted", "id", id)
	return nil
}

// Reindex re-embeds every chunk of the knowledge base with a new model and
// switches the base over once all chunks are indexed. Old-model rows are
// replaced per chunk, so searches against the old model degrade gradually
// rather than going dark mid-migration.
func (s *Service) Reindex(ctx context.Context, kbID uuid.UUID, newModel string) error {
	kb, err := s.GetKnowledgeBase(ctx, kbID)
	if err != nil {
		return err
	}
	embedder, err := s.registry.Lookup(newModel)
	if err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "embedding model %q", newModel)
	}

	chunks, err := s.store.ListChunks(ctx, kbID)
	if err != nil {
		return fmt.Errorf("list chunks: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reindexConcurrency)
	for _, chunk := range chunks {
		g.Go(func() error {
			vec, err := embedder.Embed(gctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("embed chunk %s: %w", chunk.ID, err)
			}
			return s.index.Upsert(gctx, retrieval.Embedding{
				ChunkID:         chunk.ID,
				KnowledgeBaseID: kbID,
				Vector:          vec,
				Model:           newModel,
				Subject:         kb.Subject,
				Grade:           kb.Grade,
				Difficulty:      string(kb.Difficulty),
				Concepts:        chunk.Concepts,
				CourseID:        chunk.CourseID,
				LessonID:        chunk.LessonID,
				Eligible:        true,
				CreatedAt:       time.Now(),
			})
		})
	}
	if err := g.Wait(); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "reindex knowledge base %s", kbID)
	}

	if err := s.store.UpdateEmbeddingModel(ctx, kbID, newModel); err != nil {
		return fmt.Errorf("switch embedding model: %w", err)
	}
	s.logger.Info("knowledge base reindexed", "id", kbID, "model", newModel)
	return nil
}

// SearchHit pairs a retrieved chunk with its similarity score.
type SearchHit struct {
	Chunk      Chunk
	Similarity float64
}

// Search embeds the query text and returns the best-matching chunks. When the
// filters pin knowledge bases, their shared model is used; otherwise the
// service default model searches across bases indexed with it.
func (s *Service) Search(ctx context.Context, query string, filters retrieval.Filters, limit int) ([]SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, apperr.New(apperr.InvalidInput, "query is empty")
	}

	model := s.defaultModel
	for i, kbID := range filters.KnowledgeBaseIDs {
		kb, err := s.GetKnowledgeBase(ctx, kbID)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			model = kb.EmbeddingModel
		} else if kb.EmbeddingModel != model {
			// Vectors from different models are not comparable.
			return nil, apperr.New(apperr.InvalidInput,
				"knowledge bases use different embedding models")
		}
	}

	vec, err := s.registry.Embed(ctx, model, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "embed query")
	}

	results, err := s.retriever.Retrieve(ctx, vec, model, filters, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "search")
	}

	hits := make([]SearchHit, 0, len(results))
	for _, res := range results {
		chunk, err := s.store.GetChunk(ctx, res.ChunkID)
		if errors.Is(err, ErrChunkNotFound) {
			// Index row outlived its chunk; skip rather than fail the search.
			s.logger.Warn("indexed chunk missing from store", "chunk", res.ChunkID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load chunk %s: %w", res.ChunkID, err)
		}
		hits = append(hits, SearchHit{Chunk: chunk, Similarity: res.Similarity})
	}
	return hits, nil
}
