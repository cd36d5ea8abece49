package repository

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"docchat/internal/model"
	"docchat/internal/pkg/vecmath"
)

type ChunkRepository struct {
	db *gorm.DB
}

func NewChunkRepository(db *gorm.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// Search returns up to limit chunks of the document nearest to query by cosine
// distance. The document must belong to sessionID; a mismatch yields no rows.
// Postgres ranks with pgvector's <=> operator, other dialects rank in process.
func (r *ChunkRepository) Search(ctx context.Context, documentID, sessionID uint, query []float32, limit int) ([]model.ScoredChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	if r.db.Dialector.Name() == "postgres" {
		return r.searchPgvector(ctx, documentID, sessionID, query, limit)
	}

	chunks, err := r.scoped(ctx, documentID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("search chunks failed: %w", err)
	}
	distances := make([]float64, len(chunks))
	for i := range chunks {
		distances[i] = vecmath.CosineDistance(query, chunks[i].Embedding.Slice())
	}
	order := vecmath.RankAscending(distances, limit)
	scored := make([]model.ScoredChunk, 0, len(order))
	for _, i := range order {
		scored = append(scored, model.ScoredChunk{Chunk: chunks[i], Distance: distances[i]})
	}
	return scored, nil
}

func (r *ChunkRepository) searchPgvector(ctx context.Context, documentID, sessionID uint, query []float32, limit int) ([]model.ScoredChunk, error) {
	var scored []model.ScoredChunk
	if err := r.db.WithContext(ctx).
		Table("chunks").
		Select("chunks.*, chunks.embedding <=> ? AS distance", pgvector.NewVector(query)).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("chunks.document_id = ? AND documents.session_id = ?", documentID, sessionID).
		Order("distance ASC").
		Order("chunks.chunk_index ASC").
		Limit(limit).
		Scan(&scored).Error; err != nil {
		return nil, fmt.Errorf("search chunks failed: %w", err)
	}
	return scored, nil
}

func (r *ChunkRepository) ListByDocumentID(ctx context.Context, documentID, sessionID uint) ([]model.Chunk, error) {
	chunks, err := r.scoped(ctx, documentID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list chunks failed: %w", err)
	}
	return chunks, nil
}

func (r *ChunkRepository) CountByDocumentID(ctx context.Context, documentID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Chunk{}).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count chunks failed: %w", err)
	}
	return count, nil
}

func (r *ChunkRepository) scoped(ctx context.Context, documentID, sessionID uint) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = chunks.document_id").
		Where("chunks.document_id = ? AND documents.session_id = ?", documentID, sessionID).
		Order("chunks.chunk_index ASC").
		Order("chunks.id ASC").
		Find(&chunks).Error
	return chunks, err
}
