package model

import (
	"time"

	"gorm.io/datatypes"
)

type Chunk struct {
	ID         uint                              `gorm:"primaryKey" json:"id"`
	DocumentID uint                              `gorm:"not null;index:idx_chunks_document_order,priority:1" json:"documentId"`
	ChunkIndex int                               `gorm:"not null;index:idx_chunks_document_order,priority:2" json:"chunkIndex"`
	Content    string                            `gorm:"not null" json:"content"`
	Embedding  Vector                            `gorm:"not null" json:"-"`
	Metadata   datatypes.JSONType[ChunkMetadata] `json:"metadata"`
	CreatedAt  time.Time                         `json:"createdAt"`
}

type ChunkMetadata struct {
	PageStart int    `json:"pageStart"`
	PageEnd   int    `json:"pageEnd"`
	Source    string `json:"source,omitempty"`
}

// ScoredChunk is one retrieval hit. Distance is cosine distance, smaller is closer.
type ScoredChunk struct {
	Chunk
	Distance float64 `json:"distance"`
}
