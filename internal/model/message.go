package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Message struct {
	ID        uint                                `gorm:"primaryKey" json:"id"`
	SessionID uint                                `gorm:"not null;index" json:"sessionId"`
	Role      string                              `gorm:"size:16;not null" json:"role"`
	Content   string                              `gorm:"not null" json:"content"`
	Metadata  datatypes.JSONType[MessageMetadata] `json:"metadata"`
	CreatedAt time.Time                           `gorm:"index" json:"createdAt"`
}

type MessageMetadata struct {
	DocumentID uint       `json:"docId,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
}

// Citation is the client-facing view of a retrieved chunk.
type Citation struct {
	ID        uint          `json:"id"`
	Content   string        `json:"content"`
	Score     float64       `json:"score"`
	PageStart int           `json:"pageStart"`
	PageEnd   int           `json:"pageEnd"`
	Metadata  ChunkMetadata `json:"metadata"`
}

func CitationFromScored(sc ScoredChunk) Citation {
	meta := sc.Metadata.Data()
	return Citation{
		ID:        sc.ID,
		Content:   sc.Content,
		Score:     sc.Distance,
		PageStart: meta.PageStart,
		PageEnd:   meta.PageEnd,
		Metadata:  meta,
	}
}
