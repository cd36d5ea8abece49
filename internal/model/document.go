package model

import (
	"time"

	"gorm.io/datatypes"
)

type Document struct {
	ID                uint                                 `gorm:"primaryKey" json:"id"`
	SessionID         uint                                 `gorm:"not null;index" json:"sessionId"`
	Title             string                               `gorm:"size:256;not null" json:"title"`
	Content           string                               `json:"content"`
	Status            DocumentStatus                       `gorm:"size:16;not null;index" json:"status"`
	FilePath          string                               `gorm:"size:1024" json:"filePath,omitempty"`
	SizeBytes         int64                                `gorm:"not null;default:0" json:"sizeBytes"`
	UploadCompletedAt *time.Time                           `json:"uploadCompletedAt,omitempty"`
	Metadata          datatypes.JSONType[DocumentMetadata] `json:"metadata"`
	CreatedAt         time.Time                            `gorm:"index" json:"createdAt"`
	UpdatedAt         time.Time                            `json:"updatedAt"`
}

// DocumentMetadata carries the typed provenance fields. Error is only set
// while the document is failed; Extra holds whatever the client sent at init.
type DocumentMetadata struct {
	Filename  string         `json:"filename,omitempty"`
	SizeBytes int64          `json:"sizeBytes,omitempty"`
	Error     string         `json:"error,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func (d *Document) Meta() DocumentMetadata {
	return d.Metadata.Data()
}

func (d *Document) SetMeta(meta DocumentMetadata) {
	d.Metadata = datatypes.NewJSONType(meta)
}
