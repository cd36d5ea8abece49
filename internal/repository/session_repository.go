package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docchat/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

type ResetResult struct {
	ClearedMessages  int64
	ClearedDocuments int64
	DocumentIDs      []uint
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session *model.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create session failed: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id uint) (*model.Session, error) {
	var session model.Session
	if err := r.db.WithContext(ctx).First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session failed: %w", err)
	}
	return &session, nil
}

// BeginUpload inserts doc, points the session at it and clears the session's
// chat history, all in one transaction. It returns the number of messages removed.
func (r *SessionRepository) BeginUpload(ctx context.Context, doc *model.Document) (int64, error) {
	var cleared int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return fmt.Errorf("create document failed: %w", err)
		}
		if err := setActiveDocument(tx, doc.SessionID, &doc.ID); err != nil {
			return err
		}
		res := tx.Where("session_id = ?", doc.SessionID).Delete(&model.Message{})
		if res.Error != nil {
			return fmt.Errorf("clear session messages failed: %w", res.Error)
		}
		cleared = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return cleared, nil
}

// Reset removes every message, document and chunk of the session and clears
// its active pointer. The session row itself survives.
func (r *SessionRepository) Reset(ctx context.Context, sessionID uint) (*ResetResult, error) {
	result := &ResetResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("session_id = ?", sessionID).Delete(&model.Message{})
		if res.Error != nil {
			return fmt.Errorf("delete session messages failed: %w", res.Error)
		}
		result.ClearedMessages = res.RowsAffected

		if err := tx.Model(&model.Document{}).Where("session_id = ?", sessionID).Pluck("id", &result.DocumentIDs).Error; err != nil {
			return fmt.Errorf("list session documents failed: %w", err)
		}
		deleted, _, err := deleteDocuments(tx, result.DocumentIDs)
		if err != nil {
			return err
		}
		result.ClearedDocuments = deleted

		return setActiveDocument(tx, sessionID, nil)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func setActiveDocument(tx *gorm.DB, sessionID uint, documentID *uint) error {
	if err := tx.Model(&model.Session{}).Where("id = ?", sessionID).Update("active_document_id", documentID).Error; err != nil {
		return fmt.Errorf("update active document failed: %w", err)
	}
	return nil
}

// deleteDocuments removes the documents and their chunks. It returns the
// number of documents and chunks deleted.
func deleteDocuments(tx *gorm.DB, ids []uint) (int64, int64, error) {
	if len(ids) == 0 {
		return 0, 0, nil
	}
	chunks := tx.Where("document_id IN ?", ids).Delete(&model.Chunk{})
	if chunks.Error != nil {
		return 0, 0, fmt.Errorf("delete chunks failed: %w", chunks.Error)
	}
	docs := tx.Where("id IN ?", ids).Delete(&model.Document{})
	if docs.Error != nil {
		return 0, 0, fmt.Errorf("delete documents failed: %w", docs.Error)
	}
	return docs.RowsAffected, chunks.RowsAffected, nil
}
