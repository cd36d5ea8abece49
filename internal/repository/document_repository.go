package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"docchat/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

type CompletionInput struct {
	DocumentID uint
	Content    string
	Chunks     []model.Chunk
}

type CompletionResult struct {
	SessionID     uint
	SupersededIDs []uint
	DeletedChunks int64
}

type CleanupResult struct {
	DeletedDocuments int64
	DeletedChunks    int64
	DocumentIDs      []uint
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).First(&doc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndSessionID(ctx context.Context, id, sessionID uint) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ? AND session_id = ?", id, sessionID).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// UpdateUploadProgress records the cumulative upload size. It only touches a
// document that still accepts chunks and reports whether it did.
func (r *DocumentRepository) UpdateUploadProgress(ctx context.Context, id uint, sizeBytes int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status IN ?", id, []model.DocumentStatus{model.StatusPending, model.StatusUploading}).
		Updates(map[string]any{"status": model.StatusUploading, "size_bytes": sizeBytes})
	if res.Error != nil {
		return false, fmt.Errorf("update upload progress failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// TransitionStatus moves the document from one status to another only if it is
// still in from. fields are written in the same statement.
func (r *DocumentRepository) TransitionStatus(ctx context.Context, id uint, from, to model.DocumentStatus, fields map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal document transition %s -> %s", from, to)
	}
	updates := map[string]any{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition document failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed records reason in the document's metadata and moves it to
// failed. Documents already ready or failed are left alone.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id uint, reason string) (bool, error) {
	marked := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.First(&doc, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if !doc.Status.CanTransitionTo(model.StatusFailed) {
			return nil
		}
		meta := doc.Meta()
		meta.Error = reason
		doc.SetMeta(meta)
		res := tx.Model(&model.Document{}).
			Where("id = ? AND status = ?", id, doc.Status).
			Updates(map[string]any{"status": model.StatusFailed, "metadata": doc.Metadata})
		if res.Error != nil {
			return res.Error
		}
		marked = res.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark document failed failed: %w", err)
	}
	return marked, nil
}

// OldestProcessing returns the document that has waited longest in
// processing, or nil when none does.
func (r *DocumentRepository) OldestProcessing(ctx context.Context) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.StatusProcessing).
		Order("created_at ASC").
		Order("id ASC").
		First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get oldest processing document failed: %w", err)
	}
	return &doc, nil
}

// CompleteProcessing commits a processing run in one transaction: the
// document becomes ready with its new chunks, the session points at it, and
// the previously active document plus any other finished document of the
// session are deleted with their chunks. ErrStaleDocument is returned when
// the document is no longer processing or ready.
func (r *DocumentRepository) CompleteProcessing(ctx context.Context, in CompletionInput) (*CompletionResult, error) {
	result := &CompletionResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		if err := tx.First(&doc, in.DocumentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStaleDocument
			}
			return fmt.Errorf("load document failed: %w", err)
		}
		if doc.Status != model.StatusProcessing && doc.Status != model.StatusReady {
			return ErrStaleDocument
		}
		result.SessionID = doc.SessionID

		meta := doc.Meta()
		meta.Error = ""
		doc.SetMeta(meta)
		res := tx.Model(&model.Document{}).
			Where("id = ? AND status IN ?", doc.ID, []model.DocumentStatus{model.StatusProcessing, model.StatusReady}).
			Updates(map[string]any{"status": model.StatusReady, "content": in.Content, "metadata": doc.Metadata})
		if res.Error != nil {
			return fmt.Errorf("mark document ready failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleDocument
		}

		if err := tx.Where("document_id = ?", doc.ID).Delete(&model.Chunk{}).Error; err != nil {
			return fmt.Errorf("delete old chunks failed: %w", err)
		}
		if len(in.Chunks) > 0 {
			for i := range in.Chunks {
				in.Chunks[i].ID = 0
				in.Chunks[i].DocumentID = doc.ID
			}
			if err := tx.CreateInBatches(in.Chunks, 100).Error; err != nil {
				return fmt.Errorf("insert chunks failed: %w", err)
			}
		}

		var session model.Session
		query := tx
		if tx.Dialector.Name() != "sqlite" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&session, doc.SessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionMissing
			}
			return fmt.Errorf("lock session failed: %w", err)
		}
		if err := setActiveDocument(tx, session.ID, &doc.ID); err != nil {
			return err
		}

		finished := []model.DocumentStatus{model.StatusReady, model.StatusFailed}
		victims := tx.Model(&model.Document{}).Where("session_id = ? AND id <> ?", session.ID, doc.ID)
		if session.ActiveDocumentID != nil && *session.ActiveDocumentID != doc.ID {
			victims = victims.Where("id = ? OR status IN ?", *session.ActiveDocumentID, finished)
		} else {
			victims = victims.Where("status IN ?", finished)
		}
		if err := victims.Pluck("id", &result.SupersededIDs).Error; err != nil {
			return fmt.Errorf("list superseded documents failed: %w", err)
		}
		_, chunks, err := deleteDocuments(tx, result.SupersededIDs)
		if err != nil {
			return err
		}
		result.DeletedChunks = chunks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Cleanup deletes the session's documents created before olderThan together
// with their chunks, and clears the active pointer if it referenced one.
func (r *DocumentRepository) Cleanup(ctx context.Context, sessionID uint, olderThan time.Time) (*CleanupResult, error) {
	result := &CleanupResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Document{}).
			Where("session_id = ? AND created_at < ?", sessionID, olderThan).
			Pluck("id", &result.DocumentIDs).Error; err != nil {
			return fmt.Errorf("list stale documents failed: %w", err)
		}
		if len(result.DocumentIDs) == 0 {
			return nil
		}
		if err := tx.Model(&model.Session{}).
			Where("id = ? AND active_document_id IN ?", sessionID, result.DocumentIDs).
			Update("active_document_id", nil).Error; err != nil {
			return fmt.Errorf("clear active document failed: %w", err)
		}
		docs, chunks, err := deleteDocuments(tx, result.DocumentIDs)
		if err != nil {
			return err
		}
		result.DeletedDocuments = docs
		result.DeletedChunks = chunks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
