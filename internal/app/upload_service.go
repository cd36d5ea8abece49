package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/upload"
)

const (
	defaultUploadSessionTitle  = "Upload Session"
	defaultUploadDocumentTitle = "Uploaded Document"
	uploadTooLargeMessage      = "max upload size exceeded"
)

// Queue hands a finalized document to the processor. Enqueue must not block
// on the processing itself.
type Queue interface {
	Enqueue(ctx context.Context, documentID uint) error
}

type UploadRecorder interface {
	ObserveUploadChunk(outcome string, bytes int64)
}

type UploadLimits struct {
	MaxUploadBytes int64
	MaxChunkBytes  int64
}

type UploadService struct {
	sessionRepo  *repository.SessionRepository
	documentRepo *repository.DocumentRepository
	historyCache HistoryCache
	signer       *upload.Signer
	store        *upload.Store
	queue        Queue
	recorder     UploadRecorder
	limits       UploadLimits
	locks        keyedMutex
}

type InitUploadInput struct {
	SessionID uint
	Title     string
	Filename  string
	SizeBytes int64
	Metadata  map[string]any
}

type InitUploadResult struct {
	Token      string `json:"token"`
	DocumentID uint   `json:"docId"`
	SessionID  uint   `json:"sessionId"`
	Nonce      string `json:"nonce"`
	ExpiresAt  int64  `json:"exp"`
}

type AppendResult struct {
	ReceivedBytes int64 `json:"receivedBytes"`
	TotalBytes    int64 `json:"totalBytes"`
}

type CompleteResult struct {
	DocumentID uint                 `json:"docId"`
	SizeBytes  int64                `json:"sizeBytes"`
	Status     model.DocumentStatus `json:"status"`
}

func NewUploadService(
	sessionRepo *repository.SessionRepository,
	documentRepo *repository.DocumentRepository,
	historyCache HistoryCache,
	signer *upload.Signer,
	store *upload.Store,
	queue Queue,
	recorder UploadRecorder,
	limits UploadLimits,
) *UploadService {
	return &UploadService{
		sessionRepo:  sessionRepo,
		documentRepo: documentRepo,
		historyCache: historyCache,
		signer:       signer,
		store:        store,
		queue:        queue,
		recorder:     recorder,
		limits:       limits,
	}
}

// InitUpload creates the document, makes it the session's active document,
// clears the session's chat history and issues the upload ticket.
func (s *UploadService) InitUpload(ctx context.Context, input InitUploadInput) (*InitUploadResult, error) {
	if input.SizeBytes < 0 {
		return nil, ErrInvalidInput
	}
	if input.SizeBytes > s.limits.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	var session *model.Session
	if input.SessionID != 0 {
		existing, err := s.sessionRepo.GetByID(ctx, input.SessionID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, ErrSessionNotFound
		}
		session = existing
	} else {
		session = &model.Session{Title: defaultUploadSessionTitle}
		if err := s.sessionRepo.Create(ctx, session); err != nil {
			return nil, err
		}
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = defaultUploadDocumentTitle
	}
	doc := &model.Document{
		SessionID: session.ID,
		Title:     title,
		Status:    model.StatusUploading,
	}
	doc.SetMeta(model.DocumentMetadata{
		Filename:  strings.TrimSpace(input.Filename),
		SizeBytes: input.SizeBytes,
		Extra:     input.Metadata,
	})

	cleared, err := s.sessionRepo.BeginUpload(ctx, doc)
	if err != nil {
		return nil, err
	}
	invalidateHistory(ctx, s.historyCache, session.ID)

	token, ticket, err := s.signer.Issue(doc.ID, session.ID)
	if err != nil {
		s.fail(ctx, doc.ID, err.Error())
		return nil, err
	}
	if err := s.store.Create(ticket); err != nil {
		s.fail(ctx, doc.ID, err.Error())
		return nil, err
	}

	log.Info().
		Uint("session_id", session.ID).
		Uint("document_id", doc.ID).
		Int64("declared_bytes", input.SizeBytes).
		Int64("cleared_messages", cleared).
		Msg("upload initialized")
	return &InitUploadResult{
		Token:      token,
		DocumentID: doc.ID,
		SessionID:  session.ID,
		Nonce:      ticket.Nonce,
		ExpiresAt:  ticket.ExpiresAt.Unix(),
	}, nil
}

// AppendChunk appends data to the ticket's temp file. Crossing the upload cap
// deletes the temp file and fails the document.
func (s *UploadService) AppendChunk(ctx context.Context, token string, data []byte) (*AppendResult, error) {
	ticket, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyChunk
	}
	if s.limits.MaxChunkBytes > 0 && int64(len(data)) > s.limits.MaxChunkBytes {
		s.observe("too_large", 0)
		return nil, ErrChunkTooLarge
	}

	unlock := s.locks.Lock(ticket.DocumentID)
	defer unlock()

	doc, err := s.documentFor(ctx, ticket)
	if err != nil {
		return nil, err
	}
	if !doc.Status.AcceptsChunks() {
		s.observe("rejected", 0)
		return nil, ErrUploadClosed
	}

	written, total, err := s.store.Append(ticket, bytes.NewReader(data))
	if err != nil {
		s.observe("error", written)
		return nil, err
	}
	if total > s.limits.MaxUploadBytes {
		if err := s.store.Remove(s.store.TempPath(ticket)); err != nil {
			log.Warn().Err(err).Uint("document_id", doc.ID).Msg("remove oversized upload failed")
		}
		s.fail(ctx, doc.ID, uploadTooLargeMessage)
		s.observe("too_large", written)
		return nil, ErrUploadTooLarge
	}

	ok, err := s.documentRepo.UpdateUploadProgress(ctx, doc.ID, total)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.observe("rejected", written)
		return nil, ErrUploadClosed
	}
	s.observe("accepted", written)
	return &AppendResult{ReceivedBytes: written, TotalBytes: total}, nil
}

// CompleteUpload promotes the temp file and hands the document to the
// processing queue. Only one caller per document can win the
// uploading -> processing transition.
func (s *UploadService) CompleteUpload(ctx context.Context, token, filename string) (*CompleteResult, error) {
	ticket, err := s.verify(token)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(ticket.DocumentID)
	defer unlock()

	doc, err := s.documentFor(ctx, ticket)
	if err != nil {
		return nil, err
	}
	switch doc.Status {
	case model.StatusUploading:
	case model.StatusProcessing, model.StatusReady:
		return nil, ErrDuplicateCompletion
	case model.StatusFailed:
		return nil, ErrUploadClosed
	default:
		return nil, ErrUploadNotFound
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = doc.Meta().Filename
	}
	finalPath, size, err := s.store.Promote(ticket, filename)
	if errors.Is(err, upload.ErrUploadMissing) {
		return nil, ErrUploadNotFound
	}
	if err != nil {
		return nil, err
	}
	if size > s.limits.MaxUploadBytes {
		if err := s.store.Remove(finalPath); err != nil {
			log.Warn().Err(err).Uint("document_id", doc.ID).Msg("remove oversized upload failed")
		}
		s.fail(ctx, doc.ID, uploadTooLargeMessage)
		return nil, ErrUploadTooLarge
	}

	ok, err := s.documentRepo.TransitionStatus(ctx, doc.ID, model.StatusUploading, model.StatusProcessing, map[string]any{
		"file_path":           finalPath,
		"size_bytes":          size,
		"upload_completed_at": time.Now(),
	})
	if err != nil {
		s.fail(ctx, doc.ID, err.Error())
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicateCompletion
	}

	if err := s.queue.Enqueue(ctx, doc.ID); err != nil {
		s.fail(ctx, doc.ID, err.Error())
		return nil, fmt.Errorf("%w: enqueue document %d: %v", ErrProcessing, doc.ID, err)
	}

	log.Info().Uint("document_id", doc.ID).Int64("size_bytes", size).Msg("upload completed, processing queued")
	return &CompleteResult{DocumentID: doc.ID, SizeBytes: size, Status: model.StatusProcessing}, nil
}

func (s *UploadService) verify(token string) (upload.Ticket, error) {
	if strings.TrimSpace(token) == "" {
		return upload.Ticket{}, ErrMissingTicket
	}
	ticket, err := s.signer.Verify(token)
	if err != nil {
		event := log.Warn().Err(err)
		switch {
		case errors.Is(err, upload.ErrTicketExpired):
			event.Str("reason", "expired")
		case errors.Is(err, upload.ErrTicketSignature):
			event.Str("reason", "signature")
		default:
			event.Str("reason", "malformed")
		}
		event.Msg("upload ticket rejected")
		return upload.Ticket{}, ErrInvalidTicket
	}
	return ticket, nil
}

func (s *UploadService) documentFor(ctx context.Context, ticket upload.Ticket) (*model.Document, error) {
	doc, err := s.documentRepo.GetByIDAndSessionID(ctx, ticket.DocumentID, ticket.SessionID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	return doc, nil
}

func (s *UploadService) fail(ctx context.Context, documentID uint, reason string) {
	if _, err := s.documentRepo.MarkFailed(context.WithoutCancel(ctx), documentID, reason); err != nil {
		log.Error().Err(err).Uint("document_id", documentID).Msg("mark document failed failed")
		return
	}
	log.Warn().Uint("document_id", documentID).Str("reason", reason).Msg("document failed")
}

func (s *UploadService) observe(outcome string, n int64) {
	if s.recorder != nil {
		s.recorder.ObserveUploadChunk(outcome, n)
	}
}
