package app

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"docchat/internal/model"
	"docchat/internal/repository"
)

const (
	defaultChatSessionTitle = "Chat Session"
	historyLimit            = 200
)

type HistoryCache interface {
	Load(ctx context.Context, sessionID uint) ([]model.Message, bool, error)
	Store(ctx context.Context, sessionID uint, messages []model.Message) (bool, error)
	Invalidate(ctx context.Context, sessionID uint) error
}

type FileRemover interface {
	RemoveDocumentFiles(ctx context.Context, documentIDs []uint) (int, error)
}

type SessionService struct {
	sessionRepo  *repository.SessionRepository
	documentRepo *repository.DocumentRepository
	messageRepo  *repository.MessageRepository
	historyCache HistoryCache
	files        FileRemover
}

type SessionView struct {
	Session        model.Session   `json:"session"`
	ActiveDocument *model.Document `json:"activeDocument"`
	Messages       []model.Message `json:"messages"`
}

type ResetResult struct {
	SessionID        uint  `json:"sessionId"`
	ClearedMessages  int64 `json:"clearedMessages"`
	ClearedDocuments int64 `json:"clearedDocuments"`
}

type CleanupResult struct {
	SessionID        uint  `json:"sessionId"`
	DeletedDocuments int64 `json:"deletedDocs"`
	DeletedChunks    int64 `json:"deletedChunks"`
}

func NewSessionService(
	sessionRepo *repository.SessionRepository,
	documentRepo *repository.DocumentRepository,
	messageRepo *repository.MessageRepository,
	historyCache HistoryCache,
	files FileRemover,
) *SessionService {
	return &SessionService{
		sessionRepo:  sessionRepo,
		documentRepo: documentRepo,
		messageRepo:  messageRepo,
		historyCache: historyCache,
		files:        files,
	}
}

func (s *SessionService) CreateSession(ctx context.Context, title string) (*model.Session, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = defaultChatSessionTitle
	}
	session := &model.Session{Title: title}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, sessionID uint) (*SessionView, error) {
	session, err := s.requireSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{Session: *session}
	if session.ActiveDocumentID != nil {
		doc, err := s.documentRepo.GetByID(ctx, *session.ActiveDocumentID)
		if err != nil {
			return nil, err
		}
		view.ActiveDocument = doc
	}

	messages, err := s.history(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	view.Messages = messages
	return view, nil
}

// ResetSession deletes the session's messages, documents and chunks. The
// on-disk files of deleted documents are removed in the background.
func (s *SessionService) ResetSession(ctx context.Context, sessionID uint) (*ResetResult, error) {
	if _, err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	res, err := s.sessionRepo.Reset(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.invalidateHistory(ctx, sessionID)

	if len(res.DocumentIDs) > 0 && s.files != nil {
		ids := res.DocumentIDs
		go func() {
			removed, err := s.files.RemoveDocumentFiles(context.Background(), ids)
			if err != nil {
				log.Warn().Err(err).Uint("session_id", sessionID).Msg("remove reset document files failed")
				return
			}
			log.Debug().Uint("session_id", sessionID).Int("files", removed).Msg("removed reset document files")
		}()
	}

	return &ResetResult{
		SessionID:        sessionID,
		ClearedMessages:  res.ClearedMessages,
		ClearedDocuments: res.ClearedDocuments,
	}, nil
}

// CleanupStaleDocuments purges the session's documents created before
// olderThan. File removal is best effort.
func (s *SessionService) CleanupStaleDocuments(ctx context.Context, sessionID uint, olderThan time.Time) (*CleanupResult, error) {
	if olderThan.IsZero() {
		return nil, ErrInvalidInput
	}
	if _, err := s.requireSession(ctx, sessionID); err != nil {
		return nil, err
	}

	res, err := s.documentRepo.Cleanup(ctx, sessionID, olderThan)
	if err != nil {
		return nil, err
	}
	if len(res.DocumentIDs) > 0 && s.files != nil {
		if _, err := s.files.RemoveDocumentFiles(ctx, res.DocumentIDs); err != nil {
			log.Warn().Err(err).Uint("session_id", sessionID).Msg("remove stale document files failed")
		}
	}

	log.Info().
		Uint("session_id", sessionID).
		Int64("deleted_docs", res.DeletedDocuments).
		Int64("deleted_chunks", res.DeletedChunks).
		Msg("cleaned up stale documents")
	return &CleanupResult{
		SessionID:        sessionID,
		DeletedDocuments: res.DeletedDocuments,
		DeletedChunks:    res.DeletedChunks,
	}, nil
}

func (s *SessionService) requireSession(ctx context.Context, sessionID uint) (*model.Session, error) {
	if sessionID == 0 {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionService) history(ctx context.Context, sessionID uint) ([]model.Message, error) {
	if s.historyCache != nil {
		cached, hit, err := s.historyCache.Load(ctx, sessionID)
		if err != nil {
			log.Warn().Err(err).Uint("session_id", sessionID).Msg("load cached history failed")
		} else if hit {
			return cached, nil
		}
	}

	messages, err := s.messageRepo.ListBySessionID(ctx, sessionID, historyLimit)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if _, err := s.historyCache.Store(ctx, sessionID, messages); err != nil {
			log.Warn().Err(err).Uint("session_id", sessionID).Msg("store cached history failed")
		}
	}
	return messages, nil
}

func (s *SessionService) invalidateHistory(ctx context.Context, sessionID uint) {
	invalidateHistory(ctx, s.historyCache, sessionID)
}

func invalidateHistory(ctx context.Context, c HistoryCache, sessionID uint) {
	if c == nil {
		return
	}
	if err := c.Invalidate(ctx, sessionID); err != nil {
		log.Warn().Err(err).Uint("session_id", sessionID).Msg("invalidate cached history failed")
	}
}
