package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
)

type CompletionStreamer interface {
	StreamCompletion(ctx context.Context, messages []ai.ChatMessage, onDelta func(string)) (string, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, q retrieval.Query) ([]model.ScoredChunk, error)
}

type StreamRecorder interface {
	ObserveStream(outcome string)
}

// AnswerSink receives the events of one answer stream in order: Start, any
// number of Delta calls, Citations, Done. Error replaces the tail when the
// model fails. A returned error means the client is gone.
type AnswerSink interface {
	Start() error
	Delta(text string) error
	Citations(citations []model.Citation) error
	Error(message string) error
	Done() error
}

type AskInput struct {
	SessionID uint
	Question  string
	TopK      int
}

// PreparedAnswer is everything resolved before the first byte is streamed.
// Citations are the exact hits the prompt was built from.
type PreparedAnswer struct {
	SessionID  uint
	DocumentID uint
	Question   string
	Citations  []model.Citation
	Messages   []ai.ChatMessage
}

type AskService struct {
	sessionRepo   *repository.SessionRepository
	documentRepo  *repository.DocumentRepository
	messageRepo   *repository.MessageRepository
	historyCache  HistoryCache
	retriever     Retriever
	llm           CompletionStreamer
	recorder      StreamRecorder
	streamTimeout time.Duration
}

func NewAskService(
	sessionRepo *repository.SessionRepository,
	documentRepo *repository.DocumentRepository,
	messageRepo *repository.MessageRepository,
	historyCache HistoryCache,
	retriever Retriever,
	llm CompletionStreamer,
	recorder StreamRecorder,
	streamTimeout time.Duration,
) *AskService {
	if streamTimeout <= 0 {
		streamTimeout = 2 * time.Minute
	}
	return &AskService{
		sessionRepo:   sessionRepo,
		documentRepo:  documentRepo,
		messageRepo:   messageRepo,
		historyCache:  historyCache,
		retriever:     retriever,
		llm:           llm,
		recorder:      recorder,
		streamTimeout: streamTimeout,
	}
}

// Prepare validates the request and runs retrieval. Every failure it returns
// happens before streaming begins.
func (s *AskService) Prepare(ctx context.Context, input AskInput) (*PreparedAnswer, error) {
	question := strings.TrimSpace(input.Question)
	if input.SessionID == 0 || question == "" {
		return nil, ErrInvalidInput
	}
	session, err := s.sessionRepo.GetByID(ctx, input.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if session.ActiveDocumentID == nil {
		return nil, ErrNoActiveDocument
	}
	doc, err := s.documentRepo.GetByIDAndSessionID(ctx, *session.ActiveDocumentID, session.ID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrNoActiveDocument
	}
	if doc.Status != model.StatusReady {
		return nil, ErrDocumentNotReady
	}

	hits, err := s.retriever.Retrieve(ctx, retrieval.Query{
		SessionID:  session.ID,
		DocumentID: doc.ID,
		Question:   question,
		TopK:       input.TopK,
	})
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, ErrNotIndexed
	}
	if s.llm == nil {
		return nil, ErrLLMConfig
	}

	citations := make([]model.Citation, len(hits))
	for i, hit := range hits {
		citations[i] = model.CitationFromScored(hit)
	}
	return &PreparedAnswer{
		SessionID:  session.ID,
		DocumentID: doc.ID,
		Question:   question,
		Citations:  citations,
		Messages:   buildPromptMessages(question, citations),
	}, nil
}

// Stream runs the model and writes events to sink. The model call and the
// persistence of the exchange run on a context detached from ctx, so a
// client that disconnects only stops event delivery.
func (s *AskService) Stream(ctx context.Context, prepared *PreparedAnswer, sink AnswerSink) error {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.streamTimeout)
	defer cancel()
	runCtx, span := otel.Tracer("docchat/app").Start(runCtx, "ask.stream")
	defer span.End()
	span.SetAttributes(
		attribute.Int("session.id", int(prepared.SessionID)),
		attribute.Int("document.id", int(prepared.DocumentID)),
		attribute.Int("citation.count", len(prepared.Citations)),
	)

	gone := false
	emit := func(send func() error) {
		if gone {
			return
		}
		if err := send(); err != nil {
			gone = true
			log.Debug().Err(err).Uint("session_id", prepared.SessionID).Msg("client stopped reading answer stream")
		}
	}

	emit(sink.Start)
	answer, err := s.llm.StreamCompletion(runCtx, prepared.Messages, func(delta string) {
		emit(func() error { return sink.Delta(delta) })
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.observe("provider_error")
		emit(func() error { return sink.Error("failed to generate answer") })
		log.Error().Err(err).Uint("session_id", prepared.SessionID).Msg("answer stream failed")
		return fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	emit(func() error { return sink.Citations(prepared.Citations) })
	s.persist(runCtx, prepared, answer)
	emit(sink.Done)

	if gone {
		s.observe("client_gone")
	} else {
		s.observe("completed")
	}
	return nil
}

func (s *AskService) persist(ctx context.Context, prepared *PreparedAnswer, answer string) {
	user := &model.Message{
		SessionID: prepared.SessionID,
		Role:      model.RoleUser,
		Content:   prepared.Question,
		Metadata:  datatypes.NewJSONType(model.MessageMetadata{DocumentID: prepared.DocumentID}),
	}
	assistant := &model.Message{
		SessionID: prepared.SessionID,
		Role:      model.RoleAssistant,
		Content:   answer,
		Metadata: datatypes.NewJSONType(model.MessageMetadata{
			DocumentID: prepared.DocumentID,
			Citations:  prepared.Citations,
		}),
	}
	if err := s.messageRepo.CreateExchange(ctx, user, assistant); err != nil {
		log.Error().Err(err).Uint("session_id", prepared.SessionID).Msg("persist answer exchange failed")
		return
	}
	invalidateHistory(ctx, s.historyCache, prepared.SessionID)
}

func (s *AskService) observe(outcome string) {
	if s.recorder != nil {
		s.recorder.ObserveStream(outcome)
	}
}
