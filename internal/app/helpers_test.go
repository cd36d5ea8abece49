package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"docchat/internal/ai"
	"docchat/internal/chunker"
	"docchat/internal/embedding"
	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/repository"
	"docchat/internal/retrieval"
	"docchat/internal/testutil"
	"docchat/internal/upload"
)

const testDimensions = 8

type env struct {
	db        *gorm.DB
	sessions  *repository.SessionRepository
	documents *repository.DocumentRepository
	chunks    *repository.ChunkRepository
	messages  *repository.MessageRepository
	store     *upload.Store
	signer    *upload.Signer
	queue     *fakeQueue
	gateway   *embedding.Gateway
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	dir := t.TempDir()
	signer, err := upload.NewSigner("test-secret", time.Hour)
	require.NoError(t, err)
	return &env{
		db:        db,
		sessions:  repository.NewSessionRepository(db),
		documents: repository.NewDocumentRepository(db),
		chunks:    repository.NewChunkRepository(db),
		messages:  repository.NewMessageRepository(db),
		store:     upload.NewStore(dir+"/uploads", dir+"/files"),
		signer:    signer,
		queue:     &fakeQueue{},
		gateway:   embedding.NewGateway(nil, testDimensions, nil),
	}
}

func (e *env) uploadService(maxUpload int64) *UploadService {
	return NewUploadService(e.sessions, e.documents, nil, e.signer, e.store, e.queue, nil,
		UploadLimits{MaxUploadBytes: maxUpload, MaxChunkBytes: 1 << 20})
}

func (e *env) processor(extract ExtractFunc) *Processor {
	return NewProcessor(e.documents, extract, chunker.NewHybrid(chunker.Options{}), e.gateway, e.store, nil)
}

func (e *env) askService(llm CompletionStreamer) *AskService {
	engine := retrieval.NewEngine(e.gateway, e.chunks, nil, 5, 10)
	return NewAskService(e.sessions, e.documents, e.messages, nil, engine, llm, nil, time.Minute)
}

// processingDocument creates a session whose active document sits in
// processing with a stored file path.
func (e *env) processingDocument(t *testing.T, sessionID uint) *model.Document {
	t.Helper()
	ctx := context.Background()
	if sessionID == 0 {
		s := &model.Session{Title: "s"}
		require.NoError(t, e.sessions.Create(ctx, s))
		sessionID = s.ID
	}
	doc := &model.Document{SessionID: sessionID, Title: "doc", Status: model.StatusUploading}
	_, err := e.sessions.BeginUpload(ctx, doc)
	require.NoError(t, err)
	ok, err := e.documents.TransitionStatus(ctx, doc.ID, model.StatusUploading, model.StatusProcessing,
		map[string]any{"file_path": "/stored/doc.pdf"})
	require.NoError(t, err)
	require.True(t, ok)
	doc.Status = model.StatusProcessing
	doc.FilePath = "/stored/doc.pdf"
	return doc
}

func staticPages(pages ...string) ExtractFunc {
	return func(string) ([]pdfextract.PageText, error) {
		out := make([]pdfextract.PageText, len(pages))
		for i, p := range pages {
			out[i] = pdfextract.PageText{Number: i + 1, Text: p}
		}
		return out, nil
	}
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []uint
	err error
}

func (q *fakeQueue) Enqueue(_ context.Context, documentID uint) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.ids = append(q.ids, documentID)
	return nil
}

func (q *fakeQueue) enqueued() []uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uint(nil), q.ids...)
}

type fakeLLM struct {
	deltas []string
	err    error
	got    []ai.ChatMessage
}

func (f *fakeLLM) StreamCompletion(_ context.Context, messages []ai.ChatMessage, onDelta func(string)) (string, error) {
	f.got = messages
	full := ""
	for _, d := range f.deltas {
		onDelta(d)
		full += d
	}
	if f.err != nil {
		return "", f.err
	}
	return full, nil
}

var errClientGone = errors.New("client gone")

// recordingSink records event names. Once failAt events were accepted every
// further write fails.
type recordingSink struct {
	events    []string
	citations []model.Citation
	failAt    int
}

func (s *recordingSink) write(event string) error {
	if s.failAt > 0 && len(s.events) >= s.failAt {
		return errClientGone
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Start() error            { return s.write("start") }
func (s *recordingSink) Delta(text string) error { return s.write("delta:" + text) }
func (s *recordingSink) Error(msg string) error  { return s.write("error") }
func (s *recordingSink) Done() error             { return s.write("done") }

func (s *recordingSink) Citations(c []model.Citation) error {
	if err := s.write("citations"); err != nil {
		return err
	}
	s.citations = c
	return nil
}

type recordingRemover struct {
	calls chan []uint
}

func newRecordingRemover() *recordingRemover {
	return &recordingRemover{calls: make(chan []uint, 4)}
}

func (r *recordingRemover) RemoveDocumentFiles(_ context.Context, ids []uint) (int, error) {
	r.calls <- ids
	return len(ids), nil
}
