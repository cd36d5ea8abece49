package retrieval

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"docchat/internal/model"
)

type Embedder interface {
	EmbedOne(ctx context.Context, text string) []float32
}

type Searcher interface {
	Search(ctx context.Context, documentID, sessionID uint, query []float32, limit int) ([]model.ScoredChunk, error)
}

type Recorder interface {
	ObserveRetrieval(hits int)
}

type Query struct {
	SessionID  uint
	DocumentID uint
	Question   string
	TopK       int
}

// Engine embeds a question and returns the nearest chunks of one document.
type Engine struct {
	embedder    Embedder
	searcher    Searcher
	recorder    Recorder
	defaultTopK int
	maxTopK     int
}

func NewEngine(embedder Embedder, searcher Searcher, recorder Recorder, defaultTopK, maxTopK int) *Engine {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	if maxTopK <= 0 {
		maxTopK = 10
	}
	if defaultTopK > maxTopK {
		defaultTopK = maxTopK
	}
	return &Engine{
		embedder:    embedder,
		searcher:    searcher,
		recorder:    recorder,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
	}
}

// Limit resolves the requested topK: non-positive means the default, and the
// result never exceeds the maximum.
func (e *Engine) Limit(topK int) int {
	if topK <= 0 {
		topK = e.defaultTopK
	}
	if topK > e.maxTopK {
		topK = e.maxTopK
	}
	return topK
}

// Retrieve returns hits ordered by ascending distance. An empty, non-nil
// error-free result means the document has nothing indexed.
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]model.ScoredChunk, error) {
	ctx, span := otel.Tracer("docchat/retrieval").Start(ctx, "retrieval.retrieve")
	defer span.End()

	limit := e.Limit(q.TopK)
	span.SetAttributes(
		attribute.Int("document.id", int(q.DocumentID)),
		attribute.Int("retrieval.top_k", limit),
	)

	vector := e.embedder.EmbedOne(ctx, q.Question)
	hits, err := e.searcher.Search(ctx, q.DocumentID, q.SessionID, vector, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieve chunks failed: %w", err)
	}
	if hits == nil {
		hits = []model.ScoredChunk{}
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))
	if e.recorder != nil {
		e.recorder.ObserveRetrieval(len(hits))
	}
	return hits, nil
}
