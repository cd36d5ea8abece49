package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/datatypes"

	"docchat/internal/chunker"
	"docchat/internal/model"
	"docchat/internal/pkg/pdfextract"
	"docchat/internal/repository"
)

// ExtractFunc reads a stored file into per-page text.
type ExtractFunc func(path string) ([]pdfextract.PageText, error)

type BatchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, string)
}

type ProcessingRecorder interface {
	ObserveProcessing(status string, elapsed time.Duration)
}

// Processor turns a finalized upload into indexed chunks. Any failure after
// the document is loaded is recorded on the document itself.
type Processor struct {
	documentRepo *repository.DocumentRepository
	extract      ExtractFunc
	chunker      *chunker.Hybrid
	embedder     BatchEmbedder
	files        FileRemover
	recorder     ProcessingRecorder
}

type ProcessResult struct {
	DocumentID    uint   `json:"docId"`
	Chunks        int    `json:"chunks"`
	Pages         int    `json:"pages"`
	EmbedSource   string `json:"embedSource"`
	SupersededIDs []uint `json:"supersededIds,omitempty"`
	Superseded    bool   `json:"superseded"`
}

func NewProcessor(
	documentRepo *repository.DocumentRepository,
	extract ExtractFunc,
	hybrid *chunker.Hybrid,
	embedder BatchEmbedder,
	files FileRemover,
	recorder ProcessingRecorder,
) *Processor {
	if extract == nil {
		extract = pdfextract.ExtractFile
	}
	if hybrid == nil {
		hybrid = chunker.NewHybrid(chunker.Options{})
	}
	return &Processor{
		documentRepo: documentRepo,
		extract:      extract,
		chunker:      hybrid,
		embedder:     embedder,
		files:        files,
		recorder:     recorder,
	}
}

// Process extracts, chunks and embeds the document, then commits the result
// and the session's active pointer swap in one transaction.
func (p *Processor) Process(ctx context.Context, documentID uint) (*ProcessResult, error) {
	ctx, span := otel.Tracer("docchat/app").Start(ctx, "processor.process")
	defer span.End()
	span.SetAttributes(attribute.Int("document.id", int(documentID)))

	doc, err := p.documentRepo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ErrDocumentNotFound
	}
	if doc.Status != model.StatusProcessing && doc.Status != model.StatusReady {
		return nil, ErrNotProcessable
	}

	started := time.Now()
	result, err := p.run(ctx, doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.observe(string(model.StatusFailed), started)
		if _, markErr := p.documentRepo.MarkFailed(context.WithoutCancel(ctx), doc.ID, err.Error()); markErr != nil {
			log.Error().Err(markErr).Uint("document_id", doc.ID).Msg("record processing failure failed")
		}
		log.Error().Err(err).Uint("document_id", doc.ID).Msg("document processing failed")
		return nil, fmt.Errorf("%w: %v", ErrProcessing, err)
	}

	if result.Superseded {
		p.observe("superseded", started)
		log.Info().Uint("document_id", doc.ID).Msg("document was superseded during processing, result discarded")
		return result, nil
	}

	p.observe(string(model.StatusReady), started)
	span.SetAttributes(attribute.Int("chunk.count", result.Chunks), attribute.String("embedding.source", result.EmbedSource))
	log.Info().
		Uint("document_id", doc.ID).
		Int("page_count", result.Pages).
		Int("chunk_count", result.Chunks).
		Str("embed_source", result.EmbedSource).
		Dur("elapsed", time.Since(started)).
		Msg("document processed")
	return result, nil
}

func (p *Processor) run(ctx context.Context, doc *model.Document) (*ProcessResult, error) {
	if doc.FilePath == "" {
		return nil, errors.New("document has no stored file")
	}

	pages, err := p.extract(doc.FilePath)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	pieces := p.chunker.SplitWithFallback(pages)

	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		texts[i] = piece.Content
	}
	vectors, source := p.embedder.Embed(ctx, texts)
	if len(vectors) != len(pieces) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d chunks", len(vectors), len(pieces))
	}

	rows := make([]model.Chunk, len(pieces))
	for i, piece := range pieces {
		rows[i] = model.Chunk{
			ChunkIndex: piece.Index,
			Content:    piece.Content,
			Embedding:  model.NewVector(vectors[i]),
			Metadata: datatypes.NewJSONType(model.ChunkMetadata{
				PageStart: piece.PageStart,
				PageEnd:   piece.PageEnd,
				Source:    doc.FilePath,
			}),
		}
	}

	completion, err := p.documentRepo.CompleteProcessing(ctx, repository.CompletionInput{
		DocumentID: doc.ID,
		Content:    chunker.FullText(pages),
		Chunks:     rows,
	})
	if errors.Is(err, repository.ErrStaleDocument) {
		return &ProcessResult{DocumentID: doc.ID, Superseded: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	if len(completion.SupersededIDs) > 0 && p.files != nil {
		if _, err := p.files.RemoveDocumentFiles(context.WithoutCancel(ctx), completion.SupersededIDs); err != nil {
			log.Warn().Err(err).Uint("document_id", doc.ID).Msg("remove superseded document files failed")
		}
	}

	return &ProcessResult{
		DocumentID:    doc.ID,
		Chunks:        len(rows),
		Pages:         len(pages),
		EmbedSource:   source,
		SupersededIDs: completion.SupersededIDs,
	}, nil
}

func (p *Processor) observe(status string, started time.Time) {
	if p.recorder != nil {
		p.recorder.ObserveProcessing(status, time.Since(started))
	}
}
