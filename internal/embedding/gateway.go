package embedding

import (
	"context"
	"fmt"
	"unicode/utf16"

	"github.com/rs/zerolog/log"
)

const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

// Provider is an external embedding backend. Implementations must return one
// vector per input, in input order.
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Recorder interface {
	ObserveEmbedding(source string, texts int)
}

// Gateway embeds whole batches through the provider, or whole batches through
// HashEmbedding when the provider is absent or misbehaves. The two sources are
// never mixed within one call.
type Gateway struct {
	provider   Provider
	dimensions int
	recorder   Recorder
}

func NewGateway(provider Provider, dimensions int, recorder Recorder) *Gateway {
	return &Gateway{provider: provider, dimensions: dimensions, recorder: recorder}
}

func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Embed returns len(texts) vectors and the source that produced them.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, string) {
	if len(texts) == 0 {
		return nil, SourceProvider
	}

	if g.provider != nil {
		vectors, err := g.provider.EmbedBatch(ctx, texts)
		if err == nil {
			err = g.validate(vectors, len(texts))
		}
		if err == nil {
			g.record(SourceProvider, len(texts))
			return vectors, SourceProvider
		}
		log.Warn().Err(err).Int("texts", len(texts)).Msg("embedding provider failed, using hash fallback")
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = HashEmbedding(text, g.dimensions)
	}
	g.record(SourceFallback, len(texts))
	return vectors, SourceFallback
}

func (g *Gateway) EmbedOne(ctx context.Context, text string) []float32 {
	vectors, _ := g.Embed(ctx, []string{text})
	return vectors[0]
}

func (g *Gateway) validate(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), want)
	}
	for i, v := range vectors {
		if len(v) != g.dimensions {
			return fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), g.dimensions)
		}
	}
	return nil
}

func (g *Gateway) record(source string, n int) {
	if g.recorder != nil {
		g.recorder.ObserveEmbedding(source, n)
	}
}

// HashEmbedding derives a deterministic, non-semantic vector from text. The
// hash runs over UTF-16 code units with 32-bit wraparound.
func HashEmbedding(text string, dimensions int) []float32 {
	var hash uint32
	for _, unit := range utf16.Encode([]rune(text)) {
		hash = hash*31 + uint32(unit)
	}
	vector := make([]float32, dimensions)
	for i := range vector {
		vector[i] = float32((uint64(hash)+uint64(i)*97)%1000) / 1000
	}
	return vector
}
