package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/model"
)

type fakeEmbedder struct{ got string }

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) []float32 {
	f.got = text
	return []float32{1, 0}
}

type fakeSearcher struct {
	hits      []model.ScoredChunk
	err       error
	limit     int
	docID     uint
	sessionID uint
}

func (f *fakeSearcher) Search(_ context.Context, documentID, sessionID uint, _ []float32, limit int) ([]model.ScoredChunk, error) {
	f.docID, f.sessionID, f.limit = documentID, sessionID, limit
	return f.hits, f.err
}

func TestLimitClamps(t *testing.T) {
	e := NewEngine(nil, nil, nil, 5, 10)
	assert.Equal(t, 5, e.Limit(0))
	assert.Equal(t, 5, e.Limit(-3))
	assert.Equal(t, 3, e.Limit(3))
	assert.Equal(t, 10, e.Limit(50))
}

func TestRetrieveScopesAndForwards(t *testing.T) {
	emb := &fakeEmbedder{}
	search := &fakeSearcher{hits: []model.ScoredChunk{{Distance: 0.1}, {Distance: 0.2}}}
	e := NewEngine(emb, search, nil, 5, 10)

	hits, err := e.Retrieve(context.Background(), Query{SessionID: 4, DocumentID: 9, Question: "what?", TopK: 20})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, "what?", emb.got)
	assert.Equal(t, uint(9), search.docID)
	assert.Equal(t, uint(4), search.sessionID)
	assert.Equal(t, 10, search.limit)
}

func TestRetrieveEmptyIsNotAnError(t *testing.T) {
	e := NewEngine(&fakeEmbedder{}, &fakeSearcher{}, nil, 5, 10)
	hits, err := e.Retrieve(context.Background(), Query{DocumentID: 1})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestRetrieveWrapsSearchError(t *testing.T) {
	boom := errors.New("boom")
	e := NewEngine(&fakeEmbedder{}, &fakeSearcher{err: boom}, nil, 5, 10)
	_, err := e.Retrieve(context.Background(), Query{DocumentID: 1})
	assert.ErrorIs(t, err, boom)
}
