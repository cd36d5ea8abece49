package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCompletionForwardsDeltasInOrder(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "", "lo\nthere", " [1]"} {
			fmt.Fprintf(w, "data: {\"id\":\"x\",\"object\":\"chat.completion.chunk\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-test"})
	require.NoError(t, err)

	var deltas []string
	full, err := client.StreamCompletion(context.Background(), []ChatMessage{
		{Role: "system", Content: "sys"},
		{Role: "user", Content: "q"},
	}, func(d string) { deltas = append(deltas, d) })
	require.NoError(t, err)

	assert.Equal(t, []string{"Hel", "lo\nthere", " [1]"}, deltas)
	assert.Equal(t, "Hello\nthere [1]", full)
	assert.Equal(t, "gpt-test", gotBody["model"])
	assert.Equal(t, true, gotBody["stream"])
}

func TestStreamCompletionProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	client, err := NewChatClient(ChatConfig{BaseURL: srv.URL, APIKey: "sk-test", Model: "m"})
	require.NoError(t, err)
	_, err = client.StreamCompletion(context.Background(), nil, func(string) {})
	assert.Error(t, err)
}

func TestNewChatClientRequiresKey(t *testing.T) {
	_, err := NewChatClient(ChatConfig{Model: "m"})
	assert.Error(t, err)
}

func TestOpenAIEmbedderOrdersByIndex(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0.0,1.0]},
			{"object":"embedding","index":0,"embedding":[1.0,0.0]}
		],"model":"m"}`)
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "text-embedding-3-large", Dimensions: 2})
	require.NoError(t, err)

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
	assert.Equal(t, float64(2), gotBody["dimensions"])
	assert.Equal(t, "text-embedding-3-large", gotBody["model"])
}

func TestOpenAIEmbedderCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"object":"embedding","index":0,"embedding":[1.0]}],"model":"m"}`)
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", Dimensions: 1})
	require.NoError(t, err)
	_, err = emb.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.Error(t, err)
}

func embeddingServer(t *testing.T, failOnRequest int) (*httptest.Server, *[]int) {
	t.Helper()
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		sizes = append(sizes, len(body.Input))
		w.Header().Set("Content-Type", "application/json")
		if len(sizes) == failOnRequest {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
			return
		}
		data := make([]map[string]any, len(body.Input))
		for i := range body.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"}))
	}))
	t.Cleanup(srv.Close)
	return srv, &sizes
}

func TestOpenAIEmbedderSplitsLargeBatches(t *testing.T) {
	srv, sizes := embeddingServer(t, 0)
	emb, err := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", Dimensions: 1})
	require.NoError(t, err)

	texts := make([]string, embeddingBatchSize+10)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}
	vecs, err := emb.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, len(texts))
	assert.Equal(t, []int{embeddingBatchSize, 10}, *sizes)
}

func TestOpenAIEmbedderFailsWholeBatchOnLaterRequest(t *testing.T) {
	srv, _ := embeddingServer(t, 2)
	emb, err := NewOpenAIEmbedder(EmbeddingConfig{BaseURL: srv.URL, APIKey: "k", Model: "m", Dimensions: 1})
	require.NoError(t, err)

	vecs, err := emb.EmbedBatch(context.Background(), make([]string, embeddingBatchSize+1))
	assert.Error(t, err)
	assert.Nil(t, vecs)
}
