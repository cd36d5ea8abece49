package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/bootstrap"
	"docchat/internal/config"
	"docchat/internal/model"
	"docchat/internal/transport/http/response"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CONFIG_FILE", filepath.Join(dir, "missing.toml"))
	t.Setenv("GIN_MODE", gin.TestMode)
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", ":memory:")
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("QUEUE_DRIVER", "inprocess")
	t.Setenv("EMBEDDING_PROVIDER", "none")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("UPLOAD_DIR", filepath.Join(dir, "uploads"))
	t.Setenv("UPLOAD_FILES_DIR", filepath.Join(dir, "files"))
	t.Setenv("UPLOAD_MAX_BYTES", "64")

	cfg, err := config.Load()
	require.NoError(t, err)
	a, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return NewRouter(a)
}

func do(t *testing.T, r http.Handler, method, path string, body any, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") != "text/event-stream" {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

func TestSessionLifecycle(t *testing.T) {
	r := newTestRouter(t)

	rec, env := do(t, r, http.MethodPost, "/api/session/create", map[string]string{"title": "notes"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var created struct {
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, "notes", created.Session.Title)
	id := strconv.FormatUint(uint64(created.Session.ID), 10)

	rec, env = do(t, r, http.MethodGet, "/api/session/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"activeDocument":null`)

	rec, _ = do(t, r, http.MethodPost, "/api/session/"+id+"/reset", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/session/"+id+"/cleanup", map[string]int{"olderThanHours": 1}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = do(t, r, http.MethodGet, "/api/session/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, response.CodeSessionNotFound, env.Code)

	rec, _ = do(t, r, http.MethodGet, "/api/session/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadFlowMarksUnreadableDocumentFailed(t *testing.T) {
	r := newTestRouter(t)

	rec, env := do(t, r, http.MethodPost, "/api/upload/init", map[string]any{"filename": "a.pdf", "sizeBytes": 16}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ticket struct {
		Token      string `json:"token"`
		DocumentID uint   `json:"docId"`
		SessionID  uint   `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))
	require.NotEmpty(t, ticket.Token)
	bearer := map[string]string{"Authorization": "Bearer " + ticket.Token}

	rec, _ = do(t, r, http.MethodPost, "/api/upload/chunk", []byte("not a pdf"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/upload/chunk?token=garbage", []byte("not a pdf"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env = do(t, r, http.MethodPost, "/api/upload/chunk", []byte("not a pdf"), bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"receivedBytes":9,"totalBytes":9}`, string(env.Data))

	rec, env = do(t, r, http.MethodPost, "/api/upload/complete", map[string]string{"filename": "a.pdf"}, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"status":"processing"`)

	rec, _ = do(t, r, http.MethodPost, "/api/upload/complete", nil, bearer)
	assert.Equal(t, http.StatusConflict, rec.Code)

	sessionPath := "/api/session/" + strconv.FormatUint(uint64(ticket.SessionID), 10)
	require.Eventually(t, func() bool {
		_, env := do(t, r, http.MethodGet, sessionPath, nil, nil)
		var view struct {
			ActiveDocument *model.Document `json:"activeDocument"`
		}
		return json.Unmarshal(env.Data, &view) == nil &&
			view.ActiveDocument != nil && view.ActiveDocument.Status == model.StatusFailed
	}, 5*time.Second, 20*time.Millisecond)

	rec, env = do(t, r, http.MethodPost, "/api/chat/stream", map[string]any{"sessionId": ticket.SessionID, "question": "what?"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeDocumentNotReady, env.Code)
}

func TestUploadCapRejectsOversizedChunk(t *testing.T) {
	r := newTestRouter(t)

	_, env := do(t, r, http.MethodPost, "/api/upload/init", map[string]any{"filename": "big.pdf"}, nil)
	var ticket struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &ticket))

	rec, env := do(t, r, http.MethodPost, "/api/upload/chunk?token="+ticket.Token, bytes.Repeat([]byte("x"), 65), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, response.CodePayloadTooLarge, env.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/upload/chunk?token="+ticket.Token, []byte("x"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestChatWithoutDocument(t *testing.T) {
	r := newTestRouter(t)
	_, env := do(t, r, http.MethodPost, "/api/session/create", nil, nil)
	var created struct {
		Session model.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))

	rec, env := do(t, r, http.MethodPost, "/api/chat/stream", map[string]any{"sessionId": created.Session.ID, "question": "hi"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, response.CodeNoActiveDocument, env.Code)

	rec, _ = do(t, r, http.MethodPost, "/api/chat/stream", map[string]any{"sessionId": created.Session.ID}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t)

	rec, _ := do(t, r, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":{"ok":true,"message":"disabled"}`)

	rec, _ = do(t, r, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
