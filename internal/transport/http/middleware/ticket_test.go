package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTokenRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/chunk", UploadToken(), func(c *gin.Context) {
		c.String(http.StatusOK, UploadTokenFrom(c))
	})
	return r
}

func TestUploadTokenSources(t *testing.T) {
	r := newTokenRouter()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chunk?token=abc", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chunk", nil)
	req.Header.Set("Authorization", "Bearer xyz")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xyz", rec.Body.String())
}

func TestUploadTokenQueryWinsOverHeader(t *testing.T) {
	r := newTokenRouter()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chunk?token=query", nil)
	req.Header.Set("Authorization", "Bearer header")
	r.ServeHTTP(rec, req)
	assert.Equal(t, "query", rec.Body.String())
}

func TestUploadTokenMissing(t *testing.T) {
	r := newTokenRouter()
	for _, header := range []string{"", "Basic abc", "Bearer   "} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chunk", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}
