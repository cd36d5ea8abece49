package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docchat/internal/transport/http/response"
)

const ContextUploadTokenKey = "upload_token"

// UploadToken takes the upload ticket from ?token= or a Bearer header. The
// ticket itself is verified by the upload service.
func UploadToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.Query("token"))
		if token == "" {
			const prefix = "Bearer "
			if header := strings.TrimSpace(c.GetHeader("Authorization")); strings.HasPrefix(header, prefix) {
				token = strings.TrimSpace(strings.TrimPrefix(header, prefix))
			}
		}
		if token == "" {
			response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing upload token")
			c.Abort()
			return
		}

		c.Set(ContextUploadTokenKey, token)
		c.Next()
	}
}

func UploadTokenFrom(c *gin.Context) string {
	return c.GetString(ContextUploadTokenKey)
}
