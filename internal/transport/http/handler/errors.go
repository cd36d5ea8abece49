package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

// writeError maps a service error onto the response envelope. Unknown errors
// are logged and reported as internal.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrUploadNotFound):
		response.Error(c, http.StatusBadRequest, response.CodeUploadNotFound, "Upload not found")
	case errors.Is(err, app.ErrNoActiveDocument):
		response.Error(c, http.StatusBadRequest, response.CodeNoActiveDocument, app.ErrNoActiveDocument.Message)
	case errors.Is(err, app.ErrDocumentNotReady):
		response.Error(c, http.StatusBadRequest, response.CodeDocumentNotReady, app.ErrDocumentNotReady.Message)
	case errors.Is(err, app.ErrNotIndexed):
		response.Error(c, http.StatusBadRequest, response.CodeNotIndexed, "Document has no indexed chunks yet. Re-upload or retry processing.")
	case errors.Is(err, app.ErrLLMConfig):
		response.Error(c, http.StatusBadRequest, response.CodeLLMNotConfigured, app.ErrLLMConfig.Message)
	case errors.Is(err, app.ErrSessionNotFound):
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, app.ErrSessionNotFound.Message)
	case errors.Is(err, app.ErrDocumentNotFound):
		response.Error(c, http.StatusNotFound, response.CodeDocumentNotFound, app.ErrDocumentNotFound.Message)
	case errors.Is(err, app.ErrUploadClosed):
		response.Error(c, http.StatusConflict, response.CodeUploadClosed, app.ErrUploadClosed.Message)
	case errors.Is(err, app.ErrDuplicateCompletion):
		response.Error(c, http.StatusConflict, response.CodeDuplicateComplete, app.ErrDuplicateCompletion.Message)
	default:
		writeKind(c, err)
	}
}

func writeKind(c *gin.Context, err error) {
	var appErr *app.Error
	message := "internal server error"
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	switch app.KindOf(err) {
	case app.KindValidation:
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, message)
	case app.KindAuth:
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, message)
	case app.KindNotFound:
		response.Error(c, http.StatusNotFound, response.CodeSessionNotFound, message)
	case app.KindConflict:
		response.Error(c, http.StatusConflict, response.CodeConflict, message)
	case app.KindCapacity:
		response.Error(c, http.StatusRequestEntityTooLarge, response.CodePayloadTooLarge, message)
	default:
		event := log.Error().Err(err).Str("path", c.FullPath())
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			event = event.Str("trace_id", sc.TraceID().String())
		}
		event.Msg("request failed")
		code := response.CodeInternalServer
		if errors.Is(err, app.ErrProcessing) {
			code = response.CodeProcessingFailed
		}
		response.Error(c, http.StatusInternalServerError, code, message)
	}
}
