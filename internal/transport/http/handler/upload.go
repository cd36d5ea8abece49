package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/transport/http/middleware"
	"docchat/internal/transport/http/response"
)

type UploadHandler struct {
	uploadService *app.UploadService
	maxChunkBytes int64
}

type InitUploadRequest struct {
	SessionID uint           `json:"sessionId"`
	Title     string         `json:"title" binding:"max=256"`
	Filename  string         `json:"filename" binding:"max=512"`
	SizeBytes int64          `json:"sizeBytes" binding:"gte=0"`
	Metadata  map[string]any `json:"metadata"`
}

type CompleteUploadRequest struct {
	Filename string `json:"filename" binding:"max=512"`
}

func NewUploadHandler(uploadService *app.UploadService, maxChunkBytes int64) *UploadHandler {
	return &UploadHandler{uploadService: uploadService, maxChunkBytes: maxChunkBytes}
}

func (h *UploadHandler) Init(c *gin.Context) {
	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	res, err := h.uploadService.InitUpload(c.Request.Context(), app.InitUploadInput{
		SessionID: req.SessionID,
		Title:     req.Title,
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Metadata:  req.Metadata,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

// Chunk appends the raw request body to the upload.
func (h *UploadHandler) Chunk(c *gin.Context) {
	body := c.Request.Body
	if h.maxChunkBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxChunkBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, app.ErrChunkTooLarge)
			return
		}
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "read upload chunk failed")
		return
	}

	res, err := h.uploadService.AppendChunk(c.Request.Context(), middleware.UploadTokenFrom(c), data)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *UploadHandler) Complete(c *gin.Context) {
	var req CompleteUploadRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	res, err := h.uploadService.CompleteUpload(c.Request.Context(), middleware.UploadTokenFrom(c), req.Filename)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}
