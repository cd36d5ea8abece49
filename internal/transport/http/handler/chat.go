package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

type ChatHandler struct {
	askService *app.AskService
}

type AskRequest struct {
	SessionID uint   `json:"sessionId" binding:"required"`
	Question  string `json:"question" binding:"required,max=4000"`
	TopK      int    `json:"topK" binding:"gte=0"`
}

func NewChatHandler(askService *app.AskService) *ChatHandler {
	return &ChatHandler{askService: askService}
}

// Stream answers a question over SSE. Failures found before the first event
// are returned as a JSON envelope instead.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	prepared, err := h.askService.Prepare(c.Request.Context(), app.AskInput{
		SessionID: req.SessionID,
		Question:  req.Question,
		TopK:      req.TopK,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	sink, err := newSSEWriter(c.Writer)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, err.Error())
		return
	}
	setSSEHeaders(c.Writer.Header())
	c.Status(http.StatusOK)

	if err := h.askService.Stream(c.Request.Context(), prepared, sink); err != nil {
		log.Warn().Err(err).Uint("session_id", req.SessionID).Msg("answer stream ended with error")
	}
}
