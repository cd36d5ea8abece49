package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/transport/http/response"
)

type SessionHandler struct {
	sessionService *app.SessionService
	retention      time.Duration
}

type CreateSessionRequest struct {
	Title string `json:"title" binding:"max=256"`
}

type CleanupRequest struct {
	OlderThanHours int `json:"olderThanHours" binding:"gte=0"`
}

func NewSessionHandler(sessionService *app.SessionService, retention time.Duration) *SessionHandler {
	return &SessionHandler{sessionService: sessionService, retention: retention}
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}

	session, err := h.sessionService.CreateSession(c.Request.Context(), req.Title)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, gin.H{"session": session})
}

func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	view, err := h.sessionService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, view)
}

func (h *SessionHandler) Reset(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	res, err := h.sessionService.ResetSession(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

func (h *SessionHandler) Cleanup(c *gin.Context) {
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}
	var req CleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
			return
		}
	}
	age := h.retention
	if req.OlderThanHours > 0 {
		age = time.Duration(req.OlderThanHours) * time.Hour
	}

	res, err := h.sessionService.CleanupStaleDocuments(c.Request.Context(), sessionID, time.Now().Add(-age))
	if err != nil {
		writeError(c, err)
		return
	}
	response.OK(c, res)
}

func sessionIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("sessionId"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid sessionId")
		return 0, false
	}
	return uint(id), true
}
