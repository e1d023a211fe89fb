package handlers

import (
	"net/http"
	"strconv"

	"tugofwar/services"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	sessionService *services.SessionService
}

func NewSessionHandler(sessionService *services.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) CreateSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req services.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	sess, err := h.sessionService.CreateSession(c.Request.Context(), userID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"session": sess,
		"code":    sess.Code,
	})
}

func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	status := c.Query("status")

	sessions, total, err := h.sessionService.ListByTeacher(c.Request.Context(), userID, status, page, limit)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (h *SessionHandler) GetSessionByCode(c *gin.Context) {
	sess, err := h.sessionService.GetByCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sess})
}

func (h *SessionHandler) JoinSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	result, err := h.sessionService.JoinSession(c.Request.Context(), c.Param("code"), userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"team":      result.Team,
		"rejoined":  result.Rejoined,
		"sessionId": result.Session.ID,
		"code":      result.Session.Code,
	})
}

func (h *SessionHandler) OpenLobby(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.OpenLobby(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": sess.Status, "code": sess.Code})
}

func (h *SessionHandler) StartSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.StartSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"status":    sess.Status,
		"startTime": sess.StartTime,
	})
}

func (h *SessionHandler) NextQuestion(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	result, err := h.sessionService.AdvanceQuestion(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"question":       result.Question,
		"questionNumber": result.QuestionNumber,
		"totalQuestions": result.TotalQuestions,
	})
}

func (h *SessionHandler) PauseSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.PauseSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": sess.Status})
}

func (h *SessionHandler) ResumeSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	sess, err := h.sessionService.ResumeSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "status": sess.Status})
}

func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	result, err := h.sessionService.EndSession(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"scores":  result.Scores,
		"winner":  result.Winner,
		"endTime": result.EndTime,
	})
}

func (h *SessionHandler) LeaveSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	if err := h.sessionService.LeaveSession(c.Request.Context(), sessionID, userID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
