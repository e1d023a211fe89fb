package handlers

import (
	"net/http"

	"tugofwar/services"

	"github.com/gin-gonic/gin"
)

type GameHandler struct {
	gameService *services.GameService
}

func NewGameHandler(gameService *services.GameService) *GameHandler {
	return &GameHandler{
		gameService: gameService,
	}
}

func (h *GameHandler) SubmitAnswer(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	result, err := h.gameService.SubmitAnswer(c.Request.Context(), sessionID, userID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"isCorrect":        result.IsCorrect,
		"points":           result.Points,
		"team":             result.Team,
		"teamScore":        result.TeamScore,
		"participantScore": result.ParticipantScore,
	})
}

func (h *GameHandler) GetGameState(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	state, err := h.gameService.GetGameState(c.Request.Context(), sessionID, userID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

func (h *GameHandler) GetLeaderboard(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		return
	}
	sessionID, ok := sessionIDParam(c)
	if !ok {
		return
	}

	entries, err := h.gameService.GetLeaderboard(c.Request.Context(), sessionID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"leaderboard": entries})
}
