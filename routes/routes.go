package routes

import (
	"log"
	"net/http"

	"tugofwar/handlers"
	"tugofwar/middleware"
	"tugofwar/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func SetupRoutes(
	router *gin.Engine,
	authHandler *handlers.AuthHandler,
	sessionHandler *handlers.SessionHandler,
	gameHandler *handlers.GameHandler,
	hub *services.Hub,
	sessionService *services.SessionService,
	jwtSecret string,
) {
	api := router.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware(jwtSecret))
		{
			protected.GET("/auth/profile", authHandler.GetProfile)

			sessions := protected.Group("/sessions")
			{
				sessions.POST("", sessionHandler.CreateSession)
				sessions.GET("", sessionHandler.ListSessions)
				sessions.GET("/code/:code", sessionHandler.GetSessionByCode)
				sessions.POST("/code/:code/join", sessionHandler.JoinSession)
				sessions.POST("/:id/open", sessionHandler.OpenLobby)
				sessions.POST("/:id/start", sessionHandler.StartSession)
				sessions.POST("/:id/next-question", sessionHandler.NextQuestion)
				sessions.POST("/:id/pause", sessionHandler.PauseSession)
				sessions.POST("/:id/resume", sessionHandler.ResumeSession)
				sessions.POST("/:id/end", sessionHandler.EndSession)
				sessions.POST("/:id/leave", sessionHandler.LeaveSession)
			}

			game := protected.Group("/game")
			{
				game.POST("/:id/answer", gameHandler.SubmitAnswer)
				game.GET("/:id/state", gameHandler.GetGameState)
				game.GET("/:id/leaderboard", gameHandler.GetLeaderboard)
			}
		}
	}

	// WebSocket endpoint for the live session channel. Browsers cannot set
	// headers on websocket upgrades, so the JWT is passed as a query param.
	router.GET("/ws/:code", func(c *gin.Context) {
		code := c.Param("code")
		token := c.Query("token")

		claims, err := middleware.ParseToken(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "reason": "UNAUTHORIZED", "message": "invalid or expired token"})
			return
		}

		sess, err := sessionService.GetByCode(c.Request.Context(), code)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "reason": "SESSION_NOT_FOUND", "message": "session not found"})
			return
		}

		// Only the owning teacher and joined participants may subscribe.
		if sess.TeacherID != claims.UserID && sess.ParticipantByUser(claims.UserID) == nil {
			c.JSON(http.StatusForbidden, gin.H{"success": false, "reason": "NOT_A_PARTICIPANT", "message": "not a participant in this session"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("websocket upgrade failed for session %s, user %d: %v", sess.Code, claims.UserID, err)
			return
		}

		hub.RegisterClient(conn, sess.Code, claims.UserID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
