package main

import (
	"context"
	"log"

	"tugofwar/config"
	"tugofwar/handlers"
	"tugofwar/middleware"
	"tugofwar/models"
	"tugofwar/routes"
	"tugofwar/services"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Question{},
		&models.AnswerOption{},
		&models.Participant{},
		&models.GameHistory{},
		&models.SessionAnswer{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	redisClient := config.InitRedis(cfg)

	store := services.NewStore(db)
	cache := services.NewLiveCache(redisClient)
	locks := services.NewLocker()

	// The hub needs the game service for state-sync replies and the services
	// need the hub to broadcast, so the hub is built first with a provider
	// that is wired afterwards.
	var gameService *services.GameService
	hub := services.NewHub(services.StateProviderFunc(func(ctx context.Context, code string) (*services.GameState, error) {
		return gameService.LiveState(ctx, code)
	}))

	authService := services.NewAuthService(store, cfg.JWTSecret)
	sessionService := services.NewSessionService(store, cache, hub, locks)
	gameService = services.NewGameService(store, cache, hub, locks)

	go hub.Run()

	authHandler := handlers.NewAuthHandler(authService)
	sessionHandler := handlers.NewSessionHandler(sessionService)
	gameHandler := handlers.NewGameHandler(gameService)

	router := gin.Default()
	router.Use(middleware.CORS())

	routes.SetupRoutes(router, authHandler, sessionHandler, gameHandler, hub, sessionService, cfg.JWTSecret)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
