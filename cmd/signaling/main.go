package main

import (
	"context"
	"log"

	"github.com/tanglechat/rtc-signaling/config"
	"github.com/tanglechat/rtc-signaling/internal/handlers"
	"github.com/tanglechat/rtc-signaling/internal/media"
	"github.com/tanglechat/rtc-signaling/internal/middleware"
	"github.com/tanglechat/rtc-signaling/internal/redis"
	"github.com/tanglechat/rtc-signaling/internal/registry"
	"github.com/tanglechat/rtc-signaling/internal/turn"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to Redis
	if err := redis.Connect(cfg.Redis); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Redis connection established")

	// Media backend is selected once at startup and never per-room
	mediaCtl, err := media.New(cfg.Media)
	if err != nil {
		log.Fatalf("Failed to initialize media backend: %v", err)
	}
	log.Printf("Media backend: %s", mediaCtl.Metrics().Mode)

	// Room registry owned by this process; expired empty rooms release
	// their media-plane resources
	reg := registry.New(cfg.Signaling.RoomGracePeriod)
	reg.OnRoomExpired(func(roomID string) {
		if err := mediaCtl.CloseRoom(context.Background(), roomID); err != nil {
			log.Printf("Failed to close media room %s: %v", roomID, err)
		}
		log.Printf("Expired empty room: %s", roomID)
	})

	broker := turn.NewBroker(cfg.Turn.URIs, cfg.Turn.SharedSecret, cfg.Turn.CredentialTTL)
	signaling := handlers.NewSignaling(cfg, reg, mediaCtl, broker)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		// Login endpoint (public, stands in for the auth backend)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Room metadata (create requires JWT, get is public)
		apiGroup.POST("/rooms", middleware.JWTAuth(cfg.JWTSecret), handlers.CreateRoom)
		apiGroup.GET("/rooms/:roomId", handlers.GetRoom)
		apiGroup.DELETE("/rooms/:roomId", middleware.JWTAuth(cfg.JWTSecret), handlers.DeleteRoom)

		// Public ICE server list: credential-free by construction
		apiGroup.GET("/ice-servers", handlers.ListICEServers(broker))

		// Ephemeral TURN credentials (requires JWT)
		apiGroup.POST("/turn-credentials", middleware.JWTAuth(cfg.JWTSecret), handlers.IssueTurnCredentials(broker))

		// Media backend mode and live room counters
		apiGroup.GET("/metrics", handlers.Metrics(mediaCtl, reg))
	}

	// WebSocket signaling endpoint (token passed as ?token= query param)
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", signaling.HandleSignaling)
	}

	// Start server
	log.Printf("Starting call signaling server on port %s", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
