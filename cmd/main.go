package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"supplier-import-service/internal/clients"
	"supplier-import-service/internal/config"
	"supplier-import-service/internal/events"
	"supplier-import-service/internal/handlers"
	"supplier-import-service/internal/middleware"
	"supplier-import-service/internal/repository"
	"supplier-import-service/internal/services"
)

// @title Supplier Catalog Import API
// @version 1.0.0
// @description Catalog file ingestion, column mapping and chunked import orchestration with multi-tenant support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8089
// @BasePath /api/v1

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize Redis client
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARNING: Failed to parse Redis URL: %v (continuing without Redis)", err)
		redisOpts = &redis.Options{
			Addr: "localhost:6379",
		}
	}
	redisClient := redis.NewClient(redisOpts)

	// Test Redis connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Failed to connect to Redis: %v (job caching will be disabled)", err)
	} else {
		log.Println("✓ Redis connected successfully")
	}
	cancel()

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db, redisClient)
	profileRepo := repository.NewProfileRepository(db)

	// Initialize event publisher and per-job subscriber only if NATS_URL is set
	var publisher *events.Publisher
	var subscriber *events.JobSubscriber
	if os.Getenv("NATS_URL") != "" {
		publisher, err = events.NewPublisher(logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (progress falls back to polling)", err)
		} else {
			subscriber = events.NewJobSubscriber(publisher.Conn(), logger)
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, progress push disabled (polling only)")
	}
	defer func() {
		if publisher != nil {
			publisher.Close()
		}
	}()

	// Initialize processing backend client
	processorClient := clients.NewProcessorClient(cfg.ChunkTimeout)

	// Wrapping a nil *events.Publisher in the interface would make it
	// non-nil inside the service, so only assign when connected.
	var pub services.ProgressPublisher
	if publisher != nil {
		pub = publisher
	}
	var sub services.PushSubscriber
	if subscriber != nil {
		sub = subscriber
	}
	importService := services.NewImportService(jobRepo, profileRepo, processorClient, pub, sub, cfg, logger)

	// Initialize handlers
	importHandler := handlers.NewImportHandler(importService, jobRepo, profileRepo, cfg, logger)
	profileHandler := handlers.NewProfileHandler(profileRepo, logger)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck)

	// Protected API routes
	api := router.Group("/api/v1")
	api.Use(middleware.TenantMiddleware())

	catalog := api.Group("/catalog")
	{
		imports := catalog.Group("/import")
		{
			imports.GET("/template", importHandler.GetImportTemplate)
			imports.POST("/preview", importHandler.PreviewImport)
			imports.POST("", importHandler.StartImport)
			imports.POST("/file", importHandler.StartFileImport)
			imports.GET("/stats", importHandler.GetImportStats)

			imports.GET("/jobs", importHandler.ListImportJobs)
			imports.GET("/jobs/:id", importHandler.GetImportJob)
			imports.GET("/jobs/:id/logs", importHandler.GetJobLogs)
			imports.GET("/jobs/:id/progress", importHandler.GetJobProgress)
			imports.POST("/jobs/:id/cancel", importHandler.CancelImportJob)

			imports.GET("/inbox/:id/progress", importHandler.GetInboxProgress)
		}

		profiles := catalog.Group("/profiles")
		{
			profiles.GET("", profileHandler.ListProfiles)
			profiles.GET("/default", profileHandler.GetDefaultProfile)
			profiles.GET("/:id", profileHandler.GetProfile)
			profiles.POST("", profileHandler.CreateProfile)
			profiles.PUT("/:id", profileHandler.UpdateProfile)
			profiles.DELETE("/:id", profileHandler.DeleteProfile)
		}
	}

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	port := cfg.Port
	if envPort := os.Getenv("PORT"); envPort != "" {
		port = envPort
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Supplier import service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down supplier-import-service...")
}
