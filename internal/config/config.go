package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"supplier-import-service/internal/models"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Redis
	RedisURL string

	// Server
	Port        string
	Environment string

	// Chunk transfer
	ChunkSize    int
	MaxChunkSize int
	// ChunkTimeout bounds a single chunk round-trip; without it a stalled
	// backend call would block the sequential loop indefinitely.
	ChunkTimeout time.Duration
	FileTimeout  time.Duration

	// Progress tracking
	PollInterval time.Duration
	GracePeriod  time.Duration

	// Preview
	PreviewRows int

	// Pagination
	DefaultPageSize int
	MaxPageSize     int
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	chunkSize, _ := strconv.Atoi(getEnv("CHUNK_SIZE", "100"))
	maxChunkSize, _ := strconv.Atoi(getEnv("MAX_CHUNK_SIZE", "500"))
	chunkTimeout, _ := strconv.Atoi(getEnv("CHUNK_TIMEOUT_SECONDS", "60"))
	fileTimeout, _ := strconv.Atoi(getEnv("FILE_TIMEOUT_SECONDS", "300"))
	pollInterval, _ := strconv.Atoi(getEnv("PROGRESS_POLL_SECONDS", "2"))
	gracePeriod, _ := strconv.Atoi(getEnv("PROGRESS_GRACE_SECONDS", "3"))
	previewRows, _ := strconv.Atoi(getEnv("PREVIEW_ROWS", "20"))
	defaultPageSize, _ := strconv.Atoi(getEnv("DEFAULT_PAGE_SIZE", "20"))
	maxPageSize, _ := strconv.Atoi(getEnv("MAX_PAGE_SIZE", "100"))

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "imports_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port:        getEnv("PORT", "8089"),
		Environment: getEnv("ENVIRONMENT", "development"),

		ChunkSize:    chunkSize,
		MaxChunkSize: maxChunkSize,
		ChunkTimeout: time.Duration(chunkTimeout) * time.Second,
		FileTimeout:  time.Duration(fileTimeout) * time.Second,

		PollInterval: time.Duration(pollInterval) * time.Second,
		GracePeriod:  time.Duration(gracePeriod) * time.Second,

		PreviewRows: previewRows,

		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.MappingProfile{},
		&models.ImportJob{},
		&models.ImportLogEntry{},
		&models.InboxRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
	}
	log.Println("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
