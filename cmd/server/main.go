package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solace-voice/internal/cache"
	"solace-voice/internal/capture"
	"solace-voice/internal/config"
	"solace-voice/internal/database"
	"solace-voice/internal/handler"
	"solace-voice/internal/queue"
	"solace-voice/internal/repository"
	"solace-voice/internal/router"
	"solace-voice/internal/service"
	"solace-voice/internal/storage"
	"solace-voice/internal/transcription"
	"solace-voice/internal/validator"
	"solace-voice/pkg/auth"
	"solace-voice/pkg/logger"
)

// @title           Solace Voice Recorder API
// @version         1.0
// @description     Records voice notes from the browser and submits them for transcription.

// @contact.name    API Support
// @contact.email   support@solace.example

// @host            localhost:8080
// @BasePath        /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter your bearer token in the format: Bearer {token}

func main() {
	// Load configuration
	cfg := config.Load()

	log := logger.New(logger.Config{Level: cfg.LogLevel, Filename: cfg.LogFilename})
	defer func() { _ = log.Sync() }()
	log.Info("configuration loaded",
		zap.Bool("journal", cfg.JournalEnabled()),
		zap.Bool("archive", cfg.ArchiveEnabled()),
		zap.Bool("redis_lock", cfg.RedisURI != ""))

	// Register custom validators
	validator.RegisterCustomValidators()

	// Set Gin mode
	gin.SetMode(cfg.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Transcription uploader forwards each user's own access token
	uploader := transcription.NewHTTPUploader(transcription.Config{
		BaseURL:        cfg.APIBaseURL,
		TranscribePath: cfg.TranscribePath,
		HealthPath:     cfg.HealthPath,
		Timeout:        cfg.UploadTimeout,
		MaxBytes:       cfg.MaxUploadBytes,
	}, transcription.ContextToken{}, log.Named("uploader"))

	checks := map[string]router.HealthCheck{
		"transcription": func(ctx context.Context) error {
			_, err := uploader.Health(ctx)
			return err
		},
	}

	opts := service.SessionOptions{
		MaxDuration:       cfg.MaxRecordingDuration,
		PermissionTimeout: cfg.PermissionTimeout,
		Logger:            log.Named("recorder"),
	}

	// Device lock: Redis when several hosts share users, in-memory otherwise
	if cfg.RedisURI != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisURI, log)
		if err != nil {
			log.Fatal("redis unavailable", zap.Error(err))
		}
		defer redisCache.Close()
		opts.Lock = cache.NewRedisLock(redisCache.Client(), cfg.DeviceLockTTL)
		checks["redis"] = redisCache.Ping
	} else {
		opts.Lock = capture.NewMemoryLock()
	}

	// Asset archive for playback previews
	if cfg.ArchiveEnabled() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		}, log)
		if err != nil {
			log.Fatal("S3 archive unavailable", zap.Error(err))
		}
		opts.Storage = s3Client
	}

	// Session journal
	var processor *queue.Processor
	if cfg.JournalEnabled() {
		mongoDB, err := database.NewMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase, log)
		if err != nil {
			log.Fatal("MongoDB unavailable", zap.Error(err))
		}
		defer mongoDB.Close()
		checks["mongo"] = mongoDB.Ping

		sessionLogRepo := repository.NewSessionLogRepository(mongoDB.Database)
		journalQueue := queue.NewMemoryQueue[queue.JournalJob](cfg.JournalQueueSize)
		processor = queue.NewProcessor(journalQueue, sessionLogRepo, cfg.JournalWorkers, log.Named("journal"))
		processor.Start(ctx)

		opts.Journal = processor
		opts.History = sessionLogRepo
	}

	// Service layer
	sessionService := service.NewSessionService(uploader, opts)

	// Handler layer
	recorderHandler := handler.NewRecorderHandler(sessionService, cfg.MaxUploadBytes)
	streamHandler := handler.NewStreamHandler(sessionService, log.Named("stream"))

	// Router
	r := router.Setup(&router.Config{
		RecorderHandler: recorderHandler,
		StreamHandler:   streamHandler,
		Tokens:          auth.NewJWTManager(cfg.JWTSecret, 0, cfg.JWTAudience),
		AllowedOrigins:  cfg.CORSOrigins,
		HealthChecks:    checks,
		Logger:          log.Named("http"),
	})

	// Create HTTP server for graceful shutdown support
	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server first (drain connections)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Discard open recorders; unfinished sessions are journaled as discarded
	sessionService.Close(shutdownCtx)

	// Drain the journal before cancelling the workers' context
	if processor != nil {
		log.Info("stopping journal processor")
		processor.Stop()
	}
	cancel()

	log.Info("server shutdown complete")
}
