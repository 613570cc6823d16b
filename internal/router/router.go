// Package router sets up HTTP routes for the API.
package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"solace-voice/internal/handler"
	"solace-voice/internal/middleware"
	"solace-voice/pkg/auth"
	_ "solace-voice/swagger" // Import generated swagger docs
)

const healthTimeout = 5 * time.Second

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Config holds all dependencies needed to set up routes.
type Config struct {
	RecorderHandler *handler.RecorderHandler
	StreamHandler   *handler.StreamHandler
	Tokens          auth.TokenManager
	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string
	// HealthChecks are reported by name on /health.
	HealthChecks map[string]HealthCheck
	Logger       *zap.Logger
}

// Setup creates and configures the Gin router.
func Setup(cfg *Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins...))

	// Swagger docs at /docs
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.GET("/health", health(cfg.HealthChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := r.Group("/api/v1")
	{
		recorder := v1.Group("/recorder")
		recorder.Use(middleware.Auth(cfg.Tokens))
		{
			recorder.POST("/sessions", cfg.RecorderHandler.OpenSession)
			recorder.GET("/sessions/history", cfg.RecorderHandler.ListHistory)

			current := recorder.Group("/sessions/current")
			{
				current.GET("", cfg.RecorderHandler.GetSession)
				current.DELETE("", cfg.RecorderHandler.DiscardSession)
				current.POST("/start", cfg.RecorderHandler.Start)
				current.POST("/pause", cfg.RecorderHandler.Pause)
				current.POST("/resume", cfg.RecorderHandler.Resume)
				current.POST("/stop", cfg.RecorderHandler.Stop)
				current.POST("/submit", cfg.RecorderHandler.Submit)
				current.POST("/reset", cfg.RecorderHandler.Reset)
				current.GET("/stream", cfg.StreamHandler.Stream)
			}

			recorder.POST("/uploads", cfg.RecorderHandler.UploadFile)
		}
	}

	return r
}

// health runs every check and answers 503 if any fails.
func health(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		c.JSON(status, gin.H{"status": overall, "checks": results})
	}
}
