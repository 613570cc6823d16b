package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultMaxUploadBytes mirrors the case-notes backend's 25 MB audio limit.
const DefaultMaxUploadBytes = 25 << 20

// DefaultUploadTimeout bounds an upload when no positive timeout is set.
const DefaultUploadTimeout = 60 * time.Second

// Config holds all configuration for the recorder API host
type Config struct {
	ServerPort string
	GinMode    string

	// Transcription endpoint
	APIBaseURL     string
	TranscribePath string
	HealthPath     string
	UploadTimeout  time.Duration
	MaxUploadBytes int64

	MaxRecordingDuration time.Duration
	PermissionTimeout    time.Duration

	JWTSecret   string
	JWTAudience string
	// CORSOrigins limits browser origins; empty allows any.
	CORSOrigins []string

	// Optional backends; empty disables the feature.
	RedisURI      string
	DeviceLockTTL time.Duration
	MongoURI      string
	MongoDatabase string
	S3Endpoint    string
	S3AccessKey   string
	S3SecretKey   string
	S3Bucket      string
	S3Region      string
	S3UseSSL      bool

	JournalWorkers   int
	JournalQueueSize int

	LogLevel    string
	LogFilename string
}

// Load reads configuration from .env file and environment variables
func Load() *Config {
	// Load .env file (ignore error if file doesn't exist - env vars may be set directly)
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:           getEnv("SERVER_PORT", "8080"),
		GinMode:              getEnv("GIN_MODE", "debug"),
		APIBaseURL:           getEnvRequired("API_BASE_URL"),
		TranscribePath:       getEnv("TRANSCRIBE_PATH", "/api/case-notes/transcribe-audio/"),
		HealthPath:           getEnv("HEALTH_PATH", "/api/case-notes/voice/health/"),
		UploadTimeout:        positiveDuration("UPLOAD_TIMEOUT", DefaultUploadTimeout),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes)),
		MaxRecordingDuration: parseDuration(getEnv("MAX_RECORDING_DURATION", "0s")),
		PermissionTimeout:    parseDuration(getEnv("PERMISSION_TIMEOUT", "2m")),
		JWTSecret:            getEnvRequired("SUPABASE_JWT_SECRET"),
		JWTAudience:          getEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		CORSOrigins:          getEnvList("CORS_ALLOWED_ORIGINS"),
		RedisURI:             getEnv("REDIS_URI", ""),
		DeviceLockTTL:        parseDuration(getEnv("DEVICE_LOCK_TTL", "2h")),
		MongoURI:             getEnv("MONGO_URI", ""),
		MongoDatabase:        getEnv("MONGO_DATABASE", "solace_voice"),
		S3Endpoint:           getEnv("S3_ENDPOINT", ""),
		S3AccessKey:          getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:          getEnv("S3_SECRET_KEY", ""),
		S3Bucket:             getEnv("S3_BUCKET", "voice-notes"),
		S3Region:             getEnv("S3_REGION", "us-east-1"),
		S3UseSSL:             getEnvBool("S3_USE_SSL", false),
		JournalWorkers:       getEnvInt("JOURNAL_WORKERS", 2),
		JournalQueueSize:     getEnvInt("JOURNAL_QUEUE_SIZE", 100),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFilename:          getEnv("LOG_FILENAME", ""),
	}

	return cfg
}

// LoadJournal reads only the settings cmd/index needs, so migrations run
// without API credentials.
func LoadJournal() *Config {
	_ = godotenv.Load()

	return &Config{
		MongoURI:      getEnvRequired("MONGO_URI"),
		MongoDatabase: getEnv("MONGO_DATABASE", "solace_voice"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
}

// JournalEnabled reports whether session outcomes are written to Mongo.
func (c *Config) JournalEnabled() bool {
	return c.MongoURI != ""
}

// ArchiveEnabled reports whether stopped recordings are archived to S3.
func (c *Config) ArchiveEnabled() bool {
	return c.S3Endpoint != ""
}

// getEnv reads an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvRequired reads an environment variable and exits if not set
func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("Required environment variable %s is not set", key)
	}
	return value
}

// getEnvInt reads an integer environment variable with a fallback default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %s", key, value)
	}
	return n
}

// getEnvBool reads a boolean environment variable with a fallback default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatalf("Invalid boolean for %s: %s", key, value)
	}
	return b
}

// getEnvList reads a comma-separated environment variable, skipping blanks
func getEnvList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// positiveDuration reads a duration that must be greater than zero, falling
// back to defaultValue when it is unset or not positive
func positiveDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d := parseDuration(value)
	if d <= 0 {
		log.Printf("%s must be positive, using %s", key, defaultValue)
		return defaultValue
	}
	return d
}

// parseDuration parses a duration string, exits on error
func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Invalid duration format: %s", s)
	}
	return d
}
