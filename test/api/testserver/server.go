//go:build api

// Package testserver provides a fully wired recorder host for API tests.
package testserver

import (
	"context"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solace-voice/internal/cache"
	"solace-voice/internal/config"
	"solace-voice/internal/handler"
	"solace-voice/internal/queue"
	"solace-voice/internal/repository"
	"solace-voice/internal/router"
	"solace-voice/internal/service"
	"solace-voice/internal/storage"
	"solace-voice/internal/transcription"
	"solace-voice/pkg/auth"
	"solace-voice/test/api/testdb"
)

const (
	// TestJWTSecret signs the access tokens used in tests.
	TestJWTSecret = "test-secret-key-for-api-tests"
	// TestTokenExpiry is the access token lifetime used in tests.
	TestTokenExpiry = 15 * time.Minute
	// TestDBName is the journal database used in tests.
	TestDBName = "test_api"
	// TestPermissionTimeout bounds how long Start waits for the test browser.
	TestPermissionTimeout = 10 * time.Second
)

// TestServer holds all dependencies for API integration tests.
type TestServer struct {
	// Router is the Gin engine for plain HTTP requests.
	Router *gin.Engine
	// HTTP serves Router on a real port for websocket clients.
	HTTP *httptest.Server

	// Containers
	MongoDB *testdb.MongoContainer
	Redis   *testdb.RedisContainer
	MinIO   *testdb.MinIOContainer

	Backend  *Backend
	Tokens   *auth.JWTManager
	Sessions *service.SessionService
	History  repository.SessionLogRepository

	JournalQueue *queue.MemoryQueue[queue.JournalJob]
	processor    *queue.Processor
	cancel       context.CancelFunc
}

// New starts the containers and wires the recorder host the way cmd/server does.
func New(ctx context.Context, log *zap.Logger) (*TestServer, error) {
	gin.SetMode(gin.TestMode)

	ts := &TestServer{Backend: NewBackend()}
	var err error

	if ts.MongoDB, err = testdb.SetupMongoDB(ctx, TestDBName); err != nil {
		ts.Cleanup(ctx)
		return nil, err
	}
	if ts.Redis, err = testdb.SetupRedis(ctx); err != nil {
		ts.Cleanup(ctx)
		return nil, err
	}
	if ts.MinIO, err = testdb.SetupMinIO(ctx); err != nil {
		ts.Cleanup(ctx)
		return nil, err
	}

	s3Client, err := storage.NewS3Client(ctx, storage.S3Config{
		Endpoint:  ts.MinIO.Endpoint,
		AccessKey: testdb.MinIOAccessKey,
		SecretKey: testdb.MinIOSecretKey,
		Bucket:    testdb.MinIOBucket,
	}, log)
	if err != nil {
		ts.Cleanup(ctx)
		return nil, err
	}

	uploader := transcription.NewHTTPUploader(transcription.Config{
		BaseURL:  ts.Backend.URL,
		Timeout:  10 * time.Second,
		MaxBytes: config.DefaultMaxUploadBytes,
	}, transcription.ContextToken{}, log.Named("uploader"))

	// Journal
	ts.History = repository.NewSessionLogRepository(ts.MongoDB.DB.Database)
	ts.JournalQueue = queue.NewMemoryQueue[queue.JournalJob](100)
	ts.processor = queue.NewProcessor(ts.JournalQueue, ts.History, 2, log.Named("journal"))
	workerCtx, cancel := context.WithCancel(context.Background())
	ts.cancel = cancel
	ts.processor.Start(workerCtx)

	ts.Sessions = service.NewSessionService(uploader, service.SessionOptions{
		Lock:              cache.NewRedisLock(ts.Redis.Cache.Client(), time.Hour),
		Storage:           s3Client,
		Journal:           ts.processor,
		History:           ts.History,
		PermissionTimeout: TestPermissionTimeout,
		Logger:            log.Named("recorder"),
	})

	ts.Tokens = auth.NewJWTManager(TestJWTSecret, TestTokenExpiry, auth.SupabaseAudience)
	ts.Router = router.Setup(&router.Config{
		RecorderHandler: handler.NewRecorderHandler(ts.Sessions, config.DefaultMaxUploadBytes),
		StreamHandler:   handler.NewStreamHandler(ts.Sessions, log.Named("stream")),
		Tokens:          ts.Tokens,
		HealthChecks: map[string]router.HealthCheck{
			"transcription": func(ctx context.Context) error {
				_, err := uploader.Health(ctx)
				return err
			},
			"redis": ts.Redis.Cache.Ping,
			"mongo": ts.MongoDB.DB.Ping,
		},
		Logger: log.Named("http"),
	})
	ts.HTTP = httptest.NewServer(ts.Router)

	return ts, nil
}

// Cleanup stops the host and terminates all containers.
func (ts *TestServer) Cleanup(ctx context.Context) {
	if ts.HTTP != nil {
		ts.HTTP.Close()
	}
	if ts.Sessions != nil {
		ts.Sessions.Close(ctx)
	}
	if ts.processor != nil {
		ts.processor.Stop()
	}
	if ts.cancel != nil {
		ts.cancel()
	}
	if ts.Backend != nil {
		ts.Backend.Close()
	}
	if ts.MinIO != nil {
		_ = ts.MinIO.Cleanup(ctx)
	}
	if ts.Redis != nil {
		_ = ts.Redis.Cleanup(ctx)
	}
	if ts.MongoDB != nil {
		_ = ts.MongoDB.Cleanup(ctx)
	}
}
