//go:build api

package testdb

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"solace-voice/internal/cache"
)

// RedisContainer wraps a Redis testcontainer backing the shared device lock.
type RedisContainer struct {
	Container testcontainers.Container
	Cache     *cache.Redis
}

// SetupRedis starts Redis and connects through the cache package.
func SetupRedis(ctx context.Context) (*RedisContainer, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		return nil, err
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	redisCache, err := cache.NewRedis(ctx, host+":"+port.Port(), nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &RedisContainer{Container: container, Cache: redisCache}, nil
}

// Cleanup closes the client and terminates the Redis container.
func (rc *RedisContainer) Cleanup(ctx context.Context) error {
	if rc.Cache != nil {
		rc.Cache.Close()
	}
	if rc.Container != nil {
		return rc.Container.Terminate(ctx)
	}
	return nil
}

// FlushDB clears all keys from Redis.
func (rc *RedisContainer) FlushDB(ctx context.Context) error {
	return rc.Cache.Client().FlushDB(ctx).Err()
}

// Owner returns who holds key, or "" when it is free.
func (rc *RedisContainer) Owner(ctx context.Context, key string) string {
	owner, err := rc.Cache.Client().Get(ctx, key).Result()
	if err != nil {
		return ""
	}
	return owner
}
