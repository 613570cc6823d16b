// Package cache provides Redis-backed coordination between recorder hosts.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis wraps the Redis client.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis connects to uri ("host:port" or a full redis:// URL) and pings it.
func NewRedis(ctx context.Context, uri string, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.Contains(uri, "://") {
		uri = "redis://" + uri
	}
	opt, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing Redis URI: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to Redis: %w", err)
	}

	logger.Info("connected to Redis", zap.String("addr", opt.Addr))

	return &Redis{client: client, logger: logger}, nil
}

// Client exposes the underlying client.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Redis) Close() {
	if err := r.client.Close(); err != nil {
		r.logger.Warn("closing Redis connection failed", zap.Error(err))
		return
	}
	r.logger.Info("disconnected from Redis")
}
