package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	apperrors "solace-voice/internal/errors"
)

func TestDeviceLockKey(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		expected string
	}{
		{"ffmpeg input", "avfoundation::default", "recorder:device:avfoundation::default"},
		{"browser device", "browser:550e8400-e29b-41d4-a716-446655440000", "recorder:device:browser:550e8400-e29b-41d4-a716-446655440000"},
		{"empty string", "", "recorder:device:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeviceLockKey(tt.device))
		})
	}
}

// setupRedis starts a Redis testcontainer and returns a connected client.
func setupRedis(t *testing.T) *Redis {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	r, err := NewRedis(ctx, host+":"+port.Port(), nil)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func TestRedisLock(t *testing.T) {
	r := setupRedis(t)
	ctx := context.Background()
	lock := NewRedisLock(r.Client(), time.Minute)

	t.Run("second owner is rejected", func(t *testing.T) {
		require.NoError(t, lock.Acquire(ctx, "mic-a", "s1"))
		require.NoError(t, lock.Acquire(ctx, "mic-a", "s1"), "owner may re-acquire")

		assert.ErrorIs(t, lock.Acquire(ctx, "mic-a", "s2"), apperrors.ErrDeviceBusy)
	})

	t.Run("release by non-owner keeps the reservation", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx, "mic-a", "s2"))

		owner, err := r.Client().Get(ctx, DeviceLockKey("mic-a")).Result()
		require.NoError(t, err)
		assert.Equal(t, "s1", owner)
	})

	t.Run("release by owner frees the device", func(t *testing.T) {
		require.NoError(t, lock.Release(ctx, "mic-a", "s1"))

		assert.NoError(t, lock.Acquire(ctx, "mic-a", "s2"))
		require.NoError(t, lock.Release(ctx, "mic-a", "s2"))
	})

	t.Run("reservations expire", func(t *testing.T) {
		short := NewRedisLock(r.Client(), 100*time.Millisecond)
		require.NoError(t, short.Acquire(ctx, "mic-b", "s1"))

		assert.Eventually(t, func() bool {
			return short.Acquire(ctx, "mic-b", "s2") == nil
		}, 2*time.Second, 50*time.Millisecond)
	})

	t.Run("exactly one concurrent acquirer wins", func(t *testing.T) {
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(owner string) {
				defer wg.Done()
				if lock.Acquire(ctx, "mic-c", owner) == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}(string(rune('a' + i)))
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})
}
