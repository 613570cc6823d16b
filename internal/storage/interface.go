package storage

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_storage.go -package=mocks solace-voice/internal/storage Storage

// Storage archives stopped recordings so the browser can play them back
// before submitting.
type Storage interface {
	// PutObject stores a recording under key.
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	// GetPresignedURL returns a time-limited playback URL for key.
	GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	// DeleteObject removes an archived recording after reset or discard.
	DeleteObject(ctx context.Context, key string) error
}

var _ Storage = (*S3Client)(nil)
