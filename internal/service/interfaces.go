// Package service hosts recorder sessions for authenticated web users.
package service

import (
	"context"

	"solace-voice/internal/capture"
	"solace-voice/internal/models"
)

// RecorderServicer defines the recorder operations the HTTP layer drives.
type RecorderServicer interface {
	Open(ctx context.Context, userID, clientID string) (models.SessionSnapshot, error)
	Current(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Start(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Pause(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Resume(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Stop(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Submit(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Reset(ctx context.Context, userID string) (models.SessionSnapshot, error)
	Discard(ctx context.Context, userID string) error
	SubmitFile(ctx context.Context, userID string, upload *models.FileUpload) (*models.TranscriptionResult, error)
	History(ctx context.Context, userID string, page, limit int) (*models.SessionLogListResponse, error)
	Device(userID string) (*capture.StreamDevice, error)
	Subscribe(userID string, fn func(models.SessionSnapshot)) (cancel func(), err error)
}

// Journal accepts session log entries for asynchronous persistence.
type Journal interface {
	Submit(entry *models.SessionLog) error
}

// Ensure concrete types implement interfaces
var _ RecorderServicer = (*SessionService)(nil)
