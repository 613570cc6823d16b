package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
)

// MockUploader is an offline Uploader for development. It applies the same
// local checks as HTTPUploader and returns a canned case note.
type MockUploader struct {
	// SimulatedDelay is the time to simulate transcription processing.
	SimulatedDelay time.Duration
	// Transcription is returned as the transcribed text.
	Transcription string
	MaxBytes      int64
}

var _ Uploader = (*MockUploader)(nil)

// NewMockUploader creates a new MockUploader with default settings.
func NewMockUploader() *MockUploader {
	return &MockUploader{
		SimulatedDelay: 2 * time.Second,
		Transcription: "This is a mock transcription of the recording. " +
			"In production, this would contain the text returned by the case-notes service.",
	}
}

func (m *MockUploader) Upload(ctx context.Context, asset *models.AudioAsset, clientID string) (*models.TranscriptionResult, error) {
	if _, err := ValidateAsset(asset, m.MaxBytes); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.KindTimeout, "mock transcription timed out", ctx.Err())
		}
		return nil, apperrors.Wrap(apperrors.KindNetworkFailure, "upload was cancelled", ctx.Err())
	case <-time.After(m.SimulatedDelay):
	}

	note, err := json.Marshal(map[string]any{
		"client_id":  clientID,
		"content":    m.Transcription,
		"source":     "voice_note",
		"audio_file": asset.Filename,
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindMalformedResponse, "could not build mock case note", err)
	}
	return &models.TranscriptionResult{Transcription: m.Transcription, CaseNote: note}, nil
}
