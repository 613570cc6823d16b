// Package transcription uploads finalized voice notes for server-side
// transcription and classifies the ways that can fail.
package transcription

//go:generate mockgen -source=service.go -destination=mocks/mock_uploader.go -package=mocks

import (
	"context"
	"fmt"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
	"solace-voice/pkg/auth"
)

// Uploader turns an audio asset into a transcription and a case note.
// Implementations never retry and never touch session state. Every failure is
// an *apperrors.TranscriptionError.
type Uploader interface {
	Upload(ctx context.Context, asset *models.AudioAsset, clientID string) (*models.TranscriptionResult, error)
}

// TokenSource supplies the bearer token for an upload.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", apperrors.ErrMissingToken
	}
	return string(s), nil
}

// ContextToken forwards the token attached to the request context by the auth
// middleware.
type ContextToken struct{}

func (ContextToken) Token(ctx context.Context) (string, error) {
	token, ok := auth.TokenFromContext(ctx)
	if !ok {
		return "", apperrors.ErrMissingToken
	}
	return token, nil
}

// ValidateAsset applies the local checks every uploader runs before touching
// the network. maxBytes <= 0 disables the size check.
func ValidateAsset(asset *models.AudioAsset, maxBytes int64) (string, error) {
	if asset == nil || len(asset.Bytes) == 0 {
		return "", apperrors.Wrap(apperrors.KindNoAudioCaptured, "the recording is empty", apperrors.ErrEmptyAsset)
	}
	mimeType := NormalizeMimeType(asset.MimeType)
	if !IsSupported(mimeType) {
		return "", apperrors.Wrap(apperrors.KindUnsupportedFormat,
			fmt.Sprintf("audio format %q is not supported", asset.MimeType), apperrors.ErrUnsupportedFormat)
	}
	if maxBytes > 0 && int64(len(asset.Bytes)) > maxBytes {
		return "", apperrors.Wrap(apperrors.KindPayloadTooLarge,
			fmt.Sprintf("recording is %d bytes, the limit is %d", len(asset.Bytes), maxBytes), apperrors.ErrPayloadTooLarge)
	}
	return mimeType, nil
}
