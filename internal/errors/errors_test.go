package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuthErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrUnauthorized", ErrUnauthorized, "unauthorized"},
		{"ErrInvalidToken", ErrInvalidToken, "invalid token"},
		{"ErrTokenExpired", ErrTokenExpired, "token expired"},
		{"ErrMissingToken", ErrMissingToken, "no access token available for upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestRecorderErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"ErrSessionNotFound", ErrSessionNotFound, "no recorder is open for this user"},
		{"ErrSessionActive", ErrSessionActive, "a recording is already in progress, reset it first"},
		{"ErrDeviceBusy", ErrDeviceBusy, "capture device is held by another recording session"},
		{"ErrDeviceDetached", ErrDeviceDetached, "capture device is not connected"},
		{"ErrDeviceLost", ErrDeviceLost, "capture device stopped delivering audio"},
		{"ErrNoAudioCaptured", ErrNoAudioCaptured, "no audio was captured"},
		{"ErrPermissionDenied", ErrPermissionDenied, "microphone access was denied"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestTranscriptionError_Error(t *testing.T) {
	t.Run("without cause", func(t *testing.T) {
		err := NewError(KindAuthFailure, "session expired")
		assert.Equal(t, "AuthFailure: session expired", err.Error())
		assert.Nil(t, errors.Unwrap(err))
	})

	t.Run("with cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(KindNetworkFailure, "upload failed", cause)
		assert.Equal(t, "NetworkFailure: upload failed: connection refused", err.Error())
		assert.ErrorIs(t, err, cause)
	})
}

func TestTranscriptionError_Is(t *testing.T) {
	err := fmt.Errorf("submit: %w", Wrap(KindTimeout, "deadline", context.DeadlineExceeded))

	assert.ErrorIs(t, err, NewError(KindTimeout, ""))
	assert.NotErrorIs(t, err, NewError(KindNetworkFailure, ""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Kind
	}{
		{"nil", nil, ""},
		{"classified", NewError(KindMalformedResponse, "bad json"), KindMalformedResponse},
		{"wrapped classified", fmt.Errorf("x: %w", NewError(KindAuthFailure, "401")), KindAuthFailure},
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), KindTimeout},
		{"unsupported sentinel", ErrUnsupportedFormat, KindUnsupportedFormat},
		{"too large sentinel", ErrPayloadTooLarge, KindPayloadTooLarge},
		{"empty asset", ErrEmptyAsset, KindNoAudioCaptured},
		{"device busy", ErrDeviceBusy, KindDeviceBusy},
		{"permission", ErrPermissionDenied, KindPermissionDenied},
		{"missing token", ErrMissingToken, KindAuthFailure},
		{"unknown", errors.New("boom"), KindNetworkFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "", MessageOf(nil))
	assert.Equal(t, "try again", MessageOf(NewError(KindTimeout, "try again")))
	assert.Equal(t, "boom", MessageOf(errors.New("boom")))
}

func TestKind_Retryable(t *testing.T) {
	assert.True(t, KindNetworkFailure.Retryable())
	assert.True(t, KindTimeout.Retryable())
	assert.False(t, KindAuthFailure.Retryable())
	assert.False(t, KindUnsupportedFormat.Retryable())
	assert.False(t, KindPermissionDenied.Retryable())
}
