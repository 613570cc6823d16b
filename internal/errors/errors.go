// Package errors provides custom error types for the application.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Auth errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrMissingToken = errors.New("no access token available for upload")
)

// Recorder errors
var (
	ErrSessionNotFound  = errors.New("no recorder is open for this user")
	ErrSessionActive    = errors.New("a recording is already in progress, reset it first")
	ErrDeviceBusy       = errors.New("capture device is held by another recording session")
	ErrDeviceDetached   = errors.New("capture device is not connected")
	ErrDeviceLost       = errors.New("capture device stopped delivering audio")
	ErrNoAudioCaptured  = errors.New("no audio was captured")
	ErrPermissionDenied = errors.New("microphone access was denied")
)

// Upload errors
var (
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrEmptyAsset        = errors.New("audio asset is empty")
	ErrPayloadTooLarge   = errors.New("audio asset exceeds the upload size limit")
	ErrMalformedResponse = errors.New("transcription response could not be parsed")
	ErrJournalDisabled   = errors.New("session history is not configured")
)

// Kind is the machine-checkable category of a recording or upload failure.
type Kind string

const (
	// KindPermissionDenied means microphone access was refused.
	KindPermissionDenied Kind = "PermissionDenied"
	// KindNoAudioCaptured means stop was called before any fragment arrived.
	KindNoAudioCaptured Kind = "NoAudioCaptured"
	// KindUnsupportedFormat means the asset failed the local MIME gate.
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	// KindNetworkFailure means the upload failed at the transport level.
	KindNetworkFailure Kind = "NetworkFailure"
	// KindAuthFailure means credentials were missing, expired or rejected.
	KindAuthFailure Kind = "AuthFailure"
	// KindServerTranscriptionFailure means the backend accepted the upload but could not transcribe it.
	KindServerTranscriptionFailure Kind = "ServerTranscriptionFailure"
	// KindTimeout means the upload exceeded its deadline.
	KindTimeout Kind = "Timeout"
	// KindMalformedResponse means the response body did not match the expected shape.
	KindMalformedResponse Kind = "MalformedResponse"
	// KindPayloadTooLarge means the asset exceeded the configured upload limit.
	KindPayloadTooLarge Kind = "PayloadTooLarge"
	// KindDeviceBusy means another session holds the capture device.
	KindDeviceBusy Kind = "DeviceBusy"
	// KindDeviceFailure means the capture device could not be opened.
	KindDeviceFailure Kind = "DeviceFailure"
)

// Retryable reports whether the user can reasonably try the same action again
// after a reset. Auth failures need re-authentication instead.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkFailure, KindTimeout, KindServerTranscriptionFailure, KindDeviceBusy, KindNoAudioCaptured:
		return true
	}
	return false
}

// TranscriptionError is a classified failure returned by uploaders and capture
// adapters. It is a value: callers inspect Kind, never the message text.
type TranscriptionError struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

// NewError creates a TranscriptionError without an underlying cause.
func NewError(kind Kind, message string) *TranscriptionError {
	return &TranscriptionError{Kind: kind, Message: message}
}

// Wrap creates a TranscriptionError around cause.
func Wrap(kind Kind, message string, cause error) *TranscriptionError {
	return &TranscriptionError{Kind: kind, Message: message, Err: cause}
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// Is matches another *TranscriptionError with the same kind, so
// errors.Is(err, NewError(KindTimeout, "")) works as a kind check.
func (e *TranscriptionError) Is(target error) bool {
	var t *TranscriptionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf classifies err. Unclassified context deadlines map to KindTimeout and
// anything else unknown to KindNetworkFailure. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *TranscriptionError
	if errors.As(err, &te) {
		return te.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrEmptyAsset), errors.Is(err, ErrNoAudioCaptured):
		return KindNoAudioCaptured
	case errors.Is(err, ErrDeviceBusy):
		return KindDeviceBusy
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrMissingToken):
		return KindAuthFailure
	}
	return KindNetworkFailure
}

// MessageOf returns the user-facing message carried by err.
func MessageOf(err error) string {
	var te *TranscriptionError
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
