// Package models defines data structures for the application.
package models

import (
	"time"

	apperrors "solace-voice/internal/errors"
)

// SessionState represents where a recording session is in its lifecycle.
type SessionState string

const (
	// StateIdle indicates the recorder is open and nothing has been captured.
	StateIdle SessionState = "idle"
	// StateRequesting indicates the microphone permission prompt is pending.
	StateRequesting SessionState = "requesting"
	// StateRecording indicates audio is being captured and the timer runs.
	StateRecording SessionState = "recording"
	// StatePaused indicates capture and timer are suspended.
	StatePaused SessionState = "paused"
	// StateStopped indicates capture ended and the asset is ready for submission.
	StateStopped SessionState = "stopped"
	// StateUploading indicates the asset is being transcribed.
	StateUploading SessionState = "uploading"
	// StateSucceeded indicates transcription finished (terminal).
	StateSucceeded SessionState = "succeeded"
	// StateFailed indicates the session failed; only reset leaves it.
	StateFailed SessionState = "failed"
)

// IsTerminal reports whether only reset can move the session on.
func (s SessionState) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// IsCapturing reports whether the capture device is open.
func (s SessionState) IsCapturing() bool {
	return s == StateRecording || s == StatePaused
}

// AudioAsset is the finalized recording handed to the uploader.
type AudioAsset struct {
	Bytes    []byte `json:"-"`
	MimeType string `json:"mimeType" example:"audio/webm"`
	Filename string `json:"filename" example:"voice_note_1718000000000.webm"`
	Size     int64  `json:"size" example:"48213"`
}

// NewAudioAsset builds an asset and records its size.
func NewAudioAsset(data []byte, mimeType, filename string) *AudioAsset {
	return &AudioAsset{Bytes: data, MimeType: mimeType, Filename: filename, Size: int64(len(data))}
}

// SessionError is the failure carried by a session in StateFailed.
type SessionError struct {
	Kind    apperrors.Kind `json:"kind" example:"Timeout"`
	Message string         `json:"message" example:"transcription timed out"`
}

// RecordingSession is the unit of work for one voice note. It is owned by a
// single controller and never shared.
type RecordingSession struct {
	ID             string
	State          SessionState
	StartedAt      time.Time
	ElapsedSeconds int
	AudioChunks    [][]byte
	AudioAsset     *AudioAsset
	TargetClientID string
	Error          *SessionError
	Result         *TranscriptionResult
}

// CapturedBytes sums the size of all fragments collected so far.
func (s *RecordingSession) CapturedBytes() int64 {
	var n int64
	for _, c := range s.AudioChunks {
		n += int64(len(c))
	}
	return n
}

// Snapshot copies the session into a value safe to hand to other goroutines.
func (s *RecordingSession) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		ID:             s.ID,
		State:          s.State,
		ElapsedSeconds: s.ElapsedSeconds,
		ChunkCount:     len(s.AudioChunks),
		CapturedBytes:  s.CapturedBytes(),
		TargetClientID: s.TargetClientID,
		Asset:          s.AudioAsset,
		Result:         s.Result,
	}
	if !s.StartedAt.IsZero() {
		started := s.StartedAt
		snap.StartedAt = &started
	}
	if s.Error != nil {
		e := *s.Error
		snap.Error = &e
	}
	return snap
}

// SessionSnapshot is the read-only view of a RecordingSession delivered to
// listeners and returned by the recorder API.
type SessionSnapshot struct {
	ID             string               `json:"id" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	State          SessionState         `json:"state" example:"recording"`
	StartedAt      *time.Time           `json:"startedAt,omitempty" example:"2024-01-15T09:30:00Z"`
	ElapsedSeconds int                  `json:"elapsedSeconds" example:"42"`
	ChunkCount     int                  `json:"chunkCount" example:"12"`
	CapturedBytes  int64                `json:"capturedBytes" example:"48213"`
	TargetClientID string               `json:"targetClientId,omitempty" example:"c-1042"`
	Asset          *AudioAsset          `json:"asset,omitempty"`
	Error          *SessionError        `json:"error,omitempty"`
	Result         *TranscriptionResult `json:"result,omitempty"`
	PreviewURL     string               `json:"previewUrl,omitempty" example:"https://bucket.s3.amazonaws.com/voice-notes/...?X-Amz-Signature=..."`
}

// OpenSessionRequest is the request body for opening a recorder.
type OpenSessionRequest struct {
	ClientID string `json:"clientId" binding:"omitempty,clientid" example:"c-1042"`
}

// UploadFileRequest is the multipart form for uploading an existing recording.
type UploadFileRequest struct {
	ClientID string `form:"clientId" binding:"omitempty,clientid" example:"c-1042"`
	MimeType string `form:"mimeType" binding:"omitempty,audiomime" example:"audio/m4a"`
}
