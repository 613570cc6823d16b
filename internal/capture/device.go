// Package capture defines the microphone boundary the recorder drives and
// the platform adapters that satisfy it.
package capture

import (
	"bytes"
	"context"
)

// Format is a capture preset. Each device has exactly one; the recorder does
// not choose it.
type Format struct {
	MimeType   string
	Extension  string
	SampleRate int
	Channels   int
	// PCM marks raw s16le fragments that need a WAV container once captured.
	PCM bool
}

var (
	// FormatWAV is 16 kHz mono PCM, packaged as WAV on stop.
	FormatWAV = Format{MimeType: "audio/wav", Extension: "wav", SampleRate: 16000, Channels: 1, PCM: true}
	// FormatWebM is the browser MediaRecorder preset (Opus in WebM).
	FormatWebM = Format{MimeType: "audio/webm", Extension: "webm", SampleRate: 48000, Channels: 1}
	// FormatM4A is the mobile high-quality preset (AAC in MP4).
	FormatM4A = Format{MimeType: "audio/m4a", Extension: "m4a", SampleRate: 44100, Channels: 2}
)

// Package concatenates fragments in order into a single asset body.
func (f Format) Package(chunks [][]byte) []byte {
	body := bytes.Join(chunks, nil)
	if f.PCM {
		return EncodeWAV(body, f.SampleRate, f.Channels)
	}
	return body
}

// DataFunc receives one captured fragment. Fragments arrive in capture order
// from a single goroutine. The slice is owned by the receiver.
type DataFunc func(fragment []byte)

// LostFunc is told, at most once, that an open capture ended without Close:
// the client went away or the capture process died.
type LostFunc func(err error)

// Device is a microphone capture primitive.
type Device interface {
	// Name identifies the physical device for exclusive locking.
	Name() string
	// Preset returns the fixed capture format.
	Preset() Format
	// RequestPermission blocks until the user answers the permission prompt.
	// A non-nil error means the device itself failed, not a denial.
	RequestPermission(ctx context.Context) (bool, error)
	// Open starts capture and delivers fragments to onData until the handle
	// is closed. onLost may be nil.
	Open(ctx context.Context, onData DataFunc, onLost LostFunc) (Handle, error)
}

// Handle controls an open capture. Close must be safe to call once after
// Pause/Resume in any order and must not be called while holding a lock that
// onData needs.
type Handle interface {
	Pause() error
	Resume() error
	Close() error
}
