// Package output renders recorder progress for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"solace-voice/internal/models"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) RequestingPermission(device string) {
	fmt.Fprintf(f.w, "🎙️  Requesting microphone access (%s)...\n", device)
}

func (f *Formatter) RecordingStarted() {
	fmt.Fprintf(f.w, "🔴 Recording. [p] pause  [r] resume  [enter] stop  [ctrl+c] discard\n")
}

// Elapsed redraws the timer line in place.
func (f *Formatter) Elapsed(seconds int, paused bool) {
	label := "recording"
	if paused {
		label = "paused   "
	}
	fmt.Fprintf(f.w, "\r  %s %s", FormatDuration(seconds), label)
}

func (f *Formatter) Paused() {
	fmt.Fprintf(f.w, "\n⏸️  Paused\n")
}

func (f *Formatter) Resumed() {
	fmt.Fprintf(f.w, "\n▶️  Resumed\n")
}

func (f *Formatter) RecordingStopped(seconds int, asset *models.AudioAsset) {
	if asset == nil {
		fmt.Fprintf(f.w, "\n⏹️  Recording stopped (%s)\n", FormatDuration(seconds))
		return
	}
	fmt.Fprintf(f.w, "\n⏹️  Recording stopped (%s, %s, %s)\n", FormatDuration(seconds), FormatBytes(asset.Size), asset.MimeType)
}

func (f *Formatter) AssetSaved(path string) {
	fmt.Fprintf(f.w, "💾 Saved: %s\n", path)
}

func (f *Formatter) Uploading() {
	fmt.Fprintf(f.w, "📤 Uploading for transcription...\n")
}

// Transcription prints the transcript and the pretty-printed case note.
func (f *Formatter) Transcription(result *models.TranscriptionResult) {
	fmt.Fprintf(f.w, "✅ Transcription complete\n\n%s\n", result.Transcription)
	if len(result.CaseNote) == 0 {
		return
	}
	var note interface{}
	if err := json.Unmarshal(result.CaseNote, &note); err != nil {
		return
	}
	pretty, err := json.MarshalIndent(note, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintf(f.w, "\n📋 Case note:\n%s\n", pretty)
}

// Failed prints a session failure with a hint when retrying can help.
func (f *Formatter) Failed(sessionErr *models.SessionError) {
	if sessionErr == nil {
		f.Error("recording failed")
		return
	}
	fmt.Fprintf(f.w, "\n❌ %s: %s\n", sessionErr.Kind, sessionErr.Message)
	if sessionErr.Kind.Retryable() {
		fmt.Fprintf(f.w, "   Try again with 'voicenote record'.\n")
	}
}

func (f *Formatter) Discarded() {
	fmt.Fprintf(f.w, "\n🗑️  Recording discarded\n")
}

func (f *Formatter) Confirm(prompt string) {
	fmt.Fprintf(f.w, "%s [Y/n] ", prompt)
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

// FormatDuration renders whole seconds as m:ss. Minutes are not capped.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// FormatElapsed renders d as m:ss, truncating partial seconds.
func FormatElapsed(d time.Duration) string {
	return FormatDuration(int(d / time.Second))
}

func FormatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}
