//go:build api

package testserver

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"solace-voice/internal/transcription"
)

// ReceivedUpload is what the fake case-notes API saw for one upload.
type ReceivedUpload struct {
	Authorization string
	ClientID      string
	MimeType      string
	Filename      string
	Data          []byte
}

// Backend fakes the case-notes transcription API.
type Backend struct {
	*httptest.Server

	mu       sync.Mutex
	status   int
	body     string
	received []ReceivedUpload
}

// DefaultTranscriptionBody is returned for uploads unless Respond overrides it.
const DefaultTranscriptionBody = `{"transcription":"client reported improved sleep","case_note":{"id":31,"content":"Client reported improved sleep."}}`

// NewBackend starts a backend that accepts every upload.
func NewBackend() *Backend {
	b := &Backend{status: http.StatusOK, body: DefaultTranscriptionBody}
	mux := http.NewServeMux()
	mux.HandleFunc(transcription.DefaultHealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok"}`)
	})
	mux.HandleFunc(transcription.DefaultTranscribePath, b.transcribe)
	b.Server = httptest.NewServer(mux)
	return b
}

func (b *Backend) transcribe(w http.ResponseWriter, r *http.Request) {
	upload := ReceivedUpload{Authorization: r.Header.Get("Authorization")}
	if err := r.ParseMultipartForm(32 << 20); err == nil {
		upload.ClientID = r.FormValue("client_id")
		upload.MimeType = r.FormValue("mimeType")
		upload.Filename = r.FormValue("filename")
		if file, _, err := r.FormFile("audio"); err == nil {
			upload.Data, _ = io.ReadAll(file)
			file.Close()
		}
	}

	b.mu.Lock()
	b.received = append(b.received, upload)
	status, body := b.status, b.body
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

// Respond makes later uploads answer with status and body.
func (b *Backend) Respond(status int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.body = status, body
}

// Received returns every upload seen since the last Reset.
func (b *Backend) Received() []ReceivedUpload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ReceivedUpload(nil), b.received...)
}

// Reset forgets received uploads and restores the default answer.
func (b *Backend) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status, b.body = http.StatusOK, DefaultTranscriptionBody
	b.received = nil
}
