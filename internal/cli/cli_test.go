package cli

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"solace-voice/internal/capture"
	"solace-voice/internal/capture/capturetest"
	"solace-voice/internal/config"
	"solace-voice/internal/transcription"
)

// syncBuffer lets the test read output while the command is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testDeps(device capture.Device, in io.Reader, out io.Writer) *Dependencies {
	return &Dependencies{
		Config: &config.CLIConfig{MaxUploadBytes: config.DefaultMaxUploadBytes, UploadTimeout: time.Minute},
		Logger: zap.NewNop(),
		In:     in,
		Out:    out,
		NewDevice: func(*config.CLIConfig, *zap.Logger) capture.Device {
			return device
		},
		NewUploader: func(cfg *config.CLIConfig, mock bool, logger *zap.Logger) (transcription.Uploader, error) {
			m := transcription.NewMockUploader()
			m.SimulatedDelay = 0
			m.Transcription = "Client reported improved sleep."
			return m, nil
		},
	}
}

func execute(t *testing.T, deps *Dependencies, args ...string) <-chan error {
	t.Helper()
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)
	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(context.Background()) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("command did not finish")
		return nil
	}
}

func TestRecord_SubmitsAfterStop(t *testing.T) {
	device := capturetest.NewFakeDevice()
	inR, inW := io.Pipe()
	out := &syncBuffer{}
	saved := filepath.Join(t.TempDir(), "note.webm")

	done := execute(t, testDeps(device, inR, out), "record", "--client", "c-1042", "--save", saved)

	require.Eventually(t, device.IsOpen, 2*time.Second, 5*time.Millisecond)
	require.True(t, device.Emit([]byte("frame-1")))
	_, err := io.WriteString(inW, "p\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return bytes.Contains([]byte(out.String()), []byte("Paused")) }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, device.Emit([]byte("dropped-while-paused")))

	_, err = io.WriteString(inW, "r\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return device.Emit([]byte("frame-2")) }, 2*time.Second, 5*time.Millisecond)

	_, err = io.WriteString(inW, "\ny\n")
	require.NoError(t, err)

	require.NoError(t, wait(t, done))
	text := out.String()
	assert.Contains(t, text, "Recording stopped")
	assert.Contains(t, text, "Client reported improved sleep.")
	assert.Contains(t, text, `"client_id": "c-1042"`)

	data, err := os.ReadFile(saved)
	require.NoError(t, err)
	assert.Equal(t, "frame-1frame-2", string(data))
}

func TestRecord_DeclineSubmit(t *testing.T) {
	device := capturetest.NewFakeDevice()
	inR, inW := io.Pipe()
	out := &syncBuffer{}

	done := execute(t, testDeps(device, inR, out), "record")

	require.Eventually(t, device.IsOpen, 2*time.Second, 5*time.Millisecond)
	device.Emit([]byte("frame"))
	_, err := io.WriteString(inW, "\nn\n")
	require.NoError(t, err)

	require.NoError(t, wait(t, done))
	assert.Contains(t, out.String(), "discarded")
	assert.NotContains(t, out.String(), "Uploading")
}

func TestRecord_PermissionDenied(t *testing.T) {
	device := capturetest.NewFakeDevice()
	device.Grant = false
	out := &syncBuffer{}

	err := wait(t, execute(t, testDeps(device, bytes.NewReader(nil), out), "record"))

	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out.String(), "PermissionDenied")
}

func TestRecord_StopWithoutAudio(t *testing.T) {
	device := capturetest.NewFakeDevice()
	inR, inW := io.Pipe()
	out := &syncBuffer{}

	done := execute(t, testDeps(device, inR, out), "record", "--yes")

	require.Eventually(t, device.IsOpen, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, inW.Close())

	err := wait(t, done)
	assert.ErrorIs(t, err, ErrReported)
	assert.Contains(t, out.String(), "NoAudioCaptured")
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	m4a := filepath.Join(dir, "visit.m4a")
	require.NoError(t, os.WriteFile(m4a, []byte("m4a-bytes"), 0o600))
	unknown := filepath.Join(dir, "visit.xyz")
	require.NoError(t, os.WriteFile(unknown, []byte("bytes"), 0o600))

	t.Run("transcribes the file", func(t *testing.T) {
		out := &syncBuffer{}
		err := wait(t, execute(t, testDeps(nil, nil, out), "upload", m4a, "--client", "c-7"))

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Client reported improved sleep.")
		assert.Contains(t, out.String(), `"audio_file": "visit.m4a"`)
	})

	t.Run("unknown extension needs --mime", func(t *testing.T) {
		err := wait(t, execute(t, testDeps(nil, nil, &syncBuffer{}), "upload", unknown))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "--mime")
	})

	t.Run("unsupported mime is rejected before upload", func(t *testing.T) {
		out := &syncBuffer{}
		err := wait(t, execute(t, testDeps(nil, nil, out), "upload", unknown, "--mime", "video/mp4"))

		assert.ErrorIs(t, err, ErrReported)
		assert.Contains(t, out.String(), "UnsupportedFormat")
	})

	t.Run("voice sessions need the HTTP uploader", func(t *testing.T) {
		err := wait(t, execute(t, testDeps(nil, nil, &syncBuffer{}), "upload", m4a, "--voice-session", "vs-1"))

		require.Error(t, err)
		assert.Contains(t, err.Error(), "voice sessions")
	})
}

func TestDoctor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer cli-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	out := &syncBuffer{}
	deps := testDeps(capturetest.NewFakeDevice(), nil, out)
	deps.Config.APIBaseURL = server.URL
	deps.Config.Token = "cli-token"
	deps.NewUploader = DefaultUploader

	require.NoError(t, wait(t, execute(t, deps, "doctor")))

	text := out.String()
	assert.Contains(t, text, "Access token: configured")
	assert.Contains(t, text, "healthy")
	assert.Contains(t, text, "Ready to record")
}

func TestDoctor_MissingSettings(t *testing.T) {
	out := &syncBuffer{}
	deps := testDeps(capturetest.NewFakeDevice(), nil, out)
	deps.NewUploader = DefaultUploader

	require.NoError(t, wait(t, execute(t, deps, "doctor")))

	text := out.String()
	assert.Contains(t, text, "VOICENOTE_TOKEN")
	assert.Contains(t, text, "api_base_url is not set")
	assert.Contains(t, text, "Some prerequisites are missing")
}
