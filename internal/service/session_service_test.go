package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
	servicemocks "solace-voice/internal/service/mocks"
	"solace-voice/internal/storage"
	storagemocks "solace-voice/internal/storage/mocks"
	transcriptionmocks "solace-voice/internal/transcription/mocks"
	"solace-voice/pkg/auth"
)

var openedAt = time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC)

type journalRecorder struct {
	mu      sync.Mutex
	entries []*models.SessionLog
}

func (j *journalRecorder) mock() *servicemocks.MockJournal {
	return &servicemocks.MockJournal{
		SubmitFunc: func(entry *models.SessionLog) error {
			j.mu.Lock()
			defer j.mu.Unlock()
			j.entries = append(j.entries, entry)
			return nil
		},
	}
}

func (j *journalRecorder) all() []*models.SessionLog {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]*models.SessionLog(nil), j.entries...)
}

type fixture struct {
	svc      *SessionService
	clock    *clockwork.FakeClock
	uploader *transcriptionmocks.MockUploader
	storage  *storagemocks.MockStorage
	journal  *journalRecorder
}

func newFixture(t *testing.T, withStorage bool) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		clock:    clockwork.NewFakeClockAt(openedAt),
		uploader: transcriptionmocks.NewMockUploader(ctrl),
		journal:  &journalRecorder{},
	}
	opts := SessionOptions{
		Clock:             f.clock,
		Journal:           f.journal.mock(),
		PermissionTimeout: time.Second,
	}
	if withStorage {
		f.storage = storagemocks.NewMockStorage(ctrl)
		opts.Storage = f.storage
	}
	f.svc = NewSessionService(f.uploader, opts)
	t.Cleanup(func() { f.svc.Close(context.Background()) })
	return f
}

// attachBrowser connects a fake browser that answers permission prompts.
func attachBrowser(t *testing.T, svc *SessionService, userID string, grant bool) *capture.StreamDevice {
	t.Helper()
	device, err := svc.Device(userID)
	require.NoError(t, err)
	detach := device.Attach(func(cmd capture.Command) error {
		if cmd.Action == capture.ActionRequestPermission {
			go device.Answer(grant)
		}
		return nil
	})
	t.Cleanup(detach)
	return device
}

func (f *fixture) record(t *testing.T, userID, clientID string) *capture.StreamDevice {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.Open(ctx, userID, clientID)
	require.NoError(t, err)
	device := attachBrowser(t, f.svc, userID, true)

	snap, err := f.svc.Start(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, models.StateRecording, snap.State)
	return device
}

func TestSessionService_Open(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	t.Run("unknown user has no recorder", func(t *testing.T) {
		_, err := f.svc.Current(ctx, "nobody")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

		_, err = f.svc.Device("nobody")
		assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	})

	t.Run("opens an idle recorder", func(t *testing.T) {
		snap, err := f.svc.Open(ctx, "u1", "c-1042")

		require.NoError(t, err)
		assert.Equal(t, models.StateIdle, snap.State)
		assert.Equal(t, "c-1042", snap.TargetClientID)

		current, err := f.svc.Current(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, snap, current)
	})

	t.Run("refuses to replace an active session", func(t *testing.T) {
		f.record(t, "u2", "c-1")

		snap, err := f.svc.Open(ctx, "u2", "c-2")

		assert.ErrorIs(t, err, apperrors.ErrSessionActive)
		assert.Equal(t, models.StateRecording, snap.State)
	})

	t.Run("replaces a finished session", func(t *testing.T) {
		f.record(t, "u3", "c-1")
		snap, err := f.svc.Stop(ctx, "u3")
		require.NoError(t, err)
		require.Equal(t, models.StateFailed, snap.State, "nothing was captured")

		snap, err = f.svc.Open(ctx, "u3", "c-2")

		require.NoError(t, err)
		assert.Equal(t, models.StateIdle, snap.State)
		assert.Equal(t, "c-2", snap.TargetClientID)
	})
}

func TestSessionService_RecordAndSubmit(t *testing.T) {
	f := newFixture(t, true)
	ctx := auth.WithToken(context.Background(), "access-token")

	var (
		mu     sync.Mutex
		states []models.SessionState
	)
	_, err := f.svc.Open(ctx, "u1", "c-1042")
	require.NoError(t, err)
	cancel, err := f.svc.Subscribe("u1", func(s models.SessionSnapshot) {
		mu.Lock()
		defer mu.Unlock()
		if len(states) == 0 || states[len(states)-1] != s.State {
			states = append(states, s.State)
		}
	})
	require.NoError(t, err)
	defer cancel()

	device := attachBrowser(t, f.svc, "u1", true)
	snap, err := f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StateRecording, snap.State)

	assert.True(t, device.Deliver([]byte("webm-1")))
	assert.True(t, device.Deliver([]byte("webm-2")))

	var archivedKey string
	f.storage.EXPECT().
		PutObject(gomock.Any(), gomock.Any(), []byte("webm-1webm-2"), "audio/webm").
		DoAndReturn(func(_ context.Context, key string, _ []byte, _ string) error {
			archivedKey = key
			return nil
		})
	f.storage.EXPECT().
		GetPresignedURL(gomock.Any(), gomock.Any(), previewURLExpiry).
		Return("https://bucket/preview", nil)

	snap, err = f.svc.Stop(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, models.StateStopped, snap.State)
	require.NotNil(t, snap.Asset)
	assert.Equal(t, "voice_note_1718011800000.webm", snap.Asset.Filename)

	assert.Eventually(t, func() bool {
		current, err := f.svc.Current(ctx, "u1")
		return err == nil && current.PreviewURL == "https://bucket/preview"
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, storage.AssetKey("u1", snap.ID, snap.Asset.Filename), archivedKey)

	f.uploader.EXPECT().
		Upload(gomock.Any(), snap.Asset, "c-1042").
		DoAndReturn(func(ctx context.Context, _ *models.AudioAsset, _ string) (*models.TranscriptionResult, error) {
			token, ok := auth.TokenFromContext(ctx)
			assert.True(t, ok)
			assert.Equal(t, "access-token", token)
			return &models.TranscriptionResult{Transcription: "client arrived late", CaseNote: json.RawMessage(`{"summary":"late"}`)}, nil
		})

	snap, err = f.svc.Submit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateSucceeded, snap.State)
	assert.Equal(t, "client arrived late", snap.Result.Transcription)
	assert.Equal(t, "https://bucket/preview", snap.PreviewURL)

	mu.Lock()
	assert.Equal(t, []models.SessionState{
		models.StateRequesting, models.StateRecording, models.StateStopped, models.StateUploading, models.StateSucceeded,
	}, states[:5])
	mu.Unlock()

	entries := f.journal.all()
	require.Len(t, entries, 1)
	assert.Equal(t, snap.ID, entries[0].SessionID)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, models.StateSucceeded, entries[0].State)
	assert.Equal(t, int64(len("webm-1webm-2")), entries[0].AssetBytes)
	assert.False(t, entries[0].Discarded)

	f.storage.EXPECT().DeleteObject(gomock.Any(), archivedKey).Return(nil)
	require.NoError(t, f.svc.Discard(ctx, "u1"))
	assert.Len(t, f.journal.all(), 1, "finished sessions are not journaled again on discard")
}

func TestSessionService_Submit_SurvivesRequestCancel(t *testing.T) {
	f := newFixture(t, false)
	device := f.record(t, "u1", "")
	device.Deliver([]byte("webm"))
	_, err := f.svc.Stop(context.Background(), "u1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.uploader.EXPECT().
		Upload(gomock.Any(), gomock.Any(), "").
		DoAndReturn(func(ctx context.Context, _ *models.AudioAsset, _ string) (*models.TranscriptionResult, error) {
			assert.NoError(t, ctx.Err())
			return nil, apperrors.NewError(apperrors.KindServerTranscriptionFailure, "HTTP 500: boom")
		})

	snap, err := f.svc.Submit(ctx, "u1")

	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, snap.State)
	assert.Equal(t, apperrors.KindServerTranscriptionFailure, snap.Error.Kind)

	entries := f.journal.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "ServerTranscriptionFailure", entries[0].ErrorKind)
}

func TestSessionService_StartFailures(t *testing.T) {
	t.Run("no browser attached", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()
		_, err := f.svc.Open(ctx, "u1", "")
		require.NoError(t, err)

		snap, err := f.svc.Start(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, snap.State)
		assert.Equal(t, apperrors.KindDeviceFailure, snap.Error.Kind)
		require.Len(t, f.journal.all(), 1)
	})

	t.Run("permission denied", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()
		_, err := f.svc.Open(ctx, "u1", "")
		require.NoError(t, err)
		attachBrowser(t, f.svc, "u1", false)

		snap, err := f.svc.Start(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, snap.State)
		assert.Equal(t, apperrors.KindPermissionDenied, snap.Error.Kind)
	})

	t.Run("browser never answers", func(t *testing.T) {
		f := newFixture(t, false)
		ctx := context.Background()
		_, err := f.svc.Open(ctx, "u1", "")
		require.NoError(t, err)
		device, err := f.svc.Device("u1")
		require.NoError(t, err)
		defer device.Attach(func(capture.Command) error { return nil })()

		snap, err := f.svc.Start(ctx, "u1")

		require.NoError(t, err)
		assert.Equal(t, models.StateFailed, snap.State)
		assert.Equal(t, apperrors.KindDeviceFailure, snap.Error.Kind)
	})
}

func TestSessionService_PauseResume(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	device := f.record(t, "u1", "")

	snap, err := f.svc.Pause(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StatePaused, snap.State)
	assert.False(t, device.Deliver([]byte("dropped")))

	snap, err = f.svc.Resume(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateRecording, snap.State)
	assert.True(t, device.Deliver([]byte("kept")))

	snap, err = f.svc.Current(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ChunkCount)
}

func TestSessionService_Reset(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	device := f.record(t, "u1", "")
	device.Deliver([]byte("webm"))

	f.storage.EXPECT().PutObject(gomock.Any(), gomock.Any(), gomock.Any(), "audio/webm").Return(nil)
	f.storage.EXPECT().GetPresignedURL(gomock.Any(), gomock.Any(), gomock.Any()).Return("https://bucket/preview", nil)
	stopped, err := f.svc.Stop(ctx, "u1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		current, _ := f.svc.Current(ctx, "u1")
		return current.PreviewURL != ""
	}, time.Second, 10*time.Millisecond)

	f.storage.EXPECT().DeleteObject(gomock.Any(), storage.AssetKey("u1", stopped.ID, stopped.Asset.Filename)).Return(nil)

	snap, err := f.svc.Reset(ctx, "u1")

	require.NoError(t, err)
	assert.Equal(t, models.StateIdle, snap.State)
	assert.Empty(t, snap.ID)
	assert.Empty(t, f.journal.all(), "reset of an unfinished session is not journaled")

	again, err := f.svc.Reset(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestSessionService_Discard(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	device := f.record(t, "u1", "c-9")
	device.Deliver([]byte("webm"))
	f.clock.Advance(3 * time.Second)

	require.NoError(t, f.svc.Discard(ctx, "u1"))

	_, err := f.svc.Current(ctx, "u1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.ErrorIs(t, f.svc.Discard(ctx, "u1"), apperrors.ErrSessionNotFound)

	entries := f.journal.all()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Discarded)
	assert.Equal(t, models.StateRecording, entries[0].State)
	assert.Equal(t, "c-9", entries[0].ClientID)

	t.Run("device is released for the next recorder", func(t *testing.T) {
		f.record(t, "u1", "")
	})
}

func TestSessionService_Subscribe(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.svc.Subscribe("u1", func(models.SessionSnapshot) {})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	_, err = f.svc.Open(ctx, "u1", "")
	require.NoError(t, err)

	var calls int
	cancel, err := f.svc.Subscribe("u1", func(models.SessionSnapshot) { calls++ })
	require.NoError(t, err)
	attachBrowser(t, f.svc, "u1", true)

	_, err = f.svc.Start(ctx, "u1")
	require.NoError(t, err)
	afterStart := calls
	assert.Equal(t, 2, afterStart)

	cancel()
	_, err = f.svc.Pause(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, afterStart, calls)
}

func TestSessionService_SubmitFile(t *testing.T) {
	t.Run("infers the type from the filename", func(t *testing.T) {
		f := newFixture(t, false)
		want := &models.TranscriptionResult{Transcription: "hello", CaseNote: json.RawMessage(`{}`)}
		f.uploader.EXPECT().
			Upload(gomock.Any(), gomock.Any(), "c-1").
			DoAndReturn(func(_ context.Context, asset *models.AudioAsset, _ string) (*models.TranscriptionResult, error) {
				assert.Equal(t, "audio/m4a", asset.MimeType)
				assert.Equal(t, "visit.m4a", asset.Filename)
				return want, nil
			})

		got, err := f.svc.SubmitFile(context.Background(), "u1", &models.FileUpload{
			Data:     []byte("m4a"),
			Filename: "visit.m4a",
			MimeType: "application/octet-stream",
			ClientID: "c-1",
		})

		require.NoError(t, err)
		assert.Equal(t, want, got)
		entries := f.journal.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.StateSucceeded, entries[0].State)
		assert.Equal(t, "audio/m4a", entries[0].MimeType)
	})

	t.Run("returns and journals upload failures", func(t *testing.T) {
		f := newFixture(t, false)
		f.uploader.EXPECT().
			Upload(gomock.Any(), gomock.Any(), "").
			Return(nil, apperrors.NewError(apperrors.KindUnsupportedFormat, `audio format "video/mp4" is not supported`))

		_, err := f.svc.SubmitFile(context.Background(), "u1", &models.FileUpload{
			Data:     []byte("mp4"),
			Filename: "clip.mp4",
			MimeType: "video/mp4",
		})

		assert.Equal(t, apperrors.KindUnsupportedFormat, apperrors.KindOf(err))
		entries := f.journal.all()
		require.Len(t, entries, 1)
		assert.Equal(t, models.StateFailed, entries[0].State)
		assert.Equal(t, "UnsupportedFormat", entries[0].ErrorKind)
	})
}

type fakeHistory struct {
	entries []models.SessionLog
	page    int
	limit   int
}

func (h *fakeHistory) Insert(context.Context, *models.SessionLog) error { return nil }

func (h *fakeHistory) FindBySessionID(context.Context, string) (*models.SessionLog, error) {
	return nil, apperrors.ErrSessionNotFound
}

func (h *fakeHistory) FindByUserID(_ context.Context, _ string, page, limit int) ([]models.SessionLog, int, error) {
	h.page, h.limit = page, limit
	return h.entries, 21, nil
}

func TestSessionService_History(t *testing.T) {
	t.Run("disabled without a repository", func(t *testing.T) {
		f := newFixture(t, false)

		_, err := f.svc.History(context.Background(), "u1", 1, 10)

		assert.ErrorIs(t, err, apperrors.ErrJournalDisabled)
	})

	tests := []struct {
		name           string
		page, limit    int
		wantPage       int
		wantLimit      int
		wantTotalPages int
	}{
		{"defaults", 0, 0, 1, 10, 3},
		{"custom page", 2, 5, 2, 5, 5},
		{"limit capped", 1, 500, 1, 10, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeHistory{entries: []models.SessionLog{{SessionID: "s1"}}}
			svc := NewSessionService(nil, SessionOptions{History: repo})

			resp, err := svc.History(context.Background(), "u1", tt.page, tt.limit)

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, repo.page)
			assert.Equal(t, tt.wantLimit, repo.limit)
			assert.Equal(t, tt.wantTotalPages, resp.Pagination.TotalPages)
			assert.Equal(t, 21, resp.Pagination.TotalItems)
			assert.Len(t, resp.Items, 1)
		})
	}
}
