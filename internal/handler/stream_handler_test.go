package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
	"solace-voice/internal/service"
	"solace-voice/internal/service/mocks"
	transcriptionmocks "solace-voice/internal/transcription/mocks"
	"solace-voice/test/testutil"
)

// serverFrame covers both frame shapes the server pushes.
type serverFrame struct {
	Type     string                  `json:"type"`
	Action   capture.Action          `json:"action"`
	Snapshot *models.SessionSnapshot `json:"snapshot"`
}

func startStreamServer(t *testing.T, svc service.RecorderServicer) string {
	t.Helper()
	h := NewStreamHandler(svc, nil)
	router := testutil.SetupRouter()
	router.GET("/stream", testutil.AuthAs(testUserID, testToken), h.Stream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(serverFrame) bool) serverFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame serverFrame
		require.NoError(t, conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

func isCommand(action capture.Action) func(serverFrame) bool {
	return func(f serverFrame) bool { return f.Type == "command" && f.Action == action }
}

func isSnapshot(state models.SessionState) func(serverFrame) bool {
	return func(f serverFrame) bool {
		return f.Type == "snapshot" && f.Snapshot != nil && f.Snapshot.State == state
	}
}

func newStreamService(t *testing.T) *service.SessionService {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := service.NewSessionService(transcriptionmocks.NewMockUploader(ctrl), service.SessionOptions{
		Clock:             clockwork.NewFakeClock(),
		PermissionTimeout: 5 * time.Second,
	})
	t.Cleanup(func() { svc.Close(context.Background()) })
	return svc
}

func TestStreamHandler_RecordsFromBrowser(t *testing.T) {
	svc := newStreamService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, testUserID, "c-1042")
	require.NoError(t, err)

	conn := dial(t, startStreamServer(t, svc))
	readUntil(t, conn, isSnapshot(models.StateIdle))

	device, err := svc.Device(testUserID)
	require.NoError(t, err)
	require.Eventually(t, device.Attached, 2*time.Second, 10*time.Millisecond)

	started := make(chan models.SessionSnapshot, 1)
	go func() {
		snap, _ := svc.Start(ctx, testUserID)
		started <- snap
	}()

	readUntil(t, conn, isCommand(capture.ActionRequestPermission))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePermission, Granted: true}))
	readUntil(t, conn, isCommand(capture.ActionStart))

	select {
	case snap := <-started:
		assert.Equal(t, models.StateRecording, snap.State)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after permission was granted")
	}
	readUntil(t, conn, isSnapshot(models.StateRecording))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("opus-frame-1")))
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("opus-frame-2")))
	require.Eventually(t, func() bool {
		snap, err := svc.Current(ctx, testUserID)
		return err == nil && snap.ChunkCount == 2
	}, 2*time.Second, 10*time.Millisecond)

	snap, err := svc.Stop(ctx, testUserID)
	require.NoError(t, err)
	require.Equal(t, models.StateStopped, snap.State)
	require.NotNil(t, snap.Asset)
	assert.Equal(t, int64(len("opus-frame-1opus-frame-2")), snap.Asset.Size)
	assert.Equal(t, capture.FormatWebM.MimeType, snap.Asset.MimeType)

	readUntil(t, conn, isCommand(capture.ActionStop))
	stopped := readUntil(t, conn, isSnapshot(models.StateStopped))
	assert.Equal(t, 2, stopped.Snapshot.ChunkCount)
}

func TestStreamHandler_PermissionDenied(t *testing.T) {
	svc := newStreamService(t)
	ctx := context.Background()
	_, err := svc.Open(ctx, testUserID, "")
	require.NoError(t, err)

	conn := dial(t, startStreamServer(t, svc))
	readUntil(t, conn, isSnapshot(models.StateIdle))

	started := make(chan models.SessionSnapshot, 1)
	go func() {
		snap, _ := svc.Start(ctx, testUserID)
		started <- snap
	}()

	readUntil(t, conn, isCommand(capture.ActionRequestPermission))
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePermission, Granted: false}))

	select {
	case snap := <-started:
		assert.Equal(t, models.StateFailed, snap.State)
		require.NotNil(t, snap.Error)
		assert.Equal(t, apperrors.KindPermissionDenied, snap.Error.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("start did not return after permission was denied")
	}
	failed := readUntil(t, conn, isSnapshot(models.StateFailed))
	assert.Equal(t, apperrors.KindPermissionDenied, failed.Snapshot.Error.Kind)
}

func TestStreamHandler_LosingTheBrowserEndsCapture(t *testing.T) {
	tests := []struct {
		name string
		end  func(t *testing.T, conn *websocket.Conn)
	}{
		{
			name: "microphone lost",
			end: func(t *testing.T, conn *websocket.Conn) {
				payload, err := json.Marshal(ClientMessage{Type: MessageDeviceLost, Reason: "NotReadableError"})
				require.NoError(t, err)
				require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
			},
		},
		{
			name: "connection closed",
			end: func(t *testing.T, conn *websocket.Conn) {
				require.NoError(t, conn.Close())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newStreamService(t)
			ctx := context.Background()
			_, err := svc.Open(ctx, testUserID, "")
			require.NoError(t, err)
			device, err := svc.Device(testUserID)
			require.NoError(t, err)

			conn := dial(t, startStreamServer(t, svc))
			readUntil(t, conn, isSnapshot(models.StateIdle))
			require.Eventually(t, device.Attached, 2*time.Second, 10*time.Millisecond)

			started := make(chan models.SessionSnapshot, 1)
			go func() {
				snap, _ := svc.Start(ctx, testUserID)
				started <- snap
			}()
			readUntil(t, conn, isCommand(capture.ActionRequestPermission))
			require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessagePermission, Granted: true}))
			select {
			case snap := <-started:
				require.Equal(t, models.StateRecording, snap.State)
			case <-time.After(5 * time.Second):
				t.Fatal("start did not return after permission was granted")
			}
			require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("opus-frame-1")))
			require.Eventually(t, func() bool {
				snap, err := svc.Current(ctx, testUserID)
				return err == nil && snap.ChunkCount == 1
			}, 2*time.Second, 10*time.Millisecond)

			tt.end(t, conn)

			require.Eventually(t, func() bool {
				snap, err := svc.Current(ctx, testUserID)
				return err == nil && snap.State == models.StateStopped
			}, 2*time.Second, 10*time.Millisecond)
			snap, err := svc.Current(ctx, testUserID)
			require.NoError(t, err)
			require.NotNil(t, snap.Asset)
			assert.Equal(t, int64(len("opus-frame-1")), snap.Asset.Size)
			assert.Eventually(t, func() bool { return !device.Attached() }, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestStreamHandler_NoRecorder(t *testing.T) {
	svc := &mocks.MockRecorderService{
		DeviceFunc: func(userID string) (*capture.StreamDevice, error) {
			return nil, apperrors.ErrSessionNotFound
		},
	}
	h := NewStreamHandler(svc, nil)
	router := testutil.SetupRouter()
	router.GET("/stream", testutil.AuthAs(testUserID, testToken), h.Stream)

	w := testutil.MakeRequest(t, router, http.MethodGet, "/stream", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOffer_DropsOldestWhenFull(t *testing.T) {
	outbox := make(chan models.SessionSnapshot, 2)

	offer(outbox, models.SessionSnapshot{ElapsedSeconds: 1})
	offer(outbox, models.SessionSnapshot{ElapsedSeconds: 2})
	offer(outbox, models.SessionSnapshot{ElapsedSeconds: 3})

	assert.Equal(t, 2, (<-outbox).ElapsedSeconds)
	assert.Equal(t, 3, (<-outbox).ElapsedSeconds)
}
