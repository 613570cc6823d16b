//go:build api

package testserver

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"solace-voice/internal/capture"
	"solace-voice/internal/handler"
	"solace-voice/internal/middleware"
	"solace-voice/internal/models"
	"solace-voice/test/testutil"
)

// RecorderPath is the base of every recorder route.
const RecorderPath = "/api/v1/recorder"

// NewUser returns a fresh user id and an access token for it.
func (ts *TestServer) NewUser(t *testing.T) (userID, token string) {
	t.Helper()
	userID = uuid.NewString()
	token, err := ts.Tokens.GenerateToken(userID)
	require.NoError(t, err)
	return userID, token
}

// Do sends an authenticated JSON request to a recorder route.
func (ts *TestServer) Do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return testutil.MakeAuthRequest(t, ts.Router, method, RecorderPath+path, token, body)
}

// Intent posts a session intent and decodes the returned snapshot.
func (ts *TestServer) Intent(t *testing.T, token, intent string) models.SessionSnapshot {
	t.Helper()
	w := ts.Do(t, http.MethodPost, "/sessions/current/"+intent, token, nil)
	require.Equal(t, http.StatusOK, w.Code, "%s should return 200, got: %s", intent, w.Body.String())

	var snap models.SessionSnapshot
	testutil.ParseData(t, w, &snap)
	return snap
}

// OpenSession opens a recorder for clientID.
func (ts *TestServer) OpenSession(t *testing.T, token, clientID string) models.SessionSnapshot {
	t.Helper()
	w := ts.Do(t, http.MethodPost, "/sessions", token, models.OpenSessionRequest{ClientID: clientID})
	require.Equal(t, http.StatusCreated, w.Code, "open should return 201, got: %s", w.Body.String())

	var snap models.SessionSnapshot
	testutil.ParseData(t, w, &snap)
	return snap
}

// ServerFrame covers both frame shapes the stream pushes.
type ServerFrame struct {
	Type     string                  `json:"type"`
	Action   capture.Action          `json:"action"`
	MimeType string                  `json:"mimeType"`
	Snapshot *models.SessionSnapshot `json:"snapshot"`
}

// Browser plays the browser side of the capture stream.
type Browser struct {
	t    *testing.T
	conn *websocket.Conn
}

// AttachBrowser connects a browser to the user's open recorder. The token
// travels in the query string the way browsers send it.
func (ts *TestServer) AttachBrowser(t *testing.T, userID, token string) *Browser {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.HTTP.URL, "http") + RecorderPath + "/sessions/current/stream?" +
		url.Values{middleware.AccessTokenQueryParam: {token}}.Encode()

	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })

	b := &Browser{t: t, conn: conn}
	b.WaitFor(func(f ServerFrame) bool { return f.Type == "snapshot" })

	device, err := ts.Sessions.Device(userID)
	require.NoError(t, err)
	require.Eventually(t, device.Attached, 5*time.Second, 10*time.Millisecond)
	return b
}

// WaitFor reads frames until match returns true.
func (b *Browser) WaitFor(match func(ServerFrame) bool) ServerFrame {
	b.t.Helper()
	require.NoError(b.t, b.conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var frame ServerFrame
		require.NoError(b.t, b.conn.ReadJSON(&frame))
		if match(frame) {
			return frame
		}
	}
}

// WaitForCommand waits for the recorder to issue action.
func (b *Browser) WaitForCommand(action capture.Action) ServerFrame {
	b.t.Helper()
	return b.WaitFor(func(f ServerFrame) bool { return f.Type == "command" && f.Action == action })
}

// WaitForState waits for a snapshot in state.
func (b *Browser) WaitForState(state models.SessionState) models.SessionSnapshot {
	b.t.Helper()
	frame := b.WaitFor(func(f ServerFrame) bool {
		return f.Type == "snapshot" && f.Snapshot != nil && f.Snapshot.State == state
	})
	return *frame.Snapshot
}

// AnswerPermission replies to a permission prompt.
func (b *Browser) AnswerPermission(granted bool) {
	b.t.Helper()
	b.WaitForCommand(capture.ActionRequestPermission)
	require.NoError(b.t, b.conn.WriteJSON(handler.ClientMessage{Type: handler.MessagePermission, Granted: granted}))
}

// SendAudio streams one encoded fragment.
func (b *Browser) SendAudio(fragment []byte) {
	b.t.Helper()
	require.NoError(b.t, b.conn.WriteMessage(websocket.BinaryMessage, fragment))
}

// LoseDevice reports that the microphone went away.
func (b *Browser) LoseDevice(reason string) {
	b.t.Helper()
	require.NoError(b.t, b.conn.WriteJSON(handler.ClientMessage{Type: handler.MessageDeviceLost, Reason: reason}))
}

// StartRecording posts start and grants permission from the browser.
func (ts *TestServer) StartRecording(t *testing.T, token string, b *Browser) models.SessionSnapshot {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, RecorderPath+"/sessions/current/start", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	started := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		w := httptest.NewRecorder()
		ts.Router.ServeHTTP(w, req)
		started <- w
	}()

	b.AnswerPermission(true)

	var w *httptest.ResponseRecorder
	select {
	case w = <-started:
	case <-time.After(TestPermissionTimeout):
		t.Fatal("start did not return after permission was granted")
	}
	require.Equal(t, http.StatusOK, w.Code, "start should return 200, got: %s", w.Body.String())

	var snap models.SessionSnapshot
	testutil.ParseData(t, w, &snap)
	return snap
}
