package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/middleware"
	"solace-voice/internal/models"
	"solace-voice/internal/service"
	"solace-voice/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxFrameBytes  = 1 << 20
	snapshotBuffer = 16
)

// Browser-to-server control message types.
const (
	MessagePermission = "permission"
	MessageDeviceLost = "device_lost"
)

// ClientMessage is a JSON control frame sent by the browser. Audio arrives
// as binary frames.
type ClientMessage struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// SnapshotMessage is pushed to the browser on every session change.
type SnapshotMessage struct {
	Type     string                 `json:"type"`
	Snapshot models.SessionSnapshot `json:"snapshot"`
}

// StreamHandler bridges a browser MediaRecorder to the user's recorder.
type StreamHandler struct {
	service  service.RecorderServicer
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(service service.RecorderServicer, logger *zap.Logger) *StreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16384,
			WriteBufferSize: 16384,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Stream godoc
// @Summary      Attach the browser microphone
// @Description  Websocket. The browser sends audio fragments as binary frames and permission answers as JSON; the server sends recorder commands and session snapshots as JSON.
// @Tags         recorder
// @Param        access_token  query  string  false  "Access token (browsers cannot set headers on websocket upgrades)"
// @Success      101
// @Failure      401  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Security     BearerAuth
// @Router       /recorder/sessions/current/stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	userID := middleware.GetUserID(c)
	device, err := h.service.Device(userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("user_id", userID))
	peer := &wsPeer{conn: conn}

	detach := device.Attach(peer.sendCommand)
	defer detach()

	outbox := make(chan models.SessionSnapshot, snapshotBuffer)
	unsubscribe, err := h.service.Subscribe(userID, func(snap models.SessionSnapshot) {
		offer(outbox, snap)
	})
	if err != nil {
		log.Debug("recorder closed before stream attached", zap.Error(err))
		return
	}
	defer unsubscribe()

	if snap, err := h.service.Current(c.Request.Context(), userID); err == nil {
		offer(outbox, snap)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(peer, outbox, done, log)
	}()

	log.Info("browser attached")
	h.readLoop(conn, device, log)
	close(done)
	wg.Wait()
	log.Info("browser detached")
}

// offer queues snap without blocking, dropping the oldest queued snapshot
// when the browser falls behind.
func offer(outbox chan models.SessionSnapshot, snap models.SessionSnapshot) {
	for {
		select {
		case outbox <- snap:
			return
		default:
		}
		select {
		case <-outbox:
		default:
		}
	}
}

func (h *StreamHandler) readLoop(conn *websocket.Conn, device *capture.StreamDevice, log *zap.Logger) {
	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			device.Deliver(data)
		case websocket.TextMessage:
			var msg ClientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				log.Debug("ignoring malformed control message", zap.Error(err))
				continue
			}
			switch msg.Type {
			case MessagePermission:
				device.Answer(msg.Granted)
			case MessageDeviceLost:
				log.Warn("browser lost the microphone", zap.String("reason", msg.Reason))
				device.Lose(fmt.Errorf("%w: %s", apperrors.ErrDeviceLost, msg.Reason))
				return
			}
		}
	}
}

func (h *StreamHandler) writeLoop(peer *wsPeer, outbox <-chan models.SessionSnapshot, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case snap := <-outbox:
			if err := peer.writeJSON(SnapshotMessage{Type: "snapshot", Snapshot: snap}); err != nil {
				log.Debug("pushing snapshot failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := peer.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// wsPeer serializes writes; gorilla connections allow one concurrent writer.
type wsPeer struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsPeer) writeJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteJSON(v)
}

func (p *wsPeer) ping() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (p *wsPeer) sendCommand(cmd capture.Command) error {
	return p.writeJSON(cmd)
}
