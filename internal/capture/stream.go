package capture

import (
	"context"
	"sync"

	"go.uber.org/zap"

	apperrors "solace-voice/internal/errors"
)

// Action is a control instruction sent to a remote capture client.
type Action string

const (
	ActionRequestPermission Action = "request_permission"
	ActionStart             Action = "start"
	ActionPause             Action = "pause"
	ActionResume            Action = "resume"
	ActionStop              Action = "stop"
)

// Command is the control message a StreamDevice sends to its client.
type Command struct {
	Type     string `json:"type"`
	Action   Action `json:"action"`
	MimeType string `json:"mimeType,omitempty"`
}

// CommandSender delivers a command to the connected client.
type CommandSender func(Command) error

type permissionReply struct {
	granted bool
	err     error
}

// StreamDevice is a capture device whose microphone lives in a remote client,
// typically a browser MediaRecorder connected over a websocket. The transport
// attaches a sender and feeds fragments and permission answers back in.
type StreamDevice struct {
	name   string
	format Format
	logger *zap.Logger

	mu         sync.Mutex
	send       CommandSender
	attachGen  int
	permission chan permissionReply
	onData     DataFunc
	onLost     LostFunc
	openGen    int
	paused     bool
}

var _ Device = (*StreamDevice)(nil)

// NewStreamDevice creates a detached device.
func NewStreamDevice(name string, format Format, logger *zap.Logger) *StreamDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamDevice{name: name, format: format, logger: logger}
}

func (d *StreamDevice) Name() string {
	return d.name
}

func (d *StreamDevice) Preset() Format {
	return d.format
}

// Attach connects a client. A later Attach replaces the earlier one; the
// returned detach func only detaches its own client. Detaching fails a pending
// permission request and reports an open capture as lost.
func (d *StreamDevice) Attach(send CommandSender) (detach func()) {
	d.mu.Lock()
	d.attachGen++
	gen := d.attachGen
	d.send = send
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		if d.attachGen != gen {
			d.mu.Unlock()
			return
		}
		d.send = nil
		pending := d.permission
		d.permission = nil
		lost := d.loseLocked()
		d.mu.Unlock()

		if pending != nil {
			pending <- permissionReply{err: apperrors.ErrDeviceDetached}
		}
		if lost != nil {
			lost(apperrors.ErrDeviceDetached)
		}
	}
}

// Lose ends the open capture because the client can no longer record, for
// example when the browser reports the microphone was unplugged.
func (d *StreamDevice) Lose(err error) {
	d.mu.Lock()
	lost := d.loseLocked()
	d.mu.Unlock()

	if lost != nil {
		lost(err)
	}
}

// loseLocked closes the open capture and returns its loss callback, if any.
func (d *StreamDevice) loseLocked() LostFunc {
	if d.onData == nil {
		return nil
	}
	lost := d.onLost
	d.onData = nil
	d.onLost = nil
	d.paused = false
	return lost
}

// Attached reports whether a client is connected.
func (d *StreamDevice) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.send != nil
}

// Answer resolves a pending permission request. Unsolicited answers are ignored.
func (d *StreamDevice) Answer(granted bool) {
	d.mu.Lock()
	pending := d.permission
	d.permission = nil
	d.mu.Unlock()

	if pending != nil {
		pending <- permissionReply{granted: granted}
	}
}

// Deliver hands a fragment from the client to the open capture. It reports
// false when the fragment was dropped because capture is closed or paused.
func (d *StreamDevice) Deliver(fragment []byte) bool {
	d.mu.Lock()
	onData := d.onData
	paused := d.paused
	d.mu.Unlock()

	if onData == nil || paused || len(fragment) == 0 {
		return false
	}
	owned := make([]byte, len(fragment))
	copy(owned, fragment)
	onData(owned)
	return true
}

func (d *StreamDevice) sender() (CommandSender, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.send == nil {
		return nil, apperrors.ErrDeviceDetached
	}
	return d.send, nil
}

func (d *StreamDevice) command(action Action) error {
	send, err := d.sender()
	if err != nil {
		return err
	}
	return send(Command{Type: "command", Action: action, MimeType: d.format.MimeType})
}

func (d *StreamDevice) RequestPermission(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if d.send == nil {
		d.mu.Unlock()
		return false, apperrors.ErrDeviceDetached
	}
	reply := make(chan permissionReply, 1)
	d.permission = reply
	d.mu.Unlock()

	if err := d.command(ActionRequestPermission); err != nil {
		d.clearPermission(reply)
		return false, err
	}

	select {
	case r := <-reply:
		return r.granted, r.err
	case <-ctx.Done():
		d.clearPermission(reply)
		return false, ctx.Err()
	}
}

func (d *StreamDevice) clearPermission(reply chan permissionReply) {
	d.mu.Lock()
	if d.permission == reply {
		d.permission = nil
	}
	d.mu.Unlock()
}

func (d *StreamDevice) Open(_ context.Context, onData DataFunc, onLost LostFunc) (Handle, error) {
	d.mu.Lock()
	if d.send == nil {
		d.mu.Unlock()
		return nil, apperrors.ErrDeviceDetached
	}
	d.openGen++
	gen := d.openGen
	d.onData = onData
	d.onLost = onLost
	d.paused = false
	d.mu.Unlock()

	if err := d.command(ActionStart); err != nil {
		d.closeGen(gen)
		return nil, err
	}
	return &streamHandle{device: d, gen: gen}, nil
}

func (d *StreamDevice) setPaused(gen int, paused bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openGen != gen || d.onData == nil {
		return false
	}
	d.paused = paused
	return true
}

func (d *StreamDevice) closeGen(gen int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openGen != gen || d.onData == nil {
		return false
	}
	d.onData = nil
	d.onLost = nil
	d.paused = false
	return true
}

type streamHandle struct {
	device *StreamDevice
	gen    int
}

func (h *streamHandle) Pause() error {
	if !h.device.setPaused(h.gen, true) {
		return nil
	}
	return h.device.command(ActionPause)
}

func (h *streamHandle) Resume() error {
	if !h.device.setPaused(h.gen, false) {
		return nil
	}
	return h.device.command(ActionResume)
}

// Close stops delivery. A detached client has nothing left to stop.
func (h *streamHandle) Close() error {
	if !h.device.closeGen(h.gen) {
		return nil
	}
	if err := h.device.command(ActionStop); err != nil && err != apperrors.ErrDeviceDetached {
		h.device.logger.Warn("stream stop command failed", zap.String("device", h.device.name), zap.Error(err))
		return err
	}
	return nil
}
