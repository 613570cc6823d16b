// Package capturetest provides a scriptable capture.Device for tests.
package capturetest

import (
	"context"
	"sync"

	"solace-voice/internal/capture"
)

// FakeDevice answers permission from Grant (or from PermissionGate when set)
// and lets the test push fragments with Emit and end capture with Lose.
type FakeDevice struct {
	DeviceName string
	Format     capture.Format
	Grant      bool
	// PermissionErr makes RequestPermission fail as a device error.
	PermissionErr error
	// OpenErr makes Open fail.
	OpenErr error
	// PermissionGate, when non-nil, blocks RequestPermission until a value
	// arrives or ctx ends.
	PermissionGate chan bool

	mu          sync.Mutex
	onData      capture.DataFunc
	onLost      capture.LostFunc
	paused      bool
	opens       int
	closes      int
	pauses      int
	resumes     int
	permissions int
}

var _ capture.Device = (*FakeDevice)(nil)

// NewFakeDevice returns a granting device with the WebM preset.
func NewFakeDevice() *FakeDevice {
	return &FakeDevice{DeviceName: "fake-mic", Format: capture.FormatWebM, Grant: true}
}

func (f *FakeDevice) Name() string           { return f.DeviceName }
func (f *FakeDevice) Preset() capture.Format { return f.Format }

func (f *FakeDevice) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	f.permissions++
	gate := f.PermissionGate
	f.mu.Unlock()

	if f.PermissionErr != nil {
		return false, f.PermissionErr
	}
	if gate != nil {
		select {
		case granted := <-gate:
			return granted, nil
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.Grant, nil
}

func (f *FakeDevice) Open(_ context.Context, onData capture.DataFunc, onLost capture.LostFunc) (capture.Handle, error) {
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	f.onData = onData
	f.onLost = onLost
	f.paused = false
	return &fakeHandle{f: f}, nil
}

// Lose ends the open capture as a vanished microphone would. It reports
// whether a capture was open.
func (f *FakeDevice) Lose(err error) bool {
	f.mu.Lock()
	onLost := f.onLost
	open := f.onData != nil
	f.onData = nil
	f.onLost = nil
	f.mu.Unlock()
	if !open {
		return false
	}
	if onLost != nil {
		onLost(err)
	}
	return true
}

// Emit delivers fragment as the capture callback would. It reports whether an
// open, unpaused capture received it.
func (f *FakeDevice) Emit(fragment []byte) bool {
	f.mu.Lock()
	onData := f.onData
	paused := f.paused
	f.mu.Unlock()
	if onData == nil || paused {
		return false
	}
	onData(fragment)
	return true
}

// IsOpen reports whether a capture is currently open.
func (f *FakeDevice) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onData != nil
}

// Counts returns how many times each device method ran.
func (f *FakeDevice) Counts() (permissions, opens, pauses, resumes, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.permissions, f.opens, f.pauses, f.resumes, f.closes
}

type fakeHandle struct {
	f      *FakeDevice
	closed bool
}

func (h *fakeHandle) Pause() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	h.f.pauses++
	h.f.paused = true
	return nil
}

func (h *fakeHandle) Resume() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	h.f.resumes++
	h.f.paused = false
	return nil
}

func (h *fakeHandle) Close() error {
	h.f.mu.Lock()
	defer h.f.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.f.closes++
	h.f.onData = nil
	h.f.onLost = nil
	return nil
}
