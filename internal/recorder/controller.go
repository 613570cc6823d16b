// Package recorder drives the voice note capture lifecycle: permission,
// record/pause/resume/stop with a duration timer, packaging, and submission
// for transcription. It is written once and parameterized over capture.Device.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/metrics"
	"solace-voice/internal/models"
	"solace-voice/internal/transcription"
)

// Listener receives a snapshot after every state change and every timer tick.
// It runs while the controller is locked and must not call back into it.
type Listener func(models.SessionSnapshot)

// Options holds optional collaborators. Zero values are usable.
type Options struct {
	Clock clockwork.Clock
	// Lock enforces exclusive device ownership across controllers.
	Lock capture.Lock
	// MaxDuration stops recording automatically once reached. Zero disables it.
	MaxDuration time.Duration
	Logger      *zap.Logger
	OnChange    Listener
}

// Controller owns one RecordingSession at a time. Intents called in a state
// that does not accept them are ignored and return the unchanged snapshot.
type Controller struct {
	device      capture.Device
	uploader    transcription.Uploader
	clientID    string
	clock       clockwork.Clock
	lock        capture.Lock
	maxDuration time.Duration
	logger      *zap.Logger
	onChange    Listener

	mu      sync.Mutex
	session *models.RecordingSession
	handle  capture.Handle
	// lostDuringStart holds a device loss reported before Start finished.
	lostDuringStart error
	tickStop        chan struct{}
	tickGen         uint64
	// tickAnchor is when the current, not yet counted second began. carry is
	// the part of a second recorded before the last pause.
	tickAnchor   time.Time
	carry        time.Duration
	cancelStart  context.CancelFunc
	cancelUpload context.CancelFunc
}

// New creates a controller in StateIdle. clientID is the optional client
// record the resulting case note belongs to.
func New(device capture.Device, uploader transcription.Uploader, clientID string, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Controller{
		device:      device,
		uploader:    uploader,
		clientID:    clientID,
		clock:       opts.Clock,
		lock:        opts.Lock,
		maxDuration: opts.MaxDuration,
		logger:      opts.Logger,
		onChange:    opts.OnChange,
		session:     newIdleSession(clientID),
	}
}

func newIdleSession(clientID string) *models.RecordingSession {
	return &models.RecordingSession{State: models.StateIdle, TargetClientID: clientID}
}

// ClientID returns the target client the controller was opened for.
func (c *Controller) ClientID() string {
	return c.clientID
}

// Snapshot returns the current session state.
func (c *Controller) Snapshot() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

// Start requests microphone permission, opens the device and begins
// recording. It blocks until the session is Recording or Failed, or until a
// concurrent Reset abandons the attempt.
func (c *Controller) Start(ctx context.Context) models.SessionSnapshot {
	c.mu.Lock()
	if c.session.State != models.StateIdle {
		defer c.mu.Unlock()
		return c.session.Snapshot()
	}
	id := uuid.NewString()
	c.session.ID = id
	c.lostDuringStart = nil
	c.carry = 0
	startCtx, cancel := context.WithCancel(ctx)
	c.cancelStart = cancel
	c.transitionLocked(models.StateRequesting)
	c.mu.Unlock()
	defer cancel()

	if c.lock != nil {
		if err := c.lock.Acquire(startCtx, c.device.Name(), id); err != nil {
			if errors.Is(err, apperrors.ErrDeviceBusy) {
				return c.failStart(id, apperrors.KindDeviceBusy, "the microphone is already in use by another recording", false)
			}
			return c.failStart(id, apperrors.KindDeviceFailure, fmt.Sprintf("could not reserve the microphone: %v", err), false)
		}
	}

	granted, err := c.device.RequestPermission(startCtx)
	if err != nil {
		return c.failStart(id, apperrors.KindDeviceFailure, fmt.Sprintf("could not access the microphone: %v", err), true)
	}
	if !granted {
		return c.failStart(id, apperrors.KindPermissionDenied,
			"microphone access was denied; allow it in your settings, then reset and try again", true)
	}

	handle, err := c.device.Open(startCtx, c.appendFragment(id), c.deviceLost(id))
	if err != nil {
		return c.failStart(id, apperrors.KindDeviceFailure, fmt.Sprintf("could not start recording: %v", err), true)
	}
	metrics.ActiveCaptures.Inc()

	c.mu.Lock()
	if c.isStaleLocked(id, models.StateRequesting) {
		c.mu.Unlock()
		c.discardStale(id, "start")
		c.closeHandle(handle)
		c.releaseDevice(id)
		return c.Snapshot()
	}
	c.cancelStart = nil
	if lost := c.lostDuringStart; lost != nil {
		c.lostDuringStart = nil
		c.failLocked(apperrors.KindDeviceFailure, lostMessage(lost))
		c.mu.Unlock()
		c.closeHandle(handle)
		c.releaseDevice(id)
		return c.Snapshot()
	}
	c.handle = handle
	c.session.StartedAt = c.clock.Now()
	c.transitionLocked(models.StateRecording)
	c.startTickerLocked()
	defer c.mu.Unlock()
	return c.session.Snapshot()
}

func (c *Controller) failStart(id string, kind apperrors.Kind, message string, release bool) models.SessionSnapshot {
	c.mu.Lock()
	if c.isStaleLocked(id, models.StateRequesting) {
		c.mu.Unlock()
		c.discardStale(id, "start")
	} else {
		c.cancelStart = nil
		c.failLocked(kind, message)
		c.mu.Unlock()
	}
	if release {
		c.releaseDevice(id)
	}
	return c.Snapshot()
}

// appendFragment returns the device callback for session id. Each call is an
// atomic append; fragments for another session or outside recording are dropped.
func (c *Controller) appendFragment(id string) capture.DataFunc {
	return func(fragment []byte) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.session.ID != id {
			return
		}
		if c.session.State != models.StateRecording && c.session.State != models.StateRequesting {
			return
		}
		c.session.AudioChunks = append(c.session.AudioChunks, fragment)
		metrics.AudioFragments.Inc()
	}
}

// deviceLost returns the device's loss callback for session id. Audio captured
// before the loss is kept as a stopped recording; with none, the session fails.
func (c *Controller) deviceLost(id string) capture.LostFunc {
	return func(err error) {
		c.mu.Lock()
		if c.session.ID == id && c.session.State == models.StateRequesting {
			c.lostDuringStart = err
		}
		c.mu.Unlock()
		c.logger.Warn("capture device lost", zap.String("session_id", id), zap.Error(err))
		c.stop(id, err)
	}
}

func lostMessage(err error) string {
	return fmt.Sprintf("the microphone stopped before any audio was captured (%v); reset and try again", err)
}

// Pause suspends capture and the timer. The part of a second recorded since
// the last tick is carried over to Resume.
func (c *Controller) Pause() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State != models.StateRecording {
		return c.session.Snapshot()
	}
	c.settleLocked()
	c.stopTickerLocked()
	if err := c.handle.Pause(); err != nil {
		c.logger.Warn("pausing capture device failed", zap.String("session_id", c.session.ID), zap.Error(err))
	}
	c.transitionLocked(models.StatePaused)
	return c.session.Snapshot()
}

// Resume restarts capture and the timer without touching elapsed time or
// already captured fragments.
func (c *Controller) Resume() models.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.State != models.StatePaused {
		return c.session.Snapshot()
	}
	if err := c.handle.Resume(); err != nil {
		c.logger.Warn("resuming capture device failed", zap.String("session_id", c.session.ID), zap.Error(err))
	}
	c.transitionLocked(models.StateRecording)
	c.startTickerLocked()
	return c.session.Snapshot()
}

// Stop closes the device and packages the captured fragments into the asset.
func (c *Controller) Stop() models.SessionSnapshot {
	return c.stop("", nil)
}

// stop only acts on session expectID when it is set. lost is the device error
// when capture ended on its own.
func (c *Controller) stop(expectID string, lost error) models.SessionSnapshot {
	c.mu.Lock()
	if !c.session.State.IsCapturing() || (expectID != "" && c.session.ID != expectID) {
		defer c.mu.Unlock()
		return c.session.Snapshot()
	}
	if c.session.State == models.StateRecording {
		c.settleLocked()
	}
	c.stopTickerLocked()
	handle := c.handle
	c.handle = nil
	id := c.session.ID

	switch {
	case len(c.session.AudioChunks) == 0 && lost != nil:
		c.failLocked(apperrors.KindDeviceFailure, lostMessage(lost))
	case len(c.session.AudioChunks) == 0:
		c.failLocked(apperrors.KindNoAudioCaptured, "no audio was captured; check the microphone, then reset and try again")
	default:
		format := c.device.Preset()
		c.session.AudioAsset = models.NewAudioAsset(
			format.Package(c.session.AudioChunks),
			format.MimeType,
			assetFilename(c.clock.Now(), format.Extension),
		)
		c.transitionLocked(models.StateStopped)
	}
	snap := c.session.Snapshot()
	c.mu.Unlock()

	c.closeHandle(handle)
	c.releaseDevice(id)
	return snap
}

func assetFilename(now time.Time, ext string) string {
	return fmt.Sprintf("voice_note_%d.%s", now.UnixMilli(), ext)
}

// Submit uploads the asset and blocks until the upload resolves. A result that
// arrives after Reset is discarded.
func (c *Controller) Submit(ctx context.Context) models.SessionSnapshot {
	c.mu.Lock()
	if c.session.State != models.StateStopped {
		defer c.mu.Unlock()
		return c.session.Snapshot()
	}
	if c.session.AudioAsset == nil || len(c.session.AudioChunks) == 0 {
		defer c.mu.Unlock()
		c.failLocked(apperrors.KindNoAudioCaptured, "there is no recording to submit")
		return c.session.Snapshot()
	}
	id := c.session.ID
	asset := c.session.AudioAsset
	clientID := c.session.TargetClientID
	uploadCtx, cancel := context.WithCancel(ctx)
	c.cancelUpload = cancel
	c.transitionLocked(models.StateUploading)
	c.mu.Unlock()

	result, err := c.uploader.Upload(uploadCtx, asset, clientID)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isStaleLocked(id, models.StateUploading) {
		c.discardStaleLocked(id, "upload")
		return c.session.Snapshot()
	}
	c.cancelUpload = nil
	if err != nil {
		kind := apperrors.KindOf(err)
		c.failLocked(kind, apperrors.MessageOf(err))
		return c.session.Snapshot()
	}
	c.session.Result = result
	c.transitionLocked(models.StateSucceeded)
	return c.session.Snapshot()
}

// Reset cancels the timer, any pending start and any in-flight upload, closes
// the device and returns to a fresh Idle session. Calling it twice is the
// same as calling it once.
func (c *Controller) Reset() models.SessionSnapshot {
	c.mu.Lock()
	prev := c.session
	c.stopTickerLocked()
	if c.cancelStart != nil {
		c.cancelStart()
		c.cancelStart = nil
	}
	if c.cancelUpload != nil {
		c.cancelUpload()
		c.cancelUpload = nil
	}
	handle := c.handle
	c.handle = nil

	changed := prev.State != models.StateIdle || prev.ID != ""
	c.session = newIdleSession(c.clientID)
	c.carry = 0
	c.lostDuringStart = nil
	if changed {
		c.logger.Debug("session reset", zap.String("session_id", prev.ID), zap.String("from", string(prev.State)))
		metrics.SessionTransitions.WithLabelValues(string(models.StateIdle)).Inc()
		c.notifyLocked()
	}
	snap := c.session.Snapshot()
	c.mu.Unlock()

	c.closeHandle(handle)
	if prev.ID != "" {
		c.releaseDevice(prev.ID)
	}
	return snap
}

func (c *Controller) isStaleLocked(id string, expected models.SessionState) bool {
	return c.session.ID != id || c.session.State != expected
}

func (c *Controller) discardStale(id, what string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardStaleLocked(id, what)
}

func (c *Controller) discardStaleLocked(id, what string) {
	metrics.StaleCompletions.Inc()
	c.logger.Debug("discarding stale completion",
		zap.String("what", what),
		zap.String("stale_session_id", id),
		zap.String("session_id", c.session.ID),
	)
}

func (c *Controller) transitionLocked(to models.SessionState) {
	from := c.session.State
	c.session.State = to
	metrics.SessionTransitions.WithLabelValues(string(to)).Inc()
	c.logger.Debug("session transition",
		zap.String("session_id", c.session.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	c.notifyLocked()
}

func (c *Controller) failLocked(kind apperrors.Kind, message string) {
	c.session.Error = &models.SessionError{Kind: kind, Message: message}
	metrics.SessionFailures.WithLabelValues(string(kind)).Inc()
	c.logger.Warn("recording session failed",
		zap.String("session_id", c.session.ID),
		zap.String("kind", string(kind)),
		zap.String("message", message),
	)
	c.transitionLocked(models.StateFailed)
}

func (c *Controller) notifyLocked() {
	if c.onChange != nil {
		c.onChange(c.session.Snapshot())
	}
}

// startTickerLocked starts the single owned duration timer. The first tick
// completes the second carried over from the last pause.
func (c *Controller) startTickerLocked() {
	c.stopTickerLocked()
	c.tickGen++
	gen := c.tickGen
	stop := make(chan struct{})
	c.tickStop = stop
	c.tickAnchor = c.clock.Now().Add(-c.carry)

	if c.carry > 0 {
		first := c.clock.NewTimer(time.Second - c.carry)
		c.carry = 0
		go c.runCarry(first, stop, c.session.ID, gen)
		return
	}
	go c.runTicker(c.clock.NewTicker(time.Second), stop, c.session.ID, gen)
}

// stopTickerLocked cancels the timer. Ticks already in flight are rejected
// by the generation check in tick.
func (c *Controller) stopTickerLocked() {
	if c.tickStop == nil {
		return
	}
	close(c.tickStop)
	c.tickStop = nil
	c.tickGen++
}

// settleLocked counts whole seconds recorded since the anchor that no tick has
// counted yet and keeps the remainder in carry.
func (c *Controller) settleLocked() {
	pending := c.clock.Since(c.tickAnchor)
	if pending < 0 {
		pending = 0
	}
	c.session.ElapsedSeconds += int(pending / time.Second)
	c.carry = pending % time.Second
}

// runCarry waits out the carried partial second, then hands over to the
// regular ticker. The ticker exists before the tick is applied.
func (c *Controller) runCarry(first clockwork.Timer, stop <-chan struct{}, id string, gen uint64) {
	select {
	case <-stop:
		first.Stop()
		return
	case <-first.Chan():
	}
	ticker := c.clock.NewTicker(time.Second)
	if !c.onTick(id, gen) {
		ticker.Stop()
		return
	}
	c.runTicker(ticker, stop, id, gen)
}

func (c *Controller) runTicker(ticker clockwork.Ticker, stop <-chan struct{}, id string, gen uint64) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !c.onTick(id, gen) {
				return
			}
		}
	}
}

// onTick applies one tick and reports whether the timer should keep running.
func (c *Controller) onTick(id string, gen uint64) bool {
	live, limit := c.tick(id, gen)
	if limit {
		c.logger.Info("maximum recording duration reached", zap.String("session_id", id))
		c.stop(id, nil)
		return false
	}
	return live
}

// tick advances elapsed time. It reports whether the tick belonged to the
// running timer and whether the duration limit was hit.
func (c *Controller) tick(id string, gen uint64) (live, limit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tickGen != gen || c.session.ID != id || c.session.State != models.StateRecording {
		return false, false
	}
	c.session.ElapsedSeconds++
	c.tickAnchor = c.tickAnchor.Add(time.Second)
	c.notifyLocked()
	return true, c.maxDuration > 0 && time.Duration(c.session.ElapsedSeconds)*time.Second >= c.maxDuration
}

func (c *Controller) closeHandle(h capture.Handle) {
	if h == nil {
		return
	}
	metrics.ActiveCaptures.Dec()
	if err := h.Close(); err != nil {
		c.logger.Warn("closing capture device failed", zap.Error(err))
	}
}

func (c *Controller) releaseDevice(owner string) {
	if c.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.lock.Release(ctx, c.device.Name(), owner); err != nil {
		c.logger.Warn("releasing capture device lock failed", zap.String("session_id", owner), zap.Error(err))
	}
}
