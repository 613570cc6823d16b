package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	apperrors "solace-voice/internal/errors"
)

const defaultFragmentSize = 3200 // 100ms of 16 kHz mono s16le

// FFmpegDevice captures the default microphone by running ffmpeg and reading
// raw PCM from its stdout.
type FFmpegDevice struct {
	Binary       string
	InputFormat  string
	Input        string
	FragmentSize int
	format       Format
	logger       *zap.Logger
}

var _ Device = (*FFmpegDevice)(nil)

// NewFFmpegDevice creates a device for the platform's default input. Empty
// inputFormat or input select the platform default.
func NewFFmpegDevice(inputFormat, input string, logger *zap.Logger) *FFmpegDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	defFormat, defInput := defaultInput(runtime.GOOS)
	if inputFormat == "" {
		inputFormat = defFormat
	}
	if input == "" {
		input = defInput
	}
	return &FFmpegDevice{
		Binary:       "ffmpeg",
		InputFormat:  inputFormat,
		Input:        input,
		FragmentSize: defaultFragmentSize,
		format:       FormatWAV,
		logger:       logger,
	}
}

func defaultInput(goos string) (string, string) {
	switch goos {
	case "darwin":
		return "avfoundation", ":default"
	case "windows":
		return "dshow", "audio=default"
	default:
		return "pulse", "default"
	}
}

func (d *FFmpegDevice) Name() string {
	return d.InputFormat + ":" + d.Input
}

func (d *FFmpegDevice) Preset() Format {
	return d.format
}

// Check verifies ffmpeg is on PATH.
func (d *FFmpegDevice) Check() error {
	if _, err := exec.LookPath(d.Binary); err != nil {
		return fmt.Errorf("ffmpeg not found, install it with your package manager (brew install ffmpeg): %w", err)
	}
	return nil
}

// RequestPermission runs a short probe capture. The OS shows its permission
// prompt on first access and the probe fails if access is refused.
func (d *FFmpegDevice) RequestPermission(ctx context.Context) (bool, error) {
	if err := d.Check(); err != nil {
		return false, err
	}

	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(probeCtx, d.Binary, d.probeArgs()...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if isPermissionError(stderr.String()) {
			d.logger.Info("microphone permission refused", zap.String("device", d.Name()))
			return false, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("probing %s: %w: %s", d.Name(), err, strings.TrimSpace(stderr.String()))
	}
	return true, nil
}

func isPermissionError(stderr string) bool {
	s := strings.ToLower(stderr)
	for _, marker := range []string{"permission", "not authorized", "access denied", "operation not permitted"} {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

func (d *FFmpegDevice) inputArgs() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-f", d.InputFormat, "-i", d.Input}
}

func (d *FFmpegDevice) probeArgs() []string {
	return append(d.inputArgs(), "-t", "0.2", "-f", "null", "-")
}

func (d *FFmpegDevice) captureArgs() []string {
	return append(d.inputArgs(),
		"-ac", strconv.Itoa(d.format.Channels),
		"-ar", strconv.Itoa(d.format.SampleRate),
		"-acodec", "pcm_s16le",
		"-f", "s16le",
		"pipe:1",
	)
}

// Open starts ffmpeg. The process outlives ctx; only Close stops it. If ffmpeg
// exits on its own, onLost receives the exit error.
func (d *FFmpegDevice) Open(_ context.Context, onData DataFunc, onLost LostFunc) (Handle, error) {
	procCtx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(procCtx, d.Binary, d.captureArgs()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	h := newFFmpegHandle(onData, d.FragmentSize, d.logger)
	h.cancel = cancel
	var waitOnce sync.Once
	var waitErr error
	h.wait = func() error {
		waitOnce.Do(func() {
			err := cmd.Wait()
			if err != nil && procCtx.Err() == nil {
				waitErr = fmt.Errorf("ffmpeg exited: %w: %s", err, strings.TrimSpace(stderr.String()))
			}
		})
		return waitErr
	}
	go func() {
		h.pump(stdout)
		if procCtx.Err() != nil || onLost == nil {
			return
		}
		err := h.wait()
		if err == nil {
			err = errors.New("ffmpeg exited")
		}
		d.logger.Warn("ffmpeg capture ended unexpectedly", zap.String("device", d.Name()), zap.Error(err))
		onLost(fmt.Errorf("%w: %w", apperrors.ErrDeviceLost, err))
	}()

	d.logger.Debug("ffmpeg capture started", zap.String("device", d.Name()), zap.Int("pid", cmd.Process.Pid))
	return h, nil
}

type ffmpegHandle struct {
	onData       DataFunc
	fragmentSize int
	paused       atomic.Bool
	done         chan struct{}
	cancel       context.CancelFunc
	wait         func() error
	closeOnce    sync.Once
	closeErr     error
	logger       *zap.Logger
}

func newFFmpegHandle(onData DataFunc, fragmentSize int, logger *zap.Logger) *ffmpegHandle {
	if fragmentSize <= 0 {
		fragmentSize = defaultFragmentSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ffmpegHandle{
		onData:       onData,
		fragmentSize: fragmentSize,
		done:         make(chan struct{}),
		cancel:       func() {},
		wait:         func() error { return nil },
		logger:       logger,
	}
}

// pump forwards stdout in fragments until EOF. Samples read while paused are
// discarded so the asset contains no paused audio.
func (h *ffmpegHandle) pump(r io.Reader) {
	defer close(h.done)
	buf := make([]byte, h.fragmentSize)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 && !h.paused.Load() {
			fragment := make([]byte, n)
			copy(fragment, buf[:n])
			h.onData(fragment)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				h.logger.Warn("ffmpeg read failed", zap.Error(err))
			}
			return
		}
	}
}

func (h *ffmpegHandle) Pause() error {
	h.paused.Store(true)
	return nil
}

func (h *ffmpegHandle) Resume() error {
	h.paused.Store(false)
	return nil
}

func (h *ffmpegHandle) Close() error {
	h.closeOnce.Do(func() {
		h.cancel()
		<-h.done
		h.closeErr = h.wait()
	})
	return h.closeErr
}
