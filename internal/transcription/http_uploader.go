package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/metrics"
	"solace-voice/internal/models"
)

const (
	DefaultTranscribePath = "/api/case-notes/transcribe-audio/"
	DefaultHealthPath     = "/api/case-notes/voice/health/"
	voiceSessionPath      = "/api/case-notes/voice-sessions/%s/upload"
	// DefaultTimeout applies when Config.Timeout is not positive.
	DefaultTimeout = 60 * time.Second

	maxResponseBytes = 4 << 20
	maxErrorBodyLen  = 300
)

// Config configures an HTTPUploader.
type Config struct {
	BaseURL        string
	TranscribePath string
	HealthPath     string
	// Timeout bounds one upload including the server's transcription work.
	// Zero or negative selects DefaultTimeout; uploads always have a deadline.
	Timeout  time.Duration
	MaxBytes int64
	PoolSize int
}

// HTTPUploader posts assets as multipart forms to the case-notes API.
type HTTPUploader struct {
	baseURL        string
	transcribePath string
	healthPath     string
	timeout        time.Duration
	maxBytes       int64
	tokens         TokenSource
	client         *http.Client
	clock          clockwork.Clock
	logger         *zap.Logger
}

var _ Uploader = (*HTTPUploader)(nil)

// NewHTTPUploader creates an uploader for cfg.BaseURL.
func NewHTTPUploader(cfg Config, tokens TokenSource, logger *zap.Logger) *HTTPUploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TranscribePath == "" {
		cfg.TranscribePath = DefaultTranscribePath
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = DefaultHealthPath
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &HTTPUploader{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		transcribePath: cfg.TranscribePath,
		healthPath:     cfg.HealthPath,
		timeout:        cfg.Timeout,
		maxBytes:       cfg.MaxBytes,
		tokens:         tokens,
		client:         NewPooledHTTPClient(cfg.PoolSize),
		clock:          clockwork.NewRealClock(),
		logger:         logger,
	}
}

// NewPooledHTTPClient creates an http.Client with connection pooling. It sets
// no overall timeout; uploads are bounded by their context.
func NewPooledHTTPClient(poolSize int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		},
	}
}

// transcribeResponse is the success body. Pointers distinguish missing fields
// from empty ones.
type transcribeResponse struct {
	Success       *bool           `json:"success"`
	Error         string          `json:"error"`
	Transcription *string         `json:"transcription"`
	CaseNote      json.RawMessage `json:"case_note"`
}

// Upload posts asset to the transcribe endpoint.
func (u *HTTPUploader) Upload(ctx context.Context, asset *models.AudioAsset, clientID string) (*models.TranscriptionResult, error) {
	return u.upload(ctx, u.transcribePath, asset, clientID)
}

// UploadToVoiceSession posts asset to an existing backend voice session.
func (u *HTTPUploader) UploadToVoiceSession(ctx context.Context, voiceSessionID string, asset *models.AudioAsset, clientID string) (*models.TranscriptionResult, error) {
	if voiceSessionID == "" {
		return u.Upload(ctx, asset, clientID)
	}
	return u.upload(ctx, fmt.Sprintf(voiceSessionPath, url.PathEscape(voiceSessionID)), asset, clientID)
}

func (u *HTTPUploader) upload(ctx context.Context, path string, asset *models.AudioAsset, clientID string) (result *models.TranscriptionResult, err error) {
	start := u.clock.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(apperrors.KindOf(err))
		}
		metrics.Uploads.WithLabelValues(outcome).Inc()
	}()

	mimeType, err := ValidateAsset(asset, u.maxBytes)
	if err != nil {
		return nil, err
	}

	token, err := u.tokens.Token(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindAuthFailure, "sign in again to upload recordings", err)
	}

	body, contentType, err := buildMultipart(asset, mimeType, clientID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNetworkFailure, "could not prepare upload", err)
	}

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+path, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindNetworkFailure, "invalid transcription endpoint", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	u.logger.Debug("uploading recording",
		zap.String("filename", asset.Filename),
		zap.String("mime_type", mimeType),
		zap.Int("bytes", len(asset.Bytes)),
	)
	metrics.UploadBytes.Observe(float64(len(asset.Bytes)))

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, u.transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, u.transportError(ctx, err)
	}

	elapsed := u.clock.Since(start)
	metrics.UploadDuration.Observe(elapsed.Seconds())
	u.logger.Info("transcription upload finished",
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", elapsed),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, raw)
	}
	return decodeResult(raw)
}

func buildMultipart(asset *models.AudioAsset, mimeType, clientID string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename="%s"`, escapeQuotes(asset.Filename)))
	header.Set("Content-Type", mimeType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(asset.Bytes); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("filename", asset.Filename); err != nil {
		return nil, "", err
	}
	if err := w.WriteField("mimeType", mimeType); err != nil {
		return nil, "", err
	}
	if clientID != "" {
		if err := w.WriteField("client_id", clientID); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (u *HTTPUploader) transportError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Wrap(apperrors.KindTimeout,
			fmt.Sprintf("transcription did not finish within %s", u.timeout), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Wrap(apperrors.KindTimeout, "transcription request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperrors.Wrap(apperrors.KindNetworkFailure, "upload was cancelled", err)
	}
	return apperrors.Wrap(apperrors.KindNetworkFailure, "could not reach the transcription service", err)
}

func statusError(status int, body []byte) error {
	msg := fmt.Sprintf("HTTP %d: %s", status, errorBodyText(body))
	var kind apperrors.Kind
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = apperrors.KindAuthFailure
	case status == http.StatusRequestEntityTooLarge:
		kind = apperrors.KindPayloadTooLarge
	case status == http.StatusUnsupportedMediaType:
		kind = apperrors.KindUnsupportedFormat
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		kind = apperrors.KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		kind = apperrors.KindNetworkFailure
	default:
		kind = apperrors.KindServerTranscriptionFailure
	}
	return &apperrors.TranscriptionError{Kind: kind, Message: msg, StatusCode: status}
}

// errorBodyText extracts a readable message from a JSON or text error body.
func errorBodyText(body []byte) string {
	var payload struct {
		Error   any    `json:"error"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		switch v := payload.Error.(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if m, ok := v["message"].(string); ok && m != "" {
				return m
			}
		}
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyLen {
		text = text[:maxErrorBodyLen] + "..."
	}
	if text == "" {
		text = "empty response body"
	}
	return text
}

func decodeResult(raw []byte) (*models.TranscriptionResult, error) {
	var body transcribeResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperrors.Wrap(apperrors.KindMalformedResponse, "transcription response is not valid JSON", err)
	}
	if body.Success != nil && !*body.Success {
		msg := body.Error
		if msg == "" {
			msg = "the server could not transcribe the recording"
		}
		return nil, apperrors.NewError(apperrors.KindServerTranscriptionFailure, msg)
	}
	if body.Transcription == nil {
		return nil, apperrors.Wrap(apperrors.KindMalformedResponse, "transcription response has no transcription", apperrors.ErrMalformedResponse)
	}
	note := bytes.TrimSpace(body.CaseNote)
	if len(note) == 0 || bytes.Equal(note, []byte("null")) || note[0] != '{' {
		return nil, apperrors.Wrap(apperrors.KindMalformedResponse, "transcription response has no case note", apperrors.ErrMalformedResponse)
	}
	return &models.TranscriptionResult{Transcription: *body.Transcription, CaseNote: note}, nil
}

// Health probes the voice service health endpoint.
func (u *HTTPUploader) Health(ctx context.Context) (*models.VoiceHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.baseURL+u.healthPath, nil)
	if err != nil {
		return nil, err
	}
	if token, err := u.tokens.Token(ctx); err == nil {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := u.clock.Now()
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, u.transportError(ctx, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, u.transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, raw)
	}

	health := &models.VoiceHealth{Status: "ok"}
	var payload struct {
		Status string `json:"status"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Status != "" {
		health.Status = payload.Status
	}
	health.Latency = u.clock.Since(start).Round(time.Millisecond).String()
	return health, nil
}
