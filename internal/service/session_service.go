package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"solace-voice/internal/capture"
	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
	"solace-voice/internal/recorder"
	"solace-voice/internal/repository"
	"solace-voice/internal/storage"
	"solace-voice/internal/transcription"
)

const (
	previewURLExpiry         = 1 * time.Hour
	defaultPermissionTimeout = 2 * time.Minute
	archiveTimeout           = 30 * time.Second
	maxHistoryLimit          = 50
)

// SessionOptions configures a SessionService. Nil collaborators disable the
// feature they back.
type SessionOptions struct {
	Lock        capture.Lock
	Storage     storage.Storage
	Journal     Journal
	History     repository.SessionLogRepository
	Clock       clockwork.Clock
	MaxDuration time.Duration
	// PermissionTimeout bounds how long Start waits for the browser to answer.
	PermissionTimeout time.Duration
	Logger            *zap.Logger
}

// SessionService owns one recorder per user. Each recorder captures from a
// browser attached over a websocket.
type SessionService struct {
	uploader transcription.Uploader
	opts     SessionOptions
	logger   *zap.Logger

	mu        sync.Mutex
	recorders map[string]*userRecorder
}

// NewSessionService creates a SessionService.
func NewSessionService(uploader transcription.Uploader, opts SessionOptions) *SessionService {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Lock == nil {
		opts.Lock = capture.NewMemoryLock()
	}
	if opts.PermissionTimeout <= 0 {
		opts.PermissionTimeout = defaultPermissionTimeout
	}
	return &SessionService{
		uploader:  uploader,
		opts:      opts,
		logger:    opts.Logger,
		recorders: make(map[string]*userRecorder),
	}
}

// userRecorder pairs a user's browser device with their current controller.
// Lock order is controller, then userRecorder.
type userRecorder struct {
	userID string
	device *capture.StreamDevice

	mu          sync.Mutex
	controller  *recorder.Controller
	subscribers map[int]func(models.SessionSnapshot)
	nextSub     int
	archive     archivedAsset
}

type archivedAsset struct {
	sessionID  string
	key        string
	previewURL string
}

func (r *userRecorder) current() *recorder.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.controller
}

// decorate adds what the service knows about a session to a controller snapshot.
func (r *userRecorder) decorate(snap models.SessionSnapshot) models.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.decorateLocked(snap)
}

func (r *userRecorder) decorateLocked(snap models.SessionSnapshot) models.SessionSnapshot {
	if snap.ID != "" && r.archive.sessionID == snap.ID {
		snap.PreviewURL = r.archive.previewURL
	}
	return snap
}

func (r *userRecorder) publish(snap models.SessionSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap = r.decorateLocked(snap)
	for _, fn := range r.subscribers {
		fn(snap)
	}
}

// Open creates the user's recorder, or replaces an idle or finished one.
func (s *SessionService) Open(ctx context.Context, userID, clientID string) (models.SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.recorders[userID]
	if !ok {
		r = &userRecorder{
			userID:      userID,
			device:      capture.NewStreamDevice("browser:"+userID, capture.FormatWebM, s.logger),
			subscribers: make(map[int]func(models.SessionSnapshot)),
		}
		s.recorders[userID] = r
	} else if prev := r.current(); prev != nil {
		snap := prev.Snapshot()
		if snap.State != models.StateIdle && !snap.State.IsTerminal() {
			return r.decorate(snap), apperrors.ErrSessionActive
		}
		prev.Reset()
		s.dropArchive(ctx, r, snap.ID)
	}

	ctrl := recorder.New(r.device, s.uploader, clientID, recorder.Options{
		Clock:       s.opts.Clock,
		Lock:        s.opts.Lock,
		MaxDuration: s.opts.MaxDuration,
		Logger:      s.logger.With(zap.String("user_id", userID)),
		OnChange:    s.listener(r),
	})

	r.mu.Lock()
	r.controller = ctrl
	r.mu.Unlock()

	s.logger.Info("recorder opened", zap.String("user_id", userID), zap.String("client_id", clientID))
	return ctrl.Snapshot(), nil
}

// listener runs under the controller lock; archiving is handed to a goroutine.
func (s *SessionService) listener(r *userRecorder) recorder.Listener {
	return func(snap models.SessionSnapshot) {
		switch {
		case snap.State == models.StateStopped && snap.Asset != nil:
			go s.archive(r, snap.ID, snap.Asset)
		case snap.State.IsTerminal():
			s.journal(r.userID, snap, false)
		}
		r.publish(snap)
	}
}

func (s *SessionService) journal(userID string, snap models.SessionSnapshot, discarded bool) {
	if s.opts.Journal == nil {
		return
	}
	// Submit logs and counts dropped entries itself.
	_ = s.opts.Journal.Submit(models.NewSessionLog(userID, snap, discarded, s.opts.Clock.Now()))
}

// archive stores the stopped asset and publishes a playback URL for it.
func (s *SessionService) archive(r *userRecorder, sessionID string, asset *models.AudioAsset) {
	if s.opts.Storage == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	key := storage.AssetKey(r.userID, sessionID, asset.Filename)
	log := s.logger.With(zap.String("user_id", r.userID), zap.String("session_id", sessionID))

	if err := s.opts.Storage.PutObject(ctx, key, asset.Bytes, asset.MimeType); err != nil {
		log.Warn("archiving recording failed", zap.Error(err))
		return
	}
	url, err := s.opts.Storage.GetPresignedURL(ctx, key, previewURLExpiry)
	if err != nil {
		log.Warn("presigning preview URL failed", zap.Error(err))
	}

	ctrl := r.current()
	if ctrl == nil || ctrl.Snapshot().ID != sessionID {
		// reset while archiving
		if err := s.opts.Storage.DeleteObject(ctx, key); err != nil {
			log.Warn("deleting abandoned archive failed", zap.Error(err))
		}
		return
	}

	r.mu.Lock()
	r.archive = archivedAsset{sessionID: sessionID, key: key, previewURL: url}
	r.mu.Unlock()

	log.Debug("recording archived", zap.String("key", key))
	if snap := ctrl.Snapshot(); snap.ID == sessionID {
		r.publish(snap)
	}
}

// dropArchive deletes the archived asset of sessionID, if any.
func (s *SessionService) dropArchive(ctx context.Context, r *userRecorder, sessionID string) {
	r.mu.Lock()
	archived := r.archive
	if sessionID == "" || archived.sessionID != sessionID {
		r.mu.Unlock()
		return
	}
	r.archive = archivedAsset{}
	r.mu.Unlock()

	if s.opts.Storage == nil || archived.key == "" {
		return
	}
	if err := s.opts.Storage.DeleteObject(context.WithoutCancel(ctx), archived.key); err != nil {
		s.logger.Warn("deleting archived recording failed", zap.String("key", archived.key), zap.Error(err))
	}
}

func (s *SessionService) lookup(userID string) (*userRecorder, *recorder.Controller, error) {
	s.mu.Lock()
	r, ok := s.recorders[userID]
	s.mu.Unlock()
	if !ok {
		return nil, nil, apperrors.ErrSessionNotFound
	}
	ctrl := r.current()
	if ctrl == nil {
		return nil, nil, apperrors.ErrSessionNotFound
	}
	return r, ctrl, nil
}

// Current returns the user's session snapshot.
func (s *SessionService) Current(_ context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return r.decorate(ctrl.Snapshot()), nil
}

// Start asks the attached browser for microphone access and begins recording.
// The wait is bounded by PermissionTimeout rather than the request lifetime.
func (s *SessionService) Start(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	startCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PermissionTimeout)
	defer cancel()
	return r.decorate(ctrl.Start(startCtx)), nil
}

// Pause pauses recording.
func (s *SessionService) Pause(_ context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return r.decorate(ctrl.Pause()), nil
}

// Resume resumes a paused recording.
func (s *SessionService) Resume(_ context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return r.decorate(ctrl.Resume()), nil
}

// Stop ends capture and packages the recording.
func (s *SessionService) Stop(_ context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return r.decorate(ctrl.Stop()), nil
}

// Submit uploads the stopped recording. The upload keeps the caller's token
// but is not cancelled when the request goes away; only Reset cancels it.
func (s *SessionService) Submit(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	return r.decorate(ctrl.Submit(context.WithoutCancel(ctx))), nil
}

// Reset abandons the current session and returns to Idle.
func (s *SessionService) Reset(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return models.SessionSnapshot{}, err
	}
	prev := ctrl.Snapshot()
	snap := ctrl.Reset()
	s.dropArchive(ctx, r, prev.ID)
	return snap, nil
}

// Discard resets the session, journals it if it was started and never
// finished, and closes the user's recorder.
func (s *SessionService) Discard(ctx context.Context, userID string) error {
	r, ctrl, err := s.lookup(userID)
	if err != nil {
		return err
	}
	prev := ctrl.Snapshot()
	ctrl.Reset()
	if prev.ID != "" && !prev.State.IsTerminal() {
		s.journal(userID, prev, true)
	}
	s.dropArchive(ctx, r, prev.ID)

	s.mu.Lock()
	if s.recorders[userID] == r {
		delete(s.recorders, userID)
	}
	s.mu.Unlock()

	r.mu.Lock()
	r.controller = nil
	r.mu.Unlock()

	s.logger.Info("recorder discarded", zap.String("user_id", userID), zap.String("session_id", prev.ID))
	return nil
}

// SubmitFile uploads an existing recording through the same format gate as a
// captured one.
func (s *SessionService) SubmitFile(ctx context.Context, userID string, upload *models.FileUpload) (*models.TranscriptionResult, error) {
	mimeType := upload.MimeType
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = transcription.MimeTypeForFile(upload.Filename)
	}
	asset := models.NewAudioAsset(upload.Data, mimeType, upload.Filename)

	result, err := s.uploader.Upload(ctx, asset, upload.ClientID)

	snap := models.SessionSnapshot{
		ID:             uuid.NewString(),
		State:          models.StateSucceeded,
		TargetClientID: upload.ClientID,
		Asset:          asset,
	}
	if err != nil {
		snap.State = models.StateFailed
		snap.Error = &models.SessionError{Kind: apperrors.KindOf(err), Message: apperrors.MessageOf(err)}
	}
	s.journal(userID, snap, false)

	if err != nil {
		return nil, err
	}
	return result, nil
}

// History returns the user's finished sessions, newest first.
func (s *SessionService) History(ctx context.Context, userID string, page, limit int) (*models.SessionLogListResponse, error) {
	if s.opts.History == nil {
		return nil, apperrors.ErrJournalDisabled
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxHistoryLimit {
		limit = 10
	}

	entries, total, err := s.opts.History.FindByUserID(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}

	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}

	return &models.SessionLogListResponse{
		Items: entries,
		Pagination: models.Pagination{
			Page:       page,
			Limit:      limit,
			TotalItems: total,
			TotalPages: totalPages,
		},
	}, nil
}

// Device returns the browser device of the user's recorder.
func (s *SessionService) Device(userID string) (*capture.StreamDevice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.recorders[userID]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return r.device, nil
}

// Subscribe registers fn for every snapshot of the user's recorder. fn runs
// while the recorder is locked and must not block.
func (s *SessionService) Subscribe(userID string, fn func(models.SessionSnapshot)) (func(), error) {
	s.mu.Lock()
	r, ok := s.recorders[userID]
	s.mu.Unlock()
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}, nil
}

// Close resets every open recorder. Used on shutdown.
func (s *SessionService) Close(ctx context.Context) {
	s.mu.Lock()
	users := make([]string, 0, len(s.recorders))
	for userID := range s.recorders {
		users = append(users, userID)
	}
	s.mu.Unlock()

	for _, userID := range users {
		if err := s.Discard(ctx, userID); err != nil {
			s.logger.Debug("closing recorder", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
