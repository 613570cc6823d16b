// Package mocks provides mock implementations of service interfaces for testing.
package mocks

import (
	"context"

	"solace-voice/internal/capture"
	"solace-voice/internal/models"
)

// MockRecorderService is a mock implementation of RecorderServicer.
type MockRecorderService struct {
	OpenFunc       func(ctx context.Context, userID, clientID string) (models.SessionSnapshot, error)
	CurrentFunc    func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	StartFunc      func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	PauseFunc      func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	ResumeFunc     func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	StopFunc       func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	SubmitFunc     func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	ResetFunc      func(ctx context.Context, userID string) (models.SessionSnapshot, error)
	DiscardFunc    func(ctx context.Context, userID string) error
	SubmitFileFunc func(ctx context.Context, userID string, upload *models.FileUpload) (*models.TranscriptionResult, error)
	HistoryFunc    func(ctx context.Context, userID string, page, limit int) (*models.SessionLogListResponse, error)
	DeviceFunc     func(userID string) (*capture.StreamDevice, error)
	SubscribeFunc  func(userID string, fn func(models.SessionSnapshot)) (func(), error)
}

func (m *MockRecorderService) Open(ctx context.Context, userID, clientID string) (models.SessionSnapshot, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, userID, clientID)
	}
	return models.SessionSnapshot{State: models.StateIdle}, nil
}

func (m *MockRecorderService) Current(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.CurrentFunc != nil {
		return m.CurrentFunc(ctx, userID)
	}
	return models.SessionSnapshot{State: models.StateIdle}, nil
}

func (m *MockRecorderService) Start(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, userID)
	}
	return models.SessionSnapshot{}, nil
}

func (m *MockRecorderService) Pause(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.PauseFunc != nil {
		return m.PauseFunc(ctx, userID)
	}
	return models.SessionSnapshot{}, nil
}

func (m *MockRecorderService) Resume(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.ResumeFunc != nil {
		return m.ResumeFunc(ctx, userID)
	}
	return models.SessionSnapshot{}, nil
}

func (m *MockRecorderService) Stop(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.StopFunc != nil {
		return m.StopFunc(ctx, userID)
	}
	return models.SessionSnapshot{}, nil
}

func (m *MockRecorderService) Submit(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, userID)
	}
	return models.SessionSnapshot{}, nil
}

func (m *MockRecorderService) Reset(ctx context.Context, userID string) (models.SessionSnapshot, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, userID)
	}
	return models.SessionSnapshot{State: models.StateIdle}, nil
}

func (m *MockRecorderService) Discard(ctx context.Context, userID string) error {
	if m.DiscardFunc != nil {
		return m.DiscardFunc(ctx, userID)
	}
	return nil
}

func (m *MockRecorderService) SubmitFile(ctx context.Context, userID string, upload *models.FileUpload) (*models.TranscriptionResult, error) {
	if m.SubmitFileFunc != nil {
		return m.SubmitFileFunc(ctx, userID, upload)
	}
	return nil, nil
}

func (m *MockRecorderService) History(ctx context.Context, userID string, page, limit int) (*models.SessionLogListResponse, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, userID, page, limit)
	}
	return nil, nil
}

func (m *MockRecorderService) Device(userID string) (*capture.StreamDevice, error) {
	if m.DeviceFunc != nil {
		return m.DeviceFunc(userID)
	}
	return nil, nil
}

func (m *MockRecorderService) Subscribe(userID string, fn func(models.SessionSnapshot)) (func(), error) {
	if m.SubscribeFunc != nil {
		return m.SubscribeFunc(userID, fn)
	}
	return func() {}, nil
}

// MockJournal is a mock implementation of Journal.
type MockJournal struct {
	SubmitFunc func(entry *models.SessionLog) error
}

func (m *MockJournal) Submit(entry *models.SessionLog) error {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(entry)
	}
	return nil
}
