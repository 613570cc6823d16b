package capture

import (
	"context"
	"sync"

	apperrors "solace-voice/internal/errors"
)

// Lock grants a recording session exclusive ownership of a device.
type Lock interface {
	// Acquire returns apperrors.ErrDeviceBusy when another owner holds device.
	// Re-acquiring by the current owner succeeds.
	Acquire(ctx context.Context, device, owner string) error
	// Release is a no-op unless owner holds device.
	Release(ctx context.Context, device, owner string) error
}

// MemoryLock is a process-local Lock.
type MemoryLock struct {
	mu     sync.Mutex
	owners map[string]string
}

var _ Lock = (*MemoryLock)(nil)

// NewMemoryLock creates an empty MemoryLock.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{owners: make(map[string]string)}
}

func (l *MemoryLock) Acquire(_ context.Context, device, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if current, ok := l.owners[device]; ok && current != owner {
		return apperrors.ErrDeviceBusy
	}
	l.owners[device] = owner
	return nil
}

func (l *MemoryLock) Release(_ context.Context, device, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.owners[device] == owner {
		delete(l.owners, device)
	}
	return nil
}

// Holder returns the current owner of device, if any.
func (l *MemoryLock) Holder(device string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	owner, ok := l.owners[device]
	return owner, ok
}
