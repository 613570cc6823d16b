package testutil

import (
	"context"
	"testing"
	"time"
)

// DefaultTimeout bounds a test context when no other timeout is given.
const DefaultTimeout = 10 * time.Second

// TestContext returns a context cancelled after DefaultTimeout or when the
// test ends.
func TestContext(t testing.TB) context.Context {
	return TestContextWithTimeout(t, DefaultTimeout)
}

// TestContextWithTimeout is TestContext with a custom timeout.
func TestContextWithTimeout(t testing.TB, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	t.Cleanup(cancel)
	return ctx
}
