//go:build api

package testserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// CleanupBetweenTests clears all state between tests.
// Call this at the start of each test function for isolation.
func (ts *TestServer) CleanupBetweenTests(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	// Close recorders left open by an earlier test
	ts.Sessions.Close(ctx)

	require.NoError(t, ts.MongoDB.ClearSessionLogs(ctx), "failed to clear session journal")
	require.NoError(t, ts.Redis.FlushDB(ctx), "failed to flush Redis")
	require.NoError(t, ts.MinIO.ClearBucket(ctx), "failed to clear MinIO bucket")

	ts.Backend.Reset()
}
