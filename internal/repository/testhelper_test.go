package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"solace-voice/internal/database"
)

// TestDB is a throwaway journal database in a MongoDB container.
type TestDB struct {
	*database.MongoDB
}

// SetupTestDB starts MongoDB and connects the way cmd/server does. The
// container is removed when the test ends.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB container test in short mode")
	}

	ctx := context.Background()

	container, err := mongodb.Run(ctx, "mongo:7.0")
	require.NoError(t, err, "Failed to start MongoDB container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get connection string")

	db, err := database.NewMongoDB(ctx, uri, "journal_"+uuid.NewString()[:8], nil)
	require.NoError(t, err, "Failed to connect to MongoDB")
	t.Cleanup(func() {
		_ = db.Database.Drop(context.Background())
		db.Close()
	})

	return &TestDB{MongoDB: db}
}

// Journal returns the session log collection.
func (tdb *TestDB) Journal() *mongo.Collection {
	return tdb.Collection(SessionLogCollection)
}

// ClearJournal removes every session log entry.
func (tdb *TestDB) ClearJournal(t *testing.T) {
	t.Helper()
	_, err := tdb.Journal().DeleteMany(context.Background(), bson.M{})
	require.NoError(t, err, "Failed to clear %s", SessionLogCollection)
}
