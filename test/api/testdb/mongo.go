//go:build api

package testdb

import (
	"context"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"

	"solace-voice/internal/database"
	"solace-voice/internal/repository"
)

// MongoContainer wraps a MongoDB testcontainer holding the session journal.
type MongoContainer struct {
	Container *mongodb.MongoDBContainer
	DB        *database.MongoDB
}

// SetupMongoDB starts MongoDB and creates the journal indexes the way
// cmd/index does. The lifecycle is owned by TestMain, not t.Cleanup.
func SetupMongoDB(ctx context.Context, dbName string) (*MongoContainer, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	container, err := mongodb.Run(ctx, "mongo:7")
	if err != nil {
		return nil, err
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	db, err := database.NewMongoDB(ctx, uri, dbName, nil)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}

	if _, err := repository.EnsureSessionLogIndexes(ctx, db.Database); err != nil {
		db.Close()
		_ = container.Terminate(ctx)
		return nil, err
	}

	return &MongoContainer{Container: container, DB: db}, nil
}

// Cleanup disconnects and terminates the MongoDB container.
func (mc *MongoContainer) Cleanup(ctx context.Context) error {
	if mc.DB != nil {
		mc.DB.Close()
	}
	if mc.Container != nil {
		return mc.Container.Terminate(ctx)
	}
	return nil
}

// ClearSessionLogs empties the journal but keeps its indexes.
func (mc *MongoContainer) ClearSessionLogs(ctx context.Context) error {
	_, err := mc.DB.Collection(repository.SessionLogCollection).DeleteMany(ctx, bson.M{})
	return err
}

// CountSessionLogs counts journal entries for userID.
func (mc *MongoContainer) CountSessionLogs(ctx context.Context, userID string) (int64, error) {
	return mc.DB.Collection(repository.SessionLogCollection).CountDocuments(ctx, bson.M{"userId": userID})
}
