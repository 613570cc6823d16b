package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	apperrors "solace-voice/internal/errors"
	"solace-voice/internal/models"
)

// SessionLogCollection holds one document per finished recording session.
const SessionLogCollection = "recording_sessions"

// SessionLogRepository defines the interface for session journal operations.
type SessionLogRepository interface {
	Insert(ctx context.Context, entry *models.SessionLog) error
	FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.SessionLog, int, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.SessionLog, error)
}

// sessionLogRepository implements SessionLogRepository using MongoDB.
type sessionLogRepository struct {
	collection *mongo.Collection
}

// NewSessionLogRepository creates a new SessionLogRepository.
func NewSessionLogRepository(db *mongo.Database) SessionLogRepository {
	return &sessionLogRepository{
		collection: db.Collection(SessionLogCollection),
	}
}

// Insert stores entry, assigning an ID and creation time when missing. With the
// unique sessionId index in place, a retried insert that already landed is
// not an error.
func (r *sessionLogRepository) Insert(ctx context.Context, entry *models.SessionLog) error {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.collection.InsertOne(ctx, entry)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

// FindByUserID returns a user's journal entries, newest first.
func (r *sessionLogRepository) FindByUserID(ctx context.Context, userID string, page, limit int) ([]models.SessionLog, int, error) {
	filter := bson.M{"userId": userID}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	skip := (page - 1) * limit

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(skip)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var entries []models.SessionLog
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, 0, err
	}

	if entries == nil {
		entries = []models.SessionLog{}
	}

	return entries, int(total), nil
}

// FindBySessionID returns the most recent entry for a session.
func (r *sessionLogRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.SessionLog, error) {
	var entry models.SessionLog

	opts := options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	err := r.collection.FindOne(ctx, bson.M{"sessionId": sessionID}, opts).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, apperrors.ErrSessionNotFound
		}
		return nil, err
	}

	return &entry, nil
}

// SessionLogIndexes are the indexes the journal queries rely on.
func SessionLogIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("userId_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "sessionId", Value: 1}},
			Options: options.Index().SetName("sessionId").SetUnique(true),
		},
	}
}

// EnsureSessionLogIndexes creates the journal indexes if they do not exist.
func EnsureSessionLogIndexes(ctx context.Context, db *mongo.Database) ([]string, error) {
	return db.Collection(SessionLogCollection).Indexes().CreateMany(ctx, SessionLogIndexes())
}
