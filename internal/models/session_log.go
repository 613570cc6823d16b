package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionLog is the journal entry written when a recording session ends.
// Audio bytes and case notes are never stored here.
type SessionLog struct {
	ID             primitive.ObjectID `json:"id" bson:"_id,omitempty" example:"507f1f77bcf86cd799439011"`
	SessionID      string             `json:"sessionId" bson:"sessionId" example:"1b4e28ba-2fa1-11d2-883f-0016d3cca427"`
	UserID         string             `json:"userId" bson:"userId" example:"9f1c2b8e-7a43-4d1e-9a55-0c1f3b7e2d10"`
	ClientID       string             `json:"clientId,omitempty" bson:"clientId,omitempty" example:"c-1042"`
	State          SessionState       `json:"state" bson:"state" example:"succeeded"`
	ErrorKind      string             `json:"errorKind,omitempty" bson:"errorKind,omitempty" example:"Timeout"`
	ElapsedSeconds int                `json:"elapsedSeconds" bson:"elapsedSeconds" example:"42"`
	AssetBytes     int64              `json:"assetBytes" bson:"assetBytes" example:"48213"`
	MimeType       string             `json:"mimeType,omitempty" bson:"mimeType,omitempty" example:"audio/webm"`
	Discarded      bool               `json:"discarded" bson:"discarded" example:"false"`
	CreatedAt      time.Time          `json:"createdAt" bson:"createdAt" example:"2024-01-15T09:30:00Z"`
}

// NewSessionLog builds a journal entry from a final snapshot.
func NewSessionLog(userID string, snap SessionSnapshot, discarded bool, now time.Time) *SessionLog {
	entry := &SessionLog{
		SessionID:      snap.ID,
		UserID:         userID,
		ClientID:       snap.TargetClientID,
		State:          snap.State,
		ElapsedSeconds: snap.ElapsedSeconds,
		Discarded:      discarded,
		CreatedAt:      now,
	}
	if snap.Error != nil {
		entry.ErrorKind = string(snap.Error.Kind)
	}
	if snap.Asset != nil {
		entry.AssetBytes = snap.Asset.Size
		entry.MimeType = snap.Asset.MimeType
	}
	return entry
}

// SessionLogListResponse is the response for listing journal entries.
type SessionLogListResponse struct {
	Items      []SessionLog `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// Pagination contains pagination metadata.
type Pagination struct {
	Page       int `json:"page" example:"1"`
	Limit      int `json:"limit" example:"10"`
	TotalItems int `json:"totalItems" example:"42"`
	TotalPages int `json:"totalPages" example:"5"`
}
