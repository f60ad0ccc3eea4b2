package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionEvent is an append-only log of socket lifecycle events.
type SessionEvent struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID string             `bson:"interview_id,omitempty" json:"interview_id,omitempty"`
	UserID      string             `bson:"user_id" json:"user_id"`
	Event       string             `bson:"event" json:"event"`
	Detail      map[string]any     `bson:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
