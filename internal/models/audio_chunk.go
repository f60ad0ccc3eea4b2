package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AudioChunk is one live audio push received over the socket while the
// candidate is recording. Rows expire through a TTL index.
type AudioChunk struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	InterviewID string             `bson:"interview_id" json:"interview_id"`
	UserID      string             `bson:"user_id" json:"user_id"`
	ChunkIndex  int64              `bson:"chunk_index" json:"chunk_index"`
	Size        int                `bson:"size" json:"size"`

	RawText       string  `bson:"raw_text,omitempty" json:"raw_text,omitempty"`
	STTStatus     string  `bson:"stt_status" json:"stt_status"` // pending|processing|done|failed
	STTConfidence float64 `bson:"stt_confidence,omitempty" json:"stt_confidence,omitempty"`
	Nervousness   float64 `bson:"nervousness,omitempty" json:"nervousness,omitempty"`

	ProcessingTimeMS int64     `bson:"processing_time_ms,omitempty" json:"processing_time_ms,omitempty"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
	ExpiresAt        time.Time `bson:"expires_at" json:"expires_at"`
}
