package mongo

import (
	"context"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type BufferRepository interface {
	InsertChunk(ctx context.Context, c *models.AudioChunk) error
	UpdateSTT(ctx context.Context, interviewID string, chunkIndex int64, rawText string, confidence, nervousness float64, status string, processingMS int64) error
	ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.AudioChunk, error)
}

type bufferRepo struct {
	col *mongo.Collection
}

func NewBufferRepo(db *mongo.Database) BufferRepository {
	return &bufferRepo{col: db.Collection("audio_chunks")}
}

func (r *bufferRepo) InsertChunk(ctx context.Context, c *models.AudioChunk) error {
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	if c.STTStatus == "" {
		c.STTStatus = "pending"
	}
	_, err := r.col.InsertOne(ctx, c)
	return err
}

func (r *bufferRepo) UpdateSTT(ctx context.Context, interviewID string, chunkIndex int64, rawText string, confidence, nervousness float64, status string, processingMS int64) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID, "chunk_index": chunkIndex},
		bson.M{"$set": bson.M{
			"raw_text":           rawText,
			"stt_confidence":     confidence,
			"nervousness":        nervousness,
			"stt_status":         status,
			"processing_time_ms": processingMS,
		}},
	)
	return err
}

func (r *bufferRepo) ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.AudioChunk, error) {
	if limit <= 0 {
		limit = 200
	}

	cur, err := r.col.Find(ctx,
		bson.M{"interview_id": interviewID},
		options.Find().
			SetSort(bson.D{{Key: "chunk_index", Value: 1}}).
			SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.AudioChunk
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
