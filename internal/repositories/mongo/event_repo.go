package mongo

import (
	"context"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type EventRepository interface {
	Insert(ctx context.Context, e *models.SessionEvent) error
	ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.SessionEvent, error)
}

type eventRepo struct {
	col *mongo.Collection
}

func NewEventRepo(db *mongo.Database) EventRepository {
	return &eventRepo{col: db.Collection("session_events")}
}

func (r *eventRepo) Insert(ctx context.Context, e *models.SessionEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *eventRepo) ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.SessionEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	cur, err := r.col.Find(ctx,
		bson.M{"interview_id": interviewID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}).SetLimit(limit),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.SessionEvent
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
