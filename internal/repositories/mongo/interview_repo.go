package mongo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrConflict is returned when a conditional update matched no document
// because the interview was not in the expected state.
var ErrConflict = errors.New("interview state conflict")

type ListFilter struct {
	Status models.InterviewStatus
	Type   models.InterviewType
	Page   int64
	Limit  int64
}

type InterviewRepository interface {
	Create(ctx context.Context, iv *models.Interview) error
	GetByID(ctx context.Context, interviewID string) (*models.Interview, error)
	ListByUser(ctx context.Context, userID string, f ListFilter) ([]models.Interview, int64, error)

	// Transition moves the interview from one of the allowed statuses to
	// `to`, applying extra $set fields atomically.
	Transition(ctx context.Context, interviewID string, from []models.InterviewStatus, to models.InterviewStatus, set bson.M) (*models.Interview, error)
	SetQuestions(ctx context.Context, interviewID string, qs []models.Question) error
	SaveResponse(ctx context.Context, interviewID string, idx int, resp models.QuestionResponse, eval *models.Evaluation) (*models.Interview, error)
	AppendTranscript(ctx context.Context, interviewID string, entries ...models.TranscriptEntry) error
	PushSample(ctx context.Context, interviewID, field string, s models.Sample) error
}

type interviewRepo struct {
	col *mongo.Collection
}

func NewInterviewRepo(db *mongo.Database) InterviewRepository {
	return &interviewRepo{col: db.Collection("interviews")}
}

func (r *interviewRepo) Create(ctx context.Context, iv *models.Interview) error {
	now := time.Now().UTC()
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = now
	}
	iv.UpdatedAt = now
	if iv.Questions == nil {
		iv.Questions = []models.Question{}
	}
	if iv.Transcript == nil {
		iv.Transcript = []models.TranscriptEntry{}
	}
	_, err := r.col.InsertOne(ctx, iv)
	return err
}

func (r *interviewRepo) GetByID(ctx context.Context, interviewID string) (*models.Interview, error) {
	var iv models.Interview
	err := r.col.FindOne(ctx, bson.M{"interview_id": interviewID}).Decode(&iv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interviewRepo) ListByUser(ctx context.Context, userID string, f ListFilter) ([]models.Interview, int64, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	q := bson.M{"user_id": userID}
	if f.Status != "" {
		q["status"] = f.Status
	}
	if f.Type != "" {
		q["type"] = f.Type
	}

	total, err := r.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	cur, err := r.col.Find(ctx, q,
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetSkip((f.Page-1)*f.Limit).
			SetLimit(f.Limit).
			SetProjection(bson.M{"metrics.nervousness_samples": 0, "metrics.confidence_samples": 0, "metrics.eye_contact_samples": 0}),
	)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	out := []models.Interview{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *interviewRepo) Transition(ctx context.Context, interviewID string, from []models.InterviewStatus, to models.InterviewStatus, set bson.M) (*models.Interview, error) {
	if set == nil {
		set = bson.M{}
	}
	set["status"] = to
	set["updated_at"] = time.Now().UTC()

	var iv models.Interview
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"interview_id": interviewID, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&iv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interviewRepo) SetQuestions(ctx context.Context, interviewID string, qs []models.Question) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID},
		bson.M{"$set": bson.M{"questions": qs, "updated_at": time.Now().UTC()}},
	)
	return err
}

func (r *interviewRepo) SaveResponse(ctx context.Context, interviewID string, idx int, resp models.QuestionResponse, eval *models.Evaluation) (*models.Interview, error) {
	prefix := "questions." + strconv.Itoa(idx)
	set := bson.M{
		prefix + ".response": resp,
		"updated_at":         time.Now().UTC(),
	}
	if eval != nil {
		set[prefix+".evaluation"] = eval
	}

	var iv models.Interview
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{
			"interview_id":        interviewID,
			"status":              models.StatusInProgress,
			prefix + ".response": bson.M{"$exists": false},
		},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&iv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	return &iv, nil
}

func (r *interviewRepo) AppendTranscript(ctx context.Context, interviewID string, entries ...models.TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID},
		bson.M{"$push": bson.M{"transcript": bson.M{"$each": entries}}},
	)
	return err
}

// PushSample appends to one of the metrics sample arrays, capped at the
// most recent 500 entries.
func (r *interviewRepo) PushSample(ctx context.Context, interviewID, field string, s models.Sample) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"interview_id": interviewID, "status": models.StatusInProgress},
		bson.M{"$push": bson.M{"metrics." + field: bson.M{"$each": []models.Sample{s}, "$slice": -500}}},
	)
	return err
}
