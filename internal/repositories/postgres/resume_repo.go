package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ResumeRepository interface {
	Insert(ctx context.Context, r *models.Resume) error
	Get(ctx context.Context, userID, id string) (*models.Resume, error)
	LatestByUser(ctx context.Context, userID string) (*models.Resume, error)
	ListByUser(ctx context.Context, userID string) ([]models.Resume, error)
	SetStatus(ctx context.Context, id string, status models.ResumeStatus) error
	SaveAnalysis(ctx context.Context, id string, a models.ResumeAnalysis, raw []byte) error
	Delete(ctx context.Context, userID, id string) error
}

type resumeRepo struct {
	db *gorm.DB
}

func NewResumeRepo(db *gorm.DB) ResumeRepository {
	return &resumeRepo{db: db}
}

func (r *resumeRepo) Insert(ctx context.Context, row *models.Resume) error {
	return r.db.WithContext(ctx).Create(row).Error
}

func (r *resumeRepo) Get(ctx context.Context, userID, id string) (*models.Resume, error) {
	var row models.Resume
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *resumeRepo) LatestByUser(ctx context.Context, userID string) (*models.Resume, error) {
	var row models.Resume
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *resumeRepo) ListByUser(ctx context.Context, userID string) ([]models.Resume, error) {
	var rows []models.Resume
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("uploaded_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *resumeRepo) SetStatus(ctx context.Context, id string, status models.ResumeStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Resume{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *resumeRepo) SaveAnalysis(ctx context.Context, id string, a models.ResumeAnalysis, raw []byte) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.Resume{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":      models.ResumeAnalyzed,
			"skills":      pq.StringArray(a.Skills),
			"analysis":    datatypes.JSON(raw),
			"ats_score":   a.ATSScore,
			"analyzed_at": now,
		}).Error
}

func (r *resumeRepo) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Resume{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}
