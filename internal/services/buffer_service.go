package services

import (
	"context"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	mongorepo "github.com/careerforge/careerforge/internal/repositories/mongo"
	"github.com/careerforge/careerforge/internal/utils"
)

type BufferService interface {
	InsertAudioChunk(ctx context.Context, interviewID, userID string, chunkIndex int64, size int) (*models.AudioChunk, error)
	MarkSTT(ctx context.Context, interviewID string, chunkIndex int64, rawText string, confidence, nervousness float64, status string, processingMS int64) error
	ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.AudioChunk, error)
}

type bufferService struct {
	buffers mongorepo.BufferRepository
	ttl     time.Duration
}

func NewBufferService(buffers mongorepo.BufferRepository, ttl time.Duration) BufferService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &bufferService{buffers: buffers, ttl: ttl}
}

func (s *bufferService) InsertAudioChunk(ctx context.Context, interviewID, userID string, chunkIndex int64, size int) (*models.AudioChunk, error) {
	const op = "BufferService.InsertAudioChunk"

	if interviewID == "" || chunkIndex < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interviewId is required and chunkIndex must be >= 0", nil)
	}

	now := time.Now().UTC()
	doc := &models.AudioChunk{
		InterviewID: interviewID,
		UserID:      userID,
		ChunkIndex:  chunkIndex,
		Size:        size,
		STTStatus:   "pending",
		Timestamp:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	if err := s.buffers.InsertChunk(ctx, doc); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to insert audio chunk", err)
	}
	return doc, nil
}

func (s *bufferService) MarkSTT(ctx context.Context, interviewID string, chunkIndex int64, rawText string, confidence, nervousness float64, status string, processingMS int64) error {
	const op = "BufferService.MarkSTT"

	if interviewID == "" || chunkIndex < 0 || status == "" {
		return utils.E(utils.CodeInvalidArgument, op, "interviewId, chunkIndex (>=0), and status are required", nil)
	}
	if err := s.buffers.UpdateSTT(ctx, interviewID, chunkIndex, rawText, confidence, nervousness, status, processingMS); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to update stt fields", err)
	}
	return nil
}

func (s *bufferService) ListByInterview(ctx context.Context, interviewID string, limit int64) ([]models.AudioChunk, error) {
	const op = "BufferService.ListByInterview"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interviewId is required", nil)
	}
	out, err := s.buffers.ListByInterview(ctx, interviewID, limit)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list audio chunks", err)
	}
	return out, nil
}
