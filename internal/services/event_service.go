package services

import (
	"context"

	"github.com/careerforge/careerforge/internal/models"
	mongorepo "github.com/careerforge/careerforge/internal/repositories/mongo"
	"github.com/careerforge/careerforge/internal/utils"
)

// EventService records socket lifecycle events for later analytics.
type EventService interface {
	Record(ctx context.Context, userID, interviewID, event string, detail map[string]any) error
	ListByInterview(ctx context.Context, interviewID string) ([]models.SessionEvent, error)
}

type eventService struct {
	events mongorepo.EventRepository
}

func NewEventService(events mongorepo.EventRepository) EventService {
	return &eventService{events: events}
}

func (s *eventService) Record(ctx context.Context, userID, interviewID, event string, detail map[string]any) error {
	const op = "EventService.Record"

	if userID == "" || event == "" {
		return utils.E(utils.CodeInvalidArgument, op, "user_id and event are required", nil)
	}
	err := s.events.Insert(ctx, &models.SessionEvent{
		InterviewID: interviewID,
		UserID:      userID,
		Event:       event,
		Detail:      detail,
	})
	if err != nil {
		return utils.E(utils.CodeInternal, op, "failed to record event", err)
	}
	return nil
}

func (s *eventService) ListByInterview(ctx context.Context, interviewID string) ([]models.SessionEvent, error) {
	const op = "EventService.ListByInterview"

	if interviewID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "interview id is required", nil)
	}
	out, err := s.events.ListByInterview(ctx, interviewID, 0)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list events", err)
	}
	return out, nil
}
