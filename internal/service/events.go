package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"churchevents/internal/dto"
	"churchevents/internal/model"
	"churchevents/pkg/validator"
)

func (s *service) CreateEvent(ctx *ginext.Context) {
	user, ok := s.requireManager(ctx)
	if !ok {
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		s.log.Error().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	if verr := validator.Validate(ctx, req); verr != nil {
		s.log.Error().Msgf("validation failed: %v", verr)
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	event := &model.Event{
		ID:              uuid.New().String(),
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date,
		EndDate:         req.EndDate,
		Location:        req.Location,
		MaxParticipants: req.MaxParticipants,
		Price:           req.Price,
		ChurchID:        req.ChurchID,
		Status:          model.EventActive,
		CreatedBy:       user.ID,
	}

	if err := s.repo.CreateEvent(ctx.Request.Context(), event); err != nil {
		s.log.Error().Err(err).Msg("failed to create event in DB")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().Str("event_id", event.ID).Msg("event created successfully")
	dto.SuccessCreatedResponse(ctx, dto.NewEventResponse(event))
}

// GetAllEvents lists active events. Before responding it reconciles each
// event's cached participant counter against the registrations actually
// stored, repairing any drift left by concurrent counter mutations.
func (s *service) GetAllEvents(ctx *ginext.Context) {
	events, err := s.repo.GetActiveEvents(ctx.Request.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to get active events")
		dto.InternalServerError(ctx)
		return
	}

	s.syncParticipantCounts(ctx.Request.Context(), events)

	resp := make([]dto.EventResponse, 0, len(events))
	for i := range events {
		resp = append(resp, dto.NewEventResponse(&events[i]))
	}

	dto.SuccessResponse(ctx, resp)
}

// syncParticipantCounts corrects cached counters concurrently, one goroutine
// per event. A failed correction is logged and skipped; the others proceed.
func (s *service) syncParticipantCounts(ctx context.Context, events []model.Event) {
	var wg sync.WaitGroup
	for i := range events {
		wg.Add(1)
		go func(e *model.Event) {
			defer wg.Done()

			actual, err := s.repo.CountActiveRegistrations(ctx, e.ID)
			if err != nil {
				s.log.Error().Err(err).Str("event_id", e.ID).Msg("failed to count registrations for sync")
				return
			}
			if actual == e.CurrentParticipants {
				return
			}

			if err := s.repo.SetParticipantCount(ctx, e.ID, actual); err != nil {
				s.log.Error().Err(err).Str("event_id", e.ID).Msg("failed to correct participant count")
				return
			}

			s.log.Info().
				Str("event_id", e.ID).
				Int("cached", e.CurrentParticipants).
				Int("actual", actual).
				Msg("participant count corrected")
			e.CurrentParticipants = actual
		}(&events[i])
	}
	wg.Wait()
}

func (s *service) GetEvent(ctx *ginext.Context) {
	event, err := s.repo.GetEventByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}
	dto.SuccessResponse(ctx, dto.NewEventResponse(event))
}
