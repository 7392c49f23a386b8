package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"

	"churchevents/internal/consumerWorker"
	"churchevents/internal/dto"
	"churchevents/internal/model"
	"churchevents/internal/profile"
	"churchevents/internal/repo"
	"churchevents/pkg/validator"
)

// Register creates a registration for the authenticated user. Preconditions
// run in a fixed order and any failure returns a descriptive message without
// writing anything; the capacity and duplicate checks run inside the same
// transaction that inserts the registration and bumps the counter.
func (s *service) Register(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	eventID := ctx.Param("id")
	if eventID == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid event ID")
		return
	}

	// The contact bundle is optional; missing fields fall back to the
	// stored profile.
	var req dto.CreateRegistrationRequest
	if ctx.Request.Body != nil && ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
			return
		}
	}
	if req.Name == "" {
		req.Name = user.Name
	}
	if req.Email == "" {
		req.Email = user.Email
	}
	if req.Phone == "" {
		req.Phone = user.Phone
	}
	if req.Church == "" {
		req.Church = user.ChurchID
	}
	if req.CPF == "" {
		req.CPF = user.CPF
	}

	if !profile.CanRegister(user) {
		dto.BadResponseError(ctx, dto.RegistrationRefused, profile.RegistrationErrorMessage(user))
		return
	}

	if len(validator.OnlyDigits(req.Phone)) < 10 {
		dto.BadResponseError(ctx, dto.RegistrationRefused, "Número de celular inválido")
		return
	}

	if req.Church == "" {
		dto.BadResponseError(ctx, dto.RegistrationRefused, "Igreja não informada")
		return
	}

	// Denormalize church and pastor names onto the registration so history
	// does not depend on joins. A missing church record is tolerated.
	churchName := req.Church
	pastorName := ""
	if church, err := s.repo.GetChurchByID(ctx.Request.Context(), user.ChurchID); err != nil {
		s.log.Warn().Err(err).Str("church_id", user.ChurchID).Msg("failed to load church for registration")
	} else if church != nil {
		churchName = church.Name
		pastorName = church.PastorName
	}

	registration := &model.Registration{
		ID:         uuid.New().String(),
		EventID:    eventID,
		UserID:     user.ID,
		UserName:   req.Name,
		UserEmail:  req.Email,
		UserPhone:  req.Phone,
		UserChurch: user.ChurchID,
		ChurchName: churchName,
		PastorName: pastorName,
		UserCPF:    validator.OnlyDigits(req.CPF),
	}

	if err := s.repo.RegisterTx(ctx.Request.Context(), registration); err != nil {
		switch {
		case errors.Is(err, repo.ErrEventNotFound):
			dto.EventNotFoundError(ctx)
		case errors.Is(err, repo.ErrEventInactive):
			dto.BadResponseError(ctx, dto.RegistrationRefused, "Este evento não está mais disponível para inscrições")
		case errors.Is(err, repo.ErrEventFull):
			dto.BadResponseError(ctx, dto.RegistrationRefused, "Evento lotado")
		case errors.Is(err, repo.ErrDuplicateRegistration):
			dto.RegistrationDuplicateError(ctx)
		case errors.Is(err, repo.ErrDuplicateCPF):
			dto.BadResponseError(ctx, dto.RegistrationDuplicate, "Já existe uma inscrição com este CPF para este evento")
		default:
			s.log.Error().Err(err).Msg("failed to register for event")
			dto.InternalServerError(ctx)
		}
		return
	}

	s.log.Info().
		Str("registration_id", registration.ID).
		Str("event_id", eventID).
		Str("user_id", user.ID).
		Msg("registration created successfully")

	if s.mail.Enabled() {
		if event, err := s.repo.GetEventByID(ctx.Request.Context(), eventID); err == nil {
			if err := s.mail.SendRegistrationEmail(event.Title, "pending", req.Email); err != nil {
				s.log.Warn().Err(err).Msg("failed to send registration email")
			}
		}
	}

	dto.SuccessCreatedResponse(ctx, dto.RegistrationResult{
		Success:        true,
		Message:        "Inscrição realizada com sucesso!",
		RegistrationID: registration.ID,
	})
}

func (s *service) MyRegistrations(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	regs, err := s.repo.GetRegistrationsByUser(ctx.Request.Context(), user.ID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to get registrations")
		dto.InternalServerError(ctx)
		return
	}

	dto.SuccessResponse(ctx, regs)
}

// DeleteRegistration removes the caller's registration while payment is
// still pending. An existing upstream payment is cancelled best-effort: a
// failed cancel is logged and handed to the retry worker, and the local
// deletion proceeds regardless.
func (s *service) DeleteRegistration(ctx *ginext.Context) {
	user, ok := s.currentUser(ctx)
	if !ok {
		return
	}

	registration, err := s.repo.GetRegistrationByID(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get registration for deletion")
		dto.InternalServerError(ctx)
		return
	}

	if registration.UserID != user.ID {
		dto.ForbiddenError(ctx, "Esta inscrição não pertence a você")
		return
	}

	if registration.PaymentStatus != model.PaymentPending {
		dto.BadResponseError(ctx, dto.RegistrationRefused,
			"Inscrições pagas ou reembolsadas não podem ser excluídas")
		return
	}

	if registration.PaymentID != "" {
		if err := s.pix.CancelPayment(ctx.Request.Context(), registration.PaymentID); err != nil {
			s.log.Warn().
				Err(err).
				Str("payment_id", registration.PaymentID).
				Msg("upstream payment cancellation failed, scheduling retry")
			s.schedulePaymentCancelRetry(registration)
		}
		s.poller.Stop(registration.PaymentID)
	}

	if err := s.repo.DeleteRegistrationTx(ctx.Request.Context(), registration.ID); err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", registration.ID).Msg("failed to delete registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("registration_id", registration.ID).
		Str("event_id", registration.EventID).
		Msg("registration deleted")

	if s.mail.Enabled() {
		if event, err := s.repo.GetEventByID(ctx.Request.Context(), registration.EventID); err == nil {
			if err := s.mail.SendRegistrationEmail(event.Title, "cancelled", registration.UserEmail); err != nil {
				s.log.Warn().Err(err).Msg("failed to send cancellation email")
			}
		}
	}

	dto.SuccessResponse(ctx, dto.RegistrationResult{
		Success: true,
		Message: "Inscrição excluída com sucesso",
	})
}

func (s *service) schedulePaymentCancelRetry(registration *model.Registration) {
	if s.rbt == nil {
		return
	}

	msg := dto.PaymentCancelRetryMessage{
		RegistrationID: registration.ID,
		PaymentID:      registration.PaymentID,
		Attempt:        1,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to marshal cancel-retry message")
		return
	}
	if err := s.rbt.Publish(payload, consumerWorker.RetryDelaySeconds); err != nil {
		s.log.Error().Err(err).Msg("failed to publish cancel-retry message")
	}
}

func (s *service) ApproveRegistration(ctx *ginext.Context) {
	manager, ok := s.requireManager(ctx)
	if !ok {
		return
	}

	registrationID := ctx.Param("id")
	if err := s.repo.ApproveRegistration(ctx.Request.Context(), registrationID, manager.ID); err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", registrationID).Msg("failed to approve registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("registration_id", registrationID).
		Str("approved_by", manager.ID).
		Msg("registration approved")

	dto.SuccessResponse(ctx, dto.RegistrationResult{Success: true, Message: "Inscrição aprovada"})
}

func (s *service) RejectRegistration(ctx *ginext.Context) {
	manager, ok := s.requireManager(ctx)
	if !ok {
		return
	}

	var req dto.RejectRegistrationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, verr.Error())
		return
	}

	registrationID := ctx.Param("id")
	if err := s.repo.RejectRegistration(ctx.Request.Context(), registrationID, manager.ID, req.Reason); err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Str("registration_id", registrationID).Msg("failed to reject registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("registration_id", registrationID).
		Str("rejected_by", manager.ID).
		Msg("registration rejected")

	dto.SuccessResponse(ctx, dto.RegistrationResult{Success: true, Message: "Inscrição rejeitada"})
}

func (s *service) CheckIn(ctx *ginext.Context) {
	manager, ok := s.requireManager(ctx)
	if !ok {
		return
	}

	registrationID := ctx.Param("id")
	registration, err := s.repo.GetRegistrationByID(ctx.Request.Context(), registrationID)
	if err != nil {
		if errors.Is(err, repo.ErrRegistrationNotFound) {
			dto.RegistrationNotFoundError(ctx)
			return
		}
		s.log.Error().Err(err).Msg("failed to get registration for check-in")
		dto.InternalServerError(ctx)
		return
	}

	if registration.CheckedIn {
		dto.SuccessResponse(ctx, dto.RegistrationResult{Success: true, Message: "Participante já tem check-in"})
		return
	}

	if err := s.repo.CheckInRegistration(ctx.Request.Context(), registrationID, manager.ID); err != nil {
		s.log.Error().Err(err).Str("registration_id", registrationID).Msg("failed to check in registration")
		dto.InternalServerError(ctx)
		return
	}

	s.log.Info().
		Str("registration_id", registrationID).
		Str("checked_in_by", manager.ID).
		Time("checked_in_at", time.Now()).
		Msg("participant checked in")

	dto.SuccessResponse(ctx, dto.RegistrationResult{Success: true, Message: "Check-in realizado"})
}
