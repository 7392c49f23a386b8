package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wb-go/wbf/ginext"

	"churchevents/internal/dto"
	"churchevents/internal/model"
	"churchevents/internal/pix"
	"churchevents/internal/repo"
)

// CreatePayment returns the PIX payload for a registration, creating the
// upstream payment on first call. Calling it again re-displays the existing
// payment instead of charging twice.
func (s *service) CreatePayment(ctx *ginext.Context) {
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
		s.log.Error().Err(err).Msg("failed to get registration for payment")
		dto.InternalServerError(ctx)
		return
	}

	if registration.UserID != user.ID {
		dto.ForbiddenError(ctx, "Esta inscrição não pertence a você")
		return
	}

	if registration.PaymentStatus == model.PaymentPaid {
		dto.BadResponseError(ctx, dto.PaymentRefused, "Esta inscrição já foi paga")
		return
	}

	event, err := s.repo.GetEventByID(ctx.Request.Context(), registration.EventID)
	if err != nil {
		dto.EventNotFoundError(ctx)
		return
	}

	// Existing payment: re-display the same QR payload when the upstream
	// refetch succeeds and is complete. Any failure falls through to
	// creating a fresh payment.
	if registration.PaymentID != "" {
		if payload, ok := s.refetchPayment(ctx.Request.Context(), registration); ok {
			dto.SuccessResponse(ctx, toPaymentResponse(registration, event, payload))
			return
		}
		s.log.Warn().
			Str("payment_id", registration.PaymentID).
			Msg("existing payment refetch failed or incomplete, creating a new one")
	}

	payload, err := s.createPayment(ctx.Request.Context(), registration, event, user)
	if err != nil {
		s.log.Error().Err(err).Str("registration_id", registration.ID).Msg("failed to create payment")
		dto.BadResponseError(ctx, dto.PaymentRefused, err.Error())
		return
	}

	s.watchPayment(payload.ID, registration.ID, registration.UserEmail, event.Title)

	dto.SuccessResponse(ctx, toPaymentResponse(registration, event, payload))
}

func (s *service) refetchPayment(ctx context.Context, registration *model.Registration) (*pix.PaymentData, bool) {
	status, err := s.pix.GetStatus(ctx, registration.PaymentID, registration.ID)
	if err != nil {
		return nil, false
	}

	payload, err := s.pix.GetPayment(ctx, registration.PaymentID)
	if err != nil || !payload.HasQRPayload() {
		return nil, false
	}

	s.applyPaymentStatus(registration, status)

	if err := pix.FillQRBase64(payload); err != nil {
		s.log.Warn().Err(err).Msg("failed to render qr code image")
	}
	return payload, true
}

func (s *service) createPayment(ctx context.Context, registration *model.Registration, event *model.Event, user *model.User) (*pix.PaymentData, error) {
	first, last := splitName(registration.UserName)

	req := pix.PaymentRequest{
		TransactionAmount: event.Price,
		Description:       fmt.Sprintf("Inscrição: %s - %s", event.Title, registration.UserName),
		PaymentMethodID:   "pix",
		Payer: pix.Payer{
			Email:     registration.UserEmail,
			FirstName: first,
			LastName:  last,
		},
		Metadata: pix.Metadata{
			RegistrationID: registration.ID,
			EventID:        event.ID,
			EventName:      event.Title,
			UserID:         user.ID,
			UserName:       registration.UserName,
		},
	}

	payload, err := s.pix.CreatePayment(ctx, req)
	if err != nil {
		// The registration keeps no payment id, so the next attempt is a
		// clean retry.
		return nil, err
	}

	if err := s.repo.SetRegistrationPaymentID(ctx, registration.ID, payload.ID); err != nil {
		s.log.Error().Err(err).
			Str("registration_id", registration.ID).
			Str("payment_id", payload.ID).
			Msg("failed to persist payment id")
		return nil, err
	}
	registration.PaymentID = payload.ID

	if err := pix.FillQRBase64(payload); err != nil {
		s.log.Warn().Err(err).Msg("failed to render qr code image")
	}

	s.log.Info().
		Str("registration_id", registration.ID).
		Str("payment_id", payload.ID).
		Msg("payment created")

	return payload, nil
}

// watchPayment starts a polling session that projects terminal settlement
// statuses onto the registration. A session already running for the same
// payment is left alone.
func (s *service) watchPayment(paymentID, registrationID, userEmail, eventTitle string) {
	err := s.poller.Start(context.Background(), paymentID, registrationID, func(status *pix.StatusResponse) {
		if status.Status != pix.StatusApproved {
			return
		}

		bctx, cancel := background(30 * time.Second)
		defer cancel()

		if err := s.repo.MarkRegistrationPaid(bctx, registrationID); err != nil {
			s.log.Error().Err(err).
				Str("registration_id", registrationID).
				Msg("failed to mark registration paid")
			return
		}

		s.log.Info().
			Str("registration_id", registrationID).
			Str("payment_id", paymentID).
			Msg("payment approved, registration confirmed")

		if s.mail.Enabled() {
			if err := s.mail.SendRegistrationEmail(eventTitle, "paid", userEmail); err != nil {
				s.log.Warn().Err(err).Msg("failed to send payment confirmation email")
			}
		}
	})
	if err != nil && !errors.Is(err, pix.ErrAlreadyPolling) {
		s.log.Error().Err(err).Str("payment_id", paymentID).Msg("failed to start payment polling")
	}
}

// PaymentStatus performs a single manual status check, independent of any
// running polling session, and applies the result to the registration.
func (s *service) PaymentStatus(ctx *ginext.Context) {
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
		s.log.Error().Err(err).Msg("failed to get registration for status check")
		dto.InternalServerError(ctx)
		return
	}

	if registration.UserID != user.ID {
		dto.ForbiddenError(ctx, "Esta inscrição não pertence a você")
		return
	}

	if registration.PaymentID == "" {
		dto.BadResponseError(ctx, dto.PaymentRefused, "Esta inscrição ainda não tem pagamento")
		return
	}

	status, err := s.poller.CheckOnce(ctx.Request.Context(), registration.PaymentID, registration.ID)
	if err != nil {
		s.log.Error().Err(err).Str("payment_id", registration.PaymentID).Msg("manual status check failed")
		dto.InternalServerError(ctx)
		return
	}

	s.applyPaymentStatus(registration, status)

	dto.SuccessResponse(ctx, dto.PaymentStatusResponse{
		PaymentID:      registration.PaymentID,
		RegistrationID: registration.ID,
		Status:         status.Status,
		PaymentStatus:  registration.PaymentStatus,
	})
}

// applyPaymentStatus updates the locally cached payment projection when the
// upstream status settled as approved.
func (s *service) applyPaymentStatus(registration *model.Registration, status *pix.StatusResponse) {
	if status.Status != pix.StatusApproved || registration.PaymentStatus == model.PaymentPaid {
		return
	}

	bctx, cancel := background(30 * time.Second)
	defer cancel()

	if err := s.repo.MarkRegistrationPaid(bctx, registration.ID); err != nil {
		s.log.Error().Err(err).
			Str("registration_id", registration.ID).
			Msg("failed to mark registration paid")
		return
	}
	registration.PaymentStatus = model.PaymentPaid
	registration.Status = model.RegistrationConfirmed
	s.poller.Stop(registration.PaymentID)
}

func toPaymentResponse(registration *model.Registration, event *model.Event, payload *pix.PaymentData) dto.PaymentResponse {
	return dto.PaymentResponse{
		RegistrationID: registration.ID,
		EventID:        event.ID,
		PaymentID:      payload.ID,
		Amount:         event.Price,
		Description:    fmt.Sprintf("Inscrição: %s", event.Title),
		QRCode:         payload.QRCode,
		QRCodeBase64:   payload.QRCodeBase64,
		TicketURL:      payload.TicketURL,
	}
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
