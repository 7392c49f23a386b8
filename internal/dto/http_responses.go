package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"

	"churchevents/internal/model"
)

const (
	FieldBadFormat     = "FIELD_BADFORMAT"
	FieldIncorrect     = "FIELD_INCORRECT"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."

	Unauthorized          = "UNAUTHORIZED"
	Forbidden             = "FORBIDDEN"
	EventNotFound         = "EVENT_NOT_FOUND"
	RegistrationNotFound  = "REGISTRATION_NOT_FOUND"
	RegistrationDuplicate = "REGISTRATION_DUPLICATE"
	RegistrationRefused   = "REGISTRATION_REFUSED"
	PaymentRefused        = "PAYMENT_REFUSED"
)

type SignUpRequest struct {
	Name     string `json:"name" validate:"required,min=3,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Token     string `json:"token,omitempty"`
	ExpiresIn int    `json:"expires_in,omitempty"`
}

type UpdateProfileRequest struct {
	Name     string `json:"name" validate:"omitempty,min=3,max=255"`
	Phone    string `json:"phone" validate:"omitempty,brphone"`
	CPF      string `json:"cpf" validate:"omitempty,cpf"`
	ChurchID string `json:"church_id"`
}

type CreateEventRequest struct {
	Title           string     `json:"title" validate:"required,max=255"`
	Description     string     `json:"description"`
	Date            time.Time  `json:"date" validate:"required,future"`
	EndDate         *time.Time `json:"end_date"`
	Location        string     `json:"location"`
	MaxParticipants int        `json:"max_participants" validate:"gt=0"`
	Price           float64    `json:"price" validate:"gte=0"`
	ChurchID        string     `json:"church_id" validate:"required"`
}

// CreateRegistrationRequest carries the contact bundle denormalized onto the
// registration. Missing fields fall back to the stored profile.
type CreateRegistrationRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Church string `json:"church"`
	CPF    string `json:"cpf"`
}

type RejectRegistrationRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type PaymentResponse struct {
	RegistrationID string  `json:"registration_id"`
	EventID        string  `json:"event_id"`
	PaymentID      string  `json:"payment_id"`
	Amount         float64 `json:"amount"`
	Description    string  `json:"description"`
	QRCode         string  `json:"qr_code"`
	QRCodeBase64   string  `json:"qr_code_base64"`
	TicketURL      string  `json:"ticket_url,omitempty"`
}

type PaymentStatusResponse struct {
	PaymentID      string              `json:"payment_id"`
	RegistrationID string              `json:"registration_id"`
	Status         string              `json:"status"`
	PaymentStatus  model.PaymentStatus `json:"payment_status"`
}

type EventResponse struct {
	ID                  string     `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description,omitempty"`
	Date                time.Time  `json:"date"`
	EndDate             *time.Time `json:"end_date,omitempty"`
	Location            string     `json:"location,omitempty"`
	MaxParticipants     int        `json:"max_participants"`
	CurrentParticipants int        `json:"current_participants"`
	AvailableSeats      int        `json:"available_seats"`
	Price               float64    `json:"price"`
	ChurchID            string     `json:"church_id"`
	Status              string     `json:"status"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func NewEventResponse(e *model.Event) EventResponse {
	return EventResponse{
		ID:                  e.ID,
		Title:               e.Title,
		Description:         e.Description,
		Date:                e.Date,
		EndDate:             e.EndDate,
		Location:            e.Location,
		MaxParticipants:     e.MaxParticipants,
		CurrentParticipants: e.CurrentParticipants,
		AvailableSeats:      e.MaxParticipants - e.CurrentParticipants,
		Price:               e.Price,
		ChurchID:            e.ChurchID,
		Status:              string(e.Status),
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

// RegistrationResult is the {success, message} shape every registration
// operation resolves to. Validation failures ride here, never as errors.
type RegistrationResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	RegistrationID string `json:"registration_id,omitempty"`
}

// PaymentCancelRetryMessage schedules an asynchronous retry of an upstream
// payment cancellation through the delayed exchange.
type PaymentCancelRetryMessage struct {
	RegistrationID string `json:"registration_id"`
	PaymentID      string `json:"payment_id"`
	Attempt        int    `json:"attempt"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error: &Error{
			Code: code,
			Desc: desc,
		},
	})
}

func UnauthorizedError(c *ginext.Context, desc string) {
	c.JSON(401, Response{
		Status: "error",
		Error: &Error{
			Code: Unauthorized,
			Desc: desc,
		},
	})
}

func ForbiddenError(c *ginext.Context, desc string) {
	c.JSON(403, Response{
		Status: "error",
		Error: &Error{
			Code: Forbidden,
			Desc: desc,
		},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error: &Error{
			Code: ServiceUnavailable,
			Desc: InternalError,
		},
	})
}

func EventNotFoundError(c *ginext.Context) {
	BadResponseError(c, EventNotFound, "Evento não encontrado")
}

func RegistrationNotFoundError(c *ginext.Context) {
	BadResponseError(c, RegistrationNotFound, "Inscrição não encontrada")
}

func RegistrationDuplicateError(c *ginext.Context) {
	BadResponseError(c, RegistrationDuplicate, "Você já está inscrito neste evento")
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{
		Status: "ok",
		Data:   data,
	})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{
		Status: "ok",
		Data:   data,
	})
}
