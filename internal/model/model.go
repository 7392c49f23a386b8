package model

import "time"

type UserRole string

const (
	RoleMember            UserRole = "membro"
	RoleLocalSecretary    UserRole = "secretario_local"
	RolePastor            UserRole = "pastor"
	RoleRegionalSecretary UserRole = "secretario_regional"
)

// CanManageRegistrations reports whether the role may approve, reject or
// check in registrations.
func (r UserRole) CanManageRegistrations() bool {
	switch r {
	case RoleLocalSecretary, RolePastor, RoleRegionalSecretary:
		return true
	}
	return false
}

type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCanceled  EventStatus = "canceled"
	EventCompleted EventStatus = "completed"
	EventEnded     EventStatus = "ended"
)

type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationRejected  RegistrationStatus = "rejected"
	RegistrationConfirmed RegistrationStatus = "confirmed"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type User struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Phone        string    `db:"phone" json:"phone"`
	CPF          string    `db:"cpf" json:"cpf"`
	ChurchID     string    `db:"church_id" json:"church_id"`
	Role         UserRole  `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

type Church struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	Address    string    `db:"address" json:"address"`
	Region     string    `db:"region" json:"region"`
	PastorName string    `db:"pastor_name" json:"pastor_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

type Event struct {
	ID                  string      `db:"id" json:"id"`
	Title               string      `db:"title" json:"title"`
	Description         string      `db:"description" json:"description,omitempty"`
	Date                time.Time   `db:"date" json:"date"`
	EndDate             *time.Time  `db:"end_date" json:"end_date,omitempty"`
	Location            string      `db:"location" json:"location,omitempty"`
	MaxParticipants     int         `db:"max_participants" json:"max_participants"`
	CurrentParticipants int         `db:"current_participants" json:"current_participants"`
	Price               float64     `db:"price" json:"price"`
	ChurchID            string      `db:"church_id" json:"church_id"`
	Status              EventStatus `db:"status" json:"status"`
	CreatedBy           string      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt           time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time   `db:"updated_at" json:"updated_at"`
}

// Registration links one user to one event. Contact fields are denormalized
// at registration time so history survives later profile edits.
type Registration struct {
	ID              string             `db:"id" json:"id"`
	EventID         string             `db:"event_id" json:"event_id"`
	UserID          string             `db:"user_id" json:"user_id"`
	UserName        string             `db:"user_name" json:"user_name"`
	UserEmail       string             `db:"user_email" json:"user_email"`
	UserPhone       string             `db:"user_phone" json:"user_phone"`
	UserChurch      string             `db:"user_church" json:"user_church"`
	ChurchName      string             `db:"church_name" json:"church_name"`
	PastorName      string             `db:"pastor_name" json:"pastor_name"`
	UserCPF         string             `db:"user_cpf" json:"user_cpf,omitempty"`
	Status          RegistrationStatus `db:"status" json:"status"`
	PaymentStatus   PaymentStatus      `db:"payment_status" json:"payment_status"`
	PaymentID       string             `db:"payment_id" json:"payment_id,omitempty"`
	PaymentDate     *time.Time         `db:"payment_date" json:"payment_date,omitempty"`
	ApprovedBy      string             `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt      *time.Time         `db:"approved_at" json:"approved_at,omitempty"`
	RejectionReason string             `db:"rejection_reason" json:"rejection_reason,omitempty"`
	RejectedBy      string             `db:"rejected_by" json:"rejected_by,omitempty"`
	CheckedIn       bool               `db:"checked_in" json:"checked_in"`
	CheckedInAt     *time.Time         `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CheckedInBy     string             `db:"checked_in_by" json:"checked_in_by,omitempty"`
	CreatedAt       time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `db:"updated_at" json:"updated_at"`
}

// CountsTowardCapacity reports whether the registration occupies a seat.
// Matches the statuses the counter sync treats as active.
func (s RegistrationStatus) CountsTowardCapacity() bool {
	switch s {
	case RegistrationPending, RegistrationApproved, RegistrationConfirmed:
		return true
	}
	return false
}
