package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"churchevents/internal/model"
)

var (
	ErrEventNotFound         = errors.New("event not found")
	ErrEventInactive         = errors.New("event is not active")
	ErrEventFull             = errors.New("event is full")
	ErrDuplicateRegistration = errors.New("duplicate registration")
	ErrDuplicateCPF          = errors.New("duplicate cpf registration")
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrUserNotFound          = errors.New("user not found")
)

type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateUserProfile(ctx context.Context, u *model.User) error
	CPFInUseByOther(ctx context.Context, cpf, userID string) (bool, error)

	GetAllChurches(ctx context.Context) ([]model.Church, error)
	GetChurchByID(ctx context.Context, id string) (*model.Church, error)

	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	GetActiveEvents(ctx context.Context) ([]model.Event, error)
	CountActiveRegistrations(ctx context.Context, eventID string) (int, error)
	SetParticipantCount(ctx context.Context, eventID string, count int) error

	RegisterTx(ctx context.Context, reg *model.Registration) error
	GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error)
	GetRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error)
	SetRegistrationPaymentID(ctx context.Context, registrationID, paymentID string) error
	MarkRegistrationPaid(ctx context.Context, registrationID string) error
	ApproveRegistration(ctx context.Context, registrationID, approverID string) error
	RejectRegistration(ctx context.Context, registrationID, rejectorID, reason string) error
	CheckInRegistration(ctx context.Context, registrationID, byUserID string) error
	DeleteRegistrationTx(ctx context.Context, registrationID string) error

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.up.sql")
}

func (r *repository) MigrateDown(migrationsDir string) error {
	return r.applyMigrations(migrationsDir, "*.down.sql")
}

func (r *repository) applyMigrations(migrationsDir, pattern string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, pattern))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations %s applied from %s", pattern, migrationsDir)
	return nil
}

func (r *repository) CreateUser(ctx context.Context, u *model.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, phone, cpf, church_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Phone, u.CPF, u.ChurchID, u.Role,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

const userColumns = `id, name, email, password_hash, phone, cpf, church_id, role, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &u.CPF,
		&u.ChurchID, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

func (r *repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (r *repository) UpdateUserProfile(ctx context.Context, u *model.User) error {
	query := `
		UPDATE users
		SET name = $1, phone = $2, cpf = $3, church_id = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING id
	`
	var id string
	if err := r.db.QueryRowContext(ctx, query,
		u.Name, u.Phone, u.CPF, u.ChurchID, u.ID,
	).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to update user profile: %w", err)
	}
	return nil
}

func (r *repository) CPFInUseByOther(ctx context.Context, cpf, userID string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM users
		WHERE cpf = $1 AND cpf <> '' AND id <> $2
	`, cpf, userID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check cpf uniqueness: %w", err)
	}
	return count > 0, nil
}

func (r *repository) GetAllChurches(ctx context.Context) ([]model.Church, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, address, region, pastor_name, created_at, updated_at
		FROM churches
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get churches: %w", err)
	}
	defer rows.Close()

	var churches []model.Church
	for rows.Next() {
		var c model.Church
		if err := rows.Scan(
			&c.ID, &c.Name, &c.Address, &c.Region, &c.PastorName, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan church: %w", err)
		}
		churches = append(churches, c)
	}

	return churches, rows.Err()
}

func (r *repository) GetChurchByID(ctx context.Context, id string) (*model.Church, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, address, region, pastor_name, created_at, updated_at
		FROM churches
		WHERE id = $1
	`, id)

	var c model.Church
	if err := row.Scan(
		&c.ID, &c.Name, &c.Address, &c.Region, &c.PastorName, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get church: %w", err)
	}
	return &c, nil
}

const eventColumns = `id, title, description, date, end_date, location,
	max_participants, current_participants, price, church_id, status,
	created_by, created_at, updated_at`

func scanEvent(scan func(dest ...any) error) (*model.Event, error) {
	var e model.Event
	if err := scan(
		&e.ID, &e.Title, &e.Description, &e.Date, &e.EndDate, &e.Location,
		&e.MaxParticipants, &e.CurrentParticipants, &e.Price, &e.ChurchID,
		&e.Status, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	query := `
		INSERT INTO events (id, title, description, date, end_date, location,
			max_participants, current_participants, price, church_id, status, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, $11, NOW(), NOW())
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, e.Date, e.EndDate, e.Location,
		e.MaxParticipants, e.Price, e.ChurchID, e.Status, e.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	e, err := scanEvent(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

func (r *repository) GetActiveEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE status = 'active'
		ORDER BY date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}

	return events, rows.Err()
}

// CountActiveRegistrations counts the registrations that occupy a seat:
// everything except rejected and cancelled ones.
func (r *repository) CountActiveRegistrations(ctx context.Context, eventID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM registrations
		WHERE event_id = $1 AND status IN ('pending', 'approved', 'confirmed')
	`, eventID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

func (r *repository) SetParticipantCount(ctx context.Context, eventID string, count int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET current_participants = $1, updated_at = NOW()
		WHERE id = $2
	`, count, eventID)
	if err != nil {
		return fmt.Errorf("failed to set participant count: %w", err)
	}
	return nil
}

// RegisterTx inserts a registration and increments the event's participant
// counter in one transaction. The event row is locked for the duration, so
// capacity and duplicate checks cannot race past each other.
func (r *repository) RegisterTx(ctx context.Context, reg *model.Registration) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var (
		status              model.EventStatus
		currentParticipants int
		maxParticipants     int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, current_participants, max_participants
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, reg.EventID).Scan(&status, &currentParticipants, &maxParticipants)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("failed to lock event: %w", err)
	}

	if status != model.EventActive {
		_ = tx.Rollback()
		return ErrEventInactive
	}

	if currentParticipants >= maxParticipants {
		_ = tx.Rollback()
		return ErrEventFull
	}

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM registrations
		WHERE event_id = $1 AND user_id = $2
	`, reg.EventID, reg.UserID).Scan(&existing)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to check duplicate registration: %w", err)
	}
	if existing > 0 {
		_ = tx.Rollback()
		return ErrDuplicateRegistration
	}

	if reg.UserCPF != "" {
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM registrations
			WHERE event_id = $1 AND user_cpf = $2
		`, reg.EventID, reg.UserCPF).Scan(&existing)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to check duplicate cpf: %w", err)
		}
		if existing > 0 {
			_ = tx.Rollback()
			return ErrDuplicateCPF
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO registrations (id, event_id, user_id, user_name, user_email,
			user_phone, user_church, church_name, pastor_name, user_cpf,
			status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'pending', 'pending', NOW(), NOW())
	`, reg.ID, reg.EventID, reg.UserID, reg.UserName, reg.UserEmail,
		reg.UserPhone, reg.UserChurch, reg.ChurchName, reg.PastorName, reg.UserCPF)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to create registration: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events
		SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1
	`, reg.EventID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to increment participant count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const registrationColumns = `id, event_id, user_id, user_name, user_email,
	user_phone, user_church, church_name, pastor_name, user_cpf,
	status, payment_status, payment_id, payment_date,
	approved_by, approved_at, rejection_reason, rejected_by,
	checked_in, checked_in_at, checked_in_by, created_at, updated_at`

func scanRegistration(scan func(dest ...any) error) (*model.Registration, error) {
	var reg model.Registration
	if err := scan(
		&reg.ID, &reg.EventID, &reg.UserID, &reg.UserName, &reg.UserEmail,
		&reg.UserPhone, &reg.UserChurch, &reg.ChurchName, &reg.PastorName, &reg.UserCPF,
		&reg.Status, &reg.PaymentStatus, &reg.PaymentID, &reg.PaymentDate,
		&reg.ApprovedBy, &reg.ApprovedAt, &reg.RejectionReason, &reg.RejectedBy,
		&reg.CheckedIn, &reg.CheckedInAt, &reg.CheckedInBy, &reg.CreatedAt, &reg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (r *repository) GetRegistrationByID(ctx context.Context, id string) (*model.Registration, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+registrationColumns+` FROM registrations WHERE id = $1`, id)
	reg, err := scanRegistration(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return reg, nil
}

func (r *repository) GetRegistrationsByUser(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+registrationColumns+`
		FROM registrations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get registrations: %w", err)
	}
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}

	return regs, rows.Err()
}

func (r *repository) SetRegistrationPaymentID(ctx context.Context, registrationID, paymentID string) error {
	return r.updateRegistration(ctx, registrationID, `
		UPDATE registrations
		SET payment_id = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id
	`, paymentID, registrationID)
}

// MarkRegistrationPaid records the settled payment projection: the payment
// status flips to paid with a payment date, and the registration is
// confirmed.
func (r *repository) MarkRegistrationPaid(ctx context.Context, registrationID string) error {
	return r.updateRegistration(ctx, registrationID, `
		UPDATE registrations
		SET payment_status = 'paid', payment_date = NOW(), status = 'confirmed', updated_at = NOW()
		WHERE id = $1
		RETURNING id
	`, registrationID)
}

func (r *repository) ApproveRegistration(ctx context.Context, registrationID, approverID string) error {
	return r.updateRegistration(ctx, registrationID, `
		UPDATE registrations
		SET status = 'approved', approved_by = $1, approved_at = NOW(), updated_at = NOW()
		WHERE id = $2
		RETURNING id
	`, approverID, registrationID)
}

func (r *repository) RejectRegistration(ctx context.Context, registrationID, rejectorID, reason string) error {
	return r.updateRegistration(ctx, registrationID, `
		UPDATE registrations
		SET status = 'rejected', rejected_by = $1, rejection_reason = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING id
	`, rejectorID, reason, registrationID)
}

func (r *repository) CheckInRegistration(ctx context.Context, registrationID, byUserID string) error {
	return r.updateRegistration(ctx, registrationID, `
		UPDATE registrations
		SET checked_in = TRUE, checked_in_at = NOW(), checked_in_by = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING id
	`, byUserID, registrationID)
}

func (r *repository) updateRegistration(ctx context.Context, registrationID, query string, args ...any) error {
	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to update registration %s: %w", registrationID, err)
	}
	return nil
}

// DeleteRegistrationTx removes a registration and decrements the event's
// participant counter, floored at zero, in one transaction.
func (r *repository) DeleteRegistrationTx(ctx context.Context, registrationID string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var eventID string
	err = tx.QueryRowContext(ctx, `
		DELETE FROM registrations
		WHERE id = $1
		RETURNING event_id
	`, registrationID).Scan(&eventID)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to delete registration: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE events
		SET current_participants = GREATEST(current_participants - 1, 0), updated_at = NOW()
		WHERE id = $1
	`, eventID)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to decrement participant count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
