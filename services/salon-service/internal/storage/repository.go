package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/salonflowhq/salonflow/libs/db"
)

type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type SalonProfile struct {
	SalonID             string
	Name                string
	Timezone            string
	OffsetsMins         []int
	OnboardingStep      int
	OnboardingCompleted bool
}

func (r *Repository) GetOrCreateProfile(ctx context.Context, salonID string) (SalonProfile, error) {
	// Create a default profile if missing (keeps dev UX smooth while other services mature).
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salon_profiles (salon_id)
		VALUES ($1)
		ON CONFLICT (salon_id) DO NOTHING
	`, salonID)
	if err != nil {
		return SalonProfile{}, err
	}

	var p SalonProfile
	err = r.pool.QueryRow(ctx, `
		SELECT salon_id::text, name, timezone, reminder_offsets_minutes, onboarding_step, onboarding_completed
		FROM salon_profiles
		WHERE salon_id = $1
	`, salonID).Scan(&p.SalonID, &p.Name, &p.Timezone, &p.OffsetsMins, &p.OnboardingStep, &p.OnboardingCompleted)
	return p, err
}

func (r *Repository) UpdateProfile(ctx context.Context, salonID string, name string, timezone string, offsetsMins []int) error {
	if len(offsetsMins) == 0 {
		offsetsMins = []int{1440, 60}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salon_profiles (salon_id, name, timezone, reminder_offsets_minutes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (salon_id) DO UPDATE
		SET name = EXCLUDED.name,
			timezone = EXCLUDED.timezone,
			reminder_offsets_minutes = EXCLUDED.reminder_offsets_minutes,
			updated_at = now()
	`, salonID, name, timezone, offsetsMins)
	return err
}

func (r *Repository) UpdateOnboarding(ctx context.Context, salonID string, step int, completed bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE salon_profiles
		SET onboarding_step = $2,
			onboarding_completed = $3,
			updated_at = now()
		WHERE salon_id = $1
	`, salonID, step, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

type SalonService struct {
	ID           string
	SalonID      string
	Name         string
	Description  string
	DurationMins int
	BufferMins   int
	Price        string
	IsActive     bool
	CreatedAt    time.Time
}

func (r *Repository) CreateService(ctx context.Context, svc SalonService) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO salon_services (id, salon_id, name, description, duration_minutes, buffer_time_minutes, price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, id, svc.SalonID, svc.Name, svc.Description, svc.DurationMins, svc.BufferMins, svc.Price, svc.IsActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdateService(ctx context.Context, svc SalonService) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE salon_services
		SET name = $3,
			description = $4,
			duration_minutes = $5,
			buffer_time_minutes = $6,
			price = $7,
			is_active = $8,
			updated_at = now()
		WHERE id = $1 AND salon_id = $2
	`, svc.ID, svc.SalonID, svc.Name, svc.Description, svc.DurationMins, svc.BufferMins, svc.Price, svc.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListServices(ctx context.Context, salonID string, limit int) ([]SalonService, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, name, description, duration_minutes, buffer_time_minutes, price::text, is_active, created_at
		FROM salon_services
		WHERE salon_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, salonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SalonService
	for rows.Next() {
		var s SalonService
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Name, &s.Description, &s.DurationMins, &s.BufferMins, &s.Price, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) GetService(ctx context.Context, salonID, serviceID string) (SalonService, error) {
	var s SalonService
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, salon_id::text, name, description, duration_minutes, buffer_time_minutes, price::text, is_active, created_at
		FROM salon_services
		WHERE salon_id = $1 AND id = $2
	`, salonID, serviceID).Scan(&s.ID, &s.SalonID, &s.Name, &s.Description, &s.DurationMins, &s.BufferMins, &s.Price, &s.IsActive, &s.CreatedAt)
	return s, err
}

type Staff struct {
	ID       string
	SalonID  string
	Name     string
	IsActive bool
}

// CreateStaff inserts the staff member and seeds a default week:
// Monday through Friday 09:00-17:00, weekend off.
func (r *Repository) CreateStaff(ctx context.Context, salonID, name string, isActive bool) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO staff (salon_id, name, is_active)
		VALUES ($1, $2, $3)
		RETURNING id::text
	`, salonID, name, isActive).Scan(&id)
	if err != nil {
		return "", err
	}

	for dow := 0; dow <= 6; dow++ {
		isAvailable := dow >= 1 && dow <= 5
		if _, err := tx.Exec(ctx, `
			INSERT INTO staff_availability (staff_id, day_of_week, is_available, start_time, end_time)
			VALUES ($1, $2, $3, '09:00', '17:00')
			ON CONFLICT (staff_id, day_of_week) DO NOTHING
		`, id, dow, isAvailable); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListStaff(ctx context.Context, salonID string, limit int) ([]Staff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, name, is_active
		FROM staff
		WHERE salon_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, salonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Staff
	for rows.Next() {
		var s Staff
		if err := rows.Scan(&s.ID, &s.SalonID, &s.Name, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) StaffExists(ctx context.Context, salonID, staffID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM staff WHERE id = $1 AND salon_id = $2
		)
	`, staffID, salonID).Scan(&exists)
	return exists, err
}

type StaffAvailability struct {
	StaffID     string
	DayOfWeek   int
	IsAvailable bool
	StartTime   string
	EndTime     string
	LunchStart  *string
	LunchEnd    *string
}

// GetStaffAvailability returns the weekly row for one weekday. A missing row
// means the staff member does not work that day.
func (r *Repository) GetStaffAvailability(ctx context.Context, salonID, staffID string, dayOfWeek int) (StaffAvailability, bool, error) {
	var a StaffAvailability
	err := r.pool.QueryRow(ctx, `
		SELECT a.staff_id::text, a.day_of_week, a.is_available, a.start_time, a.end_time, a.lunch_start, a.lunch_end
		FROM staff_availability a
		JOIN staff s ON s.id = a.staff_id
		WHERE s.salon_id = $1 AND a.staff_id = $2 AND a.day_of_week = $3
	`, salonID, staffID, dayOfWeek).Scan(&a.StaffID, &a.DayOfWeek, &a.IsAvailable, &a.StartTime, &a.EndTime, &a.LunchStart, &a.LunchEnd)
	if err != nil {
		if err == pgx.ErrNoRows {
			return StaffAvailability{}, false, nil
		}
		return StaffAvailability{}, false, err
	}
	return a, true, nil
}

func (r *Repository) ListStaffAvailability(ctx context.Context, salonID, staffID string) ([]StaffAvailability, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.staff_id::text, a.day_of_week, a.is_available, a.start_time, a.end_time, a.lunch_start, a.lunch_end
		FROM staff_availability a
		JOIN staff s ON s.id = a.staff_id
		WHERE s.salon_id = $1 AND a.staff_id = $2
		ORDER BY a.day_of_week ASC
	`, salonID, staffID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaffAvailability
	for rows.Next() {
		var a StaffAvailability
		if err := rows.Scan(&a.StaffID, &a.DayOfWeek, &a.IsAvailable, &a.StartTime, &a.EndTime, &a.LunchStart, &a.LunchEnd); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) UpsertStaffAvailability(ctx context.Context, salonID string, a StaffAvailability) error {
	exists, err := r.StaffExists(ctx, salonID, a.StaffID)
	if err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_availability (staff_id, day_of_week, is_available, start_time, end_time, lunch_start, lunch_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (staff_id, day_of_week) DO UPDATE
		SET is_available = EXCLUDED.is_available,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			lunch_start = EXCLUDED.lunch_start,
			lunch_end = EXCLUDED.lunch_end
	`, a.StaffID, a.DayOfWeek, a.IsAvailable, a.StartTime, a.EndTime, a.LunchStart, a.LunchEnd)
	return err
}

type TimeOff struct {
	ID        string
	StaffID   string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
	CreatedAt time.Time
}

// CreateTimeOff records an inclusive calendar-date range during which the
// staff member is away.
func (r *Repository) CreateTimeOff(ctx context.Context, salonID, staffID string, startDate, endDate time.Time, reason string) (string, error) {
	exists, err := r.StaffExists(ctx, salonID, staffID)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", pgx.ErrNoRows
	}

	id := uuid.NewString()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO staff_time_off (id, staff_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4, $5)
	`, id, staffID, startDate, endDate, reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListTimeOff(ctx context.Context, salonID, staffID string, limit int) ([]TimeOff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT t.id::text, t.staff_id::text, t.start_date, t.end_date, t.reason, t.created_at
		FROM staff_time_off t
		JOIN staff s ON s.id = t.staff_id
		WHERE s.salon_id = $1 AND t.staff_id = $2
		ORDER BY t.start_date ASC
		LIMIT $3
	`, salonID, staffID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimeOff
	for rows.Next() {
		var t TimeOff
		if err := rows.Scan(&t.ID, &t.StaffID, &t.StartDate, &t.EndDate, &t.Reason, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteTimeOff(ctx context.Context, salonID, timeOffID string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM staff_time_off t
		USING staff s
		WHERE t.staff_id = s.id
		  AND s.salon_id = $1
		  AND t.id = $2
	`, salonID, timeOffID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// HasTimeOff reports whether any inclusive date range covers the given day.
func (r *Repository) HasTimeOff(ctx context.Context, salonID, staffID string, date string) (bool, error) {
	var covered bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM staff_time_off t
			JOIN staff s ON s.id = t.staff_id
			WHERE s.salon_id = $1
			  AND t.staff_id = $2
			  AND t.start_date <= $3::date
			  AND t.end_date >= $3::date
		)
	`, salonID, staffID, date).Scan(&covered)
	return covered, err
}

type Package struct {
	ID           string
	SalonID      string
	Name         string
	Sessions     int
	ValidityDays int
	Price        string
	IsActive     bool
	CreatedAt    time.Time
}

func (r *Repository) CreatePackage(ctx context.Context, p Package) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO packages (id, salon_id, name, sessions, validity_days, price, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, p.SalonID, p.Name, p.Sessions, p.ValidityDays, p.Price, p.IsActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) UpdatePackage(ctx context.Context, p Package) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE packages
		SET name = $3,
			sessions = $4,
			validity_days = $5,
			price = $6,
			is_active = $7,
			updated_at = now()
		WHERE id = $1 AND salon_id = $2
	`, p.ID, p.SalonID, p.Name, p.Sessions, p.ValidityDays, p.Price, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *Repository) ListPackages(ctx context.Context, salonID string, limit int) ([]Package, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, salon_id::text, name, sessions, validity_days, price::text, is_active, created_at
		FROM packages
		WHERE salon_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, salonID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Package
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.SalonID, &p.Name, &p.Sessions, &p.ValidityDays, &p.Price, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
