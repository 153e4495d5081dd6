package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/storage"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrStaffNotFound   = errors.New("staff not found")
	ErrInvalidDate     = errors.New("invalid date")
)

// Data is the single-call answer booking-service needs to compute
// availability: salon timezone, the staff member's working window for the
// date's weekday, time-off cover, and the service slot inputs.
type Data struct {
	Timezone        string `json:"timezone"`
	IsWorking       bool   `json:"is_working"`
	OnTimeOff       bool   `json:"on_time_off"`
	WorkStart       string `json:"work_start"`
	WorkEnd         string `json:"work_end"`
	LunchStart      string `json:"lunch_start,omitempty"`
	LunchEnd        string `json:"lunch_end,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
}

type Resolver struct {
	repo *storage.Repository
}

func NewResolver(repo *storage.Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve assembles schedule data for one (staff, service, date) triple.
// The date string is the salon-local calendar day; weekday resolution needs
// no timezone math because the caller already speaks salon-local days.
func (r *Resolver) Resolve(ctx context.Context, salonID, staffID, serviceID, date string) (Data, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Data{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}

	svc, err := r.repo.GetService(ctx, salonID, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Data{}, ErrServiceNotFound
		}
		return Data{}, fmt.Errorf("load service: %w", err)
	}
	if !svc.IsActive {
		return Data{}, ErrServiceNotFound
	}

	data := Data{
		Timezone:        "UTC",
		DurationMinutes: svc.DurationMins,
		BufferMinutes:   svc.BufferMins,
	}
	if profile, err := r.repo.GetOrCreateProfile(ctx, salonID); err == nil && profile.Timezone != "" {
		data.Timezone = profile.Timezone
	}

	avail, found, err := r.repo.GetStaffAvailability(ctx, salonID, staffID, int(day.Weekday()))
	if err != nil {
		return Data{}, fmt.Errorf("load availability: %w", err)
	}
	if !found {
		exists, err := r.repo.StaffExists(ctx, salonID, staffID)
		if err != nil {
			return Data{}, fmt.Errorf("check staff: %w", err)
		}
		if !exists {
			return Data{}, ErrStaffNotFound
		}
		return data, nil
	}
	if !avail.IsAvailable {
		return data, nil
	}

	data.IsWorking = true
	data.WorkStart = avail.StartTime
	data.WorkEnd = avail.EndTime
	if avail.LunchStart != nil && avail.LunchEnd != nil {
		data.LunchStart = *avail.LunchStart
		data.LunchEnd = *avail.LunchEnd
	}

	onTimeOff, err := r.repo.HasTimeOff(ctx, salonID, staffID, date)
	if err != nil {
		return Data{}, fmt.Errorf("check time off: %w", err)
	}
	data.OnTimeOff = onTimeOff
	return data, nil
}
