package availability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultHorizonDays bounds how far ahead a day may be examined. Days past
// the horizon and days before today both yield an empty result.
const DefaultHorizonDays = 90

// DateFormat is the wire format for calendar days.
const DateFormat = "2006-01-02"

// ErrServiceNotFound distinguishes a broken reference (unknown service id)
// from the legitimate "nothing bookable" outcome, which is never an error.
var ErrServiceNotFound = errors.New("service not found")

// Reason explains why a result holds the slots it does. Empty results carry
// the first rule that produced them so the HTTP layer never has to guess.
type Reason string

const (
	ReasonOK              Reason = "ok"
	ReasonDateInPast      Reason = "date_in_past"
	ReasonDateTooFar      Reason = "date_too_far"
	ReasonStaffNotWorking Reason = "staff_not_working"
	ReasonStaffTimeOff    Reason = "staff_time_off"
	ReasonNoSlots         Reason = "no_slots"
)

// Schedule is everything the engine needs to know about one (staff, service,
// date) combination besides existing appointments: the staff member's working
// window for that weekday, whether a time-off range covers the date, and the
// service's slot-length inputs.
type Schedule struct {
	ServiceDurationMinutes int
	ServiceBufferMinutes   int
	IsWorking              bool
	OnTimeOff              bool
	Day                    DaySchedule
	Timezone               string
}

// ScheduleSource resolves schedule data for a calendar day. Implementations
// must return ErrServiceNotFound (possibly wrapped) when the service id does
// not resolve.
type ScheduleSource interface {
	Schedule(ctx context.Context, salonID, staffID, serviceID, date string) (Schedule, error)
}

// AppointmentSource lists the intervals occupied by blocking appointments
// (any status other than cancelled or no-show) for a staff member.
type AppointmentSource interface {
	BlockingIntervals(ctx context.Context, salonID, staffID string, window Interval) ([]Interval, error)
}

// Request identifies one availability computation. Now is the caller's
// reference instant: the engine never reads the wall clock itself, so results
// are reproducible under test and idempotent for identical inputs.
type Request struct {
	SalonID        string
	StaffID        string
	ServiceID      string
	Date           time.Time
	BufferOverride *int
	Now            time.Time
}

// Result is the tagged outcome of a computation. Slots is empty unless
// Reason is ReasonOK.
type Result struct {
	Slots  []time.Time
	Reason Reason
}

// Engine computes bookable start times for a single day. It holds no state
// between calls and never caches: the backing appointment set can change at
// any moment, so every computation is a fresh read.
type Engine struct {
	schedules    ScheduleSource
	appointments AppointmentSource
	horizonDays  int
}

func NewEngine(schedules ScheduleSource, appointments AppointmentSource) *Engine {
	return &Engine{
		schedules:    schedules,
		appointments: appointments,
		horizonDays:  DefaultHorizonDays,
	}
}

// AvailableSlots returns the ordered bookable start instants for the
// requested day. The result is a best-effort hint, not a reservation:
// booking creation re-checks conflicts transactionally.
func (e *Engine) AvailableSlots(ctx context.Context, req Request) (Result, error) {
	day := civilDate(req.Date)
	today := civilDate(req.Now)
	if day.Before(today) {
		return Result{Reason: ReasonDateInPast}, nil
	}
	if day.After(today.AddDate(0, 0, e.horizonDays)) {
		return Result{Reason: ReasonDateTooFar}, nil
	}

	sched, err := e.schedules.Schedule(ctx, req.SalonID, req.StaffID, req.ServiceID, day.Format(DateFormat))
	if err != nil {
		return Result{}, fmt.Errorf("resolve schedule: %w", err)
	}
	if !sched.IsWorking {
		return Result{Reason: ReasonStaffNotWorking}, nil
	}
	if sched.OnTimeOff {
		return Result{Reason: ReasonStaffTimeOff}, nil
	}

	buffer := sched.ServiceBufferMinutes
	if req.BufferOverride != nil {
		buffer = *req.BufferOverride
	}
	slotMinutes := sched.ServiceDurationMinutes + buffer

	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil || sched.Timezone == "" {
		loc = time.UTC
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

	window := Interval{
		Start: dayStart.Add(time.Duration(sched.Day.Work.Start) * time.Minute),
		End:   dayStart.Add(time.Duration(sched.Day.Work.End) * time.Minute),
	}
	busy, err := e.appointments.BlockingIntervals(ctx, req.SalonID, req.StaffID, window)
	if err != nil {
		return Result{}, fmt.Errorf("load blocking appointments: %w", err)
	}

	slots := ComputeSlots(sched.Day, slotMinutes, busy, dayStart)
	if len(slots) == 0 {
		return Result{Reason: ReasonNoSlots}, nil
	}
	return Result{Slots: slots, Reason: ReasonOK}, nil
}

// civilDate strips the time-of-day component: only the calendar day matters
// for validation.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
