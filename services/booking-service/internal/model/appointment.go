package model

import "time"

// Appointment statuses. Anything except cancelled and no-show blocks the
// staff member's calendar.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

func Blocking(status string) bool {
	return status != StatusCancelled && status != StatusNoShow
}

type Appointment struct {
	ID            string
	SalonID       string
	ServiceID     string
	StaffID       string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}
