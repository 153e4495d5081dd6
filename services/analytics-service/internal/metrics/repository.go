package metrics

import (
	"context"
	"encoding/json"
	"time"

	"github.com/salonflowhq/salonflow/libs/db"
	"github.com/salonflowhq/salonflow/libs/kafkax"
)

// Repository owns the analytics tables: raw event rows for auditability and
// per-salon daily rollups for cheap dashboard reads.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

type NotificationMetric struct {
	AppointmentID string
	SalonID       string
	Channel       string
	OccurredAt    time.Time
	Status        string
}

func (r *Repository) RecordNotification(ctx context.Context, m NotificationMetric) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO notification_metrics (appointment_id, salon_id, channel, sent_at, status)
		VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5)
	`, m.AppointmentID, m.SalonID, m.Channel, m.OccurredAt, m.Status); err != nil {
		return err
	}

	if m.SalonID != "" {
		sentInc := 0
		failedInc := 0
		if m.Status == "sent" {
			sentInc = 1
		} else {
			failedInc = 1
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO daily_notification_metrics (salon_id, day, channel, sent_count, failed_count)
			VALUES ($1, $2::date, $3, $4, $5)
			ON CONFLICT (salon_id, day, channel)
			DO UPDATE SET sent_count = daily_notification_metrics.sent_count + EXCLUDED.sent_count,
			              failed_count = daily_notification_metrics.failed_count + EXCLUDED.failed_count,
			              updated_at = now()
		`, m.SalonID, m.OccurredAt.UTC(), m.Channel, sentInc, failedInc); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

type SchedulerDLQEvent struct {
	AppointmentID string
	SalonID       string
	Channel       string
	Recipient     string
	RemindAt      time.Time
	ErrorReason   string
	FailedAt      time.Time
}

func (r *Repository) RecordSchedulerDLQ(ctx context.Context, e SchedulerDLQEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduler_dlq_events (appointment_id, salon_id, channel, recipient, remind_at, error_reason, failed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.AppointmentID, e.SalonID, e.Channel, e.Recipient, e.RemindAt, e.ErrorReason, e.FailedAt)
	return err
}

type SecurityAuditEvent struct {
	EventType string
	ActorID   string
	Metadata  json.RawMessage
	CreatedAt time.Time
}

func (r *Repository) RecordSecurityAudit(ctx context.Context, e SecurityAuditEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO security_audit_events (event_type, actor_id, metadata, created_at)
		VALUES ($1, NULLIF($2, ''), $3, $4)
	`, e.EventType, e.ActorID, e.Metadata, e.CreatedAt)
	return err
}

type AppointmentEvent struct {
	SalonID       string
	AppointmentID string
	StartTime     time.Time
}

// appointmentCounters maps a booking event topic to the rollup column it bumps.
var appointmentCounters = map[string]string{
	"booking.appointment.booked.v1":    "booked_count",
	"booking.appointment.cancelled.v1": "canceled_count",
	"booking.appointment.completed.v1": "completed_count",
	"booking.appointment.no_show.v1":   "no_show_count",
}

// RecordAppointmentEvent inserts the raw event keyed by event_id and bumps the
// per-salon daily counter for the event type. Redelivered events hit the
// ON CONFLICT and leave the rollup untouched.
func (r *Repository) RecordAppointmentEvent(ctx context.Context, meta kafkax.EventMeta, e AppointmentEvent) error {
	column, ok := appointmentCounters[meta.EventType]
	if !ok {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO booking_events (event_id, event_type, salon_id, appointment_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`, meta.EventID, meta.EventType, e.SalonID, e.AppointmentID, e.StartTime.UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_appointment_metrics (salon_id, day, `+column+`)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (salon_id, day)
		DO UPDATE SET `+column+` = daily_appointment_metrics.`+column+` + 1,
		              updated_at = now()
	`, e.SalonID, e.StartTime.UTC()); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type DailyAppointmentRow struct {
	Day            string `json:"day"`
	BookedCount    int    `json:"booked_count"`
	CanceledCount  int    `json:"canceled_count"`
	CompletedCount int    `json:"completed_count"`
	NoShowCount    int    `json:"no_show_count"`
}

func (r *Repository) ListDailyAppointments(ctx context.Context, salonID string, from, to time.Time) ([]DailyAppointmentRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, booked_count, canceled_count, completed_count, no_show_count
		FROM daily_appointment_metrics
		WHERE salon_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day
	`, salonID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyAppointmentRow
	for rows.Next() {
		var row DailyAppointmentRow
		var day time.Time
		if err := rows.Scan(&day, &row.BookedCount, &row.CanceledCount, &row.CompletedCount, &row.NoShowCount); err != nil {
			return nil, err
		}
		row.Day = day.Format("2006-01-02")
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

type DailyNotificationRow struct {
	Day         string `json:"day"`
	Channel     string `json:"channel"`
	SentCount   int    `json:"sent_count"`
	FailedCount int    `json:"failed_count"`
}

func (r *Repository) ListDailyNotifications(ctx context.Context, salonID string, from, to time.Time) ([]DailyNotificationRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, channel, sent_count, failed_count
		FROM daily_notification_metrics
		WHERE salon_id = $1 AND day >= $2::date AND day <= $3::date
		ORDER BY day, channel
	`, salonID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DailyNotificationRow
	for rows.Next() {
		var row DailyNotificationRow
		var day time.Time
		if err := rows.Scan(&day, &row.Channel, &row.SentCount, &row.FailedCount); err != nil {
			return nil, err
		}
		row.Day = day.Format("2006-01-02")
		out = append(out, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
