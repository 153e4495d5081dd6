package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/salonflowhq/salonflow/libs/db"
	"github.com/segmentio/kafka-go"
)

type reminderRequest struct {
	AppointmentID string         `json:"appointment_id"`
	SalonID       string         `json:"salon_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

// NewReminderIntake returns the consumer handler that turns reminder request
// events into scheduler jobs. Malformed events are logged and dropped so the
// consumer keeps advancing; only storage errors are retried.
func NewReminderIntake(pool *db.Pool, repo *Repository, logger *slog.Logger) func(ctx context.Context, msg kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var payload reminderRequest
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid reminder request", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.SalonID == "" || payload.Channel == "" || payload.Recipient == "" || payload.RemindAt == "" {
			logger.Error("missing reminder fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}

		// One job per appointment, send time and channel; rescheduling an
		// appointment produces a new key.
		idempotencyKey := payload.AppointmentID + "|" + payload.RemindAt + "|" + payload.Channel

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := repo.Insert(ctx, tx, Job{
			IdempotencyKey: idempotencyKey,
			AppointmentID:  payload.AppointmentID,
			SalonID:        payload.SalonID,
			Channel:        payload.Channel,
			Recipient:      payload.Recipient,
			RemindAt:       remindAt,
			TemplateData:   payload.TemplateData,
		}); err != nil {
			return err
		}

		return tx.Commit(ctx)
	}
}
