package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/salonflowhq/salonflow/libs/db"
	"github.com/salonflowhq/salonflow/services/notification-service/internal/email"
	"github.com/salonflowhq/salonflow/services/notification-service/internal/outbox"
	"github.com/salonflowhq/salonflow/services/notification-service/internal/sms"
	"github.com/salonflowhq/salonflow/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

type reminderPayload struct {
	AppointmentID string         `json:"appointment_id"`
	SalonID       string         `json:"salon_id"`
	Channel       string         `json:"channel"`
	Recipient     string         `json:"recipient"`
	RemindAt      string         `json:"remind_at"`
	TemplateData  map[string]any `json:"template_data"`
}

// Dispatcher delivers due reminders over the requested channel, persists the
// outcome and emits notification.sent/notification.failed events.
type Dispatcher struct {
	pool   *db.Pool
	repo   *storage.Repository
	outbox *outbox.Repository
	email  email.Sender
	sms    sms.Sender
	logger *slog.Logger

	// Recipients ending in this suffix fail without a send attempt. Used by
	// the local stack to exercise the failure path end to end.
	failSuffix string
}

func New(pool *db.Pool, repo *storage.Repository, outboxRepo *outbox.Repository, emailSender email.Sender, smsSender sms.Sender, logger *slog.Logger, failSuffix string) *Dispatcher {
	return &Dispatcher{
		pool:       pool,
		repo:       repo,
		outbox:     outboxRepo,
		email:      emailSender,
		sms:        smsSender,
		logger:     logger,
		failSuffix: failSuffix,
	}
}

func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var payload reminderPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		d.logger.Error("invalid reminder payload", "err", err)
		return nil
	}
	if payload.AppointmentID == "" || payload.SalonID == "" || payload.Channel == "" || payload.Recipient == "" || payload.RemindAt == "" {
		d.logger.Error("missing reminder fields")
		return nil
	}
	if _, err := time.Parse(time.RFC3339, payload.RemindAt); err != nil {
		d.logger.Error("invalid remind_at", "err", err)
		return nil
	}

	status := "sent"
	failureReason := ""
	providerID := ""
	if d.failSuffix != "" && strings.HasSuffix(payload.Recipient, d.failSuffix) {
		status = "failed"
		failureReason = "simulated failure"
	}

	if status == "sent" {
		var sendErr error
		providerID, sendErr = d.send(ctx, payload)
		if sendErr != nil {
			status = "failed"
			failureReason = sendErr.Error()
			d.logger.Error("reminder send failed", "err", sendErr, "channel", payload.Channel, "recipient", payload.Recipient)
		}
	}

	if err := d.repo.Insert(ctx, storage.Notification{
		AppointmentID: payload.AppointmentID,
		SalonID:       payload.SalonID,
		Channel:       payload.Channel,
		Recipient:     payload.Recipient,
		Payload:       payload.TemplateData,
		Status:        status,
	}); err != nil {
		d.logger.Error("failed to persist notification", "err", err)
		return err
	}

	if status == "failed" {
		if err := d.emitFailed(ctx, payload, failureReason); err != nil {
			d.logger.Error("failed to enqueue notification.failed", "err", err)
			return err
		}
	} else {
		if err := d.emitSent(ctx, payload, providerID); err != nil {
			d.logger.Error("failed to enqueue notification.sent", "err", err)
			return err
		}
	}

	d.logger.Info("reminder processed", "appointment_id", payload.AppointmentID, "channel", payload.Channel, "status", status)
	return nil
}

func (d *Dispatcher) send(ctx context.Context, payload reminderPayload) (providerID string, err error) {
	body := fmt.Sprintf("Reminder: your appointment %s is at %s.", payload.AppointmentID, payload.RemindAt)
	if name, ok := payload.TemplateData["salon_name"].(string); ok && name != "" {
		body = fmt.Sprintf("[%s] %s", name, body)
	}

	switch strings.ToLower(payload.Channel) {
	case "email":
		if err := d.email.Send(payload.Recipient, "Appointment reminder", body); err != nil {
			return "", err
		}
		return "smtp", nil
	case "sms":
		if err := d.sms.Send(ctx, payload.Recipient, body); err != nil {
			return "", err
		}
		return d.sms.ProviderID(), nil
	default:
		return "", fmt.Errorf("unsupported channel: %s", payload.Channel)
	}
}

func (d *Dispatcher) emitSent(ctx context.Context, payload reminderPayload, providerID string) error {
	if strings.TrimSpace(providerID) == "" {
		providerID = "unknown"
	}
	return d.emit(ctx, payload.AppointmentID, "notification.sent.v1", map[string]any{
		"appointment_id": payload.AppointmentID,
		"salon_id":       payload.SalonID,
		"channel":        payload.Channel,
		"provider_id":    providerID,
		"sent_at":        time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) emitFailed(ctx context.Context, payload reminderPayload, reason string) error {
	return d.emit(ctx, payload.AppointmentID, "notification.failed.v1", map[string]any{
		"appointment_id": payload.AppointmentID,
		"salon_id":       payload.SalonID,
		"channel":        payload.Channel,
		"error_reason":   reason,
		"failed_at":      time.Now().UTC().Format(time.RFC3339),
	})
}

func (d *Dispatcher) emit(ctx context.Context, appointmentID string, eventType string, fields map[string]any) error {
	eventPayload, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := d.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "notification",
		AggregateID:   appointmentID,
		EventType:     eventType,
		Payload:       eventPayload,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
