package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/salonflowhq/salonflow/libs/config"
	"github.com/salonflowhq/salonflow/libs/db"
	"github.com/salonflowhq/salonflow/libs/httpx"
	"github.com/salonflowhq/salonflow/libs/kafkax"
	otelx "github.com/salonflowhq/salonflow/libs/otel"
	"github.com/salonflowhq/salonflow/libs/runtime"
	"github.com/salonflowhq/salonflow/services/analytics-service/internal/consumer"
	"github.com/salonflowhq/salonflow/services/analytics-service/internal/handlers"
	"github.com/salonflowhq/salonflow/services/analytics-service/internal/inbox"
	"github.com/salonflowhq/salonflow/services/analytics-service/internal/metrics"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	service := config.String("SERVICE_NAME", "analytics-service")
	port, err := config.Port("PORT", "8086")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	inboxRepo := inbox.NewRepository(pool)
	repo := metrics.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "analytics-service")
	startConsumer := func(topic string, handle func(ctx context.Context, msg kafka.Message) error) {
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, handle)
		go c.Run(ctx)
	}

	handleNotification := func(status string) func(ctx context.Context, msg kafka.Message) error {
		return func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				AppointmentID string `json:"appointment_id"`
				SalonID       string `json:"salon_id"`
				Channel       string `json:"channel"`
				SentAt        string `json:"sent_at"`
				FailedAt      string `json:"failed_at"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid notification payload", "err", err)
				return nil
			}
			ts := payload.SentAt
			if status == "failed" {
				ts = payload.FailedAt
			}
			if payload.AppointmentID == "" || payload.Channel == "" || ts == "" {
				logger.Error("missing notification fields")
				return nil
			}
			occurredAt, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				logger.Error("invalid notification timestamp", "err", err)
				return nil
			}

			if err := repo.RecordNotification(ctx, metrics.NotificationMetric{
				AppointmentID: payload.AppointmentID,
				SalonID:       payload.SalonID,
				Channel:       payload.Channel,
				OccurredAt:    occurredAt,
				Status:        status,
			}); err != nil {
				logger.Error("failed to record notification metric", "err", err)
				return err
			}
			logger.Info("notification metric recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel, "status", status)
			return nil
		}
	}
	startConsumer("notification.sent.v1", handleNotification("sent"))
	startConsumer("notification.failed.v1", handleNotification("failed"))

	startConsumer("scheduler.reminder.dlq.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			SalonID       string `json:"salon_id"`
			Channel       string `json:"channel"`
			Recipient     string `json:"recipient"`
			RemindAt      string `json:"remind_at"`
			ErrorReason   string `json:"error_reason"`
			FailedAt      string `json:"failed_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid dlq payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.SalonID == "" || payload.Channel == "" || payload.Recipient == "" || payload.ErrorReason == "" {
			logger.Error("missing dlq fields")
			return nil
		}
		remindAt, err := time.Parse(time.RFC3339, payload.RemindAt)
		if err != nil {
			logger.Error("invalid remind_at", "err", err)
			return nil
		}
		failedAt, err := time.Parse(time.RFC3339, payload.FailedAt)
		if err != nil {
			logger.Error("invalid failed_at", "err", err)
			return nil
		}

		if err := repo.RecordSchedulerDLQ(ctx, metrics.SchedulerDLQEvent{
			AppointmentID: payload.AppointmentID,
			SalonID:       payload.SalonID,
			Channel:       payload.Channel,
			Recipient:     payload.Recipient,
			RemindAt:      remindAt,
			ErrorReason:   payload.ErrorReason,
			FailedAt:      failedAt,
		}); err != nil {
			logger.Error("failed to record dlq event", "err", err)
			return err
		}
		logger.Warn("scheduler dlq recorded", "appointment_id", payload.AppointmentID, "channel", payload.Channel)
		return nil
	})

	startConsumer("auth.audit.v1", func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			EventType string          `json:"event_type"`
			ActorID   string          `json:"actor_id"`
			Metadata  json.RawMessage `json:"metadata"`
			CreatedAt string          `json:"created_at"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid auth audit payload", "err", err)
			return nil
		}
		if payload.EventType == "" || payload.CreatedAt == "" {
			logger.Error("missing auth audit fields")
			return nil
		}
		createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
		if err != nil {
			logger.Error("invalid auth audit created_at", "err", err)
			return nil
		}

		if err := repo.RecordSecurityAudit(ctx, metrics.SecurityAuditEvent{
			EventType: payload.EventType,
			ActorID:   payload.ActorID,
			Metadata:  payload.Metadata,
			CreatedAt: createdAt,
		}); err != nil {
			logger.Error("failed to record security audit event", "err", err)
			return err
		}
		logger.Info("security audit recorded", "event_type", payload.EventType)
		return nil
	})

	handleAppointmentEvent := func(ctx context.Context, msg kafka.Message) error {
		var payload struct {
			AppointmentID string `json:"appointment_id"`
			SalonID       string `json:"salon_id"`
			StartTime     string `json:"start_time"`
		}
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking payload", "err", err)
			return nil
		}
		if payload.AppointmentID == "" || payload.SalonID == "" || payload.StartTime == "" {
			logger.Error("missing booking fields")
			return nil
		}
		startTime, err := time.Parse(time.RFC3339, payload.StartTime)
		if err != nil {
			logger.Error("invalid start_time", "err", err)
			return nil
		}

		meta := kafkax.ExtractEventMeta(msg)
		if err := repo.RecordAppointmentEvent(ctx, meta, metrics.AppointmentEvent{
			SalonID:       payload.SalonID,
			AppointmentID: payload.AppointmentID,
			StartTime:     startTime,
		}); err != nil {
			logger.Error("failed to record booking event", "err", err)
			return err
		}
		logger.Info("booking metric recorded", "appointment_id", payload.AppointmentID, "salon_id", payload.SalonID, "event_type", meta.EventType)
		return nil
	}
	startConsumer("booking.appointment.booked.v1", handleAppointmentEvent)
	startConsumer("booking.appointment.cancelled.v1", handleAppointmentEvent)
	startConsumer("booking.appointment.completed.v1", handleAppointmentEvent)
	startConsumer("booking.appointment.no_show.v1", handleAppointmentEvent)

	httpHandler := handlers.New(repo)
	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/analytics/appointments/daily", httpHandler.DailyAppointments)
	mux.HandleFunc("/api/v1/analytics/notifications/daily", httpHandler.DailyNotifications)
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "analytics")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
