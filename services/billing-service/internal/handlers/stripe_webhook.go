package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonflowhq/salonflow/services/billing-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

var errBadStripePayload = errors.New("invalid stripe payload")

// StripeWebhook handles Stripe webhooks (no JWT auth; signature verification is the auth).
// Gateway should expose this path publicly.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.stripeWebhookSecret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1 MiB hard cap
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.stripeWebhookSecret, h.stripeWebhookTolerance)
	if err != nil {
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	occurredAt := time.Unix(evt.Created, 0).UTC()
	evtType := string(evt.Type)
	h.logger.Info("billing provider event received",
		"provider", "stripe",
		"provider_event_id", evt.ID,
		"event_type", evtType,
		"occurred_at", occurredAt.Format(time.RFC3339),
	)

	tx, err := h.repo.Begin(r.Context())
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(r.Context()) }()

	// Idempotency: ignore replayed Stripe events.
	if err := h.repo.InsertProviderEvent(r.Context(), tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("billing provider event duplicate ignored", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)
			writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
			_ = tx.Commit(r.Context())
			return
		}
		http.Error(w, "failed to record provider event", http.StatusInternalServerError)
		return
	}

	if err := h.recordAudit(r.Context(), tx, r, "billing.provider.stripe.webhook", "provider", "", map[string]any{
		"provider":          "stripe",
		"provider_event_id": evt.ID,
		"event_type":        evtType,
		"occurred_at":       occurredAt.Format(time.RFC3339),
	}); err != nil {
		http.Error(w, "failed to record audit event", http.StatusInternalServerError)
		return
	}

	switch evtType {
	case "checkout.session.completed":
		err = h.applyCheckoutCompleted(r.Context(), tx, evt.Data.Raw, occurredAt)
	case "checkout.session.expired":
		err = h.applyCheckoutExpired(r.Context(), tx, evt.Data.Raw, occurredAt)
	case "customer.subscription.created", "customer.subscription.updated":
		err = h.applySubscriptionUpserted(r.Context(), tx, evt.Data.Raw, occurredAt)
	case "customer.subscription.deleted":
		err = h.applySubscriptionDeleted(r.Context(), tx, evt.Data.Raw, occurredAt)
	default:
		// Unhandled event types are acknowledged so Stripe stops retrying.
	}
	if err != nil {
		// Malformed payloads are logged and acknowledged: retrying won't fix them.
		if !errors.Is(err, errBadStripePayload) {
			http.Error(w, "failed to apply event", http.StatusInternalServerError)
			return
		}
		h.logger.Error("stripe event dropped", "err", err, "event_type", evtType, "provider_event_id", evt.ID)
	}

	if err := tx.Commit(r.Context()); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) applyCheckoutCompleted(ctx context.Context, tx pgx.Tx, raw []byte, occurredAt time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return errBadStripePayload
	}
	salonID, tier, ok := salonMetadata(session.Metadata, true)
	if !ok {
		h.logger.Warn("stripe: missing metadata on checkout session (salon_id/tier)")
		return errBadStripePayload
	}

	customerID := ""
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	subscriptionID := ""
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}
	_ = h.repo.MarkCheckoutSessionCompleted(ctx, tx, session.ID, occurredAt, customerID, subscriptionID)
	return h.subSvc.ApplyActivated(ctx, tx, salonID, tier, occurredAt, "stripe", customerID, subscriptionID, nil, nil)
}

func (h *Handler) applyCheckoutExpired(ctx context.Context, tx pgx.Tx, raw []byte, occurredAt time.Time) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return errBadStripePayload
	}
	_ = h.repo.MarkCheckoutSessionExpired(ctx, tx, session.ID, occurredAt)
	return nil
}

func (h *Handler) applySubscriptionUpserted(ctx context.Context, tx pgx.Tx, raw []byte, occurredAt time.Time) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return errBadStripePayload
	}
	// Only treat active/trialing as entitled.
	if sub.Status != stripe.SubscriptionStatusActive && sub.Status != stripe.SubscriptionStatusTrialing {
		return nil
	}
	salonID, tier, ok := salonMetadata(sub.Metadata, true)
	if !ok {
		h.logger.Warn("stripe: missing metadata on subscription (salon_id/tier)")
		return errBadStripePayload
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	cps, cpe := stripePeriod(&sub)
	return h.subSvc.ApplyActivated(ctx, tx, salonID, tier, occurredAt, "stripe", customerID, sub.ID, cps, cpe)
}

func (h *Handler) applySubscriptionDeleted(ctx context.Context, tx pgx.Tx, raw []byte, occurredAt time.Time) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return errBadStripePayload
	}
	salonID, _, ok := salonMetadata(sub.Metadata, false)
	if !ok {
		h.logger.Warn("stripe: missing metadata on subscription (salon_id)")
		return errBadStripePayload
	}
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	cps, cpe := stripePeriod(&sub)
	return h.subSvc.ApplyCanceled(ctx, tx, salonID, occurredAt, "stripe", customerID, sub.ID, cps, cpe)
}

func salonMetadata(md map[string]string, requireTier bool) (salonID string, tier string, ok bool) {
	salonID = strings.TrimSpace(md["salon_id"])
	tier = strings.TrimSpace(strings.ToLower(md["tier"]))
	if salonID == "" || (requireTier && tier == "") {
		return "", "", false
	}
	return salonID, tier, true
}

func stripePeriod(sub *stripe.Subscription) (start, end *time.Time) {
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		start = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		end = &t
	}
	return start, end
}
