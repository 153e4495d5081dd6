package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonflowhq/salonflow/services/billing-service/internal/entitlements"
	"github.com/salonflowhq/salonflow/services/billing-service/internal/outbox"
	"github.com/salonflowhq/salonflow/services/billing-service/internal/storage"
	"github.com/salonflowhq/salonflow/services/billing-service/internal/subscriptions"
)

type Handler struct {
	repo                   *storage.Repository
	outboxRepo             *outbox.Repository
	subSvc                 *subscriptions.Service
	logger                 *slog.Logger
	stripeWebhookSecret    string
	stripeWebhookTolerance time.Duration
	stripeSecretKey        string
	stripePrices           map[string]string
	checkoutSuccessURL     string
	checkoutCancelURL      string
}

type Config struct {
	StripeWebhookSecret           string
	StripeWebhookToleranceSeconds int
	StripeSecretKey               string
	StripePriceStarter            string
	StripePricePro                string
	CheckoutSuccessURL            string
	CheckoutCancelURL             string
}

func New(repo *storage.Repository, outboxRepo *outbox.Repository, logger *slog.Logger, cfg Config) *Handler {
	tolSeconds := cfg.StripeWebhookToleranceSeconds
	if tolSeconds <= 0 {
		tolSeconds = 300
	}
	return &Handler{
		repo:                   repo,
		outboxRepo:             outboxRepo,
		subSvc:                 subscriptions.New(repo, outboxRepo),
		logger:                 logger,
		stripeWebhookSecret:    strings.TrimSpace(cfg.StripeWebhookSecret),
		stripeWebhookTolerance: time.Duration(tolSeconds) * time.Second,
		stripeSecretKey:        strings.TrimSpace(cfg.StripeSecretKey),
		stripePrices: map[string]string{
			"starter": strings.TrimSpace(cfg.StripePriceStarter),
			"pro":     strings.TrimSpace(cfg.StripePricePro),
		},
		checkoutSuccessURL: strings.TrimSpace(cfg.CheckoutSuccessURL),
		checkoutCancelURL:  strings.TrimSpace(cfg.CheckoutCancelURL),
	}
}

// Plans is public: the pricing page needs the catalog before sign-up.
func (h *Handler) Plans(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	type plan struct {
		entitlements.Limits
		Purchasable bool `json:"purchasable"`
	}
	plans := make([]plan, 0, 3)
	for _, l := range entitlements.Tiers() {
		plans = append(plans, plan{
			Limits:      l,
			Purchasable: strings.TrimSpace(h.stripePrices[l.Tier]) != "",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}

// salonScope resolves which salon the request may act on. Owners are bound to
// their own salon from the gateway headers; admins may name any salon.
func salonScope(r *http.Request, requested string) (salonID string, ok bool) {
	role := strings.TrimSpace(r.Header.Get("X-Role"))
	caller := strings.TrimSpace(r.Header.Get("X-Salon-Id"))
	requested = strings.TrimSpace(requested)

	if role == "admin" {
		if requested != "" {
			return requested, true
		}
		return caller, caller != ""
	}
	if caller == "" {
		return requested, requested != ""
	}
	if requested != "" && requested != caller {
		return "", false
	}
	return caller, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) recordAudit(ctx context.Context, tx pgx.Tx, r *http.Request, eventType string, actorType string, salonID string, metadata map[string]any) error {
	if actorType == "" {
		actorType = strings.TrimSpace(r.Header.Get("X-Role"))
	}
	if actorType == "" {
		actorType = "system"
	}
	actorID := strings.TrimSpace(r.Header.Get("X-User-Id"))
	if actorID == "" {
		actorID = strings.TrimSpace(r.Header.Get("X-Salon-Id"))
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	if reqID := strings.TrimSpace(r.Header.Get("X-Request-Id")); reqID != "" {
		metadata["request_id"] = reqID
	}
	raw, _ := json.Marshal(metadata)
	return h.repo.InsertAuditEvent(ctx, tx, storage.AuditEvent{
		EventType: eventType,
		ActorType: actorType,
		ActorID:   actorID,
		SalonID:   salonID,
		Metadata:  raw,
	})
}
