package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/salonflowhq/salonflow/services/booking-service/internal/availability"
)

type AvailabilityHandler struct {
	engine *availability.Engine
	logger *slog.Logger
	now    func() time.Time
}

func NewAvailabilityHandler(engine *availability.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

type availabilityResponse struct {
	Date   string   `json:"date"`
	Reason string   `json:"reason"`
	Slots  []string `json:"slots"`
}

// Slots serves the public availability query. An empty slot list is a normal
// answer; only malformed input and unknown services are errors.
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := strings.TrimSpace(r.URL.Query().Get("salon_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if salonID == "" || staffID == "" || serviceID == "" || dateStr == "" {
		http.Error(w, "salon_id, staff_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	date, err := time.Parse(availability.DateFormat, dateStr)
	if err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	req := availability.Request{
		SalonID:   salonID,
		StaffID:   staffID,
		ServiceID: serviceID,
		Date:      date,
		Now:       h.now().UTC(),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("buffer_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid buffer_minutes", http.StatusBadRequest)
			return
		}
		req.BufferOverride = &n
	}

	res, err := h.engine.AvailableSlots(r.Context(), req)
	if err != nil {
		if errors.Is(err, availability.ErrServiceNotFound) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		h.logger.Error("availability computation failed", "err", err)
		http.Error(w, "availability temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	resp := availabilityResponse{
		Date:   dateStr,
		Reason: string(res.Reason),
		Slots:  make([]string, 0, len(res.Slots)),
	}
	for _, s := range res.Slots {
		resp.Slots = append(resp.Slots, s.Format(time.RFC3339))
	}

	body, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
