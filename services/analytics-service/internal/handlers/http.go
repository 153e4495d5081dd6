package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/salonflowhq/salonflow/services/analytics-service/internal/metrics"
)

const dateFormat = "2006-01-02"

type Handler struct {
	repo *metrics.Repository
}

func New(repo *metrics.Repository) *Handler {
	return &Handler{repo: repo}
}

// DailyAppointments returns the per-day appointment rollup for a salon.
// Defaults to the trailing 30 days when no range is given.
func (h *Handler) DailyAppointments(w http.ResponseWriter, r *http.Request) {
	salonID, from, to, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	rows, err := h.repo.ListDailyAppointments(r.Context(), salonID, from, to)
	if err != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	writeRows(w, rows)
}

func (h *Handler) DailyNotifications(w http.ResponseWriter, r *http.Request) {
	salonID, from, to, ok := h.rangeParams(w, r)
	if !ok {
		return
	}

	rows, err := h.repo.ListDailyNotifications(r.Context(), salonID, from, to)
	if err != nil {
		http.Error(w, "failed to load metrics", http.StatusInternalServerError)
		return
	}
	writeRows(w, rows)
}

func (h *Handler) rangeParams(w http.ResponseWriter, r *http.Request) (salonID string, from, to time.Time, ok bool) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return "", time.Time{}, time.Time{}, false
	}

	salonID = strings.TrimSpace(r.Header.Get("X-Salon-Id"))
	if salonID == "" {
		salonID = strings.TrimSpace(r.URL.Query().Get("salon_id"))
	}
	if salonID == "" {
		http.Error(w, "salon_id is required", http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}

	to = time.Now().UTC()
	from = to.AddDate(0, 0, -30)
	if v := strings.TrimSpace(r.URL.Query().Get("from")); v != "" {
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			http.Error(w, "invalid from date, expected YYYY-MM-DD", http.StatusBadRequest)
			return "", time.Time{}, time.Time{}, false
		}
		from = t
	}
	if v := strings.TrimSpace(r.URL.Query().Get("to")); v != "" {
		t, err := time.Parse(dateFormat, v)
		if err != nil {
			http.Error(w, "invalid to date, expected YYYY-MM-DD", http.StatusBadRequest)
			return "", time.Time{}, time.Time{}, false
		}
		to = t
	}
	if to.Before(from) {
		http.Error(w, "to must not precede from", http.StatusBadRequest)
		return "", time.Time{}, time.Time{}, false
	}
	return salonID, from, to, true
}

func writeRows(w http.ResponseWriter, rows any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"rows": rows})
}
