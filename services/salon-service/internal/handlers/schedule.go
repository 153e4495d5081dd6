package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/salonflowhq/salonflow/services/salon-service/internal/schedule"
)

// GetScheduleData serves the internal endpoint booking-service queries to
// compute availability. It lives outside /api/v1 because the gateway never
// proxies it.
func (h *Handler) GetScheduleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := strings.TrimSpace(r.URL.Query().Get("salon_id"))
	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	serviceID := strings.TrimSpace(r.URL.Query().Get("service_id"))
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if salonID == "" || staffID == "" || serviceID == "" || date == "" {
		http.Error(w, "salon_id, staff_id, service_id, and date are required", http.StatusBadRequest)
		return
	}

	data, err := h.resolver.Resolve(r.Context(), salonID, staffID, serviceID, date)
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrInvalidDate):
			http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		case errors.Is(err, schedule.ErrServiceNotFound):
			writeNotFound(w, "service_not_found")
		case errors.Is(err, schedule.ErrStaffNotFound):
			writeNotFound(w, "staff_not_found")
		default:
			http.Error(w, "failed to resolve schedule data", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(data)
}

func writeNotFound(w http.ResponseWriter, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
