package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/schedule"
	"github.com/salonflowhq/salonflow/services/salon-service/internal/storage"
)

type Handler struct {
	repo     *storage.Repository
	resolver *schedule.Resolver
}

func New(repo *storage.Repository) *Handler {
	return &Handler{repo: repo, resolver: schedule.NewResolver(repo)}
}

func salonIDFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Salon-Id"))
}

// validDurations are the only bookable service lengths. Everything stays on
// the 30-minute slot grid because each duration is a multiple of it.
var validDurations = map[int]bool{30: true, 60: true, 90: true, 120: true}

func validClock(hm string) bool {
	_, err := time.Parse("15:04", hm)
	return err == nil
}

func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	p, err := h.repo.GetOrCreateProfile(r.Context(), salonID)
	if err != nil {
		http.Error(w, "failed to load profile", http.StatusInternalServerError)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"salon_id":                 p.SalonID,
		"name":                     p.Name,
		"timezone":                 p.Timezone,
		"reminder_offsets_minutes": p.OffsetsMins,
		"onboarding_step":          p.OnboardingStep,
		"onboarding_completed":     p.OnboardingCompleted,
	})
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name                   string `json:"name"`
		Timezone               string `json:"timezone"`
		ReminderOffsetsMinutes []int  `json:"reminder_offsets_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Timezone = strings.TrimSpace(req.Timezone)
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		http.Error(w, "invalid timezone", http.StatusBadRequest)
		return
	}

	var offsets []int
	for _, v := range req.ReminderOffsetsMinutes {
		if v <= 0 || v > 365*24*60 {
			http.Error(w, "invalid reminder_offsets_minutes", http.StatusBadRequest)
			return
		}
		offsets = append(offsets, v)
	}
	if len(offsets) == 0 {
		offsets = []int{1440, 60}
	}

	if err := h.repo.UpdateProfile(r.Context(), salonID, req.Name, req.Timezone, offsets); err != nil {
		http.Error(w, "failed to update profile", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateOnboarding(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Step      int  `json:"step"`
		Completed bool `json:"completed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.Step < 0 || req.Step > 10 {
		http.Error(w, "invalid step", http.StatusBadRequest)
		return
	}

	if err := h.repo.UpdateOnboarding(r.Context(), salonID, req.Step, req.Completed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "profile not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update onboarding", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		Description  string  `json:"description"`
		DurationMins int     `json:"duration_minutes"`
		BufferMins   *int    `json:"buffer_time_minutes"`
		Price        float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if !validDurations[req.DurationMins] {
		http.Error(w, "duration_minutes must be 30, 60, 90, or 120", http.StatusBadRequest)
		return
	}
	buffer := 15
	if req.BufferMins != nil {
		if *req.BufferMins < 0 {
			http.Error(w, "buffer_time_minutes must not be negative", http.StatusBadRequest)
			return
		}
		buffer = *req.BufferMins
	}

	id, err := h.repo.CreateService(r.Context(), storage.SalonService{
		SalonID:      salonID,
		Name:         req.Name,
		Description:  req.Description,
		DurationMins: req.DurationMins,
		BufferMins:   buffer,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     true,
	})
	if err != nil {
		http.Error(w, "failed to create service", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": id,
	})
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}
	serviceID := strings.TrimSpace(r.URL.Query().Get("id"))
	if serviceID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		Description  string  `json:"description"`
		DurationMins int     `json:"duration_minutes"`
		BufferMins   *int    `json:"buffer_time_minutes"`
		Price        float64 `json:"price"`
		IsActive     *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	if !validDurations[req.DurationMins] {
		http.Error(w, "duration_minutes must be 30, 60, 90, or 120", http.StatusBadRequest)
		return
	}
	buffer := 15
	if req.BufferMins != nil {
		if *req.BufferMins < 0 {
			http.Error(w, "buffer_time_minutes must not be negative", http.StatusBadRequest)
			return
		}
		buffer = *req.BufferMins
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	err := h.repo.UpdateService(r.Context(), storage.SalonService{
		ID:           serviceID,
		SalonID:      salonID,
		Name:         req.Name,
		Description:  strings.TrimSpace(req.Description),
		DurationMins: req.DurationMins,
		BufferMins:   buffer,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     isActive,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "service not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update service", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	services, err := h.repo.ListServices(r.Context(), salonID, 100)
	if err != nil {
		http.Error(w, "failed to list services", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(services)
}

func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name     string `json:"name"`
		IsActive *bool  `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	id, err := h.repo.CreateStaff(r.Context(), salonID, req.Name, isActive)
	if err != nil {
		http.Error(w, "failed to create staff", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id": id,
	})
}

func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	staff, err := h.repo.ListStaff(r.Context(), salonID, 100)
	if err != nil {
		http.Error(w, "failed to list staff", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(staff)
}

func (h *Handler) ListAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id is required", http.StatusBadRequest)
		return
	}

	rows, err := h.repo.ListStaffAvailability(r.Context(), salonID, staffID)
	if err != nil {
		http.Error(w, "failed to list availability", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(rows)
}

func (h *Handler) UpsertAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		DayOfWeek   int     `json:"day_of_week"`
		IsAvailable bool    `json:"is_available"`
		StartTime   string  `json:"start_time"`
		EndTime     string  `json:"end_time"`
		LunchStart  *string `json:"lunch_start"`
		LunchEnd    *string `json:"lunch_end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if req.DayOfWeek < 0 || req.DayOfWeek > 6 {
		http.Error(w, "day_of_week must be between 0 and 6", http.StatusBadRequest)
		return
	}

	row := storage.StaffAvailability{
		StaffID:     staffID,
		DayOfWeek:   req.DayOfWeek,
		IsAvailable: req.IsAvailable,
		StartTime:   "09:00",
		EndTime:     "17:00",
	}
	if req.IsAvailable {
		if !validClock(req.StartTime) || !validClock(req.EndTime) || req.StartTime >= req.EndTime {
			http.Error(w, "invalid start_time/end_time", http.StatusBadRequest)
			return
		}
		row.StartTime = req.StartTime
		row.EndTime = req.EndTime

		// Lunch is optional but must come as a pair inside the window.
		if (req.LunchStart == nil) != (req.LunchEnd == nil) {
			http.Error(w, "lunch_start and lunch_end must be set together", http.StatusBadRequest)
			return
		}
		if req.LunchStart != nil {
			ls, le := *req.LunchStart, *req.LunchEnd
			if !validClock(ls) || !validClock(le) || ls >= le || ls < req.StartTime || le > req.EndTime {
				http.Error(w, "invalid lunch window", http.StatusBadRequest)
				return
			}
			row.LunchStart = &ls
			row.LunchEnd = &le
		}
	}

	if err := h.repo.UpsertStaffAvailability(r.Context(), salonID, row); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "staff not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to upsert availability", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Reason    string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)

	start, err := time.Parse("2006-01-02", strings.TrimSpace(req.StartDate))
	if err != nil {
		http.Error(w, "invalid start_date", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", strings.TrimSpace(req.EndDate))
	if err != nil {
		http.Error(w, "invalid end_date", http.StatusBadRequest)
		return
	}
	// Both endpoints belong to the range: a single-day absence has
	// start_date equal to end_date.
	if end.Before(start) {
		http.Error(w, "end_date must not be before start_date", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreateTimeOff(r.Context(), salonID, staffID, start, end, req.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "staff not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to create time off", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Handler) ListTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id is required", http.StatusBadRequest)
		return
	}

	items, err := h.repo.ListTimeOff(r.Context(), salonID, staffID, 100)
	if err != nil {
		http.Error(w, "failed to list time off", http.StatusInternalServerError)
		return
	}

	type timeOffItem struct {
		ID        string `json:"id"`
		StaffID   string `json:"staff_id"`
		StartDate string `json:"start_date"`
		EndDate   string `json:"end_date"`
		Reason    string `json:"reason"`
	}
	out := make([]timeOffItem, 0, len(items))
	for _, t := range items {
		out = append(out, timeOffItem{
			ID:        t.ID,
			StaffID:   t.StaffID,
			StartDate: t.StartDate.Format("2006-01-02"),
			EndDate:   t.EndDate.Format("2006-01-02"),
			Reason:    t.Reason,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) DeleteTimeOff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if err := h.repo.DeleteTimeOff(r.Context(), salonID, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "time off not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to delete time off", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		Sessions     int     `json:"sessions"`
		ValidityDays int     `json:"validity_days"`
		Price        float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Sessions <= 0 || req.ValidityDays <= 0 {
		http.Error(w, "name, sessions, and validity_days required", http.StatusBadRequest)
		return
	}

	id, err := h.repo.CreatePackage(r.Context(), storage.Package{
		SalonID:      salonID,
		Name:         req.Name,
		Sessions:     req.Sessions,
		ValidityDays: req.ValidityDays,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     true,
	})
	if err != nil {
		http.Error(w, "failed to create package", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]any{"id": id})
}

func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}
	packageID := strings.TrimSpace(r.URL.Query().Get("id"))
	if packageID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	var req struct {
		Name         string  `json:"name"`
		Sessions     int     `json:"sessions"`
		ValidityDays int     `json:"validity_days"`
		Price        float64 `json:"price"`
		IsActive     *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Sessions <= 0 || req.ValidityDays <= 0 {
		http.Error(w, "name, sessions, and validity_days required", http.StatusBadRequest)
		return
	}
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	err := h.repo.UpdatePackage(r.Context(), storage.Package{
		ID:           packageID,
		SalonID:      salonID,
		Name:         req.Name,
		Sessions:     req.Sessions,
		ValidityDays: req.ValidityDays,
		Price:        strconv.FormatFloat(req.Price, 'f', 2, 64),
		IsActive:     isActive,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "package not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to update package", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	salonID := salonIDFromHeader(r)
	if salonID == "" {
		http.Error(w, "missing X-Salon-Id", http.StatusBadRequest)
		return
	}

	pkgs, err := h.repo.ListPackages(r.Context(), salonID, 100)
	if err != nil {
		http.Error(w, "failed to list packages", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(pkgs)
}
