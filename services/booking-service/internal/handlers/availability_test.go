package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/salonflowhq/salonflow/services/booking-service/internal/availability"
)

type stubScheduleSource struct {
	sched availability.Schedule
	err   error
}

func (s *stubScheduleSource) Schedule(_ context.Context, _, _, _, _ string) (availability.Schedule, error) {
	return s.sched, s.err
}

type stubAppointmentSource struct{}

func (s *stubAppointmentSource) BlockingIntervals(_ context.Context, _, _ string, _ availability.Interval) ([]availability.Interval, error) {
	return nil, nil
}

func newTestHandler(src availability.ScheduleSource) *AvailabilityHandler {
	engine := availability.NewEngine(src, &stubAppointmentSource{})
	h := NewAvailabilityHandler(engine, slog.Default())
	h.now = func() time.Time {
		return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	}
	return h
}

func TestAvailabilitySlots_OK(t *testing.T) {
	h := newTestHandler(&stubScheduleSource{sched: availability.Schedule{
		ServiceDurationMinutes: 30,
		ServiceBufferMinutes:   15,
		IsWorking:              true,
		Day: availability.DaySchedule{
			Work: availability.MinuteRange{Start: 9 * 60, End: 17 * 60},
		},
		Timezone: "UTC",
	}})

	req := httptest.NewRequest("GET", "/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1&date=2026-09-08", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Date   string   `json:"date"`
		Reason string   `json:"reason"`
		Slots  []string `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason != "ok" {
		t.Fatalf("expected reason ok, got %s", resp.Reason)
	}
	if len(resp.Slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(resp.Slots))
	}
	if resp.Slots[0] != "2026-09-08T09:00:00Z" {
		t.Fatalf("unexpected first slot: %s", resp.Slots[0])
	}
}

func TestAvailabilitySlots_EmptyIsNotAnError(t *testing.T) {
	h := newTestHandler(&stubScheduleSource{sched: availability.Schedule{
		ServiceDurationMinutes: 30,
		ServiceBufferMinutes:   15,
		IsWorking:              false,
		Timezone:               "UTC",
	}})

	req := httptest.NewRequest("GET", "/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1&date=2026-09-06", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Reason string   `json:"reason"`
		Slots  []string `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason != "staff_not_working" {
		t.Fatalf("expected reason staff_not_working, got %s", resp.Reason)
	}
	if resp.Slots == nil || len(resp.Slots) != 0 {
		t.Fatalf("expected empty slots array, got %v", resp.Slots)
	}
}

func TestAvailabilitySlots_ServiceNotFound(t *testing.T) {
	h := newTestHandler(&stubScheduleSource{
		err: fmt.Errorf("schedule data: %w", availability.ErrServiceNotFound),
	})

	req := httptest.NewRequest("GET", "/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=nope&date=2026-09-08", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)

	if rr.Code != 404 {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestAvailabilitySlots_BadRequest(t *testing.T) {
	h := newTestHandler(&stubScheduleSource{sched: availability.Schedule{}})

	cases := []string{
		"/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1",
		"/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1&date=09-08-2026",
		"/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1&date=2026-09-08&buffer_minutes=-5",
		"/api/v1/public/availability?staff_id=st1&service_id=svc1&date=2026-09-08",
	}
	for _, target := range cases {
		req := httptest.NewRequest("GET", target, nil)
		rr := httptest.NewRecorder()
		h.Slots(rr, req)
		if rr.Code != 400 {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func TestAvailabilitySlots_PastDate(t *testing.T) {
	h := newTestHandler(&stubScheduleSource{sched: availability.Schedule{}})

	req := httptest.NewRequest("GET", "/api/v1/public/availability?salon_id=s1&staff_id=st1&service_id=svc1&date=2026-08-31", nil)
	rr := httptest.NewRecorder()
	h.Slots(rr, req)

	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Reason string   `json:"reason"`
		Slots  []string `json:"slots"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Reason != "date_in_past" || len(resp.Slots) != 0 {
		t.Fatalf("expected empty date_in_past result, got %s with %d slots", resp.Reason, len(resp.Slots))
	}
}
