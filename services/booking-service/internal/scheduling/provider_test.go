package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/salonflowhq/salonflow/services/booking-service/internal/availability"
)

func TestHTTPProvider_ScheduleData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/v1/schedule-data" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("service_id"); got != "svc-1" {
			t.Fatalf("unexpected service_id %q", got)
		}
		_ = json.NewEncoder(w).Encode(ScheduleData{
			Timezone:        "America/New_York",
			IsWorking:       true,
			WorkStart:       "09:00",
			WorkEnd:         "17:00",
			LunchStart:      "12:00",
			LunchEnd:        "13:00",
			DurationMinutes: 60,
			BufferMinutes:   15,
		})
	}))
	defer srv.Close()

	source := NewSource(NewHTTPProvider(srv.URL))
	sched, err := source.Schedule(context.Background(), "salon-1", "staff-1", "svc-1", "2026-09-08")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !sched.IsWorking || sched.OnTimeOff {
		t.Fatalf("unexpected flags: %+v", sched)
	}
	if sched.Day.Work.Start != 540 || sched.Day.Work.End != 1020 {
		t.Fatalf("unexpected work window: %+v", sched.Day.Work)
	}
	if sched.Day.Lunch == nil || sched.Day.Lunch.Start != 720 || sched.Day.Lunch.End != 780 {
		t.Fatalf("unexpected lunch window: %+v", sched.Day.Lunch)
	}
	if sched.ServiceDurationMinutes != 60 || sched.ServiceBufferMinutes != 15 {
		t.Fatalf("unexpected service inputs: %+v", sched)
	}
}

func TestHTTPProvider_ServiceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "service_not_found"})
	}))
	defer srv.Close()

	source := NewSource(NewHTTPProvider(srv.URL))
	_, err := source.Schedule(context.Background(), "salon-1", "staff-1", "missing", "2026-09-08")
	if !errors.Is(err, availability.ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestSource_NonWorkingDaySkipsClockParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(ScheduleData{
			Timezone:        "UTC",
			IsWorking:       false,
			DurationMinutes: 30,
			BufferMinutes:   15,
		})
	}))
	defer srv.Close()

	source := NewSource(NewHTTPProvider(srv.URL))
	sched, err := source.Schedule(context.Background(), "salon-1", "staff-1", "svc-1", "2026-09-06")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if sched.IsWorking {
		t.Fatalf("expected non-working day")
	}
}
