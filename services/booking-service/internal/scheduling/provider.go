package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/salonflowhq/salonflow/services/booking-service/internal/availability"
)

// ScheduleData is the salon-service answer for one (staff, service, date)
// combination: the working window and lunch in salon-local "HH:MM" wall
// clock, the time-off flag for the date, and the service slot inputs.
type ScheduleData struct {
	Timezone        string `json:"timezone"`
	IsWorking       bool   `json:"is_working"`
	OnTimeOff       bool   `json:"on_time_off"`
	WorkStart       string `json:"work_start"`
	WorkEnd         string `json:"work_end"`
	LunchStart      string `json:"lunch_start,omitempty"`
	LunchEnd        string `json:"lunch_end,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	BufferMinutes   int    `json:"buffer_minutes"`
}

type Provider interface {
	GetScheduleData(ctx context.Context, salonID, staffID, serviceID, date string) (ScheduleData, error)
}

// Source adapts a Provider to the availability engine's schedule interface,
// converting wall-clock strings to minutes since local midnight.
type Source struct {
	provider Provider
}

func NewSource(p Provider) *Source {
	return &Source{provider: p}
}

func (s *Source) Schedule(ctx context.Context, salonID, staffID, serviceID, date string) (availability.Schedule, error) {
	data, err := s.provider.GetScheduleData(ctx, salonID, staffID, serviceID, date)
	if err != nil {
		return availability.Schedule{}, err
	}

	sched := availability.Schedule{
		ServiceDurationMinutes: data.DurationMinutes,
		ServiceBufferMinutes:   data.BufferMinutes,
		IsWorking:              data.IsWorking,
		OnTimeOff:              data.OnTimeOff,
		Timezone:               data.Timezone,
	}
	if !data.IsWorking {
		return sched, nil
	}

	workStart, err := availability.ParseClock(data.WorkStart)
	if err != nil {
		return availability.Schedule{}, fmt.Errorf("work_start: %w", err)
	}
	workEnd, err := availability.ParseClock(data.WorkEnd)
	if err != nil {
		return availability.Schedule{}, fmt.Errorf("work_end: %w", err)
	}
	sched.Day = availability.DaySchedule{Work: availability.MinuteRange{Start: workStart, End: workEnd}}

	if data.LunchStart != "" && data.LunchEnd != "" {
		lunchStart, err := availability.ParseClock(data.LunchStart)
		if err != nil {
			return availability.Schedule{}, fmt.Errorf("lunch_start: %w", err)
		}
		lunchEnd, err := availability.ParseClock(data.LunchEnd)
		if err != nil {
			return availability.Schedule{}, fmt.Errorf("lunch_end: %w", err)
		}
		sched.Day.Lunch = &availability.MinuteRange{Start: lunchStart, End: lunchEnd}
	}
	return sched, nil
}

// HTTPProvider calls salon-service's internal schedule-data endpoint. It is
// the default transport; the gRPC provider replaces it in protogen builds.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
	}
}

func (p *HTTPProvider) GetScheduleData(ctx context.Context, salonID, staffID, serviceID, date string) (ScheduleData, error) {
	q := url.Values{}
	q.Set("salon_id", salonID)
	q.Set("staff_id", staffID)
	q.Set("service_id", serviceID)
	q.Set("date", date)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/internal/v1/schedule-data?"+q.Encode(), nil)
	if err != nil {
		return ScheduleData{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return ScheduleData{}, fmt.Errorf("schedule data request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var data ScheduleData
		if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
			return ScheduleData{}, fmt.Errorf("decode schedule data: %w", err)
		}
		return data, nil
	case http.StatusNotFound:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error == "service_not_found" {
			return ScheduleData{}, fmt.Errorf("schedule data: %w", availability.ErrServiceNotFound)
		}
		return ScheduleData{}, fmt.Errorf("schedule data: not found: %s", body.Error)
	default:
		return ScheduleData{}, fmt.Errorf("schedule data: unexpected status %d", resp.StatusCode)
	}
}
