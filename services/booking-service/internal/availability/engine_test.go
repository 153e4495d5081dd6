package availability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeScheduleSource struct {
	sched Schedule
	err   error
}

func (f *fakeScheduleSource) Schedule(_ context.Context, _, _, _, _ string) (Schedule, error) {
	return f.sched, f.err
}

type fakeAppointmentSource struct {
	busy []Interval
	err  error
}

func (f *fakeAppointmentSource) BlockingIntervals(_ context.Context, _, _ string, _ Interval) ([]Interval, error) {
	return f.busy, f.err
}

func workingDay() Schedule {
	return Schedule{
		ServiceDurationMinutes: 30,
		ServiceBufferMinutes:   15,
		IsWorking:              true,
		Day:                    DaySchedule{Work: MinuteRange{Start: 9 * 60, End: 17 * 60}},
		Timezone:               "UTC",
	}
}

var testNow = time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC)

func TestEngine_FullWorkingDay(t *testing.T) {
	eng := NewEngine(&fakeScheduleSource{sched: workingDay()}, &fakeAppointmentSource{})

	res, err := eng.AvailableSlots(context.Background(), Request{
		SalonID:   "salon-1",
		StaffID:   "staff-1",
		ServiceID: "svc-1",
		Date:      testNow.AddDate(0, 0, 7),
		Now:       testNow,
	})
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if res.Reason != ReasonOK {
		t.Fatalf("expected ReasonOK, got %s", res.Reason)
	}
	if len(res.Slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(res.Slots))
	}
	for i := 1; i < len(res.Slots); i++ {
		if !res.Slots[i].After(res.Slots[i-1]) {
			t.Fatalf("slots out of order at %d", i)
		}
	}
}

func TestEngine_DateHorizon(t *testing.T) {
	eng := NewEngine(&fakeScheduleSource{sched: workingDay()}, &fakeAppointmentSource{})

	cases := []struct {
		name   string
		date   time.Time
		reason Reason
	}{
		{"yesterday", testNow.AddDate(0, 0, -1), ReasonDateInPast},
		{"today", testNow, ReasonOK},
		{"horizon edge", testNow.AddDate(0, 0, 90), ReasonOK},
		{"past horizon", testNow.AddDate(0, 0, 91), ReasonDateTooFar},
	}
	for _, tc := range cases {
		res, err := eng.AvailableSlots(context.Background(), Request{
			SalonID: "s", StaffID: "st", ServiceID: "svc",
			Date: tc.date, Now: testNow,
		})
		if err != nil {
			t.Fatalf("%s: AvailableSlots: %v", tc.name, err)
		}
		if res.Reason != tc.reason {
			t.Fatalf("%s: expected reason %s, got %s", tc.name, tc.reason, res.Reason)
		}
		if tc.reason != ReasonOK && len(res.Slots) != 0 {
			t.Fatalf("%s: rejected date must carry no slots", tc.name)
		}
	}
}

func TestEngine_ExplicitNow(t *testing.T) {
	eng := NewEngine(&fakeScheduleSource{sched: workingDay()}, &fakeAppointmentSource{})
	date := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)

	// Same date, two reference instants: validity depends only on Now.
	res, err := eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc", Date: date, Now: testNow,
	})
	if err != nil || res.Reason != ReasonOK {
		t.Fatalf("expected OK for future date, got %s err=%v", res.Reason, err)
	}
	res, err = eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc", Date: date,
		Now: date.AddDate(0, 0, 30),
	})
	if err != nil || res.Reason != ReasonDateInPast {
		t.Fatalf("expected ReasonDateInPast with later Now, got %s err=%v", res.Reason, err)
	}
}

func TestEngine_StaffNotWorking(t *testing.T) {
	sched := workingDay()
	sched.IsWorking = false
	eng := NewEngine(&fakeScheduleSource{sched: sched}, &fakeAppointmentSource{})

	res, err := eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc",
		Date: testNow.AddDate(0, 0, 1), Now: testNow,
	})
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if res.Reason != ReasonStaffNotWorking || len(res.Slots) != 0 {
		t.Fatalf("expected empty ReasonStaffNotWorking result, got %s with %d slots", res.Reason, len(res.Slots))
	}
}

func TestEngine_TimeOffOverridesWorkingHours(t *testing.T) {
	sched := workingDay()
	sched.OnTimeOff = true
	eng := NewEngine(&fakeScheduleSource{sched: sched}, &fakeAppointmentSource{})

	res, err := eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc",
		Date: testNow.AddDate(0, 0, 1), Now: testNow,
	})
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if res.Reason != ReasonStaffTimeOff || len(res.Slots) != 0 {
		t.Fatalf("expected empty ReasonStaffTimeOff result, got %s with %d slots", res.Reason, len(res.Slots))
	}
}

func TestEngine_ServiceNotFoundIsError(t *testing.T) {
	src := &fakeScheduleSource{err: fmt.Errorf("schedule data: %w", ErrServiceNotFound)}
	eng := NewEngine(src, &fakeAppointmentSource{})

	_, err := eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "missing",
		Date: testNow.AddDate(0, 0, 1), Now: testNow,
	})
	if !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}
}

func TestEngine_BufferOverride(t *testing.T) {
	eng := NewEngine(&fakeScheduleSource{sched: workingDay()}, &fakeAppointmentSource{})
	zero := 0

	res, err := eng.AvailableSlots(context.Background(), Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc",
		Date: testNow.AddDate(0, 0, 1), Now: testNow,
		BufferOverride: &zero,
	})
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	// With the buffer zeroed a 30-minute service fits every grid position.
	if len(res.Slots) != 16 {
		t.Fatalf("expected 16 slots with zero buffer, got %d", len(res.Slots))
	}
}

func TestEngine_Idempotent(t *testing.T) {
	busy := []Interval{{
		Start: time.Date(2026, 9, 8, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 8, 11, 0, 0, 0, time.UTC),
	}}
	eng := NewEngine(&fakeScheduleSource{sched: workingDay()}, &fakeAppointmentSource{busy: busy})
	req := Request{
		SalonID: "s", StaffID: "st", ServiceID: "svc",
		Date: time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC), Now: testNow,
	}

	first, err := eng.AvailableSlots(context.Background(), req)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	second, err := eng.AvailableSlots(context.Background(), req)
	if err != nil {
		t.Fatalf("AvailableSlots: %v", err)
	}
	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("repeated computation differs: %d vs %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		if !first.Slots[i].Equal(second.Slots[i]) {
			t.Fatalf("slot %d differs between runs", i)
		}
	}
}
