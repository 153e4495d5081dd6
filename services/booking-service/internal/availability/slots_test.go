package availability

import (
	"testing"
	"time"
)

func minutes(m int) *MinuteRange { return &MinuteRange{Start: m, End: m + 60} }

func TestComputeSlots_FullDay(t *testing.T) {
	day := DaySchedule{Work: MinuteRange{Start: 9 * 60, End: 17 * 60}}
	dayStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	slots := ComputeSlots(day, 45, nil, dayStart)
	// 30-minute duration plus 15-minute buffer: last fitting start is 16:00.
	if len(slots) != 15 {
		t.Fatalf("expected 15 slots, got %d", len(slots))
	}
	if !slots[0].Equal(dayStart.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[14].Equal(dayStart.Add(16 * time.Hour)) {
		t.Fatalf("expected last slot 16:00, got %s", slots[14].Format(time.RFC3339))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Sub(slots[i-1]) != 30*time.Minute {
			t.Fatalf("slots not on 30-minute grid: %s then %s", slots[i-1], slots[i])
		}
	}
}

func TestComputeSlots_LunchExclusion(t *testing.T) {
	day := DaySchedule{
		Work:  MinuteRange{Start: 9 * 60, End: 17 * 60},
		Lunch: minutes(12 * 60),
	}
	dayStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	slots := ComputeSlots(day, 45, nil, dayStart)
	excluded := map[string]bool{"11:30": true, "12:00": true, "12:30": true}
	for _, s := range slots {
		if excluded[s.Format("15:04")] {
			t.Fatalf("slot %s overlaps lunch", s.Format("15:04"))
		}
	}
	// 11:00-11:45 ends before lunch starts: touching-free, must survive.
	found := false
	for _, s := range slots {
		if s.Format("15:04") == "11:00" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 11:00 slot to remain, got %v", formatAll(slots))
	}
	if len(slots) != 12 {
		t.Fatalf("expected 12 slots, got %d: %v", len(slots), formatAll(slots))
	}
}

func TestComputeSlots_ExistingAppointment(t *testing.T) {
	day := DaySchedule{Work: MinuteRange{Start: 9 * 60, End: 17 * 60}}
	dayStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	busy := []Interval{
		{Start: dayStart.Add(10 * time.Hour), End: dayStart.Add(11 * time.Hour)},
	}

	slots := ComputeSlots(day, 45, busy, dayStart)
	blocked := map[string]bool{"09:30": true, "10:00": true, "10:30": true}
	for _, s := range slots {
		if blocked[s.Format("15:04")] {
			t.Fatalf("slot %s overlaps existing appointment", s.Format("15:04"))
		}
	}
	// 09:00-09:45 ends exactly where nothing blocks; a slot touching the
	// appointment boundary does not conflict.
	if !slots[0].Equal(dayStart.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0].Format(time.RFC3339))
	}
	if !slots[1].Equal(dayStart.Add(11 * time.Hour)) {
		t.Fatalf("expected second slot 11:00, got %s", slots[1].Format(time.RFC3339))
	}
}

func TestComputeSlots_TailTruncation(t *testing.T) {
	day := DaySchedule{Work: MinuteRange{Start: 9 * 60, End: 10 * 60}}
	dayStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	// 90-minute slot never fits in a one-hour window.
	if got := ComputeSlots(day, 90, nil, dayStart); len(got) != 0 {
		t.Fatalf("expected no slots, got %v", formatAll(got))
	}
	// 60-minute slot fits only at the window start.
	got := ComputeSlots(day, 60, nil, dayStart)
	if len(got) != 1 || !got[0].Equal(dayStart.Add(9*time.Hour)) {
		t.Fatalf("expected single 09:00 slot, got %v", formatAll(got))
	}
}

func TestComputeSlots_DegenerateInputs(t *testing.T) {
	dayStart := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := ComputeSlots(DaySchedule{Work: MinuteRange{Start: 600, End: 600}}, 30, nil, dayStart); got != nil {
		t.Fatalf("empty window: expected nil, got %v", formatAll(got))
	}
	if got := ComputeSlots(DaySchedule{Work: MinuteRange{Start: 540, End: 1020}}, 0, nil, dayStart); got != nil {
		t.Fatalf("zero slot length: expected nil, got %v", formatAll(got))
	}
}

func TestIntervalOverlaps(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	a := Interval{Start: base, End: base.Add(time.Hour)}

	touching := Interval{Start: base.Add(time.Hour), End: base.Add(2 * time.Hour)}
	if a.Overlaps(touching) {
		t.Fatalf("touching intervals must not overlap")
	}
	inside := Interval{Start: base.Add(15 * time.Minute), End: base.Add(30 * time.Minute)}
	if !a.Overlaps(inside) {
		t.Fatalf("contained interval must overlap")
	}
	straddle := Interval{Start: base.Add(-30 * time.Minute), End: base.Add(30 * time.Minute)}
	if !a.Overlaps(straddle) || !straddle.Overlaps(a) {
		t.Fatalf("straddling interval must overlap symmetrically")
	}
}

func TestParseClock(t *testing.T) {
	got, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if got != 570 {
		t.Fatalf("expected 570 minutes, got %d", got)
	}
	if _, err := ParseClock("9:30am"); err == nil {
		t.Fatalf("expected error for malformed clock string")
	}
}

func formatAll(slots []time.Time) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Format("15:04"))
	}
	return out
}
