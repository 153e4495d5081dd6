package availability

import (
	"fmt"
	"time"
)

// GridStepMinutes is the fixed spacing between candidate start times.
// Service durations are multiples of it by construction, so every bookable
// start lands on the same 30-minute grid anchored at the working-window start.
const GridStepMinutes = 30

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals truly intersect.
// Touching boundaries (one ends exactly where the other starts) do not count.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// MinuteRange is a wall-clock range expressed in minutes since local midnight.
type MinuteRange struct {
	Start int
	End   int
}

// DaySchedule is a staff member's working window for a single day, in minutes
// since local midnight. Lunch is nil when no break is configured.
type DaySchedule struct {
	Work  MinuteRange
	Lunch *MinuteRange
}

// ComputeSlots walks the 30-minute grid from the start of the working window
// and returns the start instants where a booking of slotMinutes fits.
//
// dayStart must be local midnight of the day being examined; busy intervals
// are absolute and assumed half-open. The result is chronologically ordered
// and duplicate-free because generation is monotonic.
//
// A position where the slot would run past the end of the window is skipped,
// not treated as a loop terminator: with a fixed slot length the tail of the
// grid is truncated either way, but filtering keeps the walk correct if slot
// lengths ever vary across the grid.
func ComputeSlots(day DaySchedule, slotMinutes int, busy []Interval, dayStart time.Time) []time.Time {
	if slotMinutes <= 0 || day.Work.End <= day.Work.Start {
		return nil
	}

	var slots []time.Time
	for pos := day.Work.Start; pos < day.Work.End; pos += GridStepMinutes {
		end := pos + slotMinutes
		if end > day.Work.End {
			continue
		}
		if day.Lunch != nil && pos < day.Lunch.End && end > day.Lunch.Start {
			continue
		}

		slot := Interval{
			Start: dayStart.Add(time.Duration(pos) * time.Minute),
			End:   dayStart.Add(time.Duration(end) * time.Minute),
		}
		if overlapsAny(slot, busy) {
			continue
		}
		slots = append(slots, slot.Start)
	}
	return slots
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}

// ParseClock converts an "HH:MM" 24-hour wall-clock string to minutes since
// midnight.
func ParseClock(hm string) (int, error) {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", hm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
