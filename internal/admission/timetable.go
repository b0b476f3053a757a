package admission

import (
	"fmt"

	"github.com/oslo-kindergarten/placement-engine/internal/shared"
)

// Day names a weekday in a timetable.
type Day string

const (
	DayMonday    Day = "monday"
	DayTuesday   Day = "tuesday"
	DayWednesday Day = "wednesday"
	DayThursday  Day = "thursday"
	DayFriday    Day = "friday"
)

// Days lists the schedulable weekdays in order.
var Days = []Day{DayMonday, DayTuesday, DayWednesday, DayThursday, DayFriday}

// IsValid checks if the day is schedulable.
func (d Day) IsValid() bool {
	for _, day := range Days {
		if d == day {
			return true
		}
	}
	return false
}

// TimeWindow is a half-open [Start, End) attendance range expressed in
// minutes from midnight.
type TimeWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Overlaps checks two windows for a shared minute.
func (w TimeWindow) Overlaps(other TimeWindow) bool {
	return w.Start < other.End && other.Start < w.End
}

// Hours returns the window length in hours.
func (w TimeWindow) Hours() float64 {
	return float64(w.End-w.Start) / 60
}

// Timetable is a weekly schedule pattern: per-day attendance windows.
type Timetable map[Day][]TimeWindow

// Validate checks day names, window bounds and intra-day overlap.
func (t Timetable) Validate() error {
	for day, windows := range t {
		if !day.IsValid() {
			return fmt.Errorf("timetable: unknown day %q: %w", day, shared.ErrValidation)
		}
		for i, w := range windows {
			if w.Start < 0 || w.End > 24*60 || w.Start >= w.End {
				return fmt.Errorf("timetable: %s window %d:%d-%d: %w", day, i, w.Start, w.End, shared.ErrValidation)
			}
			for _, prev := range windows[:i] {
				if w.Overlaps(prev) {
					return fmt.Errorf("timetable: %s windows overlap: %w", day, shared.ErrValidation)
				}
			}
		}
	}
	return nil
}

// WeeklyHours sums all window lengths.
func (t Timetable) WeeklyHours() float64 {
	var total float64
	for _, windows := range t {
		for _, w := range windows {
			total += w.Hours()
		}
	}
	return total
}

// Overlaps reports whether two timetables share any (day, time-range)
// pair. Dual placements must never overlap.
func (t Timetable) Overlaps(other Timetable) bool {
	for day, windows := range t {
		for _, w := range windows {
			for _, o := range other[day] {
				if w.Overlaps(o) {
					return true
				}
			}
		}
	}
	return false
}
