// Package schedule implements the clinic's bookable window: business hours,
// appointment slot arithmetic, and the scan for the first free slot.
package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrHorizonExhausted is returned by Scan when no free slot exists within
// the lookahead horizon.
var ErrHorizonExhausted = errors.New("no free slot within the lookahead horizon")

// Hours describes the clinic's opening window. Open and Close are minutes
// since midnight in local time; Days is the set of open weekdays.
type Hours struct {
	Open  int
	Close int
	Days  map[time.Weekday]bool
}

// ParseClockTime parses a "HH:MM" string into minutes since midnight.
func ParseClockTime(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in clock time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in clock time %q", s)
	}
	return h*60 + m, nil
}

// ParseWeekday parses an English weekday name ("monday", "Mon", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sunday", "sun":
		return time.Sunday, nil
	case "monday", "mon":
		return time.Monday, nil
	case "tuesday", "tue":
		return time.Tuesday, nil
	case "wednesday", "wed":
		return time.Wednesday, nil
	case "thursday", "thu":
		return time.Thursday, nil
	case "friday", "fri":
		return time.Friday, nil
	case "saturday", "sat":
		return time.Saturday, nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// Calendar combines the opening hours with the slot granularity and the
// maximum lookahead used when scanning for a free slot.
type Calendar struct {
	Hours   Hours
	Slot    time.Duration // appointment slot granularity
	Horizon time.Duration // bound on forward scanning
}

// Validate checks that the calendar can ever produce a slot.
func (c Calendar) Validate() error {
	if c.Slot <= 0 {
		return errors.New("slot granularity must be positive")
	}
	if c.Horizon <= 0 {
		return errors.New("lookahead horizon must be positive")
	}
	if c.Hours.Close <= c.Hours.Open {
		return errors.New("closing time must be after opening time")
	}
	if len(c.Hours.Days) == 0 {
		return errors.New("at least one open weekday is required")
	}
	open := false
	for _, v := range c.Hours.Days {
		open = open || v
	}
	if !open {
		return errors.New("at least one open weekday is required")
	}
	return nil
}

// WithinHours reports whether an appointment starting at t fits inside the
// opening window: the day is open and the whole slot ends by closing time.
func (c Calendar) WithinHours(t time.Time) bool {
	if !c.Hours.Days[t.Weekday()] {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	slotMin := int(c.Slot / time.Minute)
	return minute >= c.Hours.Open && minute+slotMin <= c.Hours.Close
}

// NextSlot returns the earliest slot boundary strictly after t. Boundaries
// are aligned to the slot granularity from local midnight.
func (c Calendar) NextSlot(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	since := t.Sub(midnight)
	steps := since/c.Slot + 1
	return midnight.Add(steps * c.Slot)
}

// NextOpening returns the first opening instant at or after t: t itself if
// the clinic is open all day from t's date at Open minutes, otherwise the
// opening time of the next open day.
func (c Calendar) NextOpening(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	for i := 0; i < 8; i++ {
		opening := day.Add(time.Duration(c.Hours.Open) * time.Minute)
		if c.Hours.Days[day.Weekday()] && opening.After(t) {
			return opening
		}
		day = day.AddDate(0, 0, 1)
	}
	// Unreachable while Validate holds: some weekday is open.
	return t
}

// Scan walks slot boundaries forward from `from` and returns the first slot
// that lies within business hours and is not occupied. The scan is bounded
// by the horizon; exhausting it returns ErrHorizonExhausted.
func (c Calendar) Scan(from time.Time, occupied func(time.Time) bool) (time.Time, error) {
	limit := from.Add(c.Horizon)
	candidate := c.NextSlot(from)
	for !candidate.After(limit) {
		if !c.WithinHours(candidate) {
			opening := c.NextOpening(candidate)
			// Align the opening to the slot grid in case Open is not a
			// multiple of the granularity.
			if aligned := c.NextSlot(opening.Add(-time.Nanosecond)); aligned.After(opening) {
				opening = aligned
			}
			candidate = opening
			continue
		}
		if !occupied(candidate) {
			return candidate, nil
		}
		candidate = candidate.Add(c.Slot)
	}
	return time.Time{}, ErrHorizonExhausted
}
