package availability

import (
	"fmt"
	"time"
)

// Calculator derives bookable slots from the weekly schedule, the holiday
// calendar and the advance-notice rules. It is a pure computation over the
// inputs it is constructed with; callers supply "now" so behavior is
// deterministic under test.
type Calculator struct {
	schedule    Schedule
	loc         *time.Location
	horizonDays int           // furthest bookable day, relative to today
	leadTime    time.Duration // minimum notice for same-day slots
}

func NewCalculator(schedule Schedule, loc *time.Location, horizonDays int, leadTime time.Duration) *Calculator {
	return &Calculator{
		schedule:    schedule,
		loc:         loc,
		horizonDays: horizonDays,
		leadTime:    leadTime,
	}
}

// DateBookable reports whether any slot on the given date could be booked:
// the date is within [today, today+horizon], the weekday is open and the
// date is not a holiday. Slot-level checks (lead time, occupancy) are left
// to SlotsFor.
func (c *Calculator) DateBookable(date string, now time.Time) (bool, error) {
	day, err := ParseDate(date, c.loc)
	if err != nil {
		return false, err
	}

	today := midnight(now.In(c.loc))
	if day.Before(today) {
		return false, nil
	}
	if day.After(today.AddDate(0, 0, c.horizonDays)) {
		return false, nil
	}
	if c.schedule.Week[day.Weekday()].Closed {
		return false, nil
	}
	if c.isHoliday(day) {
		return false, nil
	}
	return true, nil
}

// SlotsFor generates the bookable time grid for a date. Slots occupied by
// taken are removed, except a slot equal to own: the appointment being
// modified must keep its current slot selectable.
func (c *Calculator) SlotsFor(date string, now time.Time, taken []Slot, own *Slot) ([]Slot, error) {
	ok, err := c.DateBookable(date, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	day, err := ParseDate(date, c.loc)
	if err != nil {
		return nil, err
	}

	takenSet := make(map[string]bool, len(taken))
	for _, s := range taken {
		takenSet[s.Key()] = true
	}

	earliest := time.Time{}
	if sameDay(day, now.In(c.loc)) {
		earliest = now.In(c.loc).Add(c.leadTime)
	}

	var out []Slot
	ds := c.schedule.Week[day.Weekday()]
	for _, w := range []*Window{ds.Morning, ds.Afternoon} {
		if w == nil {
			continue
		}
		slots, err := c.gridFor(day, *w, date, earliest)
		if err != nil {
			return nil, err
		}
		for _, s := range slots {
			if takenSet[s.Key()] && (own == nil || s != *own) {
				continue
			}
			out = append(out, s)
		}
	}
	return out, nil
}

// SlotInGrid reports whether the slot falls exactly on the schedule grid
// for its date. It does not consider occupancy or lead time.
func (c *Calculator) SlotInGrid(slot Slot) (bool, error) {
	day, err := ParseDate(slot.Date, c.loc)
	if err != nil {
		return false, err
	}
	ds := c.schedule.Week[day.Weekday()]
	if ds.Closed {
		return false, nil
	}
	for _, w := range []*Window{ds.Morning, ds.Afternoon} {
		if w == nil {
			continue
		}
		slots, err := c.gridFor(day, *w, slot.Date, time.Time{})
		if err != nil {
			return false, err
		}
		for _, s := range slots {
			if s == slot {
				return true, nil
			}
		}
	}
	return false, nil
}

func (c *Calculator) gridFor(day time.Time, w Window, date string, earliest time.Time) ([]Slot, error) {
	start, err := atClock(day, w.Start)
	if err != nil {
		return nil, fmt.Errorf("window start: %w", err)
	}
	end, err := atClock(day, w.End)
	if err != nil {
		return nil, fmt.Errorf("window end: %w", err)
	}

	step := time.Duration(c.schedule.SlotMinutes) * time.Minute
	var out []Slot
	for t := start; t.Before(end); t = t.Add(step) {
		if !earliest.IsZero() && t.Before(earliest) {
			continue
		}
		out = append(out, Slot{Date: date, Time: t.Format("15:04")})
	}
	return out, nil
}

func (c *Calculator) isHoliday(day time.Time) bool {
	for _, h := range c.schedule.Holidays {
		hd, err := ParseDate(h.Date, c.loc)
		if err != nil {
			continue
		}
		if h.Recurring {
			if hd.Month() == day.Month() && hd.Day() == day.Day() {
				return true
			}
		} else if sameDay(hd, day) {
			return true
		}
	}
	return false
}

func atClock(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
