package availability

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Slot identifies one bookable (date, time) pair. Date is YYYY-MM-DD and
// Time is HH:MM, both in the clinic timezone.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s Slot) Key() string {
	return s.Date + " " + s.Time
}

func (s Slot) IsZero() bool {
	return s.Date == "" && s.Time == ""
}

// At resolves the slot to an instant in the given location.
func (s Slot) At(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:04", s.Key(), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse slot %q: %w", s.Key(), err)
	}
	return t, nil
}

func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", date, err)
	}
	return t, nil
}

// Window is a contiguous stretch of bookable time within a day,
// e.g. 09:00-12:30. Start and End are HH:MM; End is exclusive.
type Window struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DaySchedule describes one weekday of the clinic week.
type DaySchedule struct {
	Closed    bool    `json:"closed"`
	Morning   *Window `json:"morning,omitempty"`
	Afternoon *Window `json:"afternoon,omitempty"`
}

// Holiday is a closure date. Recurring holidays repeat every year on the
// same month and day (the year of Date is then ignored).
type Holiday struct {
	Date      string `json:"date"`
	Name      string `json:"name,omitempty"`
	Recurring bool   `json:"recurring,omitempty"`
}

// Schedule is the CMS-owned weekly pattern plus holiday calendar. The
// engine treats it as read-only input.
type Schedule struct {
	SlotMinutes int                         `json:"slot_minutes"`
	Week        map[time.Weekday]DaySchedule `json:"-"`
	Holidays    []Holiday                   `json:"holidays,omitempty"`
}

// scheduleJSON is the on-disk shape; weekdays keyed by lowercase name.
type scheduleJSON struct {
	SlotMinutes int                    `json:"slot_minutes"`
	Week        map[string]DaySchedule `json:"week"`
	Holidays    []Holiday              `json:"holidays"`
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// LoadSchedule reads a schedule JSON file. Weekdays absent from the file
// are treated as closed.
func LoadSchedule(path string) (Schedule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Schedule{}, fmt.Errorf("read schedule file: %w", err)
	}

	var sj scheduleJSON
	if err := json.Unmarshal(raw, &sj); err != nil {
		return Schedule{}, fmt.Errorf("parse schedule file: %w", err)
	}
	if sj.SlotMinutes <= 0 {
		return Schedule{}, fmt.Errorf("schedule file: slot_minutes must be positive, got %d", sj.SlotMinutes)
	}

	s := Schedule{
		SlotMinutes: sj.SlotMinutes,
		Week:        make(map[time.Weekday]DaySchedule, 7),
		Holidays:    sj.Holidays,
	}
	for name, day := range sj.Week {
		wd, ok := weekdayNames[name]
		if !ok {
			return Schedule{}, fmt.Errorf("schedule file: unknown weekday %q", name)
		}
		s.Week[wd] = day
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if _, ok := s.Week[wd]; !ok {
			s.Week[wd] = DaySchedule{Closed: true}
		}
	}
	return s, nil
}

// DefaultSchedule is the clinic's standard week: Monday through Saturday,
// morning and afternoon sessions, 30-minute slots, closed Sundays.
func DefaultSchedule() Schedule {
	open := DaySchedule{
		Morning:   &Window{Start: "09:00", End: "12:30"},
		Afternoon: &Window{Start: "14:30", End: "18:30"},
	}
	week := map[time.Weekday]DaySchedule{
		time.Sunday: {Closed: true},
	}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		week[wd] = open
	}
	return Schedule{
		SlotMinutes: 30,
		Week:        week,
		Holidays: []Holiday{
			{Date: "2024-01-01", Name: "Capodanno", Recurring: true},
			{Date: "2024-01-06", Name: "Epifania", Recurring: true},
			{Date: "2024-04-25", Name: "Festa della Liberazione", Recurring: true},
			{Date: "2024-05-01", Name: "Festa dei Lavoratori", Recurring: true},
			{Date: "2024-08-15", Name: "Ferragosto", Recurring: true},
			{Date: "2024-12-25", Name: "Natale", Recurring: true},
			{Date: "2024-12-26", Name: "Santo Stefano", Recurring: true},
		},
	}
}
