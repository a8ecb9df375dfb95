package availability

import (
	"testing"
	"time"
)

// Monday 2026-08-31 10:00 UTC.
var now = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

func testSchedule() Schedule {
	open := DaySchedule{
		Morning:   &Window{Start: "09:00", End: "12:00"},
		Afternoon: &Window{Start: "14:00", End: "17:00"},
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
			{Date: "2026-09-10", Name: "chiusura straordinaria"},
			{Date: "2024-12-25", Name: "Natale", Recurring: true},
		},
	}
}

func newCalc() *Calculator {
	return NewCalculator(testSchedule(), time.UTC, 90, 2*time.Hour)
}

func TestDateBookable(t *testing.T) {
	c := newCalc()

	cases := []struct {
		name string
		date string
		want bool
	}{
		{"today", "2026-08-31", true},
		{"tomorrow", "2026-09-01", true},
		{"yesterday", "2026-08-30", false},
		{"sunday", "2026-09-06", false},
		{"holiday", "2026-09-10", false},
		{"recurring holiday next year", "2026-12-25", false},
		{"near horizon edge", "2026-11-28", true}, // Saturday, day 89
		{"horizon edge sunday", "2026-11-29", false},
		{"past horizon", "2026-11-30", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.DateBookable(tc.date, now)
			if err != nil {
				t.Fatalf("DateBookable(%s): %v", tc.date, err)
			}
			if got != tc.want {
				t.Errorf("DateBookable(%s) = %v, want %v", tc.date, got, tc.want)
			}
		})
	}
}

func TestDateBookable_BadDate(t *testing.T) {
	c := newCalc()
	if _, err := c.DateBookable("31/08/2026", now); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestSlotsFor_Grid(t *testing.T) {
	c := newCalc()

	slots, err := c.SlotsFor("2026-09-01", now, nil, nil)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}

	// 09:00-12:00 and 14:00-17:00 at 30 minutes: 6 + 6 slots.
	if len(slots) != 12 {
		t.Fatalf("got %d slots, want 12", len(slots))
	}
	if slots[0].Time != "09:00" {
		t.Errorf("first slot = %s, want 09:00", slots[0].Time)
	}
	if slots[len(slots)-1].Time != "16:30" {
		t.Errorf("last slot = %s, want 16:30 (window end is exclusive)", slots[len(slots)-1].Time)
	}
	for _, s := range slots {
		if s.Time == "12:00" || s.Time == "17:00" {
			t.Errorf("slot %s falls on an exclusive window end", s.Time)
		}
	}
}

func TestSlotsFor_LeadTimeToday(t *testing.T) {
	c := newCalc()

	slots, err := c.SlotsFor("2026-08-31", now, nil, nil)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	// now+2h = 12:00, so only the afternoon window remains.
	if len(slots) != 6 {
		t.Fatalf("got %d slots, want 6", len(slots))
	}
	for _, s := range slots {
		if s.Time < "12:00" {
			t.Errorf("slot %s earlier than now+2h", s.Time)
		}
	}
}

func TestSlotsFor_EmptyDays(t *testing.T) {
	c := newCalc()

	for _, date := range []string{"2026-09-06", "2026-09-10", "2026-12-01", "2026-08-29"} {
		slots, err := c.SlotsFor(date, now, nil, nil)
		if err != nil {
			t.Fatalf("SlotsFor(%s): %v", date, err)
		}
		if len(slots) != 0 {
			t.Errorf("SlotsFor(%s) = %d slots, want 0", date, len(slots))
		}
	}
}

func TestSlotsFor_TakenAndOwn(t *testing.T) {
	c := newCalc()

	taken := []Slot{
		{Date: "2026-09-01", Time: "09:00"},
		{Date: "2026-09-01", Time: "14:30"},
	}
	slots, err := c.SlotsFor("2026-09-01", now, taken, nil)
	if err != nil {
		t.Fatalf("SlotsFor: %v", err)
	}
	if len(slots) != 10 {
		t.Fatalf("got %d slots, want 10", len(slots))
	}
	for _, s := range slots {
		if s.Time == "09:00" || s.Time == "14:30" {
			t.Errorf("taken slot %s still offered", s.Time)
		}
	}

	// The appointment being modified keeps its own slot selectable.
	own := Slot{Date: "2026-09-01", Time: "09:00"}
	slots, err = c.SlotsFor("2026-09-01", now, taken, &own)
	if err != nil {
		t.Fatalf("SlotsFor with own: %v", err)
	}
	found := false
	for _, s := range slots {
		if s == own {
			found = true
		}
	}
	if !found {
		t.Error("own slot excluded from its own modification flow")
	}
}

func TestSlotInGrid(t *testing.T) {
	c := newCalc()

	cases := []struct {
		slot Slot
		want bool
	}{
		{Slot{Date: "2026-09-01", Time: "09:30"}, true},
		{Slot{Date: "2026-09-01", Time: "09:15"}, false}, // off the grid
		{Slot{Date: "2026-09-01", Time: "12:00"}, false}, // window end
		{Slot{Date: "2026-09-06", Time: "09:00"}, false}, // sunday
	}
	for _, tc := range cases {
		got, err := c.SlotInGrid(tc.slot)
		if err != nil {
			t.Fatalf("SlotInGrid(%v): %v", tc.slot, err)
		}
		if got != tc.want {
			t.Errorf("SlotInGrid(%v) = %v, want %v", tc.slot, got, tc.want)
		}
	}
}

func TestSlotAt(t *testing.T) {
	s := Slot{Date: "2026-09-01", Time: "09:30"}
	got, err := s.At(time.UTC)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	want := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("At = %v, want %v", got, want)
	}
}
