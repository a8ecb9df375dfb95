package availability

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeScheduleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write schedule file: %v", err)
	}
	return path
}

func TestLoadSchedule(t *testing.T) {
	path := writeScheduleFile(t, `{
		"slot_minutes": 20,
		"week": {
			"monday":  {"morning": {"start": "08:00", "end": "13:00"}},
			"tuesday": {"afternoon": {"start": "15:00", "end": "19:00"}},
			"sunday":  {"closed": true}
		},
		"holidays": [
			{"date": "2026-12-25", "name": "Natale", "recurring": true}
		]
	}`)

	s, err := LoadSchedule(path)
	if err != nil {
		t.Fatalf("LoadSchedule: %v", err)
	}

	if s.SlotMinutes != 20 {
		t.Errorf("SlotMinutes = %d, want 20", s.SlotMinutes)
	}
	if s.Week[time.Monday].Morning == nil || s.Week[time.Monday].Morning.Start != "08:00" {
		t.Errorf("monday morning = %+v", s.Week[time.Monday].Morning)
	}
	// Weekdays absent from the file are closed.
	if !s.Week[time.Wednesday].Closed {
		t.Error("wednesday should default to closed")
	}
	if len(s.Holidays) != 1 || !s.Holidays[0].Recurring {
		t.Errorf("holidays = %+v", s.Holidays)
	}
}

func TestLoadSchedule_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"bad json", `{`},
		{"zero slot minutes", `{"slot_minutes": 0, "week": {}}`},
		{"unknown weekday", `{"slot_minutes": 30, "week": {"lunedi": {}}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeScheduleFile(t, tc.content)
			if _, err := LoadSchedule(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadSchedule_MissingFile(t *testing.T) {
	if _, err := LoadSchedule(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultSchedule(t *testing.T) {
	s := DefaultSchedule()
	if !s.Week[time.Sunday].Closed {
		t.Error("sunday should be closed")
	}
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		if s.Week[wd].Closed {
			t.Errorf("%s should be open", wd)
		}
	}
	if s.SlotMinutes != 30 {
		t.Errorf("SlotMinutes = %d, want 30", s.SlotMinutes)
	}
}
