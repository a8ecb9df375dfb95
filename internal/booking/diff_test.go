package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

func TestDiff_CapturesTouchedFieldsOnly(t *testing.T) {
	a := NewRequest(uuid.New(), availability.Slot{Date: "2026-09-01", Time: "09:00"}, "generale", "controllo", ActorRef{Role: ActorPatient}, time.Now())

	b := a.Clone()
	b.Status = StatusAwaitingPatientResponse
	d, tm := "2026-09-02", "10:00"
	b.ProposedDate, b.ProposedTime = &d, &tm

	changes := Diff(a, b)
	want := map[string][2]any{
		"status":        {"pending", "awaiting_patient_response"},
		"proposed_date": {nil, "2026-09-02"},
		"proposed_time": {nil, "10:00"},
	}
	if len(changes) != len(want) {
		t.Fatalf("got %d changes %v, want %d", len(changes), changes, len(want))
	}
	for _, c := range changes {
		w, ok := want[c.Field]
		if !ok {
			t.Errorf("unexpected change for %s", c.Field)
			continue
		}
		if c.Old != w[0] || c.New != w[1] {
			t.Errorf("%s: {%v %v}, want {%v %v}", c.Field, c.Old, c.New, w[0], w[1])
		}
	}
}

func TestDiff_IdenticalIsEmpty(t *testing.T) {
	a := makeAppt(StatusConfirmed)
	if changes := Diff(a, a.Clone()); len(changes) != 0 {
		t.Fatalf("diff of identical snapshots = %v", changes)
	}
}

func TestDiff_StableOrder(t *testing.T) {
	a := makeAppt(StatusPending)
	b := a.Clone()
	b.Status = StatusRejected
	r := "fuori orario"
	b.RejectionReason = &r

	changes := Diff(a, b)
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2", len(changes))
	}
	// status is declared before rejection_reason.
	if changes[0].Field != "status" || changes[1].Field != "rejection_reason" {
		t.Errorf("order = [%s %s]", changes[0].Field, changes[1].Field)
	}
}

func TestCreationDiff(t *testing.T) {
	a := NewRequest(uuid.New(), availability.Slot{Date: "2026-09-01", Time: "09:00"}, "generale", "", ActorRef{Role: ActorPatient}, time.Now())

	got := map[string]FieldChange{}
	for _, c := range CreationDiff(a) {
		got[c.Field] = c
	}

	for _, field := range []string{"status", "date", "time", "consultation_type"} {
		c, ok := got[field]
		if !ok {
			t.Errorf("missing creation change for %s", field)
			continue
		}
		if c.Old != nil {
			t.Errorf("%s old = %v, want nil", field, c.Old)
		}
	}
	if _, ok := got["reason"]; ok {
		t.Error("empty reason recorded in creation diff")
	}
}
