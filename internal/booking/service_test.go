package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/booking-engine/internal/availability"
	"github.com/clinicdesk/booking-engine/internal/config"
	"github.com/clinicdesk/booking-engine/internal/slotlock"
)

// testNow is Monday 2026-08-31 10:00 UTC. The default schedule is open
// Monday through Saturday.
var testNow = time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

var (
	patient = ActorRef{Role: ActorPatient, Name: "Mario Rossi"}
	admin   = ActorRef{Role: ActorAdmin, Name: "Dr. Bianchi"}

	tueSlot = availability.Slot{Date: "2026-09-01", Time: "09:00"} // Tuesday
	wedSlot = availability.Slot{Date: "2026-09-02", Time: "10:00"} // Wednesday
	thuSlot = availability.Slot{Date: "2026-09-03", Time: "09:00"} // Thursday
)

func newTestService(t *testing.T) (*Service, *MemStore, *slotlock.MemManager) {
	t.Helper()

	store := NewMemStore()
	locks := slotlock.NewMemManager(3 * time.Minute)
	calc := availability.NewCalculator(availability.DefaultSchedule(), time.UTC, 90, 2*time.Hour)
	cfg := config.Config{Timezone: "UTC", CancelCutoff: 24 * time.Hour}

	svc := NewService(store, locks, calc, cfg, zerolog.Nop())
	svc.SetClock(func() time.Time { return testNow })
	return svc, store, locks
}

func mustCreate(t *testing.T, svc *Service, slot availability.Slot) *Appointment {
	t.Helper()
	a, err := svc.CreateRequest(context.Background(), CreateParams{
		PatientID:        uuid.New(),
		Slot:             slot,
		ConsultationType: "generale",
		Reason:           "visita di controllo",
		Actor:            patient,
	})
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return a
}

func TestNegotiationScenario(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Patient requests Tuesday 09:00.
	a := mustCreate(t, svc, tueSlot)
	if a.Status != StatusPending {
		t.Fatalf("status = %s, want pending", a.Status)
	}

	// Admin proposes Wednesday 10:00.
	a, err := svc.ProposeAlternative(ctx, a.ID, admin, ProposalParams{Slot: wedSlot, Message: "mattina piena"})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if a.Status != StatusAwaitingPatientResponse {
		t.Fatalf("status = %s, want awaiting_patient_response", a.Status)
	}
	if a.ProposedDate == nil || *a.ProposedDate != wedSlot.Date || *a.ProposedTime != wedSlot.Time {
		t.Fatalf("proposal = %v %v, want %s %s", a.ProposedDate, a.ProposedTime, wedSlot.Date, wedSlot.Time)
	}
	if a.Date != tueSlot.Date {
		t.Fatal("proposal overwrote the agreed slot")
	}

	// Patient accepts.
	a, err = svc.AcceptProposal(ctx, a.ID, patient)
	if err != nil {
		t.Fatalf("accept proposal: %v", err)
	}
	if a.Status != StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", a.Status)
	}
	if a.Date != wedSlot.Date || a.Time != wedSlot.Time {
		t.Fatalf("slot = %s %s, want %s %s", a.Date, a.Time, wedSlot.Date, wedSlot.Time)
	}
	if a.ProposedDate != nil {
		t.Fatal("proposed_date not cleared")
	}

	// Ledger: one entry per successful transition, oldest first.
	entries, err := svc.History(ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	wantActions := []Action{ActionCreated, ActionProposalSent, ActionProposalAccepted}
	if len(entries) != len(wantActions) {
		t.Fatalf("history has %d entries, want %d", len(entries), len(wantActions))
	}
	for i, e := range entries {
		if e.Action != wantActions[i] {
			t.Errorf("entry %d action = %s, want %s", i, e.Action, wantActions[i])
		}
	}
}

func TestConcurrentCreate_OneWinner(t *testing.T) {
	svc, _, _ := newTestService(t)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateRequest(context.Background(), CreateParams{
				PatientID:        uuid.New(),
				Slot:             thuSlot,
				ConsultationType: "generale",
				Actor:            patient,
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrSlotUnavailable):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("%d creates succeeded for one slot, want exactly 1", wins)
	}
}

// Two pending requests for the same slot (seeded directly: the engine
// blocks the second create): only the first admin accept lands, the other
// fails the commit-time conflict check.
func TestAcceptRace_TwoPendingOneSlot(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, thuSlot)
	b := NewRequest(uuid.New(), thuSlot, "generale", "", patient, testNow)
	store.Seed(b)

	if _, err := svc.Accept(ctx, a.ID, admin); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if _, err := svc.Accept(ctx, b.ID, admin); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("second accept: want ErrSlotConflict, got %v", err)
	}

	// The loser is untouched: still pending, no ledger entry for the
	// failed accept.
	got, err := svc.Get(ctx, b.ID)
	if err != nil {
		t.Fatalf("get loser: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("loser status = %s, want pending", got.Status)
	}
	entries, _ := svc.History(ctx, b.ID)
	if len(entries) != 0 {
		t.Fatalf("loser has %d ledger entries, want 0", len(entries))
	}
}

func TestCreate_SlotTakenByPending(t *testing.T) {
	svc, _, _ := newTestService(t)

	mustCreate(t, svc, tueSlot)
	_, err := svc.CreateRequest(context.Background(), CreateParams{
		PatientID:        uuid.New(),
		Slot:             tueSlot,
		ConsultationType: "generale",
		Actor:            patient,
	})
	if !errors.Is(err, ErrSlotUnavailable) && !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("want unavailable/conflict, got %v", err)
	}
}

func TestCancelPolicy_ThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// Tuesday 09:00 is less than 24h after Monday 10:00.
	a := mustCreate(t, svc, tueSlot)
	if _, err := svc.Accept(ctx, a.ID, admin); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := svc.Cancel(ctx, a.ID, patient, "imprevisto"); !errors.Is(err, ErrPolicyViolation) {
		t.Fatalf("patient cancel inside 24h: want ErrPolicyViolation, got %v", err)
	}

	// Staff can still cancel.
	got, err := svc.Cancel(ctx, a.ID, admin, "richiesta telefonica")
	if err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestModificationFlow(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, wedSlot)
	if _, err := svc.Accept(ctx, a.ID, admin); err != nil {
		t.Fatalf("accept: %v", err)
	}

	a, err := svc.RequestModification(ctx, a.ID, patient, ProposalParams{Slot: thuSlot, Message: "preferirei giovedì"})
	if err != nil {
		t.Fatalf("request modification: %v", err)
	}
	if a.Status != StatusModificationPending {
		t.Fatalf("status = %s, want modification_pending", a.Status)
	}
	if a.Date != wedSlot.Date {
		t.Fatal("modification request changed the agreed slot before approval")
	}

	a, err = svc.ApproveModification(ctx, a.ID, admin)
	if err != nil {
		t.Fatalf("approve modification: %v", err)
	}
	if a.Status != StatusConfirmed || a.Date != thuSlot.Date || a.Time != thuSlot.Time {
		t.Fatalf("after approval: status=%s slot=%s %s", a.Status, a.Date, a.Time)
	}
}

func TestModification_OwnSlotStaysSelectable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, wedSlot)
	if _, err := svc.Accept(ctx, a.ID, admin); err != nil {
		t.Fatalf("accept: %v", err)
	}

	// The appointment's own slot is not "taken" from its own viewpoint.
	slots, err := svc.AvailableSlots(ctx, wedSlot.Date, a.ID)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if !containsSlot(slots, wedSlot) {
		t.Error("own slot missing from availability during modification")
	}

	// Everyone else sees it occupied.
	slots, err = svc.AvailableSlots(ctx, wedSlot.Date, uuid.Nil)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if containsSlot(slots, wedSlot) {
		t.Error("occupied slot offered to other patients")
	}
}

func TestCounterFlow_LedgerCountsSuccessesOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, tueSlot)
	if _, err := svc.ProposeAlternative(ctx, a.ID, admin, ProposalParams{Slot: wedSlot}); err != nil {
		t.Fatalf("propose: %v", err)
	}
	if _, err := svc.CounterPropose(ctx, a.ID, patient, ProposalParams{Slot: thuSlot, Message: "giovedì va meglio"}); err != nil {
		t.Fatalf("counter: %v", err)
	}

	// A failed transition must not touch the ledger.
	if _, err := svc.RejectCounter(ctx, a.ID, admin, ""); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("reject without reason: want ErrMissingReason, got %v", err)
	}

	a, err := svc.AcceptCounter(ctx, a.ID, admin)
	if err != nil {
		t.Fatalf("accept counter: %v", err)
	}
	if a.Date != thuSlot.Date || a.Status != StatusConfirmed {
		t.Fatalf("after counter accept: status=%s date=%s", a.Status, a.Date)
	}

	entries, err := svc.History(ctx, a.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	want := []Action{ActionCreated, ActionProposalSent, ActionCounterProposed, ActionCounterAccepted}
	if len(entries) != len(want) {
		t.Fatalf("ledger has %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Action != want[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Action, want[i])
		}
	}
}

func TestAvailableSlots_LeadTimeToday(t *testing.T) {
	svc, _, _ := newTestService(t)

	// Today is Monday 10:00; nothing before 12:00 may be offered.
	slots, err := svc.AvailableSlots(context.Background(), "2026-08-31", uuid.Nil)
	if err != nil {
		t.Fatalf("available slots: %v", err)
	}
	if len(slots) == 0 {
		t.Fatal("no slots for today")
	}
	for _, s := range slots {
		if s.Time < "12:00" {
			t.Errorf("slot %s offered before now+2h", s.Time)
		}
	}
}

func TestAvailableSlots_ClosedAndHorizon(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		date string
	}{
		{"sunday", "2026-09-06"},
		{"beyond horizon", "2026-12-15"},
		{"past", "2026-08-30"},
	} {
		slots, err := svc.AvailableSlots(ctx, tc.date, uuid.Nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(slots) != 0 {
			t.Errorf("%s: got %d slots, want none", tc.name, len(slots))
		}
	}
}

func TestSlotLock_AdvisoryOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.AcquireSlotLock(ctx, tueSlot, "client-a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := svc.AcquireSlotLock(ctx, tueSlot, "client-b"); !errors.Is(err, slotlock.ErrSlotLocked) {
		t.Fatalf("second holder: want ErrSlotLocked, got %v", err)
	}

	// The lock is advisory: a create that skips the lock still commits.
	a := mustCreate(t, svc, tueSlot)
	if a.Status != StatusPending {
		t.Fatalf("status = %s", a.Status)
	}
}

func TestCreate_ReleasesHeldLock(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.AcquireSlotLock(ctx, wedSlot, "client-a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err := svc.CreateRequest(ctx, CreateParams{
		PatientID:        uuid.New(),
		Slot:             wedSlot,
		ConsultationType: "generale",
		Actor:            patient,
		LockToken:        "client-a",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// The lock is gone, so another client can acquire it (even though
	// booking the slot will now fail).
	if err := svc.AcquireSlotLock(ctx, wedSlot, "client-b"); err != nil {
		t.Fatalf("acquire after commit: %v", err)
	}
}

func TestStaffNotes_AfterTerminal(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	a := mustCreate(t, svc, tueSlot)
	if _, err := svc.Reject(ctx, a.ID, admin, "fuori orario"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	got, err := svc.UpdateStaffNotes(ctx, a.ID, admin, "ricontattare a settembre")
	if err != nil {
		t.Fatalf("notes after terminal: %v", err)
	}
	if got.StaffNotes != "ricontattare a settembre" {
		t.Fatalf("StaffNotes = %q", got.StaffNotes)
	}

	// Any real transition stays forbidden.
	if _, err := svc.Accept(ctx, a.ID, admin); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("accept after terminal: want ErrInvalidTransition, got %v", err)
	}
}

type chanNotifier struct {
	ch chan Event
}

func (n *chanNotifier) Notify(_ context.Context, ev Event) { n.ch <- ev }

func TestNotificationHook_FiresOnSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	n := &chanNotifier{ch: make(chan Event, 4)}
	svc.SetNotifier(n)

	a := mustCreate(t, svc, tueSlot)

	select {
	case ev := <-n.ch:
		if ev.Action != ActionCreated || ev.Appointment.ID != a.ID {
			t.Fatalf("event = %s/%s", ev.Action, ev.Appointment.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no notification for successful create")
	}

	// Failed transitions stay silent.
	if _, err := svc.Reject(context.Background(), a.ID, admin, ""); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("want ErrMissingReason, got %v", err)
	}
	select {
	case ev := <-n.ch:
		t.Fatalf("notification %s fired for a failed transition", ev.Action)
	case <-time.After(100 * time.Millisecond):
	}
}

func containsSlot(slots []availability.Slot, want availability.Slot) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}
