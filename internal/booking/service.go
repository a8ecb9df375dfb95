package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/booking-engine/internal/availability"
	"github.com/clinicdesk/booking-engine/internal/config"
	"github.com/clinicdesk/booking-engine/internal/slotlock"
)

// Event is the snapshot handed to the notification collaborator after a
// successful transition.
type Event struct {
	Action      Action      `json:"action"`
	Actor       Actor       `json:"actor"`
	ActorName   string      `json:"actor_name"`
	Appointment Appointment `json:"appointment"`
}

// Notifier receives post-transition events. Delivery is fire-and-forget;
// the engine never waits on it and never fails a transition over it.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type Service struct {
	store  Store
	locks  slotlock.Manager
	calc   *availability.Calculator
	notify Notifier
	loc    *time.Location
	cutoff time.Duration
	now    func() time.Time
	log    zerolog.Logger
}

func NewService(store Store, locks slotlock.Manager, calc *availability.Calculator, cfg config.Config, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		locks:  locks,
		calc:   calc,
		loc:    cfg.Location(),
		cutoff: cfg.CancelCutoff,
		now:    time.Now,
		log:    log,
	}
}

// SetNotifier installs the notification hook.
func (s *Service) SetNotifier(n Notifier) { s.notify = n }

// SetClock overrides the time source for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateParams is a patient's initial appointment request.
type CreateParams struct {
	PatientID        uuid.UUID
	Slot             availability.Slot
	ConsultationType string
	Reason           string
	Actor            ActorRef
	LockToken        string // advisory lock held during slot selection, released on success
}

// ProposalParams carries an alternate slot for propose, counter-propose
// and modification requests.
type ProposalParams struct {
	Slot             availability.Slot
	ConsultationType string
	Message          string
	LockToken        string
}

// CreateRequest books a new pending appointment. The slot is validated
// against the availability rules first, then the commit re-checks
// occupancy atomically: with pending requests counting as blocking, N
// concurrent creates for one slot yield exactly one winner.
func (s *Service) CreateRequest(ctx context.Context, p CreateParams) (*Appointment, error) {
	if p.ConsultationType == "" {
		return nil, fmt.Errorf("%w: consultation type is required", ErrSlotUnavailable)
	}
	if err := s.slotSelectable(ctx, p.Slot, uuid.Nil, nil); err != nil {
		return nil, err
	}

	a := NewRequest(p.PatientID, p.Slot, p.ConsultationType, p.Reason, p.Actor, s.now())
	entry := &HistoryEntry{
		AppointmentID: a.ID,
		Action:        ActionCreated,
		Actor:         p.Actor.Role,
		ActorName:     a.CreatedBy,
		Changes:       CreationDiff(a),
		Reason:        optStr(p.Reason),
		CreatedAt:     a.CreatedAt,
	}
	guard := &SlotGuard{Slot: p.Slot, ExcludeID: a.ID, BlockOnPending: true}

	if err := s.store.Create(ctx, a, entry, guard); err != nil {
		return nil, err
	}

	s.releaseLock(ctx, p.Slot, p.LockToken)
	s.fire(ActionCreated, p.Actor, a)
	return a, nil
}

// Accept confirms a pending request as-is. The commit re-checks that no
// other appointment holds the slot: of two competing requests for the same
// slot, only the first accept lands.
func (s *Service) Accept(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionAccepted, actor), func(a, updated *Appointment) *SlotGuard {
		return &SlotGuard{Slot: updated.Slot(), ExcludeID: id}
	}, nil)
}

func (s *Service) Reject(ctx context.Context, id uuid.UUID, actor ActorRef, reason string) (*Appointment, error) {
	in := s.input(ActionRejected, actor)
	in.Reason = reason
	return s.run(ctx, id, in, nil, nil)
}

// ProposeAlternative sends the patient a different slot. Occupancy is only
// advisory at this point; the authoritative check runs when the proposal
// is accepted.
func (s *Service) ProposeAlternative(ctx context.Context, id uuid.UUID, actor ActorRef, p ProposalParams) (*Appointment, error) {
	in := s.input(ActionProposalSent, actor)
	in.Slot = &p.Slot
	in.ConsultationType = optStr(p.ConsultationType)
	in.Message = p.Message
	return s.run(ctx, id, in, nil, func(a *Appointment) error {
		return s.slotWellFormed(p.Slot)
	})
}

func (s *Service) AcceptProposal(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionProposalAccepted, actor), confirmGuard(id), s.proposalStillBookable)
}

func (s *Service) RejectProposal(ctx context.Context, id uuid.UUID, actor ActorRef, reason string) (*Appointment, error) {
	in := s.input(ActionProposalRejected, actor)
	in.Reason = reason
	return s.run(ctx, id, in, nil, nil)
}

// CounterPropose flips the negotiation back to the admin with a new slot
// chosen by the patient. The slot must be available, excluding the
// appointment's own current slot.
func (s *Service) CounterPropose(ctx context.Context, id uuid.UUID, actor ActorRef, p ProposalParams) (*Appointment, error) {
	in := s.input(ActionCounterProposed, actor)
	in.Slot = &p.Slot
	in.ConsultationType = optStr(p.ConsultationType)
	in.Message = p.Message
	a, err := s.run(ctx, id, in, nil, func(a *Appointment) error {
		own := a.Slot()
		return s.slotSelectable(ctx, p.Slot, id, &own)
	})
	if err != nil {
		return nil, err
	}
	s.releaseLock(ctx, p.Slot, p.LockToken)
	return a, nil
}

func (s *Service) AcceptCounter(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionCounterAccepted, actor), confirmGuard(id), s.proposalStillBookable)
}

func (s *Service) RejectCounter(ctx context.Context, id uuid.UUID, actor ActorRef, reason string) (*Appointment, error) {
	in := s.input(ActionCounterRejected, actor)
	in.Reason = reason
	return s.run(ctx, id, in, nil, nil)
}

// RequestModification asks to move a confirmed appointment; allowed up to
// 24 hours before the agreed time. The current slot stays occupied (and
// stays selectable as a target) until the admin approves.
func (s *Service) RequestModification(ctx context.Context, id uuid.UUID, actor ActorRef, p ProposalParams) (*Appointment, error) {
	in := s.input(ActionModificationRequested, actor)
	in.Slot = &p.Slot
	in.ConsultationType = optStr(p.ConsultationType)
	in.Message = p.Message
	a, err := s.run(ctx, id, in, nil, func(a *Appointment) error {
		own := a.Slot()
		return s.slotSelectable(ctx, p.Slot, id, &own)
	})
	if err != nil {
		return nil, err
	}
	s.releaseLock(ctx, p.Slot, p.LockToken)
	return a, nil
}

func (s *Service) ApproveModification(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionModificationApproved, actor), confirmGuard(id), s.proposalStillBookable)
}

func (s *Service) DeclineModification(ctx context.Context, id uuid.UUID, actor ActorRef, reason string) (*Appointment, error) {
	in := s.input(ActionModificationDeclined, actor)
	in.Reason = reason
	return s.run(ctx, id, in, nil, nil)
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor ActorRef, reason string) (*Appointment, error) {
	in := s.input(ActionCancelled, actor)
	in.Reason = reason
	return s.run(ctx, id, in, nil, nil)
}

func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionCompleted, actor), nil, nil)
}

func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor ActorRef) (*Appointment, error) {
	return s.run(ctx, id, s.input(ActionNoShow, actor), nil, nil)
}

// UpdateStaffNotes is the one mutation allowed after a terminal status.
func (s *Service) UpdateStaffNotes(ctx context.Context, id uuid.UUID, actor ActorRef, notes string) (*Appointment, error) {
	in := s.input(ActionNotesUpdated, actor)
	in.Message = notes
	return s.run(ctx, id, in, nil, nil)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListByPatient(ctx, patientID, limit, offset)
}

// History returns the appointment's ledger, oldest first.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// AvailableSlots lists the bookable grid for a date. When exclude names an
// appointment being modified, its own slot stays selectable.
func (s *Service) AvailableSlots(ctx context.Context, date string, exclude uuid.UUID) ([]availability.Slot, error) {
	var own *availability.Slot
	if exclude != uuid.Nil {
		a, err := s.store.Get(ctx, exclude)
		if err != nil {
			return nil, err
		}
		slot := a.Slot()
		own = &slot
	}
	taken, err := s.store.ActiveSlots(ctx, date, exclude)
	if err != nil {
		return nil, fmt.Errorf("list active slots: %w", err)
	}
	return s.calc.SlotsFor(date, s.now(), taken, own)
}

// AcquireSlotLock / ReleaseSlotLock expose the advisory lock manager to
// the client UI.
func (s *Service) AcquireSlotLock(ctx context.Context, slot availability.Slot, holderToken string) error {
	if err := s.slotWellFormed(slot); err != nil {
		return err
	}
	return s.locks.Acquire(ctx, slot, holderToken)
}

func (s *Service) ReleaseSlotLock(ctx context.Context, slot availability.Slot, holderToken string) error {
	return s.locks.Release(ctx, slot, holderToken)
}

// run loads the appointment, applies the pure transition, and commits it
// atomically with the guard's conflict check. Validation and the guard see
// the loaded appointment; a failed step leaves appointment and ledger
// untouched.
func (s *Service) run(
	ctx context.Context,
	id uuid.UUID,
	in Input,
	guardFor func(a, updated *Appointment) *SlotGuard,
	validate func(a *Appointment) error,
) (*Appointment, error) {
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if validate != nil {
		if err := validate(a); err != nil {
			return nil, err
		}
	}

	updated, err := Transition(a, in)
	if err != nil {
		return nil, err
	}

	entry := &HistoryEntry{
		AppointmentID: id,
		Action:        in.Action,
		Actor:         in.Actor.Role,
		ActorName:     updated.LastModifiedBy,
		Changes:       Diff(a, updated),
		Reason:        optStr(in.Reason),
		Message:       optStr(in.Message),
		CreatedAt:     in.Now,
	}

	var guard *SlotGuard
	if guardFor != nil {
		guard = guardFor(a, updated)
	}

	if err := s.store.CommitTransition(ctx, updated, a.Status, entry, guard); err != nil {
		return nil, err
	}

	s.fire(in.Action, in.Actor, updated)
	return updated, nil
}

func (s *Service) input(action Action, actor ActorRef) Input {
	return Input{
		Action:       action,
		Actor:        actor,
		Now:          s.now(),
		Loc:          s.loc,
		CancelCutoff: s.cutoff,
	}
}

// slotSelectable runs the full availability check: date bookable, slot on
// the grid, lead time respected, and not taken by another active
// appointment (the appointment's own slot excepted).
func (s *Service) slotSelectable(ctx context.Context, slot availability.Slot, exclude uuid.UUID, own *availability.Slot) error {
	taken, err := s.store.ActiveSlots(ctx, slot.Date, exclude)
	if err != nil {
		return fmt.Errorf("list active slots: %w", err)
	}
	open, err := s.calc.SlotsFor(slot.Date, s.now(), taken, own)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	for _, o := range open {
		if o == slot {
			return nil
		}
	}
	return ErrSlotUnavailable
}

// slotWellFormed checks only the calendar rules, not occupancy.
func (s *Service) slotWellFormed(slot availability.Slot) error {
	ok, err := s.calc.DateBookable(slot.Date, s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	if !ok {
		return ErrSlotUnavailable
	}
	inGrid, err := s.calc.SlotInGrid(slot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSlotUnavailable, err)
	}
	if !inGrid {
		return ErrSlotUnavailable
	}
	return nil
}

// proposalStillBookable re-checks the in-flight proposal's calendar rules
// before a confirmation copies it into the agreed slot.
func (s *Service) proposalStillBookable(a *Appointment) error {
	p := a.ProposedSlot()
	if p == nil {
		return ErrInvalidTransition
	}
	return s.slotWellFormed(*p)
}

// confirmGuard protects transitions that land the appointment on a slot:
// occupancy is re-checked against committed holders inside the commit.
func confirmGuard(id uuid.UUID) func(a, updated *Appointment) *SlotGuard {
	return func(a, updated *Appointment) *SlotGuard {
		return &SlotGuard{Slot: updated.Slot(), ExcludeID: id}
	}
}

func (s *Service) releaseLock(ctx context.Context, slot availability.Slot, token string) {
	if token == "" {
		return
	}
	if err := s.locks.Release(ctx, slot, token); err != nil {
		s.log.Warn().Err(err).Str("slot", slot.Key()).Msg("release advisory lock")
	}
}

func (s *Service) fire(action Action, actor ActorRef, a *Appointment) {
	if s.notify == nil {
		return
	}
	ev := Event{
		Action:      action,
		Actor:       actor.Role,
		ActorName:   actor.Name,
		Appointment: *a.Clone(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.notify.Notify(ctx, ev)
	}()
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
