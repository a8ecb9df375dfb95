package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

// Input carries everything a transition needs besides the appointment
// itself. Now is injected so the 24-hour policy and the elapsed checks are
// deterministic under test.
type Input struct {
	Action           Action
	Actor            ActorRef
	Slot             *availability.Slot // proposed/requested slot, when the action carries one
	ConsultationType *string
	Reason           string
	Message          string
	Now              time.Time
	Loc              *time.Location
	CancelCutoff     time.Duration
}

// NewRequest builds the initial pending appointment for a patient request.
// Slot validation and the commit-time conflict check are the service's job.
func NewRequest(patientID uuid.UUID, slot availability.Slot, consultationType, reason string, actor ActorRef, now time.Time) *Appointment {
	name := actor.Name
	if name == "" {
		name = string(ActorPatient)
	}
	return &Appointment{
		ID:               uuid.New(),
		PatientID:        patientID,
		CreatedBy:        name,
		LastModifiedBy:   name,
		Date:             slot.Date,
		Time:             slot.Time,
		ConsultationType: consultationType,
		Status:           StatusPending,
		Reason:           reason,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Transition applies one action to the appointment and returns the changed
// copy. The input appointment is never mutated; on error nothing changes.
// Every (status, action) pair outside the lifecycle table fails with
// ErrInvalidTransition.
func Transition(a *Appointment, in Input) (*Appointment, error) {
	if in.Action == ActionNotesUpdated {
		// Note-taking is the one mutation allowed in terminal states.
		return applyNotes(a, in)
	}

	if a.Status.Terminal() {
		return nil, ErrInvalidTransition
	}

	switch in.Action {
	case ActionAccepted:
		return applyAccept(a, in)
	case ActionRejected:
		return applyReject(a, in)
	case ActionProposalSent:
		return applyPropose(a, in)
	case ActionProposalAccepted:
		return applyProposalAccepted(a, in)
	case ActionProposalRejected:
		return applyProposalRejected(a, in)
	case ActionCounterProposed:
		return applyCounterProposed(a, in)
	case ActionCounterAccepted:
		return applyCounterAccepted(a, in)
	case ActionCounterRejected:
		return applyCounterRejected(a, in)
	case ActionModificationRequested:
		return applyModificationRequested(a, in)
	case ActionModificationApproved:
		return applyModificationApproved(a, in)
	case ActionModificationDeclined:
		return applyModificationDeclined(a, in)
	case ActionCancelled:
		return applyCancel(a, in)
	case ActionCompleted:
		return applyOutcome(a, in, StatusCompleted)
	case ActionNoShow:
		return applyOutcome(a, in, StatusNoShow)
	default:
		return nil, ErrInvalidTransition
	}
}

func applyAccept(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusPending, ActorAdmin); err != nil {
		return nil, err
	}
	c := touched(a, in)
	c.Status = StatusConfirmed
	c.ConfirmedAt = &in.Now
	return c, nil
}

func applyReject(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusPending, ActorAdmin); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, ErrMissingReason
	}
	c := touched(a, in)
	c.Status = StatusRejected
	c.RejectionReason = &in.Reason
	return c, nil
}

func applyPropose(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusPending, ActorAdmin); err != nil {
		return nil, err
	}
	if in.Slot == nil {
		return nil, ErrSlotUnavailable
	}
	c := touched(a, in)
	c.Status = StatusAwaitingPatientResponse
	setProposal(c, *in.Slot, in.ConsultationType)
	if in.Message != "" {
		c.AdminMessage = &in.Message
	}
	c.ProposalSentAt = &in.Now
	return c, nil
}

func applyProposalAccepted(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusAwaitingPatientResponse, ActorPatient); err != nil {
		return nil, err
	}
	c := touched(a, in)
	if err := confirmProposal(c, in.Now); err != nil {
		return nil, err
	}
	c.RespondedAt = &in.Now
	return c, nil
}

func applyProposalRejected(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusAwaitingPatientResponse, ActorPatient); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, ErrMissingReason
	}
	c := touched(a, in)
	c.Status = StatusRejectedByPatient
	c.RejectionReason = &in.Reason
	c.RespondedAt = &in.Now
	clearProposal(c)
	return c, nil
}

func applyCounterProposed(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusAwaitingPatientResponse, ActorPatient); err != nil {
		return nil, err
	}
	if in.Slot == nil {
		return nil, ErrSlotUnavailable
	}
	c := touched(a, in)
	c.Status = StatusAwaitingAdminResponse
	setProposal(c, *in.Slot, in.ConsultationType)
	if in.Message != "" {
		c.PatientMessage = &in.Message
	}
	c.RespondedAt = &in.Now
	return c, nil
}

func applyCounterAccepted(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusAwaitingAdminResponse, ActorAdmin); err != nil {
		return nil, err
	}
	c := touched(a, in)
	if err := confirmProposal(c, in.Now); err != nil {
		return nil, err
	}
	return c, nil
}

func applyCounterRejected(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusAwaitingAdminResponse, ActorAdmin); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, ErrMissingReason
	}
	c := touched(a, in)
	c.Status = StatusRejected
	c.RejectionReason = &in.Reason
	clearProposal(c)
	return c, nil
}

func applyModificationRequested(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusConfirmed, ActorPatient); err != nil {
		return nil, err
	}
	if in.Slot == nil {
		return nil, ErrSlotUnavailable
	}
	if err := checkCutoff(a, in); err != nil {
		return nil, err
	}
	c := touched(a, in)
	c.Status = StatusModificationPending
	setProposal(c, *in.Slot, in.ConsultationType)
	if in.Message != "" {
		c.PatientMessage = &in.Message
	}
	return c, nil
}

func applyModificationApproved(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusModificationPending, ActorAdmin); err != nil {
		return nil, err
	}
	c := touched(a, in)
	if err := confirmProposal(c, in.Now); err != nil {
		return nil, err
	}
	return c, nil
}

func applyModificationDeclined(a *Appointment, in Input) (*Appointment, error) {
	if err := require(a, in, StatusModificationPending, ActorAdmin); err != nil {
		return nil, err
	}
	if in.Reason == "" {
		return nil, ErrMissingReason
	}
	// The proposal is discarded and the appointment reverts to its
	// agreed slot unchanged; the reason is recorded in the ledger.
	c := touched(a, in)
	c.Status = StatusConfirmed
	clearProposal(c)
	return c, nil
}

func applyCancel(a *Appointment, in Input) (*Appointment, error) {
	switch a.Status {
	case StatusPending, StatusConfirmed, StatusAwaitingPatientResponse, StatusAwaitingAdminResponse:
	default:
		return nil, ErrInvalidTransition
	}
	if in.Actor.Role != ActorPatient && in.Actor.Role != ActorAdmin {
		return nil, ErrInvalidTransition
	}
	// Patients cancelling a confirmed appointment are bound by the
	// 24-hour window; staff and non-confirmed cancellations are not.
	if in.Actor.Role == ActorPatient && a.Status == StatusConfirmed {
		if err := checkCutoff(a, in); err != nil {
			return nil, err
		}
	}
	c := touched(a, in)
	c.Status = StatusCancelled
	c.CancelledAt = &in.Now
	if in.Reason != "" {
		c.CancellationReason = &in.Reason
	}
	clearProposal(c)
	return c, nil
}

func applyOutcome(a *Appointment, in Input, to Status) (*Appointment, error) {
	if err := require(a, in, StatusConfirmed, ActorAdmin); err != nil {
		return nil, err
	}
	start, err := a.StartAt(in.Loc)
	if err != nil {
		return nil, fmt.Errorf("appointment start: %w", err)
	}
	if !in.Now.After(start) {
		return nil, ErrPolicyViolation
	}
	c := touched(a, in)
	c.Status = to
	return c, nil
}

func applyNotes(a *Appointment, in Input) (*Appointment, error) {
	if in.Actor.Role != ActorAdmin {
		return nil, ErrInvalidTransition
	}
	c := touched(a, in)
	c.StaffNotes = in.Message
	return c, nil
}

// Helpers

func require(a *Appointment, in Input, from Status, role Actor) error {
	if a.Status != from || in.Actor.Role != role {
		return ErrInvalidTransition
	}
	return nil
}

func touched(a *Appointment, in Input) *Appointment {
	c := a.Clone()
	c.UpdatedAt = in.Now
	if in.Actor.Name != "" {
		c.LastModifiedBy = in.Actor.Name
	} else {
		c.LastModifiedBy = string(in.Actor.Role)
	}
	return c
}

func setProposal(c *Appointment, slot availability.Slot, consultationType *string) {
	c.ProposedDate = &slot.Date
	c.ProposedTime = &slot.Time
	c.ProposedConsultationType = consultationType
}

// confirmProposal copies the pending proposal into the agreed slot and
// clears the negotiation fields. Shared by proposal acceptance, counter
// acceptance and modification approval, which are structurally identical.
func confirmProposal(c *Appointment, now time.Time) error {
	p := c.ProposedSlot()
	if p == nil {
		return ErrInvalidTransition
	}
	c.Date = p.Date
	c.Time = p.Time
	if c.ProposedConsultationType != nil {
		c.ConsultationType = *c.ProposedConsultationType
	}
	clearProposal(c)
	c.Status = StatusConfirmed
	c.ConfirmedAt = &now
	return nil
}

func clearProposal(c *Appointment) {
	c.ProposedDate = nil
	c.ProposedTime = nil
	c.ProposedConsultationType = nil
	c.AdminMessage = nil
	c.PatientMessage = nil
}

func checkCutoff(a *Appointment, in Input) error {
	start, err := a.StartAt(in.Loc)
	if err != nil {
		return fmt.Errorf("appointment start: %w", err)
	}
	// Exactly at the cutoff instant is still allowed.
	if in.Now.After(start.Add(-in.CancelCutoff)) {
		return ErrPolicyViolation
	}
	return nil
}
