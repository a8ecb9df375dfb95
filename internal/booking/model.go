package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

type Status string

const (
	StatusPending                 Status = "pending"
	StatusConfirmed               Status = "confirmed"
	StatusAwaitingPatientResponse Status = "awaiting_patient_response"
	StatusAwaitingAdminResponse   Status = "awaiting_admin_response"
	StatusModificationPending     Status = "modification_pending"
	StatusRejectedByPatient       Status = "rejected_by_patient"
	StatusRejected                Status = "rejected"
	StatusCancelled               Status = "cancelled"
	StatusCompleted               Status = "completed"
	StatusNoShow                  Status = "no_show"
)

// Terminal reports whether no further transition is permitted from the
// status (administrative note-taking excepted).
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusRejectedByPatient, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Active statuses count against slot occupancy.
func (s Status) Active() bool {
	return !s.Terminal()
}

type Actor string

const (
	ActorPatient Actor = "patient"
	ActorAdmin   Actor = "admin"
	ActorSystem  Actor = "system"
)

// ActorRef is the identity the engine is handed by the auth collaborator.
// The engine trusts it as given.
type ActorRef struct {
	Role Actor
	Name string
}

type Action string

const (
	ActionCreated               Action = "created"
	ActionAccepted              Action = "accepted"
	ActionRejected              Action = "rejected"
	ActionProposalSent          Action = "proposal_sent"
	ActionProposalAccepted      Action = "proposal_accepted"
	ActionProposalRejected      Action = "proposal_rejected"
	ActionCounterProposed       Action = "counter_proposed"
	ActionCounterAccepted       Action = "counter_accepted"
	ActionCounterRejected       Action = "counter_rejected"
	ActionModificationRequested Action = "modification_requested"
	ActionModificationApproved  Action = "modification_approved"
	ActionModificationDeclined  Action = "modification_declined"
	ActionCancelled             Action = "cancelled"
	ActionCompleted             Action = "completed"
	ActionNoShow                Action = "no_show"
	ActionNotesUpdated          Action = "notes_updated"
)

// Appointment is the central entity. Date and Time always reflect the
// currently agreed slot; the Proposed* fields carry an in-flight proposal
// and never overwrite the agreed slot until the other party accepts.
type Appointment struct {
	ID             uuid.UUID
	PatientID      uuid.UUID
	CreatedBy      string
	LastModifiedBy string

	Date             string // YYYY-MM-DD
	Time             string // HH:MM
	ConsultationType string

	ProposedDate             *string
	ProposedTime             *string
	ProposedConsultationType *string
	AdminMessage             *string
	PatientMessage           *string

	RejectionReason    *string
	CancellationReason *string

	Status     Status
	Reason     string // patient-supplied motive for the visit
	StaffNotes string // internal

	CreatedAt      time.Time
	ConfirmedAt    *time.Time
	RespondedAt    *time.Time
	ProposalSentAt *time.Time
	CancelledAt    *time.Time
	UpdatedAt      time.Time
}

// Slot returns the currently agreed (date, time).
func (a *Appointment) Slot() availability.Slot {
	return availability.Slot{Date: a.Date, Time: a.Time}
}

// ProposedSlot returns the pending proposal, or nil when none is in flight.
func (a *Appointment) ProposedSlot() *availability.Slot {
	if a.ProposedDate == nil || a.ProposedTime == nil {
		return nil
	}
	return &availability.Slot{Date: *a.ProposedDate, Time: *a.ProposedTime}
}

// StartAt resolves the agreed slot to an instant in the clinic timezone.
func (a *Appointment) StartAt(loc *time.Location) (time.Time, error) {
	return a.Slot().At(loc)
}

// Clone deep-copies the appointment so transitions can mutate a copy and
// leave the original untouched on failure.
func (a *Appointment) Clone() *Appointment {
	c := *a
	c.ProposedDate = cloneStr(a.ProposedDate)
	c.ProposedTime = cloneStr(a.ProposedTime)
	c.ProposedConsultationType = cloneStr(a.ProposedConsultationType)
	c.AdminMessage = cloneStr(a.AdminMessage)
	c.PatientMessage = cloneStr(a.PatientMessage)
	c.RejectionReason = cloneStr(a.RejectionReason)
	c.CancellationReason = cloneStr(a.CancellationReason)
	c.ConfirmedAt = cloneTime(a.ConfirmedAt)
	c.RespondedAt = cloneTime(a.RespondedAt)
	c.ProposalSentAt = cloneTime(a.ProposalSentAt)
	c.CancelledAt = cloneTime(a.CancelledAt)
	return &c
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// FieldChange records one field touched by a transition.
type FieldChange struct {
	Field string `json:"field"`
	Old   any    `json:"old"`
	New   any    `json:"new"`
}

// HistoryEntry is one immutable row of the per-appointment audit journal.
type HistoryEntry struct {
	ID            int64
	AppointmentID uuid.UUID
	Action        Action
	Actor         Actor
	ActorName     string
	Changes       []FieldChange
	Reason        *string
	Message       *string
	CreatedAt     time.Time
}
