package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/booking"
)

type CreateAppointmentRequest struct {
	PatientID        string `json:"patient_id"`
	Date             string `json:"date"`
	Time             string `json:"time"`
	ConsultationType string `json:"consultation_type"`
	Reason           string `json:"reason"`
	LockToken        string `json:"lock_token,omitempty"`
}

// ProposalRequest carries an alternate slot for admin proposals, patient
// counter-proposals and modification requests.
type ProposalRequest struct {
	Date             string `json:"date"`
	Time             string `json:"time"`
	ConsultationType string `json:"consultation_type,omitempty"`
	Message          string `json:"message,omitempty"`
	LockToken        string `json:"lock_token,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type NotesRequest struct {
	Notes string `json:"notes"`
}

type SlotLockRequest struct {
	Date        string `json:"date"`
	Time        string `json:"time"`
	HolderToken string `json:"holder_token"`
}

type AppointmentResponse struct {
	ID               uuid.UUID  `json:"id"`
	PatientID        uuid.UUID  `json:"patient_id"`
	Status           string     `json:"status"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	ConsultationType string     `json:"consultation_type"`
	ProposedDate     *string    `json:"proposed_date,omitempty"`
	ProposedTime     *string    `json:"proposed_time,omitempty"`
	ProposedType     *string    `json:"proposed_consultation_type,omitempty"`
	AdminMessage     *string    `json:"admin_message,omitempty"`
	PatientMessage   *string    `json:"patient_message,omitempty"`
	RejectionReason  *string    `json:"rejection_reason,omitempty"`
	CancelReason     *string    `json:"cancellation_reason,omitempty"`
	Reason           string     `json:"reason,omitempty"`
	StaffNotes       string     `json:"staff_notes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	RespondedAt      *time.Time `json:"responded_at,omitempty"`
	ProposalSentAt   *time.Time `json:"proposal_sent_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		PatientID:        a.PatientID,
		Status:           string(a.Status),
		Date:             a.Date,
		Time:             a.Time,
		ConsultationType: a.ConsultationType,
		ProposedDate:     a.ProposedDate,
		ProposedTime:     a.ProposedTime,
		ProposedType:     a.ProposedConsultationType,
		AdminMessage:     a.AdminMessage,
		PatientMessage:   a.PatientMessage,
		RejectionReason:  a.RejectionReason,
		CancelReason:     a.CancellationReason,
		Reason:           a.Reason,
		StaffNotes:       a.StaffNotes,
		CreatedAt:        a.CreatedAt,
		ConfirmedAt:      a.ConfirmedAt,
		RespondedAt:      a.RespondedAt,
		ProposalSentAt:   a.ProposalSentAt,
		CancelledAt:      a.CancelledAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type HistoryEntryResponse struct {
	ID        int64                 `json:"id"`
	Action    string                `json:"action"`
	Actor     string                `json:"actor"`
	ActorName string                `json:"actor_name,omitempty"`
	Changes   []booking.FieldChange `json:"changes"`
	Reason    *string               `json:"reason,omitempty"`
	Message   *string               `json:"message,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

type SlotResponse struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
