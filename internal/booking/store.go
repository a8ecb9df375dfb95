package booking

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

// SlotGuard names the slot a commit must find free. BlockOnPending widens
// the occupancy check to pending requests: a new create request is blocked
// by anything active on the slot, while a confirmation only conflicts with
// appointments that already hold the slot (confirmed or mid-negotiation);
// competing pending requests are arbitrated by whichever accept commits
// first.
type SlotGuard struct {
	Slot           availability.Slot
	ExcludeID      uuid.UUID
	BlockOnPending bool
}

// Store contains all persistence the service needs. Create and
// CommitTransition are atomic: the guard's conflict check, the appointment
// write and the history append happen in one unit, serialized per slot, so
// no interleaving request can observe a stale "free" slot.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// ActiveSlots lists the (date, time) pairs held by active
	// appointments on the date, excluding the given appointment.
	ActiveSlots(ctx context.Context, date string, exclude uuid.UUID) ([]availability.Slot, error)

	Create(ctx context.Context, a *Appointment, entry *HistoryEntry, guard *SlotGuard) error

	// CommitTransition persists the transitioned appointment with a
	// compare-and-set on the prior status; a miss means a concurrent
	// writer got there first and surfaces as ErrInvalidTransition.
	CommitTransition(ctx context.Context, a *Appointment, from Status, entry *HistoryEntry, guard *SlotGuard) error

	History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error)
}
