// Package slotlock provides short-lived advisory reservations of a single
// (date, time) slot while a client is choosing it in the UI. Locks narrow
// the booking race window but are never authoritative: a lock can expire or
// be bypassed by a client that skips the UI, so the booking service always
// re-checks slot occupancy at commit time.
package slotlock

import (
	"context"
	"errors"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

var ErrSlotLocked = errors.New("slot is locked by another client")

// Manager guards tentative slot selections per (date, time) key.
type Manager interface {
	// Acquire reserves the slot for holderToken. It fails with
	// ErrSlotLocked when an unexpired lock with a different holder exists.
	// Re-acquiring a slot you already hold refreshes the TTL.
	Acquire(ctx context.Context, slot availability.Slot, holderToken string) error

	// Release drops the holder's lock. Missing or foreign locks are a
	// no-op: the slot may simply have expired underneath the client.
	Release(ctx context.Context, slot availability.Slot, holderToken string) error
}
