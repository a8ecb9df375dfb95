package booking

import "errors"

var (
	// ErrInvalidTransition: the action is not legal from the current
	// status, or the actor role does not match the action.
	ErrInvalidTransition = errors.New("action not allowed from current status")

	// ErrSlotConflict: the target slot is occupied by another active
	// appointment. Raised by the commit-time check, which is the only
	// authoritative double-booking guard.
	ErrSlotConflict = errors.New("slot is occupied by another appointment")

	// ErrSlotUnavailable: the target slot fails the availability rules
	// (past, beyond the horizon, closed day, holiday, off the grid).
	ErrSlotUnavailable = errors.New("slot is not bookable")

	// ErrPolicyViolation: the 24-hour modification/cancellation window
	// has passed.
	ErrPolicyViolation = errors.New("too close to the appointment time")

	// ErrMissingReason: the action requires a free-text justification.
	ErrMissingReason = errors.New("a reason is required for this action")

	ErrNotFound = errors.New("appointment not found")
)
