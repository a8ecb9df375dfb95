package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
	"github.com/clinicdesk/booking-engine/internal/booking"
	"github.com/clinicdesk/booking-engine/internal/slotlock"
)

// actorFrom reads the caller identity the auth collaborator attached to
// the request. The engine trusts it as given.
func actorFrom(r *http.Request) (booking.ActorRef, bool) {
	role := booking.Actor(r.Header.Get("X-Actor-Role"))
	if role != booking.ActorPatient && role != booking.ActorAdmin {
		return booking.ActorRef{}, false
	}
	return booking.ActorRef{Role: role, Name: r.Header.Get("X-Actor-Name")}, true
}

func apptID(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, "id"))
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-Role must be patient or admin")
			return
		}

		var req CreateAppointmentRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateRequest(r.Context(), booking.CreateParams{
			PatientID:        patientID,
			Slot:             availability.Slot{Date: req.Date, Time: req.Time},
			ConsultationType: req.ConsultationType,
			Reason:           req.Reason,
			Actor:            actor,
			LockToken:        req.LockToken,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit := queryInt(r, "limit", 20)
		offset := queryInt(r, "offset", 0)

		appts, err := svc.ListForPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func historyHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		entries, err := svc.History(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]HistoryEntryResponse, 0, len(entries))
		for _, e := range entries {
			out = append(out, HistoryEntryResponse{
				ID:        e.ID,
				Action:    string(e.Action),
				Actor:     string(e.Actor),
				ActorName: e.ActorName,
				Changes:   e.Changes,
				Reason:    e.Reason,
				Message:   e.Message,
				CreatedAt: e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// transitionHandler wraps the transitions that take no request body.
func transitionHandler(fn func(ctx context.Context, id uuid.UUID, actor booking.ActorRef) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-Role must be patient or admin")
			return
		}
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := fn(r.Context(), id, actor)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// reasonHandler wraps the transitions whose body is a free-text reason.
func reasonHandler(fn func(ctx context.Context, id uuid.UUID, actor booking.ActorRef, reason string) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-Role must be patient or admin")
			return
		}
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ReasonRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := decode(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := fn(r.Context(), id, actor, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// proposalHandler wraps the transitions that carry an alternate slot.
func proposalHandler(fn func(ctx context.Context, id uuid.UUID, actor booking.ActorRef, p booking.ProposalParams) (*booking.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-Role must be patient or admin")
			return
		}
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req ProposalRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := fn(r.Context(), id, actor, booking.ProposalParams{
			Slot:             availability.Slot{Date: req.Date, Time: req.Time},
			ConsultationType: req.ConsultationType,
			Message:          req.Message,
			LockToken:        req.LockToken,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateNotesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-Role must be patient or admin")
			return
		}
		id, err := apptID(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req NotesRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.UpdateStaffNotes(r.Context(), id, actor, req.Notes)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := r.URL.Query().Get("date")
		if date == "" {
			writeError(w, http.StatusBadRequest, "missing_date", "date query parameter is required")
			return
		}

		exclude := uuid.Nil
		if raw := r.URL.Query().Get("exclude_appointment"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_appointment_id", "exclude_appointment must be a valid UUID")
				return
			}
			exclude = id
		}

		slots, err := svc.AvailableSlots(r.Context(), date, exclude)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			out = append(out, SlotResponse{Date: s.Date, Time: s.Time})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func lockSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlotLockRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if req.HolderToken == "" {
			writeError(w, http.StatusBadRequest, "missing_holder_token", "holder_token is required")
			return
		}

		err := svc.AcquireSlotLock(r.Context(), availability.Slot{Date: req.Date, Time: req.Time}, req.HolderToken)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "locked"})
	}
}

func unlockSlotHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SlotLockRequest
		if err := decode(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		err := svc.ReleaseSlotLock(r.Context(), availability.Slot{Date: req.Date, Time: req.Time}, req.HolderToken)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
	}
}

// handleServiceError maps engine error kinds to HTTP statuses so clients
// can tell "pick another slot" from "call the clinic" from "refresh, your
// view is stale".
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, booking.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	case errors.Is(err, slotlock.ErrSlotLocked):
		writeError(w, http.StatusConflict, "slot_locked", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusUnprocessableEntity, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrPolicyViolation):
		writeError(w, http.StatusUnprocessableEntity, "policy_violation", err.Error())
	case errors.Is(err, booking.ErrMissingReason):
		writeError(w, http.StatusUnprocessableEntity, "missing_reason", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
