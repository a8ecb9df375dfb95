package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

// PgStore is the production Store. Create and CommitTransition run inside
// a transaction holding pg_advisory_xact_lock on the slot key, so the
// occupancy check, the row write and the ledger insert are one atomic unit
// serialized per (date, time).
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const apptColumns = `
	id, patient_id, created_by, last_modified_by,
	date, time, consultation_type,
	proposed_date, proposed_time, proposed_consultation_type,
	admin_message, patient_message,
	rejection_reason, cancellation_reason,
	status, reason, staff_notes,
	created_at, confirmed_at, responded_at, proposal_sent_at, cancelled_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID, &a.PatientID, &a.CreatedBy, &a.LastModifiedBy,
		&a.Date, &a.Time, &a.ConsultationType,
		&a.ProposedDate, &a.ProposedTime, &a.ProposedConsultationType,
		&a.AdminMessage, &a.PatientMessage,
		&a.RejectionReason, &a.CancellationReason,
		&a.Status, &a.Reason, &a.StaffNotes,
		&a.CreatedAt, &a.ConfirmedAt, &a.RespondedAt, &a.ProposalSentAt, &a.CancelledAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *PgStore) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (s *PgStore) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PgStore) ActiveSlots(ctx context.Context, date string, exclude uuid.UUID) ([]availability.Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT date, time
		FROM appointments
		WHERE date = $1
		  AND id <> $2
		  AND status NOT IN ('rejected', 'rejected_by_patient', 'cancelled', 'completed', 'no_show')
	`, date, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Slot
	for rows.Next() {
		var slot availability.Slot
		if err := rows.Scan(&slot.Date, &slot.Time); err != nil {
			return nil, err
		}
		out = append(out, slot)
	}
	return out, rows.Err()
}

func (s *PgStore) Create(ctx context.Context, a *Appointment, entry *HistoryEntry, guard *SlotGuard) error {
	return s.inSlotTx(ctx, guard, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointments (`+apptColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		`,
			a.ID, a.PatientID, a.CreatedBy, a.LastModifiedBy,
			a.Date, a.Time, a.ConsultationType,
			a.ProposedDate, a.ProposedTime, a.ProposedConsultationType,
			a.AdminMessage, a.PatientMessage,
			a.RejectionReason, a.CancellationReason,
			a.Status, a.Reason, a.StaffNotes,
			a.CreatedAt, a.ConfirmedAt, a.RespondedAt, a.ProposalSentAt, a.CancelledAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *PgStore) CommitTransition(ctx context.Context, a *Appointment, from Status, entry *HistoryEntry, guard *SlotGuard) error {
	return s.inSlotTx(ctx, guard, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE appointments
			SET last_modified_by = $3,
			    date = $4, time = $5, consultation_type = $6,
			    proposed_date = $7, proposed_time = $8, proposed_consultation_type = $9,
			    admin_message = $10, patient_message = $11,
			    rejection_reason = $12, cancellation_reason = $13,
			    status = $14, staff_notes = $15,
			    confirmed_at = $16, responded_at = $17, proposal_sent_at = $18,
			    cancelled_at = $19, updated_at = $20
			WHERE id = $1
			  AND status = $2
		`,
			a.ID, from, a.LastModifiedBy,
			a.Date, a.Time, a.ConsultationType,
			a.ProposedDate, a.ProposedTime, a.ProposedConsultationType,
			a.AdminMessage, a.PatientMessage,
			a.RejectionReason, a.CancellationReason,
			a.Status, a.StaffNotes,
			a.ConfirmedAt, a.RespondedAt, a.ProposalSentAt,
			a.CancelledAt, a.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Either the row is gone or a concurrent writer moved the
			// status first; tell them apart for the caller.
			var exists bool
			if err := tx.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, a.ID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check appointment exists: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrInvalidTransition
		}
		return insertHistory(ctx, tx, entry)
	})
}

func (s *PgStore) History(ctx context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, appointment_id, action, actor, actor_name, changes, reason, message, created_at
		FROM appointment_history
		WHERE appointment_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var changes []byte
		if err := rows.Scan(&e.ID, &e.AppointmentID, &e.Action, &e.Actor, &e.ActorName, &changes, &e.Reason, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(changes) > 0 {
			if err := json.Unmarshal(changes, &e.Changes); err != nil {
				return nil, fmt.Errorf("decode history changes: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// inSlotTx runs fn in a transaction. When a guard is present the slot's
// advisory transaction lock is taken first and the occupancy check runs
// before fn; the lock releases on commit or rollback.
func (s *PgStore) inSlotTx(ctx context.Context, guard *SlotGuard, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if guard != nil {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, guard.Slot.Key(),
		); err != nil {
			return fmt.Errorf("slot tx lock: %w", err)
		}

		var occupied bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM appointments
				WHERE date = $1
				  AND time = $2
				  AND id <> $3
				  AND status NOT IN ('rejected', 'rejected_by_patient', 'cancelled', 'completed', 'no_show')
				  AND (status <> 'pending' OR $4)
			)
		`, guard.Slot.Date, guard.Slot.Time, guard.ExcludeID, guard.BlockOnPending).Scan(&occupied)
		if err != nil {
			return fmt.Errorf("slot conflict check: %w", err)
		}
		if occupied {
			return ErrSlotConflict
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertHistory(ctx context.Context, tx pgx.Tx, entry *HistoryEntry) error {
	if entry == nil {
		return nil
	}
	changes, err := json.Marshal(entry.Changes)
	if err != nil {
		return fmt.Errorf("encode history changes: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO appointment_history (appointment_id, action, actor, actor_name, changes, reason, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.AppointmentID, entry.Action, entry.Actor, entry.ActorName, changes, entry.Reason, entry.Message, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}
