package booking

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

// MemStore is an in-process Store with the same atomicity contract as the
// Postgres implementation: one mutex serializes every commit, so the
// conflict check and the write are indivisible. Used in tests and local
// development.
type MemStore struct {
	mu      sync.Mutex
	appts   map[uuid.UUID]*Appointment
	history map[uuid.UUID][]HistoryEntry
	seq     int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		appts:   make(map[uuid.UUID]*Appointment),
		history: make(map[uuid.UUID][]HistoryEntry),
	}
}

func (m *MemStore) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (m *MemStore) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID {
			out = append(out, *a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) ActiveSlots(_ context.Context, date string, exclude uuid.UUID) ([]availability.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []availability.Slot
	for _, a := range m.appts {
		if a.ID == exclude || !a.Status.Active() || a.Date != date {
			continue
		}
		out = append(out, a.Slot())
	}
	return out, nil
}

func (m *MemStore) Create(_ context.Context, a *Appointment, entry *HistoryEntry, guard *SlotGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkGuard(guard); err != nil {
		return err
	}
	m.appts[a.ID] = a.Clone()
	m.appendEntry(entry)
	return nil
}

func (m *MemStore) CommitTransition(_ context.Context, a *Appointment, from Status, entry *HistoryEntry, guard *SlotGuard) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.appts[a.ID]
	if !ok {
		return ErrNotFound
	}
	// Compare-and-set: a concurrent writer moved the status first.
	if cur.Status != from {
		return ErrInvalidTransition
	}
	if err := m.checkGuard(guard); err != nil {
		return err
	}
	m.appts[a.ID] = a.Clone()
	m.appendEntry(entry)
	return nil
}

func (m *MemStore) History(_ context.Context, id uuid.UUID) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.history[id]
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

// Seed inserts an appointment directly, bypassing validation. Tests use it
// to set up states (e.g. two pending requests on one slot) that the engine
// itself would not admit.
func (m *MemStore) Seed(a *Appointment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appts[a.ID] = a.Clone()
}

func (m *MemStore) checkGuard(guard *SlotGuard) error {
	if guard == nil {
		return nil
	}
	for _, a := range m.appts {
		if a.ID == guard.ExcludeID || !a.Status.Active() {
			continue
		}
		if a.Slot() != guard.Slot {
			continue
		}
		if a.Status == StatusPending && !guard.BlockOnPending {
			continue
		}
		return ErrSlotConflict
	}
	return nil
}

func (m *MemStore) appendEntry(entry *HistoryEntry) {
	if entry == nil {
		return
	}
	m.seq++
	e := *entry
	e.ID = m.seq
	m.history[e.AppointmentID] = append(m.history[e.AppointmentID], e)
}
