package slotlock

import (
	"context"
	"sync"
	"time"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

type memLock struct {
	holder    string
	expiresAt time.Time
}

// MemManager is an in-process Manager with the same semantics as the Redis
// implementation. Used in tests and single-node setups.
type MemManager struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	locks map[string]memLock
}

func NewMemManager(ttl time.Duration) *MemManager {
	return &MemManager{
		ttl:   ttl,
		now:   time.Now,
		locks: make(map[string]memLock),
	}
}

// SetClock overrides the time source for tests.
func (m *MemManager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemManager) Acquire(_ context.Context, slot availability.Slot, holderToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot.Key()
	now := m.now()
	if l, ok := m.locks[key]; ok && l.expiresAt.After(now) && l.holder != holderToken {
		return ErrSlotLocked
	}
	m.locks[key] = memLock{holder: holderToken, expiresAt: now.Add(m.ttl)}
	return nil
}

func (m *MemManager) Release(_ context.Context, slot availability.Slot, holderToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slot.Key()
	if l, ok := m.locks[key]; ok && l.holder == holderToken {
		delete(m.locks, key)
	}
	return nil
}
