package slotlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/booking-engine/internal/availability"
)

type redisManager struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisManager creates a Manager backed by one Redis key per slot.
// Expiry is Redis TTL; no sweeper is needed.
func NewRedisManager(client *redis.Client, ttl time.Duration) Manager {
	return &redisManager{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(slot availability.Slot) string {
	return fmt.Sprintf("slotlock:%s:%s", slot.Date, slot.Time)
}

func (m *redisManager) Acquire(ctx context.Context, slot availability.Slot, holderToken string) error {
	key := lockKey(slot)

	ok, err := m.client.SetNX(ctx, key, holderToken, m.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire slot lock: %w", err)
	}
	if ok {
		return nil
	}

	// Refresh if we already hold it, otherwise the slot is taken.
	refreshed, err := refreshScript.Run(ctx, m.client, []string{key}, holderToken, m.ttl.Milliseconds()).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("refresh slot lock: %w", err)
	}
	if refreshed == 0 {
		return ErrSlotLocked
	}
	return nil
}

func (m *redisManager) Release(ctx context.Context, slot availability.Slot, holderToken string) error {
	_, err := unlockScript.Run(ctx, m.client, []string{lockKey(slot)}, holderToken).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

var refreshScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
  return 0
end
`)

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)
