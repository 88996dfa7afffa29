package scan

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Debouncer suppresses rapid repeat taps of the same card before any
// directory or session lookup runs. It is an anti-bounce filter for flaky
// hardware only; the ledger's uniqueness constraint remains authoritative.
type Debouncer interface {
	// Reserve marks a card as seen at the given time. When the card was
	// already seen inside the window, ok is false and prior holds the
	// first tap's timestamp.
	Reserve(ctx context.Context, code string, at time.Time) (prior time.Time, ok bool, err error)
	// Release frees a reservation so a failed scan can be retried
	// immediately.
	Release(ctx context.Context, code string) error
}

// RedisDebouncer implements the window with SET NX PX, shared across
// all API instances.
type RedisDebouncer struct {
	client *redis.Client
	window time.Duration
}

// NewRedisDebouncer creates a debouncer with the given window.
func NewRedisDebouncer(client *redis.Client, window time.Duration) *RedisDebouncer {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &RedisDebouncer{client: client, window: window}
}

func debounceKey(code string) string { return "scan:seen:" + code }

// Reserve marks the card seen unless a reservation is already live.
func (d *RedisDebouncer) Reserve(ctx context.Context, code string, at time.Time) (time.Time, bool, error) {
	ok, err := d.client.SetNX(ctx, debounceKey(code), at.Format(time.RFC3339Nano), d.window).Result()
	if err != nil {
		return time.Time{}, false, err
	}
	if ok {
		return time.Time{}, true, nil
	}
	prev, err := d.client.Get(ctx, debounceKey(code)).Result()
	if err != nil {
		// Key expired between SetNX and Get; take over the window and let
		// the scan through rather than report a duplicate with no timestamp.
		if err := d.client.Set(ctx, debounceKey(code), at.Format(time.RFC3339Nano), d.window).Err(); err != nil {
			return time.Time{}, false, err
		}
		return time.Time{}, true, nil
	}
	prior, _ := time.Parse(time.RFC3339Nano, prev)
	return prior, false, nil
}

// Release drops the reservation.
func (d *RedisDebouncer) Release(ctx context.Context, code string) error {
	return d.client.Del(ctx, debounceKey(code)).Err()
}

// MemoryDebouncer is a process-local window for dev and tests.
type MemoryDebouncer struct {
	window time.Duration
	mu     sync.Mutex
	seen   map[string]time.Time
}

// NewMemoryDebouncer creates an in-memory debouncer.
func NewMemoryDebouncer(window time.Duration) *MemoryDebouncer {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &MemoryDebouncer{window: window, seen: make(map[string]time.Time)}
}

// Reserve marks the card seen unless a reservation is already live.
func (d *MemoryDebouncer) Reserve(_ context.Context, code string, at time.Time) (time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if prior, ok := d.seen[code]; ok && at.Sub(prior) < d.window {
		return prior, false, nil
	}
	d.seen[code] = at
	return time.Time{}, true, nil
}

// Release drops the reservation.
func (d *MemoryDebouncer) Release(_ context.Context, code string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, code)
	return nil
}
