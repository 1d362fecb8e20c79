package regioncache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/unkn0wn-root/regioncache/internal/keys"
	"github.com/unkn0wn-root/regioncache/store"
)

const timestampAttempts = 5

// Timestamper issues timestamps that increase across every process sharing
// the backing store, for write-time conflict detection.
//
// Plain wall clock is not enough: processes drift, so a slow-clocked one
// could reissue values another already handed out. Plain atomic increment
// is not enough either: if the counter key is ever evicted, the first
// process to reinitialize it may be the one with the slowest clock, and the
// counter restarts behind previously issued values. The hybrid covers both:
// under an optimistic watch the counter is read, the candidate becomes
// max(wall clock, counter) + 1, and a conditional commit writes it back. A
// drifted-behind clock just increments the counter; a counter that fell
// behind snaps forward to wall clock.
//
// When the conditional commit keeps losing to concurrent writers the cycle
// is retried up to a fixed bound, then gives up on wall-clock healing for
// that one call and does a plain increment, which always succeeds and stays
// monotonic. The bound keeps worst-case latency finite under contention.
type Timestamper struct {
	store    store.Store
	key      string
	log      Logger
	hooks    Hooks
	clock    func() time.Time
	attempts int
}

// NewTimestamper builds a standalone generator for the named counter.
// Factories carry their own; use this when issuing timestamps without one.
func NewTimestamper(st store.Store, name string) *Timestamper {
	return &Timestamper{
		store:    st,
		key:      keys.Timestamp(name),
		log:      NopLogger{},
		hooks:    NopHooks{},
		clock:    time.Now,
		attempts: timestampAttempts,
	}
}

// Next returns the next cluster-wide timestamp. Conflicts with concurrent
// callers resolve internally; the only error surfaced is store
// unavailability.
func (t *Timestamper) Next(ctx context.Context) (int64, error) {
	for attempt := 1; attempt <= t.attempts; attempt++ {
		ts, err := t.tryUpdate(ctx)
		if err == nil {
			t.log.Debug("timestamp issued", Fields{"key": t.key, "attempt": attempt, "timestamp": ts})
			return ts, nil
		}
		if !errors.Is(err, store.ErrTxConflict) {
			return 0, err
		}
	}

	// every conditional update lost to a concurrent writer; a plain
	// increment preserves monotonicity but skips wall-clock healing for
	// this call
	v, err := t.store.Incr(ctx, t.key)
	if err != nil {
		return 0, err
	}
	t.log.Warn("conditional timestamp update exhausted retries; fell back to increment",
		Fields{"key": t.key, "attempts": t.attempts, "timestamp": v})
	t.hooks.TimestampFallback(t.key, t.attempts)
	return v, nil
}

func (t *Timestamper) tryUpdate(ctx context.Context) (int64, error) {
	var next int64
	err := t.store.Watch(ctx, t.key, func(tx store.Tx) error {
		raw, ok, err := tx.Get(ctx, t.key)
		if err != nil {
			return err
		}
		var current int64
		if ok {
			current, _ = strconv.ParseInt(string(raw), 10, 64)
		}
		next = max(t.clock().UnixMilli(), current) + 1
		// decimal string so the increment fallback reads the same value
		return tx.Commit(ctx, func(b store.Batch) {
			b.Set(t.key, []byte(strconv.FormatInt(next, 10)))
		})
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}
