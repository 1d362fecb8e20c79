package regioncache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/regioncache/codec"
	"github.com/unkn0wn-root/regioncache/internal/keys"
	"github.com/unkn0wn-root/regioncache/store"
)

// Region is one named cache namespace: a primary hash of key -> encoded
// value plus a sorted-set expiration index of key -> expiry millis.
//
// Read paths (Contains, Get, Keys, Size, AsMap) never fail outward: a
// transport or decode problem degrades to miss/empty/unknown with a warning
// log, because a false miss only costs a cache fill while a thrown error
// would break the collaborator's hot path. Write paths (Put, Remove) do
// report failure so the caller can decide whether to proceed uncached.
//
// All mutable state lives in the backing store; a Region itself carries
// only immutable configuration plus the local destroyed flag, so one value
// may be shared across goroutines freely.
type Region[V any] struct {
	name  string
	zkey  string
	store store.Store
	codec codec.Codec[V]
	log   Logger
	hooks Hooks
	clock func() time.Time

	expiry      time.Duration
	lockTimeout time.Duration
	timeBased   bool

	destroyed atomic.Bool
}

// NewRegion builds the engine for one logical region and registers its name
// with the factory's sweeper (unless the region opted out of time-based
// expiry, in which case there is no index to sweep).
func NewRegion[V any](f *Factory, name string, cfg RegionConfig[V]) (*Region[V], error) {
	if f == nil {
		return nil, fmt.Errorf("regioncache: factory is required")
	}
	if name == "" {
		return nil, fmt.Errorf("regioncache: region name is required")
	}

	c := cfg.Codec
	if c == nil {
		c = codec.Snappy[V]{Inner: codec.Msgpack[V]{}}
	}

	r := &Region[V]{
		name:        name,
		zkey:        keys.Expiry(name),
		store:       f.store,
		codec:       c,
		log:         f.log,
		hooks:       f.hooks,
		clock:       f.clock,
		expiry:      coalesce(cfg.Expiry, f.props.expiry(name)),
		lockTimeout: coalesce(cfg.LockTimeout, f.props.lockTimeout()),
		timeBased:   !cfg.DisableTimeBasedExpiry,
	}

	if r.timeBased {
		f.register(name)
	}
	f.log.Debug("region built", Fields{
		"region":    name,
		"expiry":    r.expiry,
		"timeBased": r.timeBased,
	})
	return r, nil
}

func (r *Region[V]) Name() string { return r.name }

// Expiry is the configured entry lifetime for this region.
func (r *Region[V]) Expiry() time.Duration { return r.expiry }

// Timeout is the collaborator's cache lock timeout. The engine takes no
// action on it beyond exposing the configured value.
func (r *Region[V]) Timeout() time.Duration { return r.lockTimeout }

// Destroyed reports whether Destroy was called in this process.
func (r *Region[V]) Destroyed() bool { return r.destroyed.Load() }

// Contains checks primary-mapping membership only; it does not consult the
// expiration index. Transport errors degrade to false.
func (r *Region[V]) Contains(ctx context.Context, key string) bool {
	ok, err := r.store.HExists(ctx, r.name, key)
	if err != nil {
		r.log.Warn("contains check failed; treating as absent", Fields{"region": r.name, "key": key, "err": err})
		r.hooks.ReadDegraded(r.name, "contains", err)
		return false
	}
	return ok
}

// Get reads with the region's configured expiry as the lazy-expiration
// hint.
func (r *Region[V]) Get(ctx context.Context, key string) (V, bool) {
	return r.GetWithin(ctx, key, r.expiry)
}

// GetWithin reads one entry. With ttl > 0 it first consults the expiration
// index: a deadline at or before now means the entry is already dead, so it
// is reported absent and both sides are queued for best-effort removal.
// This lazy expiration covers the gap between sweeper cycles. On a hit the
// index deadline slides to now+ttl, except for regions without time-based
// expiry. Failures of any kind degrade to a miss.
func (r *Region[V]) GetWithin(ctx context.Context, key string, ttl time.Duration) (V, bool) {
	var zero V

	if ttl > 0 && r.isExpired(ctx, key) {
		if err := r.store.Pipelined(ctx, func(b store.Batch) {
			b.ZRem(r.zkey, key)
			b.HDel(r.name, key)
		}); err != nil {
			// cleanup is cosmetic here; the sweeper will catch the entry
			r.log.Warn("lazy-expiry cleanup failed", Fields{"region": r.name, "key": key, "err": err})
		}
		r.hooks.LazyExpired(r.name, key)
		return zero, false
	}

	raw, ok, err := r.store.HGet(ctx, r.name, key)
	if err != nil {
		r.log.Warn("get failed; treating as miss", Fields{"region": r.name, "key": key, "err": err})
		r.hooks.ReadDegraded(r.name, "get", err)
		return zero, false
	}
	if !ok {
		return zero, false
	}

	// sliding expiration on read
	if ttl > 0 && r.timeBased {
		deadline := float64(r.clock().Add(ttl).UnixMilli())
		if err := r.store.ZAdd(ctx, r.zkey, key, deadline); err != nil {
			r.log.Warn("expiry refresh failed", Fields{"region": r.name, "key": key, "err": err})
		}
	}

	v, err := r.codec.Decode(raw)
	if err != nil {
		// corrupt bytes must never break the caller; the source of truth is
		// elsewhere
		r.log.Warn("decode failed; treating as miss", Fields{"region": r.name, "key": key, "err": err})
		r.hooks.ReadDegraded(r.name, "decode", err)
		return zero, false
	}
	return v, true
}

func (r *Region[V]) isExpired(ctx context.Context, key string) bool {
	deadline, ok, err := r.store.ZScore(ctx, r.zkey, key)
	if err != nil {
		r.log.Warn("expiry check failed; assuming live", Fields{"region": r.name, "key": key, "err": err})
		return false
	}
	return ok && r.clock().UnixMilli() > int64(deadline)
}

// Put writes with the region's configured expiry.
func (r *Region[V]) Put(ctx context.Context, key string, value V) error {
	return r.PutWithin(ctx, key, value, r.expiry)
}

// PutWithin stores one entry. The primary-mapping write and the
// expiration-index write go out as one transactional batch: a concurrent
// reader or sweeper never observes the value without its index entry or
// vice versa. ttl <= 0 stores the entry with no index entry, so it never
// expires through the index.
func (r *Region[V]) PutWithin(ctx context.Context, key string, value V, ttl time.Duration) error {
	if r.destroyed.Load() {
		return ErrRegionDestroyed
	}

	raw, err := r.codec.Encode(value)
	if err != nil {
		// abandoned write: whatever the store holds stays authoritative
		return fmt.Errorf("%w: region %s key %s: %v", ErrSerialization, r.name, key, err)
	}

	return r.store.TxPipelined(ctx, func(b store.Batch) {
		b.HSet(r.name, key, raw)
		if ttl > 0 && r.timeBased {
			b.ZAdd(r.zkey, key, float64(r.clock().Add(ttl).UnixMilli()))
		}
	})
}

// Remove deletes the entry and its index member atomically. Removing an
// absent key is not an error.
func (r *Region[V]) Remove(ctx context.Context, key string) error {
	if r.destroyed.Load() {
		return ErrRegionDestroyed
	}
	return r.store.TxPipelined(ctx, func(b store.Batch) {
		b.HDel(r.name, key)
		b.ZRem(r.zkey, key)
	})
}

// RemoveAll is Remove for a key set, still one atomic batch.
func (r *Region[V]) RemoveAll(ctx context.Context, keys ...string) error {
	if r.destroyed.Load() {
		return ErrRegionDestroyed
	}
	if len(keys) == 0 {
		return nil
	}
	return r.store.TxPipelined(ctx, func(b store.Batch) {
		b.HDel(r.name, keys...)
		b.ZRem(r.zkey, keys...)
	})
}

// Keys returns every key in the primary mapping; empty on failure.
func (r *Region[V]) Keys(ctx context.Context) []string {
	ks, err := r.store.HKeys(ctx, r.name)
	if err != nil {
		r.log.Warn("keys listing failed; returning empty", Fields{"region": r.name, "err": err})
		r.hooks.ReadDegraded(r.name, "keys", err)
		return nil
	}
	return ks
}

// Size counts primary-mapping entries; -1 means unknown, distinct from a
// true zero.
func (r *Region[V]) Size(ctx context.Context) int64 {
	n, err := r.store.HLen(ctx, r.name)
	if err != nil {
		r.log.Warn("size failed; returning -1", Fields{"region": r.name, "err": err})
		r.hooks.ReadDegraded(r.name, "size", err)
		return -1
	}
	return n
}

// SizeInMemory reports the whole backing database's key count; -1 on
// failure.
func (r *Region[V]) SizeInMemory(ctx context.Context) int64 {
	n, err := r.store.DBSize(ctx)
	if err != nil {
		r.log.Warn("dbsize failed; returning -1", Fields{"region": r.name, "err": err})
		return -1
	}
	return n
}

// AsMap decodes and returns the full region contents. Entries whose bytes
// no longer decode are skipped; a transport failure yields an empty map.
func (r *Region[V]) AsMap(ctx context.Context) map[string]V {
	raw, err := r.store.HGetAll(ctx, r.name)
	if err != nil {
		r.log.Warn("asMap failed; returning empty", Fields{"region": r.name, "err": err})
		r.hooks.ReadDegraded(r.name, "asMap", err)
		return map[string]V{}
	}
	out := make(map[string]V, len(raw))
	for k, b := range raw {
		v, err := r.codec.Decode(b)
		if err != nil {
			r.hooks.ReadDegraded(r.name, "decode", err)
			continue
		}
		out[k] = v
	}
	return out
}

// Destroy marks the region deleted in this process only. The remote hash
// and index are deliberately left in place: in a clustered deployment other
// nodes may still depend on them, so entries disappear only as they expire.
// Subsequent writes through this engine fail with ErrRegionDestroyed;
// reads keep being served.
func (r *Region[V]) Destroy() {
	r.destroyed.Store(true)
	r.log.Info("region destroyed; remote entries left to expire", Fields{"region": r.name})
}
