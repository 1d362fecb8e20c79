package regioncache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/unkn0wn-root/regioncache/internal/keys"
	"github.com/unkn0wn-root/regioncache/store"
)

// Factory builds region engines over one shared store client, keeps the
// registry of region names the sweeper scans, and issues cluster-monotonic
// timestamps. One factory per process and backing store is the expected
// shape; the sweeper it owns is started on construction and stopped by
// Close.
type Factory struct {
	store store.Store
	log   Logger
	hooks Hooks
	clock func() time.Time
	props Properties

	// regions is append-only during normal operation: names are never
	// removed because removal would need coordination across every process
	// sharing the store. xsync.MapOf supports iteration while inserting,
	// so the sweeper needs no extra locking.
	regions *xsync.MapOf[string, struct{}]

	sweep *sweeper
	ts    *Timestamper

	closeStore bool
	closeOnce  sync.Once
}

func NewFactory(opts Options) (*Factory, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("regioncache: store is required")
	}

	f := &Factory{
		store:      opts.Store,
		props:      opts.Properties,
		regions:    xsync.NewMapOf[string, struct{}](),
		closeStore: opts.CloseStore,
	}
	f.log = coalesce[Logger](opts.Logger, NopLogger{})
	f.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	f.clock = time.Now
	if opts.Clock != nil {
		f.clock = opts.Clock
	}

	f.ts = &Timestamper{
		store:    opts.Store,
		key:      keys.Timestamp(coalesce(opts.TimestampKey, "default")),
		log:      f.log,
		hooks:    f.hooks,
		clock:    f.clock,
		attempts: timestampAttempts,
	}

	if !opts.DisableSweeper {
		f.sweep = newSweeper(sweeperConfig{
			store:    opts.Store,
			log:      f.log,
			hooks:    f.hooks,
			clock:    f.clock,
			interval: coalesce(opts.SweepInterval, DefaultSweepInterval),
			regions:  f.regions,
		})
		f.sweep.start()
	}
	return f, nil
}

// register adds a region name to the sweeper's scan set. Names are never
// removed.
func (f *Factory) register(name string) {
	f.regions.Store(name, struct{}{})
}

// RegionNames snapshots the registered region names.
func (f *Factory) RegionNames() []string {
	var out []string
	f.regions.Range(func(name string, _ struct{}) bool {
		out = append(out, name)
		return true
	})
	return out
}

// NextTimestamp returns a value strictly greater than every timestamp
// previously issued against this factory's backing store (non-decreasing
// in the rare contention-fallback case).
func (f *Factory) NextTimestamp(ctx context.Context) (int64, error) {
	return f.ts.Next(ctx)
}

// Timestamper exposes the factory's generator for callers that hold onto it
// directly.
func (f *Factory) Timestamper() *Timestamper { return f.ts }

// MinimalPutsEnabledByDefault tells the collaborator to optimize for
// minimal puts: near-free for single-node users and a real win for
// clustered ones.
func (f *Factory) MinimalPutsEnabledByDefault() bool { return true }

func (f *Factory) DefaultAccessType() AccessType { return AccessTypeReadWrite }

// Ping checks backing-store liveness.
func (f *Factory) Ping(ctx context.Context) error {
	return f.store.Ping(ctx)
}

// FlushAll wipes the whole backing database. This is the one operation that
// physically deletes region contents; Destroy never does.
func (f *Factory) FlushAll(ctx context.Context) error {
	f.log.Info("flushing backing store", nil)
	return f.store.FlushDB(ctx)
}

// Close stops the sweeper and, when the factory owns it, the store client.
// Safe to call multiple times.
func (f *Factory) Close(context.Context) error {
	var err error
	f.closeOnce.Do(func() {
		if f.sweep != nil {
			f.sweep.stop()
		}
		if f.closeStore {
			err = f.store.Close()
		}
	})
	return err
}

// configFor resolves a region's config from factory properties plus
// per-region overrides.
func configFor[V any](f *Factory, name string, props Properties, noTimeExpiry bool) RegionConfig[V] {
	merged := f.props.merged(props)
	return RegionConfig[V]{
		Expiry:                 merged.expiry(name),
		LockTimeout:            merged.lockTimeout(),
		DisableTimeBasedExpiry: noTimeExpiry,
	}
}

// EntityRegion builds a region for entity data.
func EntityRegion[V any](f *Factory, name string, props Properties) (*Region[V], error) {
	return NewRegion(f, name, configFor[V](f, name, props, false))
}

// CollectionRegion builds a region for collection-role data.
func CollectionRegion[V any](f *Factory, name string, props Properties) (*Region[V], error) {
	return NewRegion(f, name, configFor[V](f, name, props, false))
}

// NaturalIDRegion builds a region for natural-id resolution data.
func NaturalIDRegion[V any](f *Factory, name string, props Properties) (*Region[V], error) {
	return NewRegion(f, name, configFor[V](f, name, props, false))
}

// QueryResultsRegion builds a region for query-result data.
func QueryResultsRegion[V any](f *Factory, name string, props Properties) (*Region[V], error) {
	return NewRegion(f, name, configFor[V](f, name, props, false))
}

// TimestampsRegion builds the update-timestamps region. The collaborator
// refreshes its entries by replacement and invalidates by version, so the
// region opts out of time-based expiry: no index writes, no sliding refresh,
// no sweeping.
func TimestampsRegion[V any](f *Factory, name string, props Properties) (*Region[V], error) {
	return NewRegion(f, name, configFor[V](f, name, props, true))
}
