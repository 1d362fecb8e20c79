package regioncache

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/unkn0wn-root/regioncache/internal/keys"
	"github.com/unkn0wn-root/regioncache/store"
)

// sweeper is the factory-owned background loop that reclaims expired
// entries. Each cycle it walks every registered region, asks the expiration
// index for members with deadline <= now, and removes entry and index
// member together via a best-effort pipelined batch.
//
// The sweep is hygiene, not correctness: lazy expiration on read keeps
// expired entries invisible even when the loop stalls, so every failure
// here is contained and logged rather than propagated.
type sweeper struct {
	store    store.Store
	log      Logger
	hooks    Hooks
	clock    func() time.Time
	interval time.Duration
	regions  *xsync.MapOf[string, struct{}]

	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type sweeperConfig struct {
	store    store.Store
	log      Logger
	hooks    Hooks
	clock    func() time.Time
	interval time.Duration
	regions  *xsync.MapOf[string, struct{}]
}

func newSweeper(cfg sweeperConfig) *sweeper {
	return &sweeper{
		store:    cfg.store,
		log:      cfg.log,
		hooks:    cfg.hooks,
		clock:    cfg.clock,
		interval: cfg.interval,
		regions:  cfg.regions,
	}
}

func (s *sweeper) start() {
	s.ticker = time.NewTicker(s.interval)
	s.stopCh = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
}

func (s *sweeper) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.ticker.C:
			s.sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// sweep runs one pass over all registered regions. A failing region never
// halts the sweep of the others.
func (s *sweeper) sweep(ctx context.Context) {
	s.regions.Range(func(name string, _ struct{}) bool {
		if err := s.sweepRegion(ctx, name); err != nil {
			s.log.Warn("sweep failed for region; continuing", Fields{"region": name, "err": err})
			s.hooks.SweepRegionError(name, err)
		}
		return true
	})
}

func (s *sweeper) sweepRegion(ctx context.Context, name string) error {
	now := float64(s.clock().UnixMilli())
	zkey := keys.Expiry(name)

	expired, err := s.store.ZRangeByScore(ctx, zkey, now)
	if err != nil {
		return err
	}
	if len(expired) == 0 {
		return nil
	}

	if err := s.store.Pipelined(ctx, func(b store.Batch) {
		b.HDel(name, expired...)
		b.ZRemRangeByScore(zkey, now)
	}); err != nil {
		return err
	}

	s.log.Debug("purged expired entries", Fields{"region": name, "count": len(expired)})
	s.hooks.SweepCycle(name, len(expired))
	return nil
}

// stop terminates the loop and waits for the in-flight cycle to finish.
// Safe to call multiple times.
func (s *sweeper) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.ticker.Stop()
	})
}
