// Package asynchook decouples hook callbacks from the cache hot paths.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    LazyExpireEvery: 10, // sample logs: ~every 10th lazy expiry
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	factory, _ := regioncache.NewFactory(regioncache.Options{
//	    Store: st,
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/regioncache"
)

type Hooks struct {
	inner regioncache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ regioncache.Hooks = (*Hooks)(nil)

func New(inner regioncache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) LazyExpired(region, key string) {
	h.try(func() { h.inner.LazyExpired(region, key) })
}

func (h *Hooks) SweepCycle(region string, removed int) {
	h.try(func() { h.inner.SweepCycle(region, removed) })
}

func (h *Hooks) SweepRegionError(region string, err error) {
	h.try(func() { h.inner.SweepRegionError(region, err) })
}

func (h *Hooks) ReadDegraded(region, op string, err error) {
	h.try(func() { h.inner.ReadDegraded(region, op, err) })
}

func (h *Hooks) TimestampFallback(key string, attempts int) {
	h.try(func() { h.inner.TimestampFallback(key, attempts) })
}
