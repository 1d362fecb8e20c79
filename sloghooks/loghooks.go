package sloghooks

import (
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/regioncache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	LazyExpireEvery uint64
	DegradedEvery   uint64
}

// Hooks logs region-cache events through slog, with sampling on the two
// that fire per-read.
type Hooks struct {
	l    *slog.Logger
	opts Options

	lazyCtr     atomic.Uint64
	degradedCtr atomic.Uint64
}

var _ regioncache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) LazyExpired(region, key string) {
	if h.l == nil || !sample(h.opts.LazyExpireEvery, &h.lazyCtr) {
		return
	}
	h.l.Debug("regioncache.lazy_expired",
		"region", region,
		"key", key)
}

func (h *Hooks) SweepCycle(region string, removed int) {
	if h.l == nil {
		return
	}
	h.l.Debug("regioncache.sweep_cycle",
		"region", region,
		"removed", removed)
}

func (h *Hooks) SweepRegionError(region string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("regioncache.sweep_region_error",
		"region", region,
		"err", err)
}

func (h *Hooks) ReadDegraded(region, op string, err error) {
	if h.l == nil || !sample(h.opts.DegradedEvery, &h.degradedCtr) {
		return
	}
	h.l.Warn("regioncache.read_degraded",
		"region", region,
		"op", op,
		"err", err)
}

func (h *Hooks) TimestampFallback(key string, attempts int) {
	if h.l == nil {
		return
	}
	h.l.Warn("regioncache.timestamp_fallback",
		"key", key,
		"attempts", attempts)
}
