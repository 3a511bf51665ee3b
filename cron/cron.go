// Package cron is spec.md §4.7's periodic maintenance: a ticker that
// fires every cron_period and, each on its own cadence from Config,
// asks the cache to sweep expired items, evicts idle items under memory
// pressure, and logs a stats line. It does not reap idle clients:
// reactor.Server closes a connection whose max_idle_time read deadline
// passes.
//
// The tick itself is injected onto the reactor's engine goroutine
// (see reactor.Engine.Tick) so SweepExpired/EvictIdle run with the
// same single-writer exclusivity as any client request — spec.md §4.7
// describes this as happening "on the reactor's own thread," which
// the channel-actor design gives for free.
//
// Grounded on the teacher's cache/lru.go comment about a periodic
// "shrink" pass; generalized here from an LRU-queue walk to the
// ticker/gating shape, since the actual sweep now lives in
// cache.Cache.
package cron

import (
	"context"
	"time"

	"github.com/traxacun/gibson/cache"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/stats"
)

// Config carries the timing knobs cron consults (a subset of
// config.Config, passed explicitly so cron does not need to import
// the whole config package's process-lifecycle fields).
type Config struct {
	Period        time.Duration // base tick, e.g. 100ms
	EvictionEvery time.Duration // pressure-eviction cadence, e.g. 5s
	StatsEvery    time.Duration // stats log cadence, e.g. 15s
	SweepEvery    time.Duration // TTL sweep cadence, e.g. 15s
	IdleThreshold time.Duration // EvictIdle's idle-age cutoff
	MaxMemory     int64
}

// Ticker drives the periodic maintenance loop.
type Ticker struct {
	cfg   Config
	cache *cache.Cache
	stats *stats.Stats
	log   log.Logger

	lastEviction time.Time
	lastStats    time.Time
	lastSweep    time.Time
}

// NewTicker builds a Ticker. start is the time the ticker is
// considered to begin at, so the first real tick does not immediately
// fire every cadence at once.
func NewTicker(cfg Config, c *cache.Cache, st *stats.Stats, lg log.Logger, start time.Time) *Ticker {
	return &Ticker{
		cfg:          cfg,
		cache:        c,
		stats:        st,
		log:          lg.With("cron"),
		lastEviction: start,
		lastStats:    start,
		lastSweep:    start,
	}
}

// Tick runs whichever gated passes are due at now. It is meant to be
// called as the onTick callback passed to reactor.Engine.Run.
func (t *Ticker) Tick(now time.Time) {
	if t.due(&t.lastSweep, now, t.cfg.SweepEvery) {
		if n := t.cache.SweepExpired(now); n > 0 {
			t.log.Debugf("Swept %d expired item(s).", n)
		}
	}
	if t.due(&t.lastEviction, now, t.cfg.EvictionEvery) {
		if t.cfg.MaxMemory > 0 && t.stats.Snapshot().Memused > t.cfg.MaxMemory {
			n := t.cache.EvictIdle(now, t.cfg.IdleThreshold)
			t.log.Warnf("Memory pressure: evicted %d idle item(s).", n)
		}
	}
	if t.due(&t.lastStats, now, t.cfg.StatsEvery) {
		snap := t.stats.Snapshot()
		t.log.Infof("items=%d compressed=%d memused=%d mempeak=%d avgitemsize=%d clients=%d uptime=%s",
			snap.Nitems, snap.Ncompressed, snap.Memused, snap.Mempeak, snap.AverageItemSize(), snap.Nclients, snap.Uptime)
	}
}

func (t *Ticker) due(last *time.Time, now time.Time, every time.Duration) bool {
	if every <= 0 {
		return false
	}
	if now.Sub(*last) < every {
		return false
	}
	*last = now
	return true
}

// Run drives a tick every period until ctx is done, handing each tick
// to the engine via submitTick.
func Run(ctx context.Context, period time.Duration, submitTick func(context.Context, time.Time)) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			submitTick(ctx, now)
		}
	}
}
