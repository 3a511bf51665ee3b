// Package stats holds the server-wide counters the cron's stats line
// (spec.md §4.7) and META introspection (spec.md §4.5) read. Every
// counter is an atomic so alloc.Shim can update Memused/Mempeak from
// whichever goroutine happens to free an item, while the engine
// goroutine that owns the trie reads them without synchronization
// concerns of its own. In practice only the engine goroutine mutates
// item-shaped counters (Nitems, Ncompressed); alloc.Shim mutates only
// Memused/Mempeak, which are intentionally decoupled from the item
// lifecycle so an OOM check never waits on the engine.
package stats

import (
	"sync/atomic"
	"time"
)

// Stats is the process-wide counter block. Zero value is ready to use.
type Stats struct {
	Memused     int64
	Mempeak     int64
	Nitems      int64
	Ncompressed int64
	Nclients    int64

	startedAt time.Time
}

// New returns a Stats with Uptime measured from now.
func New() *Stats {
	return &Stats{startedAt: time.Now()}
}

// Uptime reports how long the server has been running.
func (s *Stats) Uptime() time.Duration { return time.Since(s.startedAt) }

// AddMemused adjusts Memused by delta (positive on alloc, negative on
// free) and bumps Mempeak if the new total is a new high-water mark.
func (s *Stats) AddMemused(delta int64) {
	newVal := atomic.AddInt64(&s.Memused, delta)
	for {
		peak := atomic.LoadInt64(&s.Mempeak)
		if newVal <= peak || atomic.CompareAndSwapInt64(&s.Mempeak, peak, newVal) {
			return
		}
	}
}

func (s *Stats) AddNitems(delta int64)      { atomic.AddInt64(&s.Nitems, delta) }
func (s *Stats) AddNcompressed(delta int64) { atomic.AddInt64(&s.Ncompressed, delta) }
func (s *Stats) AddNclients(delta int64)    { atomic.AddInt64(&s.Nclients, delta) }

// Snapshot is a point-in-time copy safe to log or serialize.
type Snapshot struct {
	Memused     int64
	Mempeak     int64
	Nitems      int64
	Ncompressed int64
	Nclients    int64
	Uptime      time.Duration
}

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Memused:     atomic.LoadInt64(&s.Memused),
		Mempeak:     atomic.LoadInt64(&s.Mempeak),
		Nitems:      atomic.LoadInt64(&s.Nitems),
		Ncompressed: atomic.LoadInt64(&s.Ncompressed),
		Nclients:    atomic.LoadInt64(&s.Nclients),
		Uptime:      s.Uptime(),
	}
}

// AverageItemSize is Memused/Nitems, or 0 when the cache is empty.
func (snap Snapshot) AverageItemSize() int64 {
	if snap.Nitems == 0 {
		return 0
	}
	return snap.Memused / snap.Nitems
}
