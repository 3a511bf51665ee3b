// Package reactor is spec.md §4.6's "event reactor": it owns the
// listening socket(s), one goroutine per connection doing blocking
// I/O, and a single engine goroutine that is the only caller into
// cache.Cache and query.Processor.
//
// spec.md's Design Notes explicitly allow expressing the "single
// thread ever mutates state" contract by a means other than literal
// epoll ("Either is fine, as long as the single-threaded, cooperative
// contract holds"). Rather than hand-roll an event loop over
// golang.org/x/sys/unix.EpollWait, Engine is a channel-actor: every
// connection goroutine reduces a frame to a protocol.Request and hands
// it to the engine over a channel; the engine is the only goroutine
// that ever calls into query.Processor (and therefore cache.Cache),
// so nothing there needs a lock. This is the same generalization
// cache.Cache's doc comment describes for its own single-writer
// contract.
//
// Grounded on the teacher's conn.serve() (one goroutine per
// connection, panic-recovering defer, logged lifecycle) for the
// per-connection shape, and on cache/lru.go's "exactly one goroutine
// touches this" comment for the engine's exclusivity.
package reactor

import (
	"context"
	"time"

	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/protocol"
	"github.com/traxacun/gibson/query"
)

// job is one decoded request in flight to the engine, paired with the
// channel its caller is waiting on for the reply.
type job struct {
	req   protocol.Request
	now   time.Time
	reply chan query.Reply
}

// Engine serializes every query against the cache through one
// goroutine (Run). Connection goroutines and the cron ticker both
// submit through Submit/Tick; neither ever touches the processor
// directly.
type Engine struct {
	proc *query.Processor
	log  log.Logger

	jobs chan job
	tick chan time.Time
}

// NewEngine builds an Engine dispatching onto proc.
func NewEngine(proc *query.Processor, lg log.Logger) *Engine {
	return &Engine{
		proc: proc,
		log:  lg.With("engine"),
		jobs: make(chan job),
		tick: make(chan time.Time),
	}
}

// Run is the engine's event loop: the one goroutine permitted to call
// proc.Handle. It returns when ctx is done, after which Submit starts
// returning ctx.Err() to unblock any connection goroutines still
// waiting.
func (e *Engine) Run(ctx context.Context, onTick func(now time.Time)) {
	e.log.Info("Engine started.")
	defer e.log.Info("Engine stopped.")
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-e.jobs:
			reply, err := e.proc.Handle(j.req, j.now)
			if err != nil {
				// A connection-level violation (oversized key/value):
				// the caller closes the connection instead of framing
				// this as a reply.
				close(j.reply)
				continue
			}
			j.reply <- reply
		case now := <-e.tick:
			if onTick != nil {
				onTick(now)
			}
		}
	}
}

// Submit hands req to the engine and blocks for its reply. A closed
// reply channel (no value received, ok==false) means req failed a
// connection-level check and the connection must be dropped.
func (e *Engine) Submit(ctx context.Context, req protocol.Request, now time.Time) (query.Reply, bool, error) {
	j := job{req: req, now: now, reply: make(chan query.Reply)}
	select {
	case e.jobs <- j:
	case <-ctx.Done():
		return query.Reply{}, false, ctx.Err()
	}
	select {
	case reply, ok := <-j.reply:
		return reply, ok, nil
	case <-ctx.Done():
		return query.Reply{}, false, ctx.Err()
	}
}

// Tick injects a cron wakeup onto the engine's own goroutine, so
// SweepExpired/EvictIdle run with the same exclusivity as any client
// request.
func (e *Engine) Tick(ctx context.Context, now time.Time) {
	select {
	case e.tick <- now:
	case <-ctx.Done():
	}
}
