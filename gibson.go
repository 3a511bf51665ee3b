// Package gibson wires the cache, query processor, reactor, and cron
// ticker from a config.Config into a running server — the root
// package a cmd/gibson binary (or a test) imports.
//
// Grounded on the teacher's top-level memcached package, which played
// the same role for conn/handler/cache: one package name matching the
// module, owning construction order and the listener's lifecycle.
package gibson

import (
	"context"
	"time"

	"github.com/traxacun/gibson/alloc"
	"github.com/traxacun/gibson/cache"
	"github.com/traxacun/gibson/config"
	"github.com/traxacun/gibson/cron"
	"github.com/traxacun/gibson/item"
	"github.com/traxacun/gibson/log"
	"github.com/traxacun/gibson/query"
	"github.com/traxacun/gibson/reactor"
	"github.com/traxacun/gibson/stats"
)

// Server is one running Gibson instance.
type Server struct {
	cfg    config.Config
	log    log.Logger
	stats  *stats.Stats
	cache  *cache.Cache
	engine *reactor.Engine
	net    *reactor.Server
	ticker *cron.Ticker
}

// New builds a Server from cfg, wiring alloc.Shim -> stats.Stats,
// cache.Cache, query.Processor, reactor.Engine, reactor.Server, and
// cron.Ticker together exactly once. If cfg.MaxMemory is unset, it is
// clamped to a quarter of the host's available physical memory, per
// spec.md §4.1's zmem_available query.
func New(cfg config.Config, lg log.Logger) *Server {
	if cfg.MaxMemory <= 0 {
		if avail := alloc.AvailablePhysicalMemory(); avail > 0 {
			cfg.MaxMemory = avail / 4
		}
	}

	st := stats.New()
	sh := alloc.New(st, lg)

	c := cache.New(sh, st, item.CompressionConfig{Threshold: cfg.CompressionThreshold})
	proc := query.New(c, query.Limits{
		MaxKeySize:   cfg.MaxKeySize,
		MaxValueSize: cfg.MaxValueSize,
		MaxItemTTL:   cfg.MaxItemTTL,
	}, lg)
	engine := reactor.NewEngine(proc, lg)
	netSrv := reactor.NewServer(cfg, engine, st, lg)

	ticker := cron.NewTicker(cron.Config{
		Period:        cfg.CronPeriod,
		EvictionEvery: 5 * time.Second,
		StatsEvery:    15 * time.Second,
		SweepEvery:    15 * time.Second,
		IdleThreshold: cfg.GCRatio,
		MaxMemory:     cfg.MaxMemory,
	}, c, st, lg, time.Now())

	return &Server{
		cfg:    cfg,
		log:    lg.With("gibson"),
		stats:  st,
		cache:  c,
		engine: engine,
		net:    netSrv,
		ticker: ticker,
	}
}

// Stats exposes the running server's counters, e.g. for an
// administrative status command.
func (s *Server) Stats() stats.Snapshot { return s.stats.Snapshot() }

// ListenAndServe runs the engine, the cron ticker, and the listener
// until ctx is canceled. It returns the listener's terminal error, if
// any (a cancellation is not reported as an error).
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log.Infof("Starting on %s (max_clients=%d, max_memory=%d).", s.cfg.Address, s.cfg.MaxClients, s.cfg.MaxMemory)

	go s.engine.Run(ctx, s.ticker.Tick)
	go cron.Run(ctx, s.cfg.CronPeriod, s.engine.Tick)

	return s.net.Serve(ctx)
}
