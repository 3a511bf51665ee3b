// Command gibson runs a single Gibson cache server process.
//
// Config-file parsing is treated as an external collaborator (spec.md
// §1): -c/--config is accepted and recorded but the file itself is
// never opened here; every tunable is set from flags layered over
// config.Default(), matching the teacher's own preference for an
// explicit server value over hidden global state (spec.md §9's
// "Global server singleton" note).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/traxacun/gibson"
	"github.com/traxacun/gibson/config"
	"github.com/traxacun/gibson/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("gibson", flag.ContinueOnError)
	cfg := config.Default()

	var configFile string
	fs.StringVar(&configFile, "config", "", "configuration file (unused: accepted for CLI compatibility)")
	fs.StringVar(&configFile, "c", "", "shorthand for -config")
	fs.StringVar(&cfg.Address, "address", cfg.Address, "listen address")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "listen port")
	fs.StringVar(&cfg.UnixSocket, "unixsocket", cfg.UnixSocket, "unix socket path (overrides -address/-port)")
	fs.IntVar(&cfg.MaxClients, "maxclients", cfg.MaxClients, "max concurrent clients")
	fs.Int64Var(&cfg.MaxMemory, "maxmemory", cfg.MaxMemory, "max tracked memory in bytes")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "DEBUG|INFO|WARN|ERROR|FATAL")
	fs.StringVar(&cfg.PidFile, "pidfile", cfg.PidFile, "pid file path")
	fs.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "log file path (empty: stderr)")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	level, err := log.LevelFromString(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logWriter := os.Stderr
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer f.Close()
		logWriter = f
	}
	lg := log.NewLogger(level, logWriter)

	srv := gibson.New(cfg, lg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-sig
		lg.Infof("Received %s, shutting down.", s)
		cancel()
	}()
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)

	if err := srv.ListenAndServe(ctx); err != nil {
		select {
		case <-ctx.Done():
			return 0
		default:
			lg.Errorf("Server exited: %v", err)
			return 1
		}
	}
	return 0
}
