// Package config holds the tunables from the configuration-file keys
// spec.md §6 lists. Gibson treats the file format itself as an external
// collaborator (spec.md §1); cmd/gibson builds a Config from flags and
// defaults rather than parsing a file.
package config

import "time"

// Config is a snapshot of every tunable the server consults. It is
// read-only once handed to gibson.New: nothing in the reactor, cron, or
// query packages mutates it.
type Config struct {
	// Transport.
	UnixSocket string // if non-empty, listen here instead of TCP
	Address    string
	Port       int

	// Client lifecycle.
	MaxIdleTime time.Duration
	MaxClients  int

	// Byte limits.
	MaxRequestSize  int
	MaxResponseSize int
	MaxKeySize      int
	MaxValueSize    int

	// Memory.
	MaxMemory int64

	// TTL.
	MaxItemTTL time.Duration

	// Compression: minimum payload size LZF is attempted on.
	CompressionThreshold int

	// Cron.
	CronPeriod time.Duration
	GCRatio    time.Duration

	// Process-lifecycle concerns, carried for cmd/gibson but not
	// consulted by server/reactor/cron themselves.
	Daemonize    bool
	PidFile      string
	LogFile      string
	LogLevel     string
	LogFlushRate time.Duration
}

// Default returns the configuration spec.md §6 implies when a key is
// left unset: large enough limits for interactive use, short enough
// timers that the testable properties in spec.md §8 converge quickly.
func Default() Config {
	return Config{
		Address:              "127.0.0.1",
		Port:                 10978,
		MaxIdleTime:          60 * time.Second,
		MaxClients:           1024,
		MaxRequestSize:       8 << 20,
		MaxResponseSize:      8 << 20,
		MaxKeySize:           250,
		MaxValueSize:         1 << 20,
		MaxMemory:            64 << 20,
		MaxItemTTL:           30 * 24 * time.Hour,
		CompressionThreshold: 1024,
		CronPeriod:           100 * time.Millisecond,
		GCRatio:              30 * time.Second,
		LogLevel:             "INFO",
		LogFlushRate:         time.Second,
	}
}
