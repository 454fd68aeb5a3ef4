package tracker

import (
	"time"

	"github.com/rs/zerolog"
)

const DefaultSnapshotKey = "pending_user_activities"

// Config tunes the batcher. The zero value gets production defaults applied
// by New; tests typically shrink the windows.
type Config struct {
	// MaxQueueSize bounds the in-memory queue. At capacity the oldest event
	// is evicted for each new accepted one: recent signals score better.
	MaxQueueSize int
	// FlushThreshold triggers an immediate asynchronous flush when the queue
	// reaches this size.
	FlushThreshold int
	// FlushInterval is the periodic flush timer period.
	FlushInterval time.Duration
	// DedupWindow collapses repeat events of the same type and subject.
	DedupWindow time.Duration
	// DedupMaxEntries bounds the dedup ledger before opportunistic pruning.
	DedupMaxEntries int
	// MaxConsecutiveFailures opens the circuit breaker.
	MaxConsecutiveFailures int
	// BreakerCooldown is how long flushes stay suppressed after the breaker
	// opens, measured from the last failure.
	BreakerCooldown time.Duration
	// DeliverTimeout bounds each sink delivery call.
	DeliverTimeout time.Duration
	// SnapshotKey is the well-known persistence key.
	SnapshotKey string
	// SnapshotMaxAge drops persisted events older than this at load time.
	SnapshotMaxAge time.Duration

	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 50
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = 20
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.DedupWindow <= 0 {
		c.DedupWindow = 2 * time.Second
	}
	if c.DedupMaxEntries <= 0 {
		c.DedupMaxEntries = 512
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 60 * time.Second
	}
	if c.DeliverTimeout <= 0 {
		c.DeliverTimeout = 30 * time.Second
	}
	if c.SnapshotKey == "" {
		c.SnapshotKey = DefaultSnapshotKey
	}
	if c.SnapshotMaxAge <= 0 {
		c.SnapshotMaxAge = 24 * time.Hour
	}
	return c
}
