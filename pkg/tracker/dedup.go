package tracker

import "time"

// dedupLedger remembers when the last event of each (type, subject) key was
// accepted, so rapid duplicates inside the window collapse to one logical
// occurrence. Purely advisory in-memory state: never persisted, cleared on
// logout, pruned opportunistically when it outgrows maxEntries.
//
// Not safe for concurrent use: the Tracker's mutex guards all access.
type dedupLedger struct {
	window     time.Duration
	maxEntries int
	seen       map[string]int64 // key -> last accepted timestamp (ms)
}

func newDedupLedger(window time.Duration, maxEntries int) *dedupLedger {
	return &dedupLedger{
		window:     window,
		maxEntries: maxEntries,
		seen:       make(map[string]int64),
	}
}

// accept reports whether an event with the given key should be enqueued at
// nowMS, and records it if so.
func (d *dedupLedger) accept(key string, nowMS int64) bool {
	if last, ok := d.seen[key]; ok && nowMS-last < d.window.Milliseconds() {
		return false
	}
	d.seen[key] = nowMS
	if len(d.seen) > d.maxEntries {
		d.prune(nowMS)
	}
	return true
}

// prune drops entries older than the window. Entries inside the window are
// kept even when over the bound; they are still live dedup state.
func (d *dedupLedger) prune(nowMS int64) {
	cutoff := nowMS - d.window.Milliseconds()
	for k, ts := range d.seen {
		if ts < cutoff {
			delete(d.seen, k)
		}
	}
}

func (d *dedupLedger) clear() {
	d.seen = make(map[string]int64)
}

func (d *dedupLedger) size() int {
	return len(d.seen)
}
