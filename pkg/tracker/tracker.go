// Package tracker buffers storefront activity events and delivers them in
// batches to an ingestion endpoint. Tracking calls are fire-and-forget: they
// never block on the network and never propagate failures into the caller.
// Queued events survive restarts through snapshot persistence, and delivery
// failures are absorbed by a circuit breaker plus retry on the flush timer.
package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Tracker owns the event queue, dedup ledger, circuit breaker and flush
// scheduling. Construct one per application with New and inject it where
// tracking is needed; there is no package-level singleton.
type Tracker struct {
	cfg          Config
	store        SnapshotStore
	sink         Sink
	identity     IdentitySource
	connectivity ConnectivitySource

	mu       sync.Mutex
	started  bool
	userID   string
	queue    []Event
	dedup    *dedupLedger
	brk      *breaker
	flushing bool
	seq      uint64

	stopCh        chan struct{}
	wg            sync.WaitGroup
	unsubIdentity func()
	unsubConn     func()
}

// New builds a Tracker. store, sink and identity are required; connectivity
// may be nil, in which case the tracker assumes it is always online.
func New(cfg Config, store SnapshotStore, sink Sink, identity IdentitySource, connectivity ConnectivitySource) *Tracker {
	if store == nil {
		panic("tracker.New: nil store")
	}
	if sink == nil {
		panic("tracker.New: nil sink")
	}
	if identity == nil {
		panic("tracker.New: nil identity source")
	}

	cfg = cfg.withDefaults()
	return &Tracker{
		cfg:          cfg,
		store:        store,
		sink:         sink,
		identity:     identity,
		connectivity: connectivity,
		dedup:        newDedupLedger(cfg.DedupWindow, cfg.DedupMaxEntries),
		brk:          newBreaker(cfg.MaxConsecutiveFailures, cfg.BreakerCooldown),
	}
}

// Start loads any persisted queue (discarding entries older than
// SnapshotMaxAge), subscribes to the identity and connectivity signals, and
// starts the periodic flush timer. Idempotent: a second call is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.started {
		t.mu.Unlock()
		return
	}
	t.userID = t.identity.CurrentUserID()
	t.loadSnapshotLocked()
	t.started = true
	t.stopCh = make(chan struct{})
	t.wg.Add(1)
	go t.flushLoop(t.stopCh)
	t.mu.Unlock()

	t.unsubIdentity = t.identity.Subscribe(func(userID string) {
		if userID == "" {
			t.ClearUserData()
			return
		}
		t.mu.Lock()
		t.userID = userID
		t.mu.Unlock()
	})
	if t.connectivity != nil {
		t.unsubConn = t.connectivity.Subscribe(func(online bool) {
			if !online {
				return
			}
			t.mu.Lock()
			if t.started {
				t.spawnFlushLocked("online")
			}
			t.mu.Unlock()
		})
	}
}

// Close stops the flush timer and takes a final persistence snapshot. No
// network flush is attempted: the snapshot is the safety net, and the next
// Start resumes delivery. Call FlushNow first for best-effort delivery.
func (t *Tracker) Close() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	close(t.stopCh)
	t.persistLocked()
	t.mu.Unlock()

	if t.unsubIdentity != nil {
		t.unsubIdentity()
		t.unsubIdentity = nil
	}
	if t.unsubConn != nil {
		t.unsubConn()
		t.unsubConn = nil
	}
	t.wg.Wait()
}

// ClearUserData empties the queue and dedup ledger and erases the persisted
// snapshot. Called on logout so tracking data cannot leak across identities
// on a shared device.
func (t *Tracker) ClearUserData() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.userID = ""
	t.queue = nil
	t.dedup.clear()
	if err := t.store.Remove(t.cfg.SnapshotKey); err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("failed to erase activity snapshot")
	}
}

// FlushNow performs the regular flush logic synchronously. Intended for
// lifecycle boundaries (app backgrounding, shutdown) where best-effort
// delivery is wanted; never required for correctness since the timer and the
// persisted snapshot are the safety net.
func (t *Tracker) FlushNow(ctx context.Context) error {
	return t.flush(ctx, "forced")
}

// Persist writes the current queue snapshot to the store without any network
// activity. The page-hidden/unload hook: cheap enough to call on every
// lifecycle dip so a sudden process exit loses nothing.
func (t *Tracker) Persist() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	t.persistLocked()
}

// QueueLen reports the number of queued events.
func (t *Tracker) QueueLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *Tracker) TrackClick(p ClickParams) {
	t.track(p.Product.event(EventClick))
}

func (t *Tracker) TrackView(p ViewParams) {
	e := p.Product.event(EventView)
	if p.Duration > 0 {
		e.Extra = map[string]any{"viewDurationMs": p.Duration.Milliseconds()}
	}
	t.track(e)
}

func (t *Tracker) TrackAddToCart(p CartParams) {
	e := p.Product.event(EventAddToCart)
	e.Quantity = p.Quantity
	t.track(e)
}

func (t *Tracker) TrackRemoveFromCart(p CartParams) {
	e := p.Product.event(EventRemoveFromCart)
	e.Quantity = p.Quantity
	t.track(e)
}

func (t *Tracker) TrackFavorite(p FavoriteParams) {
	t.track(p.Product.event(EventFavorite))
}

func (t *Tracker) TrackUnfavorite(p FavoriteParams) {
	t.track(p.Product.event(EventUnfavorite))
}

func (t *Tracker) TrackPurchase(p PurchaseParams) {
	e := p.Product.event(EventPurchase)
	e.Quantity = p.Quantity
	e.TotalValue = p.TotalValue
	if p.OrderID != "" {
		e.Extra = map[string]any{"orderId": p.OrderID}
	}
	t.track(e)
}

func (t *Tracker) TrackSearch(p SearchParams) {
	e := Event{
		Type:        EventSearch,
		SearchQuery: strings.TrimSpace(p.Query),
		Source:      p.Source,
	}
	if p.ResultCount > 0 {
		e.Extra = map[string]any{"resultCount": p.ResultCount}
	}
	t.track(e)
}

// track is the shared fire-and-forget enqueue path. It must never panic or
// block into UI code, so every failure mode ends in a dropped event and a
// log line at most.
func (t *Tracker) track(e Event) {
	defer func() {
		if r := recover(); r != nil {
			t.cfg.Logger.Warn().Interface("panic", r).Msg("tracking call recovered")
		}
	}()

	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		eventsDroppedTotal.WithLabelValues(dropReasonUninitialized).Inc()
		return
	}
	if t.userID == "" {
		t.mu.Unlock()
		eventsDroppedTotal.WithLabelValues(dropReasonNoUser).Inc()
		return
	}

	now := time.Now().UnixMilli()
	t.seq++
	e.Timestamp = now
	e.EventID = fmt.Sprintf("%s-%s-%d-%d", e.Type, e.subjectKey(), now, t.seq)

	if err := e.Validate(); err != nil {
		t.mu.Unlock()
		eventsDroppedTotal.WithLabelValues(dropReasonInvalid).Inc()
		t.cfg.Logger.Debug().Err(err).Str("type", string(e.Type)).Msg("event dropped")
		return
	}

	// Purchases are never deduplicated: repeated line items are each
	// independently meaningful.
	if e.Type != EventPurchase {
		if !t.dedup.accept(string(e.Type)+":"+e.subjectKey(), now) {
			t.mu.Unlock()
			eventsDedupedTotal.WithLabelValues(string(e.Type)).Inc()
			return
		}
	}

	if len(t.queue) >= t.cfg.MaxQueueSize {
		evict := len(t.queue) - t.cfg.MaxQueueSize + 1
		t.queue = append(t.queue[:0:0], t.queue[evict:]...)
		eventsEvictedTotal.Add(float64(evict))
	}
	t.queue = append(t.queue, e)
	eventsTrackedTotal.WithLabelValues(string(e.Type)).Inc()

	if len(t.queue) >= t.cfg.FlushThreshold {
		t.spawnFlushLocked("threshold")
		t.mu.Unlock()
		return
	}
	t.persistLocked()
	t.mu.Unlock()
}

// spawnFlushLocked starts an asynchronous flush. Caller holds t.mu and has
// verified t.started, which makes the wg.Add safe against a concurrent Close.
func (t *Tracker) spawnFlushLocked(reason string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		_ = t.flush(context.Background(), reason)
	}()
}

// flush snapshots the queue, delivers it, and reconciles. Guarded by the
// flushing flag so only one delivery is in flight; a second request while one
// is pending is ignored, not queued. New events enqueued during the network
// round-trip stay in the queue: reconciliation removes exactly the snapshot.
func (t *Tracker) flush(ctx context.Context, reason string) error {
	t.mu.Lock()
	switch {
	case !t.started:
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(dropReasonUninitialized).Inc()
		return nil
	case t.flushing:
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(skipReasonInFlight).Inc()
		return nil
	case len(t.queue) == 0:
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(skipReasonEmpty).Inc()
		return nil
	case t.userID == "":
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(skipReasonNoUser).Inc()
		return nil
	case t.connectivity != nil && !t.connectivity.Online():
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(skipReasonOffline).Inc()
		return nil
	case !t.brk.allow(time.Now()):
		t.mu.Unlock()
		flushSkippedTotal.WithLabelValues(skipReasonBreakerOpen).Inc()
		return nil
	}

	snapshot := make([]Event, len(t.queue))
	copy(snapshot, t.queue)
	t.flushing = true
	t.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, t.cfg.DeliverTimeout)
	err := t.sink.Deliver(dctx, Batch{
		Events:          serialize(snapshot),
		ClientTimestamp: time.Now().UnixMilli(),
	})
	cancel()

	t.mu.Lock()
	t.flushing = false
	if err != nil {
		// Nothing is removed: the events retry on the next timer tick, and
		// the snapshot survives a crash right after this failure.
		t.brk.recordFailure(time.Now())
		t.persistLocked()
		t.mu.Unlock()
		flushTotal.WithLabelValues("failure").Inc()
		t.cfg.Logger.Warn().Err(err).
			Str("trigger", reason).
			Int("events", len(snapshot)).
			Msg("activity flush failed")
		return err
	}

	t.brk.recordSuccess()
	sent := make(map[string]struct{}, len(snapshot))
	for _, e := range snapshot {
		sent[e.EventID] = struct{}{}
	}
	kept := t.queue[:0:0]
	for _, e := range t.queue {
		if _, ok := sent[e.EventID]; !ok {
			kept = append(kept, e)
		}
	}
	t.queue = kept
	t.persistLocked()
	t.mu.Unlock()

	flushTotal.WithLabelValues("success").Inc()
	flushBatchSize.Observe(float64(len(snapshot)))
	t.cfg.Logger.Debug().
		Str("trigger", reason).
		Int("events", len(snapshot)).
		Msg("activity flush delivered")
	return nil
}

func (t *Tracker) flushLoop(stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			pending := t.started && len(t.queue) > 0
			t.mu.Unlock()
			if pending {
				_ = t.flush(context.Background(), "interval")
			}
		}
	}
}

// persistLocked writes the queue snapshot wholesale, or removes the key when
// the queue is empty. Caller holds t.mu.
func (t *Tracker) persistLocked() {
	if len(t.queue) == 0 {
		if err := t.store.Remove(t.cfg.SnapshotKey); err != nil {
			t.cfg.Logger.Warn().Err(err).Msg("failed to remove activity snapshot")
		}
		return
	}
	b, err := json.Marshal(t.queue)
	if err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("failed to encode activity snapshot")
		return
	}
	if err := t.store.Set(t.cfg.SnapshotKey, b); err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("failed to persist activity snapshot")
	}
}

// loadSnapshotLocked hydrates the queue from the store, dropping entries
// older than SnapshotMaxAge. A snapshot that fails to parse is discarded and
// the tracker starts empty. Caller holds t.mu.
func (t *Tracker) loadSnapshotLocked() {
	b, err := t.store.Get(t.cfg.SnapshotKey)
	if err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("failed to load activity snapshot")
		return
	}
	if len(b) == 0 {
		return
	}

	var events []Event
	if err := json.Unmarshal(b, &events); err != nil {
		t.cfg.Logger.Warn().Err(err).Msg("discarding corrupt activity snapshot")
		_ = t.store.Remove(t.cfg.SnapshotKey)
		return
	}

	cutoff := time.Now().Add(-t.cfg.SnapshotMaxAge).UnixMilli()
	for _, e := range events {
		if e.Timestamp >= cutoff && e.Type.Valid() {
			t.queue = append(t.queue, e)
		}
	}
	if len(t.queue) > t.cfg.MaxQueueSize {
		t.queue = append(t.queue[:0:0], t.queue[len(t.queue)-t.cfg.MaxQueueSize:]...)
	}
	if len(t.queue) > 0 {
		t.cfg.Logger.Info().Int("events", len(t.queue)).Msg("resumed persisted activity queue")
	}
}
