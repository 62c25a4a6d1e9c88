package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"stoyanka/internal/database"
	"stoyanka/internal/domain"
	"stoyanka/internal/events"
	"stoyanka/internal/models"

	"github.com/rs/zerolog"
)

// Engine is the per-client reconciliation loop: it merges the initial
// fetch, the periodic poll and pushed events into one canonical local
// view, and drives optimistic mutations with rollback.
type Engine struct {
	fetcher    domain.Fetcher
	bus        *events.Bus
	interval   time.Duration
	endingSoon time.Duration
	cache      *Cache
	logger     zerolog.Logger
	now        func() time.Time

	mu      sync.Mutex
	watches map[string]*watch
	pending map[string]string // key -> optimistic status overlay
	toggles map[string]*OptimisticBool
	closed  bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

type watch struct {
	sub  *events.Subscription
	done chan struct{}
}

func NewEngine(fetcher domain.Fetcher, bus *events.Bus, interval, endingSoon time.Duration, logger *zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = time.Duration(models.DefaultPollInterval) * time.Second
	}
	var l zerolog.Logger
	if logger != nil {
		l = logger.With().Str("component", "reconcile").Logger()
	}
	return &Engine{
		fetcher:    fetcher,
		bus:        bus,
		interval:   interval,
		endingSoon: endingSoon,
		cache:      NewCache(),
		logger:     l,
		now:        time.Now,
		watches:    make(map[string]*watch),
		pending:    make(map[string]string),
		toggles:    make(map[string]*OptimisticBool),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start launches the poll loop. Close stops it.
func (e *Engine) Start(ctx context.Context) {
	go e.pollLoop(ctx)
}

// Close tears down polling and all subscriptions. Idempotent.
func (e *Engine) Close() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})

	e.mu.Lock()
	e.closed = true
	keys := make([]string, 0, len(e.watches))
	for key := range e.watches {
		keys = append(keys, key)
	}
	e.mu.Unlock()

	for _, key := range keys {
		e.Unwatch(key)
	}
}

// WatchReservation seeds the cache and subscribes to push events for a
// reservation, adding it to the poll set.
func (e *Engine) WatchReservation(ctx context.Context, id string) error {
	key := "reservation:" + id
	if !e.addWatch(key, events.ReservationTopic(id)) {
		return nil
	}

	r, err := e.fetcher.FetchReservation(ctx, id)
	if err != nil {
		return err
	}
	e.cache.Apply(r)
	return nil
}

// WatchSpace seeds the cache and subscribes to inventory events.
func (e *Engine) WatchSpace(ctx context.Context, id string) error {
	key := "space:" + id
	if !e.addWatch(key, events.SpaceTopic(id)) {
		return nil
	}

	s, err := e.fetcher.FetchSpace(ctx, id)
	if err != nil {
		return err
	}
	e.cache.Apply(s)
	return nil
}

// Unwatch cancels polling and the push subscription for a key. The
// entity no longer of interest is dropped so state does not grow across
// navigation. Idempotent; other watchers are unaffected.
func (e *Engine) Unwatch(key string) {
	e.mu.Lock()
	w, ok := e.watches[key]
	if ok {
		delete(e.watches, key)
	}
	delete(e.pending, key)
	delete(e.toggles, key)
	e.mu.Unlock()

	if !ok {
		return
	}
	w.sub.Cancel()
	<-w.done
	e.cache.Drop(key)
}

func (e *Engine) addWatch(key, topic string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if _, ok := e.watches[key]; ok {
		return false
	}

	sub := e.bus.Subscribe(topic, models.EventBufferSize)
	w := &watch{sub: sub, done: make(chan struct{})}
	e.watches[key] = w
	go e.consume(w)
	return true
}

// consume drains pushed events for one subscription. Stale or duplicate
// deliveries are harmless: the version rule discards them.
func (e *Engine) consume(w *watch) {
	defer close(w.done)
	for evt := range w.sub.C {
		switch evt.Type {
		case events.EventReservationChanged:
			var p events.ReservationChangedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				e.logger.Warn().Err(err).Msg("bad reservation event payload")
				continue
			}
			r := p.Reservation
			if e.cache.Apply(&r) {
				e.clearPending(r.Key())
			}
		case events.EventInventoryChanged:
			var p events.InventoryChangedPayload
			if err := json.Unmarshal(evt.Payload, &p); err != nil {
				e.logger.Warn().Err(err).Msg("bad inventory event payload")
				continue
			}
			e.applyInventoryDelta(p)
		}
	}
}

// applyInventoryDelta merges a sparse inventory event over the richer
// polled snapshot so static fields survive.
func (e *Engine) applyInventoryDelta(p events.InventoryChangedPayload) {
	key := "space:" + p.SpaceID
	s := models.ParkingSpace{
		ID:             p.SpaceID,
		AvailableSpots: p.AvailableSpots,
		TotalSpots:     p.TotalSpots,
		IsOnline:       p.IsOnline,
		Version:        p.Version,
	}
	if cur, ok := e.cache.Get(key); ok {
		if cached, ok := cur.(*models.ParkingSpace); ok {
			merged := *cached
			merged.AvailableSpots = p.AvailableSpots
			merged.TotalSpots = p.TotalSpots
			merged.IsOnline = p.IsOnline
			merged.Version = p.Version
			s = merged
		}
	}
	if e.cache.Apply(&s) {
		if t := e.toggle(key); t != nil {
			t.Resolve(s.IsOnline)
		}
	}
}

func (e *Engine) pollLoop(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.pollOnce(ctx)
		}
	}
}

// pollOnce re-fetches every watched entity. Fetch errors are logged and
// retried on the next tick; polling is best-effort.
func (e *Engine) pollOnce(ctx context.Context) {
	e.mu.Lock()
	keys := make([]string, 0, len(e.watches))
	for key := range e.watches {
		keys = append(keys, key)
	}
	e.mu.Unlock()

	for _, key := range keys {
		id, isReservation := splitKey(key)
		var rec Record
		var err error
		if isReservation {
			rec, err = e.fetcher.FetchReservation(ctx, id)
		} else {
			rec, err = e.fetcher.FetchSpace(ctx, id)
		}
		if err != nil {
			e.logger.Debug().Err(err).Str("key", key).Msg("poll fetch failed")
			continue
		}
		if e.cache.Apply(rec) {
			e.clearPending(key)
		}
	}
}

// GetReservation returns the canonical local view, with the optimistic
// status overlay when a confirmation is still in flight.
func (e *Engine) GetReservation(id string) (*models.Reservation, bool) {
	rec, ok := e.cache.Get("reservation:" + id)
	if !ok {
		return nil, false
	}
	r, ok := rec.(*models.Reservation)
	if !ok {
		return nil, false
	}

	view := *r
	e.mu.Lock()
	if status, pending := e.pending[view.Key()]; pending {
		view.Status = status
	}
	e.mu.Unlock()
	return &view, true
}

// GetSpace returns the local space view with the optimistic online
// toggle applied.
func (e *Engine) GetSpace(id string) (*models.ParkingSpace, bool) {
	rec, ok := e.cache.Get("space:" + id)
	if !ok {
		return nil, false
	}
	s, ok := rec.(*models.ParkingSpace)
	if !ok {
		return nil, false
	}

	view := *s
	if t := e.toggle(view.Key()); t != nil {
		view.IsOnline = t.Value()
	}
	return &view, true
}

// Classify computes the countdown tier for a watched reservation from
// wall-clock time only.
func (e *Engine) Classify(id string) (time.Duration, Tier) {
	r, ok := e.GetReservation(id)
	if !ok {
		return 0, TierNone
	}
	return Classify(e.now(), r, e.endingSoon)
}

// MutateReservation applies an optimistic status locally, runs the
// confirming call, and rolls back to the last confirmed record if it
// fails. A stale-write conflict is informational: a newer record already
// explains it, so the engine refetches instead of surfacing an error.
func (e *Engine) MutateReservation(ctx context.Context, id, optimisticStatus string, confirm func(context.Context) (*models.Reservation, error)) error {
	key := "reservation:" + id

	e.mu.Lock()
	e.pending[key] = optimisticStatus
	e.mu.Unlock()

	r, err := confirm(ctx)
	if err != nil {
		e.clearPending(key)
		if errors.Is(err, database.ErrStaleWrite) {
			e.refetchReservation(ctx, id)
			return nil
		}
		return err
	}

	e.cache.Apply(r)
	e.clearPending(key)
	return nil
}

// ToggleSpaceOnline applies the toggle optimistically and reconciles
// with the server response: success resolves to the authoritative
// value, failure rolls back to the last confirmed one.
func (e *Engine) ToggleSpaceOnline(ctx context.Context, id string, desired bool, confirm func(context.Context) (*models.ParkingSpace, error)) error {
	key := "space:" + id

	e.mu.Lock()
	t, ok := e.toggles[key]
	if !ok {
		confirmed := desired
		if rec, found := e.cache.Get(key); found {
			if s, isSpace := rec.(*models.ParkingSpace); isSpace {
				confirmed = s.IsOnline
			}
		}
		t = NewOptimisticBool(confirmed)
		e.toggles[key] = t
	}
	e.mu.Unlock()

	t.SetOptimistic(desired)

	s, err := confirm(ctx)
	if err != nil {
		t.Rollback()
		if errors.Is(err, database.ErrStaleWrite) {
			e.refetchSpace(ctx, id)
			return nil
		}
		return err
	}

	e.cache.Apply(s)
	t.Resolve(s.IsOnline)
	return nil
}

func (e *Engine) refetchReservation(ctx context.Context, id string) {
	r, err := e.fetcher.FetchReservation(ctx, id)
	if err != nil {
		e.logger.Debug().Err(err).Str("reservation_id", id).Msg("refetch failed")
		return
	}
	e.cache.Apply(r)
}

func (e *Engine) refetchSpace(ctx context.Context, id string) {
	s, err := e.fetcher.FetchSpace(ctx, id)
	if err != nil {
		e.logger.Debug().Err(err).Str("space_id", id).Msg("refetch failed")
		return
	}
	e.cache.Apply(s)
}

func (e *Engine) clearPending(key string) {
	e.mu.Lock()
	delete(e.pending, key)
	e.mu.Unlock()
}

func (e *Engine) toggle(key string) *OptimisticBool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.toggles[key]
}

func splitKey(key string) (id string, isReservation bool) {
	if rest, ok := strings.CutPrefix(key, "reservation:"); ok {
		return rest, true
	}
	return strings.TrimPrefix(key, "space:"), false
}
