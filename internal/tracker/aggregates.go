package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/metrics"
	"github.com/runnerr0/tabtally/internal/storage"
)

// Aggregates is the single-slot cache of the current day's aggregate in
// front of the durable store. The store wins on any mismatch: a cache miss
// always reloads from it.
type Aggregates struct {
	store     storage.Store
	resolver  *Resolver
	metrics   *metrics.Metrics
	scheduler *Scheduler

	mu      sync.Mutex
	current *storage.DayAggregate
}

func NewAggregates(store storage.Store, resolver *Resolver, clock quartz.Clock, window time.Duration, m *metrics.Metrics) *Aggregates {
	a := &Aggregates{store: store, resolver: resolver, metrics: m}
	a.scheduler = NewScheduler(clock, window, a.flush)
	return a
}

// Get returns the aggregate for dateKey, loading or creating it on a cache
// miss. Creating a new day persists it immediately.
func (a *Aggregates) Get(ctx context.Context, dateKey string) (storage.DayAggregate, error) {
	a.rollover(ctx, dateKey)

	a.mu.Lock()
	defer a.mu.Unlock()
	day, err := a.loadLocked(ctx, dateKey)
	if err != nil {
		return storage.DayAggregate{}, err
	}
	return *day, nil
}

// Put replaces the cached aggregate, stamps LastUpdated and schedules a
// debounced write. The write stores whatever is cached when it runs, not
// necessarily day.
func (a *Aggregates) Put(ctx context.Context, dateKey string, day storage.DayAggregate) {
	a.rollover(ctx, dateKey)

	day.DateKey = dateKey
	day.LastUpdated = a.resolver.Now()
	a.mu.Lock()
	a.current = &day
	a.mu.Unlock()

	a.scheduler.Schedule()
}

// Current returns a copy of the cached aggregate, if any.
func (a *Aggregates) Current() (storage.DayAggregate, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return storage.DayAggregate{}, false
	}
	return *a.current, true
}

// FlushNow writes a pending aggregate immediately.
func (a *Aggregates) FlushNow(ctx context.Context) error {
	return a.scheduler.FlushNow(ctx)
}

// Pending reports whether a debounced write is outstanding.
func (a *Aggregates) Pending() bool {
	return a.scheduler.Pending()
}

// Stop cancels the debounce timer.
func (a *Aggregates) Stop() {
	a.scheduler.Stop()
}

// rollover persists the previous day's final state before the slot moves to
// dateKey, so a pending write never ends up storing the new day instead.
func (a *Aggregates) rollover(ctx context.Context, dateKey string) {
	a.mu.Lock()
	stale := a.current != nil && a.current.DateKey != dateKey
	previous := ""
	if stale {
		previous = a.current.DateKey
	}
	a.mu.Unlock()

	if !stale {
		return
	}
	if err := a.scheduler.FlushNow(ctx); err != nil {
		log.Error().Err(err).Str("day", previous).Msg("final write of previous day failed")
	}
}

func (a *Aggregates) loadLocked(ctx context.Context, dateKey string) (*storage.DayAggregate, error) {
	if a.current != nil && a.current.DateKey == dateKey {
		return a.current, nil
	}

	day, err := a.store.GetDay(ctx, dateKey)
	if err == nil {
		a.current = day
		return day, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("load day %s: %w", dateKey, err)
	}

	fresh := storage.NewDayAggregate(dateKey, a.resolver.Now())
	if err := a.store.PutDay(ctx, &fresh); err != nil {
		return nil, fmt.Errorf("create day %s: %w", dateKey, err)
	}
	log.Info().Str("day", dateKey).Msg("started new day record")
	a.current = &fresh
	return a.current, nil
}

func (a *Aggregates) flush(ctx context.Context) error {
	a.mu.Lock()
	if a.current == nil {
		a.mu.Unlock()
		return nil
	}
	snapshot := *a.current
	a.mu.Unlock()

	start := time.Now()
	err := a.store.PutDay(ctx, &snapshot)
	a.metrics.Flush(time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("write day %s: %w", snapshot.DateKey, err)
	}
	log.Debug().Str("day", snapshot.DateKey).Int("switched", snapshot.TabsSwitched).Msg("day aggregate persisted")
	return nil
}
