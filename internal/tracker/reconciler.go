package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/metrics"
	"github.com/runnerr0/tabtally/internal/storage"
)

// ErrStopped is returned by Dispatch once the event loop has exited.
var ErrStopped = errors.New("reconciler stopped")

const defaultDebounceWindow = 30 * time.Second

// Options configures a Reconciler. Store and Tabs are required.
type Options struct {
	Store          storage.Store
	Tabs           TabSource
	Surface        Surface
	Clock          quartz.Clock
	DebounceWindow time.Duration
	StartupGrace   time.Duration
	DisplayKey     string
	Metrics        *metrics.Metrics
}

// Reconciler applies tab events to the current day aggregate.
type Reconciler struct {
	tabs       TabSource
	clock      quartz.Clock
	resolver   *Resolver
	identity   *IdentityCache
	aggregates *Aggregates
	presenter  *Presenter
	metrics    *metrics.Metrics
	grace      time.Duration

	attached   atomic.Bool
	graceMu    sync.Mutex
	graceTimer *quartz.Timer

	queue    chan request
	done     chan struct{}
	stopOnce sync.Once
}

type request struct {
	ctx    context.Context
	event  Event
	hooks  Hooks
	result chan error
}

// Hooks run on the event loop immediately around the reconciliation of one
// event, so platform state they touch is ordered with every other event.
// Both run even when the event itself is dropped or fails.
type Hooks struct {
	Before func()
	After  func()
}

func New(opts Options) (*Reconciler, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("reconciler: nil store")
	}
	if opts.Tabs == nil {
		return nil, fmt.Errorf("reconciler: nil tab source")
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = defaultDebounceWindow
	}

	resolver := NewResolver(opts.Clock)
	return &Reconciler{
		tabs:       opts.Tabs,
		clock:      opts.Clock,
		resolver:   resolver,
		identity:   NewIdentityCache(),
		aggregates: NewAggregates(opts.Store, resolver, opts.Clock, opts.DebounceWindow, opts.Metrics),
		presenter:  NewPresenter(opts.Surface, opts.DisplayKey),
		metrics:    opts.Metrics,
		grace:      opts.StartupGrace,
		queue:      make(chan request),
		done:       make(chan struct{}),
	}, nil
}

// Start warms the identity cache from the open tabs, loads or creates
// today's aggregate and primes the presenter without touching any counter.
// For ReasonStartup, events are ignored until the grace period elapses; this
// is a heuristic for skipping session-restore bursts, not a detection of
// restore completion.
func (r *Reconciler) Start(ctx context.Context, reason StartupReason) error {
	ids, err := r.tabs.QueryAllTabs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("initial tab query failed; identity cache starts empty")
	}
	for _, id := range ids {
		r.identity.Observe(id)
	}

	day, err := r.aggregates.Get(ctx, r.resolver.CurrentDateKey())
	if err != nil {
		return fmt.Errorf("load today: %w", err)
	}
	r.presenter.Refresh(day)
	r.metrics.Tabs(day.TabsLastCount, r.identity.Size())

	if reason == ReasonInstall || r.grace <= 0 {
		r.attach(reason)
		return nil
	}

	r.graceMu.Lock()
	r.graceTimer = r.clock.AfterFunc(r.grace, func() { r.attach(reason) }, "reconciler", "grace")
	r.graceMu.Unlock()
	log.Info().Dur("grace", r.grace).Int("known_tabs", r.identity.Size()).Msg("delaying event intake after browser startup")
	return nil
}

func (r *Reconciler) attach(reason StartupReason) {
	r.attached.Store(true)
	log.Info().Str("reason", string(reason)).Int("known_tabs", r.identity.Size()).Msg("tab event intake attached")
}

// Attached reports whether events are being reconciled.
func (r *Reconciler) Attached() bool {
	return r.attached.Load()
}

// Run processes dispatched events one at a time until ctx is done. An
// accepted event is reconciled in full even if its caller gives up waiting.
func (r *Reconciler) Run(ctx context.Context) error {
	defer r.stopOnce.Do(func() { close(r.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-r.queue:
			req.result <- r.process(req)
		}
	}
}

func (r *Reconciler) process(req request) error {
	if req.hooks.Before != nil {
		req.hooks.Before()
	}
	err := r.Handle(context.WithoutCancel(req.ctx), req.event)
	if req.hooks.After != nil {
		req.hooks.After()
	}
	return err
}

// Dispatch hands ev to the event loop and waits for it to be reconciled.
// Events from concurrent callers are applied in the order they are accepted.
func (r *Reconciler) Dispatch(ctx context.Context, ev Event) error {
	return r.Submit(ctx, ev, Hooks{})
}

// Submit is Dispatch with hooks run on the loop around the event. Once the
// loop accepts the request, cancelling ctx only stops the wait.
func (r *Reconciler) Submit(ctx context.Context, ev Event, hooks Hooks) error {
	req := request{ctx: ctx, event: ev, hooks: hooks, result: make(chan error, 1)}
	select {
	case r.queue <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-r.done:
		return ErrStopped
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle reconciles a single event synchronously: mutate a copy of today's
// aggregate, refresh the presenter, then Put it for debounced persistence.
// Callers other than Run must not invoke it concurrently.
func (r *Reconciler) Handle(ctx context.Context, ev Event) error {
	if !r.attached.Load() {
		r.metrics.Dropped()
		log.Debug().Str("kind", string(ev.Kind)).Int64("tab", int64(ev.TabID)).Msg("event before intake attached; ignored")
		return nil
	}

	switch ev.Kind {
	case EventActivated:
		if !r.identity.Observe(ev.TabID) {
			r.metrics.Event(string(ev.Kind), "ignored")
			return nil
		}
	case EventCreated:
		r.identity.Observe(ev.TabID)
	case EventRemoved:
	default:
		return fmt.Errorf("unknown event type %q", ev.Kind)
	}

	now := r.resolver.Now()
	key := DateKeyFor(now)
	hour := now.Hour()

	day, err := r.aggregates.Get(ctx, key)
	if err != nil {
		if ev.Kind == EventRemoved {
			r.identity.Evict(ev.TabID)
		}
		r.metrics.Event(string(ev.Kind), "failed")
		return fmt.Errorf("reconcile %s: %w", ev.Kind, err)
	}

	switch ev.Kind {
	case EventActivated:
		day.TabsSwitched++
	case EventCreated:
		day.TabsOpened++
		day.TabsSwitched++
		r.resample(ctx, &day, hour, 0)
	case EventRemoved:
		day.TabsClosed++
		// The closing tab is still listed by the platform at this point.
		r.resample(ctx, &day, hour, 1)
		r.identity.Evict(ev.TabID)
	}

	r.presenter.Refresh(day)
	r.aggregates.Put(ctx, key, day)
	r.metrics.Event(string(ev.Kind), "applied")
	r.metrics.Tabs(day.TabsLastCount, r.identity.Size())
	return nil
}

// resample queries the open tabs, keeps the identity cache warm and records
// the count minus compensation as the latest sample. A failed query leaves
// the previous sample in place.
func (r *Reconciler) resample(ctx context.Context, day *storage.DayAggregate, hour, compensation int) {
	ids, err := r.tabs.QueryAllTabs(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("tab query failed; sample skipped")
		return
	}

	seen := make(map[TabID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
		r.identity.Observe(id)
	}
	count := len(seen) - compensation
	if count < 0 {
		count = 0
	}
	applySample(day, hour, count)
}

// applySample records an open-tab count. TabsMinCount treats 0 as unset, so
// a genuine zero sample is replaced by the next non-zero one.
func applySample(d *storage.DayAggregate, hour, count int) {
	d.TabsLastCount = count
	d.TabCounts[hour] = count
	if count > d.TabsMaxCount {
		d.TabsMaxCount = count
	}
	if d.TabsMinCount == 0 || count < d.TabsMinCount {
		d.TabsMinCount = count
	}
}

// Current returns a copy of the cached day aggregate.
func (r *Reconciler) Current() (storage.DayAggregate, bool) {
	return r.aggregates.Current()
}

// KnownTabs returns the identity cache size.
func (r *Reconciler) KnownTabs() int {
	return r.identity.Size()
}

// Shutdown cancels the startup grace timer and persists any pending write.
func (r *Reconciler) Shutdown(ctx context.Context) error {
	r.graceMu.Lock()
	if r.graceTimer != nil {
		r.graceTimer.Stop()
	}
	r.graceMu.Unlock()

	err := r.aggregates.FlushNow(ctx)
	r.aggregates.Stop()
	if err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}
