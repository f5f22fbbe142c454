package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/tracker"
)

const (
	pageTarget   = "page"
	changeBuffer = 256
)

// DispatchFunc delivers a tab event to the reconciler, running hooks on its
// event loop around the event.
type DispatchFunc func(ctx context.Context, ev tracker.Event, hooks tracker.Hooks) error

type targetChange struct {
	kind tracker.EventKind
	id   target.ID
}

// ChromeWatcher follows page targets of a Chrome instance over the DevTools
// protocol and turns their creation and destruction into tab events. Target
// ids are mapped to sequential tab ids for the lifetime of the watcher.
type ChromeWatcher struct {
	url      string
	registry *Registry
	dispatch DispatchFunc

	mu     sync.Mutex
	ids    map[target.ID]tracker.TabID
	nextID tracker.TabID

	changes chan targetChange
	browser context.Context
	cancel  context.CancelFunc
}

func NewChromeWatcher(url string, registry *Registry, dispatch DispatchFunc) *ChromeWatcher {
	return &ChromeWatcher{
		url:      url,
		registry: registry,
		dispatch: dispatch,
		ids:      make(map[target.ID]tracker.TabID),
		changes:  make(chan targetChange, changeBuffer),
	}
}

// Connect attaches to the browser and seeds the registry with the page
// targets that are already open.
func (w *ChromeWatcher) Connect(ctx context.Context) error {
	if w.url == "" {
		return errors.New("no DevTools URL configured")
	}

	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, w.url)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}

	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return fmt.Errorf("attach to %s: %w", w.url, err)
	}
	chromedp.ListenBrowser(browserCtx, w.onBrowserEvent)

	infos, err := chromedp.Targets(browserCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("list targets: %w", err)
	}
	w.seed(infos)

	w.browser, w.cancel = browserCtx, cancel
	log.Info().Str("url", w.url).Int("tabs", w.registry.Len()).Msg("attached to browser")
	return nil
}

// Watch applies target changes until ctx is done or the browser goes away.
func (w *ChromeWatcher) Watch(ctx context.Context) error {
	if w.browser == nil {
		return errors.New("watcher not connected")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.browser.Done():
			return fmt.Errorf("browser connection closed: %w", context.Cause(w.browser))
		case ch := <-w.changes:
			w.apply(ctx, ch)
		}
	}
}

// Close detaches from the browser.
func (w *ChromeWatcher) Close() {
	if w.cancel != nil {
		w.cancel()
	}
}

// onBrowserEvent runs on chromedp's event goroutine and must not block.
func (w *ChromeWatcher) onBrowserEvent(ev any) {
	var ch targetChange
	switch e := ev.(type) {
	case *target.EventTargetCreated:
		if e.TargetInfo == nil || e.TargetInfo.Type != pageTarget {
			return
		}
		ch = targetChange{kind: tracker.EventCreated, id: e.TargetInfo.TargetID}
	case *target.EventTargetDestroyed:
		ch = targetChange{kind: tracker.EventRemoved, id: e.TargetID}
	default:
		return
	}

	select {
	case w.changes <- ch:
	default:
		log.Warn().Str("target", string(ch.id)).Str("kind", string(ch.kind)).Msg("target change buffer full; change dropped")
	}
}

func (w *ChromeWatcher) seed(infos []*target.Info) {
	ids := make([]tracker.TabID, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != pageTarget {
			continue
		}
		id, _ := w.assign(info.TargetID)
		ids = append(ids, id)
	}
	w.registry.Replace(ids)
}

func (w *ChromeWatcher) apply(ctx context.Context, ch targetChange) {
	switch ch.kind {
	case tracker.EventCreated:
		id, isNew := w.assign(ch.id)
		if !isNew {
			return
		}
		w.deliver(ctx, tracker.Event{Kind: tracker.EventCreated, TabID: id}, tracker.Hooks{
			Before: func() { w.registry.Track(id) },
		})

	case tracker.EventRemoved:
		id, ok := w.release(ch.id)
		if !ok {
			return
		}
		w.deliver(ctx, tracker.Event{Kind: tracker.EventRemoved, TabID: id}, tracker.Hooks{
			After: func() { w.registry.Forget(id) },
		})
	}
}

func (w *ChromeWatcher) deliver(ctx context.Context, ev tracker.Event, hooks tracker.Hooks) {
	if err := w.dispatch(ctx, ev, hooks); err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind)).Int64("tab", int64(ev.TabID)).Msg("dispatch failed")
	}
}

// assign returns the tab id for tid, allocating one if tid is new.
func (w *ChromeWatcher) assign(tid target.ID) (tracker.TabID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if id, ok := w.ids[tid]; ok {
		return id, false
	}
	w.nextID++
	w.ids[tid] = w.nextID
	return w.nextID, true
}

func (w *ChromeWatcher) release(tid target.ID) (tracker.TabID, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id, ok := w.ids[tid]
	if ok {
		delete(w.ids, tid)
	}
	return id, ok
}
