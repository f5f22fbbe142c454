// Package platform adapts browser-side sources and sinks to the tracker:
// the open-tab snapshot, the Chrome DevTools target watcher and the
// in-memory badge surface.
package platform

import (
	"context"
	"sort"
	"sync"

	"github.com/runnerr0/tabtally/internal/tracker"
)

// Registry is the snapshot of tabs the platform reports as open. It answers
// tracker.TabSource queries. A removed tab must stay tracked until its
// removal event has been reconciled.
type Registry struct {
	mu   sync.Mutex
	open map[tracker.TabID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{open: make(map[tracker.TabID]struct{})}
}

// Track marks id as open.
func (r *Registry) Track(id tracker.TabID) {
	r.mu.Lock()
	r.open[id] = struct{}{}
	r.mu.Unlock()
}

// Forget marks id as closed.
func (r *Registry) Forget(id tracker.TabID) {
	r.mu.Lock()
	delete(r.open, id)
	r.mu.Unlock()
}

// Replace sets the snapshot to exactly ids.
func (r *Registry) Replace(ids []tracker.TabID) {
	open := make(map[tracker.TabID]struct{}, len(ids))
	for _, id := range ids {
		open[id] = struct{}{}
	}
	r.mu.Lock()
	r.open = open
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// QueryAllTabs returns the open tab ids in ascending order.
func (r *Registry) QueryAllTabs(ctx context.Context) ([]tracker.TabID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	ids := make([]tracker.TabID, 0, len(r.open))
	for id := range r.open {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
