package platform

import "sync"

// Board is an in-memory tracker.Surface. The daemon serves its contents to
// toolbar clients.
type Board struct {
	mu      sync.RWMutex
	badge   string
	tooltip string
}

func (b *Board) SetBadgeText(text string) {
	b.mu.Lock()
	b.badge = text
	b.mu.Unlock()
}

func (b *Board) SetTooltip(text string) {
	b.mu.Lock()
	b.tooltip = text
	b.mu.Unlock()
}

func (b *Board) Badge() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.badge
}

func (b *Board) Tooltip() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tooltip
}
