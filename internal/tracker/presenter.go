package tracker

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/runnerr0/tabtally/internal/config"
	"github.com/runnerr0/tabtally/internal/storage"
)

// MaxBadgeLen is the widest badge the browser toolbar renders.
const MaxBadgeLen = 3

var badgePrefixes = map[string]string{
	config.DisplayTabsLastCount: "#",
	config.DisplayTabsOpened:    "+",
	config.DisplayTabsClosed:    "-",
	config.DisplayTabsSwitched:  "~",
}

// Presenter renders the current aggregate onto a Surface.
type Presenter struct {
	surface    Surface
	displayKey string
}

func NewPresenter(surface Surface, displayKey string) *Presenter {
	if _, ok := badgePrefixes[displayKey]; !ok {
		displayKey = config.DisplayTabsSwitched
	}
	return &Presenter{surface: surface, displayKey: displayKey}
}

// Refresh pushes badge and tooltip for day to the surface.
func (p *Presenter) Refresh(day storage.DayAggregate) {
	if p == nil || p.surface == nil {
		return
	}
	p.surface.SetBadgeText(Badge(day, p.displayKey))
	p.surface.SetTooltip(Tooltip(day))
}

// Badge returns the short toolbar text for the counter named by displayKey.
func Badge(day storage.DayAggregate, displayKey string) string {
	prefix, ok := badgePrefixes[displayKey]
	if !ok {
		displayKey = config.DisplayTabsSwitched
		prefix = badgePrefixes[displayKey]
	}
	return fitBadge(prefix, counterValue(day, displayKey))
}

func counterValue(day storage.DayAggregate, displayKey string) int {
	switch displayKey {
	case config.DisplayTabsLastCount:
		return day.TabsLastCount
	case config.DisplayTabsOpened:
		return day.TabsOpened
	case config.DisplayTabsClosed:
		return day.TabsClosed
	default:
		return day.TabsSwitched
	}
}

// fitBadge renders prefix+n in at most MaxBadgeLen characters, dropping the
// prefix and then abbreviating thousands as the value grows.
func fitBadge(prefix string, n int) string {
	if n < 0 {
		n = 0
	}
	if s := prefix + strconv.Itoa(n); len(s) <= MaxBadgeLen {
		return s
	}
	switch {
	case n < 1000:
		return strconv.Itoa(n)
	case n < 10000:
		return prefix + strconv.Itoa(n/1000) + "k"
	case n < 100000:
		return strconv.Itoa(n/1000) + "k"
	default:
		return "∞"
	}
}

// Tooltip returns the multi-line summary shown on hover.
func Tooltip(day storage.DayAggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tabs on %s\n", day.DateKey)
	fmt.Fprintf(&b, "Open now: %d (low %d, high %d)\n", day.TabsLastCount, day.TabsMinCount, day.TabsMaxCount)
	fmt.Fprintf(&b, "Opened: %d  Closed: %d\n", day.TabsOpened, day.TabsClosed)
	fmt.Fprintf(&b, "Switches: %d", day.TabsSwitched)
	return b.String()
}
