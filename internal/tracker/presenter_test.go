package tracker

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/runnerr0/tabtally/internal/config"
	"github.com/runnerr0/tabtally/internal/storage"
)

func TestFitBadge(t *testing.T) {
	tests := []struct {
		prefix string
		n      int
		want   string
	}{
		{"~", 0, "~0"},
		{"~", 7, "~7"},
		{"~", 42, "~42"},
		{"~", 100, "100"},
		{"~", 999, "999"},
		{"~", 1000, "~1k"},
		{"~", 9999, "~9k"},
		{"~", 10000, "10k"},
		{"~", 99999, "99k"},
		{"~", 100000, "∞"},
		{"#", -3, "#0"},
	}

	for _, tt := range tests {
		got := fitBadge(tt.prefix, tt.n)
		assert.Equal(t, tt.want, got, "fitBadge(%q, %d)", tt.prefix, tt.n)
		assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxBadgeLen)
	}
}

func TestBadge_SelectsCounter(t *testing.T) {
	day := storage.NewDayAggregate("2030-03-14", testStart)
	day.TabsLastCount = 4
	day.TabsOpened = 12
	day.TabsClosed = 8
	day.TabsSwitched = 31

	assert.Equal(t, "#4", Badge(day, config.DisplayTabsLastCount))
	assert.Equal(t, "+12", Badge(day, config.DisplayTabsOpened))
	assert.Equal(t, "-8", Badge(day, config.DisplayTabsClosed))
	assert.Equal(t, "~31", Badge(day, config.DisplayTabsSwitched))
	assert.Equal(t, "~31", Badge(day, "tabsMaxCount"), "unknown keys fall back to switches")
}

func TestTooltip(t *testing.T) {
	day := storage.NewDayAggregate("2030-03-14", testStart)
	day.TabsLastCount = 5
	day.TabsMinCount = 2
	day.TabsMaxCount = 9
	day.TabsOpened = 11
	day.TabsClosed = 6
	day.TabsSwitched = 40

	want := "Tabs on 2030-03-14\n" +
		"Open now: 5 (low 2, high 9)\n" +
		"Opened: 11  Closed: 6\n" +
		"Switches: 40"
	assert.Equal(t, want, Tooltip(day))
}

func TestPresenter_Refresh(t *testing.T) {
	surface := &fakeSurface{}
	p := NewPresenter(surface, config.DisplayTabsOpened)

	day := storage.NewDayAggregate("2030-03-14", testStart)
	day.TabsOpened = 3
	p.Refresh(day)

	badge, tooltip, renders := surface.snapshot()
	assert.Equal(t, "+3", badge)
	assert.Contains(t, tooltip, "Opened: 3")
	assert.Equal(t, 1, renders)
}

func TestPresenter_NilSurface(t *testing.T) {
	var p *Presenter
	assert.NotPanics(t, func() { p.Refresh(storage.DayAggregate{}) })
	assert.NotPanics(t, func() { NewPresenter(nil, "").Refresh(storage.DayAggregate{}) })
}
