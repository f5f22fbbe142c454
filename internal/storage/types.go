package storage

import (
	"errors"
	"time"
)

// HoursPerDay is the number of slots in the hourly histogram.
const HoursPerDay = 24

// ErrNotFound is returned when no record exists for a day key.
var ErrNotFound = errors.New("day record not found")

// DayAggregate holds all counters for one UTC calendar day. The JSON names
// are the persisted field names and the export column names.
type DayAggregate struct {
	DateKey       string           `json:"dateKey"`
	LastUpdated   time.Time        `json:"lastUpdated"`
	TabCounts     [HoursPerDay]int `json:"tabCounts"`
	TabsLastCount int              `json:"tabsLastCount"`
	TabsMaxCount  int              `json:"tabsMaxCount"`
	TabsMinCount  int              `json:"tabsMinCount"`
	TabsOpened    int              `json:"tabsOpened"`
	TabsClosed    int              `json:"tabsClosed"`
	TabsSwitched  int              `json:"tabsSwitched"`
}

// NewDayAggregate returns a zero-valued aggregate for dateKey.
func NewDayAggregate(dateKey string, now time.Time) DayAggregate {
	return DayAggregate{DateKey: dateKey, LastUpdated: now.UTC()}
}

// RawRecord is a stored value as persisted, before decoding.
type RawRecord struct {
	Key   string
	Value []byte
}

// DayQuery selects a range of day records by date key (inclusive bounds).
type DayQuery struct {
	Since  string
	Until  string
	Limit  int
	Offset int
}

// Stats holds aggregate statistics across all stored days.
type Stats struct {
	TotalDays     int64
	OldestDay     string
	NewestDay     string
	TotalOpened   int64
	TotalClosed   int64
	TotalSwitched int64
	PeakTabs      int
	PeakDay       string
}

// AddDay folds one day into the running statistics.
func (s *Stats) AddDay(day DayAggregate) {
	s.TotalDays++
	if s.OldestDay == "" || day.DateKey < s.OldestDay {
		s.OldestDay = day.DateKey
	}
	if day.DateKey > s.NewestDay {
		s.NewestDay = day.DateKey
	}
	s.TotalOpened += int64(day.TabsOpened)
	s.TotalClosed += int64(day.TabsClosed)
	s.TotalSwitched += int64(day.TabsSwitched)
	if day.TabsMaxCount > s.PeakTabs {
		s.PeakTabs = day.TabsMaxCount
		s.PeakDay = day.DateKey
	}
}
