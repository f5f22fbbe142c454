package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/goleak"

	"github.com/runnerr0/tabtally/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testStart is the mocked wall-clock time most tests begin at.
var testStart = time.Date(2030, 3, 14, 10, 15, 0, 0, time.UTC)

func newMockClock(t *testing.T, at time.Time) *quartz.Mock {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(at)
	return clock
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// memStore is an in-memory storage.Store that records every write.
type memStore struct {
	mu     sync.Mutex
	days   map[string]storage.DayAggregate
	puts   []storage.DayAggregate
	putErr error
}

func newMemStore() *memStore {
	return &memStore{days: make(map[string]storage.DayAggregate)}
}

func (s *memStore) GetDay(ctx context.Context, dateKey string) (*storage.DayAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[dateKey]
	if !ok {
		return nil, fmt.Errorf("day %s: %w", dateKey, storage.ErrNotFound)
	}
	return &day, nil
}

func (s *memStore) PutDay(ctx context.Context, day *storage.DayAggregate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	s.days[day.DateKey] = *day
	s.puts = append(s.puts, *day)
	return nil
}

func (s *memStore) ListDays(ctx context.Context, q storage.DayQuery) ([]storage.DayAggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := []storage.DayAggregate{}
	for _, d := range s.days {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].DateKey < days[j].DateKey })
	return days, nil
}

func (s *memStore) RawDays(ctx context.Context) ([]storage.RawRecord, error) {
	return nil, errors.New("not implemented")
}

func (s *memStore) PurgeAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days = make(map[string]storage.DayAggregate)
	return nil
}

func (s *memStore) GetStats(ctx context.Context) (*storage.Stats, error) {
	return &storage.Stats{}, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) putCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.puts)
}

func (s *memStore) lastPut() storage.DayAggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts[len(s.puts)-1]
}

func (s *memStore) day(key string) (storage.DayAggregate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.days[key]
	return d, ok
}

func (s *memStore) failPuts(err error) {
	s.mu.Lock()
	s.putErr = err
	s.mu.Unlock()
}

// fakeTabs is a TabSource whose answer tests set directly.
type fakeTabs struct {
	mu    sync.Mutex
	ids   []TabID
	err   error
	calls int
}

func (f *fakeTabs) QueryAllTabs(ctx context.Context) ([]TabID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]TabID(nil), f.ids...), nil
}

func (f *fakeTabs) set(ids ...TabID) {
	f.mu.Lock()
	f.ids = append([]TabID(nil), ids...)
	f.mu.Unlock()
}

func (f *fakeTabs) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeSurface records what the presenter pushed.
type fakeSurface struct {
	mu      sync.Mutex
	badge   string
	tooltip string
	renders int
	// onRender, when set, runs after each badge update.
	onRender func()
}

func (f *fakeSurface) SetBadgeText(text string) {
	f.mu.Lock()
	f.badge = text
	f.renders++
	hook := f.onRender
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func (f *fakeSurface) SetTooltip(text string) {
	f.mu.Lock()
	f.tooltip = text
	f.mu.Unlock()
}

func (f *fakeSurface) snapshot() (string, string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.badge, f.tooltip, f.renders
}
