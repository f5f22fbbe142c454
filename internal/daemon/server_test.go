package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtally/internal/export"
	"github.com/runnerr0/tabtally/internal/metrics"
	"github.com/runnerr0/tabtally/internal/platform"
	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

type fixture struct {
	handler  http.Handler
	registry *platform.Registry
	board    *platform.Board
}

func newFixture(t *testing.T, token string) *fixture {
	t.Helper()
	store, err := storage.OpenBadgerStore("", "tabs:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	registry := platform.NewRegistry()
	board := &platform.Board{}
	r, err := tracker.New(tracker.Options{
		Store:   store,
		Tabs:    registry,
		Surface: board,
		Metrics: metrics.New(reg),
	})
	require.NoError(t, err)
	require.NoError(t, r.Start(context.Background(), tracker.ReasonInstall))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = r.Shutdown(context.Background())
	})

	srv := NewServer(Options{
		AuthToken:      token,
		MaxRequestSize: 1024,
		Tracker:        r,
		Registry:       registry,
		Board:          board,
		Exporter:       export.New(store),
		Gatherer:       reg,
	})
	return &fixture{handler: srv.Handler(), registry: registry, board: board}
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, "secret")
	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAuthToken(t *testing.T) {
	f := newFixture(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/badge", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/v1/badge", "", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/badge", "", "Authorization", "Bearer secret").Code)
}

func TestEventFlow(t *testing.T) {
	f := newFixture(t, "")

	rec := f.do(t, http.MethodPut, "/v1/tabs", `{"open_tabs":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["open_tabs"])

	rec = f.do(t, http.MethodPost, "/v1/events", `{"type":"created","tab_id":3}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "~1", decode(t, rec)["badge"])

	rec = f.do(t, http.MethodGet, "/v1/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode(t, rec)["day"].(map[string]any)
	assert.Equal(t, float64(1), day["tabsOpened"])
	assert.Equal(t, float64(3), day["tabsLastCount"])

	rec = f.do(t, http.MethodPost, "/v1/events", `{"type":"removed","tab_id":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, f.registry.Len())

	rec = f.do(t, http.MethodGet, "/v1/summary", "")
	day = decode(t, rec)["day"].(map[string]any)
	assert.Equal(t, float64(1), day["tabsClosed"])
	assert.Equal(t, float64(2), day["tabsLastCount"])

	rec = f.do(t, http.MethodGet, "/v1/badge", "")
	require.Equal(t, http.StatusOK, rec.Code)
	badge := decode(t, rec)
	assert.Equal(t, "~1", badge["text"])
	assert.Contains(t, badge["tooltip"], "Closed: 1")
}

func TestEventWithSnapshot(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodPost, "/v1/events", `{"type":"activated","tab_id":4,"open_tabs":[4,5,6]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, f.registry.Len())
	assert.Equal(t, "~1", f.board.Badge())
}

func TestEventValidation(t *testing.T) {
	f := newFixture(t, "")

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed", `{"type":`, http.StatusBadRequest},
		{"missing tab", `{"type":"created"}`, http.StatusBadRequest},
		{"unknown type", `{"type":"moved","tab_id":1}`, http.StatusBadRequest},
		{"too large", `{"type":"created","tab_id":1,"open_tabs":[` + strings.Repeat("1,", 2000) + `1]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/v1/events", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestExportCSV(t *testing.T) {
	f := newFixture(t, "")
	rec := f.do(t, http.MethodGet, "/v1/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "dateKey,lastUpdated,tabCounts"))
}

func TestExportCSV_Empty(t *testing.T) {
	store, err := storage.OpenBadgerStore("", "tabs:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := NewServer(Options{Exporter: export.New(store)})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/export.csv", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, "")
	f.do(t, http.MethodPost, "/v1/events", `{"type":"activated","tab_id":1}`)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tabtally_events_total{kind="activated",outcome="applied"} 1`)
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/v2/nothing", "").Code)
}

// loopTracker applies hooks the way the reconciler's event loop does and
// records the registry size the event itself observed.
type loopTracker struct {
	registry *platform.Registry
	before   int
	during   int
}

func (l *loopTracker) Submit(ctx context.Context, ev tracker.Event, hooks tracker.Hooks) error {
	l.before = l.registry.Len()
	if hooks.Before != nil {
		hooks.Before()
	}
	l.during = l.registry.Len()
	if hooks.After != nil {
		hooks.After()
	}
	return nil
}

func (l *loopTracker) Current() (storage.DayAggregate, bool) { return storage.DayAggregate{}, false }
func (l *loopTracker) KnownTabs() int { return 0 }
func (l *loopTracker) Attached() bool { return true }

func TestEventRegistryChangesRunInsideSubmit(t *testing.T) {
	registry := platform.NewRegistry()
	lt := &loopTracker{registry: registry}
	srv := NewServer(Options{Tracker: lt, Registry: registry, Board: &platform.Board{}})

	post := func(body string) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/events", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	post(`{"type":"created","tab_id":3,"open_tabs":[1,2]}`)
	assert.Equal(t, 0, lt.before, "registry untouched until the loop runs the event")
	assert.Equal(t, 3, lt.during)

	post(`{"type":"removed","tab_id":3}`)
	assert.Equal(t, 3, lt.before)
	assert.Equal(t, 3, lt.during, "closing tab still listed while reconciled")
	assert.Equal(t, 2, registry.Len())
}
