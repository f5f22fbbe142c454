package cli

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtally/internal/storage"
)

// testNow is the fixed "current time" commands see in tests.
var testNow = time.Date(2030, 3, 14, 15, 4, 5, 0, time.UTC)

// captureOutput captures stdout during fn execution and returns it as a string.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	w.Close()
	os.Stdout = old
	return <-done
}

// openTestStore creates a migrated in-memory SQLite store.
func openTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, storage.NewMigrationRunner(db).Run())

	store, err := storage.NewSQLiteStore(db, "tabs:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seedDay stores a day with recognisable counters.
func seedDay(t *testing.T, store storage.Store, key string, opened int) {
	t.Helper()
	day := storage.NewDayAggregate(key, testNow)
	day.TabsOpened = opened
	day.TabsClosed = opened / 2
	day.TabsSwitched = opened * 3
	day.TabsLastCount = 4
	day.TabsMinCount = 2
	day.TabsMaxCount = 9
	day.TabCounts[15] = 4
	day.TabCounts[9] = 8
	require.NoError(t, store.PutDay(context.Background(), &day))
}
