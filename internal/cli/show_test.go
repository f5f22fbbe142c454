package cli

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/tabtally/internal/storage"
)

func TestShow_FullDefaultsToToday(t *testing.T) {
	store := openTestStore(t)
	seedDay(t, store, "2030-03-14", 12)

	cmd := &ShowCommand{Format: "full", globals: &GlobalFlags{}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), store, testNow)
	})
	require.NoError(t, err)

	assert.Contains(t, output, "Tabs on 2030-03-14")
	assert.Contains(t, output, "Opened: 12  Closed: 6")
	assert.Contains(t, output, "Switches: 36")
	assert.Contains(t, output, "09:00 "+strings.Repeat("#", barWidth)+" 8")
	assert.Contains(t, output, "15:00 "+strings.Repeat("#", barWidth/2))
}

func TestShow_Hours(t *testing.T) {
	store := openTestStore(t)
	seedDay(t, store, "2030-03-01", 1)

	cmd := &ShowCommand{Day: "2030-03-01", Format: "hours", globals: &GlobalFlags{}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), store, testNow)
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Len(t, lines, storage.HoursPerDay)
	assert.True(t, strings.HasPrefix(lines[0], "00:00"))
	assert.True(t, strings.HasSuffix(lines[23], " 0"))
	assert.NotContains(t, output, "Tabs on")
}

func TestShow_JSON(t *testing.T) {
	store := openTestStore(t)
	seedDay(t, store, "2030-03-14", 2)

	cmd := &ShowCommand{Format: "full", globals: &GlobalFlags{JSON: true}}
	var err error
	output := captureOutput(t, func() {
		err = cmd.executeWithStore(context.Background(), store, testNow)
	})
	require.NoError(t, err)

	var day storage.DayAggregate
	require.NoError(t, json.Unmarshal([]byte(output), &day))
	assert.Equal(t, "2030-03-14", day.DateKey)
	assert.Equal(t, 8, day.TabCounts[9])
}

func TestShow_Errors(t *testing.T) {
	store := openTestStore(t)

	err := (&ShowCommand{Day: "14/03/2030", globals: &GlobalFlags{}}).executeWithStore(context.Background(), store, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")

	err = (&ShowCommand{Day: "2030-03-02", globals: &GlobalFlags{}}).executeWithStore(context.Background(), store, testNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no record for 2030-03-02")

	seedDay(t, store, "2030-03-14", 1)
	err = (&ShowCommand{Format: "xml", globals: &GlobalFlags{}}).executeWithStore(context.Background(), store, testNow)
	require.Error(t, err)
}
