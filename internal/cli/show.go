package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

const barWidth = 40

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg, c.globals.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	return c.executeWithStore(context.Background(), store, time.Now())
}

func (c *ShowCommand) executeWithStore(ctx context.Context, store storage.Store, now time.Time) error {
	key := c.Day
	if key == "" {
		key = tracker.DateKeyFor(now)
	}
	if _, err := time.Parse(tracker.DateKeyLayout, key); err != nil {
		return fmt.Errorf("invalid --day %q: want YYYY-MM-DD", key)
	}

	day, err := store.GetDay(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no record for %s", key)
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}

	if c.globals != nil && c.globals.JSON {
		return outputDayJSON(day)
	}
	switch c.Format {
	case "json":
		return outputDayJSON(day)
	case "hours":
		printHours(day)
	case "full", "":
		fmt.Println(tracker.Tooltip(*day))
		fmt.Printf("Updated: %s\n", day.LastUpdated.Format(time.RFC3339))
		fmt.Println()
		printHours(day)
	default:
		return fmt.Errorf("unknown format %q (use full, hours or json)", c.Format)
	}
	return nil
}

func outputDayJSON(day *storage.DayAggregate) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(day)
}

// printHours draws the hourly open-tab histogram as a bar chart.
func printHours(day *storage.DayAggregate) {
	peak := 0
	for _, n := range day.TabCounts {
		peak = max(peak, n)
	}
	for hour, n := range day.TabCounts {
		width := 0
		if peak > 0 {
			width = n * barWidth / peak
		}
		fmt.Printf("%02d:00 %-*s %d\n", hour, barWidth, strings.Repeat("#", width), n)
	}
}
