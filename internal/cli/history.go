package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

// Execute implements the go-flags Commander interface for HistoryCommand.
func (c *HistoryCommand) Execute(args []string) error {
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

// executeWithStore lists days against a provided store (for testing).
func (c *HistoryCommand) executeWithStore(ctx context.Context, store storage.Store, now time.Time) error {
	q := storage.DayQuery{Limit: c.Limit, Offset: c.Offset}
	if c.Since != "" {
		dur, err := parseDuration(c.Since)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		q.Since = tracker.DateKeyFor(now.Add(-dur))
	}
	if c.Until != "" {
		dur, err := parseDuration(c.Until)
		if err != nil {
			return fmt.Errorf("invalid --until value: %w", err)
		}
		q.Until = tracker.DateKeyFor(now.Add(-dur))
	}

	days, err := store.ListDays(ctx, q)
	if err != nil {
		return fmt.Errorf("list days: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return c.printJSON(days)
	}
	return c.printHuman(days)
}

func (c *HistoryCommand) printHuman(days []storage.DayAggregate) error {
	if len(days) == 0 {
		fmt.Printf("No days recorded (since %s)\n", c.Since)
		return nil
	}

	fmt.Printf("%-10s  %6s  %6s  %8s  %4s  %4s  %4s\n", "DAY", "OPENED", "CLOSED", "SWITCHED", "LOW", "HIGH", "LAST")
	for _, d := range days {
		fmt.Printf("%-10s  %6d  %6d  %8d  %4d  %4d  %4d\n",
			d.DateKey, d.TabsOpened, d.TabsClosed, d.TabsSwitched, d.TabsMinCount, d.TabsMaxCount, d.TabsLastCount)
	}
	return nil
}

type historyOutput struct {
	Count int                    `json:"count"`
	Days  []storage.DayAggregate `json:"days"`
}

func (c *HistoryCommand) printJSON(days []storage.DayAggregate) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(historyOutput{Count: len(days), Days: days})
}
