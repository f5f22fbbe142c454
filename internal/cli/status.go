package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/config"
	"github.com/runnerr0/tabtally/internal/storage"
	"github.com/runnerr0/tabtally/internal/tracker"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version       string               `json:"version"`
	Backend       string               `json:"backend"`
	Today         storage.DayAggregate `json:"today"`
	Badge         string               `json:"badge"`
	TotalDays     int64                `json:"total_days"`
	OldestDay     string               `json:"oldest_day,omitempty"`
	NewestDay     string               `json:"newest_day,omitempty"`
	TotalOpened   int64                `json:"total_opened"`
	TotalClosed   int64                `json:"total_closed"`
	TotalSwitched int64                `json:"total_switched"`
	PeakTabs      int                  `json:"peak_tabs"`
	PeakDay       string               `json:"peak_day,omitempty"`
	DaemonAddr    string               `json:"daemon_addr"`
	DaemonRunning bool                 `json:"daemon_running"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(cfg, c.globals.DBPath)
	if err != nil {
		return err
	}
	defer closeStore()

	running := checkDaemon(cfg.Daemon)
	var live *storage.DayAggregate
	if running {
		client := &http.Client{Timeout: 2 * time.Second}
		day, err := fetchLiveDay(client, "http://"+cfg.Daemon.Addr(), cfg.Daemon.AuthToken)
		if err != nil {
			log.Debug().Err(err).Msg("live summary unavailable; using stored day")
		} else {
			live = &day
		}
	}
	return c.executeWithStore(context.Background(), store, cfg, time.Now(), running, live)
}

// executeWithStore runs status against a provided store (for testing). A
// live aggregate for today takes precedence over the stored one, which can
// trail it by a debounce window.
func (c *StatusCommand) executeWithStore(ctx context.Context, store storage.Store, cfg *config.Config, now time.Time, daemonRunning bool, live *storage.DayAggregate) error {
	key := tracker.DateKeyFor(now)
	var today *storage.DayAggregate
	if live != nil && live.DateKey == key {
		today = live
	} else {
		stored, err := store.GetDay(ctx, key)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			fresh := storage.NewDayAggregate(key, now)
			stored = &fresh
		case err != nil:
			return fmt.Errorf("load today: %w", err)
		}
		today = stored
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	badge := tracker.Badge(*today, cfg.Tracker.DisplayKey)
	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(cfg, *today, badge, stats, daemonRunning)
	}
	return c.printStatusHuman(cfg, *today, badge, stats, daemonRunning)
}

func (c *StatusCommand) printStatusHuman(cfg *config.Config, today storage.DayAggregate, badge string, stats *storage.Stats, daemonRunning bool) error {
	fmt.Println("tabtally Status")
	fmt.Println("===============")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Backend:       %s\n", cfg.Storage.Backend)
	fmt.Printf("Badge:         %s\n", badge)
	fmt.Println()
	fmt.Println(tracker.Tooltip(today))
	fmt.Println()
	fmt.Printf("Days stored:   %s\n", formatNumber(stats.TotalDays))
	if stats.TotalDays > 0 {
		fmt.Printf("Range:         %s .. %s\n", stats.OldestDay, stats.NewestDay)
		fmt.Printf("All-time:      %s opened, %s closed, %s switches\n",
			formatNumber(stats.TotalOpened), formatNumber(stats.TotalClosed), formatNumber(stats.TotalSwitched))
		fmt.Printf("Peak:          %d tabs on %s\n", stats.PeakTabs, stats.PeakDay)
	}
	fmt.Println()
	if daemonRunning {
		fmt.Printf("Daemon:        running on %s\n", cfg.Daemon.Addr())
	} else {
		fmt.Println("Daemon:        not running")
	}
	return nil
}

func (c *StatusCommand) printStatusJSON(cfg *config.Config, today storage.DayAggregate, badge string, stats *storage.Stats, daemonRunning bool) error {
	out := statusJSON{
		Version:       c.version,
		Backend:       cfg.Storage.Backend,
		Today:         today,
		Badge:         badge,
		TotalDays:     stats.TotalDays,
		OldestDay:     stats.OldestDay,
		NewestDay:     stats.NewestDay,
		TotalOpened:   stats.TotalOpened,
		TotalClosed:   stats.TotalClosed,
		TotalSwitched: stats.TotalSwitched,
		PeakTabs:      stats.PeakTabs,
		PeakDay:       stats.PeakDay,
		DaemonAddr:    cfg.Daemon.Addr(),
		DaemonRunning: daemonRunning,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// fetchLiveDay reads the daemon's in-memory aggregate from /v1/summary.
func fetchLiveDay(client *http.Client, baseURL, token string) (storage.DayAggregate, error) {
	req, err := http.NewRequest(http.MethodGet, baseURL+"/v1/summary", nil)
	if err != nil {
		return storage.DayAggregate{}, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return storage.DayAggregate{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return storage.DayAggregate{}, fmt.Errorf("summary: unexpected status %d", resp.StatusCode)
	}

	var out struct {
		Day storage.DayAggregate `json:"day"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return storage.DayAggregate{}, fmt.Errorf("decode summary: %w", err)
	}
	return out.Day, nil
}

// checkDaemon calls the daemon's health endpoint with a short timeout.
func checkDaemon(d config.DaemonConfig) bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get("http://" + d.Addr() + "/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
