package config

// Storage backends.
const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Counters the badge can display.
const (
	DisplayTabsLastCount = "tabsLastCount"
	DisplayTabsOpened    = "tabsOpened"
	DisplayTabsClosed    = "tabsClosed"
	DisplayTabsSwitched  = "tabsSwitched"
)

func isDisplayKey(key string) bool {
	switch key {
	case DisplayTabsLastCount, DisplayTabsOpened, DisplayTabsClosed, DisplayTabsSwitched:
		return true
	}
	return false
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:              "~/.config/tabtally",
			Backend:           BackendSQLite,
			SQLiteFile:        "tabtally.db",
			BadgerDir:         "badger",
			SQLiteJournalMode: "wal",
			KeyPrefix:         "tabs:",
		},
		Tracker: TrackerConfig{
			DebounceSeconds:     30,
			StartupGraceSeconds: 5,
			DisplayKey:          DisplayTabsSwitched,
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8722,
			AuthToken:      "",
			MaxRequestSize: 65536,
		},
		Browser: BrowserConfig{
			CDPURL: "",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
			JSON:  false,
		},
	}
}
