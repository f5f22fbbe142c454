package cli

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/runnerr0/tabtally/internal/config"
	"github.com/runnerr0/tabtally/internal/storage"
)

// loadConfig reads --config if given, otherwise the default config file,
// creating it on first use. An unreadable default file falls back to
// built-in defaults.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		cfg, err := config.Load(globals.Config)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", globals.Config, err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadOrCreate()
	if err != nil {
		log.Warn().Err(err).Msg("using built-in defaults")
		return config.DefaultConfig(), nil
	}
	return cfg, nil
}

// openStore opens the configured backend. dbPath overrides the SQLite file.
// The returned func closes the store and everything under it.
func openStore(cfg *config.Config, dbPath string) (storage.Store, func() error, error) {
	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve storage dir: %w", err)
	}

	switch cfg.Storage.Backend {
	case config.BackendBadger:
		store, err := storage.OpenBadgerStore(filepath.Join(dir, cfg.Storage.BadgerDir), cfg.Storage.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		path := dbPath
		if path == "" {
			path = filepath.Join(dir, cfg.Storage.SQLiteFile)
		}
		store, db, err := openSQLite(path, cfg.Storage.SQLiteJournalMode, cfg.Storage.KeyPrefix)
		if err != nil {
			return nil, nil, err
		}
		closeAll := func() error {
			storeErr := store.Close()
			if err := db.Close(); err != nil {
				return err
			}
			return storeErr
		}
		return store, closeAll, nil
	}
}

// openSQLite opens the database file, runs migrations, and returns a
// ready-to-use store and the underlying *sql.DB.
func openSQLite(path, journalMode, prefix string) (*storage.SQLiteStore, *sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db).WithJournalMode(journalMode)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewSQLiteStore(db, prefix)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// parseDuration parses a human-friendly duration string like "30d", "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h or w suffix)", s)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var result strings.Builder
	if neg {
		result.WriteString("-")
	}
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
