package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Store defines durable key-value persistence for day aggregates. Each day
// key maps to at most one record; PutDay overwrites in place.
type Store interface {
	GetDay(ctx context.Context, dateKey string) (*DayAggregate, error)
	PutDay(ctx context.Context, day *DayAggregate) error
	ListDays(ctx context.Context, query DayQuery) ([]DayAggregate, error)
	RawDays(ctx context.Context) ([]RawRecord, error)
	PurgeAll(ctx context.Context) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database. Values are the
// JSON encoding of DayAggregate, keyed by prefix + date key.
type SQLiteStore struct {
	db     *sql.DB
	prefix string

	// Prepared statements
	getDay *sql.Stmt
	putDay *sql.Stmt
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB, prefix string) (*SQLiteStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("empty key prefix")
	}
	s := &SQLiteStore{db: db, prefix: prefix}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.getDay, err = s.db.Prepare(`SELECT value FROM day_aggregates WHERE key = ?`)
	if err != nil {
		return err
	}

	s.putDay, err = s.db.Prepare(`
		INSERT INTO day_aggregates (key, date_key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	return nil
}

// Key returns the storage key for a date key.
func (s *SQLiteStore) Key(dateKey string) string {
	return s.prefix + dateKey
}

// GetDay retrieves the record for dateKey. It returns ErrNotFound when the
// day has never been stored.
func (s *SQLiteStore) GetDay(ctx context.Context, dateKey string) (*DayAggregate, error) {
	var value string
	err := s.getDay.QueryRowContext(ctx, s.Key(dateKey)).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("day %s: %w", dateKey, ErrNotFound)
		}
		return nil, fmt.Errorf("get day: %w", err)
	}
	return decodeDay([]byte(value))
}

// PutDay writes day, replacing any existing record for the same key.
func (s *SQLiteStore) PutDay(ctx context.Context, day *DayAggregate) error {
	if day.DateKey == "" {
		return fmt.Errorf("put day: empty date key")
	}
	value, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encode day: %w", err)
	}
	updated := day.LastUpdated
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = s.putDay.ExecContext(ctx,
		s.Key(day.DateKey), day.DateKey, string(value), updated.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("put day: %w", err)
	}
	return nil
}

// ListDays returns day records in ascending date order, filtered by the
// inclusive Since/Until keys.
func (s *SQLiteStore) ListDays(ctx context.Context, q DayQuery) ([]DayAggregate, error) {
	if q.Limit <= 0 {
		q.Limit = 366
	}

	var clauses []string
	var args []interface{}

	clauses = append(clauses, "key >= ? AND key < ?")
	args = append(args, s.prefix, prefixEnd(s.prefix))

	if q.Since != "" {
		clauses = append(clauses, "date_key >= ?")
		args = append(args, q.Since)
	}
	if q.Until != "" {
		clauses = append(clauses, "date_key <= ?")
		args = append(args, q.Until)
	}

	query := "SELECT value FROM day_aggregates WHERE " + strings.Join(clauses, " AND ") +
		" ORDER BY date_key ASC LIMIT ? OFFSET ?"
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	days := []DayAggregate{}
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		day, err := decodeDay([]byte(value))
		if err != nil {
			return nil, err
		}
		days = append(days, *day)
	}

	return days, rows.Err()
}

// RawDays returns every stored value under the key prefix, ordered by key.
func (s *SQLiteStore) RawDays(ctx context.Context) ([]RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM day_aggregates WHERE key >= ? AND key < ? ORDER BY key ASC",
		s.prefix, prefixEnd(s.prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("query raw days: %w", err)
	}
	defer rows.Close()

	records := []RawRecord{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan raw day: %w", err)
		}
		records = append(records, RawRecord{Key: key, Value: []byte(value)})
	}

	return records, rows.Err()
}

// PurgeAll deletes every day record under the key prefix.
func (s *SQLiteStore) PurgeAll(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM day_aggregates WHERE key >= ? AND key < ?",
		s.prefix, prefixEnd(s.prefix),
	)
	if err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}

// GetStats returns aggregate statistics across all stored days.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	records, err := s.RawDays(ctx)
	if err != nil {
		return nil, err
	}
	return statsFromRecords(records)
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; the caller owns it.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.getDay, s.putDay}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// decodeDay parses a stored JSON value.
func decodeDay(value []byte) (*DayAggregate, error) {
	var day DayAggregate
	if err := json.Unmarshal(value, &day); err != nil {
		return nil, fmt.Errorf("decode day: %w", err)
	}
	return &day, nil
}

// statsFromRecords folds raw records into Stats, skipping undecodable values.
func statsFromRecords(records []RawRecord) (*Stats, error) {
	stats := &Stats{}
	for _, r := range records {
		day, err := decodeDay(r.Value)
		if err != nil {
			continue
		}
		stats.AddDay(*day)
	}
	return stats, nil
}

// prefixEnd returns the smallest string greater than every string with the
// given prefix, for half-open range scans.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
