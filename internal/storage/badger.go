package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store on an embedded Badger key-value database.
// An empty directory opens an in-memory instance.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

// OpenBadgerStore opens (or creates) a Badger database in dir.
func OpenBadgerStore(dir, prefix string) (*BadgerStore, error) {
	if prefix == "" {
		return nil, fmt.Errorf("empty key prefix")
	}

	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, prefix: prefix}, nil
}

func (s *BadgerStore) key(dateKey string) []byte {
	return []byte(s.prefix + dateKey)
}

// GetDay retrieves the record for dateKey, or ErrNotFound.
func (s *BadgerStore) GetDay(ctx context.Context, dateKey string) (*DayAggregate, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(dateKey))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("day %s: %w", dateKey, ErrNotFound)
		}
		return nil, fmt.Errorf("get day: %w", err)
	}
	return decodeDay(value)
}

// PutDay writes day, replacing any existing record for the same key.
func (s *BadgerStore) PutDay(ctx context.Context, day *DayAggregate) error {
	if day.DateKey == "" {
		return fmt.Errorf("put day: empty date key")
	}
	value, err := json.Marshal(day)
	if err != nil {
		return fmt.Errorf("encode day: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(day.DateKey), value)
	}); err != nil {
		return fmt.Errorf("put day: %w", err)
	}
	return nil
}

// ListDays returns day records in ascending date order within the inclusive
// Since/Until bounds.
func (s *BadgerStore) ListDays(ctx context.Context, q DayQuery) ([]DayAggregate, error) {
	if q.Limit <= 0 {
		q.Limit = 366
	}

	records, err := s.RawDays(ctx)
	if err != nil {
		return nil, err
	}

	days := []DayAggregate{}
	skipped := 0
	for _, r := range records {
		dateKey := strings.TrimPrefix(r.Key, s.prefix)
		if q.Since != "" && dateKey < q.Since {
			continue
		}
		if q.Until != "" && dateKey > q.Until {
			continue
		}
		if skipped < q.Offset {
			skipped++
			continue
		}
		day, err := decodeDay(r.Value)
		if err != nil {
			return nil, err
		}
		days = append(days, *day)
		if len(days) == q.Limit {
			break
		}
	}
	return days, nil
}

// RawDays returns every stored value under the key prefix, ordered by key.
func (s *BadgerStore) RawDays(ctx context.Context) ([]RawRecord, error) {
	prefix := []byte(s.prefix)
	records := []RawRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			records = append(records, RawRecord{Key: string(item.KeyCopy(nil)), Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan raw days: %w", err)
	}
	return records, nil
}

// PurgeAll deletes every day record under the key prefix.
func (s *BadgerStore) PurgeAll(ctx context.Context) error {
	if err := s.db.DropPrefix([]byte(s.prefix)); err != nil {
		return fmt.Errorf("purge: %w", err)
	}
	return nil
}

// GetStats returns aggregate statistics across all stored days.
func (s *BadgerStore) GetStats(ctx context.Context) (*Stats, error) {
	records, err := s.RawDays(ctx)
	if err != nil {
		return nil, err
	}
	return statsFromRecords(records)
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
