package bolt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

type usageStore struct {
	db *bbolt.DB
}

func (s *usageStore) UpsertDaily(ctx context.Context, records ...storage.UsageRecord) error {
	for _, record := range records {
		if err := record.Validate(); err != nil {
			return err
		}
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUsage))
		if b == nil {
			return fmt.Errorf("usage bucket missing")
		}
		for _, record := range records {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data, err := marshal(record)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(usageKey(record.Date, record.Package)), data); err != nil {
				return err
			}
			idx, err := ensureIndexBucket(tx, bucketIndexApp, record.Package)
			if err != nil {
				return fmt.Errorf("index usage %s: %w", record.Package, err)
			}
			if err := idx.Put([]byte(record.Date), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *usageStore) GetForDate(ctx context.Context, date string) ([]storage.UsageRecord, error) {
	records, err := s.scan(ctx, date, date)
	if err != nil {
		return nil, err
	}
	storage.SortByTotalDesc(records)
	return records, nil
}

func (s *usageStore) GetForRange(ctx context.Context, start, end string) ([]storage.UsageRecord, error) {
	if start > end {
		return []storage.UsageRecord{}, nil
	}
	return s.scan(ctx, start, end)
}

// scan walks the date-prefixed keys from start through end inclusive.
func (s *usageStore) scan(ctx context.Context, start, end string) ([]storage.UsageRecord, error) {
	records := make([]storage.UsageRecord, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUsage))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Seek([]byte(start + "/")); k != nil; k, v = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if keyDate(k) > end {
				break
			}
			var record storage.UsageRecord
			if err := unmarshal(v, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func (s *usageStore) GetForApp(ctx context.Context, pkg, since string) ([]storage.UsageRecord, error) {
	records := make([]storage.UsageRecord, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		idx := indexBucket(tx, bucketIndexApp, pkg)
		b := tx.Bucket([]byte(bucketUsage))
		if idx == nil || b == nil {
			return nil
		}
		c := idx.Cursor()
		for k, _ := c.Last(); k != nil && string(k) >= since; k, _ = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			value := b.Get([]byte(usageKey(string(k), pkg)))
			if value == nil {
				continue
			}
			var record storage.UsageRecord
			if err := unmarshal(value, &record); err != nil {
				continue
			}
			records = append(records, record)
		}
		return nil
	})
	return records, err
}

func (s *usageStore) TotalForDate(ctx context.Context, date string) (int64, error) {
	records, err := s.scan(ctx, date, date)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, record := range records {
		total += record.TotalTimeMillis
	}
	return total, nil
}

func (s *usageStore) DeleteOlderThan(ctx context.Context, cutoff string) (int, error) {
	if _, err := storage.ParseDate(cutoff); err != nil {
		return 0, fmt.Errorf("invalid cutoff date: %w", err)
	}
	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketUsage))
		if b == nil {
			return nil
		}

		// Collect first; deleting under a live cursor skips keys.
		var stale [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && keyDate(k) < cutoff; k, _ = c.Next() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			stale = append(stale, bytes.Clone(k))
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			date, pkg := splitUsageKey(k)
			if idx := indexBucket(tx, bucketIndexApp, pkg); idx != nil {
				if err := idx.Delete([]byte(date)); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func usageKey(date, pkg string) string {
	return fmt.Sprintf("%s/%s", date, pkg)
}

func keyDate(k []byte) string {
	if i := bytes.IndexByte(k, '/'); i >= 0 {
		return string(k[:i])
	}
	return string(k)
}

func splitUsageKey(k []byte) (date, pkg string) {
	i := bytes.IndexByte(k, '/')
	if i < 0 {
		return string(k), ""
	}
	return string(k[:i]), string(k[i+1:])
}
