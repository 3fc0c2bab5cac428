package bolt

import (
	"context"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"go.etcd.io/bbolt"
)

// policy is the constraint shared by limit and block rows.
type policy interface {
	storage.LimitPolicy | storage.BlockPolicy
}

// policyBucket stores one JSON policy per package key.
type policyBucket[T policy] struct {
	db     *bbolt.DB
	bucket string
}

func (p policyBucket[T]) list(ctx context.Context, enabledOnly bool) ([]T, error) {
	items, err := listBucket[T](ctx, p.db, p.bucket)
	if err != nil || !enabledOnly {
		return items, err
	}
	enabled := make([]T, 0, len(items))
	for _, item := range items {
		if isEnabled(item) {
			enabled = append(enabled, item)
		}
	}
	return enabled, nil
}

func (p policyBucket[T]) get(ctx context.Context, pkg string) (*T, error) {
	return getBucketValue[T](ctx, p.db, p.bucket, pkg)
}

func (p policyBucket[T]) put(ctx context.Context, pkg string, item T) error {
	return putBucketValue(ctx, p.db, p.bucket, pkg, item)
}

func (p policyBucket[T]) delete(ctx context.Context, pkg string) error {
	return deleteBucketValue(ctx, p.db, p.bucket, pkg)
}

// setEnabled flips the enabled flag inside a single write transaction.
func (p policyBucket[T]) setEnabled(ctx context.Context, pkg string, enabled bool) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(p.bucket))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", p.bucket)
		}
		value := b.Get([]byte(pkg))
		if value == nil {
			return storage.ErrNotFound
		}
		var item T
		if err := unmarshal(value, &item); err != nil {
			return err
		}
		item = withEnabled(item, enabled)
		data, err := marshal(item)
		if err != nil {
			return err
		}
		return b.Put([]byte(pkg), data)
	})
}

func isEnabled[T policy](item T) bool {
	switch v := any(item).(type) {
	case storage.LimitPolicy:
		return v.Enabled
	case storage.BlockPolicy:
		return v.Enabled
	}
	return false
}

func withEnabled[T policy](item T, enabled bool) T {
	switch v := any(&item).(type) {
	case *storage.LimitPolicy:
		v.Enabled = enabled
	case *storage.BlockPolicy:
		v.Enabled = enabled
	}
	return item
}

type limitStore struct {
	rows policyBucket[storage.LimitPolicy]
}

func (s *limitStore) ListEnabled(ctx context.Context) ([]storage.LimitPolicy, error) {
	return s.rows.list(ctx, true)
}

func (s *limitStore) List(ctx context.Context) ([]storage.LimitPolicy, error) {
	return s.rows.list(ctx, false)
}

func (s *limitStore) Get(ctx context.Context, pkg string) (*storage.LimitPolicy, error) {
	return s.rows.get(ctx, pkg)
}

func (s *limitStore) Upsert(ctx context.Context, limit storage.LimitPolicy) error {
	if err := limit.Validate(); err != nil {
		return err
	}
	return s.rows.put(ctx, limit.Package, limit)
}

func (s *limitStore) Delete(ctx context.Context, pkg string) error {
	return s.rows.delete(ctx, pkg)
}

func (s *limitStore) SetEnabled(ctx context.Context, pkg string, enabled bool) error {
	return s.rows.setEnabled(ctx, pkg, enabled)
}

type blockStore struct {
	rows policyBucket[storage.BlockPolicy]
}

func (s *blockStore) ListEnabled(ctx context.Context) ([]storage.BlockPolicy, error) {
	return s.rows.list(ctx, true)
}

func (s *blockStore) List(ctx context.Context) ([]storage.BlockPolicy, error) {
	return s.rows.list(ctx, false)
}

func (s *blockStore) Get(ctx context.Context, pkg string) (*storage.BlockPolicy, error) {
	return s.rows.get(ctx, pkg)
}

func (s *blockStore) Upsert(ctx context.Context, block storage.BlockPolicy) error {
	if err := block.Validate(); err != nil {
		return err
	}
	return s.rows.put(ctx, block.Package, block)
}

func (s *blockStore) Delete(ctx context.Context, pkg string) error {
	return s.rows.delete(ctx, pkg)
}

func (s *blockStore) SetEnabled(ctx context.Context, pkg string, enabled bool) error {
	return s.rows.setEnabled(ctx, pkg, enabled)
}
