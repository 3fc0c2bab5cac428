package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/screentime/internal/storage"
	"github.com/redis/go-redis/v9"
)

type policy interface {
	storage.LimitPolicy | storage.BlockPolicy
}

// policyHash stores policies as JSON values in one hash keyed by package.
type policyHash[T policy] struct {
	client *redis.Client
	key    string
}

func (p policyHash[T]) list(ctx context.Context, enabledOnly bool) ([]T, error) {
	rows, err := p.client.HGetAll(ctx, p.key).Result()
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(rows))
	for _, raw := range rows {
		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			continue
		}
		if enabledOnly && !isEnabled(item) {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (p policyHash[T]) get(ctx context.Context, pkg string) (*T, error) {
	raw, err := p.client.HGet(ctx, p.key, pkg).Result()
	if errors.Is(err, redis.Nil) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var item T
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrMalformed, err)
	}
	return &item, nil
}

func (p policyHash[T]) put(ctx context.Context, pkg string, item T) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}
	return p.client.HSet(ctx, p.key, pkg, data).Err()
}

func (p policyHash[T]) delete(ctx context.Context, pkg string) error {
	removed, err := p.client.HDel(ctx, p.key, pkg).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// setEnabled rewrites one row under WATCH so concurrent edits are not lost
func (p policyHash[T]) setEnabled(ctx context.Context, pkg string, enabled bool) error {
	return p.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, p.key, pkg).Result()
		if errors.Is(err, redis.Nil) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		var item T
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return fmt.Errorf("%w: %v", storage.ErrMalformed, err)
		}
		data, err := json.Marshal(withEnabled(item, enabled))
		if err != nil {
			return fmt.Errorf("marshal policy: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, p.key, pkg, data)
			return nil
		})
		return err
	}, p.key)
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
	rows policyHash[storage.LimitPolicy]
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
	rows policyHash[storage.BlockPolicy]
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
