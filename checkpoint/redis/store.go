// Package redis implements checkpoint.Store backed by Redis, for runs whose
// progress must survive host loss or be shared across hosts. Each step's
// progress is one msgpack blob under a namespaced key, with a per-workflow
// index Set for enumeration on Clear.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisckpt.New(client)
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/DecentralizedGeo/stac-manager-sub002/checkpoint"
)

var _ checkpoint.Store = (*Store)(nil)

const keyPrefix = "stacman:"

// progressKey returns the blob key: stacman:ckpt:{workflow}:{step}
func progressKey(workflow, stepID string) string {
	return fmt.Sprintf("%sckpt:%s:%s", keyPrefix, workflow, stepID)
}

// indexKey returns the Set tracking a workflow's checkpoint keys.
func indexKey(workflow string) string {
	return keyPrefix + "ckpt_idx:" + workflow
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements checkpoint.Store over a Redis client. The caller owns
// the client lifecycle.
type Store struct {
	client goredis.Cmdable
	logger *slog.Logger
}

// New creates a Redis-backed checkpoint store.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Load fetches and decodes a step's progress. A missing key yields
// (nil, nil). An undecodable blob is deleted and reported as ErrCorrupt so
// the caller resumes from empty state.
func (s *Store) Load(ctx context.Context, workflow, stepID string) (*checkpoint.Progress, error) {
	key := progressKey(workflow, stepID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint/redis: get %s: %w", key, err)
	}

	var p checkpoint.Progress
	if err := msgpack.Unmarshal(data, &p); err != nil {
		s.logger.Warn("dropping undecodable checkpoint blob",
			slog.String("key", key),
			slog.String("error", err.Error()))
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("checkpoint/redis: drop corrupt %s: %w", key, delErr)
		}
		return nil, fmt.Errorf("%w: %s", checkpoint.ErrCorrupt, key)
	}
	return &p, nil
}

// Save encodes and stores a step's progress, indexing the key for Clear.
func (s *Store) Save(ctx context.Context, p *checkpoint.Progress) error {
	data, err := msgpack.Marshal(p)
	if err != nil {
		return fmt.Errorf("checkpoint/redis: encode progress: %w", err)
	}

	key := progressKey(p.Workflow, p.StepID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, 0)
	pipe.SAdd(ctx, indexKey(p.Workflow), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: save %s: %w", key, err)
	}
	return nil
}

// Clear removes every checkpoint key indexed for the workflow.
func (s *Store) Clear(ctx context.Context, workflow string) error {
	idx := indexKey(workflow)
	keys, err := s.client.SMembers(ctx, idx).Result()
	if err != nil {
		return fmt.Errorf("checkpoint/redis: read index %s: %w", idx, err)
	}

	pipe := s.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("checkpoint/redis: clear %s: %w", workflow, err)
	}
	return nil
}

// Close is a no-op. The caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
