// Package store implements the key/value state store adapter over Redis.
// Values are JSON strings; single-key operations are atomic in the backing
// store, so callers never observe partial writes. The adapter is safe for
// concurrent use from multiple goroutines.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/liftplane/liftplane/core"
)

// Store provides get/set/exists/delete over the shared Redis connection
type Store struct {
	rdb    *redis.Client
	logger core.Logger
}

// New creates a store adapter on an existing Redis connection.
// The connection is owned by the caller; Close only releases it when the
// store was the last user by convention of the supervisor.
func New(rdb *redis.Client, logger core.Logger) *Store {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Store{rdb: rdb, logger: logger}
}

// Get retrieves the raw value for key. Absent keys yield core.ErrKeyNotFound.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("key %s: %w", key, core.ErrKeyNotFound)
		}
		return "", fmt.Errorf("get %s: %v: %w", key, err, core.ErrStoreFailure)
	}
	return val, nil
}

// Set stores a raw value under key
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.rdb.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %v: %w", key, err, core.ErrStoreFailure)
	}
	return nil
}

// GetJSON retrieves the value for key and unmarshals it into dest
func (s *Store) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("decode %s: %v: %w", key, err, core.ErrParse)
	}
	return nil
}

// SetJSON marshals v and stores it under key
func (s *Store) SetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %v: %w", key, err, core.ErrBadArgument)
	}
	return s.Set(ctx, key, string(data))
}

// Exists reports whether key is present
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %v: %w", key, err, core.ErrStoreFailure)
	}
	return n > 0, nil
}

// Delete removes key; deleting an absent key is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete %s: %v: %w", key, err, core.ErrStoreFailure)
	}
	return nil
}

// Ping verifies connectivity for health checks
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping: %v: %w", err, core.ErrStoreFailure)
	}
	return nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.rdb.Close()
}
