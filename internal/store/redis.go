package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"blitzai/internal/job"
)

const defaultRedisKey = "blitz:jobs"

// RedisStore keeps the record set under a single Redis key, serialized the
// same way the file store serializes to disk. Useful when several CLI
// invocations on different hosts need to observe the same jobs.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps an existing Redis client. An empty key selects the
// default.
func NewRedisStore(client *redis.Client, key string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("store: redis client is required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		key = defaultRedisKey
	}
	return &RedisStore{client: client, key: key}, nil
}

// NewRedisStoreFromURL dials Redis using a redis:// URL.
func NewRedisStoreFromURL(url, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opts), key)
}

// Load reads the persisted set. A missing key or an unparseable value yields
// an empty set.
func (s *RedisStore) Load(ctx context.Context) ([]job.Record, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: redis get: %w", err)
	}
	var records []job.Record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, nil
	}
	return records, nil
}

// Save overwrites the persisted set wholesale. Records have no expiry; they
// live until explicitly deleted.
func (s *RedisStore) Save(ctx context.Context, records []job.Record) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("store: encode records: %w", err)
	}
	if err := s.client.Set(ctx, s.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("store: redis set: %w", err)
	}
	return nil
}

// Delete removes one record by id via read-modify-write of the full set.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	records, err := s.Load(ctx)
	if err != nil {
		return err
	}
	remaining, found := removeByID(records, id)
	if !found {
		return ErrNotFound
	}
	return s.Save(ctx, remaining)
}

var _ Store = (*RedisStore)(nil)
