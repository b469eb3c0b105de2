package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/mediaflow/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists dead letters in Redis with a sorted index.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Add appends an entry and trims the index to the most recent entries.
func (s *RedisStore) Add(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		return fmt.Errorf("entry id required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, entryKey(entry.ID), data, 0)
	pipe.ZAdd(ctx, indexKey, redis.Z{Score: float64(entry.CreatedAt.UnixMilli()), Member: entry.ID})
	pipe.ZRemRangeByRank(ctx, indexKey, 0, -(maxEntries + 1))
	_, err = pipe.Exec(ctx)
	return err
}

// List returns recent entries, newest first. Entries whose payload expired
// or was trimmed are skipped.
func (s *RedisStore) List(ctx context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	ids, err := s.client.ZRevRange(ctx, indexKey, 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []Entry{}, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Get(ctx, entryKey(id))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]Entry, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Entry, error) {
	if id == "" {
		return nil, fmt.Errorf("entry id required")
	}
	data, err := s.client.Get(ctx, entryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("entry id required")
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, entryKey(id))
	pipe.ZRem(ctx, indexKey, id)
	_, err := pipe.Exec(ctx)
	return err
}

const indexKey = "mf:dlq:index"

func entryKey(id string) string {
	return "mf:dlq:entry:" + id
}
