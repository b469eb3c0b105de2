package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/mediaflow/core/infra/redisutil"
	"github.com/redis/go-redis/v9"
)

const listPageSize = 500

// RedisStore persists workflow instances as JSON documents with a time
// ordered index per owner.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis at url.
func NewRedisStore(url string) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, wf *Workflow) error {
	if wf == nil || wf.ID == "" {
		return fmt.Errorf("workflow id required")
	}
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("marshal workflow: %w", err)
	}
	score := float64(wf.CreatedAt.UnixNano())

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, workflowKey(wf.ID), payload, 0)
	pipe.ZAdd(ctx, workflowIndexKey(), redis.Z{Score: score, Member: wf.ID})
	if wf.OwnerID != "" {
		pipe.ZAdd(ctx, workflowOwnerIndexKey(wf.OwnerID), redis.Z{Score: score, Member: wf.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Workflow, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.client.Get(ctx, workflowKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var wf Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unmarshal workflow: %w", err)
	}
	return &wf, nil
}

func (s *RedisStore) List(ctx context.Context, ownerID string) ([]*Workflow, error) {
	index := workflowIndexKey()
	if ownerID != "" {
		index = workflowOwnerIndexKey(ownerID)
	}
	out := []*Workflow{}
	seen := map[string]struct{}{}
	for start := int64(0); ; start += listPageSize {
		ids, err := s.client.ZRevRange(ctx, index, start, start+listPageSize-1).Result()
		if err != nil {
			return nil, err
		}
		page, err := s.load(ctx, ids, seen)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(ids) < listPageSize {
			return out, nil
		}
	}
}

// load fetches ids in one pipeline, skipping ids already in seen and entries
// that vanished or no longer decode.
func (s *RedisStore) load(ctx context.Context, ids []string, seen map[string]struct{}) ([]*Workflow, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		cmds = append(cmds, pipe.Get(ctx, workflowKey(id)))
	}
	if len(cmds) == 0 {
		return nil, nil
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	out := make([]*Workflow, 0, len(cmds))
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var wf Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			continue
		}
		out = append(out, &wf)
	}
	return out, nil
}

func workflowKey(id string) string {
	return "mf:wf:" + id
}

func workflowIndexKey() string {
	return "mf:wf-index"
}

func workflowOwnerIndexKey(ownerID string) string {
	return "mf:wf-owner:" + ownerID
}
