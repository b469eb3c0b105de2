package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cordum/mediaflow/core/infra/redisutil"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultShortTTL    = 24 * time.Hour
	defaultStandardTTL = 7 * 24 * time.Hour
	defaultAuditTTL    = 30 * 24 * time.Hour
)

var errStoreUnavailable = errors.New("artifact store unavailable")

// RedisStore implements artifact storage using Redis.
type RedisStore struct {
	client      redis.UniversalClient
	ttlShort    time.Duration
	ttlStandard time.Duration
	ttlAudit    time.Duration
}

// NewRedisStore constructs an artifact store backed by Redis. standardTTL
// overrides the standard retention window when positive.
func NewRedisStore(url string, standardTTL time.Duration) (*RedisStore, error) {
	client, err := redisutil.Connect(context.Background(), url)
	if err != nil {
		return nil, err
	}
	if standardTTL <= 0 {
		standardTTL = defaultStandardTTL
	}
	return &RedisStore{
		client:      client,
		ttlShort:    defaultShortTTL,
		ttlStandard: standardTTL,
		ttlAudit:    defaultAuditTTL,
	}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Put stores content and metadata, returning an artifact pointer.
func (s *RedisStore) Put(ctx context.Context, content []byte, meta Metadata) (string, error) {
	if s == nil || s.client == nil {
		return "", errStoreUnavailable
	}
	id := uuid.NewString()
	meta.SizeBytes = int64(len(content))
	if meta.Retention == "" {
		meta.Retention = RetentionStandard
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	ttl := s.ttlFor(meta.Retention)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, artifactKey(id), content, ttl)
	pipe.Set(ctx, artifactMetaKey(id), payload, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}
	return PointerFor(id), nil
}

// Get returns artifact content and metadata for a pointer.
func (s *RedisStore) Get(ctx context.Context, ptr string) ([]byte, Metadata, error) {
	if s == nil || s.client == nil {
		return nil, Metadata{}, errStoreUnavailable
	}
	id, err := IDFromPointer(ptr)
	if err != nil {
		return nil, Metadata{}, err
	}
	pipe := s.client.Pipeline()
	contentCmd := pipe.Get(ctx, artifactKey(id))
	metaCmd := pipe.Get(ctx, artifactMetaKey(id))
	_, _ = pipe.Exec(ctx)

	content, err := contentCmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, Metadata{}, ErrNotFound
		}
		return nil, Metadata{}, err
	}
	var meta Metadata
	if data, err := metaCmd.Bytes(); err == nil {
		_ = json.Unmarshal(data, &meta)
	}
	return content, meta, nil
}

func (s *RedisStore) ttlFor(retention RetentionClass) time.Duration {
	switch retention {
	case RetentionShort:
		return s.ttlShort
	case RetentionAudit:
		return s.ttlAudit
	default:
		return s.ttlStandard
	}
}

func artifactKey(id string) string {
	return "mf:art:" + id
}

func artifactMetaKey(id string) string {
	return "mf:art:meta:" + id
}
