package locks

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultTTL = 30 * time.Second

// Store manages exclusive, owner-tagged resource locks with a TTL.
type Store interface {
	Acquire(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, resource, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, resource, owner string) (bool, error)
}

// LocalStore is an in-process Store used when no Redis is configured.
type LocalStore struct {
	mu    sync.Mutex
	held  map[string]localLock
	clock func() time.Time
}

type localLock struct {
	owner     string
	expiresAt time.Time
}

// NewLocalStore returns an empty in-process lock store.
func NewLocalStore() *LocalStore {
	return &LocalStore{held: make(map[string]localLock), clock: time.Now}
}

func (s *LocalStore) Acquire(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if cur, ok := s.held[resource]; ok && cur.expiresAt.After(now) && cur.owner != owner {
		return false, nil
	}
	s.held[resource] = localLock{owner: owner, expiresAt: now.Add(normalizeTTL(ttl))}
	return true, nil
}

func (s *LocalStore) Renew(_ context.Context, resource, owner string, ttl time.Duration) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	cur, ok := s.held[resource]
	if !ok || cur.owner != owner || !cur.expiresAt.After(now) {
		return false, nil
	}
	cur.expiresAt = now.Add(normalizeTTL(ttl))
	s.held[resource] = cur
	return true, nil
}

func (s *LocalStore) Release(_ context.Context, resource, owner string) (bool, error) {
	resource, owner, err := normalize(resource, owner)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.held[resource]
	if !ok || cur.owner != owner {
		return false, nil
	}
	delete(s.held, resource)
	return true, nil
}

func normalize(resource, owner string) (string, string, error) {
	resource = strings.TrimSpace(resource)
	owner = strings.TrimSpace(owner)
	if resource == "" || owner == "" {
		return "", "", errResourceOwner
	}
	return resource, owner, nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultTTL
	}
	return ttl
}
