package artifacts

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps artifacts in process; used by tests and single-node runs.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
}

type memoryItem struct {
	content []byte
	meta    Metadata
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryItem)}
}

func (s *MemoryStore) Put(_ context.Context, content []byte, meta Metadata) (string, error) {
	id := uuid.NewString()
	meta.SizeBytes = int64(len(content))
	if meta.Retention == "" {
		meta.Retention = RetentionStandard
	}
	buf := append([]byte(nil), content...)
	s.mu.Lock()
	s.items[id] = memoryItem{content: buf, meta: meta}
	s.mu.Unlock()
	return PointerFor(id), nil
}

func (s *MemoryStore) Get(_ context.Context, ptr string) ([]byte, Metadata, error) {
	id, err := IDFromPointer(ptr)
	if err != nil {
		return nil, Metadata{}, err
	}
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	return append([]byte(nil), item.content...), item.meta, nil
}
