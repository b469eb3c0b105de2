// Package deadletter keeps trigger requests that could not be run so an
// operator can inspect and replay them.
package deadletter

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	defaultListLimit = 100
	maxEntries       = 1000
)

// ErrNotFound is returned for unknown entry ids.
var ErrNotFound = errors.New("dead letter not found")

// Entry captures a failed trigger request for diagnostics.
type Entry struct {
	ID          string         `json:"id"`
	TriggerType string         `json:"trigger_type"`
	WorkflowID  string         `json:"workflow_id,omitempty"`
	OwnerID     string         `json:"owner_id,omitempty"`
	Reason      string         `json:"reason"`
	Data        map[string]any `json:"data,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Store persists dead letters newest first.
type Store interface {
	Add(ctx context.Context, entry Entry) error
	List(ctx context.Context, limit int64) ([]Entry, error)
	Get(ctx context.Context, id string) (*Entry, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store bounded to the most recent entries.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Add(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		return errors.New("entry id required")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	if len(s.entries) > maxEntries {
		for _, e := range s.sortedLocked()[maxEntries:] {
			delete(s.entries, e.ID)
		}
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, limit int64) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sortedLocked()
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
	return nil
}

// sortedLocked returns entries newest first.
func (s *MemoryStore) sortedLocked() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
