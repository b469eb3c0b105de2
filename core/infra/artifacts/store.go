package artifacts

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// RetentionClass controls artifact TTL semantics.
type RetentionClass string

const (
	RetentionShort    RetentionClass = "short"
	RetentionStandard RetentionClass = "standard"
	RetentionAudit    RetentionClass = "audit"
)

const pointerPrefix = "artifact://"

// ErrNotFound is returned when a pointer does not resolve to stored content.
var ErrNotFound = errors.New("artifact not found")

// Metadata describes stored artifacts.
type Metadata struct {
	Name        string            `json:"name,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	SizeBytes   int64             `json:"size_bytes,omitempty"`
	Retention   RetentionClass    `json:"retention,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Store provides artifact pointer storage for rendered exports.
type Store interface {
	Put(ctx context.Context, content []byte, meta Metadata) (string, error)
	Get(ctx context.Context, ptr string) ([]byte, Metadata, error)
}

// PointerFor returns the pointer for an artifact id.
func PointerFor(id string) string {
	return pointerPrefix + id
}

// IDFromPointer extracts the artifact id from a pointer.
func IDFromPointer(ptr string) (string, error) {
	ptr = strings.TrimSpace(ptr)
	if !strings.HasPrefix(ptr, pointerPrefix) {
		return "", fmt.Errorf("invalid artifact pointer %q", ptr)
	}
	id := strings.TrimPrefix(ptr, pointerPrefix)
	if id == "" {
		return "", fmt.Errorf("invalid artifact pointer %q", ptr)
	}
	return id, nil
}
