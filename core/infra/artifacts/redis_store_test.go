package artifacts

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStorePutGet(t *testing.T) {
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("miniredis unavailable: %v", err)
	}
	defer srv.Close()
	store, err := NewRedisStore("redis://"+srv.Addr(), 0)
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	content := []byte("hello")
	ptr, err := store.Put(ctx, content, Metadata{Name: "t.txt", ContentType: "text/plain", Retention: RetentionShort})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := IDFromPointer(ptr); err != nil {
		t.Fatalf("expected artifact pointer, got %q", ptr)
	}

	got, meta, err := store.Get(ctx, ptr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != string(content) {
		t.Fatalf("unexpected content: %s", got)
	}
	if meta.ContentType != "text/plain" || meta.Name != "t.txt" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if meta.SizeBytes != int64(len(content)) {
		t.Fatalf("unexpected size: %d", meta.SizeBytes)
	}
	id, _ := IDFromPointer(ptr)
	if ttl := srv.TTL(artifactKey(id)); ttl != defaultShortTTL {
		t.Fatalf("expected short ttl, got %s", ttl)
	}
}

func TestRedisStoreRetentionOverride(t *testing.T) {
	srv := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+srv.Addr(), 2*time.Hour)
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	defer store.Close()
	ptr, err := store.Put(context.Background(), []byte("x"), Metadata{})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	id, _ := IDFromPointer(ptr)
	if ttl := srv.TTL(artifactKey(id)); ttl != 2*time.Hour {
		t.Fatalf("expected standard ttl override, got %s", ttl)
	}
	srv.FastForward(3 * time.Hour)
	if _, _, err := store.Get(context.Background(), ptr); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after expiry, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	content := []byte("body")
	ptr, err := store.Put(ctx, content, Metadata{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	content[0] = 'X'
	got, meta, err := store.Get(ctx, ptr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "body" {
		t.Fatalf("expected stored copy, got %s", got)
	}
	if meta.Retention != RetentionStandard || meta.SizeBytes != 4 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if _, _, err := store.Get(ctx, PointerFor("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := store.Get(ctx, "redis://nope"); err == nil {
		t.Fatalf("expected invalid pointer error")
	}
}
