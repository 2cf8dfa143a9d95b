package kv

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "settings.db"), slog.Default())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SetGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok || val != "v1" {
		t.Fatalf("Get = (%q, %v)", val, ok)
	}

	// Overwrite
	if err := store.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, _, _ = store.Get(ctx, "k")
	if val != "v2" {
		t.Fatalf("after overwrite, Get = %q", val)
	}
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)
	val, ok, err := store.Get(context.Background(), "absent")
	if err != nil {
		t.Fatalf("missing key must not be an error: %v", err)
	}
	if ok || val != "" {
		t.Fatalf("Get = (%q, %v), want ('', false)", val, ok)
	}
}

func TestSQLiteStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "k", "v")
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatal("key must be gone after Delete")
	}

	// Deleting an absent key is a no-op.
	if err := store.Delete(ctx, "absent"); err != nil {
		t.Fatalf("Delete absent: %v", err)
	}
}
