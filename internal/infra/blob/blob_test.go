package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

// exerciseStore runs the shared contract checks against a fresh store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	payload := []byte(`{"product_id":"prod-1"}`)
	info, err := store.Put(ctx, "products/prod-1/a.json", bytes.NewReader(payload), PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"product-id": "prod-1"},
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if info.Key != "products/prod-1/a.json" || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("content type not recorded: %+v", info)
	}

	if _, err := store.Put(ctx, "products/prod-1/a.json", bytes.NewReader(payload), PutOptions{}); err == nil {
		t.Fatalf("expected create-only Put to reject existing key")
	}

	got, rc, err := store.Get(ctx, "products/prod-1/a.json")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil || !bytes.Equal(data, payload) {
		t.Fatalf("Get content mismatch: %q err=%v", data, err)
	}
	if got.Metadata["product-id"] != "prod-1" {
		t.Fatalf("metadata not preserved: %+v", got.Metadata)
	}

	head, err := store.Head(ctx, "products/prod-1/a.json")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Size != int64(len(payload)) || head.ETag == "" {
		t.Fatalf("unexpected head info %+v", head)
	}

	if _, err := store.Head(ctx, "products/prod-1/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "products/prod-1/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := store.Put(ctx, "products/prod-2/b.json", strings.NewReader("two"), PutOptions{}); err != nil {
		t.Fatalf("Put second: %v", err)
	}
	infos, err := store.List(ctx, "products/prod-1/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(infos) != 1 || infos[0].Key != "products/prod-1/a.json" {
		t.Fatalf("unexpected listing %+v", infos)
	}
	all, err := store.List(ctx, "products/")
	if err != nil {
		t.Fatalf("List all: %v", err)
	}
	if len(all) != 2 || all[0].Key > all[1].Key {
		t.Fatalf("expected two sorted entries, got %+v", all)
	}

	deleted, err := store.Delete(ctx, "products/prod-1/a.json")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := store.Head(ctx, "products/prod-1/a.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemory()
	if store.Driver() != DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	exerciseStore(t, store)
}

func TestFilesystemStoreContract(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	exerciseStore(t, store)
}

func TestFilesystemSurvivesReopen(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	store, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	if _, err := store.Put(ctx, "a/b.json", strings.NewReader("persisted"), PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reopened, err := NewFilesystem(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	info, rc, err := reopened.Get(ctx, "a/b.json")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "persisted" || info.ContentType != "application/json" {
		t.Fatalf("reopen mismatch: data=%q info=%+v", data, info)
	}
}

func TestFilesystemRejectsBadKeys(t *testing.T) {
	store, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystem: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "/abs/path", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("expected rejection for key %q", key)
		}
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()

	t.Setenv("SUPPLYLEDGER_BLOB_DRIVER", "memory")
	store, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	if store.Driver() != DriverMemory {
		t.Fatalf("expected memory driver, got %s", store.Driver())
	}

	t.Setenv("SUPPLYLEDGER_BLOB_DRIVER", "fs")
	t.Setenv("SUPPLYLEDGER_BLOB_FS_ROOT", t.TempDir())
	store, err = Open(ctx)
	if err != nil {
		t.Fatalf("Open fs: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("expected fs driver, got %s", store.Driver())
	}

	t.Setenv("SUPPLYLEDGER_BLOB_DRIVER", "carrier-pigeon")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected unknown driver error")
	}

	t.Setenv("SUPPLYLEDGER_BLOB_DRIVER", "s3")
	t.Setenv("SUPPLYLEDGER_BLOB_S3_BUCKET", "")
	if _, err := Open(ctx); err == nil {
		t.Fatalf("expected missing bucket error for s3 driver")
	}
}
