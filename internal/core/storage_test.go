package core

import (
	"context"
	"path/filepath"
	"testing"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("SUPPLYLEDGER_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected *memory.Store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv("SUPPLYLEDGER_STORAGE_DRIVER", "sqlite")
	t.Setenv("SUPPLYLEDGER_SQLITE_PATH", path)
	store, err := OpenPersistentStore(nil)
	if err != nil {
		t.Fatalf("OpenPersistentStore: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected *sqlite.Store, got %T", store)
	}
	defer sq.Close()
	if sq.Path() != path {
		t.Fatalf("path = %q, want %q", sq.Path(), path)
	}

	// The env-selected store behaves like any other backend.
	svc := NewService(store, nil)
	if _, err := svc.Initialize(context.Background(), adminAddr, 7, "T", "T"); err != nil {
		t.Fatalf("Initialize on env-selected store: %v", err)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("SUPPLYLEDGER_STORAGE_DRIVER", "scrolls")
	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
