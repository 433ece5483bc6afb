package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"

	"supplyledger/pkg/domain"
)

func TestStorePersistAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		tx.SetAdmin("admin")
		tx.SetAdminPubkey("ed25519:beef")
		tx.SetRole("mfr", domain.RoleManufacturer)
		tx.Credit("mfr", uint256.NewInt(250))
		tx.SetKey("region", "eu-1")
		if _, err := tx.CreateProduct("P1", "SN1", "mfr", "Factory"); err != nil {
			return err
		}
		_, err := tx.AppendStep("P1", uint32(domain.StepShipping), "Port", "mfr", nil, nil)
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close() }()

	if admin, ok := reloaded.Admin(); !ok || admin != "admin" {
		t.Fatalf("admin not persisted")
	}
	if reloaded.RoleOf("mfr") != domain.RoleManufacturer {
		t.Fatalf("role not persisted")
	}
	if reloaded.BalanceOf("mfr").Uint64() != 250 {
		t.Fatalf("balance not persisted, got %s", reloaded.BalanceOf("mfr").Dec())
	}
	product, ok := reloaded.FindProduct("P1")
	if !ok {
		t.Fatalf("product not persisted")
	}
	if product.CurrentStatus != uint32(domain.StepShipping) || product.CurrentLocation != "Port" {
		t.Fatalf("snapshot fields not persisted: %+v", product)
	}
	history, ok := reloaded.ProductHistory("P1")
	if !ok || len(history) != 2 {
		t.Fatalf("history not persisted, got %d steps", len(history))
	}
	if history[0].StepID != 0 || history[1].StepID != 1 {
		t.Fatalf("step ordering lost across reload")
	}
	if err := reloaded.View(ctx, func(view domain.TransactionView) error {
		if view.Key("region") != "eu-1" {
			t.Fatalf("keymap not persisted")
		}
		if view.AdminPubkey() != "ed25519:beef" {
			t.Fatalf("admin pubkey not persisted")
		}
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
}

func TestStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		tx.Credit("alice", uint256.NewInt(3))
		return nil
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		return tx.Debit("alice", uint256.NewInt(10))
	}); err == nil {
		t.Fatalf("expected insufficient balance")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	defer func() { _ = reloaded.Close() }()
	if reloaded.BalanceOf("alice").Uint64() != 3 {
		t.Fatalf("failed transaction leaked to disk")
	}
}

func TestStoreRejectsCorruptPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES('balances', 'not-json') ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`); err != nil {
		t.Fatalf("corrupt payload: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected load failure for corrupt bucket")
	}
}
