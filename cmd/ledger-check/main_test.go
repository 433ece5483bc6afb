package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"supplyledger/internal/core"
	"supplyledger/internal/infra/persistence/sqlite"
	"supplyledger/pkg/domain"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := sqlite.NewStore(path, core.DefaultRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer store.Close()
	_, err = store.RunInTransaction(context.Background(), func(tx sqlite.Transaction) error {
		tx.SetAdmin("admin-1")
		if _, err := tx.CreateProduct("prod-1", "SN-100", "maker-1", "plant-a"); err != nil {
			return err
		}
		_, err := tx.AppendStep("prod-1", uint32(domain.StepProduction), "plant-a", "maker-1", nil, nil)
		return err
	})
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return path
}

func TestCLIConsistentDatabase(t *testing.T) {
	path := seedDatabase(t)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "ledger is consistent") {
		t.Fatalf("unexpected stdout: %s", stdout.String())
	}
	if !strings.Contains(stdout.String(), "checked 1 products") {
		t.Fatalf("expected product count in output: %s", stdout.String())
	}
}

func TestCLIReportsViolations(t *testing.T) {
	path := seedDatabase(t)
	store, err := sqlite.NewStore(path, core.DefaultRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	// Corrupt the persisted history out from under the rules engine: a
	// product whose steps bucket is emptied can no longer justify its
	// status.
	if _, err := store.DB().Exec(`UPDATE state SET payload = ? WHERE bucket = 'steps'`, []byte(`{}`)); err != nil {
		t.Fatalf("corrupt steps bucket: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1, got %d (stdout: %s)", code, stdout.String())
	}
	if !strings.Contains(stderr.String(), "violation(s) found") {
		t.Fatalf("expected violation summary on stderr: %s", stderr.String())
	}
	if !strings.Contains(stdout.String(), "history_consistency") {
		t.Fatalf("expected rule name in output: %s", stdout.String())
	}
}

func TestCLIJSONReport(t *testing.T) {
	path := seedDatabase(t)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", path, "-json"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr.String())
	}
	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if rep.Products != 1 {
		t.Fatalf("expected 1 product, got %d", rep.Products)
	}
	if len(rep.Violations) != 0 {
		t.Fatalf("expected clean report, got %+v", rep.Violations)
	}
}

func TestCLIMissingDatabase(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-db", filepath.Join(t.TempDir(), "absent.db")}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("expected exit 1 for missing database, got %d", code)
	}
	if !strings.Contains(stderr.String(), "ledger check failed") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-nope"}, &stdout, &stderr); code != 2 {
		t.Fatalf("expected exit 2 for bad flag, got %d", code)
	}
}
