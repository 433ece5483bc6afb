package core

import (
	"fmt"
	"os"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/internal/infra/persistence/postgres"
	"supplyledger/internal/infra/persistence/sqlite"
	"supplyledger/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

func memoryStore(engine *RulesEngine) PersistentStore {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	return memory.NewStore(engine)
}

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset. A nil engine gets the built-in rules.
//
//	SUPPLYLEDGER_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SUPPLYLEDGER_SQLITE_PATH: path to sqlite file (default ./supplyledger.db)
//	SUPPLYLEDGER_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	if engine == nil {
		engine = DefaultRulesEngine()
	}
	driver := os.Getenv("SUPPLYLEDGER_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("SUPPLYLEDGER_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("SUPPLYLEDGER_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
