package core

import (
	"fmt"
	"os"

	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/internal/infra/persistence/postgres"
	"stitchcore/internal/infra/persistence/sqlite"
	"stitchcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	// Transaction aliases the domain transaction contract.
	Transaction = domain.Transaction
	// TransactionView aliases the domain read-only view contract.
	TransactionView = domain.TransactionView
	// PersistentStore aliases the domain persistence contract.
	PersistentStore = domain.PersistentStore
	// Result aliases rule evaluation output.
	Result = domain.Result
	// RulesEngine aliases the domain rules engine.
	RulesEngine = domain.RulesEngine
	// EntityType aliases the domain entity discriminator.
	EntityType = domain.EntityType
	// Action aliases the domain change action.
	Action = domain.Action
	// InspectionRecord aliases the dated inspection aggregate.
	InspectionRecord = domain.InspectionRecord
	// CompletionStatus aliases the completion overlay marker.
	CompletionStatus = domain.CompletionStatus
)

// NewRulesEngine returns an empty rules engine.
func NewRulesEngine() *RulesEngine { return domain.NewRulesEngine() }

func newMemoryStore(engine *RulesEngine) PersistentStore { return memory.NewStore(engine) }

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	STITCHCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	STITCHCORE_SQLITE_PATH: path to sqlite file (default ./stitchcore.db)
//	STITCHCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("STITCHCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("STITCHCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("STITCHCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
