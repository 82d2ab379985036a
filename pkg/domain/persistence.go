package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateInspection(InspectionRecord) (InspectionRecord, error)
	UpdateInspection(id string, mutator func(*InspectionRecord) error) (InspectionRecord, error)
	DeleteInspection(id string) error
	FindInspection(id string) (InspectionRecord, bool)
	FindInspectionByKey(key string) (InspectionRecord, bool)
	UpsertCompletionStatus(CompletionStatus) (CompletionStatus, error)
	DeleteCompletionStatus(key string) error
	FindCompletionStatus(key string) (CompletionStatus, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// query paths.
type TransactionView interface {
	ListInspections() []InspectionRecord
	FindInspection(id string) (InspectionRecord, bool)
	FindInspectionByKey(key string) (InspectionRecord, bool)
	ListCompletionStatuses() []CompletionStatus
	FindCompletionStatus(key string) (CompletionStatus, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	ListInspections() []InspectionRecord
	ListCompletionStatuses() []CompletionStatus
}
