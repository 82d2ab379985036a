package domain

import "fmt"

// ValidationError reports a missing or malformed required input. It is the
// caller's fault and is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NotFoundError reports a lookup miss for a stored record or collaborator
// datum.
type NotFoundError struct {
	Entity EntityType
	Key    string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ConflictError reports a storage-level uniqueness collision during a
// concurrent create. The merge engine catches it internally and retries as an
// upsert; it is never surfaced to callers.
type ConflictError struct {
	Key string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflicting write for key %s", e.Key)
}

// StorageUnavailableError wraps a storage failure surfaced to the caller. No
// partial write is left behind; all store writes are single atomic
// operations.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable during %s: %v", e.Op, e.Err)
}

func (e StorageUnavailableError) Unwrap() error { return e.Err }

// RuleViolationError is returned when a transaction is blocked by rule
// evaluation.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	if len(e.Result.Violations) == 0 {
		return "transaction blocked by rules"
	}
	first := e.Result.Violations[0]
	return fmt.Sprintf("transaction blocked by rule %s: %s", first.Rule, first.Message)
}
