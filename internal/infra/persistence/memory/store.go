// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"stitchcore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// InspectionRecord aliases domain.InspectionRecord for in-memory persistence operations.
	InspectionRecord = domain.InspectionRecord
	// CompletionStatus aliases domain.CompletionStatus.
	CompletionStatus = domain.CompletionStatus
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
	// PersistentStore aliases domain.PersistentStore abstraction.
	PersistentStore = domain.PersistentStore
)

type memoryState struct {
	inspections map[string]InspectionRecord
	statuses    map[string]CompletionStatus
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Inspections map[string]InspectionRecord `json:"inspections"`
	Statuses    map[string]CompletionStatus `json:"statuses"`
}

func newMemoryState() memoryState {
	return memoryState{
		inspections: make(map[string]InspectionRecord),
		statuses:    make(map[string]CompletionStatus),
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.inspections {
		cloned.inspections[k] = cloneInspection(v)
	}
	for k, v := range s.statuses {
		cloned.statuses[k] = cloneStatus(v)
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	snap := Snapshot{
		Inspections: make(map[string]InspectionRecord, len(state.inspections)),
		Statuses:    make(map[string]CompletionStatus, len(state.statuses)),
	}
	for k, v := range state.inspections {
		snap.Inspections[k] = cloneInspection(v)
	}
	for k, v := range state.statuses {
		snap.Statuses[k] = cloneStatus(v)
	}
	return snap
}

func memoryStateFromSnapshot(snap Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range snap.Inspections {
		state.inspections[k] = cloneInspection(v)
	}
	for k, v := range snap.Statuses {
		state.statuses[k] = cloneStatus(v)
	}
	return state
}

// migrateSnapshot repairs snapshots produced by earlier writers: missing
// buckets, unnormalized color sets, size keys that drifted from their block,
// and stale overall summaries.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Inspections == nil {
		snapshot.Inspections = map[string]InspectionRecord{}
	}
	if snapshot.Statuses == nil {
		snapshot.Statuses = map[string]CompletionStatus{}
	}

	for id, record := range snapshot.Inspections {
		record.Colors = domain.NormalizeColors(record.Colors)
		blocks := make(map[string]domain.SizeBlock, len(record.SizeBlocks))
		for _, block := range record.SizeBlocks {
			if block.Size == "" {
				continue
			}
			blocks[block.Size] = block
		}
		record.SizeBlocks = blocks
		domain.RecomputeOverall(&record)
		snapshot.Inspections[id] = record
	}

	for key, status := range snapshot.Statuses {
		status.Colors = domain.NormalizeColors(status.Colors)
		status.MarkedComplete = true
		snapshot.Statuses[key] = status
	}
	return snapshot
}

func cloneInspection(r InspectionRecord) InspectionRecord {
	cp := r
	cp.Colors = append([]string(nil), r.Colors...)
	cp.SizeBlocks = make(map[string]domain.SizeBlock, len(r.SizeBlocks))
	for size, block := range r.SizeBlocks {
		cp.SizeBlocks[size] = cloneSizeBlock(block)
	}
	return cp
}

func cloneSizeBlock(b domain.SizeBlock) domain.SizeBlock {
	cp := b
	cp.Garments = make([]domain.GarmentMeasurement, len(b.Garments))
	for i, garment := range b.Garments {
		gc := garment
		gc.Readings = append([]domain.MeasurementReading(nil), garment.Readings...)
		cp.Garments[i] = gc
	}
	return cp
}

func cloneStatus(s CompletionStatus) CompletionStatus {
	cp := s
	cp.Colors = append([]string(nil), s.Colors...)
	return cp
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The mutated state and every derived summary inside it become visible
// in a single swap; readers never observe a half-applied merge.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// ListInspections returns all inspection records.
func (s *Store) ListInspections() []InspectionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInspections(&s.state)
}

// ListCompletionStatuses returns all overlay markers.
func (s *Store) ListCompletionStatuses() []CompletionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listStatuses(&s.state)
}

func listInspections(state *memoryState) []InspectionRecord {
	out := make([]InspectionRecord, 0, len(state.inspections))
	for _, record := range state.inspections {
		out = append(out, cloneInspection(record))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func listStatuses(state *memoryState) []CompletionStatus {
	out := make([]CompletionStatus, 0, len(state.statuses))
	for _, status := range state.statuses {
		out = append(out, cloneStatus(status))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func findInspectionByKey(state *memoryState, key string) (InspectionRecord, bool) {
	for _, record := range state.inspections {
		if record.Key() == key {
			return cloneInspection(record), true
		}
	}
	return InspectionRecord{}, false
}

// transaction represents a mutation set applied to the store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

// transactionView exposes a read-only snapshot of the transactional state.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListInspections returns all inspection records within the snapshot.
func (v transactionView) ListInspections() []InspectionRecord {
	return listInspections(v.state)
}

// FindInspection retrieves an inspection record by ID from the snapshot.
func (v transactionView) FindInspection(id string) (InspectionRecord, bool) {
	record, ok := v.state.inspections[id]
	if !ok {
		return InspectionRecord{}, false
	}
	return cloneInspection(record), true
}

// FindInspectionByKey retrieves a record by its business key from the snapshot.
func (v transactionView) FindInspectionByKey(key string) (InspectionRecord, bool) {
	return findInspectionByKey(v.state, key)
}

// ListCompletionStatuses returns all overlay markers in the snapshot.
func (v transactionView) ListCompletionStatuses() []CompletionStatus {
	return listStatuses(v.state)
}

// FindCompletionStatus retrieves an overlay marker by composite key.
func (v transactionView) FindCompletionStatus(key string) (CompletionStatus, bool) {
	status, ok := v.state.statuses[key]
	if !ok {
		return CompletionStatus{}, false
	}
	return cloneStatus(status), true
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateInspection persists a new inspection record. The business key
// (date, inspector, style, colorSet) must be free; a concurrent create for
// the same key surfaces as ConflictError for the caller to retry as a merge.
func (tx *transaction) CreateInspection(record InspectionRecord) (InspectionRecord, error) {
	record.Colors = domain.NormalizeColors(record.Colors)
	if _, exists := findInspectionByKey(&tx.state, record.Key()); exists {
		return InspectionRecord{}, domain.ConflictError{Key: record.Key()}
	}
	record.ID = tx.store.newID()
	record.CreatedAt = tx.now
	record.UpdatedAt = tx.now
	stored := cloneInspection(record)
	tx.state.inspections[record.ID] = stored
	tx.recordChange(Change{Entity: domain.EntityInspection, Action: domain.ActionCreate, After: cloneInspection(stored)})
	return cloneInspection(stored), nil
}

// UpdateInspection mutates an inspection record using the provided mutator.
func (tx *transaction) UpdateInspection(id string, mutator func(*InspectionRecord) error) (InspectionRecord, error) {
	current, ok := tx.state.inspections[id]
	if !ok {
		return InspectionRecord{}, domain.NotFoundError{Entity: domain.EntityInspection, Key: id}
	}
	before := cloneInspection(current)
	updated := cloneInspection(current)
	if err := mutator(&updated); err != nil {
		return InspectionRecord{}, err
	}
	updated.ID = current.ID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = tx.now
	updated.Colors = domain.NormalizeColors(updated.Colors)
	if updated.Key() != before.Key() {
		if _, exists := findInspectionByKey(&tx.state, updated.Key()); exists {
			return InspectionRecord{}, domain.ConflictError{Key: updated.Key()}
		}
	}
	tx.state.inspections[id] = cloneInspection(updated)
	tx.recordChange(Change{Entity: domain.EntityInspection, Action: domain.ActionUpdate, Before: before, After: cloneInspection(updated)})
	return cloneInspection(updated), nil
}

// DeleteInspection removes an inspection record.
func (tx *transaction) DeleteInspection(id string) error {
	current, ok := tx.state.inspections[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityInspection, Key: id}
	}
	delete(tx.state.inspections, id)
	tx.recordChange(Change{Entity: domain.EntityInspection, Action: domain.ActionDelete, Before: cloneInspection(current)})
	return nil
}

// FindInspection exposes record lookup within the transaction scope.
func (tx *transaction) FindInspection(id string) (InspectionRecord, bool) {
	record, ok := tx.state.inspections[id]
	if !ok {
		return InspectionRecord{}, false
	}
	return cloneInspection(record), true
}

// FindInspectionByKey exposes business-key lookup within the transaction scope.
func (tx *transaction) FindInspectionByKey(key string) (InspectionRecord, bool) {
	return findInspectionByKey(&tx.state, key)
}

// UpsertCompletionStatus creates or refreshes an overlay marker. Repeating
// the same call has no additional effect beyond the updated timestamp.
func (tx *transaction) UpsertCompletionStatus(status CompletionStatus) (CompletionStatus, error) {
	status.Colors = domain.NormalizeColors(status.Colors)
	status.MarkedComplete = true
	key := status.Key()
	if existing, ok := tx.state.statuses[key]; ok {
		status.ID = existing.ID
		status.CreatedAt = existing.CreatedAt
		status.UpdatedAt = tx.now
		tx.state.statuses[key] = cloneStatus(status)
		tx.recordChange(Change{Entity: domain.EntityCompletionStatus, Action: domain.ActionUpdate, Before: cloneStatus(existing), After: cloneStatus(status)})
		return cloneStatus(status), nil
	}
	status.ID = tx.store.newID()
	status.CreatedAt = tx.now
	status.UpdatedAt = tx.now
	tx.state.statuses[key] = cloneStatus(status)
	tx.recordChange(Change{Entity: domain.EntityCompletionStatus, Action: domain.ActionCreate, After: cloneStatus(status)})
	return cloneStatus(status), nil
}

// DeleteCompletionStatus removes an overlay marker. Deleting an absent key is
// a no-op so that reverting to in-progress stays idempotent.
func (tx *transaction) DeleteCompletionStatus(key string) error {
	existing, ok := tx.state.statuses[key]
	if !ok {
		return nil
	}
	delete(tx.state.statuses, key)
	tx.recordChange(Change{Entity: domain.EntityCompletionStatus, Action: domain.ActionDelete, Before: cloneStatus(existing)})
	return nil
}

// FindCompletionStatus exposes overlay lookup within the transaction scope.
func (tx *transaction) FindCompletionStatus(key string) (CompletionStatus, bool) {
	status, ok := tx.state.statuses[key]
	if !ok {
		return CompletionStatus{}, false
	}
	return cloneStatus(status), true
}
