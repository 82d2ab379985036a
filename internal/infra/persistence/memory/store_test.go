package memory

import (
	"context"
	"errors"
	"testing"

	"stitchcore/pkg/domain"
)

func newRecord(date, inspector, style string, colors []string) domain.InspectionRecord {
	return domain.InspectionRecord{
		Date:        date,
		InspectorID: inspector,
		Style:       style,
		Colors:      colors,
		SizeBlocks: map[string]domain.SizeBlock{
			"M": {Size: "M", Status: domain.StatusInProgress, Summary: domain.SizeSummary{Size: "M", CheckedGarments: 1, OKGarments: 1, CheckedPoints: 1, PassedPoints: 1}},
		},
	}
}

func TestCreateInspectionAssignsIdentity(t *testing.T) {
	store := NewStore(nil)
	var created domain.InspectionRecord
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		rec, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red", "Blue"}))
		created = rec
		return err
	}); err != nil {
		t.Fatalf("transaction failed: %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Fatalf("identity not assigned: %+v", created.Base)
	}
	if len(created.Colors) != 2 || created.Colors[0] != "Blue" {
		t.Fatalf("colors not normalized: %v", created.Colors)
	}
	if got := store.ListInspections(); len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", len(got))
	}
}

func TestCreateInspectionRejectsDuplicateKey(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red"}))
		return err
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red"}))
		return err
	})
	var conflict domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected conflict error, got %v", err)
	}
}

func TestUpdateInspectionPreservesIdentity(t *testing.T) {
	store := NewStore(nil)
	var id string
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		rec, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red"}))
		id = rec.ID
		return err
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		updated, err := tx.UpdateInspection(id, func(r *domain.InspectionRecord) error {
			block := r.SizeBlocks["M"]
			block.Status = domain.StatusCompleted
			r.SizeBlocks["M"] = block
			r.ID = "tampered"
			return nil
		})
		if err != nil {
			return err
		}
		if updated.ID != id {
			t.Fatalf("mutator overrode record ID: %q", updated.ID)
		}
		return nil
	}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	records := store.ListInspections()
	if records[0].SizeBlocks["M"].Status != domain.StatusCompleted {
		t.Fatalf("update not applied: %+v", records[0].SizeBlocks["M"])
	}
}

func TestUpdateMissingInspection(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateInspection("nope", func(*domain.InspectionRecord) error { return nil })
		return err
	})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestFailedTransactionLeavesStateUntouched(t *testing.T) {
	store := NewStore(nil)
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", nil)); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if got := store.ListInspections(); len(got) != 0 {
		t.Fatalf("aborted transaction leaked state: %d records", len(got))
	}
}

type blockingRule struct{}

func (blockingRule) Name() string { return "always-block" }

func (blockingRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "always-block", Severity: domain.SeverityBlock, Message: "blocked"}}}, nil
}

func TestBlockingRuleRollsBackCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockingRule{})
	store := NewStore(engine)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", nil))
		return err
	})
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation error, got %v", err)
	}
	if got := store.ListInspections(); len(got) != 0 {
		t.Fatalf("blocked transaction committed state")
	}
}

func TestCompletionStatusUpsertIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	status := domain.CompletionStatus{InspectorID: "insp-1", Style: "S1", Colors: []string{"Red"}, Size: "M"}

	var first, second domain.CompletionStatus
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		s, err := tx.UpsertCompletionStatus(status)
		first = s
		return err
	}); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if !first.MarkedComplete {
		t.Fatalf("upsert did not mark complete")
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		s, err := tx.UpsertCompletionStatus(status)
		second = s
		return err
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("repeat upsert minted a new identity: %+v vs %+v", first.Base, second.Base)
	}
	if got := store.ListCompletionStatuses(); len(got) != 1 {
		t.Fatalf("expected 1 status, got %d", len(got))
	}
}

func TestDeleteCompletionStatusIsIdempotent(t *testing.T) {
	store := NewStore(nil)
	status := domain.CompletionStatus{InspectorID: "insp-1", Style: "S1", Colors: []string{"Red"}, Size: "M"}
	key := status.Key()

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.UpsertCompletionStatus(status); err != nil {
			return err
		}
		return tx.DeleteCompletionStatus(key)
	}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteCompletionStatus(key)
	}); err != nil {
		t.Fatalf("repeat delete failed: %v", err)
	}
	if got := store.ListCompletionStatuses(); len(got) != 0 {
		t.Fatalf("status survived delete")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red"})); err != nil {
			return err
		}
		_, err := tx.UpsertCompletionStatus(domain.CompletionStatus{InspectorID: "insp-1", Style: "S1", Colors: []string{"Red"}, Size: "M"})
		return err
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())

	if got := restored.ListInspections(); len(got) != 1 {
		t.Fatalf("expected 1 record after import, got %d", len(got))
	}
	if got := restored.ListCompletionStatuses(); len(got) != 1 {
		t.Fatalf("expected 1 status after import, got %d", len(got))
	}
}

func TestImportMigratesLegacySnapshot(t *testing.T) {
	store := NewStore(nil)
	record := newRecord("2024-05-01", "insp-1", "S1", []string{"red", "Red", " Blue "})
	record.ID = "legacy-1"
	// Legacy writers keyed blocks inconsistently and left stale overall sums.
	record.SizeBlocks = map[string]domain.SizeBlock{
		"stale-key": {Size: "M", Summary: domain.SizeSummary{Size: "M", CheckedGarments: 2, OKGarments: 2, CheckedPoints: 2, PassedPoints: 2}},
		"":          {},
	}
	record.Overall = domain.SizeSummary{CheckedGarments: 99}

	store.ImportState(Snapshot{Inspections: map[string]domain.InspectionRecord{"legacy-1": record}})

	records := store.ListInspections()
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if len(got.Colors) != 3 {
		t.Fatalf("expected trimmed color set of 3, got %v", got.Colors)
	}
	if _, ok := got.SizeBlocks["M"]; !ok {
		t.Fatalf("block not rekeyed by size: %v", got.SizeBlocks)
	}
	if len(got.SizeBlocks) != 1 {
		t.Fatalf("empty-size block not dropped: %v", got.SizeBlocks)
	}
	if got.Overall.CheckedGarments != 2 {
		t.Fatalf("overall not recomputed: %+v", got.Overall)
	}
}

func TestViewSnapshotIsolation(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateInspection(newRecord("2024-05-01", "insp-1", "S1", []string{"Red"}))
		return err
	}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := store.View(context.Background(), func(view TransactionView) error {
		records := view.ListInspections()
		records[0].SizeBlocks["M"] = domain.SizeBlock{Size: "M", Status: domain.StatusCompleted}
		return nil
	}); err != nil {
		t.Fatalf("view failed: %v", err)
	}
	if store.ListInspections()[0].SizeBlocks["M"].Status == domain.StatusCompleted {
		t.Fatalf("view mutation leaked into store state")
	}
}
