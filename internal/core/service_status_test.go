package core

import (
	"context"
	"errors"
	"testing"

	"stitchcore/pkg/domain"
)

func statusKey(size string) domain.StatusKey {
	return domain.StatusKey{
		InspectorID: "insp-1",
		Style:       "S1",
		Colors:      []string{"Red", "Blue"},
		Size:        size,
	}
}

func currentStatus(t *testing.T, svc *Service, key domain.StatusKey, date string) StatusReport {
	t.Helper()
	report, err := svc.GetCurrentStatus(context.Background(), key, date)
	if err != nil {
		t.Fatalf("current status: %v", err)
	}
	return report
}

func TestSetCompletionStatusMarksComplete(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	if _, _, err := svc.SubmitSizeInspection(ctx, sheet("2024-05-01", "M", garment(1, "0", "0"))); err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, _, err := svc.SetCompletionStatus(ctx, statusKey("M"), true)
	if err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	if !status.MarkedComplete || status.ID == "" {
		t.Fatalf("overlay not stored: %+v", status)
	}

	report := currentStatus(t, svc, statusKey("M"), "")
	if report.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s", report.Status)
	}
	if report.LatestDate != "2024-05-01" || len(report.LatestReadings) != 1 {
		t.Fatalf("expected latest readings from the dated block: %+v", report)
	}
}

func TestCompletionOverlayOverridesDatedRecords(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Two dated records, both blocks left in progress.
	if _, _, err := svc.SubmitSizeInspection(ctx, sheet("2024-05-01", "M", garment(1, "0", "0"))); err != nil {
		t.Fatalf("submit day 1: %v", err)
	}
	if _, _, err := svc.SubmitSizeInspection(ctx, sheet("2024-05-02", "M", garment(1, "0", "0"), garment(2, "0", "0"))); err != nil {
		t.Fatalf("submit day 2: %v", err)
	}

	report := currentStatus(t, svc, statusKey("M"), "")
	if report.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress before overlay, got %s", report.Status)
	}
	if report.LatestDate != "2024-05-02" || len(report.LatestReadings) != 2 {
		t.Fatalf("expected latest readings from day 2, got %+v", report)
	}

	if _, _, err := svc.SetCompletionStatus(ctx, statusKey("M"), true); err != nil {
		t.Fatalf("mark complete: %v", err)
	}
	// The overlay wins for any date, including days with no record at all.
	for _, date := range []string{"", "2024-05-01", "2024-04-01"} {
		if report := currentStatus(t, svc, statusKey("M"), date); report.Status != domain.StatusCompleted {
			t.Fatalf("expected completed via overlay for date %q, got %s", date, report.Status)
		}
	}

	// The overlay is mirrored onto every dated block.
	records, err := svc.ListInspections(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, record := range records {
		if record.SizeBlocks["M"].Status != domain.StatusCompleted {
			t.Fatalf("dated block %s not synced: %+v", record.Date, record.SizeBlocks["M"])
		}
	}
}

func TestClearCompletionStatusRevertsToRecordState(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	input := sheet("2024-05-01", "M", garment(1, "0", "0"))
	input.Status = domain.StatusCompleted
	if _, _, err := svc.SubmitSizeInspection(ctx, input); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, _, err := svc.SetCompletionStatus(ctx, statusKey("M"), true); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if _, _, err := svc.SetCompletionStatus(ctx, statusKey("M"), false); err != nil {
		t.Fatalf("unmark: %v", err)
	}
	// Unmark mirrors in-progress back onto dated blocks as well.
	if report := currentStatus(t, svc, statusKey("M"), ""); report.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress after unmark, got %s", report.Status)
	}
	// Repeating the unmark is a no-op.
	if _, _, err := svc.SetCompletionStatus(ctx, statusKey("M"), false); err != nil {
		t.Fatalf("repeat unmark: %v", err)
	}
}

func TestDatedBlockFlagDecidesWithoutOverlay(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	day1 := sheet("2024-05-01", "M", garment(1, "0", "0"))
	day1.Status = domain.StatusCompleted
	if _, _, err := svc.SubmitSizeInspection(ctx, day1); err != nil {
		t.Fatalf("submit day 1: %v", err)
	}
	if _, _, err := svc.SubmitSizeInspection(ctx, sheet("2024-05-02", "M", garment(1, "0", "0"))); err != nil {
		t.Fatalf("submit day 2: %v", err)
	}

	// With an explicit date the flag of exactly that day's block decides.
	if report := currentStatus(t, svc, statusKey("M"), "2024-05-01"); report.Status != domain.StatusCompleted {
		t.Fatalf("expected completed from day 1 flag, got %s", report.Status)
	}
	if report := currentStatus(t, svc, statusKey("M"), "2024-05-02"); report.Status != domain.StatusInProgress {
		t.Fatalf("expected in-progress from day 2 flag, got %s", report.Status)
	}
	// Without a date the most recent block decides; its readings are returned
	// either way.
	report := currentStatus(t, svc, statusKey("M"), "2024-05-01")
	if report.LatestDate != "2024-05-02" {
		t.Fatalf("expected readings from the most recent block, got %+v", report)
	}
}

func TestSetCompletionStatusIsDateIndependent(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	// Overlay can exist before any dated record.
	if _, _, err := svc.SetCompletionStatus(ctx, statusKey("L"), true); err != nil {
		t.Fatalf("mark without records: %v", err)
	}
	report := currentStatus(t, svc, statusKey("L"), "")
	if report.Status != domain.StatusCompleted {
		t.Fatalf("expected completed from bare overlay, got %s", report.Status)
	}
	if report.LatestDate != "" || len(report.LatestReadings) != 0 {
		t.Fatalf("expected no readings without records, got %+v", report)
	}

	// A later submission does not clear the overlay.
	if _, _, err := svc.SubmitSizeInspection(ctx, sheet("2024-05-03", "L", garment(1, "0"))); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if report := currentStatus(t, svc, statusKey("L"), ""); report.Status != domain.StatusCompleted {
		t.Fatalf("overlay lost after submission: %+v", report)
	}
}

func TestGetCurrentStatusDefaultsToInProgress(t *testing.T) {
	svc := newTestService()
	report := currentStatus(t, svc, statusKey("XL"), "")
	if report.Status != domain.StatusInProgress {
		t.Fatalf("expected default in-progress, got %s", report.Status)
	}
	if report.LatestDate != "" || len(report.LatestReadings) != 0 {
		t.Fatalf("expected empty report for unknown combination, got %+v", report)
	}
}

func TestGetCurrentStatusValidatesInput(t *testing.T) {
	svc := newTestService()
	bad := domain.StatusKey{Style: "S1", Colors: []string{"Red"}, Size: "M"}
	var ve domain.ValidationError
	if _, err := svc.GetCurrentStatus(context.Background(), bad, ""); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for missing inspector, got %v", err)
	}
	if _, err := svc.GetCurrentStatus(context.Background(), statusKey("M"), "05/01/2024"); !errors.As(err, &ve) {
		t.Fatalf("expected validation error for malformed date, got %v", err)
	}
}

func TestSetCompletionStatusValidatesKey(t *testing.T) {
	svc := newTestService()
	bad := domain.StatusKey{Style: "S1", Colors: []string{"Red"}, Size: "M"}
	if _, _, err := svc.SetCompletionStatus(context.Background(), bad, true); err == nil {
		t.Fatalf("expected validation error for missing inspector")
	}
}
