package core

import (
	"context"
	"fmt"

	"stitchcore/pkg/domain"
)

// NewSummaryConsistencyRule returns the in-transaction rule enforcing that
// every stored summary decomposes cleanly and that the overall summary equals
// the sum of its size blocks.
func NewSummaryConsistencyRule() domain.Rule {
	return summaryConsistencyRule{}
}

type summaryConsistencyRule struct{}

func (summaryConsistencyRule) Name() string { return "summary_consistency" }

func (summaryConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, record := range view.ListInspections() {
		var expected domain.SizeSummary
		for _, block := range record.SortedSizeBlocks() {
			summary := block.Summary
			// Depending on the unclassified policy, unclassified points are
			// either folded into passed or tracked separately.
			diff := summary.CheckedPoints - summary.PassedPoints - summary.IssuePoints
			if diff != 0 && diff != summary.UnclassifiedPoints {
				res.Violations = append(res.Violations, violation("summary_consistency", record,
					fmt.Sprintf("size %s: checked points %d do not decompose into passed %d + issue %d (unclassified %d)",
						block.Size, summary.CheckedPoints, summary.PassedPoints, summary.IssuePoints, summary.UnclassifiedPoints)))
			}
			if summary.IssuePoints != summary.OverTolerancePoints+summary.UnderTolerancePoints {
				res.Violations = append(res.Violations, violation("summary_consistency", record,
					fmt.Sprintf("size %s: issue points %d != over %d + under %d",
						block.Size, summary.IssuePoints, summary.OverTolerancePoints, summary.UnderTolerancePoints)))
			}
			expected.Add(summary)
		}
		overall := record.Overall
		expected.Size = overall.Size
		if overall != expected {
			res.Violations = append(res.Violations, violation("summary_consistency", record,
				fmt.Sprintf("overall summary diverges from size blocks: %+v != %+v", overall, expected)))
		}
	}
	return res, nil
}

func violation(rule string, record domain.InspectionRecord, message string) domain.Violation {
	return domain.Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   domain.EntityInspection,
		EntityID: record.ID,
	}
}
