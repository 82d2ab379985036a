package core

import (
	"context"
	"fmt"

	"stitchcore/pkg/domain"
)

// NewColorNormalizationRule returns the in-transaction rule enforcing that
// stored color sets are trimmed, deduplicated and sorted so that business
// keys stay order-independent.
func NewColorNormalizationRule() domain.Rule {
	return colorNormalizationRule{}
}

type colorNormalizationRule struct{}

func (colorNormalizationRule) Name() string { return "color_normalization" }

func (colorNormalizationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, record := range view.ListInspections() {
		if !normalized(record.Colors) {
			res.Violations = append(res.Violations, violation("color_normalization", record,
				fmt.Sprintf("color set %v is not normalized", record.Colors)))
		}
	}
	for _, status := range view.ListCompletionStatuses() {
		if !normalized(status.Colors) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "color_normalization",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("color set %v is not normalized", status.Colors),
				Entity:   domain.EntityCompletionStatus,
				EntityID: status.ID,
			})
		}
	}
	return res, nil
}

func normalized(colors []string) bool {
	want := domain.NormalizeColors(colors)
	if len(want) != len(colors) {
		return false
	}
	for i := range colors {
		if colors[i] != want[i] {
			return false
		}
	}
	return true
}
