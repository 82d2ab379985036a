package core

import (
	"context"
	"fmt"

	"stitchcore/pkg/domain"
)

// NewGarmentDecompositionRule returns the in-transaction rule enforcing that
// garment counters decompose and agree with the stored readings.
func NewGarmentDecompositionRule() domain.Rule {
	return garmentDecompositionRule{}
}

type garmentDecompositionRule struct{}

func (garmentDecompositionRule) Name() string { return "garment_decomposition" }

func (garmentDecompositionRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, record := range view.ListInspections() {
		for _, block := range record.SortedSizeBlocks() {
			summary := block.Summary
			if summary.Size != block.Size {
				res.Violations = append(res.Violations, violation("garment_decomposition", record,
					fmt.Sprintf("size %s: summary labeled %q", block.Size, summary.Size)))
			}
			if summary.CheckedGarments != summary.OKGarments+summary.RejectedGarments {
				res.Violations = append(res.Violations, violation("garment_decomposition", record,
					fmt.Sprintf("size %s: checked garments %d != ok %d + rejected %d",
						block.Size, summary.CheckedGarments, summary.OKGarments, summary.RejectedGarments)))
			}
			if len(block.Garments) > 0 && summary.CheckedGarments != len(block.Garments) {
				res.Violations = append(res.Violations, violation("garment_decomposition", record,
					fmt.Sprintf("size %s: %d garments stored but %d counted",
						block.Size, len(block.Garments), summary.CheckedGarments)))
			}
		}
	}
	return res, nil
}
