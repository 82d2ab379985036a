package domain

// UnclassifiedPolicy decides how readings without a matching spec point enter
// the summary counts. The reference system folded them into passes; that
// behavior is kept as the default but made explicit so callers can audit it.
type UnclassifiedPolicy string

const (
	// UnclassifiedAsPass folds unclassified readings into passed points,
	// preserving checked = passed + issue. The fold is still counted in
	// UnclassifiedPoints so "clean pass" and "unverifiable" stay
	// distinguishable.
	UnclassifiedAsPass UnclassifiedPolicy = "as_pass"
	// UnclassifiedSeparate keeps unclassified readings out of the passed
	// count; under it checked = passed + issue + unclassified.
	UnclassifiedSeparate UnclassifiedPolicy = "separate"
)

// BuildSizeSummary assembles the SizeSummary for one size from classified
// garments. Pure function: garments must already carry classifications (see
// ClassifyGarments). A garment is rejected when any of its readings is over
// or under tolerance.
func BuildSizeSummary(size string, garments []GarmentMeasurement, policy UnclassifiedPolicy) SizeSummary {
	if policy == "" {
		policy = UnclassifiedAsPass
	}
	summary := SizeSummary{Size: size, CheckedGarments: len(garments)}
	for _, garment := range garments {
		rejected := false
		for _, reading := range garment.Readings {
			summary.CheckedPoints++
			switch reading.Classification {
			case ClassificationOver:
				summary.OverTolerancePoints++
				rejected = true
			case ClassificationUnder:
				summary.UnderTolerancePoints++
				rejected = true
			case ClassificationUnclassified:
				summary.UnclassifiedPoints++
				if policy == UnclassifiedAsPass {
					summary.PassedPoints++
				}
			default:
				summary.PassedPoints++
			}
		}
		if rejected {
			summary.RejectedGarments++
		} else {
			summary.OKGarments++
		}
	}
	summary.IssuePoints = summary.OverTolerancePoints + summary.UnderTolerancePoints
	return summary
}

// SumSizeSummaries adds the given summaries field-wise. The size on the
// result is left to the caller; a record-level overall summary carries no
// single size.
func SumSizeSummaries(summaries []SizeSummary) SizeSummary {
	var total SizeSummary
	for _, summary := range summaries {
		total.Add(summary)
	}
	total.Size = ""
	return total
}

// RecomputeOverall rebuilds the record's overall summary from scratch over
// all size blocks. Always a full recompute, never an incremental patch, so
// the aggregate cannot drift from its parts.
func RecomputeOverall(record *InspectionRecord) {
	summaries := make([]SizeSummary, 0, len(record.SizeBlocks))
	for _, block := range record.SortedSizeBlocks() {
		summaries = append(summaries, block.Summary)
	}
	record.Overall = SumSizeSummaries(summaries)
}
