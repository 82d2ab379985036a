package domain

import "testing"

func specIndexM() SpecIndex {
	return IndexSpecPoints([]SpecPoint{
		{Style: "S1", Size: "M", PointIndex: 1, ToleranceMinus: 0.25, TolerancePlus: 0.25},
	})
}

func TestBuildSizeSummaryScenario(t *testing.T) {
	// Style S1 size M, band (-0.25, +0.25) on point 1. Garment A reads +0.125
	// (pass), garment B reads +0.375 (over tolerance).
	garments := ClassifyGarments([]GarmentMeasurement{
		{GarmentNumber: 1, Readings: []MeasurementReading{{PointIndex: 1, FractionRaw: "+1/8", DecimalValue: 0.125}}},
		{GarmentNumber: 2, Readings: []MeasurementReading{{PointIndex: 1, FractionRaw: "+3/8", DecimalValue: 0.375}}},
	}, specIndexM())

	summary := BuildSizeSummary("M", garments, UnclassifiedAsPass)
	want := SizeSummary{
		Size:                "M",
		CheckedGarments:     2,
		OKGarments:          1,
		RejectedGarments:    1,
		CheckedPoints:       2,
		PassedPoints:        1,
		IssuePoints:         1,
		OverTolerancePoints: 1,
	}
	if summary != want {
		t.Fatalf("summary mismatch:\n got %+v\nwant %+v", summary, want)
	}
}

func TestBuildSizeSummaryDecomposition(t *testing.T) {
	garments := ClassifyGarments([]GarmentMeasurement{
		{GarmentNumber: 1, Readings: []MeasurementReading{
			{PointIndex: 1, DecimalValue: 0},
			{PointIndex: 1, DecimalValue: 0.5},
			{PointIndex: 1, DecimalValue: -0.5},
		}},
		{GarmentNumber: 2, Readings: []MeasurementReading{
			{PointIndex: 1, DecimalValue: 0.125},
		}},
	}, specIndexM())

	summary := BuildSizeSummary("M", garments, UnclassifiedAsPass)
	if summary.CheckedPoints != summary.PassedPoints+summary.IssuePoints {
		t.Fatalf("checked != passed + issue: %+v", summary)
	}
	if summary.IssuePoints != summary.OverTolerancePoints+summary.UnderTolerancePoints {
		t.Fatalf("issue != over + under: %+v", summary)
	}
	if summary.CheckedGarments != summary.OKGarments+summary.RejectedGarments {
		t.Fatalf("checked garments != ok + rejected: %+v", summary)
	}
}

func TestBuildSizeSummaryUnclassifiedPolicies(t *testing.T) {
	// Point 7 has no spec entry; the reading still counts as checked.
	garments := ClassifyGarments([]GarmentMeasurement{
		{GarmentNumber: 1, Readings: []MeasurementReading{
			{PointIndex: 1, DecimalValue: 0.125},
			{PointIndex: 7, DecimalValue: 0.125},
		}},
	}, specIndexM())

	asPass := BuildSizeSummary("M", garments, UnclassifiedAsPass)
	if asPass.CheckedPoints != 2 || asPass.PassedPoints != 2 || asPass.UnclassifiedPoints != 1 {
		t.Fatalf("as-pass policy: %+v", asPass)
	}
	if asPass.CheckedPoints != asPass.PassedPoints+asPass.IssuePoints {
		t.Fatalf("as-pass decomposition broken: %+v", asPass)
	}

	separate := BuildSizeSummary("M", garments, UnclassifiedSeparate)
	if separate.CheckedPoints != 2 || separate.PassedPoints != 1 || separate.UnclassifiedPoints != 1 {
		t.Fatalf("separate policy: %+v", separate)
	}
	if separate.CheckedPoints != separate.PassedPoints+separate.IssuePoints+separate.UnclassifiedPoints {
		t.Fatalf("separate decomposition broken: %+v", separate)
	}

	// Unclassified never rejects a garment under either policy.
	if asPass.RejectedGarments != 0 || separate.RejectedGarments != 0 {
		t.Fatalf("unclassified reading rejected a garment")
	}
}

func TestRecomputeOverallSumsBlocks(t *testing.T) {
	record := InspectionRecord{
		SizeBlocks: map[string]SizeBlock{
			"M": {Size: "M", Summary: SizeSummary{Size: "M", CheckedGarments: 2, OKGarments: 1, RejectedGarments: 1, CheckedPoints: 4, PassedPoints: 3, IssuePoints: 1, OverTolerancePoints: 1}},
			"L": {Size: "L", Summary: SizeSummary{Size: "L", CheckedGarments: 3, OKGarments: 3, CheckedPoints: 6, PassedPoints: 6}},
		},
	}
	RecomputeOverall(&record)
	if record.Overall.CheckedGarments != 5 || record.Overall.CheckedPoints != 10 || record.Overall.PassedPoints != 9 || record.Overall.IssuePoints != 1 {
		t.Fatalf("overall mismatch: %+v", record.Overall)
	}
	if record.Overall.Size != "" {
		t.Fatalf("overall summary must not carry a size, got %q", record.Overall.Size)
	}
}
