package domain

// SpecIndex indexes the spec points of one (style, size) by point index.
type SpecIndex map[int]SpecPoint

// IndexSpecPoints builds a SpecIndex from a collaborator lookup result.
func IndexSpecPoints(points []SpecPoint) SpecIndex {
	idx := make(SpecIndex, len(points))
	for _, point := range points {
		idx[point.PointIndex] = point
	}
	return idx
}

// Classify places a decimal deviation inside a tolerance band. Both band
// fields are magnitudes; the sign of the value determines direction.
func Classify(value float64, point SpecPoint) Classification {
	switch {
	case value > point.TolerancePlus:
		return ClassificationOver
	case value < -point.ToleranceMinus:
		return ClassificationUnder
	default:
		return ClassificationPass
	}
}

// ClassifyReading classifies one reading against the spec index. Readings
// with no matching spec point come back unclassified; they are recorded but
// must not silently count as a pass.
func ClassifyReading(reading MeasurementReading, idx SpecIndex) Classification {
	point, ok := idx[reading.PointIndex]
	if !ok {
		return ClassificationUnclassified
	}
	return Classify(reading.DecimalValue, point)
}

// ClassifyGarments returns a copy of the garments with every reading's
// classification populated from the spec index.
func ClassifyGarments(garments []GarmentMeasurement, idx SpecIndex) []GarmentMeasurement {
	out := make([]GarmentMeasurement, len(garments))
	for i, garment := range garments {
		cp := garment
		cp.Readings = make([]MeasurementReading, len(garment.Readings))
		for j, reading := range garment.Readings {
			reading.Classification = ClassifyReading(reading, idx)
			cp.Readings[j] = reading
		}
		out[i] = cp
	}
	return out
}
