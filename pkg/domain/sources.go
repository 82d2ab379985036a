package domain

import "context"

// OrderQuantities maps color -> size -> planned quantity for one style.
type OrderQuantities map[string]map[string]int

// QuantityFor sums the planned quantity across the given color set for one
// size. Color order and duplicates do not affect the result.
func (q OrderQuantities) QuantityFor(colors []string, size string) int {
	total := 0
	for _, color := range NormalizeColors(colors) {
		if sizes, ok := q[color]; ok {
			total += sizes[size]
		}
	}
	return total
}

// SpecSource is the read-only buyer-specification collaborator. A lookup miss
// is reported as NotFoundError; readings for that style/size proceed as
// unclassified rather than failing the submission.
type SpecSource interface {
	LookupSpec(ctx context.Context, style, size string) ([]SpecPoint, error)
}

// OrderSource is the read-only order-quantity collaborator, used only for
// derived ordered-quantity figures in rollups.
type OrderSource interface {
	LookupOrder(ctx context.Context, style string) (OrderQuantities, error)
}
