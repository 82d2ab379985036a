package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"stitchcore/pkg/domain"
)

// GroupKey selects the grouping applied to rollup queries.
type GroupKey string

const (
	// GroupStyleInspectorSize aggregates across color sets for each
	// (style, inspector, size).
	GroupStyleInspectorSize GroupKey = "style_inspector_size"
	// GroupStyleOnly aggregates everything recorded for a style.
	GroupStyleOnly GroupKey = "style"
	// GroupStyleInspectorColorSize keeps color sets separate.
	GroupStyleInspectorColorSize GroupKey = "style_inspector_color_size"
)

// RollupFilter restricts which dated records contribute to a rollup. Dates
// are inclusive ISO day strings; empty fields match everything.
type RollupFilter struct {
	FromDate    string
	ToDate      string
	Style       string
	InspectorID string
}

func (f RollupFilter) validate() error {
	for field, value := range map[string]string{"from_date": f.FromDate, "to_date": f.ToDate} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return domain.ValidationError{Field: field, Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", value)}
		}
	}
	if f.FromDate != "" && f.ToDate != "" && f.FromDate > f.ToDate {
		return domain.ValidationError{Field: "from_date", Message: "range start after range end"}
	}
	return nil
}

func (f RollupFilter) matches(record domain.InspectionRecord) bool {
	if f.Style != "" && record.Style != f.Style {
		return false
	}
	if f.InspectorID != "" && record.InspectorID != f.InspectorID {
		return false
	}
	// ISO day strings order lexicographically.
	if f.FromDate != "" && record.Date < f.FromDate {
		return false
	}
	if f.ToDate != "" && record.Date > f.ToDate {
		return false
	}
	return true
}

// RollupRow is one aggregated line of a rollup result.
type RollupRow struct {
	Style         string
	InspectorID   string
	Colors        []string
	Size          string
	Summary       domain.SizeSummary
	Status        domain.InspectionStatus
	OrderQuantity int
}

type rollupGroup struct {
	style       string
	inspectorID string
	colors      []string
	size        string
	summary     domain.SizeSummary
	colorSets   map[string][]string
	combos      map[string]bool
	latestDate  string
	latestState domain.InspectionStatus
}

// QueryRollup aggregates stored size blocks according to the requested
// grouping. Status is resolved through the completion overlay first and falls
// back to the block status of the most recent contributing record; a grouping
// that spans several (inspector, colorSet, size) combinations reports
// completed only when every contributing combination is completed.
func (s *Service) QueryRollup(ctx context.Context, filter RollupFilter, groupBy GroupKey) ([]RollupRow, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	switch groupBy {
	case GroupStyleInspectorSize, GroupStyleOnly, GroupStyleInspectorColorSize:
	default:
		return nil, domain.ValidationError{Field: "group_by", Message: fmt.Sprintf("unknown grouping %q", groupBy)}
	}

	groups := make(map[string]*rollupGroup)
	var order []string
	var overlays []CompletionStatus

	err := s.store.View(ctx, func(view TransactionView) error {
		overlays = view.ListCompletionStatuses()
		for _, record := range view.ListInspections() {
			if !filter.matches(record) {
				continue
			}
			for _, block := range record.SortedSizeBlocks() {
				key := groupKeyFor(groupBy, record, block)
				group, ok := groups[key]
				if !ok {
					group = &rollupGroup{
						style:     record.Style,
						colorSets: make(map[string][]string),
						combos:    make(map[string]bool),
					}
					switch groupBy {
					case GroupStyleInspectorSize:
						group.inspectorID = record.InspectorID
						group.size = block.Size
					case GroupStyleInspectorColorSize:
						group.inspectorID = record.InspectorID
						group.size = block.Size
						group.colors = append([]string(nil), record.Colors...)
					}
					groups[key] = group
					order = append(order, key)
				}
				group.summary.Add(block.Summary)
				group.colorSets[domain.ColorKey(record.Colors)] = record.Colors
				combo := domain.StatusKey{
					InspectorID: record.InspectorID,
					Style:       record.Style,
					Colors:      record.Colors,
					Size:        block.Size,
				}
				group.combos[combo.Key()] = true
				if record.Date >= group.latestDate {
					group.latestDate = record.Date
					group.latestState = block.Status
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	overlayKeys := make(map[string]bool, len(overlays))
	for _, status := range overlays {
		overlayKeys[status.Key()] = true
	}

	quantities := s.orderQuantities(ctx, groups)

	rows := make([]RollupRow, 0, len(groups))
	for _, key := range order {
		group := groups[key]
		row := RollupRow{
			Style:       group.style,
			InspectorID: group.inspectorID,
			Colors:      group.colors,
			Size:        group.size,
			Summary:     group.summary,
		}
		row.Summary.Size = group.size
		if len(row.Colors) == 0 {
			row.Colors = groupColors(group)
		}
		row.Status = resolveGroupStatus(group, overlayKeys)
		if group.size != "" {
			row.OrderQuantity = quantityFor(quantities[group.style], group, group.size)
		} else {
			row.OrderQuantity = totalQuantity(quantities[group.style], group)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Style != b.Style {
			return a.Style < b.Style
		}
		if a.InspectorID != b.InspectorID {
			return a.InspectorID < b.InspectorID
		}
		ak, bk := domain.ColorKey(a.Colors), domain.ColorKey(b.Colors)
		if ak != bk {
			return ak < bk
		}
		return a.Size < b.Size
	})
	return rows, nil
}

func groupKeyFor(groupBy GroupKey, record domain.InspectionRecord, block domain.SizeBlock) string {
	switch groupBy {
	case GroupStyleOnly:
		return record.Style
	case GroupStyleInspectorColorSize:
		return strings.Join([]string{record.Style, record.InspectorID, domain.ColorKey(record.Colors), block.Size}, "\x1f")
	default:
		return strings.Join([]string{record.Style, record.InspectorID, block.Size}, "\x1f")
	}
}

// resolveGroupStatus reports completed only when every (inspector, colorSet,
// size) combination contributing to the group carries a completion overlay;
// otherwise the freshest block status wins.
func resolveGroupStatus(group *rollupGroup, overlayKeys map[string]bool) domain.InspectionStatus {
	allComplete := len(group.combos) > 0
	for key := range group.combos {
		if !overlayKeys[key] {
			allComplete = false
			break
		}
	}
	if allComplete {
		return domain.StatusCompleted
	}
	if group.latestState != "" {
		return group.latestState
	}
	return domain.StatusInProgress
}

// orderQuantities resolves order quantities per style touched by the rollup.
// Lookup failures degrade to zero quantities with a warning.
func (s *Service) orderQuantities(ctx context.Context, groups map[string]*rollupGroup) map[string]domain.OrderQuantities {
	if s.orders == nil {
		return nil
	}
	out := make(map[string]domain.OrderQuantities)
	for _, group := range groups {
		if _, done := out[group.style]; done {
			continue
		}
		quantities, err := s.orders.LookupOrder(ctx, group.style)
		if err != nil {
			s.logger.Warn("order lookup failed", "style", group.style, "error", err)
			out[group.style] = nil
			continue
		}
		out[group.style] = quantities
	}
	return out
}

func groupColors(group *rollupGroup) []string {
	var colors []string
	for _, set := range group.colorSets {
		colors = append(colors, set...)
	}
	return domain.NormalizeColors(colors)
}

func quantityFor(quantities domain.OrderQuantities, group *rollupGroup, size string) int {
	if quantities == nil {
		return 0
	}
	return quantities.QuantityFor(groupColors(group), size)
}

func totalQuantity(quantities domain.OrderQuantities, group *rollupGroup) int {
	if quantities == nil {
		return 0
	}
	total := 0
	colors := groupColors(group)
	sizes := make(map[string]bool)
	for _, color := range colors {
		for size := range quantities[color] {
			sizes[size] = true
		}
	}
	for size := range sizes {
		total += quantities.QuantityFor(colors, size)
	}
	return total
}

// TallyFilter restricts the readings contributing to a deviation tally.
// PointIndex and Colors are optional; zero and nil match everything.
type TallyFilter struct {
	Style       string
	Size        string
	PointIndex  int
	InspectorID string
	Colors      []string
	FromDate    string
	ToDate      string
}

// TallyBin counts occurrences of one raw deviation value at one measurement
// point.
type TallyBin struct {
	PointIndex int
	Fraction   string
	Value      float64
	Count      int
}

// QueryTally builds the deviation histogram for a style/size: how many
// garments showed each raw fraction value at each measurement point. Bins are
// ordered by point index, then decimal value.
func (s *Service) QueryTally(ctx context.Context, filter TallyFilter) ([]TallyBin, error) {
	if strings.TrimSpace(filter.Style) == "" {
		return nil, domain.ValidationError{Field: "style", Message: "required"}
	}
	if strings.TrimSpace(filter.Size) == "" {
		return nil, domain.ValidationError{Field: "size", Message: "required"}
	}
	if filter.PointIndex < 0 {
		return nil, domain.ValidationError{Field: "point_index", Message: "must not be negative"}
	}
	rangeFilter := RollupFilter{
		FromDate:    filter.FromDate,
		ToDate:      filter.ToDate,
		Style:       filter.Style,
		InspectorID: filter.InspectorID,
	}
	if err := rangeFilter.validate(); err != nil {
		return nil, err
	}
	colorKey := ""
	if len(filter.Colors) > 0 {
		colorKey = domain.ColorKey(filter.Colors)
	}

	type binKey struct {
		point    int
		fraction string
	}
	bins := make(map[binKey]*TallyBin)
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, record := range view.ListInspections() {
			if !rangeFilter.matches(record) {
				continue
			}
			if colorKey != "" && domain.ColorKey(record.Colors) != colorKey {
				continue
			}
			block, ok := record.SizeBlocks[filter.Size]
			if !ok {
				continue
			}
			for _, garment := range block.Garments {
				for _, reading := range garment.Readings {
					if filter.PointIndex != 0 && reading.PointIndex != filter.PointIndex {
						continue
					}
					key := binKey{point: reading.PointIndex, fraction: strings.TrimSpace(reading.FractionRaw)}
					bin, ok := bins[key]
					if !ok {
						bin = &TallyBin{PointIndex: key.point, Fraction: key.fraction, Value: reading.DecimalValue}
						bins[key] = bin
					}
					bin.Count++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]TallyBin, 0, len(bins))
	for _, bin := range bins {
		out = append(out, *bin)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PointIndex != out[j].PointIndex {
			return out[i].PointIndex < out[j].PointIndex
		}
		if out[i].Value != out[j].Value {
			return out[i].Value < out[j].Value
		}
		return out[i].Fraction < out[j].Fraction
	})
	return out, nil
}
