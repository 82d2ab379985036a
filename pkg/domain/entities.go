// Package domain defines the persistent entities, value types, and rule
// evaluation primitives of the measurement-inspection rollup engine.
package domain

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityInspection identifies a dated inspection record.
	EntityInspection EntityType = "inspection_record"
	// EntityCompletionStatus identifies an overlay completion marker.
	EntityCompletionStatus EntityType = "completion_status"
)

// Classification is the tolerance verdict for a single measurement reading.
type Classification string

// Reading classifications produced by the tolerance classifier.
const (
	// ClassificationPass indicates the reading sits inside the tolerance band.
	ClassificationPass Classification = "pass"
	// ClassificationOver indicates the reading exceeds the plus tolerance.
	ClassificationOver Classification = "over_tolerance"
	// ClassificationUnder indicates the reading falls below the minus tolerance.
	ClassificationUnder Classification = "under_tolerance"
	// ClassificationUnclassified marks a reading with no matching spec point.
	ClassificationUnclassified Classification = "unclassified"
)

// InspectionStatus enumerates the completion states reported for a size.
type InspectionStatus string

// Canonical inspection statuses. The string values match the stored records.
const (
	StatusInProgress InspectionStatus = "In Progress"
	StatusCompleted  InspectionStatus = "Completed"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SpecPoint is one buyer-defined measurement location with its tolerance
// band. Spec points are read-only reference data supplied by the spec
// collaborator; this core never writes them. Both tolerance fields are
// non-negative magnitudes.
type SpecPoint struct {
	Style          string  `json:"style"`
	Size           string  `json:"size"`
	PointIndex     int     `json:"point_index"`
	ToleranceMinus float64 `json:"tolerance_minus"`
	TolerancePlus  float64 `json:"tolerance_plus"`
}

// MeasurementReading is one fractional deviation recorded for one garment at
// one spec point.
type MeasurementReading struct {
	PointIndex     int            `json:"point_index"`
	FractionRaw    string         `json:"fraction_raw"`
	DecimalValue   float64        `json:"decimal_value"`
	Classification Classification `json:"classification,omitempty"`
}

// GarmentMeasurement is one inspected garment within one size.
type GarmentMeasurement struct {
	GarmentNumber int                  `json:"garment_number"`
	Readings      []MeasurementReading `json:"readings"`
}

// SizeSummary aggregates classified readings for one size. It is always
// derived, never hand-edited.
type SizeSummary struct {
	Size                 string `json:"size"`
	CheckedGarments      int    `json:"checked_garments"`
	OKGarments           int    `json:"ok_garments"`
	RejectedGarments     int    `json:"rejected_garments"`
	CheckedPoints        int    `json:"checked_points"`
	PassedPoints         int    `json:"passed_points"`
	IssuePoints          int    `json:"issue_points"`
	OverTolerancePoints  int    `json:"over_tolerance_points"`
	UnderTolerancePoints int    `json:"under_tolerance_points"`
	UnclassifiedPoints   int    `json:"unclassified_points,omitempty"`
}

// Add accumulates another summary field-wise. Counts are summed raw, never
// derived from ratios.
func (s *SizeSummary) Add(other SizeSummary) {
	s.CheckedGarments += other.CheckedGarments
	s.OKGarments += other.OKGarments
	s.RejectedGarments += other.RejectedGarments
	s.CheckedPoints += other.CheckedPoints
	s.PassedPoints += other.PassedPoints
	s.IssuePoints += other.IssuePoints
	s.OverTolerancePoints += other.OverTolerancePoints
	s.UnderTolerancePoints += other.UnderTolerancePoints
	s.UnclassifiedPoints += other.UnclassifiedPoints
}

// SizeBlock is the portion of an inspection record covering one garment size.
// Status is the optimistic per-submission flag; the completion overlay
// overrides it on reads.
type SizeBlock struct {
	Size     string               `json:"size"`
	Status   InspectionStatus     `json:"status,omitempty"`
	Garments []GarmentMeasurement `json:"garments"`
	Summary  SizeSummary          `json:"summary"`
}

// InspectionRecord is the unit of persistence for one inspector's work on one
// date for one style and color set. SizeBlocks is keyed by size so that one
// block per size holds structurally; the serialized form is a size-sorted
// array.
type InspectionRecord struct {
	Base
	Date        string               `json:"date"`
	InspectorID string               `json:"inspector_id"`
	Style       string               `json:"style"`
	Colors      []string             `json:"colors"`
	SizeBlocks  map[string]SizeBlock `json:"size_blocks"`
	Overall     SizeSummary          `json:"overall_summary"`
}

// inspectionRecordWire mirrors InspectionRecord with size blocks as an array.
type inspectionRecordWire struct {
	Base
	Date        string      `json:"date"`
	InspectorID string      `json:"inspector_id"`
	Style       string      `json:"style"`
	Colors      []string    `json:"colors"`
	SizeBlocks  []SizeBlock `json:"size_blocks"`
	Overall     SizeSummary `json:"overall_summary"`
}

// MarshalJSON emits size blocks as a deterministic size-sorted array.
func (r InspectionRecord) MarshalJSON() ([]byte, error) {
	wire := inspectionRecordWire{
		Base:        r.Base,
		Date:        r.Date,
		InspectorID: r.InspectorID,
		Style:       r.Style,
		Colors:      r.Colors,
		SizeBlocks:  r.SortedSizeBlocks(),
		Overall:     r.Overall,
	}
	return json.Marshal(wire)
}

// UnmarshalJSON rebuilds the size-block map from the serialized array.
func (r *InspectionRecord) UnmarshalJSON(data []byte) error {
	var wire inspectionRecordWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	blocks := make(map[string]SizeBlock, len(wire.SizeBlocks))
	for _, block := range wire.SizeBlocks {
		blocks[block.Size] = block
	}
	*r = InspectionRecord{
		Base:        wire.Base,
		Date:        wire.Date,
		InspectorID: wire.InspectorID,
		Style:       wire.Style,
		Colors:      wire.Colors,
		SizeBlocks:  blocks,
		Overall:     wire.Overall,
	}
	return nil
}

// SortedSizeBlocks returns the record's size blocks ordered by size.
func (r InspectionRecord) SortedSizeBlocks() []SizeBlock {
	out := make([]SizeBlock, 0, len(r.SizeBlocks))
	for _, block := range r.SizeBlocks {
		out = append(out, block)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Size < out[j].Size })
	return out
}

// Key returns the record's business uniqueness key.
func (r InspectionRecord) Key() string {
	return RecordKey(r.Date, r.InspectorID, r.Style, r.Colors)
}

// RecordKey builds the (date, inspector, style, colorSet) uniqueness key.
// Color order does not affect the result.
func RecordKey(date, inspectorID, style string, colors []string) string {
	return strings.Join([]string{date, inspectorID, style, ColorKey(colors)}, "\x1f")
}

// NormalizeColors returns the sorted, deduplicated color set with blanks
// removed. The input slice is not modified.
func NormalizeColors(colors []string) []string {
	out := make([]string, 0, len(colors))
	seen := make(map[string]struct{}, len(colors))
	for _, color := range colors {
		color = strings.TrimSpace(color)
		if color == "" {
			continue
		}
		if _, ok := seen[color]; ok {
			continue
		}
		seen[color] = struct{}{}
		out = append(out, color)
	}
	sort.Strings(out)
	return out
}

// ColorKey renders a normalized color set as a single comparable key.
func ColorKey(colors []string) string {
	return strings.Join(NormalizeColors(colors), "|")
}

// CompletionStatus is the independently keyed persistent "done" marker. Its
// presence forces Completed on status reads regardless of date; reverting to
// in-progress deletes the row.
type CompletionStatus struct {
	Base
	InspectorID    string   `json:"inspector_id"`
	Style          string   `json:"style"`
	Colors         []string `json:"colors"`
	Size           string   `json:"size"`
	MarkedComplete bool     `json:"marked_complete"`
}

// Key returns the overlay composite key.
func (c CompletionStatus) Key() string {
	return StatusKey{InspectorID: c.InspectorID, Style: c.Style, Colors: c.Colors, Size: c.Size}.Key()
}

// StatusKey addresses one (inspector, style, colorSet, size) combination in
// the completion overlay.
type StatusKey struct {
	InspectorID string
	Style       string
	Colors      []string
	Size        string
}

// Key renders the composite overlay key. Color order does not affect the
// result.
func (k StatusKey) Key() string {
	return strings.Join([]string{k.InspectorID, k.Style, ColorKey(k.Colors), k.Size}, "\x1f")
}

// Validate checks that all key components are present.
func (k StatusKey) Validate() error {
	if strings.TrimSpace(k.InspectorID) == "" {
		return ValidationError{Field: "inspector_id", Message: "required"}
	}
	if strings.TrimSpace(k.Style) == "" {
		return ValidationError{Field: "style", Message: "required"}
	}
	if len(NormalizeColors(k.Colors)) == 0 {
		return ValidationError{Field: "colors", Message: "at least one color required"}
	}
	if strings.TrimSpace(k.Size) == "" {
		return ValidationError{Field: "size", Message: "required"}
	}
	return nil
}

// Change captures a single entity mutation inside a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured for rule evaluation
// and audit.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Entity   EntityType `json:"entity,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Result aggregates rule violations produced within one transaction.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}
