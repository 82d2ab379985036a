// Package core exposes the transactional inspection service: submission of
// measured size sheets, completion overlays, rollup queries, and the ambient
// observability hooks around them.
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stitchcore/pkg/domain"
)

// submitRetries bounds business-key conflict retries before the operation is
// reported as a storage failure.
const submitRetries = 3

// Service exposes higher-level transactional operations over inspection state.
type Service struct {
	store   PersistentStore
	specs   domain.SpecSource
	orders  domain.OrderSource
	policy  domain.UnclassifiedPolicy
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store and lookup
// sources.
func NewService(store PersistentStore, specs domain.SpecSource, orders domain.OrderSource, opts ...ServiceOption) *Service {
	options := defaultServiceOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Service{
		store:   store,
		specs:   specs,
		orders:  orders,
		policy:  options.policy,
		clock:   options.clock,
		logger:  options.logger,
		audit:   options.audit,
		metrics: options.metrics,
		tracer:  options.tracer,
	}
}

// NewInMemoryService creates a service with an in-memory store and the given
// rules engine.
func NewInMemoryService(engine *RulesEngine, specs domain.SpecSource, orders domain.OrderSource, opts ...ServiceOption) *Service {
	return NewService(newMemoryStore(engine), specs, orders, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// SizeInspectionInput carries one measured size sheet for a style under
// inspection.
type SizeInspectionInput struct {
	Date        string
	InspectorID string
	Style       string
	Colors      []string
	Size        string
	Status      domain.InspectionStatus
	Garments    []GarmentInput
}

// GarmentInput carries the readings captured for a single garment.
type GarmentInput struct {
	GarmentNumber int
	Readings      []ReadingInput
}

// ReadingInput is one deviation reading against a measurement point.
type ReadingInput struct {
	PointIndex int
	Fraction   string
}

func (in SizeInspectionInput) validate() error {
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return domain.ValidationError{Field: "date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", in.Date)}
	}
	if strings.TrimSpace(in.InspectorID) == "" {
		return domain.ValidationError{Field: "inspector_id", Message: "required"}
	}
	if strings.TrimSpace(in.Style) == "" {
		return domain.ValidationError{Field: "style", Message: "required"}
	}
	if len(domain.NormalizeColors(in.Colors)) == 0 {
		return domain.ValidationError{Field: "colors", Message: "at least one color required"}
	}
	if strings.TrimSpace(in.Size) == "" {
		return domain.ValidationError{Field: "size", Message: "required"}
	}
	switch in.Status {
	case "", domain.StatusInProgress, domain.StatusCompleted:
	default:
		return domain.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", in.Status)}
	}
	if len(in.Garments) == 0 {
		return domain.ValidationError{Field: "garments", Message: "at least one garment required"}
	}
	seen := make(map[int]bool, len(in.Garments))
	for i, garment := range in.Garments {
		if garment.GarmentNumber <= 0 {
			return domain.ValidationError{Field: fmt.Sprintf("garments[%d].garment_number", i), Message: "must be positive"}
		}
		if seen[garment.GarmentNumber] {
			return domain.ValidationError{Field: fmt.Sprintf("garments[%d].garment_number", i), Message: fmt.Sprintf("duplicate garment %d", garment.GarmentNumber)}
		}
		seen[garment.GarmentNumber] = true
		for j, reading := range garment.Readings {
			if reading.PointIndex <= 0 {
				return domain.ValidationError{Field: fmt.Sprintf("garments[%d].readings[%d].point_index", i, j), Message: "must be positive"}
			}
		}
	}
	return nil
}

func (in SizeInspectionInput) toGarments() ([]domain.GarmentMeasurement, error) {
	garments := make([]domain.GarmentMeasurement, 0, len(in.Garments))
	for i, garment := range in.Garments {
		readings := make([]domain.MeasurementReading, 0, len(garment.Readings))
		for j, reading := range garment.Readings {
			value, err := domain.ParseFraction(reading.Fraction)
			if err != nil {
				return nil, domain.ValidationError{
					Field:   fmt.Sprintf("garments[%d].readings[%d].fraction", i, j),
					Message: err.Error(),
				}
			}
			readings = append(readings, domain.MeasurementReading{
				PointIndex:   reading.PointIndex,
				FractionRaw:  strings.TrimSpace(reading.Fraction),
				DecimalValue: value,
			})
		}
		garments = append(garments, domain.GarmentMeasurement{
			GarmentNumber: garment.GarmentNumber,
			Readings:      readings,
		})
	}
	return garments, nil
}

// SubmitSizeInspection classifies the submitted readings against the style's
// tolerance bands and merges the resulting size block into the dated record
// for (date, inspector, style, colorSet). An existing block for the same size
// is replaced, otherwise the block is appended; the overall summary is
// recomputed inside the same transaction.
func (s *Service) SubmitSizeInspection(ctx context.Context, input SizeInspectionInput) (InspectionRecord, Result, error) {
	var saved InspectionRecord
	var result Result
	err := s.run(ctx, "submit_size_inspection", func(ctx context.Context) (string, error) {
		if err := input.validate(); err != nil {
			return "", err
		}
		garments, err := input.toGarments()
		if err != nil {
			return "", err
		}

		points, err := s.specs.LookupSpec(ctx, input.Style, input.Size)
		if err != nil {
			return "", fmt.Errorf("lookup spec %s/%s: %w", input.Style, input.Size, err)
		}
		if len(points) == 0 {
			s.logger.Warn("no tolerance entries for size, readings stay unclassified",
				"style", input.Style, "size", input.Size)
		}
		index := domain.IndexSpecPoints(points)
		classified := domain.ClassifyGarments(garments, index)
		summary := domain.BuildSizeSummary(input.Size, classified, s.policy)
		if summary.UnclassifiedPoints > 0 {
			s.logger.Warn("readings without tolerance entry",
				"style", input.Style, "size", input.Size, "count", summary.UnclassifiedPoints)
		}

		status := input.Status
		if status == "" {
			status = domain.StatusInProgress
		}
		block := domain.SizeBlock{
			Size:     input.Size,
			Status:   status,
			Garments: classified,
			Summary:  summary,
		}

		key := domain.RecordKey(input.Date, input.InspectorID, input.Style, input.Colors)
		var lastErr error
		for attempt := 0; attempt < submitRetries; attempt++ {
			result, lastErr = s.store.RunInTransaction(ctx, func(tx Transaction) error {
				if existing, ok := tx.FindInspectionByKey(key); ok {
					rec, err := tx.UpdateInspection(existing.ID, func(r *domain.InspectionRecord) error {
						if r.SizeBlocks == nil {
							r.SizeBlocks = make(map[string]domain.SizeBlock, 1)
						}
						r.SizeBlocks[block.Size] = block
						domain.RecomputeOverall(r)
						return nil
					})
					if err != nil {
						return err
					}
					saved = rec
					return nil
				}
				record := domain.InspectionRecord{
					Date:        input.Date,
					InspectorID: input.InspectorID,
					Style:       input.Style,
					Colors:      input.Colors,
					SizeBlocks:  map[string]domain.SizeBlock{block.Size: block},
				}
				domain.RecomputeOverall(&record)
				rec, err := tx.CreateInspection(record)
				if err != nil {
					return err
				}
				saved = rec
				return nil
			})
			var conflict domain.ConflictError
			if lastErr == nil || !errors.As(lastErr, &conflict) {
				break
			}
			s.logger.Warn("submit conflict, retrying", "key", key, "attempt", attempt+1)
		}
		if lastErr != nil {
			var conflict domain.ConflictError
			if errors.As(lastErr, &conflict) {
				return "", domain.StorageUnavailableError{Op: "submit size inspection", Err: lastErr}
			}
			return "", lastErr
		}
		return saved.ID, nil
	})
	return saved, result, err
}

// SetCompletionStatus marks or unmarks an (inspector, style, colorSet, size)
// combination as completed. The overlay is date-independent and takes
// precedence over per-record block status; matching dated blocks are updated
// best-effort in a follow-up transaction.
func (s *Service) SetCompletionStatus(ctx context.Context, key domain.StatusKey, complete bool) (CompletionStatus, Result, error) {
	var saved CompletionStatus
	var result Result
	operation := "set_completion_status"
	if !complete {
		operation = "clear_completion_status"
	}
	err := s.run(ctx, operation, func(ctx context.Context) (string, error) {
		if err := key.Validate(); err != nil {
			return "", err
		}
		var err error
		result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			if complete {
				status, err := tx.UpsertCompletionStatus(CompletionStatus{
					InspectorID: key.InspectorID,
					Style:       key.Style,
					Colors:      key.Colors,
					Size:        key.Size,
				})
				if err != nil {
					return err
				}
				saved = status
				return nil
			}
			return tx.DeleteCompletionStatus(key.Key())
		})
		if err != nil {
			return "", err
		}
		s.syncRecordBlockStatus(ctx, key, complete)
		return saved.ID, nil
	})
	return saved, result, err
}

// syncRecordBlockStatus mirrors the overlay outcome onto dated size blocks.
// Failures are logged and swallowed: the overlay remains the source of truth
// for current status.
func (s *Service) syncRecordBlockStatus(ctx context.Context, key domain.StatusKey, complete bool) {
	status := domain.StatusInProgress
	if complete {
		status = domain.StatusCompleted
	}
	colorKey := domain.ColorKey(key.Colors)
	if _, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		for _, record := range tx.Snapshot().ListInspections() {
			if record.InspectorID != key.InspectorID || record.Style != key.Style {
				continue
			}
			if domain.ColorKey(record.Colors) != colorKey {
				continue
			}
			block, ok := record.SizeBlocks[key.Size]
			if !ok || block.Status == status {
				continue
			}
			if _, err := tx.UpdateInspection(record.ID, func(r *domain.InspectionRecord) error {
				b := r.SizeBlocks[key.Size]
				b.Status = status
				r.SizeBlocks[key.Size] = b
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		s.logger.Warn("could not sync block status onto dated records",
			"key", key.Key(), "error", err)
	}
}

// StatusReport is the combined status read returned to an inspector resuming
// work on a combination.
type StatusReport struct {
	Status         domain.InspectionStatus
	LatestDate     string
	LatestReadings []domain.GarmentMeasurement
}

// GetCurrentStatus reports the effective status for an (inspector, style,
// colorSet, size) combination. The overlay wins when present regardless of
// date; otherwise the block flag of the dated record decides (the record for
// the given date when one is supplied, the most recent one when the date is
// empty), defaulting to in progress. The report always carries the garments
// of the most recent matching block so the caller can resume from them.
func (s *Service) GetCurrentStatus(ctx context.Context, key domain.StatusKey, date string) (StatusReport, error) {
	if err := key.Validate(); err != nil {
		return StatusReport{}, err
	}
	if date != "" {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			return StatusReport{}, domain.ValidationError{Field: "date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", date)}
		}
	}
	report := StatusReport{Status: domain.StatusInProgress}
	err := s.store.View(ctx, func(view TransactionView) error {
		overlaid := false
		if _, ok := view.FindCompletionStatus(key.Key()); ok {
			report.Status = domain.StatusCompleted
			overlaid = true
		}
		colorKey := domain.ColorKey(key.Colors)
		datedStatus := domain.InspectionStatus("")
		for _, record := range view.ListInspections() {
			if record.InspectorID != key.InspectorID || record.Style != key.Style {
				continue
			}
			if domain.ColorKey(record.Colors) != colorKey {
				continue
			}
			block, ok := record.SizeBlocks[key.Size]
			if !ok {
				continue
			}
			if record.Date >= report.LatestDate {
				report.LatestDate = record.Date
				report.LatestReadings = block.Garments
				if date == "" {
					datedStatus = block.Status
				}
			}
			if date != "" && record.Date == date {
				datedStatus = block.Status
			}
		}
		if !overlaid && datedStatus == domain.StatusCompleted {
			report.Status = domain.StatusCompleted
		}
		return nil
	})
	if err != nil {
		return StatusReport{}, err
	}
	return report, nil
}

// GetInspection fetches a single dated record by ID.
func (s *Service) GetInspection(ctx context.Context, id string) (InspectionRecord, error) {
	var record InspectionRecord
	err := s.store.View(ctx, func(view TransactionView) error {
		found, ok := view.FindInspection(id)
		if !ok {
			return domain.NotFoundError{Entity: domain.EntityInspection, Key: id}
		}
		record = found
		return nil
	})
	return record, err
}

// ListInspections returns all dated records ordered by business key.
func (s *Service) ListInspections(ctx context.Context) ([]InspectionRecord, error) {
	var records []InspectionRecord
	err := s.store.View(ctx, func(view TransactionView) error {
		records = view.ListInspections()
		return nil
	})
	return records, err
}

// DeleteInspection removes a dated record. Intended for administrative
// correction of bad submissions.
func (s *Service) DeleteInspection(ctx context.Context, id string) (Result, error) {
	var result Result
	err := s.run(ctx, "delete_inspection", func(ctx context.Context) (string, error) {
		var err error
		result, err = s.store.RunInTransaction(ctx, func(tx Transaction) error {
			return tx.DeleteInspection(id)
		})
		if err != nil {
			return "", err
		}
		return id, nil
	})
	return result, err
}

// run wraps an operation with tracing, metrics, logging and audit capture.
func (s *Service) run(ctx context.Context, operation string, fn func(ctx context.Context) (string, error)) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, operation)
	entityID, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	if err != nil {
		s.logger.Error(operation+" failed", "error", err, "duration_ms", duration.Milliseconds())
		s.recordAuditError(ctx, operation, entityID, duration, err)
		return err
	}
	s.logger.Info(operation+" completed", "entity_id", entityID, "duration_ms", duration.Milliseconds())
	s.recordAuditSuccess(ctx, operation, entityID, duration)
	return nil
}

var auditOperations = map[string]struct {
	Entity EntityType
	Action Action
}{
	"submit_size_inspection":  {Entity: domain.EntityInspection, Action: domain.ActionUpdate},
	"delete_inspection":       {Entity: domain.EntityInspection, Action: domain.ActionDelete},
	"set_completion_status":   {Entity: domain.EntityCompletionStatus, Action: domain.ActionUpdate},
	"clear_completion_status": {Entity: domain.EntityCompletionStatus, Action: domain.ActionDelete},
}

func (s *Service) recordAuditSuccess(ctx context.Context, operation, entityID string, duration time.Duration) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}

func (s *Service) recordAuditError(ctx context.Context, operation, entityID string, duration time.Duration, err error) {
	meta, ok := auditOperations[operation]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: operation,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    AuditStatusError,
		Error:     err.Error(),
		Duration:  duration,
		Timestamp: s.clock.Now(),
	})
}
