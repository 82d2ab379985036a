// Package reports runs measurement report exports asynchronously and stores
// the rendered artifacts in a blob store. A report materializes the result of
// a rollup or tally query as JSON and CSV files that can be handed to
// factory-floor tooling.
package reports

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"stitchcore/internal/blob"
	"stitchcore/internal/core"
)

// Kind selects the query a report is built from.
type Kind string

const (
	KindRollup Kind = "rollup"
	KindTally  Kind = "tally"
)

// Format selects the artifact encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Status describes the lifecycle stage of a report request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored report file.
type Artifact struct {
	Key         string    `json:"key"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	URL         string    `json:"url,omitempty"`
	Rows        int       `json:"rows"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks a report request and its resulting artifacts.
type Record struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	Grouping    core.GroupKey     `json:"grouping,omitempty"`
	Rollup      core.RollupFilter `json:"rollup,omitempty"`
	Tally       core.TallyFilter  `json:"tally,omitempty"`
	Formats     []Format          `json:"formats"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Artifacts   []Artifact        `json:"artifacts,omitempty"`
	RequestedBy string            `json:"requested_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// Request is an enqueue request for the worker.
type Request struct {
	Kind        Kind
	Grouping    core.GroupKey
	Rollup      core.RollupFilter
	Tally       core.TallyFilter
	Formats     []Format
	RequestedBy string
}

// AuditLogger records report audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for report runs.
type AuditEntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	Actor      string    `json:"actor"`
	Kind       Kind      `json:"kind"`
	Status     Status    `json:"status"`
	Note       string    `json:"note,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Worker executes report exports asynchronously.
type Worker struct {
	service *core.Service
	store   blob.Store
	audit   AuditLogger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id      string
	request Request
}

type rendered struct {
	artifact Artifact
	payload  []byte
}

// NewWorker constructs a report worker. The audit logger may be nil.
func NewWorker(service *core.Service, store blob.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		service: service,
		store:   store,
		audit:   audit,
		queue:   make(chan task, 32),
		jobs:    make(map[string]*Record),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing report requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules a report job and returns the queued record.
func (w *Worker) Enqueue(ctx context.Context, req Request) (Record, error) {
	if w.service == nil {
		return Record{}, fmt.Errorf("report service not configured")
	}
	if w.store == nil {
		return Record{}, fmt.Errorf("report blob store not configured")
	}
	switch req.Kind {
	case KindRollup, KindTally:
	default:
		return Record{}, fmt.Errorf("unknown report kind %q", req.Kind)
	}

	formats := req.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if format != FormatJSON && format != FormatCSV {
			return Record{}, fmt.Errorf("unsupported report format %q", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := newID()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		Kind:        req.Kind,
		Grouping:    req.Grouping,
		Rollup:      req.Rollup,
		Tally:       req.Tally,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: req.RequestedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	select {
	case w.queue <- task{id: id, request: req}:
	default:
		w.mu.Lock()
		delete(w.jobs, id)
		w.mu.Unlock()
		return Record{}, fmt.Errorf("report queue full")
	}

	w.recordAudit(ctx, id, StatusQueued, "")

	return queued, nil
}

// Get returns a snapshot of the report record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.mu.RLock()
	record, ok := w.jobs[t.id]
	var formats []Format
	if ok {
		formats = append([]Format(nil), record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.updateStatus(t.id, StatusRunning, "")

	var files []rendered
	var err error
	switch t.request.Kind {
	case KindRollup:
		grouping := t.request.Grouping
		if grouping == "" {
			grouping = core.GroupStyleInspectorSize
		}
		var rows []core.RollupRow
		rows, err = w.service.QueryRollup(w.ctx, t.request.Rollup, grouping)
		if err == nil {
			files, err = materializeRollup(t.id, formats, rows)
		}
	case KindTally:
		var bins []core.TallyBin
		bins, err = w.service.QueryTally(w.ctx, t.request.Tally)
		if err == nil {
			files, err = materializeTally(t.id, formats, bins)
		}
	}
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}

	artifacts := make([]Artifact, 0, len(files))
	for _, file := range files {
		info, err := w.store.Put(w.ctx, file.artifact.Key, bytes.NewReader(file.payload), blob.PutOptions{
			ContentType: file.artifact.ContentType,
			Metadata:    map[string]string{"report": string(t.request.Kind), "rows": strconv.Itoa(file.artifact.Rows)},
		})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		stored := file.artifact
		stored.SizeBytes = info.Size
		stored.URL = info.URL
		if !info.LastModified.IsZero() {
			stored.CreatedAt = info.LastModified
		}
		artifacts = append(artifacts, stored)
	}

	w.complete(t.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, status, message)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.recordAudit(w.ctx, id, StatusFailed, reason)
}

func (w *Worker) recordAudit(ctx context.Context, id string, status Status, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	actor := ""
	kind := Kind("")
	if record, ok := w.jobs[id]; ok {
		actor = record.RequestedBy
		kind = record.Kind
	}
	w.mu.RUnlock()
	w.audit.Record(ctx, AuditEntry{
		ID:         newID(),
		Action:     "report_export",
		Actor:      actor,
		Kind:       kind,
		Status:     status,
		Note:       note,
		OccurredAt: time.Now().UTC(),
	})
}

func materializeRollup(jobID string, formats []Format, rows []core.RollupRow) ([]rendered, error) {
	out := make([]rendered, 0, len(formats))
	for _, format := range formats {
		switch format {
		case FormatJSON:
			payload, err := json.Marshal(rows)
			if err != nil {
				return nil, fmt.Errorf("marshal rollup json: %w", err)
			}
			out = append(out, rendered{
				artifact: newArtifact(jobID, "rollup.json", FormatJSON, "application/json", len(payload), len(rows)),
				payload:  payload,
			})
		case FormatCSV:
			buf := &bytes.Buffer{}
			writer := csv.NewWriter(buf)
			header := []string{
				"style", "inspector_id", "colors", "size",
				"checked_garments", "ok_garments", "rejected_garments",
				"checked_points", "passed_points", "issue_points",
				"over_tolerance_points", "under_tolerance_points", "unclassified_points",
				"status", "order_quantity",
			}
			if err := writer.Write(header); err != nil {
				return nil, err
			}
			for _, row := range rows {
				line := []string{
					row.Style,
					row.InspectorID,
					strings.Join(row.Colors, "/"),
					row.Size,
					strconv.Itoa(row.Summary.CheckedGarments),
					strconv.Itoa(row.Summary.OKGarments),
					strconv.Itoa(row.Summary.RejectedGarments),
					strconv.Itoa(row.Summary.CheckedPoints),
					strconv.Itoa(row.Summary.PassedPoints),
					strconv.Itoa(row.Summary.IssuePoints),
					strconv.Itoa(row.Summary.OverTolerancePoints),
					strconv.Itoa(row.Summary.UnderTolerancePoints),
					strconv.Itoa(row.Summary.UnclassifiedPoints),
					string(row.Status),
					strconv.Itoa(row.OrderQuantity),
				}
				if err := writer.Write(line); err != nil {
					return nil, err
				}
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return nil, err
			}
			payload := buf.Bytes()
			out = append(out, rendered{
				artifact: newArtifact(jobID, "rollup.csv", FormatCSV, "text/csv", len(payload), len(rows)),
				payload:  payload,
			})
		}
	}
	return out, nil
}

func materializeTally(jobID string, formats []Format, bins []core.TallyBin) ([]rendered, error) {
	out := make([]rendered, 0, len(formats))
	for _, format := range formats {
		switch format {
		case FormatJSON:
			payload, err := json.Marshal(bins)
			if err != nil {
				return nil, fmt.Errorf("marshal tally json: %w", err)
			}
			out = append(out, rendered{
				artifact: newArtifact(jobID, "tally.json", FormatJSON, "application/json", len(payload), len(bins)),
				payload:  payload,
			})
		case FormatCSV:
			buf := &bytes.Buffer{}
			writer := csv.NewWriter(buf)
			if err := writer.Write([]string{"point_index", "fraction", "value", "count"}); err != nil {
				return nil, err
			}
			for _, bin := range bins {
				line := []string{
					strconv.Itoa(bin.PointIndex),
					bin.Fraction,
					strconv.FormatFloat(bin.Value, 'g', -1, 64),
					strconv.Itoa(bin.Count),
				}
				if err := writer.Write(line); err != nil {
					return nil, err
				}
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				return nil, err
			}
			payload := buf.Bytes()
			out = append(out, rendered{
				artifact: newArtifact(jobID, "tally.csv", FormatCSV, "text/csv", len(payload), len(bins)),
				payload:  payload,
			})
		}
	}
	return out, nil
}

func newArtifact(jobID, name string, format Format, contentType string, size, rows int) Artifact {
	return Artifact{
		Key:         fmt.Sprintf("reports/%s/%s", jobID, name),
		Format:      format,
		ContentType: contentType,
		SizeBytes:   int64(size),
		Rows:        rows,
		CreatedAt:   time.Now().UTC(),
	}
}

func (r Record) copy() Record {
	dup := r
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	return dup
}

func newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", b[:])
}

// MemoryAuditLog captures audit entries in-memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Record stores an audit entry.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a defensive copy of recorded audit entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
