package integration

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"stitchcore/internal/blob"
	"stitchcore/internal/core"
	"stitchcore/internal/infra/persistence/memory"
	"stitchcore/internal/infra/persistence/sqlite"
	"stitchcore/pkg/domain"
	"stitchcore/testutil"
)

// TestIntegrationSmoke exercises a minimal end-to-end write/read cycle for
// each supported in-process storage and blob adapter. It intentionally keeps
// scope tiny so it can act as a fast CI health check.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	coreVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(_ *testing.T) domain.PersistentStore {
				return memory.NewStore(core.NewDefaultRulesEngine())
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				path := filepath.Join(t.TempDir(), "core.db")
				s, err := sqlite.NewStore(path, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("new sqlite store: %v", err)
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMemory() },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				fs, err := blob.NewFilesystem(t.TempDir())
				if err != nil {
					t.Fatalf("new filesystem blob: %v", err)
				}
				return fs
			},
		},
		{
			name: "mock-s3-blob",
			open: func(t *testing.T) blob.Store { return newMockS3(t) },
		},
	}

	for _, cv := range coreVariants {
		t.Run(cv.name, func(t *testing.T) {
			store := cv.open(t)
			specs := testutil.NewSpecSource().Add(
				domain.SpecPoint{Style: "S1", Size: "M", PointIndex: 1, ToleranceMinus: 0.25, TolerancePlus: 0.25},
			)
			orders := testutil.NewOrderSource().Set("S1", domain.OrderQuantities{"Red": {"M": 25}})
			metricsRecorder := core.NewExpvarMetricsRecorder("")
			var traceBuffer bytes.Buffer
			tracer := core.NewJSONTracer(&traceBuffer)
			svc := core.NewService(
				store,
				specs,
				orders,
				core.WithMetricsRecorder(metricsRecorder),
				core.WithTracer(tracer),
			)

			record, res, err := svc.SubmitSizeInspection(ctx, core.SizeInspectionInput{
				Date:        "2024-05-01",
				InspectorID: "insp-1",
				Style:       "S1",
				Colors:      []string{"Red"},
				Size:        "M",
				Garments: []core.GarmentInput{
					{GarmentNumber: 1, Readings: []core.ReadingInput{{PointIndex: 1, Fraction: "0"}}},
					{GarmentNumber: 2, Readings: []core.ReadingInput{{PointIndex: 1, Fraction: "+1/2"}}},
				},
			})
			if err != nil {
				t.Fatalf("submit inspection: %v", err)
			}
			if res.HasBlocking() {
				t.Fatalf("unexpected blocking violations: %+v", res.Violations)
			}

			key := domain.StatusKey{InspectorID: "insp-1", Style: "S1", Colors: []string{"Red"}, Size: "M"}
			if _, res, err := svc.SetCompletionStatus(ctx, key, true); err != nil {
				t.Fatalf("set completion: %v", err)
			} else if res.HasBlocking() {
				t.Fatalf("unexpected violations on completion: %+v", res.Violations)
			}
			report, err := svc.GetCurrentStatus(ctx, key, "")
			if err != nil {
				t.Fatalf("get current status: %v", err)
			}
			if report.Status != domain.StatusCompleted {
				t.Fatalf("expected completed status, got %s", report.Status)
			}
			if len(report.LatestReadings) != 2 {
				t.Fatalf("expected latest readings in status report, got %+v", report)
			}

			rows, err := svc.QueryRollup(ctx, core.RollupFilter{Style: "S1"}, core.GroupStyleInspectorSize)
			if err != nil {
				t.Fatalf("query rollup: %v", err)
			}
			if len(rows) != 1 || rows[0].Summary.CheckedGarments != 2 || rows[0].OrderQuantity != 25 {
				t.Fatalf("unexpected rollup rows: %+v", rows)
			}
			if rows[0].Status != domain.StatusCompleted {
				t.Fatalf("expected completed rollup row, got %s", rows[0].Status)
			}

			listed, err := svc.ListInspections(ctx)
			if err != nil {
				t.Fatalf("list inspections: %v", err)
			}
			found := false
			for _, r := range listed {
				if r.ID == record.ID {
					found = true
					break
				}
			}
			if !found {
				t.Fatalf("expected record %s in listing", record.ID)
			}

			snapshot := metricsRecorder.Snapshot()
			if len(snapshot.DurationsMS) == 0 {
				t.Fatalf("expected metrics durations for operations, got empty")
			}
			if snapshot.Results["submit_size_inspection"]["success"] == 0 {
				t.Fatalf("expected submit_size_inspection success metric recorded: %+v", snapshot.Results)
			}
			if traceBuffer.Len() == 0 {
				t.Fatalf("expected trace exporter to emit spans")
			}
			var foundSpan bool
			for _, entry := range tracer.Entries() {
				if entry.Operation == "submit_size_inspection" && entry.Status == "success" {
					foundSpan = true
					break
				}
			}
			if !foundSpan {
				t.Fatalf("expected trace entry for submit_size_inspection, entries=%+v", tracer.Entries())
			}
		})
	}

	for _, bv := range blobVariants {
		t.Run(bv.name, func(t *testing.T) {
			bs := bv.open(t)
			key := "reports/smoke.txt"
			payload := []byte("hello")
			info, err := bs.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{ContentType: "text/plain"})
			if err != nil {
				t.Fatalf("blob put: %v", err)
			}
			if info.Key != key {
				t.Fatalf("unexpected blob key info: %+v", info)
			}
			if info.Size <= 0 {
				t.Fatalf("expected positive blob size, got %d (info=%+v)", info.Size, info)
			}
			_, rc, err := bs.Get(ctx, key)
			if err != nil {
				t.Fatalf("blob get: %v", err)
			}
			got, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil {
				t.Fatalf("read payload: %v", err)
			}
			if string(got) != string(payload) {
				t.Fatalf("payload mismatch got=%q want=%q", string(got), string(payload))
			}
			if ok, err := bs.Delete(ctx, key); err != nil || !ok {
				t.Fatalf("blob delete: %v ok=%v", err, ok)
			}
		})
	}

	// Sanity: ensure no environment leakage (none set here, but guard for future edits)
	if os.Getenv("STITCHCORE_BLOB_DRIVER") != "" || os.Getenv("STITCHCORE_STORAGE_DRIVER") != "" {
		t.Fatalf("expected no test-induced env leakage")
	}
}

// newMockS3 starts a local HTTP endpoint that speaks enough of the S3 object
// API (put, get, head, delete) for the adapter to run against it.
func newMockS3(t *testing.T) blob.Store {
	t.Helper()
	objects := &mockObjects{data: make(map[string][]byte), contentType: make(map[string]string)}
	server := httptest.NewServer(objects)
	t.Cleanup(server.Close)
	store, err := blob.NewS3(context.Background(), blob.S3Config{
		Bucket:          "smoke",
		Region:          "us-east-1",
		Endpoint:        server.URL,
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		PathStyle:       true,
	})
	if err != nil {
		t.Fatalf("new s3 store: %v", err)
	}
	return store
}

type mockObjects struct {
	mu          sync.Mutex
	data        map[string][]byte
	contentType map[string]string
}

func (m *mockObjects) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.URL.Path
	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		m.data[key] = body
		if ct := r.Header.Get("Content-Type"); ct != "" {
			m.contentType[key] = ct
		}
		w.Header().Set("ETag", fmt.Sprintf("%q", key))
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		body, ok := m.data[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", m.contentType[key])
		w.Header().Set("ETag", fmt.Sprintf("%q", key))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := m.data[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.Header().Set("Content-Type", m.contentType[key])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	case http.MethodDelete:
		delete(m.data, key)
		delete(m.contentType, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
