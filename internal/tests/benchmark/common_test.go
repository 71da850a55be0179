package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/yndnr/docguard/internal/core/domain"
	"github.com/yndnr/docguard/internal/storage"
	"github.com/yndnr/docguard/internal/telemetry/logger"
)

// RecordCounts defines the document sizes (records per collection) used for
// benchmarking.
var RecordCounts = []int{100, 1000, 10000}

// SmallRecordCounts for quick benchmarks.
var SmallRecordCounts = []int{100, 1000}

// persistentBackends are the backends that write to disk.
var persistentBackends = []string{storage.BackendFS, storage.BackendSQLite, storage.BackendBadger}

// createDocument builds a document with count clients, projects and tasks.
func createDocument(count int) *domain.Document {
	doc := domain.NewDocument()
	for i := 0; i < count; i++ {
		doc.Clients = append(doc.Clients, domain.Record{
			"id":    fmt.Sprintf("c%d", i),
			"name":  fmt.Sprintf("Client %d", i),
			"email": fmt.Sprintf("billing%d@example.com", i),
		})
		doc.Projects = append(doc.Projects, domain.Record{
			"id":       fmt.Sprintf("p%d", i),
			"clientId": fmt.Sprintf("c%d", i),
			"rate":     95.5,
		})
		doc.Tasks = append(doc.Tasks, domain.Record{
			"id":        fmt.Sprintf("t%d", i),
			"projectId": fmt.Sprintf("p%d", i),
			"hours":     float64(i%8) + 0.25,
			"tags":      []any{"billable", "remote"},
		})
	}
	doc.Config = domain.Record{"currency": "EUR", "locale": "de-DE"}
	return doc
}

// openStore opens a store of the given backend kind in a temp dir.
func openStore(b *testing.B, kind string) *storage.Store {
	b.Helper()
	bk, err := storage.OpenBackend(storage.BackendConfig{
		Kind:    kind,
		DataDir: b.TempDir(),
		Logger:  logger.Discard(),
	})
	if err != nil {
		b.Fatalf("Open backend %s failed: %v", kind, err)
	}
	s, err := storage.New(storage.Config{
		Backend:        bk,
		DebounceWindow: time.Millisecond,
		Logger:         logger.Discard(),
	})
	if err != nil {
		b.Fatalf("New store failed: %v", err)
	}
	b.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithRecordCounts runs a benchmark function with various document sizes.
func runWithRecordCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("records_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
