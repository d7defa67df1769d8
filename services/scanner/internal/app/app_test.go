package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"docintel/pkg/ai"
	"docintel/pkg/domain"
	"docintel/pkg/extract"
	"docintel/pkg/store"
)

type memObjects struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemObjects() *memObjects {
	return &memObjects{data: make(map[string][]byte)}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(context.Context, string, string) (string, error) {
	return f.text, f.err
}

type fakeAnalyzer struct {
	analysis domain.StructuralAnalysis
	err      error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (domain.StructuralAnalysis, error) {
	return f.analysis, f.err
}

func newTestApp(t *testing.T, extractor *fakeExtractor, analyzer *fakeAnalyzer) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	return &App{
		store:     mem,
		objects:   newMemObjects(),
		extractor: extractor,
		analyzer:  analyzer,
		tmpDir:    t.TempDir(),
	}, mem
}

func seedScan(t *testing.T, a *App, mem *store.MemoryStore) domain.Scan {
	t.Helper()
	now := time.Now().UTC()
	scan := domain.Scan{
		ID:               "scan-1",
		DocumentID:       "doc-1",
		OriginalFilename: "statement.pdf",
		MimeType:         "application/pdf",
		Status:           domain.ScanReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.objects.Put(context.Background(), scanStorageKey(scan.ID), strings.NewReader("raw bytes"), 9, scan.MimeType); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	if err := mem.SaveScan(scan); err != nil {
		t.Fatalf("seed scan: %v", err)
	}
	return scan
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestProcessScanCompletesWithResult(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: domain.StructuralAnalysis{
		Status:  domain.AnalysisConsistent,
		Summary: "No anomalies.",
	}}
	app, mem := newTestApp(t, &fakeExtractor{text: "extracted text"}, analyzer)
	scan := seedScan(t, app, mem)

	if err := app.processScan(context.Background(), scan.ID); err != nil {
		t.Fatalf("processScan: %v", err)
	}

	got, err := app.GetScan(scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != domain.ScanComplete {
		t.Fatalf("status = %s, want %s", got.Status, domain.ScanComplete)
	}
	if got.Result == nil {
		t.Fatalf("no result persisted")
	}
	if got.Result.DocumentID != scan.DocumentID {
		t.Fatalf("result documentId = %s, want %s", got.Result.DocumentID, scan.DocumentID)
	}
	if got.Result.Recommendation != domain.RecommendAccept {
		t.Fatalf("recommendation = %s, want %s", got.Result.Recommendation, domain.RecommendAccept)
	}
	assertNoTempFiles(t, app.tmpDir)
}

func TestProcessScanExtractionFailure(t *testing.T) {
	extractor := &fakeExtractor{err: fmt.Errorf("read file: %w", extract.ErrUnsupportedFormat)}
	app, mem := newTestApp(t, extractor, &fakeAnalyzer{})
	scan := seedScan(t, app, mem)

	if err := app.processScan(context.Background(), scan.ID); err == nil {
		t.Fatalf("expected extraction failure")
	}

	got, err := app.GetScan(scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != domain.ScanFailed {
		t.Fatalf("status = %s, want %s", got.Status, domain.ScanFailed)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("error message not recorded")
	}
	if got.Result != nil {
		t.Fatalf("no result must be persisted on failure, got %+v", got.Result)
	}
	assertNoTempFiles(t, app.tmpDir)
}

func TestProcessScanMalformedAnalysisFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("parse verdict: %w", ai.ErrMalformedAnalysis)}
	app, mem := newTestApp(t, &fakeExtractor{text: "extracted text"}, analyzer)
	scan := seedScan(t, app, mem)

	if err := app.processScan(context.Background(), scan.ID); err == nil {
		t.Fatalf("expected analyzer failure")
	}

	got, err := app.GetScan(scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Status != domain.ScanFailed {
		t.Fatalf("status = %s, want %s", got.Status, domain.ScanFailed)
	}
	if got.Result != nil {
		t.Fatalf("no result must be persisted on failure")
	}
	assertNoTempFiles(t, app.tmpDir)
}

func TestProcessScanUnknownScan(t *testing.T) {
	app, _ := newTestApp(t, &fakeExtractor{}, &fakeAnalyzer{})
	if err := app.processScan(context.Background(), "missing"); err == nil {
		t.Fatalf("expected error for unknown scan")
	}
}

func TestProcessScanRecordsElapsed(t *testing.T) {
	analyzer := &fakeAnalyzer{analysis: domain.StructuralAnalysis{Status: domain.AnalysisConsistent}}
	app, mem := newTestApp(t, &fakeExtractor{text: "extracted text"}, analyzer)
	scan := seedScan(t, app, mem)

	if err := app.processScan(context.Background(), scan.ID); err != nil {
		t.Fatalf("processScan: %v", err)
	}
	got, err := app.GetScan(scan.ID)
	if err != nil {
		t.Fatalf("get scan: %v", err)
	}
	if got.Result == nil || got.Result.Elapsed < 0 {
		t.Fatalf("elapsed not recorded: %+v", got.Result)
	}
}
