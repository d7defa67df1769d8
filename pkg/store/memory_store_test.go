package store

import (
	"errors"
	"testing"
	"time"

	"docintel/pkg/domain"
)

func TestMemoryStoreDocumentLifecycle(t *testing.T) {
	s := NewMemoryStore()
	now := time.Now().UTC()
	doc := domain.Document{
		ID:        "doc-1",
		OwnerID:   "agent-1",
		MimeType:  "application/pdf",
		Status:    domain.StatusQueued,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveDocument(doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := s.GetDocument("doc-1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.ProcessedAt != nil {
		t.Fatal("processed timestamp should be nil while pending")
	}

	if err := s.MarkDocumentProcessed("doc-1", now); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	got, _, _ = s.GetDocument("doc-1")
	if got.ProcessedAt == nil {
		t.Fatal("expected processed timestamp")
	}

	if err := s.DeactivateDocument("doc-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	docs, err := s.ListDocuments()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("soft-deleted document still listed: %+v", docs)
	}
}

func TestMemoryStoreChunkOwnershipAndOrdering(t *testing.T) {
	s := NewMemoryStore()
	for _, id := range []string{"doc-a", "doc-b"} {
		if err := s.SaveDocument(domain.Document{ID: id, Active: true}); err != nil {
			t.Fatalf("save document: %v", err)
		}
	}
	chunks := []domain.Chunk{
		{ID: "c-2", Index: 1, Content: "second"},
		{ID: "c-1", Index: 0, Content: "first"},
	}
	if err := s.CreateChunks("doc-a", chunks); err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	if err := s.CreateChunks("doc-b", []domain.Chunk{{ID: "c-3", Index: 0, Content: "other"}}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}

	got, err := s.ListChunksByDocument("doc-a")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].Index != 0 || got[1].Index != 1 {
		t.Fatalf("chunks not in sequence order: %+v", got)
	}

	if err := s.SetChunkEmbedding("c-1", []float32{1, 0}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}
	embedded, err := s.ListEmbeddedChunks()
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	if len(embedded) != 1 || embedded[0].ID != "c-1" {
		t.Fatalf("expected only embedded chunk c-1, got %+v", embedded)
	}

	if err := s.DeleteDocumentChunks("doc-a"); err != nil {
		t.Fatalf("delete chunks: %v", err)
	}
	got, _ = s.ListChunksByDocument("doc-a")
	if len(got) != 0 {
		t.Fatalf("chunks survived delete: %+v", got)
	}
	got, _ = s.ListChunksByDocument("doc-b")
	if len(got) != 1 {
		t.Fatalf("delete removed another document's chunks: %+v", got)
	}
}

func TestMemoryStoreEmbeddedChunksSkipInactiveDocuments(t *testing.T) {
	s := NewMemoryStore()
	_ = s.SaveDocument(domain.Document{ID: "doc-a", Active: true})
	_ = s.CreateChunks("doc-a", []domain.Chunk{{ID: "c-1", Index: 0, Content: "text"}})
	_ = s.SetChunkEmbedding("c-1", []float32{1})
	_ = s.DeactivateDocument("doc-a")

	embedded, err := s.ListEmbeddedChunks()
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	if len(embedded) != 0 {
		t.Fatalf("inactive document chunks should be hidden, got %+v", embedded)
	}
}

func TestMemoryStoreScanResult(t *testing.T) {
	s := NewMemoryStore()
	scan := domain.Scan{ID: "scan-1", Status: domain.ScanReceived}
	if err := s.SaveScan(scan); err != nil {
		t.Fatalf("save scan: %v", err)
	}
	if err := s.SetScanStatus("scan-1", domain.ScanExtracting, ""); err != nil {
		t.Fatalf("set status: %v", err)
	}
	result := domain.ScanResult{DocumentID: "scan-1", TotalScore: 95, RiskTier: domain.TierLow}
	if err := s.SetScanResult("scan-1", result); err != nil {
		t.Fatalf("set result: %v", err)
	}
	got, ok, _ := s.GetScan("scan-1")
	if !ok || got.Status != domain.ScanComplete || got.Result == nil {
		t.Fatalf("unexpected scan: %+v", got)
	}
	if got.Result.TotalScore != 95 {
		t.Fatalf("result score = %d", got.Result.TotalScore)
	}

	if err := s.SetScanStatus("missing", domain.ScanFailed, "boom"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
