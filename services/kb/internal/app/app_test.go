package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"docintel/internal/util"
	"docintel/pkg/ai"
	"docintel/pkg/domain"
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

type fakeEmbedder struct {
	failSubstring string
	vector        []float32
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text, _ string) ([]float32, error) {
	if f.failSubstring != "" && strings.Contains(text, f.failSubstring) {
		return nil, fmt.Errorf("%w: provider rejected input", ai.ErrEmbeddingUnavailable)
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float32{1, 0, 0}, nil
}

type fakeGenerator struct {
	lastSystem string
	lastUser   string
	reply      string
}

func (f *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.reply, nil
}

func newTestApp(extractor *fakeExtractor, embedder *fakeEmbedder) (*App, *store.MemoryStore, *memObjects) {
	mem := store.NewMemoryStore()
	objects := newMemObjects()
	return &App{
		store:            mem,
		objects:          objects,
		extractor:        extractor,
		embedder:         embedder,
		generator:        &fakeGenerator{reply: "answer"},
		chunkSize:        20,
		chunkOverlap:     4,
		embedConcurrency: 2,
		searchLimit:      5,
	}, mem, objects
}

func seedDocument(t *testing.T, mem *store.MemoryStore, objects *memObjects) domain.Document {
	t.Helper()
	now := time.Now().UTC()
	doc := domain.Document{
		ID:               util.NewID(),
		OwnerID:          "agent-7",
		OriginalFilename: "statement.txt",
		MimeType:         "text/plain",
		StorageKey:       "documents/test",
		Status:           domain.StatusQueued,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := objects.Put(context.Background(), doc.StorageKey, strings.NewReader("raw upload"), 10, doc.MimeType); err != nil {
		t.Fatalf("seed object: %v", err)
	}
	if err := mem.SaveDocument(doc); err != nil {
		t.Fatalf("seed document: %v", err)
	}
	return doc
}

func TestProcessDocumentEmbedsChunks(t *testing.T) {
	extractor := &fakeExtractor{text: "alpha bravo charlie delta echo foxtrot golf hotel"}
	app, mem, objects := newTestApp(extractor, &fakeEmbedder{})
	doc := seedDocument(t, mem, objects)

	if err := app.processDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("processDocument: %v", err)
	}

	got, _, err := mem.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != domain.StatusReady {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusReady)
	}
	if got.ProcessedAt == nil {
		t.Fatalf("processedAt not set")
	}

	chunks, err := mem.ListChunksByDocument(doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("no chunks created")
	}
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Fatalf("chunk %d has index %d, want contiguous 0-based indices", i, chunk.Index)
		}
		if len(chunk.Embedding) == 0 {
			t.Fatalf("chunk %d not embedded", i)
		}
	}
}

func TestProcessDocumentSkipsFailedEmbeddings(t *testing.T) {
	extractor := &fakeExtractor{text: "alpha bravo charlie delta echo foxtrot golf hotel"}
	app, mem, objects := newTestApp(extractor, &fakeEmbedder{failSubstring: "charlie"})
	doc := seedDocument(t, mem, objects)

	if err := app.processDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("processDocument: %v", err)
	}

	got, _, err := mem.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != domain.StatusReady {
		t.Fatalf("status = %s, want %s (embed failures must not fail the document)", got.Status, domain.StatusReady)
	}

	chunks, err := mem.ListChunksByDocument(doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	var skipped, embedded int
	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			skipped++
		} else {
			embedded++
		}
	}
	if skipped == 0 {
		t.Fatalf("expected at least one skipped chunk")
	}
	if embedded == 0 {
		t.Fatalf("expected surviving embedded chunks")
	}

	retrievable, err := mem.ListEmbeddedChunks()
	if err != nil {
		t.Fatalf("list embedded: %v", err)
	}
	if len(retrievable) != embedded {
		t.Fatalf("retrievable = %d, want %d", len(retrievable), embedded)
	}
}

func TestProcessDocumentExtractionFailureMarksFailed(t *testing.T) {
	extractor := &fakeExtractor{err: fmt.Errorf("pdftotext crashed")}
	app, mem, objects := newTestApp(extractor, &fakeEmbedder{})
	doc := seedDocument(t, mem, objects)

	if err := app.processDocument(context.Background(), doc.ID); err == nil {
		t.Fatalf("expected processDocument to fail")
	}

	got, _, err := mem.GetDocument(doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusFailed)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("error message not recorded")
	}
	chunks, err := mem.ListChunksByDocument(doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks after failed extraction, got %d", len(chunks))
	}
}

func TestProcessDocumentSkipsDeletedDocument(t *testing.T) {
	extractor := &fakeExtractor{text: "text"}
	app, mem, objects := newTestApp(extractor, &fakeEmbedder{})
	doc := seedDocument(t, mem, objects)
	if err := mem.DeactivateDocument(doc.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	if err := app.processDocument(context.Background(), doc.ID); err != nil {
		t.Fatalf("processDocument on deleted document should be a no-op, got %v", err)
	}
	chunks, err := mem.ListChunksByDocument(doc.ID)
	if err != nil {
		t.Fatalf("list chunks: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("deleted document must not gain chunks")
	}
}

func TestSearchRanksEmbeddedChunks(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	app, mem, _ := newTestApp(&fakeExtractor{}, embedder)

	doc := domain.Document{ID: "doc-1", Status: domain.StatusReady, Active: true}
	if err := mem.SaveDocument(doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	chunks := []domain.Chunk{
		{ID: "c0", DocumentID: doc.ID, Index: 0, Content: "renewal quota", Embedding: []float32{0, 1, 0}},
		{ID: "c1", DocumentID: doc.ID, Index: 1, Content: "premium schedule", Embedding: []float32{1, 0.1, 0}},
		{ID: "c2", DocumentID: doc.ID, Index: 2, Content: "claim history", Embedding: []float32{0.9, 0.9, 0}},
	}
	if err := mem.CreateChunks(doc.ID, chunks); err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	for _, c := range chunks {
		if err := mem.SetChunkEmbedding(c.ID, c.Embedding); err != nil {
			t.Fatalf("set embedding: %v", err)
		}
	}

	hits, err := app.Search(context.Background(), "premium", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].Chunk.ID != "c1" {
		t.Fatalf("top hit = %s, want c1", hits[0].Chunk.ID)
	}
}

func TestSearchPropagatesEmbedderOutage(t *testing.T) {
	embedder := &fakeEmbedder{failSubstring: "premium"}
	app, _, _ := newTestApp(&fakeExtractor{}, embedder)

	_, err := app.Search(context.Background(), "premium", 3)
	if err == nil {
		t.Fatalf("expected error when query embedding fails")
	}
	if !strings.Contains(err.Error(), ai.ErrEmbeddingUnavailable.Error()) {
		t.Fatalf("error %q does not wrap embedding unavailability", err)
	}
}

func TestAssistCitesRetrievedSources(t *testing.T) {
	embedder := &fakeEmbedder{vector: []float32{1, 0, 0}}
	app, mem, _ := newTestApp(&fakeExtractor{}, embedder)
	gen := &fakeGenerator{reply: "Premiums renew quarterly [1]."}
	app.generator = gen

	doc := domain.Document{ID: "doc-1", Status: domain.StatusReady, Active: true}
	if err := mem.SaveDocument(doc); err != nil {
		t.Fatalf("save document: %v", err)
	}
	chunk := domain.Chunk{ID: "c0", DocumentID: doc.ID, Index: 0, Content: "Premiums renew quarterly."}
	if err := mem.CreateChunks(doc.ID, []domain.Chunk{chunk}); err != nil {
		t.Fatalf("create chunks: %v", err)
	}
	if err := mem.SetChunkEmbedding(chunk.ID, []float32{1, 0, 0}); err != nil {
		t.Fatalf("set embedding: %v", err)
	}

	answer, err := app.Assist(context.Background(), "When do premiums renew?", 3)
	if err != nil {
		t.Fatalf("assist: %v", err)
	}
	if answer.Answer == "" {
		t.Fatalf("empty answer")
	}
	if len(answer.Sources) != 1 {
		t.Fatalf("got %d sources, want 1", len(answer.Sources))
	}
	if answer.Sources[0].DocumentID != doc.ID || answer.Sources[0].ChunkIndex != 0 {
		t.Fatalf("unexpected source: %+v", answer.Sources[0])
	}
	if !strings.Contains(gen.lastUser, "[1] Premiums renew quarterly.") {
		t.Fatalf("prompt missing numbered passage: %q", gen.lastUser)
	}
}
