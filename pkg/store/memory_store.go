package store

import (
	"fmt"
	"sync"
	"time"

	"docintel/pkg/domain"
)

// MemoryStore keeps records in-process. It backs app and server tests and
// preserves the same insertion-order semantics as the Postgres store.
type MemoryStore struct {
	mu         sync.RWMutex
	documents  map[string]domain.Document
	docOrder   []string
	chunks     map[string]domain.Chunk
	chunkOrder []string
	scans      map[string]domain.Scan
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string]domain.Chunk),
		scans:     make(map[string]domain.Scan),
	}
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.documents[d.ID]; !exists {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.documents[d.ID] = d
	return nil
}

// GetDocument returns a document by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	return d, ok, nil
}

// ListDocuments returns active documents in insertion order.
func (m *MemoryStore) ListDocuments() ([]domain.Document, error) {
	return m.listDocuments(func(domain.Document) bool { return true })
}

// ListDocumentsByOwner returns active documents filtered by owner.
func (m *MemoryStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	return m.listDocuments(func(d domain.Document) bool { return d.OwnerID == ownerID })
}

func (m *MemoryStore) listDocuments(keep func(domain.Document) bool) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.docOrder))
	for _, id := range m.docOrder {
		if d, ok := m.documents[id]; ok && d.Active && keep(d) {
			res = append(res, d)
		}
	}
	return res, nil
}

// SetDocumentStatus updates status and optional error message.
func (m *MemoryStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return m.updateDocument(id, func(d *domain.Document) {
		d.Status = status
		d.ErrorMessage = errMsg
	})
}

// MarkDocumentProcessed sets the processed timestamp.
func (m *MemoryStore) MarkDocumentProcessed(id string, at time.Time) error {
	processedAt := at.UTC()
	return m.updateDocument(id, func(d *domain.Document) {
		d.ProcessedAt = &processedAt
	})
}

// DeactivateDocument clears the active flag.
func (m *MemoryStore) DeactivateDocument(id string) error {
	return m.updateDocument(id, func(d *domain.Document) {
		d.Active = false
	})
}

func (m *MemoryStore) updateDocument(id string, apply func(*domain.Document)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	apply(&d)
	d.UpdatedAt = time.Now().UTC()
	m.documents[id] = d
	return nil
}

// CreateChunks persists chunk rows.
func (m *MemoryStore) CreateChunks(documentID string, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range chunks {
		chunk.DocumentID = documentID
		if _, exists := m.chunks[chunk.ID]; !exists {
			m.chunkOrder = append(m.chunkOrder, chunk.ID)
		}
		m.chunks[chunk.ID] = chunk
	}
	return nil
}

// DeleteDocumentChunks removes all chunks owned by a document.
func (m *MemoryStore) DeleteDocumentChunks(documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.chunkOrder[:0]
	for _, id := range m.chunkOrder {
		if chunk, ok := m.chunks[id]; ok && chunk.DocumentID == documentID {
			delete(m.chunks, id)
			continue
		}
		kept = append(kept, id)
	}
	m.chunkOrder = kept
	return nil
}

// ListChunksByDocument returns chunks in sequence order.
func (m *MemoryStore) ListChunksByDocument(documentID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Chunk, 0)
	for _, id := range m.chunkOrder {
		if chunk, ok := m.chunks[id]; ok && chunk.DocumentID == documentID {
			res = append(res, chunk)
		}
	}
	for i := 1; i < len(res); i++ {
		for j := i; j > 0 && res[j].Index < res[j-1].Index; j-- {
			res[j], res[j-1] = res[j-1], res[j]
		}
	}
	return res, nil
}

// SetChunkEmbedding updates the embedding vector for a chunk.
func (m *MemoryStore) SetChunkEmbedding(id string, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk, ok := m.chunks[id]
	if !ok {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	chunk.Embedding = append([]float32(nil), embedding...)
	m.chunks[id] = chunk
	return nil
}

// ListEmbeddedChunks returns embedded chunks of active documents in
// insertion order.
func (m *MemoryStore) ListEmbeddedChunks() ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Chunk, 0, len(m.chunkOrder))
	for _, id := range m.chunkOrder {
		chunk, ok := m.chunks[id]
		if !ok || len(chunk.Embedding) == 0 {
			continue
		}
		if doc, ok := m.documents[chunk.DocumentID]; ok && !doc.Active {
			continue
		}
		res = append(res, chunk)
	}
	return res, nil
}

// SaveScan stores or replaces a scan record.
func (m *MemoryStore) SaveScan(scan domain.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[scan.ID] = scan
	return nil
}

// GetScan returns a scan by ID.
func (m *MemoryStore) GetScan(id string) (domain.Scan, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	scan, ok := m.scans[id]
	return scan, ok, nil
}

// SetScanStatus updates scan status/error.
func (m *MemoryStore) SetScanStatus(id string, status domain.ScanStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[id]
	if !ok {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	scan.Status = status
	scan.ErrorMessage = errMsg
	scan.UpdatedAt = time.Now().UTC()
	m.scans[id] = scan
	return nil
}

// SetScanResult records the compiled result and marks the scan complete.
func (m *MemoryStore) SetScanResult(id string, result domain.ScanResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	scan, ok := m.scans[id]
	if !ok {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	scan.Status = domain.ScanComplete
	scan.ErrorMessage = ""
	scan.Result = &result
	scan.UpdatedAt = time.Now().UTC()
	m.scans[id] = scan
	return nil
}
