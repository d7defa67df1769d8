package store

import (
	"errors"
	"time"

	"docintel/pkg/domain"
)

// ErrNotFound indicates an unknown document, chunk, or scan reference.
var ErrNotFound = errors.New("record not found")

// Store defines persistence operations for documents, chunks, and scans.
type Store interface {
	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments() ([]domain.Document, error)
	ListDocumentsByOwner(ownerID string) ([]domain.Document, error)
	SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error
	MarkDocumentProcessed(id string, at time.Time) error
	DeactivateDocument(id string) error

	// chunks
	CreateChunks(documentID string, chunks []domain.Chunk) error
	DeleteDocumentChunks(documentID string) error
	ListChunksByDocument(documentID string) ([]domain.Chunk, error)
	SetChunkEmbedding(id string, embedding []float32) error
	// ListEmbeddedChunks returns every chunk across all active documents that
	// has a non-nil embedding, in insertion order. The retriever ranks them
	// in-process; queries issued mid-processing simply miss chunks whose
	// embeddings are not yet written.
	ListEmbeddedChunks() ([]domain.Chunk, error)

	// scans
	SaveScan(domain.Scan) error
	GetScan(id string) (domain.Scan, bool, error)
	SetScanStatus(id string, status domain.ScanStatus, errMsg string) error
	SetScanResult(id string, result domain.ScanResult) error
}
