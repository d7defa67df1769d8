package domain

import "time"

type DocumentStatus string

const (
	StatusQueued     DocumentStatus = "queued"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded source file owned by an agent.
// ProcessedAt stays nil until chunking and embedding finish (or fail);
// polling callers use it as the completion signal.
type Document struct {
	ID               string         `json:"id"`
	OwnerID          string         `json:"ownerId"`
	OriginalFilename string         `json:"originalFilename"`
	MimeType         string         `json:"mimeType"`
	StorageKey       string         `json:"-"`
	Status           DocumentStatus `json:"status"`
	ErrorMessage     string         `json:"errorMessage,omitempty"`
	SizeBytes        int64          `json:"sizeBytes"`
	Active           bool           `json:"active"`
	ProcessedAt      *time.Time     `json:"processedAt,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Chunk is a bounded, overlapping window of a document's extracted text.
// Index is 0-based and contiguous within a document; it is assigned when the
// chunk is created, so concurrent embedding never reorders chunks.
// Embedding is nil until the embedder has produced a vector.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"documentId"`
	Index      int               `json:"index"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Embedding  []float32         `json:"-"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// SearchHit is a retrieved chunk with its similarity to the query.
type SearchHit struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
}

// Source points the chatbot answer back at a retrieved chunk.
type Source struct {
	Label      string  `json:"label"`
	DocumentID string  `json:"documentId"`
	ChunkIndex int     `json:"chunkIndex"`
	Snippet    string  `json:"snippet"`
	Similarity float64 `json:"similarity"`
}

// Answer is a generated chatbot response grounded in retrieved chunks.
type Answer struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Sources   []Source  `json:"sources"`
	CreatedAt time.Time `json:"createdAt"`
}
