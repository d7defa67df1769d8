package store

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type DocumentModel struct {
	ID               string `gorm:"primaryKey"`
	OwnerID          string `gorm:"not null;index"`
	OriginalFilename string `gorm:"not null"`
	MimeType         string `gorm:"not null"`
	StorageKey       string
	Status           string `gorm:"not null"`
	ErrorMessage     string
	SizeBytes        int64 `gorm:"not null"`
	Active           bool  `gorm:"not null;default:true;index"`
	ProcessedAt      *time.Time
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null"`
}

type ChunkModel struct {
	ID         string           `gorm:"primaryKey"`
	DocumentID string           `gorm:"not null;index:idx_chunk_doc_seq,priority:1"`
	Seq        int              `gorm:"not null;index:idx_chunk_doc_seq,priority:2"`
	Content    string           `gorm:"type:text;not null"`
	Metadata   datatypes.JSON   `gorm:"type:jsonb"`
	Embedding  *pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt  time.Time        `gorm:"not null;index"`
}

type ScanModel struct {
	ID               string `gorm:"primaryKey"`
	DocumentID       string `gorm:"index"`
	OriginalFilename string `gorm:"not null"`
	MimeType         string `gorm:"not null"`
	Status           string `gorm:"not null"`
	ErrorMessage     string
	Result           datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt        time.Time      `gorm:"not null;index"`
	UpdatedAt        time.Time      `gorm:"not null"`
}
