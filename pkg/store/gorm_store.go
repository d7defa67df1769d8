package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"docintel/pkg/domain"
)

const migrateLockID int64 = 84128412

const (
	defaultEmbeddingDim      = 768
	canonicalEmbeddingDimEnv = "DOCINTEL_EMBEDDING_DIM"
)

type GormStoreOptions struct {
	EmbeddingDim int
}

type GormStoreOption func(*GormStoreOptions)

// WithEmbeddingDim sets the canonical embedding dimension used by storage.
func WithEmbeddingDim(dim int) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.EmbeddingDim = dim
	}
}

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db           *gorm.DB
	embeddingDim int
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	embeddingDim, err := resolveEmbeddingDim(opts.EmbeddingDim)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return fmt.Errorf("create pgvector extension: %w", err)
		}
		if err := tx.AutoMigrate(&DocumentModel{}, &ChunkModel{}, &ScanModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(fmt.Sprintf(`
			DO $$
			BEGIN
			IF EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_name = 'chunk_models' AND column_name = 'embedding'
			) THEN
				ALTER TABLE chunk_models ALTER COLUMN embedding TYPE vector(%d);
			END IF;
			END $$;
		`, embeddingDim)).Error; err != nil {
			return fmt.Errorf("alter chunk embedding type: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				DELETE FROM chunk_models c
				WHERE NOT EXISTS (SELECT 1 FROM document_models d WHERE d.id = c.document_id);
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'chunk_models'
					AND constraint_name = 'chunk_models_document_id_fkey'
				) THEN
					ALTER TABLE chunk_models
					ADD CONSTRAINT chunk_models_document_id_fkey
					FOREIGN KEY (document_id) REFERENCES document_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure document foreign keys: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db, embeddingDim: embeddingDim}, nil
}

func resolveEmbeddingDim(configValue int) (int, error) {
	if configValue > 0 {
		return configValue, nil
	}
	raw := strings.TrimSpace(os.Getenv(canonicalEmbeddingDimEnv))
	if raw == "" {
		return defaultEmbeddingDim, nil
	}
	dim, err := strconv.Atoi(raw)
	if err != nil || dim <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", canonicalEmbeddingDimEnv, raw)
	}
	return dim, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"owner_id", "original_filename", "mime_type", "storage_key", "status", "error_message", "size_bytes", "active", "processed_at", "updated_at"}),
	}).Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns all active documents ordered by created_at.
func (s *GormStore) ListDocuments() ([]domain.Document, error) {
	return s.listDocuments("active = ?", true)
}

// ListDocumentsByOwner returns active documents filtered by owner.
func (s *GormStore) ListDocumentsByOwner(ownerID string) ([]domain.Document, error) {
	return s.listDocuments("active = ? AND owner_id = ?", true, ownerID)
}

func (s *GormStore) listDocuments(cond string, args ...any) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where(cond, args...).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// SetDocumentStatus updates document status/error.
func (s *GormStore) SetDocumentStatus(id string, status domain.DocumentStatus, errMsg string) error {
	return s.updateDocument(id, map[string]any{
		"status":        string(status),
		"error_message": errMsg,
	})
}

// MarkDocumentProcessed sets the processed timestamp, the completion signal
// polling callers watch.
func (s *GormStore) MarkDocumentProcessed(id string, at time.Time) error {
	return s.updateDocument(id, map[string]any{
		"processed_at": at.UTC(),
	})
}

// DeactivateDocument soft-deletes a document by clearing its active flag.
func (s *GormStore) DeactivateDocument(id string) error {
	return s.updateDocument(id, map[string]any{
		"active": false,
	})
}

func (s *GormStore) updateDocument(id string, updates map[string]any) error {
	updates["updated_at"] = time.Now().UTC()
	tx := s.db.Model(&DocumentModel{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateChunks persists chunk rows in batch. Sequence indices come from the
// chunk values themselves; they are assigned at creation time.
func (s *GormStore) CreateChunks(documentID string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]ChunkModel, 0, len(chunks))
	for _, chunk := range chunks {
		model := chunkToModel(chunk)
		model.DocumentID = documentID
		models = append(models, model)
	}
	return s.db.CreateInBatches(&models, 200).Error
}

// DeleteDocumentChunks removes all chunks owned by a document.
func (s *GormStore) DeleteDocumentChunks(documentID string) error {
	return s.db.Delete(&ChunkModel{}, "document_id = ?", documentID).Error
}

// ListChunksByDocument returns chunks for a document in sequence order.
func (s *GormStore) ListChunksByDocument(documentID string) ([]domain.Chunk, error) {
	var models []ChunkModel
	if err := s.db.Where("document_id = ?", documentID).Order("seq ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, model := range models {
		chunks = append(chunks, chunkFromModel(model))
	}
	return chunks, nil
}

// SetChunkEmbedding updates the embedding vector for a chunk.
func (s *GormStore) SetChunkEmbedding(id string, embedding []float32) error {
	if err := s.validateEmbeddingDim(embedding); err != nil {
		return err
	}
	tx := s.db.Model(&ChunkModel{}).Where("id = ?", id).
		Update("embedding", pgvector.NewVector(embedding))
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("chunk %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListEmbeddedChunks returns all embedded chunks of active documents in
// insertion order.
func (s *GormStore) ListEmbeddedChunks() ([]domain.Chunk, error) {
	var models []ChunkModel
	if err := s.db.
		Joins("JOIN document_models ON document_models.id = chunk_models.document_id AND document_models.active").
		Where("chunk_models.embedding IS NOT NULL").
		Order("chunk_models.created_at ASC, chunk_models.document_id ASC, chunk_models.seq ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, 0, len(models))
	for _, model := range models {
		chunks = append(chunks, chunkFromModel(model))
	}
	return chunks, nil
}

func (s *GormStore) validateEmbeddingDim(embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("embedding vector is empty")
	}
	if s.embeddingDim > 0 && len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(embedding), s.embeddingDim)
	}
	return nil
}

// SaveScan stores or updates a scan record.
func (s *GormStore) SaveScan(scan domain.Scan) error {
	model, err := scanToModel(scan)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"document_id", "original_filename", "mime_type", "status", "error_message", "result", "updated_at"}),
	}).Create(&model).Error
}

// GetScan retrieves a scan record.
func (s *GormStore) GetScan(id string) (domain.Scan, bool, error) {
	var model ScanModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Scan{}, false, nil
		}
		return domain.Scan{}, false, err
	}
	scan, err := scanFromModel(model)
	if err != nil {
		return domain.Scan{}, false, err
	}
	return scan, true, nil
}

// SetScanStatus updates scan status/error.
func (s *GormStore) SetScanStatus(id string, status domain.ScanStatus, errMsg string) error {
	tx := s.db.Model(&ScanModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(status),
		"error_message": errMsg,
		"updated_at":    time.Now().UTC(),
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetScanResult records the compiled result and marks the scan complete.
func (s *GormStore) SetScanResult(id string, result domain.ScanResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal scan result: %w", err)
	}
	tx := s.db.Model(&ScanModel{}).Where("id = ?", id).Updates(map[string]any{
		"status":        string(domain.ScanComplete),
		"error_message": "",
		"result":        datatypes.JSON(raw),
		"updated_at":    time.Now().UTC(),
	})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	return nil
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:               d.ID,
		OwnerID:          d.OwnerID,
		OriginalFilename: d.OriginalFilename,
		MimeType:         d.MimeType,
		StorageKey:       d.StorageKey,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		SizeBytes:        d.SizeBytes,
		Active:           d.Active,
		ProcessedAt:      d.ProcessedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:               m.ID,
		OwnerID:          m.OwnerID,
		OriginalFilename: m.OriginalFilename,
		MimeType:         m.MimeType,
		StorageKey:       m.StorageKey,
		Status:           domain.DocumentStatus(m.Status),
		ErrorMessage:     m.ErrorMessage,
		SizeBytes:        m.SizeBytes,
		Active:           m.Active,
		ProcessedAt:      m.ProcessedAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func chunkToModel(chunk domain.Chunk) ChunkModel {
	meta, _ := json.Marshal(chunk.Metadata)
	model := ChunkModel{
		ID:         chunk.ID,
		DocumentID: chunk.DocumentID,
		Seq:        chunk.Index,
		Content:    chunk.Content,
		Metadata:   meta,
		CreatedAt:  chunk.CreatedAt,
	}
	if len(chunk.Embedding) > 0 {
		vec := pgvector.NewVector(chunk.Embedding)
		model.Embedding = &vec
	}
	return model
}

func chunkFromModel(model ChunkModel) domain.Chunk {
	var meta map[string]string
	if len(model.Metadata) > 0 {
		_ = json.Unmarshal(model.Metadata, &meta)
	}
	chunk := domain.Chunk{
		ID:         model.ID,
		DocumentID: model.DocumentID,
		Index:      model.Seq,
		Content:    model.Content,
		Metadata:   meta,
		CreatedAt:  model.CreatedAt,
	}
	if model.Embedding != nil {
		chunk.Embedding = model.Embedding.Slice()
	}
	return chunk
}

func scanToModel(scan domain.Scan) (ScanModel, error) {
	model := ScanModel{
		ID:               scan.ID,
		DocumentID:       scan.DocumentID,
		OriginalFilename: scan.OriginalFilename,
		MimeType:         scan.MimeType,
		Status:           string(scan.Status),
		ErrorMessage:     scan.ErrorMessage,
		CreatedAt:        scan.CreatedAt,
		UpdatedAt:        scan.UpdatedAt,
	}
	if scan.Result != nil {
		raw, err := json.Marshal(scan.Result)
		if err != nil {
			return ScanModel{}, fmt.Errorf("marshal scan result: %w", err)
		}
		model.Result = raw
	}
	return model, nil
}

func scanFromModel(model ScanModel) (domain.Scan, error) {
	scan := domain.Scan{
		ID:               model.ID,
		DocumentID:       model.DocumentID,
		OriginalFilename: model.OriginalFilename,
		MimeType:         model.MimeType,
		Status:           domain.ScanStatus(model.Status),
		ErrorMessage:     model.ErrorMessage,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
	if len(model.Result) > 0 {
		var result domain.ScanResult
		if err := json.Unmarshal(model.Result, &result); err != nil {
			return domain.Scan{}, fmt.Errorf("unmarshal scan result: %w", err)
		}
		scan.Result = &result
	}
	return scan, nil
}
