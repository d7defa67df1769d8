package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"docintel/internal/util"
	"docintel/pkg/ai"
	"docintel/pkg/domain"
	"docintel/pkg/extract"
	"docintel/pkg/queue"
	"docintel/pkg/storage"
	"docintel/pkg/store"
)

const defaultSearchLimit = 5

const assistSystemPrompt = `You are a support assistant for insurance, credit, and real-estate agents.
Answer the question using ONLY the numbered context passages below. Cite the
passages you used as [1], [2], ... in the answer. If the context does not
contain the answer, say so plainly instead of guessing.`

// Config holds runtime configuration for the knowledge-base app.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Objects     storage.ObjectStore
	Extractor   extract.Extractor
	Embedder    ai.Embedder
	Generator   ai.TextGenerator

	RedisAddr              string
	RedisPassword          string
	QueueName              string
	QueueGroup             string
	QueueConcurrency       int
	QueueMaxRetries        int
	QueueRetryDelaySeconds int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	ChunkSize            int
	ChunkOverlap         int
	OCRCommand           string
	OCRTimeoutSeconds    int
	EmbeddingProvider    string
	EmbeddingBaseURL     string
	EmbeddingModel       string
	EmbeddingDim         int
	EmbeddingConcurrency int
	GeminiAPIKey         string
	GenerationProvider   string
	GenerationBaseURL    string
	GenerationAPIKey     string
	GenerationModel      string
	SearchLimit          int
}

// App runs the document pipeline: intake, chunking, embedding, retrieval,
// and grounded answering.
type App struct {
	store            store.Store
	objects          storage.ObjectStore
	extractor        extract.Extractor
	embedder         ai.Embedder
	generator        ai.TextGenerator
	queue            *queue.RedisJobQueue
	chunkSize        int
	chunkOverlap     int
	embedConcurrency int
	searchLimit      int
}

// New constructs the knowledge-base service with persistence, object storage,
// and queue workers started.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	objects := cfg.Objects
	if objects == nil {
		var err error
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			return nil, fmt.Errorf("init object store: %w", err)
		}
	}
	extractor := cfg.Extractor
	if extractor == nil {
		extractor = extract.NewFileExtractor(extract.Config{
			OCRCommand: cfg.OCRCommand,
			OCRTimeout: time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
		})
	}
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size required")
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunkSize)")
	}
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     defaultQueueName(cfg.QueueName),
		Group:      defaultQueueGroup(cfg.QueueGroup),
		Consumer:   util.NewID(),
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: time.Duration(cfg.QueueRetryDelaySeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	app := &App{
		store:            dataStore,
		objects:          objects,
		extractor:        extractor,
		embedder:         embedder,
		generator:        generator,
		queue:            q,
		chunkSize:        cfg.ChunkSize,
		chunkOverlap:     cfg.ChunkOverlap,
		embedConcurrency: cfg.EmbeddingConcurrency,
		searchLimit:      cfg.SearchLimit,
	}
	app.startWorkers(cfg.QueueConcurrency)
	return app, nil
}

func buildEmbedder(cfg Config) (ai.Embedder, error) {
	if cfg.Embedder != nil {
		return cfg.Embedder, nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.EmbeddingProvider))
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "ollama":
		if cfg.EmbeddingDim <= 0 {
			return nil, fmt.Errorf("embedding dim required for ollama")
		}
		client := ai.NewOllamaClient(cfg.EmbeddingBaseURL)
		return ai.NewOllamaEmbedder(client, cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key required")
		}
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiEmbedder(client, cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}

func buildGenerator(cfg Config) (ai.TextGenerator, error) {
	if cfg.Generator != nil {
		return cfg.Generator, nil
	}
	provider := strings.ToLower(strings.TrimSpace(cfg.GenerationProvider))
	if provider == "" {
		provider = "gemini"
	}
	switch provider {
	case "ollama":
		client := ai.NewOllamaClient(cfg.GenerationBaseURL)
		return ai.NewOllamaGenerator(client, cfg.GenerationModel), nil
	case "openai":
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel), nil
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini api key required")
		}
		client, err := ai.NewGeminiClient(cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider: %s", provider)
	}
}

func (a *App) startWorkers(concurrency int) {
	ctx := context.Background()
	a.queue.Start(ctx, concurrency, func(ctx context.Context, job queue.JobStatus) error {
		return a.processDocument(ctx, job.RefID)
	})
}

// CreateDocument stores the upload, registers the document as queued, and
// enqueues the processing job. It returns before any extraction happens;
// callers poll the document status.
func (a *App) CreateDocument(ctx context.Context, ownerID, filename, mimeType string, size int64, r io.Reader) (domain.Document, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Document{}, fmt.Errorf("%w: filename required", ErrInvalidRequest)
	}
	if strings.TrimSpace(mimeType) == "" {
		return domain.Document{}, fmt.Errorf("%w: mime type required", ErrInvalidRequest)
	}
	now := time.Now().UTC()
	doc := domain.Document{
		ID:               util.NewID(),
		OwnerID:          strings.TrimSpace(ownerID),
		OriginalFilename: filename,
		MimeType:         mimeType,
		Status:           domain.StatusQueued,
		SizeBytes:        size,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	doc.StorageKey = "documents/" + doc.ID
	if err := a.objects.Put(ctx, doc.StorageKey, r, size, mimeType); err != nil {
		return domain.Document{}, fmt.Errorf("store upload: %w", err)
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, err
	}
	if _, err := a.queue.Enqueue(ctx, doc.ID); err != nil {
		_ = a.store.SetDocumentStatus(doc.ID, domain.StatusFailed, err.Error())
		return domain.Document{}, fmt.Errorf("enqueue processing: %w", err)
	}
	return doc, nil
}

// GetDocument returns an active document.
func (a *App) GetDocument(id string) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if !ok || !doc.Active {
		return domain.Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// ListDocuments returns active documents, optionally filtered by owner.
func (a *App) ListDocuments(ownerID string) ([]domain.Document, error) {
	if strings.TrimSpace(ownerID) != "" {
		return a.store.ListDocumentsByOwner(ownerID)
	}
	return a.store.ListDocuments()
}

// DeleteDocument soft-deletes the document, removes its chunks, and deletes
// the stored upload best-effort.
func (a *App) DeleteDocument(ctx context.Context, id string) error {
	doc, err := a.GetDocument(id)
	if err != nil {
		return err
	}
	if err := a.store.DeactivateDocument(id); err != nil {
		return err
	}
	if err := a.store.DeleteDocumentChunks(id); err != nil {
		return err
	}
	if doc.StorageKey != "" {
		if err := a.objects.Delete(ctx, doc.StorageKey); err != nil {
			slog.Warn("delete stored upload failed", "documentId", id, "err", err)
		}
	}
	return nil
}

// Reprocess re-runs the extraction pipeline for an existing document.
func (a *App) Reprocess(ctx context.Context, id string) (domain.Document, error) {
	doc, err := a.GetDocument(id)
	if err != nil {
		return domain.Document{}, err
	}
	if err := a.store.SetDocumentStatus(id, domain.StatusQueued, ""); err != nil {
		return domain.Document{}, err
	}
	if _, err := a.queue.Enqueue(ctx, id); err != nil {
		return domain.Document{}, fmt.Errorf("enqueue processing: %w", err)
	}
	doc.Status = domain.StatusQueued
	doc.ErrorMessage = ""
	return doc, nil
}

// processDocument runs the pipeline for one queued document: fetch the
// upload, extract text, chunk, persist chunks, embed. A chunk whose embedding
// fails is logged and skipped; its embedding column stays empty and the
// document still completes.
func (a *App) processDocument(ctx context.Context, documentID string) error {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if !ok || !doc.Active {
		// Deleted between enqueue and pickup; nothing to do.
		return nil
	}
	if err := a.store.SetDocumentStatus(documentID, domain.StatusProcessing, ""); err != nil {
		return err
	}

	path, cleanup, err := a.fetchToTempFile(ctx, doc)
	if err != nil {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, err.Error())
		return err
	}
	defer cleanup()

	text, err := a.extractor.ExtractText(ctx, path, doc.MimeType)
	if err != nil {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, err.Error())
		return err
	}
	pieces := splitChunks(text, a.chunkSize, a.chunkOverlap)
	if len(pieces) == 0 {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, ErrEmptyDocument.Error())
		return ErrEmptyDocument
	}

	if err := a.store.DeleteDocumentChunks(documentID); err != nil {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, err.Error())
		return err
	}
	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, content := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:         util.NewID(),
			DocumentID: documentID,
			Index:      i,
			Content:    content,
			CreatedAt:  now,
		})
	}
	if err := a.store.CreateChunks(documentID, chunks); err != nil {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, err.Error())
		return err
	}

	if err := a.embedChunks(ctx, chunks); err != nil {
		_ = a.store.SetDocumentStatus(documentID, domain.StatusFailed, err.Error())
		return err
	}

	if err := a.store.MarkDocumentProcessed(documentID, time.Now().UTC()); err != nil {
		return err
	}
	return a.store.SetDocumentStatus(documentID, domain.StatusReady, "")
}

// fetchToTempFile copies the stored upload to a local temp file for the
// extractor. The returned cleanup runs on every exit path of the caller.
func (a *App) fetchToTempFile(ctx context.Context, doc domain.Document) (string, func(), error) {
	obj, err := a.objects.Get(ctx, doc.StorageKey)
	if err != nil {
		return "", nil, fmt.Errorf("fetch upload: %w", err)
	}
	defer obj.Close()
	tmp, err := os.CreateTemp("", "docintel-*"+sanitizeExt(doc.OriginalFilename))
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, obj); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("copy upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("close temp file: %w", err)
	}
	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}

func sanitizeExt(filename string) string {
	i := strings.LastIndex(filename, ".")
	if i < 0 {
		return ""
	}
	ext := filename[i:]
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

func (a *App) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	concurrency := a.embedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, chunk := range chunks {
		c := chunk
		g.Go(func() error {
			embedding, err := a.embedder.EmbedText(gctx, c.Content, "RETRIEVAL_DOCUMENT")
			if err != nil {
				// Skipped chunks keep a NULL embedding and fall out of
				// retrieval until the document is reprocessed.
				slog.Warn("chunk embedding failed, skipping",
					"documentId", c.DocumentID, "chunkIndex", c.Index, "err", err)
				return nil
			}
			return a.store.SetChunkEmbedding(c.ID, embedding)
		})
	}
	return g.Wait()
}

// Search embeds the query and ranks all embedded chunks by cosine similarity.
func (a *App) Search(ctx context.Context, query string, limit int) ([]domain.SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query required", ErrInvalidRequest)
	}
	if limit <= 0 {
		limit = a.searchLimit
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	queryEmbedding, err := a.embedder.EmbedText(ctx, query, "RETRIEVAL_QUERY")
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	chunks, err := a.store.ListEmbeddedChunks()
	if err != nil {
		return nil, err
	}
	return rankChunks(queryEmbedding, chunks, limit), nil
}

// Assist answers a question grounded in the top retrieved chunks.
func (a *App) Assist(ctx context.Context, question string, limit int) (domain.Answer, error) {
	hits, err := a.Search(ctx, question, limit)
	if err != nil {
		return domain.Answer{}, err
	}
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nContext passages:\n")
	sources := make([]domain.Source, 0, len(hits))
	for i, hit := range hits {
		fmt.Fprintf(&sb, "\n[%d] %s\n", i+1, hit.Chunk.Content)
		sources = append(sources, domain.Source{
			Label:      fmt.Sprintf("[%d]", i+1),
			DocumentID: hit.Chunk.DocumentID,
			ChunkIndex: hit.Chunk.Index,
			Snippet:    snippet(hit.Chunk.Content, 200),
			Similarity: hit.Similarity,
		})
	}
	if len(hits) == 0 {
		sb.WriteString("\n(no relevant passages found)\n")
	}
	answer, err := a.generator.GenerateText(ctx, assistSystemPrompt, sb.String())
	if err != nil {
		return domain.Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	return domain.Answer{
		Question:  question,
		Answer:    strings.TrimSpace(answer),
		Sources:   sources,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func snippet(text string, limit int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit]) + "…"
}

// IsNotFound reports whether err means a missing record at any layer.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDocumentNotFound) || errors.Is(err, store.ErrNotFound)
}

func defaultQueueName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "docintel:kb"
	}
	return name
}

func defaultQueueGroup(name string) string {
	if strings.TrimSpace(name) == "" {
		return "kb"
	}
	return name
}
