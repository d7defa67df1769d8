package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"docintel/internal/util"
	"docintel/pkg/ai"
	"docintel/pkg/domain"
	"docintel/pkg/extract"
	"docintel/pkg/queue"
	"docintel/pkg/storage"
	"docintel/pkg/store"
)

// Config holds runtime configuration for the scanner app.
type Config struct {
	DatabaseURL string
	Store       store.Store
	Objects     storage.ObjectStore
	Extractor   extract.Extractor
	Analyzer    ai.StructuralAnalyzer

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

	OCRCommand         string
	OCRTimeoutSeconds  int
	GeminiAPIKey       string
	GenerationProvider string
	GenerationBaseURL  string
	GenerationAPIKey   string
	GenerationModel    string
}

// App runs document-risk scans: intake, the orchestrator state machine, and
// result persistence.
type App struct {
	store     store.Store
	objects   storage.ObjectStore
	extractor extract.Extractor
	analyzer  ai.StructuralAnalyzer
	queue     *queue.RedisJobQueue
	tmpDir    string
}

// New constructs the scanner service with persistence, object storage, and
// queue workers started.
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
	analyzer := cfg.Analyzer
	if analyzer == nil {
		generator, err := buildGenerator(cfg)
		if err != nil {
			return nil, err
		}
		analyzer = ai.NewLLMAnalyzer(generator)
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
		store:     dataStore,
		objects:   objects,
		extractor: extractor,
		analyzer:  analyzer,
		queue:     q,
	}
	app.startWorkers(cfg.QueueConcurrency)
	return app, nil
}

func buildGenerator(cfg Config) (ai.TextGenerator, error) {
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
		return a.processScan(ctx, job.RefID)
	})
}

// CreateScan stores the upload, registers the scan as received, and enqueues
// the scan job. Intake returns immediately; callers poll GET /scans/{id}.
func (a *App) CreateScan(ctx context.Context, documentID, filename, mimeType string, size int64, r io.Reader) (domain.Scan, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Scan{}, fmt.Errorf("%w: filename required", ErrInvalidRequest)
	}
	if strings.TrimSpace(mimeType) == "" {
		return domain.Scan{}, fmt.Errorf("%w: mime type required", ErrInvalidRequest)
	}
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		documentID = util.NewID()
	}
	now := time.Now().UTC()
	scan := domain.Scan{
		ID:               util.NewID(),
		DocumentID:       documentID,
		OriginalFilename: filename,
		MimeType:         mimeType,
		Status:           domain.ScanReceived,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := a.objects.Put(ctx, scanStorageKey(scan.ID), r, size, mimeType); err != nil {
		return domain.Scan{}, fmt.Errorf("store upload: %w", err)
	}
	if err := a.store.SaveScan(scan); err != nil {
		return domain.Scan{}, err
	}
	if _, err := a.queue.Enqueue(ctx, scan.ID); err != nil {
		_ = a.store.SetScanStatus(scan.ID, domain.ScanFailed, err.Error())
		return domain.Scan{}, fmt.Errorf("enqueue scan: %w", err)
	}
	return scan, nil
}

// GetScan returns a scan with its result when complete.
func (a *App) GetScan(id string) (domain.Scan, error) {
	scan, ok, err := a.store.GetScan(id)
	if err != nil {
		return domain.Scan{}, err
	}
	if !ok {
		return domain.Scan{}, ErrScanNotFound
	}
	return scan, nil
}

// processScan drives one scan through extracting, analyzing, and compiling.
// The temp file holding the upload is removed on every exit path; a result is
// persisted only when the scan completes.
func (a *App) processScan(ctx context.Context, scanID string) error {
	scan, ok, err := a.store.GetScan(scanID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("scan %s: %w", scanID, store.ErrNotFound)
	}
	started := time.Now()

	if err := a.store.SetScanStatus(scanID, domain.ScanExtracting, ""); err != nil {
		return err
	}
	path, cleanup, err := a.fetchToTempFile(ctx, scan)
	if err != nil {
		_ = a.store.SetScanStatus(scanID, domain.ScanFailed, err.Error())
		return err
	}
	defer cleanup()

	text, err := a.extractor.ExtractText(ctx, path, scan.MimeType)
	if err != nil {
		_ = a.store.SetScanStatus(scanID, domain.ScanFailed, err.Error())
		return err
	}

	if err := a.store.SetScanStatus(scanID, domain.ScanAnalyzing, ""); err != nil {
		return err
	}
	analysis, err := a.analyzer.Analyze(ctx, text)
	if err != nil {
		_ = a.store.SetScanStatus(scanID, domain.ScanFailed, err.Error())
		return err
	}

	if err := a.store.SetScanStatus(scanID, domain.ScanCompiling, ""); err != nil {
		return err
	}
	result := compileScore(scan.DocumentID, analysis)
	result.Elapsed = time.Since(started)

	if err := a.store.SetScanResult(scanID, result); err != nil {
		_ = a.store.SetScanStatus(scanID, domain.ScanFailed, err.Error())
		return err
	}
	return a.store.SetScanStatus(scanID, domain.ScanComplete, "")
}

func (a *App) fetchToTempFile(ctx context.Context, scan domain.Scan) (string, func(), error) {
	obj, err := a.objects.Get(ctx, scanStorageKey(scan.ID))
	if err != nil {
		return "", nil, fmt.Errorf("fetch upload: %w", err)
	}
	defer obj.Close()
	tmp, err := os.CreateTemp(a.tmpDir, "docintel-scan-*")
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

func scanStorageKey(scanID string) string {
	return "scans/" + scanID
}

func defaultQueueName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "docintel:scanner"
	}
	return name
}

func defaultQueueGroup(name string) string {
	if strings.TrimSpace(name) == "" {
		return "scanner"
	}
	return name
}
