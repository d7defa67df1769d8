package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"docintel/internal/ratelimit"
	"docintel/internal/servicetoken"
	"docintel/internal/util"
	"docintel/services/kb/internal/app"
	"docintel/services/kb/internal/config"
	"docintel/services/kb/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	appCore, err := app.New(app.Config{
		DatabaseURL:            cfg.DatabaseURL,
		RedisAddr:              cfg.RedisAddr,
		RedisPassword:          cfg.RedisPassword,
		QueueName:              cfg.QueueName,
		QueueGroup:             cfg.QueueGroup,
		QueueConcurrency:       cfg.QueueConcurrency,
		QueueMaxRetries:        cfg.QueueMaxRetries,
		QueueRetryDelaySeconds: cfg.QueueRetryDelaySeconds,
		MinioEndpoint:          cfg.MinioEndpoint,
		MinioAccessKey:         cfg.MinioAccessKey,
		MinioSecretKey:         cfg.MinioSecretKey,
		MinioBucket:            cfg.MinioBucket,
		MinioUseSSL:            cfg.MinioUseSSL,
		ChunkSize:              cfg.ChunkSize,
		ChunkOverlap:           cfg.ChunkOverlap,
		OCRCommand:             cfg.OCRCommand,
		OCRTimeoutSeconds:      cfg.OCRTimeoutSeconds,
		EmbeddingProvider:      cfg.EmbeddingProvider,
		EmbeddingBaseURL:       cfg.EmbeddingBaseURL,
		EmbeddingModel:         cfg.EmbeddingModel,
		EmbeddingDim:           cfg.EmbeddingDim,
		EmbeddingConcurrency:   cfg.EmbeddingConcurrency,
		GeminiAPIKey:           cfg.GeminiAPIKey,
		GenerationProvider:     cfg.GenerationProvider,
		GenerationBaseURL:      cfg.GenerationBaseURL,
		GenerationAPIKey:       cfg.GenerationAPIKey,
		GenerationModel:        cfg.GenerationModel,
		SearchLimit:            cfg.SearchLimit,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "docintel:ratelimit:kb", cfg.RateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	verifyKeys, err := servicetoken.ParseVerifyPublicKeys(cfg.InternalJWTVerifyPublicKeys)
	if err != nil {
		log.Fatalf("failed to parse internal jwt verify keys: %v", err)
	}
	httpServer, err := server.New(server.Config{
		App:                         appCore,
		InternalJWTKeyID:            cfg.InternalJWTKeyID,
		InternalJWTPublicKeyPath:    cfg.InternalJWTPublicKeyPath,
		InternalJWTVerifyPublicKeys: verifyKeys,
		MaxUploadBytes:              int64(cfg.MaxUploadMB) << 20,
		Limiter:                     limiter,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("kb server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
