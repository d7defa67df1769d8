package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"docintel/internal/servicetoken"
	"docintel/internal/util"
	"docintel/services/scanner/internal/app"
	"docintel/services/scanner/internal/config"
	"docintel/services/scanner/internal/server"
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
		OCRCommand:             cfg.OCRCommand,
		OCRTimeoutSeconds:      cfg.OCRTimeoutSeconds,
		GeminiAPIKey:           cfg.GeminiAPIKey,
		GenerationProvider:     cfg.GenerationProvider,
		GenerationBaseURL:      cfg.GenerationBaseURL,
		GenerationAPIKey:       cfg.GenerationAPIKey,
		GenerationModel:        cfg.GenerationModel,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
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

	slog.Info("scanner server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
