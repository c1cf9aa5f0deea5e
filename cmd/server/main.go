package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"bookvault/internal/app"
	"bookvault/internal/config"
	"bookvault/internal/ratelimit"
	"bookvault/internal/server"
	"bookvault/internal/uploads"
	"bookvault/internal/util"
	"bookvault/pkg/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
	if cfg.RedisAddr != "" {
		revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
	}
	sessions, err := store.NewJWTSessionStore(cfg.JWTSecret, revoker, store.JWTOptions{
		TTL: time.Duration(cfg.SessionTTLMinutes) * time.Minute,
	})
	if err != nil {
		log.Fatalf("failed to init session store: %v", err)
	}

	var (
		blobs     uploads.BlobStore
		signer    uploads.URLSigner
		staticDir string
	)
	switch cfg.StorageDriver {
	case "minio":
		minioStore, err := uploads.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("failed to init minio storage: %v", err)
		}
		blobs = minioStore
		signer = minioStore
	default:
		diskStore, err := uploads.NewDiskStore(cfg.UploadDir)
		if err != nil {
			log.Fatalf("failed to init disk storage: %v", err)
		}
		blobs = diskStore
		staticDir = diskStore.BasePath()
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" && cfg.AuthRatePerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(
			cfg.RedisAddr,
			cfg.RedisPassword,
			"bookvault:ratelimit:auth",
			cfg.AuthRatePerMinute,
			time.Duration(cfg.AuthRateWindowSecs)*time.Second,
		)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
	}

	appCore := app.New(st, sessions, uploads.NewManager(blobs))
	httpServer := server.New(server.Config{
		App:           appCore,
		PublicBaseURL: cfg.PublicBaseURL,
		Signer:        signer,
		StaticDir:     staticDir,
		AuthLimiter:   limiter,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("bookvault server listening", "addr", addr, "storage", cfg.StorageDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
