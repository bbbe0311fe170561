package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hirelens/interview-analyzer/internal/application"
	"github.com/hirelens/interview-analyzer/internal/application/sessions"
	"github.com/hirelens/interview-analyzer/internal/config"
	"github.com/hirelens/interview-analyzer/internal/domain/files"
	"github.com/hirelens/interview-analyzer/internal/domain/session"
	"github.com/hirelens/interview-analyzer/internal/infra/ai/fallback"
	"github.com/hirelens/interview-analyzer/internal/infra/ai/gemini"
	"github.com/hirelens/interview-analyzer/internal/infra/httpserver"
	"github.com/hirelens/interview-analyzer/internal/infra/storage"
	"github.com/hirelens/interview-analyzer/internal/infra/store/memory"
	"github.com/hirelens/interview-analyzer/internal/middleware"
)

const mb = int64(1 << 20)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore, err := newFileStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init file storage: %w", err)
	}

	sessionStore := memory.New(
		time.Duration(cfg.Session.TTLMinutes)*time.Minute,
		time.Duration(cfg.Session.SweepMinutes)*time.Minute,
		logger,
	)
	defer sessionStore.Close()

	aiClient, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, retryPolicy(cfg), cfg.Limits.AttachmentMB*mb, logger)
	if err != nil {
		return fmt.Errorf("init ai gateway: %w", err)
	}

	svc := &sessions.Service{
		Store:    sessionStore,
		Files:    fileStore,
		AI:       aiClient,
		Fallback: fallback.New(),
		Clock:    application.SystemClock{},
		Logger:   logger,
		Limits: sessions.Limits{
			UploadAudio:  cfg.Limits.UploadAudioMB * mb,
			UploadVideo:  cfg.Limits.UploadVideoMB * mb,
			UploadCV:     cfg.Limits.UploadCVMB * mb,
			ProcessAudio: cfg.Limits.ProcessAudioMB * mb,
			ProcessVideo: cfg.Limits.ProcessVideoMB * mb,
		},
		Attempts: attemptBudgets(cfg),
	}

	checkers := map[string]middleware.HealthChecker{
		"sessions": sessionStoreChecker(sessionStore),
		"storage":  storageChecker(fileStore),
		"ai":       middleware.CheckerFunc(aiClient.Healthy),
	}

	root := chi.NewRouter()
	root.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	root.Use(middleware.Logging(logger))
	root.Use(middleware.RateLimit(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec))
	root.Mount("/", httpserver.NewRouter(svc, checkers, logger))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
		// Stage runs block on provider retries, so the write timeout has to
		// outlast a full backoff schedule.
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.Int("port", cfg.Server.Port),
			zap.String("model", cfg.Gemini.Model),
			zap.String("storage", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Log.JSON {
		zc := zap.NewProductionConfig()
		if cfg.Log.Debug {
			zc.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		return zc.Build()
	}
	zc := zap.NewDevelopmentConfig()
	if !cfg.Log.Debug {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return zc.Build()
}

func newFileStore(ctx context.Context, cfg *config.Config) (files.Store, error) {
	switch cfg.Storage.Backend {
	case "minio":
		m := cfg.Storage.Minio
		return storage.NewMinio(ctx, m.Endpoint, m.Region, m.BucketName, m.AccessKey, m.SecretKey, m.UseSSL)
	default:
		return storage.NewLocal(cfg.Storage.Local.Dir)
	}
}

func retryPolicy(cfg *config.Config) gemini.RetryPolicy {
	schedule := make([]time.Duration, 0, len(cfg.Retry.OverloadScheduleMS))
	for _, ms := range cfg.Retry.OverloadScheduleMS {
		schedule = append(schedule, time.Duration(ms)*time.Millisecond)
	}
	return gemini.RetryPolicy{
		BaseDelay:        time.Duration(cfg.Retry.BaseDelayMS) * time.Millisecond,
		OverloadSchedule: schedule,
		AttemptTimeout:   time.Duration(cfg.Retry.AttemptTimeoutSec) * time.Second,
	}
}

func attemptBudgets(cfg *config.Config) sessions.Attempts {
	budgets := sessions.Attempts{}
	for name, n := range cfg.Retry.Attempts {
		if stage, ok := session.ParseStage(name); ok {
			budgets[stage] = n
		}
	}
	return budgets
}

func storageChecker(fs files.Store) middleware.HealthChecker {
	return middleware.CheckerFunc(func(ctx context.Context) error {
		_, err := fs.Stat(ctx, "healthcheck-probe")
		if errors.Is(err, files.ErrNotFound) {
			return nil
		}
		return err
	})
}

func sessionStoreChecker(store session.Store) middleware.HealthChecker {
	return middleware.CheckerFunc(func(ctx context.Context) error {
		_, err := store.Get(ctx, "healthcheck-probe")
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return err
	})
}
