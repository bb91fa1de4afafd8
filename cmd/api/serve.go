package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dan9191/card-service/internal/config"
	"github.com/Dan9191/card-service/internal/handler"
	"github.com/Dan9191/card-service/internal/idempotency"
	"github.com/Dan9191/card-service/internal/repository"
	"github.com/Dan9191/card-service/internal/scheduler"
	"github.com/Dan9191/card-service/internal/service"
	"github.com/Dan9191/card-service/internal/utils"
	"github.com/Dan9191/card-service/internal/utils/email"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	// Initialize storage
	var store repository.Store
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := openDB(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		store = repository.NewPostgresStore(db)
	default:
		logger.Warn("Using in-memory storage, data is lost on restart")
		store = repository.NewMemoryStore()
	}

	cipher, err := utils.NewCardCipher(cfg.EncryptionKeyBytes())
	if err != nil {
		return fmt.Errorf("failed to init card cipher: %w", err)
	}

	var idem idempotency.Store
	if cfg.RedisAddr != "" {
		redisStore, err := idempotency.NewRedisStore(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisStore.Close()
		idem = redisStore
	}

	// Initialize layers
	var notifier service.Notifier
	var sender *email.Sender
	if cfg.NotificationsEnabled() {
		sender = email.NewSender(cfg, logger)
		notifier = sender
	}
	gen := service.NewNumberGenerator(cfg.IssuerPrefix, cfg.HMACSecret)
	cards := service.NewCardService(store, gen, cipher, notifier, logger, cfg.TransferTimeout)
	auth := service.NewAuthService(store, cfg.JWTSecret, cfg.JWTTTL, logger)
	if err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return err
	}

	if sender != nil && cfg.AdminEmail != "" {
		sched := scheduler.New(cards, sender, cfg.AdminEmail, logger)
		if err := sched.Start(cfg.DigestSchedule); err != nil {
			return err
		}
		defer func() { <-sched.Stop().Done() }()
	}

	h := handler.NewHandler(cards, auth, idem, cfg.IdempotencyTTL, logger)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler.NewRouter(h, auth),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
