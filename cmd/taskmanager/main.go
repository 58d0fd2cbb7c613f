package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task-manager/internal/auth"
	"task-manager/internal/clock"
	"task-manager/internal/config"
	"task-manager/internal/httpapi"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
	"task-manager/internal/service"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	db, err := repository.NewDB(cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	clk := clock.Real()
	tokens, err := auth.NewTokenService([]byte(cfg.JWTSecret), cfg.TokenTTL, clk)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	userRepo := repository.NewUserRepository(db)

	e := httpapi.New(httpapi.Deps{
		Gateway:   auth.NewGateway(tokens),
		Auth:      service.NewAuthService(userRepo, hasher, tokens, logger),
		Users:     service.NewUserService(userRepo, hasher),
		Resources: service.NewResources(db),
		Log:       logger,
	})

	if cfg.ReminderInterval > 0 {
		var notifier notify.Notifier = notify.NewLogNotifier(logger)
		if cfg.TelegramEnabled() {
			tg, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, logger)
			if err != nil {
				return fmt.Errorf("telegram: %w", err)
			}
			notifier = tg
		}

		dispatcher := service.NewReminderDispatcher(repository.NewReminderRepository(db), notifier, clk, logger)
		scheduler := service.NewSchedulerService(time.Local, logger)
		if _, err := scheduler.Every("reminders", cfg.ReminderInterval, 30*time.Second, func(jobCtx context.Context) error {
			_, err := dispatcher.DispatchDue(jobCtx)
			return err
		}); err != nil {
			return fmt.Errorf("schedule reminders: %w", err)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("task manager listening", "addr", cfg.HTTPAddr)
		serveErr <- e.Start(cfg.HTTPAddr)
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
