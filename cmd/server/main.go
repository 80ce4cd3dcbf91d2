package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackcrew/hackathon-platform/internal/config"
	"github.com/hackcrew/hackathon-platform/internal/database"
	"github.com/hackcrew/hackathon-platform/internal/eventbus"
	"github.com/hackcrew/hackathon-platform/internal/formation"
	"github.com/hackcrew/hackathon-platform/internal/metrics"
	"github.com/hackcrew/hackathon-platform/internal/repository"
	"github.com/hackcrew/hackathon-platform/internal/retry"
	"github.com/hackcrew/hackathon-platform/internal/routes"
	"github.com/hackcrew/hackathon-platform/internal/scheduler"
	"github.com/hackcrew/hackathon-platform/internal/services"
)

func main() {
	printToken := flag.Bool("token", false, "print an admin API token and exit")
	flag.Parse()

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *printToken); err != nil {
		logger.Error("server_exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(cfg *config.Config, logger *slog.Logger, printToken bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger.Info("config_loaded", "database_type", cfg.DatabaseType, "email_provider", cfg.EmailProvider, "event_bus", cfg.EventBus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	store := repository.New(db)

	authService := services.NewAuthService(cfg)
	admin, err := database.SeedAdmin(ctx, store, cfg.AdminEmail)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if printToken {
		token, err := authService.GenerateToken(admin)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}
	if cfg.SeedDemo {
		if err := database.SeedDemo(ctx, store, time.Now()); err != nil {
			logger.Warn("demo_seed_failed", "error", err)
		}
	}

	bus, err := eventbus.FromConfig(cfg, logger)
	if err != nil {
		return err
	}
	defer bus.Close()
	if cfg.EventBus == "gochannel" {
		if err := bus.LogEvents(ctx, eventbus.TopicHackathonCancelled, eventbus.TopicHackathonCompleted); err != nil {
			logger.Warn("event_log_unavailable", "error", err)
		}
	}

	m := metrics.New()
	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		Store:    store,
		Notifier: services.NewEmailService(cfg, logger),
		Events:   bus,
		Metrics:  m,
		Logger:   logger,
		Rand:     formation.NewRand(cfg.RandomSeed),
		TxPolicy: retry.Policy{
			MaxAttempts: cfg.FormationMaxAttempt,
			BaseDelay:   cfg.FormationBaseDelay,
		},
		EmailPolicy: retry.Policy{
			MaxAttempts: cfg.EmailMaxAttempt,
			BaseDelay:   cfg.EmailBaseDelay,
		},
		EmailWorkers: cfg.EmailWorkers,
	})

	if cfg.SchedulerEnabled {
		sched := scheduler.New(lifecycle, store, scheduler.Config{
			FormationInterval:  cfg.FormationInterval,
			CompletionInterval: cfg.CompletionInterval,
			StatusSyncInterval: cfg.StatusSyncInterval,
			FormationWindow:    cfg.FormationWindow,
			CompletionHorizon:  cfg.CompletionHorizon,
		}, logger, m, nil)
		sched.Start(ctx)
		defer sched.Stop()
	} else {
		logger.Info("scheduler_disabled")
	}

	router := routes.SetupRouter(routes.Deps{
		Store:      store,
		Auth:       authService,
		Hackathons: services.NewHackathonService(store, logger, nil),
		Lifecycle:  lifecycle,
		Metrics:    m,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              cfg.ServerHost + ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server_starting", "addr", srv.Addr, "app", cfg.AppName)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
