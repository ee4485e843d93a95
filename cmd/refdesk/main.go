package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"refdesk/internal/amqp"
	"refdesk/internal/config"
	"refdesk/internal/core"
	apphttp "refdesk/internal/http"
	"refdesk/internal/live"
	applog "refdesk/internal/log"
	"refdesk/internal/storage"
	"refdesk/internal/tally"
	"refdesk/internal/tally/memory"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// The counter store is the one dependency the board cannot run without.
	var store tally.Store
	switch cfg.DataBackend {
	case "sqlite":
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer repo.Close()
		store = repo
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.New()
		logger.Info("Initialized memory backend")
	}

	// The change bus is optional: without it the board still counts, it just
	// stops hearing about other replicas' increments.
	var bus *amqp.Client
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("AMQP unavailable, running without live replication", "error", err)
		} else {
			bus = client
			defer bus.Close()
			logger.Info("Connected to change bus", "exchange", cfg.AMQPExchange)
		}
	}

	hub := live.NewHub()
	svc := tally.NewService(store, bus, hub)

	srv := apphttp.NewServer(":"+cfg.Port, svc, hub, cfg.WindowDays)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if bus != nil {
		go func() {
			err := bus.ConsumeBoardUpdates(ctx, func(msg *amqp.TallyChangedMessage) error {
				return applyRemoteChange(ctx, svc, srv, hub, msg)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Board update consumption stopped", "error", err)
			}
		}()
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting refdesk board", "port", cfg.Port, "backend", cfg.DataBackend, "window_days", cfg.WindowDays)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}

// applyRemoteChange re-reads the changed day and pushes the fresh snapshot to
// local subscribers. The message is only a hint; the store is authoritative.
// Our own announcements come back through the fanout too, which just repeats
// an identical snapshot.
func applyRemoteChange(ctx context.Context, svc *tally.Service, srv *apphttp.Server, hub *live.Hub, msg *amqp.TallyChangedMessage) error {
	day, err := core.ParseDay(msg.Day)
	if err != nil {
		slog.WarnContext(ctx, "Dropping change message with invalid day", "day", msg.Day)
		return nil
	}

	t, err := svc.Day(ctx, day)
	if err != nil {
		return err
	}

	hub.Publish(t)
	srv.InvalidateWeek()
	return nil
}
