package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hatchdesk/hatchdesk/backend/internal/config"
	"github.com/hatchdesk/hatchdesk/backend/internal/dedup"
	"github.com/hatchdesk/hatchdesk/backend/internal/health"
	"github.com/hatchdesk/hatchdesk/backend/internal/imapclient"
	"github.com/hatchdesk/hatchdesk/backend/internal/logger"
	"github.com/hatchdesk/hatchdesk/backend/internal/metrics"
	"github.com/hatchdesk/hatchdesk/backend/internal/notifier"
	"github.com/hatchdesk/hatchdesk/backend/internal/parser"
	"github.com/hatchdesk/hatchdesk/backend/internal/poller"
	"github.com/hatchdesk/hatchdesk/backend/internal/repository"
	"github.com/hatchdesk/hatchdesk/backend/internal/routing"
	"github.com/hatchdesk/hatchdesk/backend/internal/scheduler"
	"github.com/hatchdesk/hatchdesk/backend/internal/secrets"
	"github.com/hatchdesk/hatchdesk/backend/internal/ticketer"
)

// Version is set at build time.
var Version = "dev"

func main() {
	cfg := config.Load()
	log := logger.New(logger.DefaultConfig())

	if cfg.Encryption.Key == "" {
		log.Error("ENCRYPTION_KEY environment variable is required")
		os.Exit(1)
	}
	cipher, err := secrets.NewCipher(cfg.Encryption.Key)
	if err != nil {
		log.Error("invalid encryption key", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.Database.DSN())
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	inboxRepo := repository.NewInboxRepo(db)
	boardRepo := repository.NewBoardRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	standbyRepo := repository.NewStandbyRepo(db)
	processedRepo := repository.NewProcessedEmailRepo(db)

	notifyQueue := notifier.NewQueue(
		notifier.NewSMTPSender(cfg.SMTP),
		cfg.Poller.NotifyQueueSize,
		cfg.Poller.TicketBaseURL,
		log,
	)
	notifyQueue.Start(ctx)

	pipeline := poller.New(
		inboxRepo,
		dedup.NewDetector(processedRepo, cfg.Poller.DuplicateWindow),
		routing.NewEngine(boardRepo, log),
		ticketer.NewMaterializer(ticketRepo, standbyRepo, boardRepo, inboxRepo, notifyQueue, log),
		parser.New(),
		imapclient.Dial,
		cipher,
		log,
	)

	sched := scheduler.New(pipeline.PollInbox, log)
	if err := registerActiveInboxes(ctx, sched, inboxRepo, log); err != nil {
		log.Error("loading active inboxes failed", "error", err)
		os.Exit(1)
	}

	healthHandler := health.NewHandler(db, Version)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ops server failed", "error", err)
			stop()
		}
	}()

	// Feed the DB pool gauges while the service runs.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.ObserveDBStats(db)
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	healthHandler.SetReady(false)

	sched.Stop()
	notifyQueue.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("ops server shutdown failed", "error", err)
	}

	log.Info("shutdown complete")
}

// registerActiveInboxes schedules a polling job for every active inbox.
// Inboxes failing validation are logged and skipped rather than aborting
// startup; one bad row should not stop ingestion for everyone else.
func registerActiveInboxes(
	ctx context.Context,
	sched *scheduler.Scheduler,
	inboxes repository.InboxRepositoryInterface,
	log *slog.Logger,
) error {
	active, err := inboxes.ListActive(ctx)
	if err != nil {
		return err
	}

	for i := range active {
		inbox := &active[i]
		if err := repository.ValidateInbox(inbox); err != nil {
			log.Warn("skipping invalid inbox", "inbox_id", inbox.ID, "error", err)
			continue
		}
		sched.Add(inbox.ID, time.Duration(inbox.PollingInterval)*time.Minute)
	}

	log.Info("polling jobs registered", "count", len(active))
	return nil
}
