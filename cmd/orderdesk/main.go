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

	"orderdesk/internal/cache"
	"orderdesk/internal/config"
	"orderdesk/internal/database"
	"orderdesk/internal/duedate"
	"orderdesk/internal/handler"
	"orderdesk/internal/metrics"
	"orderdesk/internal/mw"
	"orderdesk/internal/notice"
	"orderdesk/internal/service"
	"orderdesk/internal/view"
	"orderdesk/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("orderdesk failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.New(os.Args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Services
	authSvc, err := service.NewAuthService(cfg.OperatorLogin, cfg.OperatorPasswordHash, cfg.JWTSecret)
	if err != nil {
		return err
	}
	commerce := service.NewCommerceClient(cfg.CommerceAddress, cfg.CommerceToken)
	board := notice.NewBoard(notice.DefaultCapacity)

	var store *cache.Store
	recorder := metrics.New(func() int { return store.Len() })
	journals := cache.Journals{recorder}

	var journal handler.JournalLister
	if cfg.DatabaseURI != "" {
		db, err := database.NewDB(ctx, cfg.DatabaseURI)
		if err != nil {
			return err
		}
		defer database.CloseDB(db)

		if err := database.InitSchema(db); err != nil {
			return err
		}
		journalSvc := service.NewJournalService(db)
		journals = append(journals, journalSvc)
		journal = journalSvc
	} else {
		slog.Warn("no database configured, mutation journal disabled")
	}

	// Cache
	store = cache.New(commerce, cache.Options{
		GraceWindow:  cfg.GraceWindow,
		RefetchDelay: cfg.RefetchDelay,
		WriteTimeout: cfg.WriteTimeout,
		Notifier:     board,
		Journal:      journals,
		Actor:        mw.OperatorFromContext,
	})
	defer store.Close()

	if err := store.Refresh(ctx); err != nil {
		// The sync worker retries; the desk starts empty rather than not at all.
		slog.Error("initial order fetch failed", "error", err)
	}

	resolver := duedate.Resolver{DefaultDays: cfg.DueDefaultDays}
	live := view.NewLive(store, view.Engine{Resolver: resolver})

	// Worker
	syncWorker := worker.NewSyncWorker(store, cfg.SyncInterval)
	go syncWorker.Start(ctx)

	// Router
	router := handler.NewRouter(handler.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		Auth:      authSvc,
		Orders:    &handler.Orders{List: live, Store: store, Resolver: resolver},
		Notices:   board,
		Journal:   journal,
		Metrics:   recorder.Handler(),
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.RunAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return err
	}
	slog.Info("shutting down...")

	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
