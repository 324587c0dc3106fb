// Copyright (c) 2026 Bitlabs
// SPDX-License-Identifier: GPL-3.0-or-later

// Command objevents runs the notification service.
//
//	objevents serve                    start the HTTP server and scheduler
//	objevents send-digests <interval>  run one digest batch and exit
//
// The send-digests form is what an external cron invokes; for each interval
// your deployment uses, schedule a cron entry at that cadence.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/bitlabs-dev/objevents/internal/aggregation"
	"github.com/bitlabs-dev/objevents/internal/cache"
	"github.com/bitlabs-dev/objevents/internal/config"
	"github.com/bitlabs-dev/objevents/internal/digest"
	"github.com/bitlabs-dev/objevents/internal/handler"
	"github.com/bitlabs-dev/objevents/internal/logging"
	"github.com/bitlabs-dev/objevents/internal/mailer"
	"github.com/bitlabs-dev/objevents/internal/middleware"
	"github.com/bitlabs-dev/objevents/internal/model"
	"github.com/bitlabs-dev/objevents/internal/scheduler"
	"github.com/bitlabs-dev/objevents/internal/service"
	"github.com/bitlabs-dev/objevents/internal/session"
	"github.com/bitlabs-dev/objevents/internal/store"
)

func main() {
	// Load .env if present; real environment variables win.
	_ = godotenv.Load()

	args := os.Args[1:]
	if len(args) > 0 && args[0] == "send-digests" {
		os.Exit(runSendDigests(args[1:]))
	}
	if len(args) > 0 && args[0] != "serve" {
		fmt.Fprintf(os.Stderr, "unknown command %q (valid: serve, send-digests)\n", args[0])
		os.Exit(2)
	}

	if err := runServe(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// runSendDigests executes one digest batch for the interval given as the
// single positional argument.
func runSendDigests(args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: objevents send-digests <interval>")
		fmt.Fprintln(os.Stderr, "Please provide a valid interval argument (realtime, daily, weekly, monthly).")
		return 2
	}

	interval, err := model.ParseInterval(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	db, err := openDB(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer db.Close()

	m, err := newMailer(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	strategy := aggregation.NewProfileStrategy(store.New(db))
	runner := digest.NewRunner(db, strategy, m, logger)

	summary, err := runner.Run(context.Background(), interval)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	fmt.Println(summary.String())
	return 0
}

// runServe starts the HTTP server and the in-process digest scheduler.
func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}

	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.LogLevel),
	})
	logger := slog.New(baseHandler)
	slog.SetDefault(logger)

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DoSeed {
		if err := store.Seed(context.Background(), db); err != nil {
			return fmt.Errorf("seeding database: %w", err)
		}
	}

	c, err := newCache(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	events := service.NewEventService(db, c, time.Duration(cfg.CacheTTL)*time.Second)

	// From here on, warnings and errors also land in the event store.
	logger = slog.New(logging.NewStoreHandler(baseHandler, events))
	slog.SetDefault(logger)

	m, err := newMailer(cfg, logger)
	if err != nil {
		return err
	}

	strategy := aggregation.NewProfileStrategy(store.New(db))
	runner := digest.NewRunner(db, strategy, m, logger)

	sched := scheduler.New(runner, logger)
	if err := sched.Start(scheduler.Schedules{
		model.IntervalRealtime: cfg.DigestCronRealtime,
		model.IntervalDaily:    cfg.DigestCronDaily,
		model.IntervalWeekly:   cfg.DigestCronWeekly,
		model.IntervalMonthly:  cfg.DigestCronMonthly,
	}); err != nil {
		return err
	}
	defer sched.Stop()

	sm := session.New(db, cfg.IsDevelopment())

	feedHandler := handler.NewFeedHandler(events, cfg.FeedPerPage)
	authHandler := handler.NewAuthHandler(db, sm)
	digestHandler := handler.NewDigestHandler(sched)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(sm.LoadAndSave)
	r.Use(middleware.CSRF(middleware.DefaultCSRFConfig([]byte(cfg.SessionSecret), cfg.IsDevelopment())))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/login", authHandler.Login)
	r.Post("/logout", authHandler.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(sm))
		r.Use(middleware.LoadUser(sm, db))
		r.Get("/events", feedHandler.List)
		r.Post("/events/mark", feedHandler.Mark)
		r.Post("/digests/{interval}", digestHandler.Trigger)
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ServerAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newCache(cfg *config.Config, logger *slog.Logger) (cache.Cache, error) {
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	if cfg.UseRedisCache() {
		rc, err := cache.NewRedisCache(cache.RedisCacheOptions{
			URL:        cfg.RedisURL,
			Prefix:     cfg.CachePrefix,
			DefaultTTL: ttl,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		logger.Info("using redis cache")
		return rc, nil
	}
	return cache.NewMemoryCache(ttl), nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) (mailer.Mailer, error) {
	if cfg.SMTPEnabled() {
		return mailer.NewSMTPMailer(mailer.SMTPOptions{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.FromEmail,
		})
	}
	logger.Warn("SMTP not configured, digests will be recorded but not delivered")
	return mailer.NewRecorder(), nil
}
