// FD Rates - Fixed deposit rate aggregation and recommendations.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/fdrates/internal/api"
	"github.com/opensource-finance/fdrates/internal/bus"
	"github.com/opensource-finance/fdrates/internal/cache"
	"github.com/opensource-finance/fdrates/internal/catalog"
	"github.com/opensource-finance/fdrates/internal/config"
	"github.com/opensource-finance/fdrates/internal/domain"
	"github.com/opensource-finance/fdrates/internal/repository"
	"github.com/opensource-finance/fdrates/internal/rules"
	"github.com/opensource-finance/fdrates/internal/scheduler"
	"github.com/opensource-finance/fdrates/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)

	slog.Info("starting fdrates",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
		"service", cfg.Tracing.ServiceName,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type, "two_phase", cfg.Cache.EnableTwoPhase)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	filters, err := rules.NewEngine(256)
	if err != nil {
		slog.Error("failed to initialize filter engine", "error", err)
		os.Exit(1)
	}
	defer filters.Close()

	reports := catalog.NewService(repo, cacheImpl, filters, cfg.Analysis, cfg.Cache.TTL)

	ingest := worker.NewWorker(busImpl, repo, reports)
	if err := ingest.Start(); err != nil {
		slog.Error("failed to start ingest worker", "error", err)
		os.Exit(1)
	}

	var sched *scheduler.Scheduler
	refresh := scheduler.JobFunc{JobName: "refresh-reports", Fn: reports.Warm}
	if cfg.Scheduler.Enabled {
		sched = scheduler.New(time.Minute)
		if err := sched.AddJob(cfg.Scheduler.RefreshSpec, refresh); err != nil {
			slog.Error("failed to schedule report refresh", "spec", cfg.Scheduler.RefreshSpec, "error", err)
			os.Exit(1)
		}
		sched.Start()
		go func() {
			if err := sched.RunNow(refresh); err != nil {
				slog.Warn("initial report refresh failed", "error", err)
			}
		}()
		slog.Info("scheduler started", "refresh", cfg.Scheduler.RefreshSpec)
	}

	srv := api.NewServer(cfg.Server, reports, busImpl, ingest, cfg.Analysis, Version)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fdrates is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	if sched != nil {
		sched.Stop()
	}

	if err := ingest.Stop(); err != nil {
		slog.Error("failed to stop ingest worker", "error", err)
	}

	slog.Info("fdrates shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |                 FD RATES                  |")
	fmt.Println("  |   Fixed deposit rates, compared daily.    |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET    /rates              - Browse, filter and sort rates")
	fmt.Println("    POST   /rates              - Ingest a batch of rates")
	fmt.Println("    GET    /rates/{id}         - Get one rate")
	fmt.Println("    DELETE /rates/{id}         - Delete one rate")
	fmt.Println("    GET    /summary            - Market summary")
	fmt.Println("    GET    /analysis/terms     - Summary per term bucket")
	fmt.Println("    GET    /analyze            - Recommendations for an investor")
	fmt.Println("    GET    /top-banks          - Best offers")
	fmt.Println("    GET    /banks/leaderboard  - Banks by average rate")
	fmt.Println("    GET    /filters            - Filter presets")
	fmt.Println("    GET    /health             - Health check")
	fmt.Println()
}
