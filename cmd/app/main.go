package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coinfolio/internal/app"
	"coinfolio/internal/domain"
	"coinfolio/internal/scheduler"
	"coinfolio/internal/server"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. WebSocket hub, fed by the refresh cycle
	hub := server.NewHub()
	bootstrap.Tracker.SetOnRefresh(func(updated []domain.Holding) {
		hub.Broadcast(map[string]any{
			"type":     "prices",
			"holdings": updated,
		})
	})

	// 4. Scheduler: refresh prices and capture snapshots on interval
	sched := scheduler.New()
	every := fmt.Sprintf("@every %dm", cfg.Refresh.IntervalMinutes)
	if err := sched.AddJob(every, &scheduler.RefreshJob{Tracker: bootstrap.Tracker}); err != nil {
		slog.Error("❌ Failed to register refresh job", slog.Any("error", err))
		os.Exit(1)
	}
	if err := sched.AddJob(every, &scheduler.SnapshotJob{Snapshots: bootstrap.Snapshots}); err != nil {
		slog.Error("❌ Failed to register snapshot job", slog.Any("error", err))
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	// 5. HTTP API
	iconDir := ""
	if bootstrap.Icons != nil {
		iconDir = bootstrap.Icons.Dir()
	}
	srv := server.New(server.Config{
		Port:      cfg.Server.Port,
		Tracker:   bootstrap.Tracker,
		Snapshots: bootstrap.Snapshots,
		Hub:       hub,
		IconDir:   iconDir,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "✨ Coinfolio fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("👋 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown failed", slog.Any("error", err))
	}
}
