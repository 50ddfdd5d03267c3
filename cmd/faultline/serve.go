// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/faultline/services/faultline"
	"github.com/AleutianAI/faultline/services/faultline/config"
	"github.com/AleutianAI/faultline/services/faultline/host"
	"github.com/AleutianAI/faultline/services/faultline/telemetry"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

func newServeCmd() *cobra.Command {
	var configPath, addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Faultline HTTP API",
		Long: `Serves POST /analyze, GET /health and GET /metrics. Every analysis runs in
a fresh worker bounded by the configured deadline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return usageError("%v", err)
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			level := slog.LevelInfo
			if cfg.Server.Debug {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := serve(ctx, cfg); err != nil {
				return failure("%v", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to faultline.yaml")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	return cmd
}

// serve runs the HTTP server until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("tracing shutdown failed", slog.String("error", err.Error()))
		}
	}()

	spawner, err := newSpawner(ctx, cfg)
	if err != nil {
		return err
	}
	h := host.New(spawner, host.WithDeadline(cfg.Host.Deadline))
	router := faultline.NewRouter(faultline.NewHandlers(h), cfg.Server)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting Faultline server",
			slog.String("address", cfg.Server.Addr),
			slog.String("isolation", cfg.Host.Isolation),
			slog.Duration("deadline", cfg.Host.Deadline),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listening on %s: %w", cfg.Server.Addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down Faultline server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newSpawner builds the worker spawner for the configured isolation mode.
func newSpawner(ctx context.Context, cfg *config.Config) (host.Spawner, error) {
	switch cfg.Host.Isolation {
	case host.ModeInProcess:
		a, err := loadAnalyzer(ctx, cfg.Rules.ExtraFile)
		if err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		return host.NewInProcessSpawner(a.Analyze, 0), nil
	default:
		// Fail fast on a bad rules file instead of in every worker.
		if _, err := loadAnalyzer(ctx, cfg.Rules.ExtraFile); err != nil {
			return nil, fmt.Errorf("loading rules: %w", err)
		}
		opts := []host.ProcessSpawnerOption{}
		if len(cfg.Host.WorkerCommand) > 0 {
			opts = append(opts, host.WithCommand(cfg.Host.WorkerCommand...))
		}
		if cfg.Rules.ExtraFile != "" {
			opts = append(opts, host.WithEnv(config.EnvRulesFile+"="+cfg.Rules.ExtraFile))
		}
		return host.NewProcessSpawner(opts...)
	}
}
