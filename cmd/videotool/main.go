// Package main provides the entry point for the video tool service.
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

	"github.com/balkhaev/trender/internal/bootstrap"
	"github.com/balkhaev/trender/internal/config"
	"github.com/balkhaev/trender/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadVideoTool()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting video tool",
		slog.Int("port", cfg.Port),
		slog.Float64("frame_interval_sec", cfg.FrameIntervalSec),
		slog.Int("max_frames", cfg.MaxFrames),
		slog.Int("jpeg_quality", cfg.JPEGQuality),
		slog.String("temp_dir", cfg.TempDir),
	)

	deps, err := bootstrap.NewVideoToolDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	defaults := server.VideoDefaults{
		IntervalSec: cfg.FrameIntervalSec,
		MaxFrames:   cfg.MaxFrames,
		Quality:     cfg.JPEGQuality,
	}
	handlers := server.NewVideoHandlers(deps.Processor, deps.Detector, deps.Store, defaults, logger)
	router := server.NewVideoRouter(handlers, server.DefaultConfig(), logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 660 * time.Second, // Concatenation can run up to its own timeout
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening",
			slog.String("addr", srv.Addr),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case sig := <-shutdownCh:
		logger.Info("received shutdown signal",
			slog.String("signal", sig.String()),
		)
	case err := <-errCh:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("shutting down server...")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
