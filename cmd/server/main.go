// Package main is the entry point for the TechStore backend.
//
// main stays small: load configuration, build the logger, hand both to the
// server. Everything else lives under internal/.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/luciOnel/PCSHOP/internal/config"
	"github.com/luciOnel/PCSHOP/internal/logging"
	"github.com/luciOnel/PCSHOP/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No configured logger yet.
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to create logger", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
