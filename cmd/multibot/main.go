package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"multibot/internal/app"
	"multibot/internal/config"
	"multibot/internal/logger"
)

func main() {
	cfgPath := os.Getenv("MULTIBOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config failed: %v", err)
	}

	out, logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("initializing log output failed: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	lg := logger.New(out, cfg.App.LogLevel)
	lg.Info("config loaded", "path", cfgPath, "env", cfg.App.Env)

	application, err := app.New(cfgPath, cfg, lg)
	if err != nil {
		log.Fatalf("initializing application failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := application.Run(ctx); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// setupLogOutput returns the writer for the logger: stdout, optionally
// teed into a log file.
func setupLogOutput(path string) (io.Writer, *os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return os.Stdout, nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return io.MultiWriter(os.Stdout, file), file, nil
}
