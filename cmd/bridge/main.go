package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"bridge/config"
	"bridge/pipeline"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("bridge starting",
		zap.String("session_id", cfg.SessionID),
		zap.String("remote_url", cfg.RemoteURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b := pipeline.New(cfg, logger)

	// SIGUSR1 / SIGUSR2 emulate the host app going to background / foreground
	lifecycle := make(chan os.Signal, 1)
	signal.Notify(lifecycle, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(lifecycle)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-lifecycle:
				if ctx.Err() != nil {
					return
				}
				if sig == syscall.SIGUSR1 {
					b.Background()
					continue
				}
				if err := b.Foreground(); err != nil && !errors.Is(err, pipeline.ErrClosed) {
					logger.Warn("cannot resume sync", zap.Error(err))
				}
			}
		}
	}()

	if err := b.Run(ctx); err != nil {
		logger.Error("bridge exited with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("bridge exited cleanly")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.LogFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
