package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"solace-voice/internal/cli"
	"solace-voice/internal/config"
	"solace-voice/internal/output"
	"solace-voice/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		if !errors.Is(err, cli.ErrReported) {
			output.NewFormatter(os.Stderr).Error(err.Error())
		}
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Filename: cfg.LogFilename})
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.NewRootCmd(cli.NewDependencies(cfg, log)).ExecuteContext(ctx)
}
