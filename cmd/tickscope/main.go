package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tickscope/config"
	"tickscope/internal/api"
	"tickscope/internal/ibkr/collector"
	"tickscope/logger"
	"tickscope/pkg/secrets"

	"go.uber.org/zap"
)

func main() {
	// viper config
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newSecretStore(ctx, cfg.Secrets)
	if err != nil {
		log.Fatal("failed to create secret store", zap.Error(err))
	}

	// run collector
	c, err := collector.StartCollector(ctx, cfg, store, log)
	if err != nil {
		log.Fatal("collector failed", zap.Error(err))
	}

	server := api.NewServer(cfg.API.Addr, c.Manager(), c, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("api server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("api server shutdown", zap.Error(err))
	}
	if err := c.Close(); err != nil {
		log.Warn("collector close", zap.Error(err))
	}
}

func newSecretStore(ctx context.Context, cfg config.SecretsConfig) (secrets.Store, error) {
	switch cfg.Backend {
	case "ssm":
		s, err := secrets.NewSSMStore(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return secrets.NewMemoryStore(), nil
	}
}
