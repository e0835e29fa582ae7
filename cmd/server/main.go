package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnorrsken/redisqlite/internal/blocking"
	"github.com/mnorrsken/redisqlite/internal/config"
	"github.com/mnorrsken/redisqlite/internal/handler"
	"github.com/mnorrsken/redisqlite/internal/logger"
	"github.com/mnorrsken/redisqlite/internal/metrics"
	"github.com/mnorrsken/redisqlite/internal/server"
	"github.com/mnorrsken/redisqlite/internal/storage"
)

// shutdownTimeout bounds how long graceful shutdown may take before the
// process forces an exit.
const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic("load config: " + err.Error())
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("opening storage", zap.String("path", cfg.Storage.Path), zap.String("prefix", cfg.Storage.Prefix))
	store, err := storage.New(ctx, storage.Config{Path: cfg.Storage.Path, Prefix: cfg.Storage.Prefix}, log)
	if err != nil {
		log.Fatal("open storage", zap.Error(err))
	}

	coordinator := blocking.New()
	store.SetWaker(coordinator)

	h := handler.New(store, cfg.Server.Password, coordinator)
	srv := server.New(cfg.Server.Addr, h, log)
	metricsSrv := metrics.NewServer(cfg.Metrics.Addr)

	group, groupCtx := errgroup.WithContext(ctx)

	metricsErrs := make(chan error, 1)
	metricsSrv.Start(metricsErrs)
	log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))

	if err := srv.Start(groupCtx); err != nil {
		log.Fatal("start server", zap.Error(err))
	}
	log.Info("redisqlite is ready to accept connections", zap.String("addr", cfg.Server.Addr))
	if cfg.Server.Password != "" {
		log.Info("authentication is enabled")
	}

	group.Go(func() error {
		select {
		case err := <-metricsErrs:
			return err
		case <-groupCtx.Done():
			return nil
		}
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal, initiating graceful shutdown", zap.String("signal", sig.String()))
			cancel()
		case <-groupCtx.Done():
		}

		sig := <-sigChan
		log.Warn("received second signal, forcing immediate shutdown", zap.String("signal", sig.String()))
		os.Exit(1)
	}()

	<-groupCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)

		log.Info("stopping RESP server")
		srv.Stop()

		log.Info("stopping metrics server")
		if err := metricsSrv.Stop(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown", zap.Error(err))
		}

		log.Info("closing storage")
		if err := store.Close(); err != nil {
			log.Warn("storage close", zap.Error(err))
		}
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-shutdownCtx.Done():
		log.Warn("shutdown timed out, forcing exit")
		os.Exit(1)
	}

	if err := group.Wait(); err != nil {
		log.Warn("component reported error during shutdown", zap.Error(err))
	}
}
