// Package main provides the API server entry point for the stock tracker service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stock-tracker/internal/adapter"
	"github.com/stock-tracker/internal/api"
	"github.com/stock-tracker/internal/config"
	"github.com/stock-tracker/internal/logging"
	"github.com/stock-tracker/internal/service"
	"github.com/stock-tracker/internal/storage"
	"github.com/stock-tracker/internal/worker"
)

func main() {
	fmt.Println("Stock Tracker API Server")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithLogger(ctx, logger)

	// Open the persistent store
	logger.WithField("backend", cfg.Store.Backend).Info("Opening persistent store...")
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open persistent store")
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close persistent store")
		}
	}()

	// Market data providers
	quotes := adapter.NewAlphaVantageClient(cfg.Quotes)
	candles := adapter.NewFinnhubClient(cfg.Candles)
	if cfg.Quotes.APIKey == "" {
		logger.Warn("ALPHA_VANTAGE_API_KEY is not set; quote lookups will fail")
	}
	if cfg.Candles.APIKey == "" {
		logger.Warn("FINNHUB_API_KEY is not set; charts and search will fail")
	}

	// Services
	portfolio := service.NewPortfolioService(backend.Store, quotes, logger)
	watchlist := service.NewWatchlistService(backend.Store, logger)
	stocks := service.NewStockService(quotes, candles, candles, logger)

	if err := portfolio.Load(ctx); err != nil {
		logger.WithError(err).Warn("Continuing with an empty portfolio")
	}
	if err := watchlist.Load(ctx); err != nil {
		logger.WithError(err).Warn("Continuing with an empty watchlist")
	}

	// Refresh scheduler
	refresher, err := worker.NewRefreshWorker(&worker.RefreshWorkerConfig{
		Portfolio:            portfolio,
		Quotes:               quotes,
		Interval:             cfg.Refresh.Interval,
		LookupTimeout:        cfg.Refresh.LookupTimeout,
		MaxConcurrentLookups: cfg.Refresh.MaxConcurrentLookups,
		Logger:               logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh worker")
	}
	portfolio.SetRefreshTrigger(refresher)

	if err := refresher.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh worker")
	}

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Portfolio:    portfolio,
		Watchlist:    watchlist,
		Stocks:       stocks,
		DetailView:   service.NewDetailView(stocks),
		Refresher:    refresher,
		QuotesHealth: quotes,
		Logger:       logger,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"store":   backend.Name,
		"refresh": cfg.Refresh.Interval.String(),
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.WithError(err).Error("Server failed")
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	// The refresh timer is the only recurring task; it must not outlive the server
	if err := refresher.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Refresh worker did not stop cleanly")
	}

	// Flush pending write-throughs before the store closes
	portfolio.Wait()

	logger.Info("Server exited")
}
