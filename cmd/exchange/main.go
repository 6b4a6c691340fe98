package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pswantek/exchange/internal/config"
	"github.com/pswantek/exchange/internal/domain"
	"github.com/pswantek/exchange/internal/handler"
	"github.com/pswantek/exchange/internal/service"
	"github.com/pswantek/exchange/internal/store"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to the configured listen address's
	// /healthz, exit 0/1.
	if *healthcheck {
		addr := os.Getenv("LISTEN_ADDR")
		if addr == "" {
			addr = ":8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost%s/healthz", addr))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Domain.
	factory := domain.NewPriceFactory()

	// Stores.
	productStore := store.NewProductStore()
	sessions := store.NewSessionStore()
	trades := store.NewTradeStore()

	// Publishers. Ticker and Message share one subscriberRegistry per the
	// original PublisherDataTracker; CurrentMarket and LastSale each own a
	// private one.
	sharedReg := service.NewSharedRegistry()
	messages := service.NewMessagePublisher(sharedReg, sessions, logger)
	messages.SetRecorder(trades)
	ticker := service.NewTickerPublisher(sharedReg, sessions, logger)
	lastSale := service.NewLastSalePublisher(sessions, ticker, factory, logger)
	market := service.NewCurrentMarketPublisher(sessions, factory, logger)

	// Services.
	products := service.NewProductService(productStore, factory, messages, market, lastSale, logger)
	products.SetTradeStore(trades)
	ucs := service.NewUserCommandService(sessions, products, market, lastSale, ticker, messages, factory)

	// Router.
	router := handler.NewRouter(products, ucs, factory, cfg.PublisherDeliveryTimeout, logger)

	// Configure HTTP server.
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
