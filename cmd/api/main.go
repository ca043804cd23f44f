// cmd/api/main.go
package main

import (
	"bookshare/internal/booking"
	"bookshare/internal/chaos"
	"bookshare/internal/clients"
	"bookshare/internal/config"
	"bookshare/internal/session"
	"bookshare/internal/telemetry"
	"bookshare/internal/web"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("bookshare-api %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.IsProduction(), cfg.Server.Debug)

	shutdownTelemetry, err := telemetry.Setup(context.Background(), cfg.Telemetry)
	if err != nil {
		log.Fatalf("Failed to set up telemetry: %v", err)
	}

	target, err := url.Parse(cfg.API.BaseURL)
	if err != nil {
		log.Fatalf("Invalid API_BASE_URL %q: %v", cfg.API.BaseURL, err)
	}

	transport := http.DefaultTransport
	if rate := cfg.Chaos.BookingFailureRate; rate > 0 {
		logger.Warn("chaos enabled", "booking_failure_rate", rate)
		transport = chaos.NewTransport(transport, chaos.RejectBookings(rate))
	}

	opts := clients.Options{
		Timeout:   cfg.API.Timeout,
		Transport: transport,
		Limiter:   clients.NewLimiter(cfg.API.RateLimit, cfg.API.RateBurst),
		Logger:    logger,
	}
	catalogClient := clients.NewCatalogClient(cfg.API.BaseURL, opts)
	bookingClient := clients.NewBookingClient(cfg.API.BaseURL, opts)
	authClient := clients.NewAuthClient(cfg.API.BaseURL, opts)

	sessions := session.NewRegistry()
	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	if ttl := cfg.Server.SessionIdleTTL; ttl > 0 {
		go sessions.Janitor(janitorCtx, ttl, ttl/4, logger)
	}
	refresher := session.NewRefresher(sessions, catalogClient, logger)
	svc := booking.NewService(bookingClient, refresher, logger)
	h := web.NewHandler(svc, catalogClient, sessions, logger)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      web.NewRouter(h, authClient, web.NewProxy(target, transport)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		logger.Info("shutting down server")
		stopJanitor()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("bookshare-api starting", "addr", addr, "api", cfg.API.BaseURL, "env", cfg.Server.Env)

	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTelemetry(ctx); err != nil {
		logger.Error("telemetry shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
