package main

//
//  @title           stockpulse API
//  @version         1.0
//  @description     Daily stock quote ingestion pipeline with a read-only API over stored quotes.
//  @termsOfService  https://github.com/guttosm/stockpulse
//  @contact.name    API Support
//  @contact.url     https://github.com/guttosm/stockpulse
//  @contact.email   support@example.com
//  @license.name    MIT
//  @license.url     https://opensource.org/licenses/MIT
//  @host            localhost:8080
//  @BasePath        /
//  @schemes         http
//
//  @tag.name        quotes
//  @tag.description Stored quotes and pipeline statistics
//
//  @tag.name        health
//  @tag.description Liveness and readiness probes

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guttosm/stockpulse/config"
	_ "github.com/guttosm/stockpulse/docs" // swagger docs
	"github.com/guttosm/stockpulse/internal/app"
	"github.com/guttosm/stockpulse/internal/logger"
	"github.com/guttosm/stockpulse/internal/pipeline"
	"github.com/guttosm/stockpulse/internal/storage"
)

// newServer builds the HTTP server with the same timeouts for every mode.
func newServer(router http.Handler, port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// startServer initializes and starts the HTTP server in a separate goroutine.
func startServer(router http.Handler, port string) *http.Server {
	server := newServer(router, port)

	go func() {
		logger.L().Info().Str("port", port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L().Fatal().Err(err).Msg("server failed to start")
		}
	}()

	return server
}

// gracefulShutdown gracefully terminates the HTTP server and cleans up resources
// when an OS interrupt signal (SIGINT, SIGTERM) is received.
func gracefulShutdown(ctx context.Context, server *http.Server, cleanup func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	logger.L().Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L().Fatal().Err(err).Msg("server forced to shutdown")
	}

	cleanup()
	logger.L().Info().Msg("server exited gracefully")
}

// serveUntilDone runs server until ctx is cancelled, then shuts it down.
func serveUntilDone(ctx context.Context, server *http.Server) error {
	errc := make(chan error, 1)
	go func() {
		logger.L().Info().Str("addr", server.Addr).Msg("server starting")
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.L().Info().Msg("server exited gracefully")
	return nil
}

// openStore opens and migrates the database, returning the repository and a closer.
func openStore(ctx context.Context, cfg config.Config) (storage.QuotesRepository, func(), error) {
	db, dialect, err := app.OpenDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return storage.NewQuotesRepository(db, dialect), func() { _ = db.Close() }, nil
}

// runOnce executes a single pipeline run. A non-nil error means the run
// failed and the process should exit non-zero for the external scheduler.
func runOnce(ctx context.Context, cfg config.Config) error {
	repo, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	job := app.NewJob(cfg.Job, app.NewQuoteClient(cfg.QuoteAPI), repo)
	_, err = job.Run(ctx)
	return err
}

// runSchedule runs the periodic pipeline alongside the read API until ctx is done.
func runSchedule(ctx context.Context, cfg config.Config, port string) error {
	repo, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	router := app.BuildRouter(repo, func() error { return repo.Ping(context.Background()) })
	job := app.NewJob(cfg.Job, app.NewQuoteClient(cfg.QuoteAPI), repo)
	sched := pipeline.NewScheduler(job, cfg.Job)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error { return serveUntilDone(gctx, newServer(router, port)) })
	return g.Wait()
}

// runHealth writes the JSON health report to w and reports whether it is healthy.
// It connects to the database without migrating it.
func runHealth(ctx context.Context, cfg config.Config, w io.Writer) bool {
	var repo storage.QuotesRepository
	db, dialect, err := app.ConnectDatabase(ctx, cfg)
	if err != nil {
		logger.L().Warn().Err(err).Msg("database unavailable for health check")
	} else {
		defer func() { _ = db.Close() }()
		repo = storage.NewQuotesRepository(db, dialect)
	}

	report := app.NewHealthChecker(cfg, repo, app.NewQuoteClient(cfg.QuoteAPI)).Check(ctx)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	return report.Healthy()
}

// main is the entry point of the stockpulse application.
//
// Modes (selected via --mode flag):
//   - once:     Runs the pipeline once; exits 1 on failure.
//   - schedule: Runs the pipeline every SCHEDULE_INTERVAL and serves the API.
//   - api:      Starts the REST API over stored quotes.
//   - health:   Prints the JSON health report; exits 1 when unhealthy.
//
// Flags:
//   - --mode:    Execution mode. Default: "once".
//   - --symbols: Comma separated override for STOCK_SYMBOLS.
//   - --port:    Port for the API server. Defaults to SERVER_PORT.
func main() {
	mode := flag.String("mode", "once", "Mode: once, schedule, api or health")
	symbols := flag.String("symbols", "", "Comma separated symbols overriding STOCK_SYMBOLS")
	port := flag.String("port", "", "Port for the API server (default SERVER_PORT)")
	flag.Parse()

	override := func(c *config.Config) {
		if *symbols != "" {
			c.Job.Symbols = config.ParseSymbols(*symbols)
		}
	}

	// Load configuration from environment or .env file. The health report
	// lists missing variables instead of exiting.
	if *mode == "health" {
		config.AppConfig, _ = config.Load()
		override(&config.AppConfig)
	} else {
		config.LoadConfig(override)
	}
	cfg := config.AppConfig
	if *port == "" {
		*port = cfg.Server.Port
	}

	logger.Init()

	switch *mode {
	case "once":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := runOnce(ctx, cfg)
		stop()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("pipeline run failed")
		}
		logger.L().Info().Msg("pipeline run completed successfully")

	case "schedule":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := runSchedule(ctx, cfg, *port)
		stop()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("scheduler stopped with error")
		}

	case "api":
		logger.L().Info().Msg("starting API server")

		router, cleanup, err := app.InitializeApp()
		if err != nil {
			logger.L().Fatal().Err(err).Msg("app init error")
		}

		server := startServer(router, *port)
		gracefulShutdown(context.Background(), server, cleanup)

	case "health":
		if !runHealth(context.Background(), cfg, os.Stdout) {
			os.Exit(1)
		}

	default:
		logger.L().Fatal().Str("mode", *mode).Msg("unknown mode")
	}
}
