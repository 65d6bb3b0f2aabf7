package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/sbilibin2017/currency-converter/internal/cache"
	"github.com/sbilibin2017/currency-converter/internal/facades"
	"github.com/sbilibin2017/currency-converter/internal/handlers"
	"github.com/sbilibin2017/currency-converter/internal/logger"
	"github.com/sbilibin2017/currency-converter/internal/middlewares"
	"github.com/sbilibin2017/currency-converter/internal/models"
	"github.com/sbilibin2017/currency-converter/internal/repositories"
	"github.com/sbilibin2017/currency-converter/internal/retry"
	"github.com/sbilibin2017/currency-converter/internal/services"
	"github.com/sbilibin2017/currency-converter/internal/storage"
)

// Build info variables, set via ldflags at build time.
var (
	buildVersion = "N/A" // Version of the service
	buildDate    = "N/A" // Build date
	buildCommit  = "N/A" // Git commit hash
)

// @title currency-converter API
// @version 1.0.0
// @description Currency conversion service backed by Open Exchange Rates with in-memory caching and telemetry
// @host localhost:8080
// @BasePath /
// @schemes http
func main() {
	printBuildInfo()
	configPath := parseFlags()

	appHost, appPort, logLevel,
		oerBaseURL, oerAPIKey, oerTimeoutSecond,
		ratesTTLHours, telemetryTTLHours,
		cleanupInterval, corsOrigins,
		err := parseConfig(configPath)
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	if err := run(context.Background(),
		appHost, appPort, logLevel,
		oerBaseURL, oerAPIKey, oerTimeoutSecond,
		ratesTTLHours, telemetryTTLHours,
		cleanupInterval, corsOrigins,
	); err != nil {
		log.Fatalf("application stopped with error: %v", err)
	}
}

// printBuildInfo prints the build version, commit hash, and build date.
func printBuildInfo() {
	fmt.Printf("Starting service version %s, commit %s, build %s\n", buildVersion, buildCommit, buildDate)
}

// parseFlags parses command-line flags and returns the config file path.
func parseFlags() string {
	c := flag.String("c", "config.env", "Path to configuration file")
	flag.Parse()
	return *c
}

// parseConfig loads environment variables from a file and returns all
// application, provider, storage and scheduling configuration.
func parseConfig(path string) (
	appHost, appPort, logLevel string,
	oerBaseURL, oerAPIKey string, oerTimeoutSecond int,
	ratesTTLHours, telemetryTTLHours float64,
	cleanupInterval, corsOrigins string,
	err error,
) {
	_ = godotenv.Load(path)

	getEnv := func(key, defaultValue string) string {
		if val, ok := os.LookupEnv(key); ok && val != "" {
			return val
		}
		return defaultValue
	}

	// Application config
	appHost = getEnv("APP_HOST", "localhost")
	appPort = getEnv("APP_PORT", "8080")
	logLevel = getEnv("APP_LOG_LEVEL", "info")

	// Open Exchange Rates provider config
	oerBaseURL = getEnv("OER_BASE_URL", "https://openexchangerates.org/api")
	oerAPIKey = getEnv("OER_API_KEY", "")
	if oerTimeoutSecond, err = strconv.Atoi(getEnv("OER_TIMEOUT_SECOND", "10")); err != nil {
		return
	}

	// Store retention config
	if ratesTTLHours, err = strconv.ParseFloat(getEnv("RATES_CACHE_TTL_HOURS", "1"), 64); err != nil {
		return
	}
	if telemetryTTLHours, err = strconv.ParseFloat(getEnv("TELEMETRY_TTL_HOURS", "24"), 64); err != nil {
		return
	}

	// Maintenance and HTTP config
	cleanupInterval = getEnv("CLEANUP_INTERVAL", "10m")
	corsOrigins = getEnv("CORS_ALLOWED_ORIGINS", "*")

	return
}

// run initializes the logger, the in-memory store, the provider facade and
// the HTTP server. It sets up routes, applies middleware, schedules the
// expired-record sweep and handles graceful shutdown.
func run(ctx context.Context,
	appHost, appPort, logLevel string,
	oerBaseURL, oerAPIKey string, oerTimeoutSecond int,
	ratesTTLHours, telemetryTTLHours float64,
	cleanupInterval, corsOrigins string,
) error {
	// Initialize logger
	logr, err := logger.New(logLevel)
	if err != nil {
		fmt.Println("failed to initialize logger:", err)
		return err
	}
	defer logr.Sync()
	logr.Infof("Logger initialized with level %s", logLevel)

	// Initialize the in-memory store and domain tables
	db := storage.NewMemDB()
	repo, err := repositories.NewCurrencyRepository(db, ratesTTLHours, telemetryTTLHours, logr)
	if err != nil {
		logr.Errorw("failed to create domain tables", "error", err)
		return err
	}

	// Initialize the rates provider facade
	oer, err := facades.NewOpenExchangeRatesFacade(
		oerBaseURL, oerAPIKey, time.Duration(oerTimeoutSecond)*time.Second, logr)
	if err != nil {
		logr.Errorw("provider configuration error", "error", err)
		return err
	}

	// Initialize the conversion engine
	ratesCache := cache.New[models.RatesResponse](time.Duration(ratesTTLHours * float64(time.Hour)))
	conversionService := services.NewConversionService(
		oer, ratesCache, repo, retry.AlwaysOnline(), retry.Options{}, logr)

	// Seed currency metadata from the provider, best effort
	seedCtx, cancelSeed := context.WithTimeout(ctx, 30*time.Second)
	defer cancelSeed()
	if currencies, err := oer.Currencies(seedCtx); err != nil {
		logr.Warnw("could not seed currency metadata", "error", err)
	} else {
		metadata := make([]models.CurrencyMetadata, 0, len(currencies))
		for code, name := range currencies {
			metadata = append(metadata, models.CurrencyMetadata{Code: code, Name: name, IsActive: true})
		}
		if err := repo.SaveCurrencyMetadata(metadata); err != nil {
			logr.Warnw("failed to store currency metadata", "error", err)
		} else {
			logr.Infof("seeded metadata for %d currencies", len(metadata))
		}
	}

	// Schedule the periodic expired-record sweep
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every "+cleanupInterval, func() {
		evicted := repo.Cleanup() + ratesCache.CleanupExpired()
		if evicted > 0 {
			logr.Infow("sweep finished", "evicted", evicted)
		}
	}); err != nil {
		logr.Errorw("invalid cleanup interval", "interval", cleanupInterval, "error", err)
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Setup router
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(corsOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(middlewares.LoggingMiddleware(logr))
	r.Use(middlewares.TelemetryMiddleware(repo, logr))

	r.Get("/api/convert", handlers.NewConvertHandler(conversionService))
	r.Get("/api/rates", handlers.NewRatesHandler(conversionService))
	r.Get("/api/stats", handlers.NewStatsHandler(repo))
	r.Get("/api/usage", handlers.NewProviderUsageHandler(oer))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL(fmt.Sprintf("http://%s:%s/swagger/doc.json", appHost, appPort)),
	))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", appHost, appPort),
		Handler: r,
	}

	// Graceful shutdown
	errChan := make(chan error, 1)
	ctxShutdown, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	go func() {
		logr.Infof("HTTP server listening on %s:%s", appHost, appPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	select {
	case <-ctxShutdown.Done():
		logr.Info("Shutdown signal received, stopping HTTP server...")
	case serveErr := <-errChan:
		return serveErr
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Errorw("HTTP server shutdown error", "error", err)
	}

	logr.Info("HTTP server stopped gracefully")
	return nil
}
