package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"clinicbook/internal/api"
	"clinicbook/internal/config"
	"clinicbook/internal/database"
	"clinicbook/internal/domain"
	"clinicbook/internal/events"
	"clinicbook/internal/google"
	"clinicbook/internal/logging"
	"clinicbook/internal/metrics"
	"clinicbook/internal/repository"
	"clinicbook/internal/service"
	"clinicbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, loc, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	eventBus := events.NewEventBus()
	eventBus.OnError(func(ev *events.Event, err error) {
		logger.Error().Err(err).Str("event", ev.Type).Int64("event_id", ev.ID).Msg("event handler failed")
	})
	events.SubscribeAll(eventBus, func(ev *events.Event) error {
		logger.Debug().Str("event", ev.Type).Int64("event_id", ev.ID).Msg("appointment event")
		return nil
	})

	if sheetsService := initGoogleSheets(ctx, cfg, logger); sheetsService != nil {
		syncWorker := worker.NewSyncWorker(db, sheetsService, redisClient, worker.DefaultRetryPolicy(), logger)
		events.SubscribeSync(ctx, eventBus, syncWorker, logger)
		go syncWorker.Start(ctx)
	}

	bookingService := service.NewBookingService(db, initSlotCache(cfg, redisClient, logger), eventBus, service.BookingOptions{
		GranularityMinutes: cfg.Booking.GranularityMinutes,
		MaxBookingDays:     cfg.Booking.MaxBookingDays,
		CancellationWindow: cfg.Booking.CancellationWindowDuration(),
		RateLimitAttempts:  cfg.Booking.RateLimitAttempts,
		RateLimitWindow:    cfg.Booking.RateLimitWindowDuration(),
		Location:           loc,
	}, logging.Component(logger, "booking"))
	catalogService := service.NewCatalogService(db, logging.Component(logger, "catalog"))
	tokens := api.NewTokens(cfg.API.Auth.JWT)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, logging.Component(logger, "backup"))
		go backupService.Start(ctx)
	}

	go runCompletionSweep(ctx, bookingService, cfg.Booking.CompletionIntervalDuration(), logger)

	startMetrics(ctx, cfg, logger)

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, running background jobs only")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, bookingService, catalogService, tokens, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}
	httpServer := api.NewHTTPServer(&cfg.API, bookingService, catalogService, tokens, logger)

	return startServers(ctx, grpcServer, httpServer, cfg, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}

	return cfg, logging.Component(baseLogger, "api-main"), closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("create export directory")
			return err
		}
	}
	return nil
}

func initDatabase(ctx context.Context, cfg *config.Config, loc *time.Location, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}
	db.SetLocation(loc)

	catalogPath := cfg.Catalog.Path
	if env := os.Getenv("CATALOG_PATH"); env != "" {
		catalogPath = env
	}
	if catalogPath == "" {
		return db, nil
	}

	catalog, err := config.LoadCatalog(catalogPath)
	if err != nil {
		_ = db.Close()
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("load catalog")
		return nil, err
	}
	professionals, services, err := catalog.Models()
	if err != nil {
		_ = db.Close()
		logger.Error().Err(err).Str("catalog_path", catalogPath).Msg("validate catalog")
		return nil, err
	}
	if err := db.SyncCatalog(ctx, professionals, services); err != nil {
		_ = db.Close()
		logger.Error().Err(err).Msg("sync catalog")
		return nil, err
	}
	logger.Info().Int("professionals", len(professionals)).Int("services", len(services)).Msg("catalog synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		// the failover cache keeps probing; the sync worker falls back to its local queue
		logger.Warn().Err(err).Msg("redis unavailable at start")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return client
}

func initSlotCache(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.SlotCache {
	ttl := cfg.Booking.CacheTTLDuration()
	memory := repository.NewMemorySlotCache(ttl)
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverSlotCache(repository.NewRedisSlotCache(redisClient, ttl), memory, logging.Component(logger, "slot-cache"))
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.CredentialsFile == "" || cfg.Google.AppointmentsSpreadsheetID == "" {
		logger.Info().Msg("google sheets not configured, ledger sync disabled")
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx, cfg.Google.CredentialsFile, cfg.Google.AppointmentsSpreadsheetID, cfg.Google.SheetName)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		email, _ := google.ServiceAccountEmail(cfg.Google.CredentialsFile)
		logger.Warn().Err(err).Str("service_account", email).Msg("google sheets connection test failed, share the spreadsheet with the service account")
		return nil
	}

	logger.Info().Str("sheet", cfg.Google.SheetName).Msg("google sheets connected")
	return sheetsService
}

// runCompletionSweep marks started appointments completed every interval.
func runCompletionSweep(ctx context.Context, booking *service.BookingService, interval time.Duration, logger *zerolog.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := booking.CompleteElapsed(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("complete elapsed appointments")
				continue
			}
			if n > 0 {
				logger.Info().Int("completed", n).Msg("elapsed appointments completed")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	event := logger.Info().Int("http_port", cfg.API.HTTP.Port)
	if grpcServer != nil {
		event = event.Str("grpc_addr", grpcServer.Addr())
	}
	event.Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
