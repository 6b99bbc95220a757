package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"clinicbook/internal/api"
	"clinicbook/internal/config"
	"clinicbook/internal/database"
	"clinicbook/internal/domain"
	"clinicbook/internal/events"
	"clinicbook/internal/logging"
	"clinicbook/internal/repository"
	"clinicbook/internal/service"
	"clinicbook/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app holds everything a command may need. Commands open it on demand and
// close it when they return.
type app struct {
	configPath string

	cfg     *config.Config
	logger  *zerolog.Logger
	closer  io.Closer
	db      *database.DB
	redis   *redis.Client
	booking *service.BookingService
	catalog *service.CatalogService
	users   *service.UserService
	tokens  *api.Tokens
	sync    *worker.SyncWorker
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "clinicctl",
		Short:        "Administer the clinic booking service",
		SilenceUsage: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", defaultConfig, "path to config.yaml")

	root.AddCommand(
		newCatalogCmd(a),
		newConfirmCmd(a),
		newCompleteCmd(a),
		newCompleteElapsedCmd(a),
		newAgendaCmd(a),
		newBackupCmd(a),
		newExportCmd(a),
		newUserCmd(a),
		newTokenCmd(a),
		newSyncCmd(a),
	)
	return root
}

// open loads config and wires the services.
func (a *app) open(cmd *cobra.Command) error {
	if a.db != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// keep stdout for command output
	if !strings.EqualFold(cfg.Logging.Output, "file") {
		cfg.Logging.Output = "stderr"
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	a.cfg, a.closer = cfg, closer
	a.logger = logging.Component(logger, "clinicctl")

	loc, err := cfg.Booking.Location()
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, a.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	db.SetLocation(loc)
	a.db = db

	ctx := cmd.Context()
	var cache domain.SlotCache = repository.NewMemorySlotCache(cfg.Booking.CacheTTLDuration())
	if cfg.Redis.Address != "" {
		a.redis = repository.NewRedisClient(cfg.Redis)
		if err := repository.Ping(ctx, a.redis); err != nil {
			a.logger.Warn().Err(err).Msg("redis unavailable")
		}
		// bumping the shared version counters keeps the server's cached slots honest
		cache = repository.NewFailoverSlotCache(repository.NewRedisSlotCache(a.redis, cfg.Booking.CacheTTLDuration()), cache, a.logger)
	}

	// Tasks are only queued here; the API process delivers them to Sheets.
	a.sync = worker.NewSyncWorker(db, nil, a.redis, worker.DefaultRetryPolicy(), a.logger)
	bus := events.NewEventBus()
	if googleConfigured(cfg) {
		events.SubscribeSync(ctx, bus, a.sync, a.logger)
	}

	a.booking = service.NewBookingService(db, cache, bus, service.BookingOptions{
		GranularityMinutes: cfg.Booking.GranularityMinutes,
		MaxBookingDays:     cfg.Booking.MaxBookingDays,
		CancellationWindow: cfg.Booking.CancellationWindowDuration(),
		RateLimitAttempts:  cfg.Booking.RateLimitAttempts,
		RateLimitWindow:    cfg.Booking.RateLimitWindowDuration(),
		Location:           loc,
	}, a.logger)
	a.catalog = service.NewCatalogService(db, a.logger)
	a.users = service.NewUserService(db, a.logger)
	a.tokens = api.NewTokens(cfg.API.Auth.JWT)
	return nil
}

func (a *app) close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, repository.Close(a.redis))
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
		a.closer = nil
	}
	return errors.Join(errs...)
}

func googleConfigured(cfg *config.Config) bool {
	return cfg.Google.CredentialsFile != "" && cfg.Google.AppointmentsSpreadsheetID != ""
}

// withApp adapts a command body that needs the opened services.
func withApp(a *app, run func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := a.open(cmd); err != nil {
			_ = a.close()
			return err
		}
		err := run(cmd, args)
		return errors.Join(err, a.close())
	}
}
