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
	"syscall"
	"time"

	"guesthouse/internal/api"
	"guesthouse/internal/config"
	"guesthouse/internal/database"
	"guesthouse/internal/domain"
	"guesthouse/internal/events"
	"guesthouse/internal/export"
	"guesthouse/internal/google"
	"guesthouse/internal/logging"
	"guesthouse/internal/metrics"
	"guesthouse/internal/notify"
	"guesthouse/internal/repository"
	"guesthouse/internal/service"
	"guesthouse/internal/worker"

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
	cfg, base, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := *logging.Component(&base, "api-main")

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if err := seedDatabase(cfg, db, &logger); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus := events.NewEventBus(&logger)

	sender, err := initSender(cfg, &logger)
	if err != nil {
		return err
	}
	notifier := worker.NewNotificationWorker(db, sender, redisClient, cfg.Notifications, logging.Component(&base, "notifications"))
	go notifier.Start(ctx)

	var ledger api.LedgerSync
	if cfg.Google.SyncEnabled {
		sheetsWorker, err := initSheetsSync(ctx, cfg, db, redisClient, logging.Component(&base, "sheets"))
		if err != nil {
			return err
		}
		sheetsWorker.Subscribe(bus)
		go sheetsWorker.Start(ctx)
		ledger = sheetsWorker
	}

	promos := service.NewPromoService(db, &logger)
	search := service.NewSearchService(db, cfg.Search, &logger)
	search.Subscribe(bus)
	defer search.Stop()

	services := api.Services{
		Bookings: service.NewBookingService(
			db, initLocker(cfg, redisClient, &logger), promos, bus, notifier,
			cfg.Booking.MaxAdvanceDays, &logger,
		),
		Promos:       promos,
		Search:       search,
		Guesthouses:  service.NewGuesthouseService(db, bus, &logger),
		Availability: service.NewAvailabilityService(db, bus, &logger),
		Users:        service.NewUserService(db, &logger),
		Reports:      export.NewReporter(db, cfg.Exports.Path, &logger),
		Sync:         ledger,
		Store:        db,
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	limiter := api.NewRateLimiter(cfg.API.RateLimit)
	httpServer := api.NewHTTPServer(cfg.API, services, limiter, logging.Component(&base, "http"))

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(&cfg.API, db, limiter, logging.Component(&base, "grpc"))
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.WatchHealth(ctx, 15*time.Second)
	}

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *baseLogger, closer, nil
}

func seedDatabase(cfg *config.Config, db *database.DB, logger *zerolog.Logger) error {
	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = cfg.SeedFile
	}
	if seedPath == "" {
		return nil
	}

	seed, err := database.LoadSeed(seedPath)
	if err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("load seed")
		return err
	}
	if _, err := db.ApplySeed(context.Background(), seed); err != nil {
		logger.Error().Err(err).Str("seed_path", seedPath).Msg("apply seed")
		return err
	}
	return nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// Lockers and the notification queue fall back while Redis is down.
		logger.Warn().Err(err).Msg("redis unavailable at startup")
		return redisClient
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initLocker(cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) domain.RoomLocker {
	local := repository.NewLocalRoomLocker()
	if redisClient == nil {
		return local
	}
	primary := repository.NewRedisRoomLocker(redisClient, cfg.Booking.LockTTL, logger)
	return repository.NewFailoverRoomLocker(primary, local, logger)
}

func initSender(cfg *config.Config, logger *zerolog.Logger) (domain.NotificationSender, error) {
	if cfg.Notifications.Channel != "telegram" {
		return notify.NewLogSender(logger), nil
	}

	bot, err := notify.NewBot(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("create telegram bot")
		return nil, err
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram notifications enabled")
	return notify.NewTelegramSender(bot, cfg.Notifications.BreakAfter, cfg.Notifications.Timeout, logger), nil
}

func initSheetsSync(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	redisClient *redis.Client,
	logger *zerolog.Logger,
) (*worker.SheetsWorker, error) {
	sheetsService, err := google.NewSheetsService(ctx, cfg.Google, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init google sheets")
		return nil, err
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		if email, emailErr := google.ServiceAccountEmail(cfg.Google.CredentialsFile); emailErr == nil {
			logger.Error().Err(err).Str("share_with", email).Msg("google sheets connection test failed")
		}
		return nil, err
	}
	go sheetsService.StartCacheRefresh(ctx, 10*time.Minute)

	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	logger.Info().Msg("google sheets sync enabled")
	return worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, logger), nil
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
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Bool("grpc", grpcServer != nil).Msg("API server started")

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
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
