package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/domain"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/google"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/notify"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	facilities, err := loadFacilities(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, facilities, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	cache := initCache(redisClient, &logger)

	notifier := initNotifier(cfg, &logger)
	sheetsService := initGoogleSheets(ctx, cfg, &logger)

	eventBus := events.NewEventBus()
	trustService := service.NewTrustService(db, cache, eventBus, notifier, cfg.Trust, &logger)
	promotionService := service.NewPromotionService(db, &logger)
	bookingService := service.NewBookingService(db, trustService, promotionService, eventBus, &logger)

	var sheetsWriter domain.SheetsWriter
	if sheetsService != nil {
		sheetsWriter = sheetsService
	}
	retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
	trustWorker := worker.NewTrustWorker(db, sheetsWriter, trustService, redisClient, retryPolicy, &logger)
	go trustWorker.Start(ctx)
	subscribeTrustEvents(ctx, eventBus, trustWorker, sheetsWriter != nil, &logger)

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backupService.Start(ctx)
	}

	if cfg.Exports.Path != "" {
		exporter := export.NewExcelExporter(&logger)
		go runReportLoop(ctx, db, exporter, cfg.Exports.Path, &logger)
	}

	startMetrics(ctx, cfg, &logger)

	httpServer := api.NewHTTPServer(cfg.API, db, cache, trustService, promotionService, bookingService, &logger)
	return startServer(ctx, httpServer, cfg, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

// loadFacilities reads the facility roster from FACILITIES_PATH when
// the file exists, otherwise falls back to the facilities embedded in
// the main config.
func loadFacilities(cfg *config.Config, logger *zerolog.Logger) ([]models.Facility, error) {
	facilitiesPath := os.Getenv("FACILITIES_PATH")
	if facilitiesPath == "" {
		facilitiesPath = "configs/facilities.yaml"
	}

	data, err := os.ReadFile(facilitiesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.Facilities, nil
		}
		logger.Error().Err(err).Str("facilities_path", facilitiesPath).Msg("read facilities")
		return nil, err
	}

	var facilitiesConfig struct {
		Facilities []models.Facility `yaml:"facilities"`
	}
	if err := yaml.Unmarshal(data, &facilitiesConfig); err != nil {
		logger.Error().Err(err).Str("facilities_path", facilitiesPath).Msg("parse facilities")
		return nil, err
	}

	if err := config.ValidateFacilities(facilitiesConfig.Facilities); err != nil {
		logger.Error().Err(err).Msg("facilities validation failed")
		return nil, err
	}

	return facilitiesConfig.Facilities, nil
}

func initDatabase(cfg *config.Config, facilities []models.Facility, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	pointers := make([]*models.Facility, len(facilities))
	for i := range facilities {
		pointers[i] = &facilities[i]
	}
	db.SetFacilities(pointers)
	return db, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initCache builds the eligibility cache: redis with an in-memory
// fallback when redis is configured, plain memory otherwise.
func initCache(redisClient *redis.Client, logger *zerolog.Logger) domain.CacheRepository {
	memory := repository.NewMemoryCacheRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisCacheRepository(redisClient)
	return repository.NewFailoverCacheRepository(primary, memory, logger)
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.ManagerNotifier {
	if !cfg.Telegram.Enabled || len(cfg.Managers) == 0 {
		return nil
	}

	botAPI, err := notify.NewBotAPI(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without manager alerts")
		return nil
	}

	logger.Info().Int("managers", len(cfg.Managers)).Msg("telegram notifier connected")
	return notify.NewTelegramNotifier(botAPI, cfg.Managers, logger)
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.TrustSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(cfg.Google.GoogleCredentialsFile, cfg.Google.TrustSpreadSheetID)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without the mirror")
		return nil
	}

	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without the mirror")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

// subscribeTrustEvents routes trust events into the worker queue: events
// that change a user's standing queue a sheet sync (when the mirror is
// configured), and failed batch completions queue a retried attempt.
func subscribeTrustEvents(ctx context.Context, bus *events.EventBus, trustWorker *worker.TrustWorker, mirror bool, logger *zerolog.Logger) {
	enqueue := func(taskType string) events.EventHandler {
		return func(ev *events.Event) error {
			var payload events.TrustEventPayload
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: decode payload")
				return nil
			}
			if err := trustWorker.EnqueueTask(ctx, taskType, payload.BookingID); err != nil {
				logger.Error().Err(err).Str("event", ev.Type).Msg("event bus: enqueue task")
			}
			return nil
		}
	}

	if mirror {
		bus.Subscribe(events.EventBookingCompleted, enqueue(worker.TaskSyncUsers))
		bus.Subscribe(events.EventUserPromoted, enqueue(worker.TaskSyncUsers))
		bus.Subscribe(events.EventUserBanned, enqueue(worker.TaskSyncUsers))
		bus.Subscribe(events.EventStrikeReported, enqueue(worker.TaskSyncStrikes))
		bus.Subscribe(events.EventStrikesExpired, enqueue(worker.TaskSyncStrikes))
	}
	// Batch completions that failed come back through the worker with
	// backoff instead of waiting for the next cron run.
	bus.Subscribe(events.EventCompletionRetry, enqueue(worker.TaskProcessCompletion))
}

// runReportLoop writes a daily trust report workbook into the export
// directory.
func runReportLoop(ctx context.Context, db *database.DB, exporter *export.ExcelExporter, dir string, logger *zerolog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			users, err := db.GetAllUsers(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("report: load users")
				continue
			}
			strikes, err := db.GetAllStrikes(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("report: load strikes")
				continue
			}
			path := export.DefaultReportPath(dir, time.Now())
			if err := exporter.ExportTrustReport(ctx, users, strikes, path); err != nil {
				logger.Error().Err(err).Msg("report: export failed")
			}
		}
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
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

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}
