package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stoyanka/internal/api"
	"stoyanka/internal/config"
	"stoyanka/internal/database"
	"stoyanka/internal/domain"
	"stoyanka/internal/events"
	"stoyanka/internal/export"
	"stoyanka/internal/ledger"
	"stoyanka/internal/lifecycle"
	"stoyanka/internal/logging"
	"stoyanka/internal/metrics"
	"stoyanka/internal/models"
	"stoyanka/internal/otp"
	"stoyanka/internal/repository"
	"stoyanka/internal/worker"

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

	spaces, err := loadSpaces(cfg, &logger)
	if err != nil {
		return err
	}

	db, err := initDatabase(cfg, spaces, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	challengeRepo := initChallengeRepo(redisClient, &logger)
	otpService := otp.NewService(
		challengeRepo,
		time.Duration(cfg.Booking.CheckInOtpTTLMinutes)*time.Minute,
		time.Duration(cfg.Booking.CheckOutOtpTTLMinutes)*time.Minute,
		cfg.Booking.OtpAttempts,
		&logger,
	)

	bus := events.NewBus()
	led := ledger.New(db, bus, &logger)
	coordinator := lifecycle.NewCoordinator(db, led, otpService, bus, &logger)
	exporter := export.New(db, cfg.Exports.Path, &logger)
	hub := api.NewHub(bus, &logger)

	httpServer := api.NewHTTPServer(cfg.API, coordinator, led, exporter, hub, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := worker.NewSweeper(coordinator, time.Duration(cfg.Booking.SweepIntervalMinutes)*time.Minute, &logger)
	go sweeper.Run(ctx)

	startMetrics(ctx, cfg, &logger)

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

// loadSpaces читает каталог площадок из отдельного YAML-файла; если его
// нет, используется список из основного конфига.
func loadSpaces(cfg *config.Config, logger *zerolog.Logger) ([]models.ParkingSpace, error) {
	spacesPath := os.Getenv("SPACES_PATH")
	if spacesPath == "" {
		spacesPath = "configs/spaces.yaml"
	}

	data, err := os.ReadFile(spacesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg.Spaces, nil
		}
		logger.Error().Err(err).Str("spaces_path", spacesPath).Msg("read spaces")
		return nil, err
	}

	var spacesConfig struct {
		Spaces []models.ParkingSpace `yaml:"spaces"`
	}
	if err := yaml.Unmarshal(data, &spacesConfig); err != nil {
		logger.Error().Err(err).Str("spaces_path", spacesPath).Msg("parse spaces")
		return nil, err
	}

	if err := config.ValidateSpaces(spacesConfig.Spaces); err != nil {
		return nil, err
	}
	return spacesConfig.Spaces, nil
}

func initDatabase(cfg *config.Config, spaces []models.ParkingSpace, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	for i := range spaces {
		if err := db.UpsertSpace(context.Background(), &spaces[i]); err != nil {
			logger.Error().Err(err).Str("space_id", spaces[i].ID).Msg("seed space")
			return nil, err
		}
	}
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

// initChallengeRepo собирает хранилище OTP: Redis с откатом в память,
// либо чистая память, если Redis не настроен.
func initChallengeRepo(redisClient *redis.Client, logger *zerolog.Logger) domain.ChallengeRepository {
	memory := repository.NewMemoryChallengeRepository()
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisChallengeRepository(redisClient)
	return repository.NewFailoverChallengeRepository(primary, memory, logger)
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
