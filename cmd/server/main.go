package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"fleetops/internal/app"
	"fleetops/internal/config"
	"fleetops/internal/handler"
	"fleetops/internal/imaging"
	"fleetops/internal/logger"
	"fleetops/internal/middleware"
	internalRedis "fleetops/internal/redis"
	"fleetops/internal/repository/postgres"
	"fleetops/internal/service"
	"fleetops/internal/storage"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	migrateOnly := pflag.Bool("migrate", false, "apply database migrations and exit")
	pflag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		logrus.WithError(err).Fatal("failed to load env file")
	}

	// Load configuration.
	cfg := config.Load()
	log := logger.Setup(cfg.Log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		var err error
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			log.WithError(err).Warn("failed to initialize New Relic")
		} else {
			log.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	log.Info("connected to PostgreSQL")

	if *migrateOnly || cfg.Database.AutoMigrate {
		if err := app.Migrate(ctx, db, log); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		if *migrateOnly {
			return
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info("connected to Redis")

	blobs, err := storage.NewS3Store(storage.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		PathStyle: cfg.Storage.PathStyle,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to initialize object storage")
	}

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT_SECRET must be set")
	}

	server := wireServer(db, redisClient, blobs, nrApp, cfg, log)

	go func() {
		log.WithField("port", cfg.Server.Port).Info("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	log.Info("server exited")
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	db *sql.DB,
	redisClient *redis.Client,
	blobs storage.BlobStore,
	nrApp *newrelic.Application,
	cfg *config.Config,
	log *logrus.Logger,
) *http.Server {
	retry := postgres.Retrier{MaxRetries: cfg.Retry.MaxRetries, BaseDelay: cfg.Retry.BaseDelay}

	// Initialize Redis stores.
	zoneStore := internalRedis.NewZoneStore(redisClient)
	fingerprints := internalRedis.NewFingerprintIndex(redisClient)

	// Initialize repositories.
	tripRepo := postgres.NewTripRepository(db, retry)
	notificationRepo := postgres.NewNotificationRepository(db, retry)
	chatRepo := postgres.NewChatRepository(db, retry)

	// Initialize services.
	dispatcher := service.NewDispatcher(notificationRepo, log.WithField("component", "dispatcher"), nil)
	tripService := service.NewTripService(tripRepo, dispatcher, log.WithField("component", "trips"), nil).
		WithZoneCleanup(zoneStore)
	operationsService := service.NewOperationsService(tripService, notificationRepo, dispatcher)
	geofenceService := service.NewGeofenceService(
		tripService, zoneStore, dispatcher, cfg.Geofence.RadiusMeters, log.WithField("component", "geofence"),
	)
	notificationService := service.NewNotificationService(notificationRepo, log.WithField("component", "notifications"))
	attachments := service.NewAttachmentProvisioner(
		blobs,
		fingerprints,
		imaging.NewCompressor(cfg.Storage.MaxImageEdgePx),
		cfg.Storage.Bucket,
		cfg.Storage.SignedURLTTL,
		log.WithField("component", "attachments"),
	)
	chatService := service.NewChatService(chatRepo, tripService, attachments, dispatcher, log.WithField("component", "chat"), nil)

	router := app.NewRouter(app.RouterDeps{
		TripHandler:         handler.NewTripHandler(tripService),
		EventHandler:        handler.NewEventHandler(operationsService, geofenceService),
		NotificationHandler: handler.NewNotificationHandler(notificationService),
		ChatHandler:         handler.NewChatHandler(chatService, cfg.Server.MaxUploadBytes),
		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"postgres": db,
			"redis": handler.PingFunc(func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			}),
		}),
		Authenticator: middleware.NewAuthenticator(cfg.Auth.JWTSecret),
		RedisClient:   redisClient,
		NewRelicApp:   nrApp,
		Logger:        log,
		CORSOrigins:   cfg.Server.CORSOrigins,
	})

	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
