package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"courier/internal/app"
	"courier/internal/config"
	"courier/internal/events"
	"courier/internal/geo"
	"courier/internal/handler"
	"courier/internal/logger"
	internalRedis "courier/internal/redis"
	"courier/internal/repository/postgres"
	"courier/internal/service"
	"courier/internal/worker"
)

// defaultSweepInterval applies when RETENTION_MODE=sweep without an interval.
const defaultSweepInterval = time.Minute

func main() {
	// Load configuration.
	cfg := config.Load()

	logCloser := logger.Setup(cfg.Log)
	defer logCloser.Close()

	if err := cfg.Auth.Validate(); err != nil {
		logrus.WithError(err).Fatal("invalid auth configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize New Relic FIRST (before database so we can instrument DB).
	var nrApp *newrelic.Application
	var err error
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		nrApp, err = newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logrus.WithError(err).Warn("failed to initialize New Relic")
		} else {
			logrus.WithField("app", cfg.NewRelic.AppName).Info("New Relic enabled")
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, nrApp)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()
	logrus.Info("connected to PostgreSQL")

	if cfg.Database.RunMigrations {
		if err := postgres.Migrate(ctx, db); err != nil {
			logrus.WithError(err).Fatal("failed to run migrations")
		}
	}

	redisClient, err := app.NewRedisClient(ctx, cfg.Redis, nrApp)
	if err != nil {
		logrus.WithError(err).Fatal("failed to connect to redis")
	}
	defer redisClient.Close()
	logrus.Info("connected to Redis")

	publisher := newPublisher(cfg.Kafka)
	defer publisher.Close()

	srv := wireServer(ctx, db, redisClient, publisher, nrApp, cfg)

	bg, stopBackground := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	if srv.sweeper != nil {
		workers.Add(1)
		go func() {
			defer workers.Done()
			srv.sweeper.Run(bg)
		}()
	}

	go func() {
		logrus.WithField("port", cfg.Server.Port).Info("starting server")
		if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server forced to shutdown")
	}
	stopBackground()
	workers.Wait()
	if nrApp != nil {
		nrApp.Shutdown(5 * time.Second)
	}

	logrus.Info("server exited")
}

type server struct {
	http    *http.Server
	sweeper *worker.RetentionSweeper
}

func newPublisher(cfg config.KafkaConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		logrus.Info("no Kafka brokers configured; location events are logged only")
		return events.NewLogPublisher(logrus.WithField("component", "events"))
	}
	logrus.WithFields(logrus.Fields{"brokers": cfg.Brokers, "topic": cfg.Topic}).Info("publishing location events to Kafka")
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, logrus.WithField("component", "events"))
}

func newPositionIndex(cfg config.TrackingConfig, client *redis.Client) internalRedis.PositionIndex {
	if cfg.SpatialIndex == config.SpatialIndexMemory {
		logrus.WithField("cell_degrees", cfg.GridCellDegrees).Info("using in-process spatial index")
		return geo.NewGridIndex(cfg.GridCellDegrees)
	}
	return internalRedis.NewPositionStore(client)
}

func trackingPolicy(cfg config.TrackingConfig) service.TrackingPolicy {
	return service.TrackingPolicy{
		HistoryCap:  cfg.HistoryCap,
		TrimInline:  cfg.RetentionMode != config.RetentionSweep,
		RejectStale: cfg.RejectStale,
	}
}

// sweepInterval returns how often the retention sweeper runs, or 0 when it
// should not run. Sweep mode always runs it; inline mode only on request.
func sweepInterval(cfg config.TrackingConfig) time.Duration {
	if cfg.SweepInterval > 0 {
		return cfg.SweepInterval
	}
	if cfg.RetentionMode == config.RetentionSweep {
		return defaultSweepInterval
	}
	return 0
}

// wireServer wires all dependencies and returns the HTTP server.
func wireServer(
	ctx context.Context,
	db *sql.DB,
	redisClient *redis.Client,
	publisher events.Publisher,
	nrApp *newrelic.Application,
	cfg *config.Config,
) *server {
	// Initialize Redis stores.
	index := newPositionIndex(cfg.Tracking, redisClient)
	lockStore := internalRedis.NewLockStore(redisClient)
	cacheStore := internalRedis.NewCacheStore(redisClient)
	responseCache := internalRedis.NewResponseCache(redisClient)

	// Initialize repositories.
	userRepo := postgres.NewUserRepository(db)
	driverRepo := postgres.NewDriverRepository(db)
	deliveryRepo := postgres.NewDeliveryRepository(db)
	locationRepo := postgres.NewLocationRepository(db)

	// Initialize services.
	policy := trackingPolicy(cfg.Tracking)
	trackingService := service.NewTrackingService(driverRepo, locationRepo, deliveryRepo, index, cacheStore, publisher, policy).
		WithLogger(logrus.WithField("component", "tracking"))
	historyService := service.NewHistoryService(locationRepo)
	proximityService := service.NewProximityService(index, cacheStore, driverRepo)
	driverService := service.NewDriverService(index, cacheStore, driverRepo)
	deliveryService := service.NewDeliveryService(deliveryRepo, driverRepo)
	authService := service.NewAuthService(db, userRepo, driverRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// The GEO set and the drivers table are written separately; rebuild the
	// index from Postgres so a crash between the two writes heals on restart.
	if n, err := proximityService.Reindex(ctx); err != nil {
		logrus.WithError(err).Warn("failed to rebuild spatial index")
	} else {
		logrus.WithField("drivers", n).Info("spatial index rebuilt")
	}

	if cfg.Auth.AdminEmail != "" && cfg.Auth.AdminPassword != "" {
		if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logrus.WithError(err).Error("failed to create admin account")
		}
	}

	var sweeper *worker.RetentionSweeper
	if interval := sweepInterval(cfg.Tracking); interval > 0 {
		sweeper = worker.NewRetentionSweeper(locationRepo, lockStore, policy.HistoryCap, interval)
		logrus.WithField("interval", interval).Info("retention sweeper enabled")
	}

	// Initialize handlers.
	locationHandler := handler.NewLocationHandler(trackingService, historyService, proximityService, service.NewRouteService())
	driverHandler := handler.NewDriverHandler(driverService)
	deliveryHandler := handler.NewDeliveryHandler(deliveryService, historyService)
	authHandler := handler.NewAuthHandler(authService)

	router := app.NewRouter(app.RouterDeps{
		LocationHandler: locationHandler,
		DriverHandler:   driverHandler,
		DeliveryHandler: deliveryHandler,
		AuthHandler:     authHandler,
		Tokens:          authService,
		Responses:       responseCache,
		CORSOrigins:     cfg.Server.CORSOrigins,
		Logger:          logrus.WithField("component", "http"),
		NewRelicApp:     nrApp,
	})

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		sweeper: sweeper,
	}
}
