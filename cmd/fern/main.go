package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/internal/repositories/assetcache"
	contentrepo "github.com/Ramsey-B/fern/internal/repositories/content"
	destinationrepo "github.com/Ramsey-B/fern/internal/repositories/destination"
	"github.com/Ramsey-B/fern/internal/repositories/stagingrecord"
	"github.com/Ramsey-B/fern/pkg/assets"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/encoder"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/exporter"
	"github.com/Ramsey-B/fern/pkg/httpclient"
	"github.com/Ramsey-B/fern/pkg/importer"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/redis"
	destinationroute "github.com/Ramsey-B/fern/pkg/routes/destination"
	exportroute "github.com/Ramsey-B/fern/pkg/routes/export"
	"github.com/Ramsey-B/fern/pkg/routes/health"
	"github.com/Ramsey-B/fern/pkg/routes/intake"
	stagingroute "github.com/Ramsey-B/fern/pkg/routes/staging"
	"github.com/Ramsey-B/fern/pkg/scheduler"
	"github.com/Ramsey-B/fern/pkg/startup"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/transport"
)

const version = "1.0.0"

func main() {
	_ = godotenv.Load()

	cfg := &config.Config{}
	if err := ectoenv.BindEnv(cfg); err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger := newLogger(cfg)

	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracing.SetTracer(otel.Tracer(cfg.AppName))

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) ectologger.Logger {
	var zapLogger *zap.Logger
	if cfg.PrettyLogs {
		zapLogger, _ = zap.NewDevelopment()
	} else {
		zapLogger, _ = zap.NewProduction()
	}
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func run(cfg *config.Config, logger ectologger.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DatabaseHost, cfg.DatabasePort, cfg.DatabaseUserName, cfg.DatabasePassword,
		cfg.DatabaseName, cfg.DatabaseSSLMode)
	sqlxDB, err := sqlx.Open(cfg.DatabaseDriver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	sqlxDB.SetMaxOpenConns(cfg.DatabaseMaxOpenConns)
	sqlxDB.SetMaxIdleConns(cfg.DatabaseMaxIdleConns)
	sqlxDB.SetConnMaxLifetime(cfg.DatabaseConnMaxLifetime)

	db := database.NewDatabaseInstance(sqlxDB, logger)
	defer db.Close()

	// Migrations
	driver, err := migratepg.WithInstance(sqlxDB.DB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
	})
	if err := migrations.Migrate(cfg.DatabaseName, driver); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Repositories
	stagingRepo := stagingrecord.NewRepository(db, logger)
	cacheRepo := assetcache.NewRepository(db, logger)
	destRepo := destinationrepo.NewRepository(db, logger)
	contentRepo := contentrepo.NewRepository(db, logger)

	// Events
	var emitter *events.Emitter
	var producer *kafka.Producer
	if cfg.KafkaEnabled {
		producer = kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.KafkaOutputTopic,
			BatchSize:    cfg.KafkaBatchSize,
			BatchTimeout: time.Duration(cfg.KafkaBatchTimeout) * time.Millisecond,
			RequiredAcks: cfg.KafkaRequiredAcks,
			Compression:  cfg.KafkaCompression,
		}, logger)
		defer producer.Close()
		emitter = events.NewEmitter(producer, logger)
	}

	// Redis (optional)
	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.RedisHost != "" {
		redisClient, err = redis.NewClient(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, "fern:")
	}

	// Pipeline
	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	assetImporter := assets.NewImporter(httpClient, contentRepo, assets.Config{
		MediaDir: cfg.MediaDir,
		SiteURL:  cfg.SiteURL,
	}, logger)

	materializer := importer.NewMaterializer(stagingRepo, contentRepo, cacheRepo, assetImporter, logger)
	if locker != nil {
		materializer.WithLocker(locker)
	}
	if emitter != nil {
		materializer.WithEmitter(emitter)
	}

	enc := encoder.New(contentRepo, nil, encoder.Config{
		SiteURL:         cfg.SiteURL,
		ExportableTypes: cfg.ExportableTypes,
		MaxLinkDepth:    cfg.ExportMaxDepth,
	}, logger)
	deliverer := transport.NewClient(httpClient, logger)
	exp := exporter.New(enc, destRepo, deliverer, logger)
	if emitter != nil {
		exp.WithEmitter(emitter)
	}

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Logger(logger))
	e.Use(otelecho.Middleware(cfg.AppName))

	var redisPinger health.Pinger
	if redisClient != nil {
		redisPinger = redisClient
	}
	checker := health.NewChecker(db, redisPinger, cfg.MediaDir, version)
	checker.RegisterRoutes(e)

	var emitterIface intake.Emitter
	if emitter != nil {
		emitterIface = emitter
	}
	intakeHandler := intake.NewHandler(stagingRepo, materializer, emitterIface, intake.Config{
		SchedulingEnabled:  cfg.SchedulingEnabled,
		PublishPolicy:      cfg.PublishPolicy,
		AlwaysPublishTypes: cfg.AlwaysPublishTypes,
	}, logger)

	api := e.Group("/api/v1", middleware.AccessTokenMiddleware(cfg.AccessToken))
	intakeHandler.Register(api.Group("/intake"))
	stagingroute.NewHandler(stagingRepo, materializer, cfg.PublishPolicy, cfg.AlwaysPublishTypes).Register(api.Group("/staging"))
	destinationroute.NewHandler(destRepo).Register(api.Group("/destinations"))
	exportroute.NewHandler(exp).Register(api.Group("/export"))

	// Batch import scheduler
	var sched *scheduler.Scheduler
	if cfg.SchedulingEnabled {
		sched = scheduler.NewScheduler(stagingRepo, materializer, locker, scheduler.Config{
			PollInterval:       cfg.ImportPollInterval,
			BatchSize:          cfg.ImportBatchSize,
			PublishPolicy:      cfg.PublishPolicy,
			AlwaysPublishTypes: cfg.AlwaysPublishTypes,
		}, logger)
	}

	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	boot.AddDependency(&serverDependency{echo: e, cfg: cfg, logger: logger})
	if sched != nil {
		boot.AddDependency(&schedulerDependency{scheduler: sched})
	}
	if err := boot.Start(ctx); err != nil {
		return err
	}
	checker.SetReady(true)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	checker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	return boot.Stop(shutdownCtx)
}

type serverDependency struct {
	echo   *echo.Echo
	cfg    *config.Config
	logger ectologger.Logger
}

func (d *serverDependency) GetName() string     { return "http-server" }
func (d *serverDependency) DependsOn() []string { return nil }

func (d *serverDependency) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", d.cfg.Port),
		ReadTimeout:       time.Duration(d.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(d.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(d.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(d.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    d.cfg.MaxHeaderBytes,
	}
	go func() {
		if err := d.echo.StartServer(server); err != nil && err != http.ErrServerClosed {
			d.logger.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	return d.echo.Shutdown(ctx)
}

type schedulerDependency struct {
	scheduler *scheduler.Scheduler
}

func (d *schedulerDependency) GetName() string     { return "import-scheduler" }
func (d *schedulerDependency) DependsOn() []string { return nil }

func (d *schedulerDependency) Start(ctx context.Context) error {
	return d.scheduler.Start(ctx)
}

func (d *schedulerDependency) Stop(ctx context.Context) error {
	return d.scheduler.Stop(ctx)
}
