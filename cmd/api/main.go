package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/import-engine/internal/audit"
	"github.com/kursadbilgin/import-engine/internal/cipher"
	"github.com/kursadbilgin/import-engine/internal/config"
	"github.com/kursadbilgin/import-engine/internal/flow"
	"github.com/kursadbilgin/import-engine/internal/handler"
	"github.com/kursadbilgin/import-engine/internal/infra/blob"
	"github.com/kursadbilgin/import-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/import-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/import-engine/internal/infra/redis"
	"github.com/kursadbilgin/import-engine/internal/observability"
	"github.com/kursadbilgin/import-engine/internal/queue"
	"github.com/kursadbilgin/import-engine/internal/ratelimit"
	"github.com/kursadbilgin/import-engine/internal/repository"
	"github.com/kursadbilgin/import-engine/internal/service"
	"github.com/kursadbilgin/import-engine/internal/source"
	"github.com/kursadbilgin/import-engine/internal/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("import-engine stopped with error", zap.Error(err))
	}
	logger.Info("import-engine stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN, postgresql.PoolConfig{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	var rdb *redis.Client
	var limiter ratelimit.RateLimiter = ratelimit.Unlimited{}
	if cfg.RedisURL != "" {
		rdb, err = infraredis.NewRedis(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		orgLimits, err := cfg.FlowOrgRateLimits()
		if err != nil {
			return err
		}
		flowLimiter, err := infraredis.NewFlowExecutionLimiter(rdb, infraredis.FlowLimits{
			Default: cfg.FlowRateLimitPerSec,
			PerOrg:  orgLimits,
		})
		if err != nil {
			return fmt.Errorf("flow limiter initialization failed: %w", err)
		}
		limiter = flowLimiter
	} else {
		logger.Warn("REDIS_URL not set, flow executions are not rate limited")
	}

	blobs, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
		Region:    cfg.BlobRegion,
	})
	if err != nil {
		return fmt.Errorf("blob store initialization failed: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("blob bucket initialization failed: %w", err)
	}

	mq, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer mq.Close()
	publisher := queue.NewRabbitMQPublisher(mq)
	defer publisher.Close()
	consumer := queue.NewRabbitMQConsumer(mq, cfg.WorkerPrefetch, logger)
	defer consumer.Close()

	cipherSvc, err := cipher.NewService(cfg.CipherKey, logger)
	if err != nil {
		return fmt.Errorf("cipher initialization failed: %w", err)
	}
	configs := cipher.NewConfigDecoder(cipherSvc, cfg.StrictConfigDecrypt, logger, metrics)

	batchRepo := repository.NewGormBatchRepo(db)
	recordRepo := repository.NewGormRecordRepo(db)
	templateRepo := repository.NewGormTemplateRepo(db)
	flowRepo := repository.NewGormFlowRepo(db)
	scriptRepo := repository.NewGormSystemScriptRepo(db)
	auditRepo := repository.NewGormAuditEventRepo(db)
	artifactRepo := repository.NewGormArtifactRepo(db)

	registry, err := flow.NewRegistry(flowRepo, scriptRepo, configs, logger)
	if err != nil {
		return err
	}
	engine, err := flow.NewHTTPEngine(cfg.FlowEngineURL)
	if err != nil {
		return err
	}

	aggregator, err := service.NewBatchAggregator(batchRepo, recordRepo, logger)
	if err != nil {
		return err
	}
	aggregator.SetMetrics(metrics)

	processor, err := service.NewRecordProcessor(
		batchRepo,
		recordRepo,
		blobs,
		registry,
		engine,
		aggregator,
		audit.NewRepositorySink(auditRepo, logger),
		cfg.StaleClaimWindow(),
		logger,
	)
	if err != nil {
		return err
	}
	processor.SetMetrics(metrics)

	dispatcher, err := service.NewQueueDispatcher(publisher)
	if err != nil {
		return err
	}

	batchService, err := service.NewImportBatchService(
		batchRepo,
		recordRepo,
		templateRepo,
		flowRepo,
		blobs,
		aggregator,
		dispatcher,
		logger,
	)
	if err != nil {
		return err
	}

	faxAdapter, err := source.NewFaxAdapter(repository.NewGormFaxLineRepo(db), artifactRepo, blobs, batchService, configs, logger)
	if err != nil {
		return err
	}
	faxAdapter.SetMetrics(metrics)
	ftpAdapter, err := source.NewFtpAdapter(repository.NewGormFtpSiteRepo(db), artifactRepo, blobs, batchService, configs, logger)
	if err != nil {
		return err
	}
	ftpAdapter.SetMetrics(metrics)
	webFormAdapter, err := source.NewWebFormAdapter(batchRepo, batchService, logger)
	if err != nil {
		return err
	}

	worker, err := service.NewWorkerService(consumer, processor, limiter, cfg.WorkerConcurrency, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	sweeper, err := service.NewStaleClaimSweeper(
		recordRepo,
		dispatcher,
		cfg.SweepInterval(),
		cfg.StaleClaimWindow(),
		cfg.SweepBatchSize,
		logger,
	)
	if err != nil {
		return err
	}
	sweeper.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler:          transport.ErrorHandler(logger),
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, handler.HealthDeps{SQL: sqlDB, Redis: rdb, Blob: blobs, Queue: mq})
	handler.RegisterMetricsRoute(app, metrics.Handler())
	if err := handler.RegisterBatchRoutes(app, batchService, processor); err != nil {
		return err
	}
	if err := handler.RegisterSourceRoutes(app, faxAdapter, ftpAdapter, webFormAdapter); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(gctx)
	})
	g.Go(func() error {
		return sweeper.Start(gctx)
	})
	g.Go(func() error {
		logger.Info("import-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
