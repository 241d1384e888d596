package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/infra/config"
	"github.com/streamhive/media-pipeline/internal/infra/email"
	"github.com/streamhive/media-pipeline/internal/infra/ffmpeg"
	"github.com/streamhive/media-pipeline/internal/infra/metrics"
	miniostore "github.com/streamhive/media-pipeline/internal/infra/minio"
	"github.com/streamhive/media-pipeline/internal/infra/postgres"
	"github.com/streamhive/media-pipeline/internal/infra/rabbitmq"
	"github.com/streamhive/media-pipeline/internal/infra/tracing"
	"github.com/streamhive/media-pipeline/internal/usecase"
	"github.com/streamhive/media-pipeline/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	fatalOnErr(err, "load config")

	log, err := logger.New(cfg.LogLevel)
	fatalOnErr(err, "init logger")
	defer log.Sync()

	log.Info("starting media-pipeline worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing is non-fatal if the collector is unreachable.
	tp, err := tracing.InitTracer(ctx, cfg.OTLPEndpoint)
	if err != nil {
		log.Warn("tracing init failed, continuing without tracing", zap.Error(err))
	} else {
		defer tp.Shutdown(ctx)
	}

	// Database
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	fatalOnErr(err, "connect to postgres")
	defer pool.Close()

	fatalOnErr(postgres.RunMigrations(cfg.DatabaseURL), "run migrations")

	// Object storage
	store, err := miniostore.NewArtifactStore(miniostore.StoreConfig{
		Endpoint:      cfg.MinIOEndpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		SourceBucket:  cfg.MinIOSourceBucket,
		OutputBucket:  cfg.MinIOOutputBucket,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	fatalOnErr(err, "create artifact store")
	fatalOnErr(store.EnsureBuckets(ctx), "ensure buckets")

	// Work queue
	queue, err := rabbitmq.NewQueue(rabbitmq.QueueConfig{
		URL:       cfg.RabbitMQURL,
		Queue:     cfg.RabbitMQQueue,
		WaitQueue: cfg.RabbitMQWaitQueue,
		DLQ:       cfg.RabbitMQDLQ,
		Prefetch:  cfg.RabbitMQPrefetch,
		JitterMax: time.Duration(cfg.EnqueueJitterMs) * time.Millisecond,
	}, log)
	fatalOnErr(err, "create job queue")
	defer queue.Close()

	// Status stream
	statusConn, err := amqp.Dial(cfg.RabbitMQURL)
	fatalOnErr(err, "connect to rabbitmq for status publisher")
	defer statusConn.Close()

	statusPub, err := rabbitmq.NewStatusPublisher(statusConn, cfg.RabbitMQExchange, cfg.RabbitMQStatusKey)
	fatalOnErr(err, "create status publisher")

	// Adapters
	repo := postgres.NewJobRepository(pool)
	catalog := postgres.NewVideoCatalog(pool)
	codec := ffmpeg.NewCodec(cfg.FFmpegPath, cfg.FFprobePath, log)
	notifier := email.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.NotificationTo, log)

	policy := usecase.ReadyPolicy{
		Mandatory:        mandatoryTypes(cfg.MandatoryJobTypes),
		RequireRendition: cfg.RequireRendition,
	}
	reconciler := usecase.NewReconciler(repo, catalog, notifier, policy, log)

	deps := &usecase.HandlerDeps{
		Repo:    repo,
		Store:   store,
		Catalog: catalog,
		Codec:   codec,
		Logger:  log,
		TempDir: cfg.TempDir,
	}
	handlers := map[entity.JobType]usecase.JobHandler{
		entity.JobTypeTranscode:    usecase.NewTranscodeHandler(deps),
		entity.JobTypeThumbnail:    usecase.NewThumbnailHandler(deps),
		entity.JobTypePreview:      usecase.NewPreviewHandler(deps),
		entity.JobTypeAudioExtract: usecase.NewAudioExtractHandler(deps),
		entity.JobTypeWatermark:    usecase.NewWatermarkHandler(deps),
		entity.JobTypeCompress:     usecase.NewCompressHandler(deps),
	}

	workerPool := usecase.NewWorkerPool(queue, repo, reconciler, statusPub, handlers, log, usecase.PoolConfig{
		Concurrency:    cfg.WorkerCount,
		RetryBaseDelay: time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
		StalledAfter:   time.Duration(cfg.StalledAfterSec) * time.Second,
	})

	metricsSrv := metrics.Serve(cfg.MetricsPort, pool.Ping, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	log.Info("media-pipeline worker started")

	if err := workerPool.Start(ctx); err != nil {
		log.Error("worker pool error", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	metricsSrv.Shutdown(shutdownCtx)

	log.Info("media-pipeline worker stopped")
}

func mandatoryTypes(names []string) []entity.JobType {
	out := make([]entity.JobType, 0, len(names))
	for _, n := range names {
		out = append(out, entity.JobType(n))
	}
	return out
}

func fatalOnErr(err error, msg string) {
	if err != nil {
		panic(msg + ": " + err.Error())
	}
}
