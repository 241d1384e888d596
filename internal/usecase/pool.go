package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
	"github.com/streamhive/media-pipeline/internal/infra/metrics"
)

// WorkerPool pulls jobs from the shared queue and drives them through their
// type's handler. The concurrency bound is pool-wide: an expensive transcode
// and a cheap thumbnail compete for the same slots, which is what the queue
// priorities compensate for.
type WorkerPool struct {
	queue      port.JobQueue
	repo       port.JobRepository
	reconciler *Reconciler
	status     port.StatusPublisher
	handlers   map[entity.JobType]JobHandler
	logger     *zap.Logger
	cfg        PoolConfig

	mu       sync.Mutex
	inflight map[uuid.UUID]*inflightJob
	wg       sync.WaitGroup
}

type PoolConfig struct {
	Concurrency    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	// StalledAfter recovers jobs stuck in PROCESSING after a hard worker
	// crash; zero disables the sweep.
	StalledAfter time.Duration
}

type inflightJob struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

func NewWorkerPool(
	queue port.JobQueue,
	repo port.JobRepository,
	reconciler *Reconciler,
	status port.StatusPublisher,
	handlers map[entity.JobType]JobHandler,
	logger *zap.Logger,
	cfg PoolConfig,
) *WorkerPool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 5 * time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 5 * time.Minute
	}
	return &WorkerPool{
		queue:      queue,
		repo:       repo,
		reconciler: reconciler,
		status:     status,
		handlers:   handlers,
		logger:     logger,
		cfg:        cfg,
		inflight:   make(map[uuid.UUID]*inflightJob),
	}
}

// Start runs the pool until ctx is cancelled, then waits for in-flight jobs
// to finish. Job execution uses its own context so a shutdown stops dequeues
// without killing encodes mid-pass.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.cfg.StalledAfter > 0 {
		p.sweepStalled(ctx)
	}

	deliveries, err := p.queue.Consume(ctx)
	if err != nil {
		return err
	}

	p.logger.Info("starting worker pool", zap.Int("workers", p.cfg.Concurrency))
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i, deliveries)
	}

	<-ctx.Done()
	p.logger.Info("shutdown requested, waiting for in-flight jobs")
	p.wg.Wait()
	return nil
}

// sweepStalled returns crashed-worker jobs to pending and publishes a fresh
// message for each. The broker's copy was consumed when the redelivery got
// dropped as stale, so without the re-enqueue a swept job would sit pending
// forever.
func (p *WorkerPool) sweepStalled(ctx context.Context) {
	ids, err := p.repo.ResetStalled(ctx, p.cfg.StalledAfter)
	if err != nil {
		p.logger.Error("stalled job sweep failed", zap.Error(err))
		return
	}
	for _, id := range ids {
		log := p.logger.With(zap.String("job_id", id.String()))
		job, err := p.repo.FindByID(ctx, id)
		if err != nil {
			log.Error("failed to load swept job", zap.Error(err))
			continue
		}
		if err := p.queue.Enqueue(ctx, id, job.Priority, 0); err != nil {
			log.Error("failed to re-enqueue swept job", zap.Error(err))
			continue
		}
		log.Info("re-enqueued stalled job", zap.Int("retry_count", job.RetryCount))
	}
}

// Cancel terminates the named job if it is executing on this pool instance.
// Returns false when the job is not in flight here.
func (p *WorkerPool) Cancel(jobID uuid.UUID) bool {
	p.mu.Lock()
	entry, ok := p.inflight[jobID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	entry.cancelled.Store(true)
	entry.cancel()
	return true
}

func (p *WorkerPool) worker(id int, deliveries <-chan port.Delivery) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker_id", id))
	log.Info("worker started")

	for d := range deliveries {
		p.process(d, log)
	}
	log.Info("worker shutting down")
}

func (p *WorkerPool) process(d port.Delivery, log *zap.Logger) {
	// Terminal persistence must survive a shutdown signal, so everything in
	// here runs against a background context; only the handler gets the
	// cancellable one.
	ctx := context.Background()

	job, err := p.repo.FindByID(ctx, d.JobID())
	if err != nil {
		if errors.Is(err, port.ErrJobNotFound) {
			log.Warn("dropping message for unknown job", zap.String("job_id", d.JobID().String()))
			_ = d.DeadLetter("job record not found")
			return
		}
		log.Error("failed to load job record", zap.Error(err))
		_ = d.Nack(p.cfg.RetryBaseDelay)
		return
	}

	log = log.With(
		zap.String("job_id", job.ID.String()),
		zap.String("video_id", job.VideoID.String()),
		zap.String("job_type", string(job.Type)),
	)

	// The record, not the message, is authoritative. A non-pending record
	// means this delivery is stale: a duplicate, or the job was cancelled
	// while queued.
	if job.Status != entity.JobStatusPending {
		log.Debug("dropping stale delivery", zap.String("status", string(job.Status)))
		_ = d.Ack()
		return
	}

	if err := job.MarkProcessing(); err != nil {
		log.Error("mark processing failed", zap.Error(err))
		_ = d.Ack()
		return
	}
	// Compare-and-set: the claim only lands if the record is still pending.
	// Losing it means a cancel (or another worker) got there between our
	// load and this write, and the record wins.
	claimed, err := p.repo.UpdateFrom(ctx, job, entity.JobStatusPending)
	if err != nil {
		log.Error("failed to persist processing status", zap.Error(err))
		_ = d.Nack(p.cfg.RetryBaseDelay)
		return
	}
	if !claimed {
		log.Debug("dropping delivery, job moved before claim")
		_ = d.Ack()
		return
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		p.failJob(ctx, job, d, "no handler for job type "+string(job.Type), log)
		return
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	entry := &inflightJob{cancel: cancel}
	p.mu.Lock()
	p.inflight[job.ID] = entry
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		delete(p.inflight, job.ID)
		p.mu.Unlock()
	}()

	tracer := otel.Tracer("worker")
	jobCtx, span := tracer.Start(jobCtx, "job."+string(job.Type))
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("job.video_id", job.VideoID.String()),
	)
	defer span.End()

	metrics.ActiveWorkers.Inc()
	start := time.Now()
	result, err := handler.Handle(jobCtx, job)
	metrics.ActiveWorkers.Dec()
	metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		if err := job.MarkCompleted(result); err != nil {
			log.Error("mark completed failed", zap.Error(err))
		}
		recorded := p.persistFrom(ctx, job, entity.JobStatusProcessing, log)
		_ = d.Ack()
		if recorded {
			log.Info("job completed", zap.Duration("took", time.Since(start)))
			p.finalize(ctx, job, log)
		}

	case entry.cancelled.Load():
		if err := job.MarkCancelled(); err != nil {
			log.Error("mark cancelled failed", zap.Error(err))
		}
		recorded := p.persistFrom(ctx, job, entity.JobStatusProcessing, log)
		_ = d.Ack()
		if recorded {
			log.Info("job cancelled while processing")
			p.finalize(ctx, job, log)
		}

	case entity.IsPermanent(err):
		log.Warn("permanent failure", zap.Error(err))
		p.failJob(ctx, job, d, err.Error(), log)

	case job.CanRetry():
		if err2 := job.MarkPendingRetry(err.Error()); err2 != nil {
			log.Error("mark pending retry failed", zap.Error(err2))
			p.failJob(ctx, job, d, err.Error(), log)
			return
		}
		if !p.persistFrom(ctx, job, entity.JobStatusProcessing, log) {
			// The record moved or the write failed. Either way a retry would
			// run against stale state; drop the message and let the record
			// (or the stalled sweep) drive what happens next.
			_ = d.Ack()
			return
		}
		delay := p.backoff(job.RetryCount)
		metrics.RetriesTotal.WithLabelValues(string(job.Type)).Inc()
		log.Warn("transient failure, retrying",
			zap.Error(err),
			zap.Int("retry", job.RetryCount),
			zap.Int("max_retries", job.MaxRetries),
			zap.Duration("backoff", delay),
		)
		_ = d.Nack(delay)

	default:
		log.Warn("retries exhausted", zap.Error(err), zap.Int("retries", job.RetryCount))
		p.failJob(ctx, job, d, err.Error(), log)
	}
}

func (p *WorkerPool) failJob(ctx context.Context, job *entity.Job, d port.Delivery, reason string, log *zap.Logger) {
	if err := job.MarkFailed(reason); err != nil {
		log.Error("mark failed failed", zap.Error(err))
	}
	if !p.persistFrom(ctx, job, entity.JobStatusProcessing, log) {
		_ = d.Ack()
		return
	}
	_ = d.DeadLetter(reason)
	p.finalize(ctx, job, log)
}

// persistFrom writes a status transition conditionally and reports whether it
// was recorded. A lost write leaves the stored state as the source of truth.
func (p *WorkerPool) persistFrom(ctx context.Context, job *entity.Job, from entity.JobStatus, log *zap.Logger) bool {
	moved, err := p.repo.UpdateFrom(ctx, job, from)
	if err != nil {
		log.Error("failed to persist job status",
			zap.String("status", string(job.Status)), zap.Error(err))
		return false
	}
	if !moved {
		log.Warn("job moved concurrently, keeping stored state",
			zap.String("dropped_status", string(job.Status)))
	}
	return moved
}

// finalize runs the side effects of a terminal transition: metrics, the
// status stream, and reconciliation of the owning video.
func (p *WorkerPool) finalize(ctx context.Context, job *entity.Job, log *zap.Logger) {
	metrics.JobsProcessedTotal.WithLabelValues(
		string(job.Type), strings.ToLower(string(job.Status))).Inc()

	if p.status != nil {
		msg, _ := json.Marshal(entity.JobStatusMessage{
			JobID:        job.ID,
			VideoID:      job.VideoID,
			UserID:       job.UserID,
			Type:         job.Type,
			Status:       job.Status,
			ErrorMessage: job.ErrorMessage,
			RetryCount:   job.RetryCount,
			MaxRetries:   job.MaxRetries,
		})
		if err := p.status.PublishStatus(ctx, msg); err != nil {
			log.Warn("status publish failed", zap.Error(err))
		}
	}

	if err := p.reconciler.Reconcile(ctx, job.VideoID); err != nil {
		log.Error("reconciliation failed", zap.Error(err))
	}
}

// backoff doubles from the base per retry, capped. retryCount is at least 1
// when this is called.
func (p *WorkerPool) backoff(retryCount int) time.Duration {
	delay := time.Duration(float64(p.cfg.RetryBaseDelay) * math.Pow(2, float64(retryCount-1)))
	if delay > p.cfg.RetryMaxDelay {
		delay = p.cfg.RetryMaxDelay
	}
	return delay
}

