package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
	"github.com/streamhive/media-pipeline/internal/infra/metrics"
)

// ReadyPolicy names which outcomes gate a video's READY state instead of
// hard-coding them.
type ReadyPolicy struct {
	// Mandatory job types force the video to FAILED when any of their jobs
	// fail, and must have at least one completed job before READY.
	Mandatory []entity.JobType
	// RequireRendition demands at least one completed transcode when the
	// video had transcode jobs at all.
	RequireRendition bool
}

func DefaultReadyPolicy() ReadyPolicy {
	return ReadyPolicy{
		Mandatory:        []entity.JobType{entity.JobTypeThumbnail},
		RequireRendition: true,
	}
}

func (p ReadyPolicy) isMandatory(t entity.JobType) bool {
	for _, m := range p.Mandatory {
		if m == t {
			return true
		}
	}
	return false
}

// Reconciler decides a video's terminal readiness once its job set has no
// more pending or processing members. It is safe to call concurrently for
// the same video: the status write is conditional on the video still being
// PROCESSING, so exactly one caller wins and BLOCKED/DELETED are never
// overridden.
type Reconciler struct {
	repo     port.JobRepository
	catalog  port.VideoCatalog
	notifier port.FailureNotifier
	policy   ReadyPolicy
	logger   *zap.Logger
}

func NewReconciler(repo port.JobRepository, catalog port.VideoCatalog, notifier port.FailureNotifier, policy ReadyPolicy, logger *zap.Logger) *Reconciler {
	return &Reconciler{repo: repo, catalog: catalog, notifier: notifier, policy: policy, logger: logger}
}

func (r *Reconciler) Reconcile(ctx context.Context, videoID uuid.UUID) error {
	active, err := r.repo.CountActiveByVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", videoID, err)
	}
	if active > 0 {
		// More work outstanding; a later terminal transition re-invokes us.
		return nil
	}

	jobs, err := r.repo.ListByVideo(ctx, videoID)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", videoID, err)
	}
	if len(jobs) == 0 {
		return nil
	}

	var (
		mandatoryFailed    bool
		mandatoryDone      = map[entity.JobType]bool{}
		mandatoryRequested = map[entity.JobType]bool{}
		hadTranscode       bool
		transcodeDone      bool
		transcodeFailed    bool
		failureReason      string
	)

	for _, job := range jobs {
		if r.policy.isMandatory(job.Type) {
			mandatoryRequested[job.Type] = true
			switch job.Status {
			case entity.JobStatusFailed:
				mandatoryFailed = true
				failureReason = fmt.Sprintf("%s job failed: %s", job.Type, job.ErrorMessage)
			case entity.JobStatusCompleted:
				mandatoryDone[job.Type] = true
			}
		}
		if job.Type == entity.JobTypeTranscode {
			hadTranscode = true
			switch job.Status {
			case entity.JobStatusCompleted:
				transcodeDone = true
			case entity.JobStatusFailed:
				transcodeFailed = true
				if failureReason == "" {
					failureReason = "all renditions failed: " + job.ErrorMessage
				}
			}
		}
	}

	mandatorySatisfied := true
	for t := range mandatoryRequested {
		if !mandatoryDone[t] {
			mandatorySatisfied = false
		}
	}
	renditionMissing := r.policy.RequireRendition && hadTranscode && !transcodeDone

	log := r.logger.With(zap.String("video_id", videoID.String()))

	switch {
	case mandatoryFailed || (renditionMissing && transcodeFailed):
		return r.markFailed(ctx, videoID, failureReason, log)

	case mandatorySatisfied && !renditionMissing:
		return r.markReady(ctx, videoID, log)

	default:
		// Mandatory work was cancelled rather than failed; leave the video in
		// PROCESSING for the operator to re-run or clean up.
		metrics.VideosReconciledTotal.WithLabelValues("undecided").Inc()
		log.Info("reconciliation undecided, leaving video status unchanged")
		return nil
	}
}

func (r *Reconciler) markReady(ctx context.Context, videoID uuid.UUID, log *zap.Logger) error {
	moved, err := r.catalog.SetStatus(ctx, videoID, entity.VideoStatusProcessing, entity.VideoStatusReady)
	if err != nil {
		return fmt.Errorf("set video %s ready: %w", videoID, err)
	}
	if !moved {
		// Already decided by a concurrent reconcile, or externally
		// blocked/deleted. Benign.
		return nil
	}

	if err := r.catalog.SetProgressRollup(ctx, videoID, entity.ProgressRollup{
		Percent:     100,
		CurrentStep: "complete",
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		log.Warn("progress rollup write failed", zap.Error(err))
	}

	metrics.VideosReconciledTotal.WithLabelValues("ready").Inc()
	log.Info("video ready")
	return nil
}

func (r *Reconciler) markFailed(ctx context.Context, videoID uuid.UUID, reason string, log *zap.Logger) error {
	moved, err := r.catalog.SetStatus(ctx, videoID, entity.VideoStatusProcessing, entity.VideoStatusFailed)
	if err != nil {
		return fmt.Errorf("set video %s failed: %w", videoID, err)
	}
	if !moved {
		return nil
	}

	if err := r.catalog.SetProgressRollup(ctx, videoID, entity.ProgressRollup{
		Percent:     100,
		CurrentStep: "failed",
		Message:     reason,
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		log.Warn("progress rollup write failed", zap.Error(err))
	}

	if r.notifier != nil {
		if err := r.notifier.NotifyVideoFailed(ctx, videoID, reason); err != nil {
			log.Warn("failure notification failed", zap.Error(err))
		}
	}

	metrics.VideosReconciledTotal.WithLabelValues("failed").Inc()
	log.Warn("video failed", zap.String("reason", reason))
	return nil
}
