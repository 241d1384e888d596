package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

var (
	// ErrJobFinished means the job already reached a terminal state.
	ErrJobFinished = errors.New("job already finished")
	// ErrNotCancellable means the job is executing on another worker
	// instance and cannot be interrupted from here.
	ErrNotCancellable = errors.New("job is running on another worker")
)

// JobCanceller interrupts an in-flight job; satisfied by *WorkerPool.
type JobCanceller interface {
	Cancel(jobID uuid.UUID) bool
}

// InspectionService backs the operator CLI/dashboard surface.
type InspectionService struct {
	repo       port.JobRepository
	canceller  JobCanceller
	reconciler *Reconciler
	logger     *zap.Logger
}

func NewInspectionService(repo port.JobRepository, canceller JobCanceller, reconciler *Reconciler, logger *zap.Logger) *InspectionService {
	return &InspectionService{repo: repo, canceller: canceller, reconciler: reconciler, logger: logger}
}

func (s *InspectionService) ListJobs(ctx context.Context, videoID uuid.UUID) ([]*entity.Job, error) {
	return s.repo.ListByVideo(ctx, videoID)
}

func (s *InspectionService) QueueDepth(ctx context.Context) (port.QueueDepth, error) {
	return s.repo.Depth(ctx)
}

// CancelJob moves a pending job straight to CANCELLED; a processing job has
// its encode terminated by the owning worker, which then records the
// cancellation itself. Cancellation never retries and never counts as a
// failure.
func (s *InspectionService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return err
	}

	switch job.Status {
	case entity.JobStatusPending:
		if err := job.MarkCancelled(); err != nil {
			return err
		}
		moved, err := s.repo.UpdateFrom(ctx, job, entity.JobStatusPending)
		if err != nil {
			return fmt.Errorf("persist cancellation: %w", err)
		}
		if !moved {
			// A worker claimed the job between the load and this write;
			// interrupt it in flight instead.
			if s.canceller != nil && s.canceller.Cancel(jobID) {
				s.logger.Info("in-flight job cancel requested", zap.String("job_id", jobID.String()))
				return nil
			}
			return ErrNotCancellable
		}
		// The queued message becomes stale and is dropped at dequeue.
		s.logger.Info("pending job cancelled", zap.String("job_id", jobID.String()))
		if err := s.reconciler.Reconcile(ctx, job.VideoID); err != nil {
			s.logger.Error("reconciliation after cancel failed", zap.Error(err))
		}
		return nil

	case entity.JobStatusProcessing:
		if s.canceller == nil || !s.canceller.Cancel(jobID) {
			return ErrNotCancellable
		}
		s.logger.Info("in-flight job cancel requested", zap.String("job_id", jobID.String()))
		return nil

	default:
		return fmt.Errorf("cancel job %s in status %s: %w", jobID, job.Status, ErrJobFinished)
	}
}
