package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// JobRequest is one unit of work the upload collaborator asks for. Which
// renditions and thumbnail counts to request is the caller's policy; the
// pipeline only executes what it is given.
type JobRequest struct {
	Settings entity.Settings
	// Priority overrides the per-type default when non-nil.
	Priority *int
}

// JobCreator is the entry point for the upload collaborator: it validates,
// persists and enqueues the job set for a freshly uploaded video.
type JobCreator struct {
	repo    port.JobRepository
	queue   port.JobQueue
	catalog port.VideoCatalog
	logger  *zap.Logger
}

func NewJobCreator(repo port.JobRepository, queue port.JobQueue, catalog port.VideoCatalog, logger *zap.Logger) *JobCreator {
	return &JobCreator{repo: repo, queue: queue, catalog: catalog, logger: logger}
}

// CreateJobs validates every request before persisting anything: an invalid
// settings object rejects the whole batch and no job is ever enqueued with
// settings that would fail at execution time.
func (c *JobCreator) CreateJobs(ctx context.Context, videoID uuid.UUID, userID, sourceFile string, requests []JobRequest) ([]uuid.UUID, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("no jobs requested for video %s", videoID)
	}
	if sourceFile == "" {
		return nil, fmt.Errorf("source file reference is required")
	}

	jobs := make([]*entity.Job, 0, len(requests))
	for i, req := range requests {
		if req.Settings == nil {
			return nil, fmt.Errorf("request %d: settings are required", i)
		}
		if err := req.Settings.Validate(); err != nil {
			return nil, fmt.Errorf("request %d (%s): %w", i, req.Settings.JobType(), err)
		}
		job := entity.NewJob(videoID, userID, sourceFile, req.Settings)
		if req.Priority != nil {
			job.Priority = *req.Priority
		}
		jobs = append(jobs, job)
	}

	if _, err := c.catalog.SetStatus(ctx, videoID, entity.VideoStatusUploading, entity.VideoStatusProcessing); err != nil {
		return nil, fmt.Errorf("move video %s to processing: %w", videoID, err)
	}
	if err := c.catalog.SetProgressRollup(ctx, videoID, entity.ProgressRollup{
		CurrentStep: "queued",
		UpdatedAt:   time.Now().UTC(),
	}); err != nil {
		c.logger.Warn("initial rollup write failed",
			zap.String("video_id", videoID.String()), zap.Error(err))
	}

	ids := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		if err := c.repo.Create(ctx, job); err != nil {
			return ids, fmt.Errorf("persist %s job: %w", job.Type, err)
		}
		if err := c.queue.Enqueue(ctx, job.ID, job.Priority, 0); err != nil {
			return ids, fmt.Errorf("enqueue %s job %s: %w", job.Type, job.ID, err)
		}
		ids = append(ids, job.ID)
	}

	c.logger.Info("jobs created",
		zap.String("video_id", videoID.String()),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}
