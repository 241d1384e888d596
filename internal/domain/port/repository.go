package port

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// ErrJobNotFound is returned (wrapped) by FindByID when no record exists.
var ErrJobNotFound = errors.New("job not found")

// QueueDepth is a coarse count of jobs by lifecycle phase for the inspection
// surface.
type QueueDepth struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

type JobRepository interface {
	Create(ctx context.Context, job *entity.Job) error
	// Update writes the job unconditionally. Only the worker holding the job
	// may call it, and only for non-transition writes (progress).
	Update(ctx context.Context, job *entity.Job) error
	// UpdateFrom writes the job only if the stored status still equals from.
	// Every status transition goes through here so a concurrent transition
	// (an operator cancel racing the worker's claim) loses cleanly instead
	// of overwriting a terminal record. Returns whether the write happened.
	UpdateFrom(ctx context.Context, job *entity.Job, from entity.JobStatus) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	ListByVideo(ctx context.Context, videoID uuid.UUID) ([]*entity.Job, error)
	// CountActiveByVideo counts the video's jobs still pending or processing.
	CountActiveByVideo(ctx context.Context, videoID uuid.UUID) (int, error)
	Depth(ctx context.Context) (QueueDepth, error)
	// ResetStalled returns jobs stuck in processing longer than the cutoff to
	// pending, recovering from hard worker crashes whose queue message was
	// redelivered and dropped as stale. It returns the ids it reset; the
	// caller must re-enqueue them, since the broker no longer holds a
	// message for a dropped delivery.
	ResetStalled(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error)
}
