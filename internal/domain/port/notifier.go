package port

import (
	"context"

	"github.com/google/uuid"
)

// FailureNotifier alerts operators when a video's processing permanently
// fails. Best-effort: errors are logged, never propagated into the pipeline.
type FailureNotifier interface {
	NotifyVideoFailed(ctx context.Context, videoID uuid.UUID, reason string) error
}
