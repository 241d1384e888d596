package port

import (
	"context"

	"github.com/google/uuid"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// VideoCatalog is the narrow contract to the video entity owned by the
// upload/catalog subsystem. The pipeline touches nothing else on the video.
type VideoCatalog interface {
	// AppendRendition upserts by label so redelivered transcodes overwrite
	// instead of duplicating.
	AppendRendition(ctx context.Context, videoID uuid.UUID, r entity.Rendition) error
	SetThumbnails(ctx context.Context, videoID uuid.UUID, primary string, all []string) error
	// SetStatus transitions the video conditionally: the write happens only
	// if the current status equals from, which keeps BLOCKED/DELETED as a
	// ceiling and makes concurrent reconciliation idempotent. Returns whether
	// the transition happened.
	SetStatus(ctx context.Context, videoID uuid.UUID, from, to entity.VideoStatus) (bool, error)
	SetProgressRollup(ctx context.Context, videoID uuid.UUID, rollup entity.ProgressRollup) error
}
