package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// VideoCatalog is the pipeline's view of the videos table. Renditions live in
// their own table with a uniqueness constraint on (video_id, label), which
// gives the append-only set idempotent appends under redelivery.
type VideoCatalog struct {
	pool *pgxpool.Pool
}

func NewVideoCatalog(pool *pgxpool.Pool) *VideoCatalog {
	return &VideoCatalog{pool: pool}
}

func (c *VideoCatalog) AppendRendition(ctx context.Context, videoID uuid.UUID, r entity.Rendition) error {
	query := `
		INSERT INTO video_renditions (video_id, label, bitrate_kbps, size, url, format, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (video_id, label) DO UPDATE SET
			bitrate_kbps=EXCLUDED.bitrate_kbps, size=EXCLUDED.size,
			url=EXCLUDED.url, format=EXCLUDED.format`

	_, err := c.pool.Exec(ctx, query, videoID, r.Label, r.BitrateKbps, r.Size, r.URL, r.Format)
	if err != nil {
		return fmt.Errorf("append rendition: %w", err)
	}
	return nil
}

func (c *VideoCatalog) SetThumbnails(ctx context.Context, videoID uuid.UUID, primary string, all []string) error {
	query := `UPDATE videos SET thumbnail=$2, thumbnails=$3, updated_at=NOW() WHERE id=$1`
	_, err := c.pool.Exec(ctx, query, videoID, primary, all)
	if err != nil {
		return fmt.Errorf("set thumbnails: %w", err)
	}
	return nil
}

func (c *VideoCatalog) SetStatus(ctx context.Context, videoID uuid.UUID, from, to entity.VideoStatus) (bool, error) {
	query := `UPDATE videos SET status=$3, updated_at=NOW() WHERE id=$1 AND status=$2`
	tag, err := c.pool.Exec(ctx, query, videoID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("set video status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (c *VideoCatalog) SetProgressRollup(ctx context.Context, videoID uuid.UUID, rollup entity.ProgressRollup) error {
	query := `
		UPDATE videos SET
			progress_percent=$2, progress_step=$3, progress_message=$4, progress_updated_at=$5
		WHERE id=$1`

	_, err := c.pool.Exec(ctx, query, videoID,
		rollup.Percent, rollup.CurrentStep, rollup.Message, rollup.UpdatedAt)
	if err != nil {
		return fmt.Errorf("set progress rollup: %w", err)
	}
	return nil
}
