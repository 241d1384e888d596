package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// ThumbnailHandler extracts poster frames, uploads them, and sets the video's
// primary thumbnail and thumbnail set.
type ThumbnailHandler struct {
	deps *HandlerDeps
}

func NewThumbnailHandler(deps *HandlerDeps) *ThumbnailHandler {
	return &ThumbnailHandler{deps: deps}
}

// ThumbnailTimestamps spreads count points evenly across (0, duration),
// strictly excluding both endpoints: frame 0 is often black and the very last
// frame can be padding.
func ThumbnailTimestamps(durationSeconds float64, count int) []float64 {
	if count <= 0 || durationSeconds <= 0 {
		return nil
	}
	interval := durationSeconds / float64(count+1)
	out := make([]float64, count)
	for i := range out {
		out[i] = interval * float64(i+1)
	}
	return out
}

func (h *ThumbnailHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.ThumbnailSettings)
	if !ok {
		return nil, entity.Permanentf("thumbnail job %s carries %T settings", job.ID, job.Settings)
	}

	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "thumbnail")
	span.SetAttributes(attribute.String("job.id", job.ID.String()))
	defer span.End()

	dir, cleanup, err := h.deps.workDir(job)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	pw := h.deps.newProgressWriter(job)
	pw.write(ctx, 0, "downloading", "")

	src, err := h.deps.fetchSource(ctx, job, dir)
	if err != nil {
		return nil, err
	}

	info, err := h.deps.Codec.Probe(ctx, src)
	if err != nil {
		return nil, entity.Permanent(fmt.Errorf("probe source: %w", err))
	}

	timestamps := settings.Timestamps
	if len(timestamps) == 0 {
		count := settings.Count
		if count == 0 {
			count = entity.DefaultThumbnailCount
		}
		timestamps = ThumbnailTimestamps(info.DurationSeconds, count)
	}
	if len(timestamps) == 0 {
		return nil, entity.Permanentf("source has no usable duration (%vs)", info.DurationSeconds)
	}

	urls := make([]string, 0, len(timestamps))
	outputs := make([]entity.OutputFile, 0, len(timestamps))

	for i, ts := range timestamps {
		framePath := filepath.Join(dir, fmt.Sprintf("%s_thumb_%02d.jpg", job.ID, i))
		if err := h.deps.Codec.ExtractFrame(ctx, src, framePath, ts, settings.Width, settings.Height); err != nil {
			return nil, fmt.Errorf("extract frame %d: %w", i, err)
		}

		key := fmt.Sprintf("videos/%s/thumbs/thumb_%02d.jpg", job.VideoID, i)
		url, size, err := h.deps.Store.Upload(ctx, framePath, key, "image/jpeg")
		if err != nil {
			return nil, fmt.Errorf("upload thumbnail %d: %w", i, err)
		}

		urls = append(urls, url)
		outputs = append(outputs, entity.OutputFile{
			Kind:        "thumbnail",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: "image/jpeg",
		})

		done := float64(i+1) / float64(len(timestamps))
		pw.write(ctx, done*encodeProgressCap, "extracting",
			fmt.Sprintf("%d/%d frames", i+1, len(timestamps)))
	}

	if err := h.deps.Catalog.SetThumbnails(ctx, job.VideoID, urls[0], urls); err != nil {
		return nil, fmt.Errorf("set thumbnails: %w", err)
	}

	return &entity.Result{
		OutputFiles: outputs,
		VideoInfo:   &entity.MediaInfo{DurationSeconds: info.DurationSeconds},
	}, nil
}
