package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// WatermarkHandler re-encodes the source with an image overlaid at a
// configured placement and opacity.
type WatermarkHandler struct {
	deps *HandlerDeps
}

func NewWatermarkHandler(deps *HandlerDeps) *WatermarkHandler {
	return &WatermarkHandler{deps: deps}
}

func (h *WatermarkHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.WatermarkSettings)
	if !ok {
		return nil, entity.Permanentf("watermark job %s carries %T settings", job.ID, job.Settings)
	}

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

	imagePath := filepath.Join(dir, "watermark"+filepath.Ext(settings.ImageKey))
	if err := h.deps.Store.Download(ctx, settings.ImageKey, imagePath); err != nil {
		return nil, fmt.Errorf("download watermark image %s: %w", settings.ImageKey, err)
	}

	info, err := h.deps.Codec.Probe(ctx, src)
	if err != nil {
		return nil, entity.Permanent(fmt.Errorf("probe source: %w", err))
	}

	outPath := filepath.Join(dir, fmt.Sprintf("%s_watermarked.mp4", job.ID))
	spec := port.EncodeSpec{
		Container:             "mp4",
		Preset:                "fast",
		SourceDurationSeconds: info.DurationSeconds,
		Watermark: &port.WatermarkOverlay{
			ImagePath: imagePath,
			Position:  settings.Position,
			Opacity:   settings.Opacity,
		},
	}

	progress := make(chan port.ProgressEvent, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range progress {
			pw.write(ctx, ev.Percent*encodeProgressCap/100, "encoding", "")
		}
	}()

	err = h.deps.Codec.Transcode(ctx, src, outPath, spec, progress)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("watermark encode: %w", err)
	}

	pw.write(ctx, encodeProgressCap, "uploading", "")

	key := fmt.Sprintf("videos/%s/watermarked/%s.mp4", job.VideoID, job.ID)
	url, size, err := h.deps.Store.Upload(ctx, outPath, key, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("upload watermarked copy: %w", err)
	}

	return &entity.Result{
		OutputFiles: []entity.OutputFile{{
			Kind:        "watermarked",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: "video/mp4",
		}},
		VideoInfo: &entity.MediaInfo{
			DurationSeconds: info.DurationSeconds,
			Width:           info.Width,
			Height:          info.Height,
			Container:       "mp4",
		},
	}, nil
}
