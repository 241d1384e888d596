package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

const defaultPreviewSeconds = 6

// PreviewHandler cuts a short low-resolution clip for hover previews,
// starting a tenth of the way in to skip intros and title cards.
type PreviewHandler struct {
	deps *HandlerDeps
}

func NewPreviewHandler(deps *HandlerDeps) *PreviewHandler {
	return &PreviewHandler{deps: deps}
}

func (h *PreviewHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.PreviewSettings)
	if !ok {
		return nil, entity.Permanentf("preview job %s carries %T settings", job.ID, job.Settings)
	}

	clipSeconds := settings.DurationSeconds
	if clipSeconds == 0 {
		clipSeconds = defaultPreviewSeconds
	}
	resolution := settings.Resolution
	if resolution == "" {
		resolution = "360p"
	}
	box, ok := entity.LookupResolution(resolution)
	if !ok {
		return nil, entity.Permanentf("unsupported resolution %q", resolution)
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

	info, err := h.deps.Codec.Probe(ctx, src)
	if err != nil {
		return nil, entity.Permanent(fmt.Errorf("probe source: %w", err))
	}

	start := info.DurationSeconds * 0.1
	if start+clipSeconds > info.DurationSeconds {
		start = 0
		if clipSeconds > info.DurationSeconds {
			clipSeconds = info.DurationSeconds
		}
	}

	width, height := entity.FitWithin(info.Width, info.Height, box)
	outPath := filepath.Join(dir, fmt.Sprintf("%s_preview.mp4", job.ID))
	spec := port.EncodeSpec{
		Width:                 width,
		Height:                height,
		Container:             "mp4",
		Preset:                "veryfast",
		StartSeconds:          start,
		DurationSeconds:       clipSeconds,
		SourceDurationSeconds: info.DurationSeconds,
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
		return nil, fmt.Errorf("encode preview: %w", err)
	}

	pw.write(ctx, encodeProgressCap, "uploading", "")

	key := fmt.Sprintf("videos/%s/preview.mp4", job.VideoID)
	url, size, err := h.deps.Store.Upload(ctx, outPath, key, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("upload preview: %w", err)
	}

	return &entity.Result{
		OutputFiles: []entity.OutputFile{{
			Kind:        "preview",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: "video/mp4",
		}},
		VideoInfo: &entity.MediaInfo{
			DurationSeconds: clipSeconds,
			Width:           width,
			Height:          height,
			Container:       "mp4",
		},
	}, nil
}
