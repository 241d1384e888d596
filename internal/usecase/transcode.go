package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// encodeProgressCap reserves the final 10% of the progress bar for the
// artifact upload.
const encodeProgressCap = 90

// TranscodeHandler turns the source into one playable rendition at a target
// resolution/bitrate and appends it to the video's rendition set.
type TranscodeHandler struct {
	deps *HandlerDeps
}

func NewTranscodeHandler(deps *HandlerDeps) *TranscodeHandler {
	return &TranscodeHandler{deps: deps}
}

func (h *TranscodeHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.TranscodeSettings)
	if !ok {
		return nil, entity.Permanentf("transcode job %s carries %T settings", job.ID, job.Settings)
	}
	box, ok := entity.LookupResolution(settings.Resolution)
	if !ok {
		return nil, entity.Permanentf("unsupported resolution %q", settings.Resolution)
	}

	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "transcode")
	span.SetAttributes(
		attribute.String("job.id", job.ID.String()),
		attribute.String("transcode.resolution", settings.Resolution),
	)
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

	width, height := entity.FitWithin(info.Width, info.Height, box)
	container := settings.OutputContainer()
	outPath := filepath.Join(dir, fmt.Sprintf("%s_%s.%s", job.ID, box.Label, container))

	spec := port.EncodeSpec{
		Width:                 width,
		Height:                height,
		BitrateKbps:           settings.BitrateKbps,
		FPS:                   settings.FPS,
		Container:             container,
		Preset:                "fast",
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
		return nil, fmt.Errorf("encode %s: %w", box.Label, err)
	}

	pw.write(ctx, encodeProgressCap, "uploading", "")

	key := fmt.Sprintf("videos/%s/renditions/%s.%s", job.VideoID, box.Label, container)
	contentType := videoContentType(container)
	url, size, err := h.deps.Store.Upload(ctx, outPath, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload rendition: %w", err)
	}

	rendition := entity.Rendition{
		Label:       box.Label,
		BitrateKbps: settings.BitrateKbps,
		Size:        size,
		URL:         url,
		Format:      container,
	}
	if err := h.deps.Catalog.AppendRendition(ctx, job.VideoID, rendition); err != nil {
		return nil, fmt.Errorf("append rendition: %w", err)
	}

	return &entity.Result{
		OutputFiles: []entity.OutputFile{{
			Kind:        "rendition",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: contentType,
		}},
		VideoInfo: &entity.MediaInfo{
			DurationSeconds: info.DurationSeconds,
			Width:           width,
			Height:          height,
			FPS:             info.FPS,
			BitrateKbps:     settings.BitrateKbps,
			Container:       container,
		},
	}, nil
}
