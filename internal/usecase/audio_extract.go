package usecase

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// AudioExtractHandler strips the video stream and re-encodes audio only.
type AudioExtractHandler struct {
	deps *HandlerDeps
}

func NewAudioExtractHandler(deps *HandlerDeps) *AudioExtractHandler {
	return &AudioExtractHandler{deps: deps}
}

func (h *AudioExtractHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.AudioExtractSettings)
	if !ok {
		return nil, entity.Permanentf("audio job %s carries %T settings", job.ID, job.Settings)
	}

	format := settings.Format
	if format == "" {
		format = "mp3"
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

	pw.write(ctx, 10, "extracting", "")

	outPath := filepath.Join(dir, fmt.Sprintf("%s_audio.%s", job.ID, format))
	if err := h.deps.Codec.ExtractAudio(ctx, src, outPath, format, settings.BitrateKbps); err != nil {
		return nil, fmt.Errorf("extract audio: %w", err)
	}

	pw.write(ctx, encodeProgressCap, "uploading", "")

	key := fmt.Sprintf("videos/%s/audio/%s.%s", job.VideoID, job.ID, format)
	contentType := audioContentType(format)
	url, size, err := h.deps.Store.Upload(ctx, outPath, key, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload audio: %w", err)
	}

	return &entity.Result{
		OutputFiles: []entity.OutputFile{{
			Kind:        "audio",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: contentType,
		}},
		VideoInfo: &entity.MediaInfo{DurationSeconds: info.DurationSeconds},
	}, nil
}
