package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// CompressHandler re-encodes the source at a slower preset and lower bitrate
// to produce a storage-saving copy. Dimensions are kept as-is.
type CompressHandler struct {
	deps *HandlerDeps
}

func NewCompressHandler(deps *HandlerDeps) *CompressHandler {
	return &CompressHandler{deps: deps}
}

func (h *CompressHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	settings, ok := job.Settings.(entity.CompressSettings)
	if !ok {
		return nil, entity.Permanentf("compress job %s carries %T settings", job.ID, job.Settings)
	}

	preset := settings.Preset
	if preset == "" {
		preset = "slower"
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

	bitrate := settings.BitrateKbps
	if bitrate == 0 && info.BitrateKbps > 0 {
		bitrate = info.BitrateKbps / 2
		if bitrate < 500 {
			bitrate = 500
		}
	}

	outPath := filepath.Join(dir, fmt.Sprintf("%s_compressed.mp4", job.ID))
	spec := port.EncodeSpec{
		BitrateKbps:           bitrate,
		Container:             "mp4",
		Preset:                preset,
		SourceDurationSeconds: info.DurationSeconds,
	}

	progress := make(chan port.ProgressEvent, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range progress {
			pw.write(ctx, ev.Percent*encodeProgressCap/100, "compressing", "")
		}
	}()

	err = h.deps.Codec.Transcode(ctx, src, outPath, spec, progress)
	wg.Wait()
	if err != nil {
		return nil, fmt.Errorf("compress: %w", err)
	}

	pw.write(ctx, encodeProgressCap, "uploading", "")

	key := fmt.Sprintf("videos/%s/compressed/%s.mp4", job.VideoID, job.ID)
	url, size, err := h.deps.Store.Upload(ctx, outPath, key, "video/mp4")
	if err != nil {
		return nil, fmt.Errorf("upload compressed copy: %w", err)
	}

	return &entity.Result{
		OutputFiles: []entity.OutputFile{{
			Kind:        "compressed",
			Key:         key,
			URL:         url,
			Size:        size,
			ContentType: "video/mp4",
		}},
		VideoInfo: &entity.MediaInfo{
			DurationSeconds: info.DurationSeconds,
			Width:           info.Width,
			Height:          info.Height,
			BitrateKbps:     bitrate,
			Container:       "mp4",
		},
	}, nil
}
