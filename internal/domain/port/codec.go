package port

import (
	"context"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

// ProgressEvent is one progress sample from an in-flight encode. Events flow
// over a bounded channel; the adapter drops samples rather than block when
// the consumer lags.
type ProgressEvent struct {
	Percent        float64
	OutTimeSeconds float64
}

// WatermarkOverlay places an image onto the encoded output.
type WatermarkOverlay struct {
	ImagePath string
	Position  string
	Opacity   float64
}

// EncodeSpec describes one encode pass. Zero Width/Height keeps the source
// dimensions; StartSeconds/DurationSeconds of zero cover the whole input.
type EncodeSpec struct {
	Width           int
	Height          int
	BitrateKbps     int
	FPS             int
	Container       string
	Preset          string
	StartSeconds    float64
	DurationSeconds float64
	// SourceDurationSeconds lets the adapter turn encode time into percent.
	SourceDurationSeconds float64
	Watermark             *WatermarkOverlay
}

// MediaCodec wraps an external encoding/probing capability (ffmpeg). All
// methods write outputs to caller-chosen paths so callers can key temp files
// deterministically by job id.
type MediaCodec interface {
	Probe(ctx context.Context, inputPath string) (*entity.MediaInfo, error)
	// Transcode encodes inputPath to outputPath. If progress is non-nil the
	// adapter sends samples to it and closes it before returning.
	Transcode(ctx context.Context, inputPath, outputPath string, spec EncodeSpec, progress chan<- ProgressEvent) error
	ExtractFrame(ctx context.Context, inputPath, outputPath string, timestampSeconds float64, width, height int) error
	ExtractAudio(ctx context.Context, inputPath, outputPath string, format string, bitrateKbps int) error
}
