package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamhive/media-pipeline/internal/domain/port"
)

func TestParseFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, parseFrameRate("25/1"))
	assert.InDelta(t, 29.97, parseFrameRate("30000/1001"), 0.01)
	assert.Zero(t, parseFrameRate("0/0"))
	assert.Zero(t, parseFrameRate(""))
	assert.Zero(t, parseFrameRate("garbage"))
}

func TestFirstToken(t *testing.T) {
	assert.Equal(t, "mov", firstToken("mov,mp4,m4a,3gp,3g2,mj2"))
	assert.Equal(t, "matroska", firstToken("matroska"))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "7.500", formatSeconds(7.5))
	assert.Equal(t, "0.000", formatSeconds(0))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "short", tail("  short  ", 512))
	long := strings.Repeat("x", 600)
	assert.Len(t, tail(long, 512), 512)
}

func TestWatermarkFilter(t *testing.T) {
	spec := port.EncodeSpec{
		Watermark: &port.WatermarkOverlay{Position: "top-left", Opacity: 0.3},
	}
	filter := watermarkFilter(spec)
	assert.Contains(t, filter, "colorchannelmixer=aa=0.30")
	assert.Contains(t, filter, "overlay=10:10")
	assert.NotContains(t, filter, "scale=")

	spec.Width = 1280
	spec.Height = 720
	spec.Watermark.Position = "bottom-right"
	filter = watermarkFilter(spec)
	assert.Contains(t, filter, "scale=1280:720")
	assert.Contains(t, filter, "overlay=main_w-overlay_w-10:main_h-overlay_h-10")
}

func TestWatermarkFilterDefaultOpacity(t *testing.T) {
	filter := watermarkFilter(port.EncodeSpec{Watermark: &port.WatermarkOverlay{}})
	assert.Contains(t, filter, "aa=0.50")
}

func TestConsumeProgress(t *testing.T) {
	codec := NewCodec("ffmpeg", "ffprobe", nil)

	input := strings.Join([]string{
		"frame=100",
		"out_time_us=5000000",
		"speed=4x",
		"out_time_us=10000000",
		"progress=end",
	}, "\n")

	progress := make(chan port.ProgressEvent, 8)
	codec.consumeProgress(strings.NewReader(input), port.EncodeSpec{SourceDurationSeconds: 20}, progress)
	close(progress)

	var events []port.ProgressEvent
	for ev := range progress {
		events = append(events, ev)
	}
	require.Len(t, events, 2)
	assert.Equal(t, 25.0, events[0].Percent)
	assert.Equal(t, 5.0, events[0].OutTimeSeconds)
	assert.Equal(t, 50.0, events[1].Percent)
}

func TestConsumeProgressClampsAtFull(t *testing.T) {
	codec := NewCodec("ffmpeg", "ffprobe", nil)

	progress := make(chan port.ProgressEvent, 1)
	codec.consumeProgress(strings.NewReader("out_time_us=30000000\n"), port.EncodeSpec{SourceDurationSeconds: 20}, progress)
	close(progress)

	ev := <-progress
	assert.Equal(t, 100.0, ev.Percent)
}
