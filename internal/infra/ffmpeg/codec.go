package ffmpeg

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// Codec shells out to ffmpeg/ffprobe. It is stateless; cancellation kills the
// underlying process through the command context.
type Codec struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

func NewCodec(ffmpegPath, ffprobePath string, logger *zap.Logger) *Codec {
	return &Codec{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

func (c *Codec) Probe(ctx context.Context, inputPath string) (*entity.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		inputPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", inputPath, err)
	}

	var probed probeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &entity.MediaInfo{
		Container: firstToken(probed.Format.FormatName),
	}
	info.DurationSeconds, _ = strconv.ParseFloat(probed.Format.Duration, 64)
	if bps, err := strconv.Atoi(probed.Format.BitRate); err == nil {
		info.BitrateKbps = bps / 1000
	}
	for _, s := range probed.Streams {
		if s.CodecType == "video" {
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.AvgFrameRate)
			break
		}
	}
	return info, nil
}

func (c *Codec) Transcode(ctx context.Context, inputPath, outputPath string, spec port.EncodeSpec, progress chan<- port.ProgressEvent) error {
	if progress != nil {
		defer close(progress)
	}

	args := []string{"-y"}
	if spec.StartSeconds > 0 {
		args = append(args, "-ss", formatSeconds(spec.StartSeconds))
	}
	args = append(args, "-i", inputPath)
	if spec.Watermark != nil {
		args = append(args, "-i", spec.Watermark.ImagePath)
	}
	if spec.DurationSeconds > 0 {
		args = append(args, "-t", formatSeconds(spec.DurationSeconds))
	}

	switch {
	case spec.Watermark != nil:
		args = append(args, "-filter_complex", watermarkFilter(spec))
	case spec.Width > 0 && spec.Height > 0:
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", spec.Width, spec.Height))
	}

	if spec.BitrateKbps > 0 {
		args = append(args, "-b:v", fmt.Sprintf("%dk", spec.BitrateKbps))
	}
	if spec.FPS > 0 {
		args = append(args, "-r", strconv.Itoa(spec.FPS))
	}
	preset := spec.Preset
	if preset == "" {
		preset = "medium"
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", preset,
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	)

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	c.consumeProgress(stdout, spec, progress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

// consumeProgress parses the key=value progress stream and forwards samples.
// Sends are non-blocking: a slow consumer loses samples, not the encode.
func (c *Codec) consumeProgress(r interface{ Read([]byte) (int, error) }, spec port.EncodeSpec, progress chan<- port.ProgressEvent) {
	scanner := bufio.NewScanner(r)
	total := spec.DurationSeconds
	if total <= 0 {
		total = spec.SourceDurationSeconds
	}
	for scanner.Scan() {
		line := scanner.Text()
		key, value, ok := strings.Cut(line, "=")
		if !ok || key != "out_time_us" {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			continue
		}
		outSeconds := float64(us) / 1e6
		ev := port.ProgressEvent{OutTimeSeconds: outSeconds}
		if total > 0 {
			ev.Percent = outSeconds / total * 100
			if ev.Percent > 100 {
				ev.Percent = 100
			}
		}
		if progress != nil {
			select {
			case progress <- ev:
			default:
			}
		}
	}
}

func (c *Codec) ExtractFrame(ctx context.Context, inputPath, outputPath string, timestampSeconds float64, width, height int) error {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 180
	}
	// Scale up to cover the box, then crop to exact size.
	filter := fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
		width, height, width, height)

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-ss", formatSeconds(timestampSeconds),
		"-i", inputPath,
		"-frames:v", "1",
		"-vf", filter,
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg extract frame at %.2fs: %w: %s", timestampSeconds, err, tail(string(out), 512))
	}
	return nil
}

func (c *Codec) ExtractAudio(ctx context.Context, inputPath, outputPath string, format string, bitrateKbps int) error {
	codec := "libmp3lame"
	switch format {
	case "aac":
		codec = "aac"
	case "opus":
		codec = "libopus"
	}
	if bitrateKbps <= 0 {
		bitrateKbps = 128
	}

	cmd := exec.CommandContext(ctx, c.ffmpegPath,
		"-y",
		"-i", inputPath,
		"-vn",
		"-c:a", codec,
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		outputPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg extract audio: %w: %s", err, tail(string(out), 512))
	}
	return nil
}

func watermarkFilter(spec port.EncodeSpec) string {
	wm := spec.Watermark
	opacity := wm.Opacity
	if opacity <= 0 {
		opacity = 0.5
	}

	var overlay string
	switch wm.Position {
	case "top-left":
		overlay = "10:10"
	case "bottom-left":
		overlay = "10:main_h-overlay_h-10"
	case "top-right":
		overlay = "main_w-overlay_w-10:10"
	case "center":
		overlay = "(main_w-overlay_w)/2:(main_h-overlay_h)/2"
	default:
		overlay = "main_w-overlay_w-10:main_h-overlay_h-10"
	}

	base := "[0:v]"
	if spec.Width > 0 && spec.Height > 0 {
		base = fmt.Sprintf("[0:v]scale=%d:%d[scaled];[scaled]", spec.Width, spec.Height)
	}
	return fmt.Sprintf("[1:v]format=rgba,colorchannelmixer=aa=%.2f[wm];%s[wm]overlay=%s",
		opacity, base, overlay)
}

func parseFrameRate(fraction string) float64 {
	if fraction == "" || fraction == "0/0" {
		return 0
	}
	var num, den int
	if _, err := fmt.Sscanf(fraction, "%d/%d", &num, &den); err == nil && den > 0 {
		return float64(num) / float64(den)
	}
	return 0
}

func firstToken(csv string) string {
	token, _, _ := strings.Cut(csv, ",")
	return token
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
