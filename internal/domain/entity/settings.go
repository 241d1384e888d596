package entity

import (
	"encoding/json"
	"fmt"
)

// Settings is the per-type job configuration. Each job type carries its own
// closed struct so invalid field combinations cannot be expressed; a job is
// never persisted with settings that fail Validate.
type Settings interface {
	JobType() JobType
	Validate() error
}

type TranscodeSettings struct {
	Resolution  string `json:"resolution"`
	BitrateKbps int    `json:"bitrate_kbps"`
	FPS         int    `json:"fps,omitempty"`
	Container   string `json:"container,omitempty"`
}

func (TranscodeSettings) JobType() JobType { return JobTypeTranscode }

func (s TranscodeSettings) Validate() error {
	if _, ok := LookupResolution(s.Resolution); !ok {
		return fmt.Errorf("unsupported resolution %q", s.Resolution)
	}
	if s.BitrateKbps <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", s.BitrateKbps)
	}
	if s.FPS < 0 || s.FPS > 120 {
		return fmt.Errorf("fps out of range: %d", s.FPS)
	}
	switch s.Container {
	case "", "mp4", "webm", "mkv":
	default:
		return fmt.Errorf("unsupported container %q", s.Container)
	}
	return nil
}

// OutputContainer returns the container, defaulting to mp4.
func (s TranscodeSettings) OutputContainer() string {
	if s.Container == "" {
		return "mp4"
	}
	return s.Container
}

type ThumbnailSettings struct {
	Count      int       `json:"count,omitempty"`
	Timestamps []float64 `json:"timestamps,omitempty"`
	Width      int       `json:"width,omitempty"`
	Height     int       `json:"height,omitempty"`
}

func (ThumbnailSettings) JobType() JobType { return JobTypeThumbnail }

func (s ThumbnailSettings) Validate() error {
	if s.Count < 0 || s.Count > 50 {
		return fmt.Errorf("thumbnail count out of range: %d", s.Count)
	}
	if s.Count == 0 && len(s.Timestamps) == 0 {
		return nil // defaults apply
	}
	for _, ts := range s.Timestamps {
		if ts <= 0 {
			return fmt.Errorf("thumbnail timestamp must be positive, got %v", ts)
		}
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("thumbnail size must be non-negative")
	}
	return nil
}

// DefaultThumbnailCount applies when neither count nor timestamps are given.
const DefaultThumbnailCount = 5

type PreviewSettings struct {
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	Resolution      string  `json:"resolution,omitempty"`
}

func (PreviewSettings) JobType() JobType { return JobTypePreview }

func (s PreviewSettings) Validate() error {
	if s.DurationSeconds < 0 || s.DurationSeconds > 60 {
		return fmt.Errorf("preview duration out of range: %v", s.DurationSeconds)
	}
	if s.Resolution != "" {
		if _, ok := LookupResolution(s.Resolution); !ok {
			return fmt.Errorf("unsupported resolution %q", s.Resolution)
		}
	}
	return nil
}

type AudioExtractSettings struct {
	Format      string `json:"format,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
}

func (AudioExtractSettings) JobType() JobType { return JobTypeAudioExtract }

func (s AudioExtractSettings) Validate() error {
	switch s.Format {
	case "", "mp3", "aac", "opus":
	default:
		return fmt.Errorf("unsupported audio format %q", s.Format)
	}
	if s.BitrateKbps < 0 || s.BitrateKbps > 512 {
		return fmt.Errorf("audio bitrate out of range: %d", s.BitrateKbps)
	}
	return nil
}

type WatermarkSettings struct {
	ImageKey string  `json:"image_key"`
	Position string  `json:"position,omitempty"`
	Opacity  float64 `json:"opacity,omitempty"`
}

func (WatermarkSettings) JobType() JobType { return JobTypeWatermark }

func (s WatermarkSettings) Validate() error {
	if s.ImageKey == "" {
		return fmt.Errorf("watermark image key is required")
	}
	switch s.Position {
	case "", "top-left", "top-right", "bottom-left", "bottom-right", "center":
	default:
		return fmt.Errorf("unsupported watermark position %q", s.Position)
	}
	if s.Opacity < 0 || s.Opacity > 1 {
		return fmt.Errorf("watermark opacity must be in [0,1], got %v", s.Opacity)
	}
	return nil
}

type CompressSettings struct {
	Preset      string `json:"preset,omitempty"`
	BitrateKbps int    `json:"bitrate_kbps,omitempty"`
}

func (CompressSettings) JobType() JobType { return JobTypeCompress }

func (s CompressSettings) Validate() error {
	switch s.Preset {
	case "", "slow", "slower", "veryslow":
	default:
		return fmt.Errorf("unsupported compression preset %q", s.Preset)
	}
	if s.BitrateKbps < 0 {
		return fmt.Errorf("bitrate must be non-negative, got %d", s.BitrateKbps)
	}
	return nil
}

type settingsEnvelope struct {
	Type JobType         `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalSettings serializes settings with a type tag for storage.
func MarshalSettings(s Settings) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal %s settings: %w", s.JobType(), err)
	}
	return json.Marshal(settingsEnvelope{Type: s.JobType(), Data: data})
}

// UnmarshalSettings decodes a stored settings envelope back into its typed
// form.
func UnmarshalSettings(b []byte) (Settings, error) {
	var env settingsEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("unmarshal settings envelope: %w", err)
	}

	var s Settings
	switch env.Type {
	case JobTypeTranscode:
		s = &TranscodeSettings{}
	case JobTypeThumbnail:
		s = &ThumbnailSettings{}
	case JobTypePreview:
		s = &PreviewSettings{}
	case JobTypeAudioExtract:
		s = &AudioExtractSettings{}
	case JobTypeWatermark:
		s = &WatermarkSettings{}
	case JobTypeCompress:
		s = &CompressSettings{}
	default:
		return nil, fmt.Errorf("unknown job type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, s); err != nil {
		return nil, fmt.Errorf("unmarshal %s settings: %w", env.Type, err)
	}

	switch v := s.(type) {
	case *TranscodeSettings:
		return *v, nil
	case *ThumbnailSettings:
		return *v, nil
	case *PreviewSettings:
		return *v, nil
	case *AudioExtractSettings:
		return *v, nil
	case *WatermarkSettings:
		return *v, nil
	case *CompressSettings:
		return *v, nil
	}
	return s, nil
}
