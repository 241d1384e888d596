package entity

import "time"

// VideoStatus is the owning video's lifecycle state. The pipeline only drives
// UPLOADING -> PROCESSING -> {READY, FAILED}; BLOCKED and DELETED are set by
// moderation/catalog code and are never overridden here.
type VideoStatus string

const (
	VideoStatusUploading  VideoStatus = "UPLOADING"
	VideoStatusProcessing VideoStatus = "PROCESSING"
	VideoStatusReady      VideoStatus = "READY"
	VideoStatusFailed     VideoStatus = "FAILED"
	VideoStatusBlocked    VideoStatus = "BLOCKED"
	VideoStatusDeleted    VideoStatus = "DELETED"
)

// Rendition is one playable output version of a video. The rendition set is
// append-only during processing; appends are keyed by label so a redelivered
// transcode overwrites rather than duplicates its entry.
type Rendition struct {
	Label       string `json:"label"`
	BitrateKbps int    `json:"bitrate_kbps"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
	Format      string `json:"format"`
}

// ProgressRollup is the coarse human-readable processing progress shown on
// the video, distinct from the authoritative per-job progress.
type ProgressRollup struct {
	Percent     float64   `json:"percent"`
	CurrentStep string    `json:"current_step"`
	Message     string    `json:"message,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}
