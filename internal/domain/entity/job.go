package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeTranscode    JobType = "transcode"
	JobTypeThumbnail    JobType = "thumbnail"
	JobTypePreview      JobType = "preview"
	JobTypeAudioExtract JobType = "audio_extract"
	JobTypeWatermark    JobType = "watermark"
	JobTypeCompress     JobType = "compress"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the status is absorbing: no transition ever
// leaves it.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var (
	ErrTerminalState     = errors.New("job is in a terminal state")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// DefaultPriority orders job types on the shared queue. Lower value is served
// first: cheap jobs (thumbnail, preview) go ahead of multi-minute transcodes
// so the video gets a usable poster early.
func DefaultPriority(t JobType) int {
	switch t {
	case JobTypeThumbnail:
		return 1
	case JobTypePreview:
		return 2
	case JobTypeAudioExtract:
		return 3
	case JobTypeCompress, JobTypeWatermark:
		return 4
	default:
		return 5
	}
}

const DefaultMaxRetries = 3

// Progress is the per-attempt progress of a job, mutated only by the worker
// currently holding it. Percent is monotonic within a single attempt.
type Progress struct {
	Percent           float64    `json:"percent"`
	CurrentStep       string     `json:"current_step,omitempty"`
	Message           string     `json:"message,omitempty"`
	EstimatedTimeLeft float64    `json:"estimated_time_left_seconds,omitempty"`
	ProcessedBytes    int64      `json:"processed_bytes,omitempty"`
	TotalBytes        int64      `json:"total_bytes,omitempty"`
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
}

// OutputFile describes one artifact produced by a job.
type OutputFile struct {
	Kind        string `json:"kind"`
	Key         string `json:"key"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// MediaInfo is probed source/output metadata.
type MediaInfo struct {
	DurationSeconds float64 `json:"duration_seconds"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	FPS             float64 `json:"fps,omitempty"`
	BitrateKbps     int     `json:"bitrate_kbps,omitempty"`
	Container       string  `json:"container,omitempty"`
}

// Result is populated only when a job completes successfully. Failures are
// recorded on ErrorMessage, never here.
type Result struct {
	OutputFiles []OutputFile `json:"output_files"`
	VideoInfo   *MediaInfo   `json:"video_info,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Job is one unit of media-processing work tied to one source video.
type Job struct {
	ID           uuid.UUID
	VideoID      uuid.UUID
	UserID       string
	Type         JobType
	Status       JobStatus
	Priority     int
	InputFile    string
	Settings     Settings
	Progress     Progress
	Result       *Result
	RetryCount   int
	MaxRetries   int
	ErrorMessage string
	ScheduledAt  time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewJob builds a pending job. Settings must already be validated; the type
// is taken from the settings and is immutable afterwards.
func NewJob(videoID uuid.UUID, userID, inputFile string, settings Settings) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		VideoID:     videoID,
		UserID:      userID,
		Type:        settings.JobType(),
		Status:      JobStatusPending,
		Priority:    DefaultPriority(settings.JobType()),
		InputFile:   inputFile,
		Settings:    settings,
		MaxRetries:  DefaultMaxRetries,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// MarkProcessing transitions pending -> processing. StartedAt is set on the
// first dequeue only; retries keep the original value.
func (j *Job) MarkProcessing() error {
	if j.Status.Terminal() {
		return ErrTerminalState
	}
	if j.Status != JobStatusPending {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = JobStatusProcessing
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	j.Progress = Progress{CurrentStep: "starting", StartTime: &now}
	j.UpdatedAt = now
	return nil
}

// MarkCompleted transitions processing -> completed and records the result.
func (j *Job) MarkCompleted(result *Result) error {
	if j.Status.Terminal() {
		return ErrTerminalState
	}
	if j.Status != JobStatusProcessing {
		return ErrInvalidTransition
	}
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.Result = result
	j.Progress.Percent = 100
	j.Progress.CurrentStep = "complete"
	j.Progress.EndTime = &now
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkFailed is the terminal failure transition, used for permanent errors
// and for transient errors once retries are exhausted.
func (j *Job) MarkFailed(errMsg string) error {
	if j.Status.Terminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.Progress.EndTime = &now
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

// MarkPendingRetry puts a transiently-failed job back on the queue's books.
// The retry counter lives here, not in the queue, so it survives worker
// restarts.
func (j *Job) MarkPendingRetry(errMsg string) error {
	if j.Status.Terminal() {
		return ErrTerminalState
	}
	if j.Status != JobStatusProcessing {
		return ErrInvalidTransition
	}
	if !j.CanRetry() {
		return ErrInvalidTransition
	}
	j.Status = JobStatusPending
	j.RetryCount++
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCancelled is the operator cancel transition from pending or processing.
// It never counts as a retry or a failure.
func (j *Job) MarkCancelled() error {
	if j.Status.Terminal() {
		return ErrTerminalState
	}
	now := time.Now().UTC()
	j.Status = JobStatusCancelled
	j.Progress.EndTime = &now
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// SetProgress advances the attempt's progress. Percent never moves backwards
// within an attempt.
func (j *Job) SetProgress(percent float64, step, message string) {
	if percent < j.Progress.Percent {
		percent = j.Progress.Percent
	}
	if percent > 100 {
		percent = 100
	}
	j.Progress.Percent = percent
	j.Progress.CurrentStep = step
	j.Progress.Message = message
	j.UpdatedAt = time.Now().UTC()
}
