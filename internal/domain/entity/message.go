package entity

import "github.com/google/uuid"

// QueueMessage is the payload carried on the work queue. It deliberately
// holds only the job id: settings, retry count and status are always read
// from the job record so the record stays authoritative across redeliveries.
type QueueMessage struct {
	JobID uuid.UUID `json:"job_id"`
}

// JobStatusMessage is published to the status stream whenever a job reaches a
// terminal state, for the upload/catalog service and dashboards.
type JobStatusMessage struct {
	JobID        uuid.UUID `json:"job_id"`
	VideoID      uuid.UUID `json:"video_id"`
	UserID       string    `json:"user_id"`
	Type         JobType   `json:"job_type"`
	Status       JobStatus `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RetryCount   int       `json:"retry_count"`
	MaxRetries   int       `json:"max_retries"`
}
