package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

const jobColumns = `id, video_id, user_id, job_type, status, priority, input_file,
	settings, progress, result, retry_count, max_retries, error_message,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	settings, progress, result, err := encodeJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO processing_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`

	_, err = r.pool.Exec(ctx, query,
		job.ID, job.VideoID, job.UserID, string(job.Type), string(job.Status),
		job.Priority, job.InputFile, settings, progress, result,
		job.RetryCount, job.MaxRetries, job.ErrorMessage,
		job.ScheduledAt, job.StartedAt, job.CompletedAt,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	settings, progress, result, err := encodeJobBlobs(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE processing_jobs SET
			status=$2, settings=$3, progress=$4, result=$5, retry_count=$6,
			error_message=$7, started_at=$8, completed_at=$9, updated_at=$10
		WHERE id=$1`

	_, err = r.pool.Exec(ctx, query,
		job.ID, string(job.Status), settings, progress, result,
		job.RetryCount, job.ErrorMessage,
		job.StartedAt, job.CompletedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// UpdateFrom is the compare-and-set variant of Update. The status predicate
// makes terminal states absorbing at the database, not just on the entity:
// a write that raced a concurrent transition affects zero rows.
func (r *JobRepository) UpdateFrom(ctx context.Context, job *entity.Job, from entity.JobStatus) (bool, error) {
	settings, progress, result, err := encodeJobBlobs(job)
	if err != nil {
		return false, err
	}

	query := `
		UPDATE processing_jobs SET
			status=$2, settings=$3, progress=$4, result=$5, retry_count=$6,
			error_message=$7, started_at=$8, completed_at=$9, updated_at=$10
		WHERE id=$1 AND status=$11`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), settings, progress, result,
		job.RetryCount, job.ErrorMessage,
		job.StartedAt, job.CompletedAt, job.UpdatedAt,
		string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update job from %s: %w", from, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE id=$1`
	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	return job, nil
}

func (r *JobRepository) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]*entity.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM processing_jobs WHERE video_id=$1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, query, videoID)
	if err != nil {
		return nil, fmt.Errorf("list jobs by video: %w", err)
	}
	defer rows.Close()

	var jobs []*entity.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs by video: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *JobRepository) CountActiveByVideo(ctx context.Context, videoID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*) FROM processing_jobs
		WHERE video_id=$1 AND status IN ('PENDING','PROCESSING')`

	var n int
	if err := r.pool.QueryRow(ctx, query, videoID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}

func (r *JobRepository) Depth(ctx context.Context) (port.QueueDepth, error) {
	query := `SELECT status, COUNT(*) FROM processing_jobs GROUP BY status`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return port.QueueDepth{}, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()

	var d port.QueueDepth
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return port.QueueDepth{}, fmt.Errorf("queue depth: %w", err)
		}
		switch entity.JobStatus(status) {
		case entity.JobStatusPending:
			d.Waiting = n
		case entity.JobStatusProcessing:
			d.Active = n
		case entity.JobStatusCompleted:
			d.Completed = n
		case entity.JobStatusFailed:
			d.Failed = n
		}
	}
	return d, rows.Err()
}

func (r *JobRepository) ResetStalled(ctx context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	query := `
		UPDATE processing_jobs SET status='PENDING', updated_at=NOW()
		WHERE status='PROCESSING' AND updated_at < $1
		RETURNING id`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("reset stalled jobs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("reset stalled jobs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func encodeJobBlobs(job *entity.Job) (settings, progress, result []byte, err error) {
	settings, err = entity.MarshalSettings(job.Settings)
	if err != nil {
		return nil, nil, nil, err
	}
	progress, err = json.Marshal(job.Progress)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal progress: %w", err)
	}
	if job.Result != nil {
		result, err = json.Marshal(job.Result)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("marshal result: %w", err)
		}
	}
	return settings, progress, result, nil
}

func scanJob(row pgx.Row) (*entity.Job, error) {
	job := &entity.Job{}
	var jobType, status string
	var settings, progress, result []byte

	err := row.Scan(
		&job.ID, &job.VideoID, &job.UserID, &jobType, &status,
		&job.Priority, &job.InputFile, &settings, &progress, &result,
		&job.RetryCount, &job.MaxRetries, &job.ErrorMessage,
		&job.ScheduledAt, &job.StartedAt, &job.CompletedAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Type = entity.JobType(jobType)
	job.Status = entity.JobStatus(status)

	job.Settings, err = entity.UnmarshalSettings(settings)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(progress, &job.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	if len(result) > 0 {
		job.Result = &entity.Result{}
		if err := json.Unmarshal(result, job.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return job, nil
}
