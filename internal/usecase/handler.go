package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

// JobHandler executes one job type. Handlers return the result on success and
// classify unrecoverable inputs by wrapping with entity.Permanent; everything
// else is treated as transient by the worker pool.
type JobHandler interface {
	Handle(ctx context.Context, job *entity.Job) (*entity.Result, error)
}

// HandlerDeps is the collaborator set shared by all handlers.
type HandlerDeps struct {
	Repo    port.JobRepository
	Store   port.ArtifactStore
	Catalog port.VideoCatalog
	Codec   port.MediaCodec
	Logger  *zap.Logger
	TempDir string
}

// workDir creates the job's scratch directory. It is keyed by job id so a
// redelivered job overwrites its own partial output instead of duplicating
// it, and the cleanup removes everything regardless of outcome.
func (d *HandlerDeps) workDir(job *entity.Job) (string, func(), error) {
	dir := filepath.Join(d.TempDir, job.ID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("create workdir: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	return dir, cleanup, nil
}

// fetchSource downloads the job's immutable input into the scratch dir.
func (d *HandlerDeps) fetchSource(ctx context.Context, job *entity.Job, dir string) (string, error) {
	ext := filepath.Ext(job.InputFile)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, "source"+ext)
	if err := d.Store.Download(ctx, job.InputFile, path); err != nil {
		return "", fmt.Errorf("download source %s: %w", job.InputFile, err)
	}
	return path, nil
}

// progressWriter persists job progress as fire-and-forget writes, throttled
// so a chatty encode does not hammer the record store.
type progressWriter struct {
	repo        port.JobRepository
	job         *entity.Job
	logger      *zap.Logger
	minInterval time.Duration
	lastWrite   time.Time
}

func (d *HandlerDeps) newProgressWriter(job *entity.Job) *progressWriter {
	return &progressWriter{
		repo:        d.Repo,
		job:         job,
		logger:      d.Logger,
		minInterval: 500 * time.Millisecond,
	}
}

func (w *progressWriter) write(ctx context.Context, percent float64, step, message string) {
	w.job.SetProgress(percent, step, message)
	if time.Since(w.lastWrite) < w.minInterval {
		return
	}
	w.lastWrite = time.Now()
	if err := w.repo.Update(ctx, w.job); err != nil {
		w.logger.Debug("progress write failed",
			zap.String("job_id", w.job.ID.String()), zap.Error(err))
	}
}

func videoContentType(container string) string {
	switch container {
	case "webm":
		return "video/webm"
	case "mkv":
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}

func audioContentType(format string) string {
	switch format {
	case "aac":
		return "audio/aac"
	case "opus":
		return "audio/opus"
	default:
		return "audio/mpeg"
	}
}
