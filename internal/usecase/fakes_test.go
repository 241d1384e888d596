package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
	"github.com/streamhive/media-pipeline/internal/domain/port"
)

type fakeRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*entity.Job
	// beforeUpdateFrom, when set, runs ahead of each conditional write. Tests
	// use it to slip a concurrent transition into the race window.
	beforeUpdateFrom func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: make(map[uuid.UUID]*entity.Job)}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *fakeRepo) UpdateFrom(_ context.Context, job *entity.Job, from entity.JobStatus) (bool, error) {
	if r.beforeUpdateFrom != nil {
		r.beforeUpdateFrom()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.jobs[job.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return true, nil
}

func (r *fakeRepo) setStatus(id uuid.UUID, status entity.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = status
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("find job %s: %w", id, port.ErrJobNotFound)
	}
	cp := *job
	return &cp, nil
}

func (r *fakeRepo) ListByVideo(_ context.Context, videoID uuid.UUID) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.Job
	for _, job := range r.jobs {
		if job.VideoID == videoID {
			cp := *job
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeRepo) CountActiveByVideo(_ context.Context, videoID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, job := range r.jobs {
		if job.VideoID == videoID && !job.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) Depth(_ context.Context) (port.QueueDepth, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var d port.QueueDepth
	for _, job := range r.jobs {
		switch job.Status {
		case entity.JobStatusPending:
			d.Waiting++
		case entity.JobStatusProcessing:
			d.Active++
		case entity.JobStatusCompleted:
			d.Completed++
		case entity.JobStatusFailed:
			d.Failed++
		}
	}
	return d, nil
}

func (r *fakeRepo) ResetStalled(_ context.Context, olderThan time.Duration) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var ids []uuid.UUID
	for _, job := range r.jobs {
		if job.Status == entity.JobStatusProcessing && job.UpdatedAt.Before(cutoff) {
			job.Status = entity.JobStatusPending
			job.UpdatedAt = time.Now().UTC()
			ids = append(ids, job.ID)
		}
	}
	return ids, nil
}

type enqueued struct {
	jobID    uuid.UUID
	priority int
	delay    time.Duration
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueues []enqueued
}

func (q *fakeQueue) Enqueue(_ context.Context, jobID uuid.UUID, priority int, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueues = append(q.enqueues, enqueued{jobID: jobID, priority: priority, delay: delay})
	return nil
}

func (q *fakeQueue) Consume(context.Context) (<-chan port.Delivery, error) {
	ch := make(chan port.Delivery)
	close(ch)
	return ch, nil
}

func (q *fakeQueue) Close() error { return nil }

type fakeDelivery struct {
	jobID        uuid.UUID
	acked        bool
	nacked       bool
	nackDelay    time.Duration
	deadLettered bool
	deadReason   string
}

func (d *fakeDelivery) JobID() uuid.UUID { return d.jobID }
func (d *fakeDelivery) Ack() error       { d.acked = true; return nil }

func (d *fakeDelivery) Nack(retryAfter time.Duration) error {
	d.nacked = true
	d.nackDelay = retryAfter
	return nil
}

func (d *fakeDelivery) DeadLetter(reason string) error {
	d.deadLettered = true
	d.deadReason = reason
	return nil
}

type encodeCall struct {
	input  string
	output string
	spec   port.EncodeSpec
}

type frameCall struct {
	timestamp float64
	width     int
	height    int
}

// fakeCodec answers probes from a canned MediaInfo and records every call.
type fakeCodec struct {
	mu       sync.Mutex
	info     entity.MediaInfo
	probeErr error
	encodes  []encodeCall
	frames   []frameCall
	// progressPercents, when set, is replayed on the progress channel during
	// Transcode.
	progressPercents []float64
	transcodeErr     error
}

func (c *fakeCodec) Probe(context.Context, string) (*entity.MediaInfo, error) {
	if c.probeErr != nil {
		return nil, c.probeErr
	}
	info := c.info
	return &info, nil
}

func (c *fakeCodec) Transcode(_ context.Context, input, output string, spec port.EncodeSpec, progress chan<- port.ProgressEvent) error {
	c.mu.Lock()
	c.encodes = append(c.encodes, encodeCall{input: input, output: output, spec: spec})
	c.mu.Unlock()
	if progress != nil {
		for _, p := range c.progressPercents {
			progress <- port.ProgressEvent{Percent: p}
		}
		close(progress)
	}
	return c.transcodeErr
}

func (c *fakeCodec) ExtractFrame(_ context.Context, _, _ string, ts float64, w, h int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, frameCall{timestamp: ts, width: w, height: h})
	return nil
}

func (c *fakeCodec) ExtractAudio(context.Context, string, string, string, int) error {
	return nil
}

type fakeStore struct {
	mu        sync.Mutex
	uploads   []string
	uploadErr error
}

func (s *fakeStore) Download(context.Context, string, string) error { return nil }

func (s *fakeStore) Upload(_ context.Context, _, key, _ string) (string, int64, error) {
	if s.uploadErr != nil {
		return "", 0, s.uploadErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	return "http://cdn.test/" + key, 1024, nil
}

func (s *fakeStore) Delete(context.Context, string) error { return nil }

type fakeCatalog struct {
	mu         sync.Mutex
	status     entity.VideoStatus
	renditions map[string]entity.Rendition
	primary    string
	thumbnails []string
	rollup     entity.ProgressRollup
}

func newFakeCatalog(status entity.VideoStatus) *fakeCatalog {
	return &fakeCatalog{status: status, renditions: make(map[string]entity.Rendition)}
}

func (c *fakeCatalog) AppendRendition(_ context.Context, _ uuid.UUID, r entity.Rendition) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.renditions[r.Label] = r
	return nil
}

func (c *fakeCatalog) SetThumbnails(_ context.Context, _ uuid.UUID, primary string, all []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.primary = primary
	c.thumbnails = all
	return nil
}

func (c *fakeCatalog) SetStatus(_ context.Context, _ uuid.UUID, from, to entity.VideoStatus) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != from {
		return false, nil
	}
	c.status = to
	return true, nil
}

func (c *fakeCatalog) SetProgressRollup(_ context.Context, _ uuid.UUID, rollup entity.ProgressRollup) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollup = rollup
	return nil
}

func (c *fakeCatalog) currentStatus() entity.VideoStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

type fakeNotifier struct {
	mu      sync.Mutex
	reasons []string
}

func (n *fakeNotifier) NotifyVideoFailed(_ context.Context, _ uuid.UUID, reason string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reasons = append(n.reasons, reason)
	return nil
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.reasons)
}

// stubHandler lets pool tests script handler outcomes.
type stubHandler struct {
	fn func(ctx context.Context, job *entity.Job) (*entity.Result, error)
}

func (h *stubHandler) Handle(ctx context.Context, job *entity.Job) (*entity.Result, error) {
	return h.fn(ctx, job)
}
