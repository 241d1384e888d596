package usecase

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

type reconcileFixture struct {
	repo       *fakeRepo
	catalog    *fakeCatalog
	notifier   *fakeNotifier
	reconciler *Reconciler
	videoID    uuid.UUID
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()
	repo := newFakeRepo()
	catalog := newFakeCatalog(entity.VideoStatusProcessing)
	notifier := &fakeNotifier{}
	return &reconcileFixture{
		repo:       repo,
		catalog:    catalog,
		notifier:   notifier,
		reconciler: NewReconciler(repo, catalog, notifier, DefaultReadyPolicy(), zap.NewNop()),
		videoID:    uuid.New(),
	}
}

// addJob persists a job for the fixture video already driven to the given
// status.
func (f *reconcileFixture) addJob(t *testing.T, settings entity.Settings, status entity.JobStatus) *entity.Job {
	t.Helper()
	job := entity.NewJob(f.videoID, "user-1", "uploads/source.mp4", settings)
	switch status {
	case entity.JobStatusPending:
	case entity.JobStatusProcessing:
		require.NoError(t, job.MarkProcessing())
	case entity.JobStatusCompleted:
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.MarkCompleted(&entity.Result{}))
	case entity.JobStatusFailed:
		require.NoError(t, job.MarkProcessing())
		require.NoError(t, job.MarkFailed("encode failed"))
	case entity.JobStatusCancelled:
		require.NoError(t, job.MarkCancelled())
	}
	require.NoError(t, f.repo.Create(context.Background(), job))
	return job
}

func TestReconcileWaitsForActiveJobs(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusPending)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusProcessing, f.catalog.currentStatus())
	assert.Zero(t, f.notifier.count())
}

func TestReconcileMarksReady(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "1080p", BitrateKbps: 5000}, entity.JobStatusCompleted)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusReady, f.catalog.currentStatus())
	assert.Equal(t, float64(100), f.catalog.rollup.Percent)
	assert.Zero(t, f.notifier.count())
}

func TestReconcileReadyWithPartialRenditionFailure(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "2160p", BitrateKbps: 16000}, entity.JobStatusFailed)

	// One playable rendition is enough; a failed extra rendition does not
	// sink the video.
	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusReady, f.catalog.currentStatus())
	assert.Zero(t, f.notifier.count())
}

func TestReconcileMandatoryFailureSinksVideo(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusFailed)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusCompleted)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusFailed, f.catalog.currentStatus())
	assert.Equal(t, 1, f.notifier.count())
	assert.Contains(t, f.catalog.rollup.Message, "thumbnail job failed")
}

func TestReconcileAllRenditionsFailed(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusFailed)
	f.addJob(t, entity.TranscodeSettings{Resolution: "1080p", BitrateKbps: 5000}, entity.JobStatusFailed)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusFailed, f.catalog.currentStatus())
	assert.Equal(t, 1, f.notifier.count())
}

func TestReconcileCancelledMandatoryIsUndecided(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCancelled)

	// Cancellation is not failure: the video stays where the operator can
	// re-run the work.
	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusProcessing, f.catalog.currentStatus())
	assert.Zero(t, f.notifier.count())
}

func TestReconcileNoMandatoryJobsRequested(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, entity.JobStatusCompleted)

	// A mandatory type never requested for this video is not required.
	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusReady, f.catalog.currentStatus())
}

func TestReconcileIdempotentOnDecidedVideo(t *testing.T) {
	f := newReconcileFixture(t)
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	require.Equal(t, entity.VideoStatusReady, f.catalog.currentStatus())

	// A concurrent or repeated reconcile finds the video already decided and
	// does nothing.
	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusReady, f.catalog.currentStatus())
}

func TestReconcileRespectsExternalBlock(t *testing.T) {
	f := newReconcileFixture(t)
	f.catalog.status = entity.VideoStatusBlocked
	f.addJob(t, entity.ThumbnailSettings{Count: 3}, entity.JobStatusCompleted)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusBlocked, f.catalog.currentStatus())
}

func TestReconcileNoJobsIsNoop(t *testing.T) {
	f := newReconcileFixture(t)
	require.NoError(t, f.reconciler.Reconcile(context.Background(), f.videoID))
	assert.Equal(t, entity.VideoStatusProcessing, f.catalog.currentStatus())
}
