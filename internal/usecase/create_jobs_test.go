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

func intPtr(v int) *int { return &v }

func TestCreateJobs(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	catalog := newFakeCatalog(entity.VideoStatusUploading)
	creator := NewJobCreator(repo, queue, catalog, zap.NewNop())

	videoID := uuid.New()
	ids, err := creator.CreateJobs(context.Background(), videoID, "user-1", "uploads/source.mp4", []JobRequest{
		{Settings: entity.ThumbnailSettings{Count: 3}},
		{Settings: entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}},
		{Settings: entity.TranscodeSettings{Resolution: "1080p", BitrateKbps: 5000}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	assert.Equal(t, entity.VideoStatusProcessing, catalog.currentStatus())
	assert.Equal(t, "queued", catalog.rollup.CurrentStep)

	jobs, err := repo.ListByVideo(context.Background(), videoID)
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	for _, job := range jobs {
		assert.Equal(t, entity.JobStatusPending, job.Status)
		assert.Equal(t, "uploads/source.mp4", job.InputFile)
	}

	require.Len(t, queue.enqueues, 3)
	// The thumbnail outranks both transcodes on the queue.
	assert.Equal(t, 1, queue.enqueues[0].priority)
	assert.Equal(t, 5, queue.enqueues[1].priority)
	assert.Equal(t, 5, queue.enqueues[2].priority)
}

func TestCreateJobsPriorityOverride(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	creator := NewJobCreator(repo, queue, newFakeCatalog(entity.VideoStatusUploading), zap.NewNop())

	_, err := creator.CreateJobs(context.Background(), uuid.New(), "user-1", "uploads/source.mp4", []JobRequest{
		{Settings: entity.TranscodeSettings{Resolution: "720p", BitrateKbps: 2500}, Priority: intPtr(1)},
	})
	require.NoError(t, err)
	require.Len(t, queue.enqueues, 1)
	assert.Equal(t, 1, queue.enqueues[0].priority)
}

func TestCreateJobsInvalidSettingsRejectsBatch(t *testing.T) {
	repo := newFakeRepo()
	queue := &fakeQueue{}
	catalog := newFakeCatalog(entity.VideoStatusUploading)
	creator := NewJobCreator(repo, queue, catalog, zap.NewNop())

	videoID := uuid.New()
	_, err := creator.CreateJobs(context.Background(), videoID, "user-1", "uploads/source.mp4", []JobRequest{
		{Settings: entity.ThumbnailSettings{Count: 3}},
		{Settings: entity.TranscodeSettings{Resolution: "999p", BitrateKbps: 2500}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported resolution")

	// Nothing persisted, nothing enqueued, video untouched.
	jobs, err := repo.ListByVideo(context.Background(), videoID)
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.Empty(t, queue.enqueues)
	assert.Equal(t, entity.VideoStatusUploading, catalog.currentStatus())
}

func TestCreateJobsEmptyBatch(t *testing.T) {
	creator := NewJobCreator(newFakeRepo(), &fakeQueue{}, newFakeCatalog(entity.VideoStatusUploading), zap.NewNop())

	_, err := creator.CreateJobs(context.Background(), uuid.New(), "user-1", "uploads/source.mp4", nil)
	require.Error(t, err)
}

func TestCreateJobsMissingSource(t *testing.T) {
	creator := NewJobCreator(newFakeRepo(), &fakeQueue{}, newFakeCatalog(entity.VideoStatusUploading), zap.NewNop())

	_, err := creator.CreateJobs(context.Background(), uuid.New(), "user-1", "", []JobRequest{
		{Settings: entity.ThumbnailSettings{Count: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source file")
}
