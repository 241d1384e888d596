package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamhive/media-pipeline/internal/domain/entity"
)

func newTranscodeDeps(codec *fakeCodec, store *fakeStore, catalog *fakeCatalog) *HandlerDeps {
	return &HandlerDeps{
		Repo:    newFakeRepo(),
		Store:   store,
		Catalog: catalog,
		Codec:   codec,
		Logger:  zap.NewNop(),
		TempDir: "/tmp/streamhive-test",
	}
}

func newTranscodeJob(videoID uuid.UUID, resolution string) *entity.Job {
	return entity.NewJob(videoID, "user-1", "uploads/source.mp4",
		entity.TranscodeSettings{Resolution: resolution, BitrateKbps: 2500})
}

func TestTranscodeHandler(t *testing.T) {
	codec := &fakeCodec{
		info:             entity.MediaInfo{DurationSeconds: 30, Width: 1920, Height: 1080, FPS: 25},
		progressPercents: []float64{20, 60, 100},
	}
	store := &fakeStore{}
	catalog := newFakeCatalog(entity.VideoStatusProcessing)
	handler := NewTranscodeHandler(newTranscodeDeps(codec, store, catalog))

	job := newTranscodeJob(uuid.New(), "720p")
	require.NoError(t, job.MarkProcessing())

	result, err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, codec.encodes, 1)
	spec := codec.encodes[0].spec
	assert.Equal(t, 1280, spec.Width)
	assert.Equal(t, 720, spec.Height)
	assert.Equal(t, 2500, spec.BitrateKbps)
	assert.Equal(t, "mp4", spec.Container)

	rendition, ok := catalog.renditions["720p"]
	require.True(t, ok)
	assert.Equal(t, 2500, rendition.BitrateKbps)
	assert.Contains(t, rendition.URL, "renditions/720p.mp4")

	require.Len(t, result.OutputFiles, 1)
	assert.Equal(t, "rendition", result.OutputFiles[0].Kind)
	require.NotNil(t, result.VideoInfo)
	assert.Equal(t, 1280, result.VideoInfo.Width)

	// Encode progress is capped; the remainder is reserved for the upload.
	assert.Equal(t, float64(encodeProgressCap), job.Progress.Percent)
}

func TestTranscodeHandlerIdempotentRedelivery(t *testing.T) {
	videoID := uuid.New()
	codec := &fakeCodec{info: entity.MediaInfo{DurationSeconds: 30, Width: 1920, Height: 1080}}
	catalog := newFakeCatalog(entity.VideoStatusProcessing)
	handler := NewTranscodeHandler(newTranscodeDeps(codec, &fakeStore{}, catalog))

	for i := 0; i < 2; i++ {
		job := newTranscodeJob(videoID, "720p")
		require.NoError(t, job.MarkProcessing())
		_, err := handler.Handle(context.Background(), job)
		require.NoError(t, err)
	}

	// Upsert by label: a redelivered encode overwrites, never duplicates.
	assert.Len(t, catalog.renditions, 1)
}

func TestTranscodeHandlerNeverUpscales(t *testing.T) {
	codec := &fakeCodec{info: entity.MediaInfo{DurationSeconds: 30, Width: 640, Height: 360}}
	handler := NewTranscodeHandler(newTranscodeDeps(codec, &fakeStore{}, newFakeCatalog(entity.VideoStatusProcessing)))

	job := newTranscodeJob(uuid.New(), "1080p")
	require.NoError(t, job.MarkProcessing())

	_, err := handler.Handle(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, codec.encodes, 1)
	assert.Equal(t, 640, codec.encodes[0].spec.Width)
	assert.Equal(t, 360, codec.encodes[0].spec.Height)
}

func TestTranscodeHandlerUnsupportedResolution(t *testing.T) {
	handler := NewTranscodeHandler(newTranscodeDeps(&fakeCodec{}, &fakeStore{}, newFakeCatalog(entity.VideoStatusProcessing)))

	job := newTranscodeJob(uuid.New(), "720p")
	job.Settings = entity.TranscodeSettings{Resolution: "999p", BitrateKbps: 2500}
	require.NoError(t, job.MarkProcessing())

	_, err := handler.Handle(context.Background(), job)
	require.Error(t, err)
	assert.True(t, entity.IsPermanent(err))
}

func TestTranscodeHandlerWrongSettingsType(t *testing.T) {
	handler := NewTranscodeHandler(newTranscodeDeps(&fakeCodec{}, &fakeStore{}, newFakeCatalog(entity.VideoStatusProcessing)))

	job := entity.NewJob(uuid.New(), "user-1", "uploads/source.mp4", entity.ThumbnailSettings{Count: 1})
	job.Type = entity.JobTypeTranscode
	require.NoError(t, job.MarkProcessing())

	_, err := handler.Handle(context.Background(), job)
	require.Error(t, err)
	assert.True(t, entity.IsPermanent(err))
}

func TestTranscodeHandlerProbeFailure(t *testing.T) {
	codec := &fakeCodec{probeErr: errors.New("moov atom not found")}
	handler := NewTranscodeHandler(newTranscodeDeps(codec, &fakeStore{}, newFakeCatalog(entity.VideoStatusProcessing)))

	job := newTranscodeJob(uuid.New(), "720p")
	require.NoError(t, job.MarkProcessing())

	_, err := handler.Handle(context.Background(), job)
	require.Error(t, err)
	// An unreadable source will not become readable on retry.
	assert.True(t, entity.IsPermanent(err))
}
