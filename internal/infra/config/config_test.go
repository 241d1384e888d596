package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "media.jobs", cfg.RabbitMQQueue)
	assert.Equal(t, "media.jobs.wait", cfg.RabbitMQWaitQueue)
	assert.Equal(t, "media.jobs.dlq", cfg.RabbitMQDLQ)
	assert.Equal(t, 3, cfg.WorkerCount)
	assert.Equal(t, 5000, cfg.RetryBaseDelayMs)
	assert.Equal(t, []string{"thumbnail"}, cfg.MandatoryJobTypes)
	assert.True(t, cfg.RequireRendition)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("MANDATORY_JOB_TYPES", "thumbnail,transcode")
	t.Setenv("REQUIRE_RENDITION", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, []string{"thumbnail", "transcode"}, cfg.MandatoryJobTypes)
	assert.False(t, cfg.RequireRendition)
	assert.Equal(t, "debug", cfg.LogLevel)
}
