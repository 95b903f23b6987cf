package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.ConcurrentEpisodes)
	assert.Equal(t, 4, cfg.SegmentConcurrency)
	assert.Equal(t, "ffmpeg", cfg.MuxerPath)
	assert.False(t, cfg.InsecureTLS)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KUROGO_CONCURRENT_EPISODES", "7")
	t.Setenv("KUROGO_INSECURE_TLS", "true")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.ConcurrentEpisodes)
	assert.True(t, cfg.InsecureTLS)
}
