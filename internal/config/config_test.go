package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8081", cfg.HTTPPort)
	assert.Equal(t, 4096, cfg.EmbeddingDim)
	assert.Equal(t, 0.35, cfg.MatchThreshold)
	assert.False(t, cfg.RefreshRefOnScan)
	assert.Equal(t, "redis", cfg.QueueBackend)
	assert.Equal(t, 20*time.Second, cfg.FaceTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9999")
	t.Setenv("EMBEDDING_DIM", "128")
	t.Setenv("MATCH_THRESHOLD", "0.5")
	t.Setenv("FACE_SKIP", "true")
	t.Setenv("FACE_TIMEOUT", "5s")
	t.Setenv("REFRESH_REFERENCE_ON_SCAN", "1")

	cfg := Load()
	assert.Equal(t, "9999", cfg.HTTPPort)
	assert.Equal(t, 128, cfg.EmbeddingDim)
	assert.Equal(t, 0.5, cfg.MatchThreshold)
	assert.True(t, cfg.FaceSkip)
	assert.Equal(t, 5*time.Second, cfg.FaceTimeout)
	assert.True(t, cfg.RefreshRefOnScan)
}

func TestLoadBadValuesFallBack(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "not-a-number")
	t.Setenv("FACE_TIMEOUT", "soon")
	t.Setenv("FACE_SKIP", "maybe")

	cfg := Load()
	assert.Equal(t, 4096, cfg.EmbeddingDim)
	assert.Equal(t, 20*time.Second, cfg.FaceTimeout)
	assert.False(t, cfg.FaceSkip)
}

func TestLocation(t *testing.T) {
	cfg := App{Timezone: "UTC"}
	assert.Equal(t, time.UTC, cfg.Location())

	cfg.Timezone = "Not/AZone"
	assert.Equal(t, time.Local, cfg.Location())
}
