package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 3, cfg.Rag.MaxResults)
	assert.Equal(t, 0.75, cfg.Rag.MinScore)
	assert.Equal(t, 20, cfg.Rag.MemoryWindowSize)
	assert.Equal(t, 2000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 50, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, "preload", cfg.Ingestion.DedupStrategy)
	assert.Equal(t, 3*time.Minute, cfg.Ai.ChatTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Ai.EmbeddingTimeout)
	assert.True(t, cfg.Rag.SerializeTurns)
	assert.Equal(t, 5*time.Minute, cfg.Rag.LockWaitTimeout)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "llamatalks-backend", cfg.Tracing.ServiceName)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RAG_MIN_SCORE", "0.5")
	t.Setenv("MEMORY_WINDOW_SIZE", "8")
	t.Setenv("CHAT_TIMEOUT", "45s")
	t.Setenv("CHAT_SERIALIZE_TURNS", "false")
	t.Setenv("GO_ENV", "production")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")

	cfg := Load()

	assert.Equal(t, 0.5, cfg.Rag.MinScore)
	assert.Equal(t, 8, cfg.Rag.MemoryWindowSize)
	assert.Equal(t, 45*time.Second, cfg.Ai.ChatTimeout)
	assert.False(t, cfg.Rag.SerializeTurns)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.25, cfg.Tracing.SampleRatio)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "lots")
	t.Setenv("EMBEDDING_TIMEOUT", "five minutes")

	cfg := Load()

	assert.Equal(t, 2000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 5*time.Minute, cfg.Ai.EmbeddingTimeout)
}
