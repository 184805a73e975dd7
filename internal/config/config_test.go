package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "hash", cfg.Embedder.Type)
	assert.Equal(t, 256, cfg.Embedder.Dimension)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 800, cfg.Chunker.MaxChars)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.InDelta(t, 0.4, cfg.Retrieval.MinConfidence, 1e-9)
}

func TestLoad_PartialFileGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 3\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "hash", cfg.Embedder.Type)
	assert.Equal(t, 120, cfg.Chunker.OverlapChars)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Store = StoreConfig{Type: "postgres", Postgres: &PostgresConfig{DSNEnv: "PG_DSN"}}
	cfg.Refresh.Enabled = true

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", loaded.Store.Type)
	require.NotNil(t, loaded.Store.Postgres)
	assert.Equal(t, "PG_DSN", loaded.Store.Postgres.DSNEnv)
	assert.True(t, loaded.Refresh.Enabled)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [broken"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
