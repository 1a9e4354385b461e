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
	assert.Equal(t, "plain", cfg.Workflow.Type)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := defaultConfig()
	cfg.Source.URL = "https://example.com/post"
	cfg.Workflow.Type = "react"
	cfg.Workflow.TopK = 4
	cfg.Workflow.SectionFilter = false

	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/post", loaded.Source.URL)
	assert.Equal(t, "react", loaded.Workflow.Type)
	assert.Equal(t, 4, loaded.Workflow.TopK)
	assert.False(t, loaded.Workflow.SectionFilter)
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source:\n  url: https://example.com\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.Source.URL)
	assert.Equal(t, "plain", cfg.Workflow.Type)
	assert.Equal(t, 2, cfg.Workflow.TopK)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()
	assert.Equal(t, "plain", cfg.Workflow.Type)
	assert.Equal(t, 2, cfg.Workflow.TopK)
	assert.True(t, cfg.Workflow.SectionFilter)
	assert.Contains(t, cfg.Source.URL, "lilianweng")
}
