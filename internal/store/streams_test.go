package store

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/models"
)

func TestAddGetRemove(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "streams.json"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	cfg := &models.StreamConfig{Name: "channel one", ManifestURL: "http://example.com/index.m3u8", Enabled: true}
	require.NoError(t, s.Add(cfg))
	assert.NotEmpty(t, cfg.ID)
	assert.False(t, cfg.CreatedAt.IsZero())

	got, ok := s.Get(cfg.ID)
	require.True(t, ok)
	assert.Equal(t, "channel one", got.Name)

	assert.Error(t, s.Add(&models.StreamConfig{ID: cfg.ID}))

	require.NoError(t, s.Remove(cfg.ID))
	_, ok = s.Get(cfg.ID)
	assert.False(t, ok)
	assert.Error(t, s.Remove(cfg.ID))
}

func TestPersistenceAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "streams.json")
	logger := slog.New(slog.DiscardHandler)

	s, err := New(path, logger)
	require.NoError(t, err)

	a := &models.StreamConfig{Name: "a", ManifestURL: "http://example.com/a.m3u8", Enabled: true}
	b := &models.StreamConfig{Name: "b", ManifestURL: "http://example.com/b.m3u8"}
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	s2, err := New(path, logger)
	require.NoError(t, err)

	list := s2.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
	assert.True(t, list[0].Enabled)
	assert.False(t, list[1].Enabled)
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "absent.json"), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	assert.Empty(t, s.List())
}
