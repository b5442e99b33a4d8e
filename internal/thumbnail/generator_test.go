package thumbnail

import (
	"context"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamwatch/streamwatch/internal/config"
)

func newTestGenerator(t *testing.T, keep int) *Generator {
	t.Helper()
	return New(t.TempDir(), config.ThumbnailConfig{
		Width:  320,
		Height: 180,
		Keep:   keep,
	}, "/nonexistent/ffmpeg", slog.New(slog.DiscardHandler))
}

func TestGenerate_PlaceholderOnExtractionFailure(t *testing.T) {
	g := newTestGenerator(t, 10)

	info, err := g.Generate(context.Background(), "stream-1", "/nonexistent/seg.ts", "seg.ts", 6.0)
	require.NoError(t, err)

	assert.True(t, info.IsError)
	assert.Equal(t, 320, info.Width)
	assert.Equal(t, 180, info.Height)

	f, err := os.Open(info.ThumbnailPath)
	require.NoError(t, err)
	defer f.Close()

	img, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 180, img.Bounds().Dy())
}

func TestLatest(t *testing.T) {
	g := newTestGenerator(t, 10)

	_, ok := g.Latest("stream-1")
	assert.False(t, ok)

	first, err := g.Generate(context.Background(), "stream-1", "none.ts", "seg1.ts", 6.0)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), "stream-1", "none.ts", "seg2.ts", 6.0)
	require.NoError(t, err)

	latest, ok := g.Latest("stream-1")
	require.True(t, ok)
	assert.Equal(t, second.ThumbnailPath, latest.ThumbnailPath)
	assert.NotEqual(t, first.ThumbnailPath, latest.ThumbnailPath)
}

func TestRegistry_EvictsOldestPastKeep(t *testing.T) {
	g := newTestGenerator(t, 3)

	var paths []string
	for i := 0; i < 5; i++ {
		info, err := g.Generate(context.Background(), "stream-1", "none.ts", "seg.ts", 6.0)
		require.NoError(t, err)
		paths = append(paths, info.ThumbnailPath)
	}

	list := g.List("stream-1")
	require.Len(t, list, 3)

	// Oldest two were deleted from disk.
	assert.NoFileExists(t, paths[0])
	assert.NoFileExists(t, paths[1])
	assert.FileExists(t, paths[4])
}

func TestCleanupStream(t *testing.T) {
	g := newTestGenerator(t, 10)

	info, err := g.Generate(context.Background(), "stream-1", "none.ts", "seg.ts", 6.0)
	require.NoError(t, err)
	require.FileExists(t, info.ThumbnailPath)

	g.CleanupStream("stream-1")

	assert.Empty(t, g.List("stream-1"))
	assert.NoDirExists(t, filepath.Dir(info.ThumbnailPath))
}
