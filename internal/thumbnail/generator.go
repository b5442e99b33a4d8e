// Package thumbnail extracts a representative frame from each media segment
// via ffmpeg, falling back to a drawn placeholder when extraction fails, and
// keeps a bounded per-stream registry of generated files.
package thumbnail

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

const extractTimeout = 10 * time.Second

// Generator extracts thumbnails and tracks them per stream.
type Generator struct {
	dir    string
	width  int
	height int
	keep   int
	ffmpeg string
	logger *slog.Logger

	mu       sync.Mutex
	registry map[string][]models.ThumbnailInfo
}

// New creates a Generator writing under dir. ffmpegPath may be a bare
// command name resolved through PATH.
func New(dir string, cfg config.ThumbnailConfig, ffmpegPath string, logger *slog.Logger) *Generator {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Generator{
		dir:      dir,
		width:    cfg.Width,
		height:   cfg.Height,
		keep:     cfg.Keep,
		ffmpeg:   ffmpegPath,
		logger:   observability.WithComponent(logger, "thumbnail"),
		registry: make(map[string][]models.ThumbnailInfo),
	}
}

// Generate extracts a frame from the midpoint of the segment. On any
// extraction failure it writes a placeholder image instead, so every
// processed segment yields a thumbnail. The returned info is also recorded
// in the stream's registry.
func (g *Generator) Generate(ctx context.Context, streamID, segmentPath, segmentURI string, duration float64) (models.ThumbnailInfo, error) {
	outDir := filepath.Join(g.dir, streamID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return models.ThumbnailInfo{}, fmt.Errorf("create thumbnail directory: %w", err)
	}

	now := time.Now().UTC()
	outPath := filepath.Join(outDir, fmt.Sprintf("thumb_%d.jpg", now.UnixNano()))

	info := models.ThumbnailInfo{
		SegmentURI:    segmentURI,
		Timestamp:     now,
		ThumbnailPath: outPath,
		Width:         g.width,
		Height:        g.height,
	}

	if err := g.extractFrame(ctx, segmentPath, outPath, duration); err != nil {
		g.logger.Warn("frame extraction failed, writing placeholder",
			"stream_id", streamID, "segment", segmentURI, "error", err)
		if perr := g.writePlaceholder(outPath); perr != nil {
			return models.ThumbnailInfo{}, fmt.Errorf("write placeholder: %w", perr)
		}
		info.IsError = true
	}

	g.record(streamID, info)
	return info, nil
}

func (g *Generator) extractFrame(ctx context.Context, segmentPath, outPath string, duration float64) error {
	midpoint := duration / 2
	if midpoint < 0 {
		midpoint = 0
	}

	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-ss", fmt.Sprintf("%.3f", midpoint),
		"-i", segmentPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", g.width, g.height),
		"-y", outPath)

	if err := cmd.Run(); err != nil {
		return err
	}

	// ffmpeg can exit zero without producing a frame on broken input.
	if st, err := os.Stat(outPath); err != nil || st.Size() == 0 {
		return fmt.Errorf("no frame produced")
	}
	return nil
}

// writePlaceholder draws a gray frame with a red X and a label, so broken
// segments remain visible in the UI instead of silently missing.
func (g *Generator) writePlaceholder(outPath string) error {
	img := image.NewRGBA(image.Rect(0, 0, g.width, g.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0x40, 0x40, 0x40, 0xFF}}, image.Point{}, draw.Src)

	red := color.RGBA{0xCC, 0x20, 0x20, 0xFF}
	for x := 0; x < g.width; x++ {
		y := x * g.height / g.width
		setThick(img, x, y, red)
		setThick(img, x, g.height-1-y, red)
	}

	label := "no frame"
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: basicfont.Face7x13,
		Dot: fixed.Point26_6{
			X: fixed.I((g.width - len(label)*7) / 2),
			Y: fixed.I(g.height - 8),
		},
	}
	d.DrawString(label)

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 75}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func setThick(img *image.RGBA, x, y int, c color.RGBA) {
	for dy := -1; dy <= 1; dy++ {
		if y+dy >= 0 && y+dy < img.Bounds().Dy() {
			img.Set(x, y+dy, c)
		}
	}
}

// record appends to the stream's registry, evicting the oldest files past
// the keep bound.
func (g *Generator) record(streamID string, info models.ThumbnailInfo) {
	g.mu.Lock()
	list := append(g.registry[streamID], info)

	var evicted []models.ThumbnailInfo
	if g.keep > 0 && len(list) > g.keep {
		evicted = append(evicted, list[:len(list)-g.keep]...)
		list = list[len(list)-g.keep:]
	}
	g.registry[streamID] = list
	g.mu.Unlock()

	for _, old := range evicted {
		if err := os.Remove(old.ThumbnailPath); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("could not remove evicted thumbnail",
				"path", old.ThumbnailPath, "error", err)
		}
	}
}

// Latest returns the most recent thumbnail for a stream.
func (g *Generator) Latest(streamID string) (models.ThumbnailInfo, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	list := g.registry[streamID]
	if len(list) == 0 {
		return models.ThumbnailInfo{}, false
	}
	return list[len(list)-1], true
}

// List returns all registered thumbnails for a stream, oldest first.
func (g *Generator) List(streamID string) []models.ThumbnailInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.ThumbnailInfo(nil), g.registry[streamID]...)
}

// CleanupStream drops the registry entry and removes the stream's thumbnail
// directory.
func (g *Generator) CleanupStream(streamID string) {
	g.mu.Lock()
	delete(g.registry, streamID)
	g.mu.Unlock()

	dir := filepath.Join(g.dir, streamID)
	if err := os.RemoveAll(dir); err != nil {
		g.logger.Warn("could not remove thumbnail directory", "path", dir, "error", err)
	}
}
