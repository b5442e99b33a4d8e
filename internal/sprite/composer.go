// Package sprite composes buffered thumbnails into a single sprite sheet
// with a JSON sidecar mapping each cell back to its capture time.
package sprite

import (
	"encoding/json"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/models"
	"github.com/streamwatch/streamwatch/internal/observability"
)

// Composer builds sprite sheets under a root directory and tracks the
// sheets built per stream.
type Composer struct {
	dir     string
	gridW   int
	gridH   int
	quality int
	logger  *slog.Logger

	mu      sync.Mutex
	sprites map[string][]models.SpriteInfo
}

// New creates a Composer writing under dir.
func New(dir string, cfg config.SpriteConfig, logger *slog.Logger) *Composer {
	return &Composer{
		dir:     dir,
		gridW:   cfg.GridWidth,
		gridH:   cfg.GridHeight,
		quality: cfg.JPEGQuality,
		logger:  observability.WithComponent(logger, "sprite"),
		sprites: make(map[string][]models.SpriteInfo),
	}
}

// Compose tiles the thumbnails into a grid, writes the sheet and its JSON
// map, and records the sprite for the stream. Thumbnails beyond the grid
// capacity are ignored; fewer thumbnails leave trailing cells black.
func (c *Composer) Compose(streamID string, thumbs []models.ThumbnailInfo) (models.SpriteInfo, error) {
	if len(thumbs) == 0 {
		return models.SpriteInfo{}, fmt.Errorf("no thumbnails to compose")
	}

	capacity := c.gridW * c.gridH
	if len(thumbs) > capacity {
		thumbs = thumbs[:capacity]
	}

	cellW, cellH, err := cellSize(thumbs)
	if err != nil {
		return models.SpriteInfo{}, err
	}

	sheet := image.NewRGBA(image.Rect(0, 0, c.gridW*cellW, c.gridH*cellH))
	cells := make([]models.SpriteCell, 0, len(thumbs))

	for i, thumb := range thumbs {
		img, err := loadImage(thumb.ThumbnailPath)
		if err != nil {
			c.logger.Warn("skipping unreadable thumbnail",
				"stream_id", streamID, "path", thumb.ThumbnailPath, "error", err)
			continue
		}

		x := (i % c.gridW) * cellW
		y := (i / c.gridW) * cellH
		draw.Draw(sheet, image.Rect(x, y, x+cellW, y+cellH), img, img.Bounds().Min, draw.Src)

		cells = append(cells, models.SpriteCell{
			Timestamp: thumb.Timestamp,
			X:         x,
			Y:         y,
			W:         cellW,
			H:         cellH,
		})
	}

	if len(cells) == 0 {
		return models.SpriteInfo{}, fmt.Errorf("no readable thumbnails")
	}

	outDir := filepath.Join(c.dir, streamID)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return models.SpriteInfo{}, fmt.Errorf("create sprite directory: %w", err)
	}

	now := time.Now().UTC()
	spriteID := fmt.Sprintf("sprite_%d", now.UnixNano())
	spritePath := filepath.Join(outDir, spriteID+".jpg")
	mapPath := filepath.Join(outDir, spriteID+".json")

	if err := c.writeJPEG(spritePath, sheet); err != nil {
		return models.SpriteInfo{}, err
	}

	spriteMap := models.SpriteMap{
		SpriteID:   spriteID,
		SpriteURL:  filepath.Base(spritePath),
		Thumbnails: cells,
	}
	if err := writeJSON(mapPath, spriteMap); err != nil {
		os.Remove(spritePath)
		return models.SpriteInfo{}, err
	}

	info := models.SpriteInfo{
		SpriteID:       spriteID,
		SpritePath:     spritePath,
		SpriteMapPath:  mapPath,
		StartTimestamp: thumbs[0].Timestamp,
		EndTimestamp:   thumbs[len(thumbs)-1].Timestamp,
		ThumbnailCount: len(cells),
		GridWidth:      c.gridW,
		GridHeight:     c.gridH,
		CreatedAt:      now,
	}

	c.mu.Lock()
	c.sprites[streamID] = append(c.sprites[streamID], info)
	c.mu.Unlock()

	c.logger.Info("sprite composed",
		"stream_id", streamID, "sprite_id", spriteID, "thumbnails", len(cells))

	return info, nil
}

// cellSize takes the dimensions of the first readable thumbnail.
func cellSize(thumbs []models.ThumbnailInfo) (int, int, error) {
	for _, thumb := range thumbs {
		img, err := loadImage(thumb.ThumbnailPath)
		if err != nil {
			continue
		}
		return img.Bounds().Dx(), img.Bounds().Dy(), nil
	}
	return 0, 0, fmt.Errorf("no readable thumbnails")
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

func (c *Composer) writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sprite file: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: c.quality}); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("encode sprite: %w", err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sprite map: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write sprite map: %w", err)
	}
	return nil
}

// List returns the sprites composed for a stream, oldest first.
func (c *Composer) List(streamID string) []models.SpriteInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.SpriteInfo(nil), c.sprites[streamID]...)
}

// CleanupStream drops the stream's sprite records and files.
func (c *Composer) CleanupStream(streamID string) {
	c.mu.Lock()
	delete(c.sprites, streamID)
	c.mu.Unlock()

	dir := filepath.Join(c.dir, streamID)
	if err := os.RemoveAll(dir); err != nil {
		c.logger.Warn("could not remove sprite directory", "path", dir, "error", err)
	}
}
