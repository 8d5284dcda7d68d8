package texture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	apperrors "github.com/miktos/bridge/internal/common/errors"
)

const (
	tileStride = 50
	tileSize   = 25
	tileNoise  = 30
)

// PlaceholderPath is where the placeholder for one map of a job is written.
func PlaceholderPath(dir, jobID, mapType string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.png", jobID, mapType))
}

// WritePlaceholder draws a tiled PNG in a base colour typical of mapType.
func WritePlaceholder(dir, jobID, mapType string, width, height int) (string, error) {
	path := PlaceholderPath(dir, jobID, mapType)

	base := baseColor(mapType)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: base}, image.Point{}, draw.Src)

	for x := 0; x < width; x += tileStride {
		for y := 0; y < height; y += tileStride {
			tile := image.Rect(x, y, x+tileSize, y+tileSize).Intersect(img.Bounds())
			draw.Draw(img, tile, &image.Uniform{C: jitter(base)}, image.Point{}, draw.Src)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.InternalError("failed to create placeholder texture", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		return "", apperrors.InternalError("failed to encode placeholder texture", err)
	}
	return path, nil
}

func baseColor(mapType string) color.RGBA {
	switch mapType {
	case MapNormal:
		return color.RGBA{R: 128, G: 128, B: 255, A: 255}
	case MapRoughness, MapMetallic, MapHeight, MapAmbientOcclusion:
		return color.RGBA{R: 128, G: 128, B: 128, A: 255}
	default:
		return color.RGBA{
			R: uint8(100 + rand.Intn(101)),
			G: uint8(100 + rand.Intn(101)),
			B: uint8(100 + rand.Intn(101)),
			A: 255,
		}
	}
}

func jitter(c color.RGBA) color.RGBA {
	n := rand.Intn(2*tileNoise+1) - tileNoise
	return color.RGBA{R: clamp(int(c.R) + n), G: clamp(int(c.G) + n), B: clamp(int(c.B) + n), A: 255}
}

func clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
