package output

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/paulmach/orb"
)

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

// valueToColor ramps blue to green to red.
func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		ratio := norm / 0.5
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func paletteColor(label string) color.RGBA {
	c, ok := properties.ColorMap[label]
	if !ok {
		c = properties.ColorMap["unknown"]
	}
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// SaveGridPNG colors a grid between min and max. Missing pixels stay transparent.
// Markers are drawn as red circles at their lon/lat.
func SaveGridPNG(g raster.Grid, min, max float64, path string, markers ...orb.Point) error {
	dc := gg.NewContext(g.Width, g.Height)
	for y := 0; y < g.Height; y++ {
		for x := 0; x < g.Width; x++ {
			v := g.At(x, y)
			if math.IsNaN(v) {
				continue
			}
			dc.SetColor(valueToColor(normalize(v, min, max)))
			dc.SetPixel(x, y)
		}
	}
	if err := drawMarkers(dc, g, markers); err != nil {
		return err
	}
	return savePNG(dc, path)
}

// SaveClassPNG paints each class with its palette color.
func SaveClassPNG(m analysis.ClassMap, path string) error {
	dc := gg.NewContext(m.Width, m.Height)
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			class := m.At(x, y)
			if class == analysis.ClassNoData {
				continue
			}
			dc.SetColor(paletteColor(class.String()))
			dc.SetPixel(x, y)
		}
	}
	return savePNG(dc, path)
}

// SaveLossPNG draws the earlier index in grayscale and overlays lost forest pixels.
func SaveLossPNG(background, mask raster.Grid, path string) error {
	if !background.SameShape(mask) {
		return fmt.Errorf("background %dx%d and mask %dx%d differ in size", background.Width, background.Height, mask.Width, mask.Height)
	}
	min, max := background.Range()
	loss := paletteColor("forest loss")

	dc := gg.NewContext(background.Width, background.Height)
	for y := 0; y < background.Height; y++ {
		for x := 0; x < background.Width; x++ {
			if mask.At(x, y) == 1 {
				dc.SetColor(loss)
				dc.SetPixel(x, y)
				continue
			}
			v := background.At(x, y)
			if math.IsNaN(v) {
				continue
			}
			gray := normalize(v, min, max)
			dc.SetRGB(gray, gray, gray)
			dc.SetPixel(x, y)
		}
	}
	return savePNG(dc, path)
}

func drawMarkers(dc *gg.Context, g raster.Grid, markers []orb.Point) error {
	for _, m := range markers {
		x, y, err := g.Pixel(m.Lon(), m.Lat())
		if err != nil {
			return fmt.Errorf("failed to place marker: %w", err)
		}
		dc.SetRGB(1, 0, 0)
		dc.DrawCircle(float64(x)+0.5, float64(y)+0.5, 5)
		dc.Stroke()
	}
	return nil
}

func savePNG(dc *gg.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}
