package analysis

import (
	"fmt"
	"math"

	"github.com/forest-guardian/copernicus-stats/internal/raster"
)

// ResampleNearest reindexes src onto the pixel grid of like, taking the source
// pixel under each target pixel centre. Target pixels outside src are NaN.
func ResampleNearest(src, like raster.Grid) raster.Grid {
	result := raster.NewGrid(like.Width, like.Height, like.GeoTransform)
	for y := 0; y < like.Height; y++ {
		for x := 0; x < like.Width; x++ {
			lon, lat := like.Coords(x, y)
			sx, sy, err := src.Pixel(lon, lat)
			if err != nil {
				continue
			}
			result.Set(x, y, src.At(sx, sy))
		}
	}
	return result
}

// Confusion counts binary outcomes. Positive means a value of at least 0.5.
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	TrueNegative  int `json:"true_negative"`
	FalseNegative int `json:"false_negative"`
}

func (c Confusion) Total() int {
	return c.TruePositive + c.FalsePositive + c.TrueNegative + c.FalseNegative
}

func (c Confusion) Accuracy() float64 {
	return ratio(c.TruePositive+c.TrueNegative, c.Total())
}

func (c Confusion) Precision() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalsePositive)
}

func (c Confusion) Recall() float64 {
	return ratio(c.TruePositive, c.TruePositive+c.FalseNegative)
}

func ratio(n, d int) float64 {
	if d == 0 {
		return math.NaN()
	}
	return float64(n) / float64(d)
}

// Accuracy compares a predicted mask with a reference mask on the same grid.
// Pixels missing in either are skipped.
func Accuracy(pred, ref raster.Grid) (Confusion, error) {
	if !pred.SameShape(ref) {
		return Confusion{}, fmt.Errorf("prediction %dx%d and reference %dx%d differ in size", pred.Width, pred.Height, ref.Width, ref.Height)
	}
	var c Confusion
	for i := range pred.Data {
		p, r := pred.Data[i], ref.Data[i]
		if math.IsNaN(p) || math.IsNaN(r) {
			continue
		}
		switch positive, actual := p >= 0.5, r >= 0.5; {
		case positive && actual:
			c.TruePositive++
		case positive:
			c.FalsePositive++
		case actual:
			c.FalseNegative++
		default:
			c.TrueNegative++
		}
	}
	return c, nil
}
