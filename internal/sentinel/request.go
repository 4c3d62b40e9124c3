package sentinel

import (
	"time"

	"github.com/paulmach/orb/geojson"
)

type Collection string

const (
	Sentinel2L2A Collection = "sentinel-2-l2a"
	Sentinel2L1C Collection = "sentinel-2-l1c"
	Sentinel1GRD Collection = "sentinel-1-grd"
	LandsatOTL2  Collection = "landsat-ot-l2"
	DEM          Collection = "dem"
)

const (
	processPath    = "/api/v1/process"
	statisticsPath = "/api/v1/statistics"

	maxOutputPixels = 2500
)

// TimeRange is a closed time interval.
type TimeRange struct {
	From time.Time
	To   time.Time
}

func (r TimeRange) payload() timeRangePayload {
	return timeRangePayload{
		From: r.From.UTC().Format(time.RFC3339),
		To:   r.To.UTC().Format(time.RFC3339),
	}
}

// ProcessRequest describes a raster request to the Process API.
type ProcessRequest struct {
	Bounds           Bounds
	TimeRange        TimeRange
	Collection       Collection
	Evalscript       string
	Width            int
	Height           int
	Resolution       float64 // metres per pixel, used when Width or Height is zero
	Mosaicking       string  // mostRecent, leastRecent or leastCC
	MaxCloudCoverage *float64
	Format           string // output mime type, image/tiff by default
}

// StatisticalRequest describes a per-interval statistics request to the Statistical API.
type StatisticalRequest struct {
	Bounds              Bounds
	TimeRange           TimeRange
	AggregationInterval string // ISO-8601 duration, e.g. P1D or P1M
	ResX                float64
	ResY                float64
	Collection          Collection
	Evalscript          string
	MaxCloudCoverage    *float64
	Percentiles         []float64
}

type crsProperties struct {
	CRS string `json:"crs"`
}

type boundsPayload struct {
	BBox       []float64         `json:"bbox,omitempty"`
	Geometry   *geojson.Geometry `json:"geometry,omitempty"`
	Properties crsProperties     `json:"properties"`
}

type timeRangePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type dataFilterPayload struct {
	TimeRange        *timeRangePayload `json:"timeRange,omitempty"`
	MaxCloudCoverage *float64          `json:"maxCloudCoverage,omitempty"`
	MosaickingOrder  string            `json:"mosaickingOrder,omitempty"`
}

type dataPayload struct {
	Type       Collection        `json:"type"`
	DataFilter dataFilterPayload `json:"dataFilter"`
}

type inputPayload struct {
	Bounds boundsPayload `json:"bounds"`
	Data   []dataPayload `json:"data"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type outputResponse struct {
	Identifier string         `json:"identifier"`
	Format     responseFormat `json:"format"`
}

type outputPayload struct {
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Responses []outputResponse `json:"responses"`
}

// ProcessPayload is the JSON body of a Process API request.
type ProcessPayload struct {
	Input      inputPayload  `json:"input"`
	Output     outputPayload `json:"output"`
	Evalscript string        `json:"evalscript"`
}

type aggregationInterval struct {
	Of string `json:"of"`
}

type aggregationPayload struct {
	TimeRange           timeRangePayload    `json:"timeRange"`
	AggregationInterval aggregationInterval `json:"aggregationInterval"`
	Evalscript          string              `json:"evalscript"`
	ResX                float64             `json:"resx,omitempty"`
	ResY                float64             `json:"resy,omitempty"`
}

type percentilesPayload struct {
	K []float64 `json:"k"`
}

type statisticsPayload struct {
	Percentiles *percentilesPayload `json:"percentiles,omitempty"`
}

type calculationPayload struct {
	Statistics map[string]statisticsPayload `json:"statistics"`
}

// StatisticalPayload is the JSON body of a Statistical API request.
type StatisticalPayload struct {
	Input        inputPayload                  `json:"input"`
	Aggregation  aggregationPayload            `json:"aggregation"`
	Calculations map[string]calculationPayload `json:"calculations,omitempty"`
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (111_000.0 / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > maxOutputPixels {
		return maxOutputPixels
	}
	return int(pixels)
}

func collectionOrDefault(c Collection) Collection {
	if c == "" {
		return Sentinel2L2A
	}
	return c
}

// Payload builds the Process API body. Nothing is validated locally.
func (r ProcessRequest) Payload() ProcessPayload {
	width, height := r.Width, r.Height
	if width == 0 || height == 0 {
		resolution := r.Resolution
		if resolution <= 0 {
			resolution = 10
		}
		extent := r.Bounds.Extent()
		width = calculatePixels(extent.Max.X()-extent.Min.X(), resolution)
		height = calculatePixels(extent.Max.Y()-extent.Min.Y(), resolution)
	}

	format := r.Format
	if format == "" {
		format = "image/tiff"
	}

	timeRange := r.TimeRange.payload()
	return ProcessPayload{
		Input: inputPayload{
			Bounds: r.Bounds.payload(),
			Data: []dataPayload{{
				Type: collectionOrDefault(r.Collection),
				DataFilter: dataFilterPayload{
					TimeRange:        &timeRange,
					MaxCloudCoverage: r.MaxCloudCoverage,
					MosaickingOrder:  r.Mosaicking,
				},
			}},
		},
		Output: outputPayload{
			Width:  width,
			Height: height,
			Responses: []outputResponse{{
				Identifier: "default",
				Format:     responseFormat{Type: format},
			}},
		},
		Evalscript: r.Evalscript,
	}
}

// Payload builds the Statistical API body. Nothing is validated locally.
func (r StatisticalRequest) Payload() StatisticalPayload {
	p := StatisticalPayload{
		Input: inputPayload{
			Bounds: r.Bounds.payload(),
			Data: []dataPayload{{
				Type:       collectionOrDefault(r.Collection),
				DataFilter: dataFilterPayload{MaxCloudCoverage: r.MaxCloudCoverage},
			}},
		},
		Aggregation: aggregationPayload{
			TimeRange:           r.TimeRange.payload(),
			AggregationInterval: aggregationInterval{Of: r.AggregationInterval},
			Evalscript:          r.Evalscript,
			ResX:                r.ResX,
			ResY:                r.ResY,
		},
	}
	if len(r.Percentiles) > 0 {
		p.Calculations = map[string]calculationPayload{
			"default": {Statistics: map[string]statisticsPayload{
				"default": {Percentiles: &percentilesPayload{K: r.Percentiles}},
			}},
		}
	}
	return p
}
