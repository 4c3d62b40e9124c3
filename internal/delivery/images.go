package delivery

import (
	"context"
	"fmt"
	"os"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/cache"
	"github.com/forest-guardian/copernicus-stats/internal/fetch"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/raster"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/gosimple/slug"
	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

// Band order of the "bands" evalscript.
const (
	bandGreen = iota
	bandRed
	bandNIR
	bandSCL
	bandDataMask
	bandCount
)

// Scene classification values treated as unusable: cloud shadow, clouds, cirrus and snow.
var cloudyClasses = map[float64]bool{3: true, 8: true, 9: true, 10: true, 11: true}

type imageQuery struct {
	unit             sentinel.NamedGeometry
	resolution       float64
	mosaicking       string
	maxCloudCoverage *float64
	name             func(sentinel.TimeRange) string
}

// images returns the bands of one Process API image per range. Images already on
// disk under data/images are read instead of requested again.
func (d *Deps) images(ctx context.Context, q imageQuery, ranges []sentinel.TimeRange) ([][]raster.Grid, error) {
	evalscript, err := sentinel.ResolveEvalscript("bands")
	if err != nil {
		return nil, err
	}
	opts := fetch.Options{Workers: d.Config.Workers, Description: "Fetching images", Quiet: d.Quiet}
	return fetch.All(ctx, ranges, opts, func(ctx context.Context, r sentinel.TimeRange) ([]raster.Grid, error) {
		req := sentinel.ProcessRequest{
			Bounds:           q.unit.Bounds,
			TimeRange:        r,
			Collection:       sentinel.Sentinel2L2A,
			Evalscript:       evalscript,
			Resolution:       q.resolution,
			Mosaicking:       q.mosaicking,
			MaxCloudCoverage: q.maxCloudCoverage,
		}
		path := properties.DataPath("images", slug.Make(q.unit.Name), imageName(q.name(r), req))
		if _, err := os.Stat(path); err == nil {
			log.WithField("path", path).Debug("using saved image")
			return raster.ReadBands(path)
		}
		content, err := d.Client.Process(ctx, req)
		if err != nil {
			return nil, err
		}
		return raster.ReadBandsFromBytes(path, content)
	})
}

// imageName suffixes name with a hash of the request payload so a change of
// area, resolution, mosaicking or cloud filter never reuses a stale image.
func imageName(name string, req sentinel.ProcessRequest) string {
	return name + "_" + cache.Key(req.Payload())[:12] + ".tif"
}

// indices derives cloud-masked NDVI and NDWI from the bands of one image.
func indices(bands []raster.Grid) (ndvi, ndwi raster.Grid, err error) {
	if len(bands) < bandCount {
		return raster.Grid{}, raster.Grid{}, fmt.Errorf("expected %d bands, got %d", bandCount, len(bands))
	}
	scl, dataMask := bands[bandSCL], bands[bandDataMask]
	clear := raster.NewGrid(dataMask.Width, dataMask.Height, dataMask.GeoTransform)
	for i, m := range dataMask.Data {
		clear.Data[i] = 0
		if m == 1 && !cloudyClasses[scl.Data[i]] {
			clear.Data[i] = 1
		}
	}

	if ndvi, err = analysis.NDVI(bands[bandNIR], bands[bandRed]); err != nil {
		return raster.Grid{}, raster.Grid{}, err
	}
	if ndwi, err = analysis.NDWI(bands[bandGreen], bands[bandNIR]); err != nil {
		return raster.Grid{}, raster.Grid{}, err
	}
	if ndvi, err = analysis.MaskInvalid(ndvi, clear); err != nil {
		return raster.Grid{}, raster.Grid{}, err
	}
	if ndwi, err = analysis.MaskInvalid(ndwi, clear); err != nil {
		return raster.Grid{}, raster.Grid{}, err
	}
	return ndvi, ndwi, nil
}
