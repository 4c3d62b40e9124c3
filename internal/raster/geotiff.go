package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/forest-guardian/copernicus-stats/internal/utils"
	"github.com/sirupsen/logrus"
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

var errLogger = godal.ErrLogger(func(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		logrus.WithField("code", code).Debug(msg)
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
})

// ReadBands decodes every band of a GeoTIFF. Nodata pixels become NaN.
func ReadBands(path string) ([]Grid, error) {
	register()

	var (
		grids []Grid
		err   error
	)
	utils.ExecuteWithMutex(func() {
		grids, err = readBands(path)
	})
	return grids, err
}

func readBands(path string) ([]Grid, error) {
	dataset, err := godal.Open(path, errLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to open TIFF file: %w", err)
	}
	defer dataset.Close()

	geoTransform, err := dataset.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("failed to get GeoTransform: %w", err)
	}

	structure := dataset.Structure()
	grids := make([]Grid, 0, structure.NBands)
	for i, band := range dataset.Bands() {
		width, height := band.Structure().SizeX, band.Structure().SizeY
		data := make([]float64, width*height)
		if err := band.Read(0, 0, data, width, height); err != nil {
			return nil, fmt.Errorf("failed to read band %d: %w", i+1, err)
		}
		if noData, ok := band.NoData(); ok {
			for j, v := range data {
				if v == noData {
					data[j] = math.NaN()
				}
			}
		}
		grids = append(grids, Grid{Width: width, Height: height, Data: data, GeoTransform: geoTransform})
	}
	return grids, nil
}

// ReadBandsFromBytes decodes a response body and saves it to path. Bodies that do
// not decode are removed and never reach path.
func ReadBandsFromBytes(path string, content []byte) ([]Grid, error) {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, content, 0644); err != nil {
		return nil, fmt.Errorf("failed to save image: %w", err)
	}
	grids, err := ReadBands(tmpFile)
	if err != nil {
		os.Remove(tmpFile)
		return nil, err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return nil, fmt.Errorf("failed to rename image: %w", err)
	}
	return grids, nil
}

// WriteGeoTIFF saves the grids as float64 bands of a WGS84 GeoTIFF with NaN as nodata.
func WriteGeoTIFF(path string, grids ...Grid) error {
	if len(grids) == 0 {
		return fmt.Errorf("no bands to write")
	}
	for i, g := range grids[1:] {
		if !g.SameShape(grids[0]) {
			return fmt.Errorf("band %d has a different size", i+2)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	register()

	var err error
	utils.ExecuteWithMutex(func() {
		err = writeGeoTIFF(path, grids)
	})
	return err
}

func writeGeoTIFF(path string, grids []Grid) error {
	first := grids[0]
	dataset, err := godal.Create(godal.GTiff, path, len(grids), godal.Float64, first.Width, first.Height, errLogger)
	if err != nil {
		return fmt.Errorf("failed to create TIFF file: %w", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		dataset.Close()
		return fmt.Errorf("failed to create spatial reference: %w", err)
	}
	defer sr.Close()

	if err := dataset.SetSpatialRef(sr); err != nil {
		dataset.Close()
		return fmt.Errorf("failed to set spatial reference: %w", err)
	}
	if err := dataset.SetGeoTransform(first.GeoTransform); err != nil {
		dataset.Close()
		return fmt.Errorf("failed to set GeoTransform: %w", err)
	}
	for i, band := range dataset.Bands() {
		if err := band.SetNoData(math.NaN()); err != nil {
			dataset.Close()
			return fmt.Errorf("failed to set nodata on band %d: %w", i+1, err)
		}
		if err := band.Write(0, 0, grids[i].Data, first.Width, first.Height); err != nil {
			dataset.Close()
			return fmt.Errorf("failed to write band %d: %w", i+1, err)
		}
	}
	if err := dataset.Close(); err != nil {
		return fmt.Errorf("failed to close TIFF file: %w", err)
	}
	return nil
}
