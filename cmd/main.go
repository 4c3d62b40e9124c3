package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/analysis"
	"github.com/forest-guardian/copernicus-stats/internal/api"
	"github.com/forest-guardian/copernicus-stats/internal/cache"
	"github.com/forest-guardian/copernicus-stats/internal/delivery"
	"github.com/forest-guardian/copernicus-stats/internal/job"
	"github.com/forest-guardian/copernicus-stats/internal/notification"
	"github.com/forest-guardian/copernicus-stats/internal/output"
	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/forest-guardian/copernicus-stats/internal/store"
	"github.com/forest-guardian/copernicus-stats/internal/ui"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const dateLayout = "2006-01-02"

var (
	cfg   properties.Config
	quiet bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	defer func() {
		if r := recover(); r != nil {
			message := fmt.Sprintf("copernicus-stats panic:\n\n%v\n\nStack trace:\n%s", r, debug.Stack())
			log.Error(message)
			if err := notification.NewDiscord().Error(context.Background(), message); err != nil {
				log.WithError(err).Warn("failed to send notification")
			}
			os.Exit(2)
		}
	}()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "copernicus-stats",
		Short:         "Zonal statistics and index analysis on Copernicus Sentinel Hub",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if path := properties.LoadEnv(".env", "../.env", "../../.env"); path != "" {
				log.WithField("path", path).Debug("environment loaded")
			}
			var err error
			if cfg, err = properties.Load(); err != nil {
				return err
			}
			level, err := log.ParseLevel(cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("invalid LOG_LEVEL: %w", err)
			}
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return cache.CloseBadger()
		},
	}
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "hide progress bars")

	root.AddCommand(statsCmd(), indexCmd(), forestLossCmd(), plotCmd(), serveCmd(), menuCmd())
	return root
}

func newDeps(ctx context.Context) (*delivery.Deps, func(), error) {
	deps, err := delivery.NewDeps(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps.Quiet = quiet
	closer := func() {}
	if cfg.StoreDSN != "" {
		db, err := store.Open(ctx, cfg.StoreDSN)
		if err != nil {
			return nil, nil, err
		}
		deps.Sink = db
		closer = func() { db.Close() }
	}
	return deps, closer, nil
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats JOB.yaml",
		Short: "Run a statistics job and save the normalized table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := job.Load(args[0])
			if err != nil {
				return err
			}
			deps, closeStore, err := newDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := delivery.RunStatistics(cmd.Context(), deps, j)
			if err != nil {
				return err
			}
			for _, s := range analysis.Summarize(result.Table, "mean") {
				fmt.Printf("%-24s n=%-4d mean=%.4f sd=%.4f\n", s.Unit, s.Count, s.Mean, s.StdDev)
			}
			fmt.Printf("run %s: %s\n", result.Run.ID, result.CSVPath)
			return nil
		},
	}
}

type areaFlags struct {
	point  []float64
	buffer float64
	name   string
}

func (f *areaFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64SliceVar(&f.point, "point", nil, "centre of the area as lon,lat")
	cmd.Flags().Float64Var(&f.buffer, "buffer", 1000, "half size of the area in metres")
	cmd.Flags().StringVar(&f.name, "name", "", "label of the area")
	cmd.MarkFlagRequired("point")
}

func (f *areaFlags) unit() (sentinel.NamedGeometry, error) {
	if len(f.point) != 2 {
		return sentinel.NamedGeometry{}, fmt.Errorf("--point needs lon,lat")
	}
	name := f.name
	if name == "" {
		name = fmt.Sprintf("%.4f_%.4f", f.point[0], f.point[1])
	}
	return sentinel.NamedGeometry{Name: name, Bounds: sentinel.PointBuffer(orb.Point{f.point[0], f.point[1]}, f.buffer)}, nil
}

func parseRange(from, to string) (sentinel.TimeRange, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return sentinel.TimeRange{}, fmt.Errorf("invalid date %q", from)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return sentinel.TimeRange{}, fmt.Errorf("invalid date %q", to)
	}
	if end.Before(start) {
		return sentinel.TimeRange{}, fmt.Errorf("%s is before %s", to, from)
	}
	return sentinel.TimeRange{From: start, To: end}, nil
}

func indexCmd() *cobra.Command {
	var (
		area       areaFlags
		from, to   string
		step       int
		index      string
		resolution float64
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Render an NDVI or NDWI series with land-cover classes",
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := area.unit()
			if err != nil {
				return err
			}
			timeRange, err := parseRange(from, to)
			if err != nil {
				return err
			}
			deps, closeStore, err := newDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			series, err := delivery.RunIndexSeries(cmd.Context(), deps, delivery.IndexRequest{
				Unit:       unit,
				Range:      timeRange,
				StepDays:   step,
				Index:      index,
				Resolution: resolution,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d images: %s\n", len(series.Frames), series.Dir)
			return nil
		},
	}
	area.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last day (YYYY-MM-DD)")
	cmd.Flags().IntVar(&step, "step", 5, "days between images")
	cmd.Flags().StringVar(&index, "index", delivery.IndexNDVI, "ndvi or ndwi")
	cmd.Flags().Float64Var(&resolution, "resolution", 10, "metres per pixel")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func forestLossCmd() *cobra.Command {
	var (
		area                                       areaFlags
		beforeFrom, beforeTo, afterFrom, afterTo   string
		resolution, forestThreshold, lossThreshold float64
		reference                                  string
	)
	cmd := &cobra.Command{
		Use:   "forest-loss",
		Short: "Detect forest loss between two periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			unit, err := area.unit()
			if err != nil {
				return err
			}
			before, err := parseRange(beforeFrom, beforeTo)
			if err != nil {
				return err
			}
			after, err := parseRange(afterFrom, afterTo)
			if err != nil {
				return err
			}
			deps, closeStore, err := newDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			result, err := delivery.RunForestLoss(cmd.Context(), deps, delivery.ForestLossRequest{
				Unit:            unit,
				Before:          before,
				After:           after,
				Resolution:      resolution,
				ForestThreshold: forestThreshold,
				LossThreshold:   lossThreshold,
				ReferencePath:   reference,
			})
			if err != nil {
				return err
			}
			fmt.Printf("lost %d of %d forest pixels (%.1f%%): %s\n",
				result.Loss.Lost, result.Loss.Forest, 100*result.Loss.LostFraction(), result.Dir)
			if c := result.Confusion; c != nil {
				fmt.Printf("accuracy %.3f precision %.3f recall %.3f\n", c.Accuracy(), c.Precision(), c.Recall())
			}
			return nil
		},
	}
	area.register(cmd)
	cmd.Flags().StringVar(&beforeFrom, "before-from", "", "first day of the before period")
	cmd.Flags().StringVar(&beforeTo, "before-to", "", "last day of the before period")
	cmd.Flags().StringVar(&afterFrom, "after-from", "", "first day of the after period")
	cmd.Flags().StringVar(&afterTo, "after-to", "", "last day of the after period")
	cmd.Flags().Float64Var(&resolution, "resolution", 10, "metres per pixel")
	cmd.Flags().Float64Var(&forestThreshold, "forest-threshold", analysis.DefaultForestThreshold, "minimum NDVI of forest")
	cmd.Flags().Float64Var(&lossThreshold, "loss-threshold", analysis.DefaultLossThreshold, "minimum NDVI drop counted as loss")
	cmd.Flags().StringVar(&reference, "reference", "", "GeoTIFF reference loss mask")
	for _, name := range []string{"before-from", "before-to", "after-from", "after-to"} {
		cmd.MarkFlagRequired(name)
	}
	return cmd
}

func plotCmd() *cobra.Command {
	var (
		column  string
		runID   string
		geojson string
	)
	cmd := &cobra.Command{
		Use:   "plot [TABLE.csv]",
		Short: "Plot a statistic per unit from a CSV table or a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				table *stats.Table
				base  string
				err   error
			)
			switch {
			case len(args) == 1:
				table, err = stats.LoadCSV(args[0])
				base = strings.TrimSuffix(args[0], filepath.Ext(args[0]))
			case runID != "" && cfg.StoreDSN != "":
				var db store.Store
				if db, err = store.Open(cmd.Context(), cfg.StoreDSN); err != nil {
					return err
				}
				defer db.Close()
				table, err = db.LoadTable(cmd.Context(), runID)
				base = properties.DataPath("result", "plots", runID)
			default:
				return fmt.Errorf("give a CSV table or --run with STORE_DSN set")
			}
			if err != nil {
				return err
			}

			base += "_" + column
			if err := output.SaveSeriesPNG(table, column, base+".png"); err != nil {
				return err
			}
			if err := output.SaveSeriesHTML(table, column, base+".html"); err != nil {
				return err
			}
			if geojson != "" {
				if err := saveUnitsMap(table, column, geojson, base+".geojson"); err != nil {
					return err
				}
			}
			for _, trend := range analysis.Trend(table, column) {
				fmt.Printf("%-24s slope=%.5f/yr r2=%.3f\n", trend.Unit, trend.SlopePerYear, trend.RSquared)
			}
			fmt.Printf("plots: %s.png %s.html\n", base, base)
			return nil
		},
	}
	cmd.Flags().StringVar(&column, "column", "mean", "statistic to plot")
	cmd.Flags().StringVar(&runID, "run", "", "stored run id")
	cmd.Flags().StringVar(&geojson, "units", "", "GeoJSON of the units, to write a summary map")
	return cmd
}

func saveUnitsMap(table *stats.Table, column, unitsPath, path string) error {
	fc, err := sentinel.LoadFeatureCollection(unitsPath)
	if err != nil {
		return err
	}
	units, err := sentinel.UnitsFromFeatures(fc, table.UnitColumn, table.Units())
	if err != nil {
		units, err = sentinel.UnitsFromFeatures(fc, "NAME", table.Units())
		if err != nil {
			return err
		}
	}
	return output.SaveUnitsGeoJSON(units, analysis.Summarize(table, column), path)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.StoreDSN == "" {
				return fmt.Errorf("STORE_DSN is required to serve runs")
			}
			db, err := store.Open(cmd.Context(), cfg.StoreDSN)
			if err != nil {
				return err
			}
			defer db.Close()
			return api.New(cfg, db).Run(cmd.Context())
		},
	}
}

func menuCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Interactive menu",
		RunE: func(cmd *cobra.Command, args []string) error {
			console := ui.StdConsole()
			console.PrintBanner()

			var deps *delivery.Deps
			if cfg.HasCredentials() {
				d, closeStore, err := newDeps(cmd.Context())
				if err != nil {
					return err
				}
				defer closeStore()
				deps = d
			} else {
				console.PrintWarning("COPERNICUS_CLIENT_ID and COPERNICUS_CLIENT_SECRET are not set: only local actions are available.")
			}
			return ui.NewMenu(console, deps).Show(cmd.Context())
		},
	}
}
