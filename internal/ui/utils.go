package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/paulmach/orb"
)

const dateLayout = "2006-01-02"

var (
	warning = color.New(color.FgYellow)
	failure = color.New(color.FgRed)
	success = color.New(color.FgGreen)
	info    = color.New(color.FgBlue)
)

// Console reads answers from in and writes prompts and results to out.
type Console struct {
	in  *bufio.Reader
	out io.Writer
}

func NewConsole(in io.Reader, out io.Writer) *Console {
	return &Console{in: bufio.NewReader(in), out: out}
}

// StdConsole talks to the terminal.
func StdConsole() *Console {
	return NewConsole(os.Stdin, os.Stdout)
}

func (c *Console) PrintBanner() {
	color.New(color.FgCyan).Fprintln(c.out, figure.NewFigure("Copernicus", "isometric1", true).String())
	color.New(color.FgCyan).Fprintln(c.out, figure.NewFigure("Stats", "isometric1", true).String())
}

func (c *Console) PrintWarning(message string) {
	warning.Fprintf(c.out, "\nWarning:\n%s\n", message)
}

func (c *Console) PrintError(message string) {
	failure.Fprintf(c.out, "\nError: %s\n", message)
}

func (c *Console) PrintSuccess(message string) {
	success.Fprintf(c.out, "\n%s\n", message)
}

func (c *Console) PrintInfo(message string) {
	info.Fprint(c.out, message)
}

// ReadString reads one trimmed line. io.EOF is returned once input is exhausted.
func (c *Console) ReadString(prompt string) (string, error) {
	c.PrintInfo(prompt)
	line, err := c.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// ReadInt reads an integer within [min, max].
func (c *Console) ReadInt(prompt string, min, max int) (int, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(input)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}
	if value < min || value > max {
		return 0, fmt.Errorf("value must be between %d and %d", min, max)
	}
	return value, nil
}

// ReadFloat reads a number, returning fallback for an empty answer.
func (c *Console) ReadFloat(prompt string, fallback float64) (float64, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return 0, err
	}
	if input == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(input, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %s", input)
	}
	return value, nil
}

// ReadDate reads a YYYY-MM-DD date; "today" is accepted.
func (c *Console) ReadDate(prompt string) (time.Time, error) {
	input, err := c.ReadString(prompt)
	if err != nil {
		return time.Time{}, err
	}
	if input == "today" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	date, err := time.Parse(dateLayout, input)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date format: %s. Please use YYYY-MM-DD", input)
	}
	return date, nil
}

// ReadDateRange reads an end date and a number of days before it.
func (c *Console) ReadDateRange() (sentinel.TimeRange, error) {
	end, err := c.ReadDate("Enter the end date (YYYY-MM-DD | today): ")
	if err != nil {
		return sentinel.TimeRange{}, err
	}
	days, err := c.ReadInt("Enter number of days: ", 1, 3650)
	if err != nil {
		return sentinel.TimeRange{}, err
	}
	return sentinel.TimeRange{From: end.AddDate(0, 0, -days), To: end}, nil
}

// ReadUnit reads a spatial unit, either a point with a buffer or a feature of a GeoJSON file.
func (c *Console) ReadUnit() (sentinel.NamedGeometry, error) {
	input, err := c.ReadString("Enter a point as lon,lat or a GeoJSON feature as path.geojson:name: ")
	if err != nil {
		return sentinel.NamedGeometry{}, err
	}

	if path, name, ok := strings.Cut(input, ".geojson:"); ok {
		fc, err := sentinel.LoadFeatureCollection(path + ".geojson")
		if err != nil {
			return sentinel.NamedGeometry{}, err
		}
		property, err := c.ReadString("Enter the name property (default name): ")
		if err != nil {
			return sentinel.NamedGeometry{}, err
		}
		if property == "" {
			property = "name"
		}
		units, err := sentinel.UnitsFromFeatures(fc, property, []string{name})
		if err != nil {
			return sentinel.NamedGeometry{}, err
		}
		if len(units) == 0 {
			return sentinel.NamedGeometry{}, fmt.Errorf("feature %q not found", name)
		}
		return units[0], nil
	}

	point, err := parsePoint(input)
	if err != nil {
		return sentinel.NamedGeometry{}, err
	}
	buffer, err := c.ReadFloat("Enter the buffer in metres (default 1000): ", 1000)
	if err != nil {
		return sentinel.NamedGeometry{}, err
	}
	return sentinel.NamedGeometry{
		Name:   fmt.Sprintf("%.4f_%.4f", point.Lon(), point.Lat()),
		Bounds: sentinel.PointBuffer(point, buffer),
	}, nil
}

func parsePoint(input string) (orb.Point, error) {
	parts := strings.Split(input, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("invalid point %q. Please use lon,lat", input)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid longitude %q", parts[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return orb.Point{}, fmt.Errorf("invalid latitude %q", parts[1])
	}
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return orb.Point{}, fmt.Errorf("point %v is out of range", input)
	}
	return orb.Point{lon, lat}, nil
}
