package sentinel

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

const ndviEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B04", "B08", "dataMask"],
        output: { id: "default", bands: 2, sampleType: SampleType.FLOAT32 },
      }
    }

    function evaluatePixel(sample) {
      let ndvi = (sample.B08 - sample.B04) / (sample.B08 + sample.B04);
      return [ndvi, sample.dataMask];
    }
  `

const ndwiEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B03", "B08", "dataMask"],
        output: { id: "default", bands: 2, sampleType: SampleType.FLOAT32 },
      }
    }

    function evaluatePixel(sample) {
      let ndwi = (sample.B03 - sample.B08) / (sample.B03 + sample.B08);
      return [ndwi, sample.dataMask];
    }
  `

const bandsEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B03", "B04", "B08", "SCL", "dataMask"],
        output: { id: "default", bands: 5, sampleType: SampleType.FLOAT32 },
      }
    }

    function evaluatePixel(sample) {
      return [sample.B03, sample.B04, sample.B08, sample.SCL, sample.dataMask];
    }
  `

const trueColorEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: ["B02", "B03", "B04"],
        output: { bands: 3 },
      }
    }

    function evaluatePixel(sample) {
      return [2.5 * sample.B04, 2.5 * sample.B03, 2.5 * sample.B02];
    }
  `

// Statistical API scripts must declare a dataMask output; cloudy and
// snow pixels from the scene classification are masked out.
const ndviStatsEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: [{ bands: ["B04", "B08", "SCL", "dataMask"] }],
        output: [
          { id: "data", bands: 1 },
          { id: "dataMask", bands: 1 },
        ],
      }
    }

    function evaluatePixel(samples) {
      let ndvi = index(samples.B08, samples.B04);
      let clear = [3, 8, 9, 10, 11].indexOf(samples.SCL) === -1 ? 1 : 0;
      return { data: [ndvi], dataMask: [samples.dataMask * clear] };
    }
  `

const ndwiStatsEvalscript = `
    //VERSION=3
    function setup() {
      return {
        input: [{ bands: ["B03", "B08", "SCL", "dataMask"] }],
        output: [
          { id: "data", bands: 1 },
          { id: "dataMask", bands: 1 },
        ],
      }
    }

    function evaluatePixel(samples) {
      let ndwi = index(samples.B03, samples.B08);
      let clear = [3, 8, 9, 10, 11].indexOf(samples.SCL) === -1 ? 1 : 0;
      return { data: [ndwi], dataMask: [samples.dataMask * clear] };
    }
  `

var evalscripts = map[string]string{
	"ndvi":       ndviEvalscript,
	"ndwi":       ndwiEvalscript,
	"bands":      bandsEvalscript,
	"true-color": trueColorEvalscript,
	"ndvi-stats": ndviStatsEvalscript,
	"ndwi-stats": ndwiStatsEvalscript,
}

// Evalscripts lists the names of the built-in scripts.
func Evalscripts() []string {
	names := make([]string, 0, len(evalscripts))
	for name := range evalscripts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveEvalscript returns a built-in script by name, or reads nameOrPath as a file.
// Inline scripts starting with //VERSION are returned unchanged.
func ResolveEvalscript(nameOrPath string) (string, error) {
	if script, ok := evalscripts[nameOrPath]; ok {
		return script, nil
	}
	if strings.HasPrefix(strings.TrimSpace(nameOrPath), "//VERSION") {
		return nameOrPath, nil
	}
	data, err := os.ReadFile(nameOrPath)
	if err != nil {
		return "", fmt.Errorf("unknown evalscript %q: %w", nameOrPath, err)
	}
	return string(data), nil
}
