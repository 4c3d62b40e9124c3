package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/forest-guardian/copernicus-stats/internal/properties"
	"github.com/forest-guardian/copernicus-stats/internal/sentinel"
	"github.com/forest-guardian/copernicus-stats/internal/stats"
	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
)

func main() {
	// Hardcoded test parameters - modify these to test different scenarios
	name := "Ljubljana"
	center := orb.Point{14.5058, 46.0569}
	timeRange := sentinel.TimeRange{
		From: time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2020, 9, 1, 0, 0, 0, 0, time.UTC),
	}

	fmt.Println("=== Copernicus Statistics Smoke Test ===")
	fmt.Printf("Unit: %s %v\n", name, center)
	fmt.Printf("Range: %s to %s\n\n", timeRange.From.Format("2006-01-02"), timeRange.To.Format("2006-01-02"))

	if properties.LoadEnv(".env", "../.env", "../../.env") == "" {
		fmt.Println("No .env file found. Make sure you have set the required environment variables:")
		fmt.Println("- COPERNICUS_CLIENT_ID")
		fmt.Println("- COPERNICUS_CLIENT_SECRET")
		fmt.Println()
	}

	cfg, err := properties.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	client, err := sentinel.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	evalscript, err := sentinel.ResolveEvalscript("ndvi-stats")
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	resp, err := client.Statistics(ctx, sentinel.StatisticalRequest{
		Bounds:              sentinel.PointBuffer(center, 1000),
		TimeRange:           timeRange,
		AggregationInterval: "P1M",
		ResX:                0.001,
		ResY:                0.001,
		Collection:          sentinel.Sentinel2L2A,
		Evalscript:          evalscript,
	})
	if err != nil {
		log.Fatalf("Statistical request failed: %v", err)
	}
	fmt.Printf("✓ Received %d intervals in %v\n", len(resp.Data), time.Since(start).Round(time.Millisecond))

	table, err := stats.Normalize([]string{name}, []*sentinel.StatisticsResponse{resp})
	if err != nil {
		log.Fatalf("Failed to normalize response: %v", err)
	}
	if err := table.WriteCSV(os.Stdout); err != nil {
		log.Fatal(err)
	}

	fmt.Println("\n✓ Test completed successfully!")
}
