// Command simrun drives the simulation engine headlessly for a fixed
// number of steps, writing periodic window-stats and bookmark CSV rows
// and final summary lines, grounded in the teacher's cmd/optimize
// flag-parsing and telemetry.OutputManager pairing.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/engine"
	"github.com/evosim/engine/telemetry"
)

func main() {
	configPath := flag.String("config", "", "config YAML file (empty = embedded defaults)")
	worldSize := flag.Float64("world-size", 1000, "side length of the square world")
	steps := flag.Int("steps", 1000, "number of steps to simulate")
	windowSteps := flag.Int("window", 50, "steps per telemetry window")
	outputDir := flag.String("output", "", "directory for telemetry.csv/bookmarks.csv/config.yaml (empty = stdout only)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	e, err := engine.CreateWithLogger(*worldSize, cfg, logger)
	if err != nil {
		log.Fatalf("creating engine: %v", err)
	}

	out, err := telemetry.NewOutputManager(*outputDir)
	if err != nil {
		log.Fatalf("creating output directory: %v", err)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		log.Fatalf("writing config: %v", err)
	}

	collector := telemetry.NewCollector()
	detector := telemetry.NewBookmarkDetector(10)

	start := time.Now()
	for step := 0; step < *steps; step++ {
		e.Step()

		if (step+1)%*windowSteps != 0 {
			continue
		}
		ws := collector.Flush(e)
		ws.LogStats()
		if err := out.WriteTelemetry(ws); err != nil {
			log.Fatalf("writing telemetry row: %v", err)
		}
		for _, b := range detector.Check(ws) {
			b.LogBookmark()
			if err := out.WriteBookmark(b); err != nil {
				log.Fatalf("writing bookmark row: %v", err)
			}
		}
	}

	elapsed := time.Since(start)
	final := e.Stats()
	diag := e.Diagnostics()
	fmt.Printf("ran %d steps in %s (%.1f steps/sec)\n", *steps, elapsed.Round(time.Millisecond), float64(*steps)/elapsed.Seconds())
	fmt.Printf("final population: %d, mean energy: %.2f, max generation: %d\n", final.TotalEntities, final.MeanEnergy, final.MaxGeneration)
	fmt.Printf("diagnostics: %+v\n", diag)
}
