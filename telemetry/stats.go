// Package telemetry turns a running engine's per-step Stats/Diagnostics
// into windowed aggregates suitable for logging and CSV export, the way
// the teacher's telemetry package turns per-tick prey/predator events
// into periodic WindowStats rows.
package telemetry

import (
	"log/slog"

	"gonum.org/v1/gonum/stat"

	"github.com/evosim/engine/engine"
)

// WindowStats holds aggregated statistics for a span of steps between
// two flushes of a Collector.
type WindowStats struct {
	WindowStartStep uint64 `csv:"window_start"`
	WindowEndStep   uint64 `csv:"window_end"`

	EntityCount   int     `csv:"entities"`
	MeanSpeed     float64 `csv:"mean_speed"`
	MeanSize      float64 `csv:"mean_size"`
	MeanEnergy    float64 `csv:"mean_energy"`
	EnergyP10     float64 `csv:"energy_p10"`
	EnergyP50     float64 `csv:"energy_p50"`
	EnergyP90     float64 `csv:"energy_p90"`
	MaxGeneration uint32  `csv:"max_generation"`

	RandomCount    int `csv:"random_count"`
	FlockingCount  int `csv:"flocking_count"`
	SolitaryCount  int `csv:"solitary_count"`
	PredatoryCount int `csv:"predatory_count"`
	GrazingCount   int `csv:"grazing_count"`

	ReproductionAttempts int `csv:"reproduction_attempts"`
	ReproductionsCapped  int `csv:"reproductions_capped"`
	PredationAttempts    int `csv:"predation_attempts"`
	PredationKills       int `csv:"predation_kills"`
	Culled               int `csv:"culled"`
	NumericResets        int `csv:"numeric_resets"`
}

// Percentile returns the p-th quantile (p in [0,1]) of sorted, via
// gonum's empirical quantile: the first sample at which the empirical
// CDF reaches p, with no interpolation between samples.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("window_start", s.WindowStartStep),
		slog.Uint64("window_end", s.WindowEndStep),
		slog.Int("entities", s.EntityCount),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("mean_size", s.MeanSize),
		slog.Float64("mean_energy", s.MeanEnergy),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Float64("energy_p90", s.EnergyP90),
		slog.Uint64("max_generation", uint64(s.MaxGeneration)),
		slog.Int("random", s.RandomCount),
		slog.Int("flocking", s.FlockingCount),
		slog.Int("solitary", s.SolitaryCount),
		slog.Int("predatory", s.PredatoryCount),
		slog.Int("grazing", s.GrazingCount),
		slog.Int("reproduction_attempts", s.ReproductionAttempts),
		slog.Int("reproductions_capped", s.ReproductionsCapped),
		slog.Int("predation_attempts", s.PredationAttempts),
		slog.Int("predation_kills", s.PredationKills),
		slog.Int("culled", s.Culled),
		slog.Int("numeric_resets", s.NumericResets),
	)
}

// LogStats logs the window stats at info level using slog.
func (s WindowStats) LogStats() {
	slog.Info("window stats", "stats", s)
}

// styleCountsFrom unpacks an engine.Stats style breakdown into the
// WindowStats' named fields (CSV rows want named columns, not an array).
func styleCountsFrom(s engine.Stats) (random, flocking, solitary, predatory, grazing int) {
	c := s.StyleCounts
	return c[0], c[1], c[2], c[3], c[4]
}
