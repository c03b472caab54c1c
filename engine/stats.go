package engine

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/genome"
)

// Stats is the on-demand aggregate the host polls between steps (§6
// "Stats"). It implements slog.LogValuer so a host can log it directly,
// matching the teacher's telemetry.WindowStats convention.
type Stats struct {
	TotalEntities int
	MeanSpeed     float64
	MeanSize      float64
	MeanEnergy    float64
	EnergyP10     float64
	EnergyP50     float64
	EnergyP90     float64
	Step          uint64

	// StyleCounts is the population broken down by genome-encoded
	// movement style, in the spirit of the teacher's clade tracking
	// (telemetry.WindowStats.ActiveClades) but computed fresh from
	// live rows rather than a persisted lineage graph.
	StyleCounts   [genome.NumStyles]int
	MaxGeneration uint32
}

// LogValue implements slog.LogValuer.
func (s Stats) LogValue() slog.Value {
	styleAttrs := make([]slog.Attr, genome.NumStyles)
	for i := range styleAttrs {
		styleAttrs[i] = slog.Int(strings.ToLower(genome.Style(i).String()), s.StyleCounts[i])
	}
	return slog.GroupValue(
		slog.Int("total_entities", s.TotalEntities),
		slog.Float64("mean_speed", s.MeanSpeed),
		slog.Float64("mean_size", s.MeanSize),
		slog.Float64("mean_energy", s.MeanEnergy),
		slog.Float64("energy_p10", s.EnergyP10),
		slog.Float64("energy_p50", s.EnergyP50),
		slog.Float64("energy_p90", s.EnergyP90),
		slog.Uint64("step", s.Step),
		slog.Uint64("max_generation", uint64(s.MaxGeneration)),
		slog.Attr{Key: "styles", Value: slog.GroupValue(styleAttrs...)},
	)
}

// Stats computes the current aggregate over all live rows.
func (e *Engine) Stats() Stats {
	n := e.store.Len()
	if n == 0 {
		return Stats{Step: e.step}
	}

	speeds := make([]float64, 0, n)
	sizes := make([]float64, 0, n)
	energies := make([]float64, 0, n)
	var styleCounts [genome.NumStyles]int
	var maxGen uint32

	e.store.ForEach(func(id entity.ID, view entity.RowView) {
		speeds = append(speeds, math.Hypot(view.Velocity.X, view.Velocity.Y))
		sizes = append(sizes, view.Body.Radius)
		energies = append(energies, view.Energy.Value)
		styleCounts[view.Genome.Style]++
		if view.Genome.Generation > maxGen {
			maxGen = view.Genome.Generation
		}
	})

	sortedEnergies := append([]float64(nil), energies...)
	sort.Float64s(sortedEnergies)

	return Stats{
		TotalEntities: n,
		MeanSpeed:     stat.Mean(speeds, nil),
		MeanSize:      stat.Mean(sizes, nil),
		MeanEnergy:    stat.Mean(energies, nil),
		EnergyP10:     stat.Quantile(0.10, stat.Empirical, sortedEnergies, nil),
		EnergyP50:     stat.Quantile(0.50, stat.Empirical, sortedEnergies, nil),
		EnergyP90:     stat.Quantile(0.90, stat.Empirical, sortedEnergies, nil),
		Step:          e.step,
		StyleCounts:   styleCounts,
		MaxGeneration: maxGen,
	}
}
