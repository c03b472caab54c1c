package telemetry

import (
	"github.com/evosim/engine/engine"
)

// Collector accumulates engine.Diagnostics deltas across a span of
// steps and flushes them into a WindowStats alongside a fresh
// engine.Stats snapshot, the way the teacher's Collector accumulates
// bite/kill/birth counts between window flushes.
type Collector struct {
	windowStartStep uint64
	last            engine.Diagnostics
}

// NewCollector creates a collector starting its first window at step 0.
func NewCollector() *Collector {
	return &Collector{}
}

// Flush produces a WindowStats covering every step since the previous
// flush (or since construction), using the engine's current Stats and
// the delta of its cumulative Diagnostics counters, then resets the
// window boundary for the next span.
func (c *Collector) Flush(e *engine.Engine) WindowStats {
	s := e.Stats()
	d := e.Diagnostics()

	random, flocking, solitary, predatory, grazing := styleCountsFrom(s)

	ws := WindowStats{
		WindowStartStep: c.windowStartStep,
		WindowEndStep:   s.Step,

		EntityCount:   s.TotalEntities,
		MeanSpeed:     s.MeanSpeed,
		MeanSize:      s.MeanSize,
		MeanEnergy:    s.MeanEnergy,
		EnergyP10:     s.EnergyP10,
		EnergyP50:     s.EnergyP50,
		EnergyP90:     s.EnergyP90,
		MaxGeneration: s.MaxGeneration,

		RandomCount:    random,
		FlockingCount:  flocking,
		SolitaryCount:  solitary,
		PredatoryCount: predatory,
		GrazingCount:   grazing,

		ReproductionAttempts: int(d.ReproductionAttempts - c.last.ReproductionAttempts),
		ReproductionsCapped:  int(d.ReproductionsCapped - c.last.ReproductionsCapped),
		PredationAttempts:    int(d.PredationAttempts - c.last.PredationAttempts),
		PredationKills:       int(d.PredationKills - c.last.PredationKills),
		Culled:               int(d.Culled - c.last.Culled),
		NumericResets:        int(d.NumericResets - c.last.NumericResets),
	}

	c.windowStartStep = s.Step
	c.last = d
	return ws
}
