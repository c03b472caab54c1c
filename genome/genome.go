// Package genome implements the heritable trait vector carried by every
// entity: grouped movement/energy/reproduction/appearance traits, bounded
// construction, mutation, similarity, and cached color derivation.
package genome

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/evosim/engine/config"
)

// Style is the movement-style discriminator carried on the genome,
// replacing the source's ad-hoc per-entity behavior closures with a
// small finite variant (SPEC_FULL.md §9 "Duck-typed... / Ad-hoc per-
// entity closures").
type Style uint8

const (
	Random Style = iota
	Flocking
	Solitary
	Predatory
	Grazing
	NumStyles
)

func (s Style) String() string {
	switch s {
	case Random:
		return "Random"
	case Flocking:
		return "Flocking"
	case Solitary:
		return "Solitary"
	case Predatory:
		return "Predatory"
	case Grazing:
		return "Grazing"
	default:
		return "Unknown"
	}
}

// RGB is a color triple in [0,1]^3.
type RGB struct {
	R, G, B float64
}

// Movement holds the movement trait group.
type Movement struct {
	Speed       float64
	SenseRadius float64
}

// Energy holds the energy trait group.
type Energy struct {
	Efficiency float64
	LossRate   float64
	GainRate   float64
	SizeFactor float64
}

// Reproduction holds the reproduction trait group.
type Reproduction struct {
	Rate         float64
	MutationRate float64
}

// Appearance holds the appearance trait group. Hue is circular over [0,1).
type Appearance struct {
	Hue        float64
	Saturation float64
}

// Genome is the immutable heritable trait vector. Construct with New or
// Mutate; never mutate fields in place — Genome is a value type passed
// and stored by value.
type Genome struct {
	Movement     Movement
	Energy       Energy
	Reproduction Reproduction
	Appearance   Appearance
	Style        Style
	Generation   uint32

	color RGB // cached, recomputed on construction and mutation
}

// Color returns the cached RGB derived from Hue/Saturation at construction time.
func (g Genome) Color() RGB { return g.color }

// MaxEnergy returns the entity's energy capacity, derived from efficiency
// per §4.1 "max_energy is derived: base_max × efficiency".
func (g Genome) MaxEnergy(baseMax float64) float64 {
	return baseMax * g.Energy.Efficiency
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func wrap01(v float64) float64 {
	v = math.Mod(v, 1.0)
	if v < 0 {
		v += 1.0
	}
	return v
}

// New constructs a random genome within configured bounds.
func New(rng *rand.Rand, cfg *config.GenomeConfig) Genome {
	g := cfg.Speed
	e := cfg.Efficiency
	gn := Genome{
		Movement: Movement{
			Speed:       uniform(rng, g.Lo, g.Hi),
			SenseRadius: uniform(rng, cfg.SenseRadius.Lo, cfg.SenseRadius.Hi),
		},
		Energy: Energy{
			Efficiency: uniform(rng, e.Lo, e.Hi),
			LossRate:   uniform(rng, cfg.LossRate.Lo, cfg.LossRate.Hi),
			GainRate:   uniform(rng, cfg.GainRate.Lo, cfg.GainRate.Hi),
			SizeFactor: uniform(rng, cfg.SizeFactor.Lo, cfg.SizeFactor.Hi),
		},
		Reproduction: Reproduction{
			Rate:         uniform(rng, cfg.Rate.Lo, cfg.Rate.Hi),
			MutationRate: uniform(rng, cfg.MutationRate.Lo, cfg.MutationRate.Hi),
		},
		Appearance: Appearance{
			Hue:        rng.Float64(),
			Saturation: uniform(rng, cfg.Saturation.Lo, cfg.Saturation.Hi),
		},
		Style:      Style(rng.Intn(int(NumStyles))),
		Generation: 0,
	}
	gn.color = deriveColor(gn.Appearance)
	return gn
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// Mutate returns a new genome with each trait perturbed by an independent
// symmetric noise of magnitude proportional to trait range times the
// genome's own mutation_rate, then clamped to bounds (§4.1b). The
// movement style is inherited, and independently redrawn uniformly at
// random with probability mutation_rate — see SPEC_FULL.md §13 for why
// this resolves the source's underspecified inheritance rule.
func (g Genome) Mutate(rng *rand.Rand, cfg *config.GenomeConfig) Genome {
	rate := g.Reproduction.MutationRate
	child := g

	child.Movement.Speed = perturb(rng, g.Movement.Speed, cfg.Speed, rate)
	child.Movement.SenseRadius = perturb(rng, g.Movement.SenseRadius, cfg.SenseRadius, rate)

	child.Energy.Efficiency = perturb(rng, g.Energy.Efficiency, cfg.Efficiency, rate)
	child.Energy.LossRate = perturb(rng, g.Energy.LossRate, cfg.LossRate, rate)
	child.Energy.GainRate = perturb(rng, g.Energy.GainRate, cfg.GainRate, rate)
	child.Energy.SizeFactor = perturb(rng, g.Energy.SizeFactor, cfg.SizeFactor, rate)

	child.Reproduction.Rate = perturb(rng, g.Reproduction.Rate, cfg.Rate, rate)
	child.Reproduction.MutationRate = perturb(rng, g.Reproduction.MutationRate, cfg.MutationRate, rate)

	child.Appearance.Hue = wrap01(g.Appearance.Hue + rng.NormFloat64()*rate*0.2)
	child.Appearance.Saturation = perturb(rng, g.Appearance.Saturation, cfg.Saturation, rate)

	if rng.Float64() < rate {
		child.Style = Style(rng.Intn(int(NumStyles)))
	}
	child.Generation = g.Generation + 1

	child.color = deriveColor(child.Appearance)
	return child
}

// perturb adds gaussian noise scaled by trait range * rate to v, clamped to [lo,hi].
// Uses distuv.Normal for the draw, matching the teacher's statistically-grounded
// (gonum-based) approach to stochastic parameter perturbation.
func perturb(rng *rand.Rand, v float64, bounds config.TraitBounds, rate float64) float64 {
	span := bounds.Hi - bounds.Lo
	sigma := span * rate
	if sigma <= 0 {
		return clamp(v, bounds.Lo, bounds.Hi)
	}
	dist := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}
	return clamp(v+dist.Rand(), bounds.Lo, bounds.Hi)
}

// Similarity returns a bounded scalar in [0,1] comparing two genomes: a
// weighted mean of per-group normalized distances (movement, energy,
// reproduction via min-max-normalized Euclidean distance; appearance via
// circular hue + saturation distance), combined as 1 - weighted mean
// distance. See SPEC_FULL.md §13 for why this formula was chosen over
// the source's unspecified one.
func (g Genome) Similarity(o Genome, cfg *config.GenomeConfig) float64 {
	dMovement := normDist2(
		g.Movement.Speed, o.Movement.Speed, cfg.Speed,
		g.Movement.SenseRadius, o.Movement.SenseRadius, cfg.SenseRadius,
	)
	dEnergy := normDist4(
		g.Energy.Efficiency, o.Energy.Efficiency, cfg.Efficiency,
		g.Energy.LossRate, o.Energy.LossRate, cfg.LossRate,
		g.Energy.GainRate, o.Energy.GainRate, cfg.GainRate,
		g.Energy.SizeFactor, o.Energy.SizeFactor, cfg.SizeFactor,
	)
	dRepro := normDist2(
		g.Reproduction.Rate, o.Reproduction.Rate, cfg.Rate,
		g.Reproduction.MutationRate, o.Reproduction.MutationRate, cfg.MutationRate,
	)

	hueDist := circularDist(g.Appearance.Hue, o.Appearance.Hue)
	satDist := normDist1(g.Appearance.Saturation, o.Appearance.Saturation, cfg.Saturation)
	dAppearance := math.Sqrt((hueDist*hueDist + satDist*satDist) / 2)

	w := cfg.SimilarityWeights
	wSum := w[0] + w[1] + w[2] + w[3]
	if wSum <= 0 {
		wSum = 1
	}
	weighted := (w[0]*dMovement + w[1]*dEnergy + w[2]*dRepro + w[3]*dAppearance) / wSum
	return clamp(1.0-weighted, 0, 1)
}

func circularDist(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 0.5 {
		d = 1.0 - d
	}
	return d * 2 // scale [0,0.5] -> [0,1]
}

func normDist1(a, b float64, bounds config.TraitBounds) float64 {
	rng := bounds.Hi - bounds.Lo
	if rng <= 0 {
		return 0
	}
	return math.Abs(a-b) / rng
}

func normDist2(a1, b1 float64, r1 config.TraitBounds, a2, b2 float64, r2 config.TraitBounds) float64 {
	d1 := normDist1(a1, b1, r1)
	d2 := normDist1(a2, b2, r2)
	return math.Sqrt((d1*d1 + d2*d2) / 2)
}

func normDist4(a1, b1 float64, r1 config.TraitBounds, a2, b2 float64, r2 config.TraitBounds, a3, b3 float64, r3 config.TraitBounds, a4, b4 float64, r4 config.TraitBounds) float64 {
	d1 := normDist1(a1, b1, r1)
	d2 := normDist1(a2, b2, r2)
	d3 := normDist1(a3, b3, r3)
	d4 := normDist1(a4, b4, r4)
	return math.Sqrt((d1*d1 + d2*d2 + d3*d3 + d4*d4) / 4)
}

// deriveColor converts HSV (with value fixed at 1) to RGB, per §4.1
// "Color derivation uses HSV→RGB with value fixed".
func deriveColor(a Appearance) RGB {
	return hsvToRGB(a.Hue, a.Saturation, 1.0)
}

func hsvToRGB(h, s, v float64) RGB {
	if s <= 0 {
		return RGB{R: v, G: v, B: v}
	}
	h = wrap01(h) * 6
	i := math.Floor(h)
	f := h - i
	p := v * (1 - s)
	q := v * (1 - s*f)
	t := v * (1 - s*(1-f))

	switch int(i) % 6 {
	case 0:
		return RGB{R: v, G: t, B: p}
	case 1:
		return RGB{R: q, G: v, B: p}
	case 2:
		return RGB{R: p, G: v, B: t}
	case 3:
		return RGB{R: p, G: q, B: v}
	case 4:
		return RGB{R: t, G: p, B: v}
	default:
		return RGB{R: v, G: p, B: q}
	}
}

// ClampToBounds clamps every trait in place to the configured bounds and
// reports whether any field was out of range, for use when a genome
// arrives from an untrusted source (deserialization) — §4.1 "Failure:
// Out-of-range input from deserialization is clamped and reported as a
// recoverable warning."
func (g Genome) ClampToBounds(cfg *config.GenomeConfig) (Genome, bool) {
	clamped := false
	clampField := func(v float64, b config.TraitBounds) float64 {
		cv := clamp(v, b.Lo, b.Hi)
		if cv != v {
			clamped = true
		}
		return cv
	}

	out := g
	out.Movement.Speed = clampField(g.Movement.Speed, cfg.Speed)
	out.Movement.SenseRadius = clampField(g.Movement.SenseRadius, cfg.SenseRadius)
	out.Energy.Efficiency = clampField(g.Energy.Efficiency, cfg.Efficiency)
	out.Energy.LossRate = clampField(g.Energy.LossRate, cfg.LossRate)
	out.Energy.GainRate = clampField(g.Energy.GainRate, cfg.GainRate)
	out.Energy.SizeFactor = clampField(g.Energy.SizeFactor, cfg.SizeFactor)
	out.Reproduction.Rate = clampField(g.Reproduction.Rate, cfg.Rate)
	out.Reproduction.MutationRate = clampField(g.Reproduction.MutationRate, cfg.MutationRate)
	out.Appearance.Hue = wrap01(g.Appearance.Hue)
	out.Appearance.Saturation = clampField(g.Appearance.Saturation, cfg.Saturation)
	if int(g.Style) >= int(NumStyles) {
		out.Style = Random
		clamped = true
	}

	out.color = deriveColor(out.Appearance)
	return out, clamped
}
