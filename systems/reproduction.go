package systems

import (
	"math"
	"math/rand"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/genome"
)

// ReproductionCheck reports whether id satisfies every reproduction
// condition this step (§4.7). densityCount is the number of neighbors
// within sense_radius, already gathered by Sense.
func ReproductionCheck(rng *rand.Rand, store *entity.Store, id entity.ID, densityCount int, repCfg *config.ReproductionConfig, currentPopulation, maxPopulation int) bool {
	if currentPopulation >= maxPopulation {
		return false
	}
	en := store.EnergyOf(id)
	if en.Value < repCfg.EnergyThreshold*en.Max {
		return false
	}

	densityPressure := densityPressure(densityCount, repCfg)
	if densityPressure >= 1 {
		return false
	}

	g := store.GenomeOf(id)
	chance := g.Reproduction.Rate * (1 - densityPressure)
	if chance < repCfg.MinReproductionChance {
		chance = repCfg.MinReproductionChance
	}
	return rng.Float64() < chance
}

// densityPressure is the local neighbor count relative to the soft
// density threshold (population_density_factor * local_capacity), used
// by both the reproduction-chance reduction and density culling.
func densityPressure(count int, repCfg *config.ReproductionConfig) float64 {
	threshold := repCfg.PopulationDensityFactor * repCfg.LocalCapacity
	if threshold <= 0 {
		return 0
	}
	return float64(count) / threshold
}

// SpawnOffspring produces a new row's worth of state from a reproducing
// parent: a mutated genome, position jittered within child_spawn_radius,
// zero velocity, and energy scaled by child_energy_factor (§4.7
// "Offspring"). The parent's own energy deduction is the caller's
// responsibility, since it mutates the parent row rather than producing
// a new one.
func SpawnOffspring(rng *rand.Rand, store *entity.Store, parentID entity.ID, genCfg *config.GenomeConfig, repCfg *config.ReproductionConfig, energyCfg *config.EnergyConfig, physCfg *config.PhysicsConfig) (entity.Position, entity.Velocity, entity.Body, entity.EnergyState, genome.Genome) {
	parentPos := store.Position(parentID)
	parentEnergy := store.EnergyOf(parentID)
	parentGenome := store.GenomeOf(parentID)

	child := parentGenome.Mutate(rng, genCfg)

	dx, dy := unitCircleDirection(rng)
	r := rng.Float64() * repCfg.ChildSpawnRadius
	pos := entity.Position{
		X: parentPos.X + dx*r,
		Y: parentPos.Y + dy*r,
	}

	maxEnergy := child.MaxEnergy(energyCfg.BaseMaxEnergy)
	energy := repCfg.ChildEnergyFactor * parentEnergy.Value
	if energy > maxEnergy {
		energy = maxEnergy
	}

	frac := energy / maxEnergy
	radius := physCfg.MinRadius + frac*(physCfg.MaxRadius-physCfg.MinRadius)

	return pos, entity.Velocity{}, entity.Body{Radius: radius}, entity.EnergyState{Value: energy, Max: maxEnergy}, child
}

// ApplyReproductionCost deducts reproduction_energy_cost * current
// energy from the parent, applied in the driver's serial commit phase.
func ApplyReproductionCost(store *entity.Store, parentID entity.ID, repCfg *config.ReproductionConfig) {
	en := store.EnergyOf(parentID)
	en.Value -= repCfg.EnergyCost * en.Value
	if en.Value < 0 {
		en.Value = 0
	}
}

// ShouldCull reports whether id dies this step from density-driven
// culling: past the soft-density threshold, death probability scales
// with the excess density (§4.7 "Density culling").
func ShouldCull(rng *rand.Rand, densityCount int, repCfg *config.ReproductionConfig) bool {
	pressure := densityPressure(densityCount, repCfg)
	if pressure <= 1 {
		return false
	}
	excess := pressure - 1
	chance := repCfg.DeathChanceFactor * excess
	return rng.Float64() < chance
}

// ClampFinite resets a non-finite scalar to a safe default and reports
// whether a reset occurred (§4.9 "Non-finite positions/velocities are
// reset and logged").
func ClampFinite(v, safe float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return safe, true
	}
	return v, false
}
