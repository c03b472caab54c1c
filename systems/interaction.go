package systems

import (
	"math/rand"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
)

// PreyPick is the tentative outcome of one predator's parallel candidate
// selection (§4.5 "parallel candidate selection produces tentative
// (predator, prey) pairs"). It carries no shared mutable state; workers
// write one of these per entity into that entity's own slot of the
// step's shared plan slice.
type PreyPick struct {
	Predator entity.ID
	Prey     entity.ID
	Found    bool
}

// interactionRadius is min(r_a, r_b) + interaction_radius_offset (§4.5).
func interactionRadius(ra, rb, offset float64) float64 {
	r := ra
	if rb < r {
		r = rb
	}
	return r + offset
}

// SelectPrey scans id's neighbor list (already in randomized spatial-
// query order) for the first eligible prey: size(id) > k*size(prey),
// prey.energy > 0, and the pair is within interaction radius. The first
// eligible candidate in query order wins (§4.5 "the first eligible prey
// wins").
func SelectPrey(store *entity.Store, id entity.ID, neighbors []entity.ID, interCfg *config.InteractionConfig, radiusOffset float64) PreyPick {
	selfBody := store.BodyOf(id)
	selfPos := store.Position(id)

	for _, candidate := range neighbors {
		preyBody := store.BodyOf(candidate)
		preyEnergy := store.EnergyOf(candidate)
		if preyEnergy.Value <= 0 {
			continue
		}
		if selfBody.Radius <= interCfg.SizeThreshold*preyBody.Radius {
			continue
		}
		preyPos := store.Position(candidate)
		dx := selfPos.X - preyPos.X
		dy := selfPos.Y - preyPos.Y
		r := interactionRadius(selfBody.Radius, preyBody.Radius, radiusOffset)
		if dx*dx+dy*dy > r*r {
			continue
		}
		return PreyPick{Predator: id, Prey: candidate, Found: true}
	}
	return PreyPick{Predator: id, Found: false}
}

// PredationOutcome records one resolved kill for the driver's energy,
// death-queue, and diagnostics bookkeeping.
type PredationOutcome struct {
	Predator     entity.ID
	Prey         entity.ID
	EnergyGained float64
}

// CommitPredation resolves the tentative picks serially: entities are
// visited in a random permutation (§4.5 "processing order... is a
// random permutation per step"), and each prey can be claimed by at
// most one predator via a first-come-first-served claim set — the
// compare-and-set of §5 collapses to a plain map check here because
// this phase is already serial by construction. Conflicting losers
// simply fail to act this step; their movement has already been
// applied and is not reverted.
func CommitPredation(rng *rand.Rand, store *entity.Store, picks []PreyPick, interCfg *config.InteractionConfig, genCfg *config.GenomeConfig) []PredationOutcome {
	order := rng.Perm(len(picks))
	claimed := make(map[entity.ID]bool, len(picks))
	acted := make(map[entity.ID]bool, len(picks))

	var outcomes []PredationOutcome
	for _, idx := range order {
		pick := picks[idx]
		if !pick.Found {
			continue
		}
		if acted[pick.Predator] || claimed[pick.Prey] {
			continue
		}

		preyEnergy := store.EnergyOf(pick.Prey)
		predGenome := store.GenomeOf(pick.Predator)
		preyGenome := store.GenomeOf(pick.Prey)
		predEnergy := store.EnergyOf(pick.Predator)

		gained := preyEnergy.Value * predGenome.Energy.GainRate
		sim := predGenome.Similarity(*preyGenome, genCfg)
		if sim < interCfg.PreferenceThreshold {
			gained *= 1 + interCfg.PreferenceBonus
		}
		headroom := predEnergy.Max - predEnergy.Value
		if gained > headroom {
			gained = headroom
		}
		if gained < 0 {
			gained = 0
		}

		predEnergy.Value += gained
		preyEnergy.Value = 0

		claimed[pick.Prey] = true
		acted[pick.Predator] = true
		outcomes = append(outcomes, PredationOutcome{Predator: pick.Predator, Prey: pick.Prey, EnergyGained: gained})
	}
	return outcomes
}
