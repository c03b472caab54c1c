package systems

import (
	"math"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
)

// ApplyEnergetics deducts movement and size metabolic costs from id's
// energy, updates its size toward a monotone function of remaining
// energy bounded to [min_radius, max_radius], and reports whether the
// entity is now dead-pending-cull (§4.6).
func ApplyEnergetics(store *entity.Store, id entity.ID, velocity entity.Velocity, energyCfg *config.EnergyConfig, physCfg *config.PhysicsConfig) (dead bool) {
	en := store.EnergyOf(id)
	body := store.BodyOf(id)
	g := store.GenomeOf(id)

	speed := math.Hypot(velocity.X, velocity.Y)
	movementCost := speed * energyCfg.MovementEnergyCost / g.Energy.Efficiency
	sizeCost := energyCfg.SizeEnergyCostFactor * body.Radius * g.Energy.SizeFactor

	en.Value -= movementCost + sizeCost
	if en.Value < 0 {
		en.Value = 0
	}

	// Size tracks the fraction of max_energy currently held, linearly
	// interpolated into [min_radius, max_radius] — a monotone function
	// of energy as required by §4.6, without introducing a separate
	// growth-rate parameter the spec does not name.
	frac := 0.0
	if en.Max > 0 {
		frac = en.Value / en.Max
	}
	body.Radius = physCfg.MinRadius + frac*(physCfg.MaxRadius-physCfg.MinRadius)

	return en.Value <= 0
}
