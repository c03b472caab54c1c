package systems

import (
	"math"
	"math/rand"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/genome"
)

// DesireVelocity computes the step's velocity for id per its genome's
// movement style (§4.4), then clamps magnitude to max_velocity. The
// returned velocity has not yet been integrated into position; the
// driver's commit phase does that.
func DesireVelocity(rng *rand.Rand, store *entity.Store, nb Neighbors, worldSize float64, physCfg *config.PhysicsConfig, moveCfg *config.MovementConfig, genCfg *config.GenomeConfig) entity.Velocity {
	self := nb.Self
	g := store.GenomeOf(self)
	pos := nb.SelfPos

	var v entity.Velocity
	switch g.Style {
	case genome.Flocking:
		v = flockingVelocity(store, nb, g, moveCfg, genCfg)
	case genome.Predatory:
		v = predatoryVelocity(store, nb, pos, g, genCfg)
	case genome.Solitary:
		v = solitaryVelocity(store, nb, pos, g)
	case genome.Grazing:
		v = grazingVelocity(rng, g, moveCfg)
	default:
		v = randomVelocity(rng, g, moveCfg)
	}

	v.X += centerPressure(pos.X, worldSize, physCfg.CenterPressureStrength)
	v.Y += centerPressure(pos.Y, worldSize, physCfg.CenterPressureStrength)

	return clampVelocity(v, physCfg.MaxVelocity)
}

// centerPressure is a small restoring contribution toward the origin,
// proportional to distance from it relative to world size, scaled by
// center_pressure_strength (§4.4 step 7, glossary "Center pressure").
func centerPressure(coord, worldSize, strength float64) float64 {
	if worldSize <= 0 {
		return 0
	}
	return -(coord / (worldSize / 2)) * strength
}

// randomVelocity draws a uniform direction via rejection sampling over
// the unit disk (avoids corner bias of sampling angle directly from a
// square) scaled by speed with a per-step jitter (§4.4 step 6).
func randomVelocity(rng *rand.Rand, g *genome.Genome, moveCfg *config.MovementConfig) entity.Velocity {
	dx, dy := unitCircleDirection(rng)
	jitter := 1.0 + (rng.Float64()*2-1)*moveCfg.JitterFraction
	speed := g.Movement.Speed * jitter
	return entity.Velocity{X: dx * speed, Y: dy * speed}
}

// unitCircleDirection rejection-samples a uniform point in the unit disk
// and normalizes it to the unit circle, avoiding the directional bias
// that sampling from a square and normalizing would introduce near the
// corners.
func unitCircleDirection(rng *rand.Rand) (float64, float64) {
	for {
		x := rng.Float64()*2 - 1
		y := rng.Float64()*2 - 1
		d2 := x*x + y*y
		if d2 > 0 && d2 <= 1 {
			d := math.Sqrt(d2)
			return x / d, y / d
		}
	}
}

func grazingVelocity(rng *rand.Rand, g *genome.Genome, moveCfg *config.MovementConfig) entity.Velocity {
	dx, dy := unitCircleDirection(rng)
	mag := g.Movement.Speed * moveCfg.GrazingDriftMagnitude
	return entity.Velocity{X: dx * mag, Y: dy * mag}
}

// flockingVelocity blends cohesion (toward centroid), alignment (toward
// mean velocity), and separation (away from very close neighbors) over
// genetically-similar neighbors only (§4.4 step 2).
func flockingVelocity(store *entity.Store, nb Neighbors, g *genome.Genome, moveCfg *config.MovementConfig, genCfg *config.GenomeConfig) entity.Velocity {
	var sumPosX, sumPosY, sumVelX, sumVelY, sepX, sepY float64
	count := 0

	for _, id := range nb.Ids {
		other := store.GenomeOf(id)
		if g.Similarity(*other, genCfg) < moveCfg.FlockingSimilarityThreshold {
			continue
		}
		pos := store.Position(id)
		vel := store.Velocity(id)

		sumPosX += pos.X
		sumPosY += pos.Y
		sumVelX += vel.X
		sumVelY += vel.Y
		count++

		dx := nb.SelfPos.X - pos.X
		dy := nb.SelfPos.Y - pos.Y
		dist := math.Hypot(dx, dy)
		if dist > 0 && dist < moveCfg.SeparationDistance {
			push := (moveCfg.SeparationDistance - dist) / moveCfg.SeparationDistance
			sepX += (dx / dist) * push
			sepY += (dy / dist) * push
		}
	}

	if count == 0 {
		return entity.Velocity{}
	}

	centroidX := sumPosX/float64(count) - nb.SelfPos.X
	centroidY := sumPosY/float64(count) - nb.SelfPos.Y
	meanVelX := sumVelX / float64(count)
	meanVelY := sumVelY / float64(count)

	vx := centroidX*moveCfg.CohesionStrength + meanVelX*moveCfg.AlignmentStrength + sepX*moveCfg.FlockingStrength
	vy := centroidY*moveCfg.CohesionStrength + meanVelY*moveCfg.AlignmentStrength + sepY*moveCfg.FlockingStrength

	return scaleToSpeed(vx, vy, g.Movement.Speed)
}

// predatoryVelocity heads toward the best-scoring prey candidate: small
// and dissimilar preferred (§4.4 step 3). If none qualifies, it returns
// zero velocity.
func predatoryVelocity(store *entity.Store, nb Neighbors, pos entity.Position, g *genome.Genome, genCfg *config.GenomeConfig) entity.Velocity {
	targetID, ok := bestByScore(nb.Ids, func(id entity.ID) (float64, bool) {
		body := store.BodyOf(id)
		if body.Radius >= nb.SelfBody.Radius {
			return 0, false
		}
		other := store.GenomeOf(id)
		dissimilarity := 1 - g.Similarity(*other, genCfg)
		sizeScore := nb.SelfBody.Radius / body.Radius
		return sizeScore + dissimilarity, true
	})
	if !ok {
		return entity.Velocity{}
	}
	tp := store.Position(targetID)
	dx := tp.X - pos.X
	dy := tp.Y - pos.Y
	return scaleToSpeed(dx, dy, g.Movement.Speed)
}

// solitaryVelocity moves away from the centroid of nearby entities
// (§4.4 step 4).
func solitaryVelocity(store *entity.Store, nb Neighbors, pos entity.Position, g *genome.Genome) entity.Velocity {
	if len(nb.Ids) == 0 {
		return entity.Velocity{}
	}
	var sumX, sumY float64
	for _, id := range nb.Ids {
		p := store.Position(id)
		sumX += p.X
		sumY += p.Y
	}
	n := float64(len(nb.Ids))
	dx := pos.X - sumX/n
	dy := pos.Y - sumY/n
	return scaleToSpeed(dx, dy, g.Movement.Speed)
}

func scaleToSpeed(dx, dy, speed float64) entity.Velocity {
	d := math.Hypot(dx, dy)
	if d == 0 {
		return entity.Velocity{}
	}
	return entity.Velocity{X: dx / d * speed, Y: dy / d * speed}
}

func clampVelocity(v entity.Velocity, maxVelocity float64) entity.Velocity {
	mag := math.Hypot(v.X, v.Y)
	if math.IsNaN(mag) || math.IsInf(mag, 0) {
		return entity.Velocity{}
	}
	if mag > maxVelocity && mag > 0 {
		scale := maxVelocity / mag
		return entity.Velocity{X: v.X * scale, Y: v.Y * scale}
	}
	return v
}
