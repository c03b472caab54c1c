// Package systems implements the stateless per-entity systems run each
// step: sensing, movement, interaction (predation), energetics,
// reproduction/culling, and boundary resolution (SPEC_FULL.md §4.4-4.8).
//
// Every function here is pure with respect to shared state: it reads
// through *entity.Store accessors and returns a value describing what
// should happen, or mutates only the single row it was handed. Only the
// step driver's serial commit phase may touch more than one row's worth
// of shared conflict state (predation claims, spawn/death queues).
package systems

import (
	"math/rand"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/spatial"
)

// Sense returns up to nearbyLimit neighbor identifiers within radius of
// id's current position, in the order returned by the spatial index
// (already randomized per §4.3's fairness invariant — this function
// must not re-sort beyond the documented tie-break, see bestByScore
// below). id itself is excluded.
func Sense(rng *rand.Rand, grid *spatial.Grid, store *entity.Store, id entity.ID, radius float64, nearbyLimit int) []entity.ID {
	pos := store.Position(id)
	found := grid.QueryRadius(rng, store, pos.X, pos.Y, radius, id)
	if len(found) > nearbyLimit {
		found = found[:nearbyLimit]
	}
	return found
}

// Neighbors bundles a computed neighbor list alongside the querying
// entity's own row values, since nearly every system needs both.
type Neighbors struct {
	Self      entity.ID
	Ids       []entity.ID
	SelfPos   entity.Position
	SelfBody  entity.Body
	SelfEnergy entity.EnergyState
}

// Gather builds a Neighbors bundle for id, capped to cfg.NearbyLimit.
func Gather(rng *rand.Rand, grid *spatial.Grid, store *entity.Store, id entity.ID, senseRadius float64, genCfg *config.GenomeConfig) Neighbors {
	ids := Sense(rng, grid, store, id, senseRadius, genCfg.NearbyLimit)
	return Neighbors{
		Self:       id,
		Ids:        ids,
		SelfPos:    *store.Position(id),
		SelfBody:   *store.BodyOf(id),
		SelfEnergy: *store.EnergyOf(id),
	}
}

// bestByScore scans ids (already in randomized spatial-query order) and
// returns the highest-scoring candidate accepted by keep, breaking ties
// between equal scores by the lower row identifier (§4.4 "stable
// deterministic tie-breaking by row identifier only on equal scores").
// Among distinct scores the highest always wins, wherever it sits in
// ids; the query order only decides which candidates are in ids at all.
func bestByScore(ids []entity.ID, score func(entity.ID) (float64, bool)) (entity.ID, bool) {
	var best entity.ID
	bestScore := 0.0
	found := false
	for _, id := range ids {
		s, ok := score(id)
		if !ok {
			continue
		}
		if !found || s > bestScore || (s == bestScore && id < best) {
			best = id
			bestScore = s
			found = true
		}
	}
	return best, found
}
