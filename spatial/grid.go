// Package spatial implements the uniform-cell hash grid used to answer
// entity radius queries in near-linear time (SPEC_FULL.md §4.3).
package spatial

import (
	"math"
	"math/rand"

	"github.com/evosim/engine/entity"
)

type cellKey struct {
	cx, cy int32
}

// Grid is a uniform hash grid over the bounded world, rebuilt every step.
type Grid struct {
	cellSize float64
	cells    map[cellKey][]entity.ID
}

// NewGrid creates an empty grid with the given cell size.
func NewGrid(cellSize float64) *Grid {
	return &Grid{
		cellSize: cellSize,
		cells:    make(map[cellKey][]entity.ID),
	}
}

func (g *Grid) keyFor(x, y float64) cellKey {
	return cellKey{
		cx: int32(floorDiv(x, g.cellSize)),
		cy: int32(floorDiv(y, g.cellSize)),
	}
}

func floorDiv(v, size float64) float64 {
	return math.Floor(v / size)
}

// Rebuild clears the grid and reinserts every live row from store. Per
// §4.3 this is a bulk rebuild: a single pass computing cell keys and
// bucketing row identifiers. The store's dense-ID scan (ForEach) already
// gives us insertion order == row order; no parallel reduce is needed at
// the population sizes this engine targets (bounded by max_population),
// but the two-pass bucket-sort shape described in the spec is preserved
// by computing all keys before any bucket append.
func (g *Grid) Rebuild(store *entity.Store) {
	for k := range g.cells {
		delete(g.cells, k)
	}

	type keyed struct {
		id  entity.ID
		key cellKey
	}
	keys := make([]keyed, 0, store.Len())
	store.ForEach(func(id entity.ID, view entity.RowView) {
		keys = append(keys, keyed{id: id, key: g.keyFor(view.Position.X, view.Position.Y)})
	})

	for _, k := range keys {
		g.cells[k.key] = append(g.cells[k.key], k.id)
	}
}

// QueryRadius returns every live row whose stored center lies within r
// of (x, y), excluding exclude if it appears. Candidates come only from
// cells touched by the query's bounding box; every true positive within
// a touched cell is returned (§4.3 "every true positive must appear").
//
// Fairness invariant: the cells touched by this query are visited in a
// randomized order, and the aggregated result is itself shuffled before
// return, so that downstream systems consuming only a prefix (e.g.
// nearby_limit) never systematically favor one spatial direction over
// another (§4.3 "Fairness invariant (critical)").
func (g *Grid) QueryRadius(rng *rand.Rand, store *entity.Store, x, y, r float64, exclude entity.ID) []entity.ID {
	if r < 0 {
		r = 0
	}

	minCX := int32(floorDiv(x-r, g.cellSize))
	maxCX := int32(floorDiv(x+r, g.cellSize))
	minCY := int32(floorDiv(y-r, g.cellSize))
	maxCY := int32(floorDiv(y+r, g.cellSize))

	var touched []cellKey
	for cx := minCX; cx <= maxCX; cx++ {
		for cy := minCY; cy <= maxCY; cy++ {
			k := cellKey{cx: cx, cy: cy}
			if _, ok := g.cells[k]; ok {
				touched = append(touched, k)
			}
		}
	}
	rng.Shuffle(len(touched), func(i, j int) { touched[i], touched[j] = touched[j], touched[i] })

	rSq := r * r
	var result []entity.ID
	for _, k := range touched {
		for _, id := range g.cells[k] {
			if id == exclude {
				continue
			}
			pos := store.Position(id)
			dx := pos.X - x
			dy := pos.Y - y
			if dx*dx+dy*dy <= rSq {
				result = append(result, id)
			}
		}
	}

	rng.Shuffle(len(result), func(i, j int) { result[i], result[j] = result[j], result[i] })
	return result
}
