// Package entity implements the structure-of-arrays entity store: append,
// tombstone, and compact operations over rows, with parallel read
// iteration and a single-writer staged-write phase (SPEC_FULL.md §4.2).
//
// Storage itself is backed by an ark.World (github.com/mlange-42/ark) —
// the teacher's central dependency. The store layers a dense row
// identifier on top of ark's own persistent/generational entity handles,
// because the spec's identifier contract (dense integers, reassigned on
// compaction, invalid across step boundaries) is stricter than what ark
// exposes directly; see DESIGN.md's "entity" entry.
package entity

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/evosim/engine/genome"
)

// Position holds an entity's current and previous-step coordinates, so
// the renderer can interpolate between steps (§4.2 snapshot_into).
type Position struct {
	PrevX, PrevY float64
	X, Y         float64
}

// Velocity is a 2D real vector.
type Velocity struct {
	X, Y float64
}

// Body holds an entity's physical size.
type Body struct {
	Radius float64
}

// EnergyState holds an entity's metabolic state.
type EnergyState struct {
	Value float64
	Max   float64
}

// ID is a dense row identifier, stable only for the current step. Never
// retain an ID across a call to Compact (§4.2 "external code must not
// retain identifiers across step boundaries").
type ID uint32

// invalidID marks a tombstoned or unused slot.
const invalidID = ^ID(0)

// mapSet holds the per-component-type maps used for by-entity Get/Set,
// mirroring the teacher's individual ecs.Map1[T] fields alongside a
// combined filter for whole-store iteration.
type mapSet struct {
	pos    *ecs.Map1[Position]
	vel    *ecs.Map1[Velocity]
	body   *ecs.Map1[Body]
	energy *ecs.Map1[EnergyState]
	genome *ecs.Map1[genome.Genome]
}

// Store is the structure-of-arrays entity store.
type Store struct {
	world  *ecs.World
	mapper *ecs.Map5[Position, Velocity, Body, EnergyState, genome.Genome]
	maps   mapSet
	filter *ecs.Filter5[Position, Velocity, Body, EnergyState, genome.Genome]

	rows       []ecs.Entity // dense ID -> ark entity
	tombstoned []bool       // parallel to rows

	spawnQueue []spawnRequest
	deathQueue []ID

	liveCount int
}

type spawnRequest struct {
	pos    Position
	vel    Velocity
	body   Body
	energy EnergyState
	gene   genome.Genome
}

// NewStore constructs an empty entity store.
func NewStore() *Store {
	world := ecs.NewWorld()
	return &Store{
		world:  world,
		mapper: ecs.NewMap5[Position, Velocity, Body, EnergyState, genome.Genome](world),
		maps: mapSet{
			pos:    ecs.NewMap1[Position](world),
			vel:    ecs.NewMap1[Velocity](world),
			body:   ecs.NewMap1[Body](world),
			energy: ecs.NewMap1[EnergyState](world),
			genome: ecs.NewMap1[genome.Genome](world),
		},
		filter: ecs.NewFilter5[Position, Velocity, Body, EnergyState, genome.Genome](world),
	}
}

// Len returns the number of live rows.
func (s *Store) Len() int { return s.liveCount }

// Cap returns the number of dense slots, including tombstoned ones not
// yet compacted away.
func (s *Store) Cap() int { return len(s.rows) }

// Append adds a new row immediately (used for initial seeding, outside
// the staged-write phase). Reproduction during a step must instead use
// QueueSpawn so new rows don't appear mid-iteration (§4.2 "Algorithm").
func (s *Store) Append(pos Position, vel Velocity, body Body, en EnergyState, g genome.Genome) ID {
	e := s.mapper.NewEntity(&pos, &vel, &body, &en, &g)
	s.rows = append(s.rows, e)
	s.tombstoned = append(s.tombstoned, false)
	s.liveCount++
	return ID(len(s.rows) - 1)
}

// QueueSpawn buffers a new row to be committed by CommitStaged.
func (s *Store) QueueSpawn(pos Position, vel Velocity, body Body, en EnergyState, g genome.Genome) {
	s.spawnQueue = append(s.spawnQueue, spawnRequest{pos: pos, vel: vel, body: body, energy: en, gene: g})
}

// QueueDeath buffers a row for tombstoning, committed by CommitStaged.
func (s *Store) QueueDeath(id ID) {
	s.deathQueue = append(s.deathQueue, id)
}

// CommitStaged applies all buffered spawns and deaths in one single-writer
// phase, preserving read parallelism during the rest of the step
// (§4.2 "Spawns and deaths are buffered during a step and applied in a
// single commit phase"). Returns the number of spawns applied and the
// number dropped because the store was at max capacity.
func (s *Store) CommitStaged(maxPopulation int) (applied, droppedSpawns int) {
	for _, id := range s.deathQueue {
		if int(id) < len(s.tombstoned) && !s.tombstoned[id] {
			s.tombstoned[id] = true
			s.liveCount--
		}
	}
	s.deathQueue = s.deathQueue[:0]

	for _, req := range s.spawnQueue {
		if s.liveCount >= maxPopulation {
			droppedSpawns++
			continue
		}
		s.Append(req.pos, req.vel, req.body, req.energy, req.gene)
		applied++
	}
	s.spawnQueue = s.spawnQueue[:0]

	return applied, droppedSpawns
}

// archetypeCount returns the number of entities ark itself reports as
// carrying the full row archetype, independent of this store's own
// dense tombstone bookkeeping. Used to cross-check that Compact kept
// the ark world and the dense index in agreement.
func (s *Store) archetypeCount() int {
	n := 0
	query := s.filter.Query()
	for query.Next() {
		n++
	}
	return n
}

// TombstoneDensity returns the fraction of dense slots that are
// tombstoned, used to decide whether to Compact (§4.2 "Compaction runs
// when tombstone density exceeds a threshold (e.g., 20%)").
func (s *Store) TombstoneDensity() float64 {
	if len(s.rows) == 0 {
		return 0
	}
	dead := len(s.rows) - s.liveCount
	return float64(dead) / float64(len(s.rows))
}

// CompactThreshold is the tombstone density above which Compact should run.
const CompactThreshold = 0.20

// Compact removes tombstoned rows from both the dense index and the
// underlying ark world, reassigning row identifiers to be contiguous
// from zero. Any ID held before this call is invalid afterward.
func (s *Store) Compact() {
	newRows := make([]ecs.Entity, 0, s.liveCount)
	newTomb := make([]bool, 0, s.liveCount)
	for i, e := range s.rows {
		if s.tombstoned[i] {
			s.world.RemoveEntity(e)
			continue
		}
		newRows = append(newRows, e)
		newTomb = append(newTomb, false)
	}
	s.rows = newRows
	s.tombstoned = newTomb
}

// IsAlive reports whether id refers to a live (non-tombstoned) row.
func (s *Store) IsAlive(id ID) bool {
	return int(id) < len(s.tombstoned) && !s.tombstoned[id]
}

// Entity returns the underlying ark entity handle for id, for spatial
// index storage and ark Map lookups. Not stable across Compact.
func (s *Store) Entity(id ID) ecs.Entity {
	return s.rows[id]
}

// Position returns a pointer to the row's position component.
func (s *Store) Position(id ID) *Position { return s.maps.pos.Get(s.rows[id]) }

// Velocity returns a pointer to the row's velocity component.
func (s *Store) Velocity(id ID) *Velocity { return s.maps.vel.Get(s.rows[id]) }

// BodyOf returns a pointer to the row's body component.
func (s *Store) BodyOf(id ID) *Body { return s.maps.body.Get(s.rows[id]) }

// EnergyOf returns a pointer to the row's energy component.
func (s *Store) EnergyOf(id ID) *EnergyState { return s.maps.energy.Get(s.rows[id]) }

// GenomeOf returns a pointer to the row's genome component.
func (s *Store) GenomeOf(id ID) *genome.Genome { return s.maps.genome.Get(s.rows[id]) }

// RowView is a read-only copy of one row's component values, handed to
// ForEach callbacks so they see values rather than raw ark pointers.
type RowView struct {
	ID       ID
	Position Position
	Velocity Velocity
	Body     Body
	Energy   EnergyState
	Genome   genome.Genome
}

// ForEach calls fn for every live row by dense ID. It walks the dense
// index directly rather than going through an ark filter query, since
// the store already owns the dense ID -> entity mapping. It runs on the
// calling goroutine; the step driver uses it for its single-threaded
// ID collection, grid rebuild and Stats, while its parallel phase reads
// rows through the pointer accessors above.
func (s *Store) ForEach(fn func(id ID, view RowView)) {
	for id := range s.rows {
		if s.tombstoned[id] {
			continue
		}
		fn(ID(id), s.viewOf(ID(id)))
	}
}

func (s *Store) viewOf(id ID) RowView {
	e := s.rows[id]
	return RowView{
		ID:       id,
		Position: *s.maps.pos.Get(e),
		Velocity: *s.maps.vel.Get(e),
		Body:     *s.maps.body.Get(e),
		Energy:   *s.maps.energy.Get(e),
		Genome:   *s.maps.genome.Get(e),
	}
}

// Record is the packed per-entity snapshot record published to the
// renderer: previous and current position, radius, and cached color.
type Record struct {
	PrevX, PrevY float64
	X, Y         float64
	Radius       float64
	R, G, B      float64
}

// SnapshotInto writes one Record per live row, in current dense-ID
// order, into buf (growing it if necessary) and returns the slice sized
// to the live count (§4.2 snapshot_into, §6 snapshot).
func (s *Store) SnapshotInto(buf []Record) []Record {
	buf = buf[:0]
	for id := range s.rows {
		if s.tombstoned[id] {
			continue
		}
		e := s.rows[id]
		pos := s.maps.pos.Get(e)
		body := s.maps.body.Get(e)
		gen := s.maps.genome.Get(e)
		c := gen.Color()
		buf = append(buf, Record{
			PrevX: pos.PrevX, PrevY: pos.PrevY,
			X: pos.X, Y: pos.Y,
			Radius: body.Radius,
			R:      c.R, G: c.G, B: c.B,
		})
	}
	return buf
}

// Reset discards all rows and recreates an empty world, used by
// engine.Reset (§6 reset).
func (s *Store) Reset() {
	world := ecs.NewWorld()
	s.world = world
	s.mapper = ecs.NewMap5[Position, Velocity, Body, EnergyState, genome.Genome](world)
	s.maps = mapSet{
		pos:    ecs.NewMap1[Position](world),
		vel:    ecs.NewMap1[Velocity](world),
		body:   ecs.NewMap1[Body](world),
		energy: ecs.NewMap1[EnergyState](world),
		genome: ecs.NewMap1[genome.Genome](world),
	}
	s.filter = ecs.NewFilter5[Position, Velocity, Body, EnergyState, genome.Genome](world)
	s.rows = nil
	s.tombstoned = nil
	s.spawnQueue = nil
	s.deathQueue = nil
	s.liveCount = 0
}
