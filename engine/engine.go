// Package engine implements the step driver: the per-step pipeline that
// rebuilds the spatial index, computes per-entity intents in parallel,
// commits them serially, resolves boundaries, and publishes a snapshot
// (SPEC_FULL.md §4.9, §5, §6).
package engine

import (
	"log/slog"
	"math/rand"
	"runtime"
	"sync"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/genome"
	"github.com/evosim/engine/spatial"
	"github.com/evosim/engine/systems"
)

// Engine owns one simulation run: the entity store, spatial index,
// configuration, and the RNG streams that make its steps reproducible.
// An Engine is constructed per run; it holds no process-wide state
// (SPEC_FULL.md §9 "no process-wide singletons").
type Engine struct {
	store *entity.Store
	grid  *spatial.Grid
	cfg   *config.Config
	log   *slog.Logger

	worldSize float64
	runSeed   int64
	step      uint64

	// commitRNG drives every serial-commit-phase random decision
	// (predation permutation, offspring jitter). It is a single stream
	// advanced once per step in a fixed order, so its sequence of draws
	// is identical regardless of how many workers ran the parallel
	// phase — see DESIGN.md's "engine" entry for why per-entity seeding
	// in the parallel phase (not worker assignment) is what actually
	// carries the determinism-across-thread-counts guarantee.
	commitRNG *rand.Rand

	numWorkers int
	workerRNGs []*rand.Rand

	diagnostics Diagnostics
}

// Diagnostics counts recoverable events the engine handled internally
// this run, per §7's non-fatal error kinds.
type Diagnostics struct {
	ReproductionAttempts uint64
	ReproductionsCapped  uint64
	PredationAttempts    uint64
	PredationKills       uint64
	Culled               uint64
	NumericResets        uint64
	ClampedGenes         uint64
}

// Create constructs a new engine for a square world of side worldSize,
// seeding its initial population per cfg.Population (§6 "Engine
// construction"). The only error this can return is ConfigInvalid.
func Create(worldSize float64, cfg *config.Config) (*Engine, error) {
	return CreateWithLogger(worldSize, cfg, slog.Default())
}

// CreateWithLogger is Create with an explicit logger, for hosts that
// want engine diagnostics routed into their own structured log sink.
func CreateWithLogger(worldSize float64, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		cfg:        cfg,
		log:        logger,
		numWorkers: runtime.GOMAXPROCS(0),
	}
	e.resetState(worldSize, cfg)
	return e, nil
}

// Reset discards all state and reseeds, per §6 "reset(world_size,
// config)".
func (e *Engine) Reset(worldSize float64, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.resetState(worldSize, cfg)
	return nil
}

func (e *Engine) resetState(worldSize float64, cfg *config.Config) {
	e.cfg = cfg
	e.worldSize = worldSize
	e.step = 0
	e.runSeed = cfg.ResolveSeed()
	e.diagnostics = Diagnostics{}

	e.commitRNG = rand.New(rand.NewSource(e.runSeed))
	e.workerRNGs = make([]*rand.Rand, e.numWorkers)
	for i := range e.workerRNGs {
		e.workerRNGs[i] = rand.New(rand.NewSource(e.runSeed + int64(i) + 1))
	}

	if e.store == nil {
		e.store = entity.NewStore()
	} else {
		e.store.Reset()
	}
	e.grid = spatial.NewGrid(cfg.Physics.GridCellSize)

	seedRNG := rand.New(rand.NewSource(e.runSeed))
	spawnRadius := cfg.Population.SpawnRadiusFactor * (worldSize / 2)
	for i := 0; i < cfg.Population.InitialEntities; i++ {
		x, y := sampleDisk(seedRNG, spawnRadius)
		g := genome.New(seedRNG, &cfg.Genome)
		maxEnergy := g.MaxEnergy(cfg.Energy.BaseMaxEnergy)
		initialEnergy := maxEnergy * 0.5
		radius := cfg.Physics.MinRadius + 0.5*(cfg.Physics.MaxRadius-cfg.Physics.MinRadius)
		e.store.Append(
			entity.Position{X: x, Y: y, PrevX: x, PrevY: y},
			entity.Velocity{},
			entity.Body{Radius: radius},
			entity.EnergyState{Value: initialEnergy, Max: maxEnergy},
			g,
		)
	}
}

func sampleDisk(rng *rand.Rand, radius float64) (float64, float64) {
	if radius <= 0 {
		return 0, 0
	}
	for {
		x := rng.Float64()*2 - 1
		y := rng.Float64()*2 - 1
		if x*x+y*y <= 1 {
			return x * radius, y * radius
		}
	}
}

// WorldSize returns S.
func (e *Engine) WorldSize() float64 { return e.worldSize }

// StepIndex returns the step counter.
func (e *Engine) StepIndex() uint64 { return e.step }

// Len returns the live population count.
func (e *Engine) Len() int { return e.store.Len() }

// SnapshotInto writes the current public snapshot into buf (§6 "Snapshot").
func (e *Engine) SnapshotInto(buf []entity.Record) []entity.Record {
	return e.store.SnapshotInto(buf)
}

// Diagnostics returns the accumulated counts of recoverable events this
// run has handled internally (§7).
func (e *Engine) Diagnostics() Diagnostics { return e.diagnostics }

// seedForEntity derives a seed for an entity's per-step random draws
// from (run_seed, step, id) alone, independent of which worker thread
// happens to process it — see Engine.commitRNG's doc comment.
func seedForEntity(runSeed int64, step uint64, id entity.ID) int64 {
	x := uint64(runSeed) ^ (uint64(step) * 0x9E3779B97F4A7C15) ^ (uint64(id)*2 + 1)
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	if x == 0 {
		x = 1
	}
	return int64(x)
}

// plan is one entity's parallel-phase output, consumed by the serial
// commit phase (§4.9 step 2/3).
type plan struct {
	velocity     entity.Velocity
	preyPick     systems.PreyPick
	densityCount int
	wantsReprod  bool
	cullRoll     bool
}

// Step advances the simulation by one tick (§4.9, §6 "Tick").
func (e *Engine) Step() {
	cfg := e.cfg
	e.grid.Rebuild(e.store)

	// Phase A: collect the fixed, single-threaded iteration order. Its
	// shape never depends on worker count.
	ids := make([]entity.ID, 0, e.store.Len())
	e.store.ForEach(func(id entity.ID, _ entity.RowView) {
		ids = append(ids, id)
	})
	n := len(ids)
	if n == 0 {
		e.step++
		return
	}

	population := e.store.Len()
	plans := make([]plan, n)

	// Phase B: parallel compute. No shared mutation; every read goes
	// through store accessors against data that will not change until
	// the serial commit phase below.
	numWorkers := e.numWorkers
	if numWorkers > n {
		numWorkers = n
	}
	chunk := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * chunk
		end := start + chunk
		if end > n {
			end = n
		}
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(workerID, i0, i1 int) {
			defer wg.Done()
			workerRNG := e.workerRNGs[workerID]
			for i := i0; i < i1; i++ {
				id := ids[i]
				workerRNG.Seed(seedForEntity(e.runSeed, e.step, id))
				plans[i] = e.computeEntity(workerRNG, id, cfg, population)
			}
		}(w, start, end)
	}
	wg.Wait()

	// Phase C: serial commit.
	e.commitPredation(plans, cfg)
	e.commitMovementAndEnergetics(ids, plans, cfg)
	e.commitReproductionAndCulling(ids, plans, cfg, population)

	applied, dropped := e.store.CommitStaged(cfg.Population.MaxPopulation)
	_ = applied
	e.diagnostics.ReproductionsCapped += uint64(dropped)

	if e.store.TombstoneDensity() > entity.CompactThreshold {
		e.store.Compact()
	}

	e.step++
}

func (e *Engine) computeEntity(rng *rand.Rand, id entity.ID, cfg *config.Config, population int) plan {
	g := e.store.GenomeOf(id)
	nb := systems.Gather(rng, e.grid, e.store, id, g.Movement.SenseRadius, &cfg.Genome)

	vel := systems.DesireVelocity(rng, e.store, nb, e.worldSize, &cfg.Physics, &cfg.Movement, &cfg.Genome)
	pick := systems.SelectPrey(e.store, id, nb.Ids, &cfg.Interaction, cfg.Physics.InteractionRadiusOffset)

	densityCount := len(nb.Ids)
	wantsReprod := systems.ReproductionCheck(rng, e.store, id, densityCount, &cfg.Reproduction, population, cfg.Population.MaxPopulation)
	cullRoll := systems.ShouldCull(rng, densityCount, &cfg.Reproduction)

	return plan{
		velocity:     vel,
		preyPick:     pick,
		densityCount: densityCount,
		wantsReprod:  wantsReprod,
		cullRoll:     cullRoll,
	}
}

func (e *Engine) commitPredation(plans []plan, cfg *config.Config) {
	picks := make([]systems.PreyPick, len(plans))
	for i, p := range plans {
		picks[i] = p.preyPick
		if p.preyPick.Found {
			e.diagnostics.PredationAttempts++
		}
	}
	outcomes := systems.CommitPredation(e.commitRNG, e.store, picks, &cfg.Interaction, &cfg.Genome)
	for _, o := range outcomes {
		e.store.QueueDeath(o.Prey)
		e.diagnostics.PredationKills++
	}
}

func (e *Engine) commitMovementAndEnergetics(ids []entity.ID, plans []plan, cfg *config.Config) {
	for i, id := range ids {
		if !e.store.IsAlive(id) {
			continue
		}
		vel := plans[i].velocity
		vx, resetX := systems.ClampFinite(vel.X, 0)
		vy, resetY := systems.ClampFinite(vel.Y, 0)
		if resetX || resetY {
			e.diagnostics.NumericResets++
			e.log.Warn("non-finite velocity reset", "entity", id, "step", e.step)
		}
		vel = entity.Velocity{X: vx, Y: vy}

		pos := e.store.Position(id)
		pos.PrevX, pos.PrevY = pos.X, pos.Y
		nx, resetPX := systems.ClampFinite(pos.X+vel.X, pos.X)
		ny, resetPY := systems.ClampFinite(pos.Y+vel.Y, pos.Y)
		if resetPX || resetPY {
			e.diagnostics.NumericResets++
			e.log.Warn("non-finite position reset", "entity", id, "step", e.step)
		}
		pos.X, pos.Y = nx, ny
		*e.store.Velocity(id) = vel

		dead := systems.ApplyEnergetics(e.store, id, vel, &cfg.Energy, &cfg.Physics)
		if dead {
			e.store.QueueDeath(id)
			continue
		}

		systems.ResolveBoundary(pos, e.store.Velocity(id), e.worldSize, &cfg.Physics)
	}
}

type offspring struct {
	pos   entity.Position
	vel   entity.Velocity
	body  entity.Body
	en    entity.EnergyState
	child genome.Genome
}

func (e *Engine) commitReproductionAndCulling(ids []entity.ID, plans []plan, cfg *config.Config, populationAtStepStart int) {
	var pending []offspring
	for i, id := range ids {
		if !e.store.IsAlive(id) {
			continue
		}
		if plans[i].cullRoll {
			e.store.QueueDeath(id)
			e.diagnostics.Culled++
			continue
		}
		if !plans[i].wantsReprod {
			continue
		}
		e.diagnostics.ReproductionAttempts++

		pos, vel, body, en, child := systems.SpawnOffspring(e.commitRNG, e.store, id, &cfg.Genome, &cfg.Reproduction, &cfg.Energy, &cfg.Physics)
		systems.ApplyReproductionCost(e.store, id, &cfg.Reproduction)
		pending = append(pending, offspring{pos: pos, vel: vel, body: body, en: en, child: child})
	}

	// Global cap (§4.7 "drop surplus births uniformly at random"): shuffle
	// before truncating so the dropped subset isn't biased by iteration
	// order (dense row id order).
	e.commitRNG.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })

	room := cfg.Population.MaxPopulation - populationAtStepStart
	if room < 0 {
		room = 0
	}
	for i, o := range pending {
		if i >= room {
			e.diagnostics.ReproductionsCapped++
			continue
		}
		// Child-spawn jitter can place a newborn outside the interior band
		// even when the parent was boundary-clamped (§3 interior-band
		// invariant must hold at every step boundary, including birth).
		systems.ResolveBoundary(&o.pos, &o.vel, e.worldSize, &cfg.Physics)
		e.store.QueueSpawn(o.pos, o.vel, o.body, o.en, o.child)
	}
}
