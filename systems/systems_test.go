package systems

import (
	"math"
	"math/rand"
	"testing"

	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
	"github.com/evosim/engine/genome"
	"github.com/evosim/engine/spatial"
)

func testGenomeConfig() *config.GenomeConfig {
	return &config.GenomeConfig{
		Speed:             config.TraitBounds{Lo: 0.2, Hi: 3.0},
		SenseRadius:       config.TraitBounds{Lo: 10, Hi: 150},
		Efficiency:        config.TraitBounds{Lo: 0.5, Hi: 1.5},
		LossRate:          config.TraitBounds{Lo: 0.5, Hi: 1.5},
		GainRate:          config.TraitBounds{Lo: 0.3, Hi: 1.2},
		SizeFactor:        config.TraitBounds{Lo: 0.5, Hi: 1.5},
		Rate:              config.TraitBounds{Lo: 0, Hi: 0.3},
		MutationRate:      config.TraitBounds{Lo: 0.01, Hi: 0.3},
		Saturation:        config.TraitBounds{Lo: 0.3, Hi: 1.0},
		SimilarityWeights: [4]float64{0.25, 0.25, 0.25, 0.25},
		NearbyLimit:       10,
	}
}

func testPhysicsConfig() *config.PhysicsConfig {
	return &config.PhysicsConfig{
		MaxVelocity:             2.0,
		MinRadius:               1.0,
		MaxRadius:               20.0,
		GridCellSize:            25.0,
		BoundaryMargin:          5.0,
		InteractionRadiusOffset: 15.0,
		VelocityBounceFactor:    0.8,
		CenterPressureStrength:  0.3,
	}
}

func testMovementConfig() *config.MovementConfig {
	return &config.MovementConfig{
		FlockingSimilarityThreshold: 0.5,
		FlockingStrength:            1.0,
		AlignmentStrength:           0.5,
		CohesionStrength:            0.5,
		SeparationDistance:          10,
		JitterFraction:              0.2,
		GrazingDriftMagnitude:       0.3,
	}
}

func testInteractionConfig() *config.InteractionConfig {
	return &config.InteractionConfig{
		SizeThreshold:       1.2,
		PreferenceBonus:     0.5,
		PreferenceThreshold: 0.3,
	}
}

func testEnergyConfig() *config.EnergyConfig {
	return &config.EnergyConfig{
		SizeEnergyCostFactor: 0.15,
		MovementEnergyCost:   0.1,
		BaseMaxEnergy:        10,
	}
}

func testReproductionConfig() *config.ReproductionConfig {
	return &config.ReproductionConfig{
		EnergyThreshold:         0.8,
		EnergyCost:              0.7,
		ChildEnergyFactor:       0.4,
		ChildSpawnRadius:        15,
		PopulationDensityFactor: 0.8,
		MinReproductionChance:   0.05,
		DeathChanceFactor:       0.1,
		LocalCapacity:           10,
	}
}

func appendRow(s *entity.Store, x, y float64, radius, energy, maxEnergy float64, rng *rand.Rand, genCfg *config.GenomeConfig) entity.ID {
	g := genome.New(rng, genCfg)
	return s.Append(
		entity.Position{X: x, Y: y},
		entity.Velocity{},
		entity.Body{Radius: radius},
		entity.EnergyState{Value: energy, Max: maxEnergy},
		g,
	)
}

func TestRandomVelocityWithinSpeedAndJitterBound(t *testing.T) {
	genCfg := testGenomeConfig()
	moveCfg := testMovementConfig()
	rng := rand.New(rand.NewSource(1))
	g := genome.New(rng, genCfg)
	g.Movement.Speed = 1.0

	maxMag := g.Movement.Speed * (1 + moveCfg.JitterFraction)
	for i := 0; i < 500; i++ {
		v := randomVelocity(rng, &g, moveCfg)
		mag := math.Hypot(v.X, v.Y)
		if mag > maxMag+1e-9 {
			t.Fatalf("random velocity magnitude %v exceeds bound %v", mag, maxMag)
		}
	}
}

func TestUnitCircleDirectionIsNormalized(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		x, y := unitCircleDirection(rng)
		mag := math.Hypot(x, y)
		if math.Abs(mag-1.0) > 1e-9 {
			t.Fatalf("direction not unit length: %v", mag)
		}
	}
}

func TestClampVelocityRejectsNonFinite(t *testing.T) {
	v := clampVelocity(entity.Velocity{X: math.NaN(), Y: 1}, 2.0)
	if v.X != 0 || v.Y != 0 {
		t.Fatalf("expected non-finite velocity reset to zero, got %+v", v)
	}
}

func TestClampVelocityScalesDownOverMax(t *testing.T) {
	v := clampVelocity(entity.Velocity{X: 10, Y: 0}, 2.0)
	if math.Abs(v.X-2.0) > 1e-9 || v.Y != 0 {
		t.Fatalf("expected clamp to max velocity, got %+v", v)
	}
}

func TestResolveBoundaryBouncesAndClamps(t *testing.T) {
	physCfg := testPhysicsConfig()
	worldSize := 600.0
	// Post-movement position: started at S/2 - 5 = 295 and moved +3.
	pos := entity.Position{X: 298, Y: 0}
	vel := entity.Velocity{X: 3, Y: 0}
	ResolveBoundary(&pos, &vel, worldSize, physCfg)

	wantX := worldSize/2 - physCfg.BoundaryMargin
	if pos.X != wantX {
		t.Errorf("x clamped to %v, want %v", pos.X, wantX)
	}
	if vel.X >= 0 {
		t.Errorf("expected bounced velocity to be negative, got %v", vel.X)
	}
	wantVX := -3 * physCfg.VelocityBounceFactor
	if math.Abs(vel.X-wantVX) > 1e-9 {
		t.Errorf("bounced velocity = %v, want %v", vel.X, wantVX)
	}
}

func TestResolveBoundaryNoOpInsideBand(t *testing.T) {
	physCfg := testPhysicsConfig()
	pos := entity.Position{X: 0, Y: 0}
	vel := entity.Velocity{X: 1, Y: 1}
	ResolveBoundary(&pos, &vel, 600, physCfg)
	if pos.X != 0 || pos.Y != 0 || vel.X != 1 || vel.Y != 1 {
		t.Errorf("expected no change inside band, got pos=%+v vel=%+v", pos, vel)
	}
}

func TestApplyEnergeticsDeductsCostAndUpdatesSize(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(3))
	genCfg := testGenomeConfig()
	id := appendRow(s, 0, 0, 10, 5, 10, rng, genCfg)
	energyCfg := testEnergyConfig()
	physCfg := testPhysicsConfig()

	before := s.EnergyOf(id).Value
	dead := ApplyEnergetics(s, id, entity.Velocity{X: 1, Y: 0}, energyCfg, physCfg)
	after := s.EnergyOf(id).Value

	if after >= before {
		t.Fatalf("expected energy to decrease, before=%v after=%v", before, after)
	}
	if dead && after > 0 {
		t.Fatalf("reported dead but energy remains %v", after)
	}
	body := s.BodyOf(id)
	if body.Radius < physCfg.MinRadius || body.Radius > physCfg.MaxRadius {
		t.Fatalf("size out of bounds: %v", body.Radius)
	}
}

func TestApplyEnergeticsReportsDeathAtZero(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(4))
	genCfg := testGenomeConfig()
	id := appendRow(s, 0, 0, 10, 0.0001, 10, rng, genCfg)
	dead := ApplyEnergetics(s, id, entity.Velocity{X: 5, Y: 0}, testEnergyConfig(), testPhysicsConfig())
	if !dead {
		t.Fatal("expected entity with near-zero energy and movement cost to be dead")
	}
	if s.EnergyOf(id).Value != 0 {
		t.Fatalf("expected energy clamped to zero, got %v", s.EnergyOf(id).Value)
	}
}

func TestSelectPreyRequiresSizeThresholdAndPositiveEnergy(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(5))
	genCfg := testGenomeConfig()
	predator := appendRow(s, 0, 0, 10, 10, 10, rng, genCfg)
	tooSimilarSize := appendRow(s, 1, 0, 9, 5, 10, rng, genCfg) // 10 <= 1.2*9
	deadPrey := appendRow(s, 1, 0, 2, 0, 10, rng, genCfg)
	eligiblePrey := appendRow(s, 1, 0, 2, 5, 10, rng, genCfg)

	interCfg := testInteractionConfig()
	neighbors := []entity.ID{tooSimilarSize, deadPrey, eligiblePrey}
	pick := SelectPrey(s, predator, neighbors, interCfg, 15)
	if !pick.Found {
		t.Fatal("expected an eligible prey to be found")
	}
	if pick.Prey != eligiblePrey {
		t.Fatalf("expected prey %d, got %d", eligiblePrey, pick.Prey)
	}
}

func TestCommitPredationClaimsPreyAtMostOnce(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(6))
	genCfg := testGenomeConfig()
	predA := appendRow(s, 0, 0, 10, 5, 10, rng, genCfg)
	predB := appendRow(s, 1, 0, 10, 5, 10, rng, genCfg)
	prey := appendRow(s, 2, 0, 2, 3, 10, rng, genCfg)

	picks := []PreyPick{
		{Predator: predA, Prey: prey, Found: true},
		{Predator: predB, Prey: prey, Found: true},
	}
	outcomes := CommitPredation(rng, s, picks, testInteractionConfig(), genCfg)
	if len(outcomes) != 1 {
		t.Fatalf("expected exactly one resolved predation, got %d", len(outcomes))
	}
	if s.EnergyOf(prey).Value != 0 {
		t.Fatalf("expected prey energy zeroed, got %v", s.EnergyOf(prey).Value)
	}
}

func TestCommitPredationGainRespectsHeadroom(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(7))
	genCfg := testGenomeConfig()
	pred := appendRow(s, 0, 0, 10, 9.5, 10, rng, genCfg)
	prey := appendRow(s, 1, 0, 2, 100, 10, rng, genCfg)
	s.GenomeOf(pred).Energy.GainRate = 1.0

	picks := []PreyPick{{Predator: pred, Prey: prey, Found: true}}
	outcomes := CommitPredation(rng, s, picks, testInteractionConfig(), genCfg)
	if len(outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(outcomes))
	}
	if s.EnergyOf(pred).Value > 10+1e-9 {
		t.Fatalf("predator energy exceeded max_energy: %v", s.EnergyOf(pred).Value)
	}
}

func TestReproductionCheckRejectsBelowThreshold(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(8))
	genCfg := testGenomeConfig()
	id := appendRow(s, 0, 0, 5, 1, 10, rng, genCfg)
	repCfg := testReproductionConfig()
	if ReproductionCheck(rng, s, id, 0, repCfg, 1, 100) {
		t.Fatal("expected rejection below energy threshold")
	}
}

func TestReproductionCheckRejectsAtPopulationCap(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(9))
	genCfg := testGenomeConfig()
	id := appendRow(s, 0, 0, 5, 9, 10, rng, genCfg)
	repCfg := testReproductionConfig()
	if ReproductionCheck(rng, s, id, 0, repCfg, 100, 100) {
		t.Fatal("expected rejection at population cap")
	}
}

func TestReproductionCheckAcceptsWithCertainChance(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(10))
	genCfg := testGenomeConfig()
	id := appendRow(s, 0, 0, 5, 9, 10, rng, genCfg)
	repCfg := testReproductionConfig()
	repCfg.MinReproductionChance = 1.0
	if !ReproductionCheck(rng, s, id, 0, repCfg, 1, 100) {
		t.Fatal("expected acceptance with min_reproduction_chance = 1.0")
	}
}

func TestSpawnOffspringEnergyAndBoundedSize(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(11))
	genCfg := testGenomeConfig()
	parent := appendRow(s, 0, 0, 10, 8, 10, rng, genCfg)
	repCfg := testReproductionConfig()
	energyCfg := testEnergyConfig()
	physCfg := testPhysicsConfig()

	pos, vel, body, en, child := SpawnOffspring(rng, s, parent, genCfg, repCfg, energyCfg, physCfg)
	if vel.X != 0 || vel.Y != 0 {
		t.Fatalf("expected zero initial velocity, got %+v", vel)
	}
	wantEnergy := repCfg.ChildEnergyFactor * 8
	if math.Abs(en.Value-wantEnergy) > 1e-9 && en.Value != en.Max {
		t.Fatalf("child energy = %v, want ~%v (or capped at max %v)", en.Value, wantEnergy, en.Max)
	}
	if body.Radius < physCfg.MinRadius || body.Radius > physCfg.MaxRadius {
		t.Fatalf("child radius out of bounds: %v", body.Radius)
	}
	dist := math.Hypot(pos.X, pos.Y)
	if dist > repCfg.ChildSpawnRadius+1e-9 {
		t.Fatalf("child spawned outside spawn radius: %v", dist)
	}
	if child.Generation != 1 {
		t.Fatalf("expected child generation 1, got %d", child.Generation)
	}
}

func TestApplyReproductionCostDeductsFraction(t *testing.T) {
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(12))
	genCfg := testGenomeConfig()
	parent := appendRow(s, 0, 0, 10, 10, 10, rng, genCfg)
	repCfg := testReproductionConfig()
	ApplyReproductionCost(s, parent, repCfg)
	want := 10 - repCfg.EnergyCost*10
	if math.Abs(s.EnergyOf(parent).Value-want) > 1e-9 {
		t.Fatalf("parent energy = %v, want %v", s.EnergyOf(parent).Value, want)
	}
}

func TestShouldCullRequiresExcessDensity(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	repCfg := testReproductionConfig()
	if ShouldCull(rng, 1, repCfg) {
		t.Fatal("expected no culling below density threshold")
	}
}

func TestClampFiniteResetsNonFinite(t *testing.T) {
	v, reset := ClampFinite(math.Inf(1), 0)
	if !reset || v != 0 {
		t.Fatalf("expected reset to 0, got v=%v reset=%v", v, reset)
	}
	v, reset = ClampFinite(5, 0)
	if reset || v != 5 {
		t.Fatalf("expected no reset, got v=%v reset=%v", v, reset)
	}
}

func TestGatherCapsToNearbyLimit(t *testing.T) {
	s, _ := buildGridOf20(t)
	grid := spatial.NewGrid(25)
	grid.Rebuild(s)
	genCfg := testGenomeConfig()
	genCfg.NearbyLimit = 3
	rng := rand.New(rand.NewSource(14))

	nb := Gather(rng, grid, s, entity.ID(0), 1000, genCfg)
	if len(nb.Ids) > genCfg.NearbyLimit {
		t.Fatalf("expected at most %d neighbors, got %d", genCfg.NearbyLimit, len(nb.Ids))
	}
}

func buildGridOf20(t *testing.T) (*entity.Store, []entity.ID) {
	t.Helper()
	s := entity.NewStore()
	rng := rand.New(rand.NewSource(15))
	genCfg := testGenomeConfig()
	var ids []entity.ID
	for i := 0; i < 20; i++ {
		ids = append(ids, appendRow(s, float64(i), 0, 2, 5, 10, rng, genCfg))
	}
	return s, ids
}
