package genome

import (
	"math/rand"
	"testing"

	"github.com/evosim/engine/config"
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

func withinBounds(t *testing.T, g Genome, cfg *config.GenomeConfig) {
	t.Helper()
	checks := []struct {
		name     string
		v        float64
		lo, hi   float64
	}{
		{"speed", g.Movement.Speed, cfg.Speed.Lo, cfg.Speed.Hi},
		{"sense_radius", g.Movement.SenseRadius, cfg.SenseRadius.Lo, cfg.SenseRadius.Hi},
		{"efficiency", g.Energy.Efficiency, cfg.Efficiency.Lo, cfg.Efficiency.Hi},
		{"loss_rate", g.Energy.LossRate, cfg.LossRate.Lo, cfg.LossRate.Hi},
		{"gain_rate", g.Energy.GainRate, cfg.GainRate.Lo, cfg.GainRate.Hi},
		{"size_factor", g.Energy.SizeFactor, cfg.SizeFactor.Lo, cfg.SizeFactor.Hi},
		{"rate", g.Reproduction.Rate, cfg.Rate.Lo, cfg.Rate.Hi},
		{"mutation_rate", g.Reproduction.MutationRate, cfg.MutationRate.Lo, cfg.MutationRate.Hi},
		{"saturation", g.Appearance.Saturation, cfg.Saturation.Lo, cfg.Saturation.Hi},
	}
	for _, c := range checks {
		if c.v < c.lo || c.v > c.hi {
			t.Errorf("%s = %v out of bounds [%v, %v]", c.name, c.v, c.lo, c.hi)
		}
	}
	if g.Appearance.Hue < 0 || g.Appearance.Hue >= 1 {
		t.Errorf("hue = %v out of [0,1)", g.Appearance.Hue)
	}
}

func TestNewWithinBounds(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		g := New(rng, cfg)
		withinBounds(t, g, cfg)
	}
}

func TestMutateBoundClosure(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(42))
	g := New(rng, cfg)
	for i := 0; i < 50; i++ {
		g = g.Mutate(rng, cfg)
		withinBounds(t, g, cfg)
	}
	if g.Generation != 50 {
		t.Errorf("expected generation 50 after 50 mutations, got %d", g.Generation)
	}
}

func TestHueWrapsCircularly(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(7))
	g := New(rng, cfg)
	g.Appearance.Hue = 0.99
	for i := 0; i < 1000; i++ {
		g = g.Mutate(rng, cfg)
		if g.Appearance.Hue < 0 || g.Appearance.Hue >= 1 {
			t.Fatalf("hue escaped [0,1): %v", g.Appearance.Hue)
		}
	}
}

func TestSimilarityIdenticalIsOne(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(3))
	g := New(rng, cfg)
	if sim := g.Similarity(g, cfg); sim < 0.999 {
		t.Errorf("identical genome similarity = %v, want ~1", sim)
	}
}

func TestSimilarityBounded(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 100; i++ {
		a := New(rng, cfg)
		b := New(rng, cfg)
		sim := a.Similarity(b, cfg)
		if sim < 0 || sim > 1 {
			t.Fatalf("similarity out of [0,1]: %v", sim)
		}
	}
}

func TestSimilarityHueWrapSymmetric(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(11))
	a := New(rng, cfg)
	b := a
	a.Appearance.Hue = 0.01
	b.Appearance.Hue = 0.99
	sim := a.Similarity(b, cfg)
	// hue distance should wrap to 0.02, not 0.98 — near-identical, high similarity.
	if sim < 0.9 {
		t.Errorf("expected wrapped hue distance to yield high similarity, got %v", sim)
	}
}

func TestColorCachedOnConstructionAndMutation(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(5))
	g := New(rng, cfg)
	c1 := g.Color()
	g2 := g.Mutate(rng, cfg)
	c2 := g2.Color()
	wantC2 := deriveColor(g2.Appearance)
	if c2 != wantC2 {
		t.Errorf("mutated genome color not recomputed: got %v want %v", c2, wantC2)
	}
	_ = c1
}

func TestClampToBoundsReportsClamping(t *testing.T) {
	cfg := testGenomeConfig()
	g := Genome{
		Movement:     Movement{Speed: 999, SenseRadius: -5},
		Energy:       Energy{Efficiency: 5, LossRate: 0.8, GainRate: 0.5, SizeFactor: 0.8},
		Reproduction: Reproduction{Rate: 0.1, MutationRate: 0.05},
		Appearance:   Appearance{Hue: 1.5, Saturation: 0.5},
	}
	out, clamped := g.ClampToBounds(cfg)
	if !clamped {
		t.Fatal("expected clamping to be reported")
	}
	withinBounds(t, out, cfg)
}

func TestRGBInUnitCube(t *testing.T) {
	cfg := testGenomeConfig()
	rng := rand.New(rand.NewSource(21))
	for i := 0; i < 100; i++ {
		g := New(rng, cfg)
		c := g.Color()
		if c.R < 0 || c.R > 1 || c.G < 0 || c.G > 1 || c.B < 0 || c.B > 1 {
			t.Fatalf("color out of [0,1]^3: %+v", c)
		}
	}
}
