// Package config provides configuration loading and access for the simulation.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evosim/engine/enginerr"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all simulation configuration parameters.
type Config struct {
	Population   PopulationConfig   `yaml:"population"`
	Physics      PhysicsConfig      `yaml:"physics"`
	Energy       EnergyConfig       `yaml:"energy"`
	Reproduction ReproductionConfig `yaml:"reproduction"`
	Genome       GenomeConfig       `yaml:"genome"`
	Interaction  InteractionConfig  `yaml:"interaction"`
	Movement     MovementConfig     `yaml:"movement"`
	Seed         SeedConfig         `yaml:"seed"`

	// Derived is excluded from YAML; Load leaves it at its zero value.
	Derived DerivedConfig `yaml:"-"`
}

// PopulationConfig holds population-scale parameters.
type PopulationConfig struct {
	EntityScale      float64 `yaml:"entity_scale"`
	MaxPopulation    int     `yaml:"max_population"`
	InitialEntities  int     `yaml:"initial_entities"`
	SpawnRadiusFactor float64 `yaml:"spawn_radius_factor"`
}

// PhysicsConfig holds world and motion parameters.
type PhysicsConfig struct {
	MaxVelocity             float64 `yaml:"max_velocity"`
	MinRadius               float64 `yaml:"min_radius"`
	MaxRadius               float64 `yaml:"max_radius"`
	GridCellSize            float64 `yaml:"grid_cell_size"`
	BoundaryMargin          float64 `yaml:"boundary_margin"`
	InteractionRadiusOffset float64 `yaml:"interaction_radius_offset"`
	VelocityBounceFactor    float64 `yaml:"velocity_bounce_factor"`
	CenterPressureStrength  float64 `yaml:"center_pressure_strength"`
}

// EnergyConfig holds metabolic cost parameters.
type EnergyConfig struct {
	SizeEnergyCostFactor float64 `yaml:"size_energy_cost_factor"`
	MovementEnergyCost   float64 `yaml:"movement_energy_cost"`
	BaseMaxEnergy        float64 `yaml:"base_max_energy"`
}

// ReproductionConfig holds reproduction and culling parameters.
type ReproductionConfig struct {
	EnergyThreshold     float64 `yaml:"reproduction_energy_threshold"`
	EnergyCost          float64 `yaml:"reproduction_energy_cost"`
	ChildEnergyFactor   float64 `yaml:"child_energy_factor"`
	ChildSpawnRadius    float64 `yaml:"child_spawn_radius"`
	PopulationDensityFactor float64 `yaml:"population_density_factor"`
	MinReproductionChance   float64 `yaml:"min_reproduction_chance"`
	DeathChanceFactor       float64 `yaml:"death_chance_factor"`
	LocalCapacity           float64 `yaml:"local_capacity"`
}

// TraitBounds holds a [lo, hi] clamp range for one heritable trait.
type TraitBounds struct {
	Lo float64 `yaml:"lo"`
	Hi float64 `yaml:"hi"`
}

// GenomeConfig holds per-trait bounds for the four heritable trait groups.
type GenomeConfig struct {
	Speed         TraitBounds `yaml:"speed"`
	SenseRadius   TraitBounds `yaml:"sense_radius"`
	Efficiency    TraitBounds `yaml:"efficiency"`
	LossRate      TraitBounds `yaml:"loss_rate"`
	GainRate      TraitBounds `yaml:"gain_rate"`
	SizeFactor    TraitBounds `yaml:"size_factor"`
	Rate          TraitBounds `yaml:"rate"`
	MutationRate  TraitBounds `yaml:"mutation_rate"`
	Saturation    TraitBounds `yaml:"saturation"`
	SimilarityWeights [4]float64 `yaml:"similarity_weights"` // movement, energy, reproduction, appearance
	NearbyLimit   int         `yaml:"nearby_limit"`
}

// InteractionConfig holds predation parameters.
type InteractionConfig struct {
	SizeThreshold       float64 `yaml:"size_threshold"` // k in size(A) > k*size(B)
	PreferenceBonus     float64 `yaml:"preference_bonus"`
	PreferenceThreshold float64 `yaml:"preference_threshold"` // similarity below which bonus applies
}

// MovementConfig holds movement-style tuning parameters.
type MovementConfig struct {
	FlockingSimilarityThreshold float64 `yaml:"flocking_similarity_threshold"`
	FlockingStrength            float64 `yaml:"flocking_strength"`
	AlignmentStrength           float64 `yaml:"alignment_strength"`
	CohesionStrength            float64 `yaml:"cohesion_strength"`
	SeparationDistance          float64 `yaml:"separation_distance"`
	JitterFraction              float64 `yaml:"jitter_fraction"` // +/- fraction applied to Random style
	GrazingDriftMagnitude       float64 `yaml:"grazing_drift_magnitude"`
}

// SeedConfig holds the run's RNG seed.
type SeedConfig struct {
	RunSeed int64 `yaml:"run_seed"`
}

// DerivedConfig holds values kept outside the YAML record. Nothing in
// this module fills it in.
type DerivedConfig struct {
	WorldSize float64
}

// Validate checks the configuration for internally-consistent, usable values.
// A ConfigInvalid error here is the only error engine construction returns;
// apart from UnknownParameter from the parameter bus, every other problem
// is recoverable (see package enginerr).
func (c *Config) Validate() error {
	switch {
	case c.Physics.MaxRadius <= c.Physics.MinRadius:
		return enginerr.ConfigInvalidf("max_radius (%v) must exceed min_radius (%v)", c.Physics.MaxRadius, c.Physics.MinRadius)
	case c.Physics.GridCellSize <= 0:
		return enginerr.ConfigInvalidf("grid_cell_size must be positive, got %v", c.Physics.GridCellSize)
	case c.Physics.MaxVelocity <= 0:
		return enginerr.ConfigInvalidf("max_velocity must be positive, got %v", c.Physics.MaxVelocity)
	case c.Population.MaxPopulation <= 0:
		return enginerr.ConfigInvalidf("max_population must be positive, got %v", c.Population.MaxPopulation)
	case c.Population.InitialEntities < 0:
		return enginerr.ConfigInvalidf("initial_entities cannot be negative, got %v", c.Population.InitialEntities)
	case c.Population.InitialEntities > c.Population.MaxPopulation:
		return enginerr.ConfigInvalidf("initial_entities (%v) exceeds max_population (%v)", c.Population.InitialEntities, c.Population.MaxPopulation)
	case c.Genome.Speed.Hi <= c.Genome.Speed.Lo:
		return enginerr.ConfigInvalidf("genome.speed bounds invalid: lo=%v hi=%v", c.Genome.Speed.Lo, c.Genome.Speed.Hi)
	case c.Genome.Efficiency.Hi <= c.Genome.Efficiency.Lo:
		return enginerr.ConfigInvalidf("genome.efficiency bounds invalid: lo=%v hi=%v", c.Genome.Efficiency.Lo, c.Genome.Efficiency.Hi)
	case c.Energy.BaseMaxEnergy <= 0:
		return enginerr.ConfigInvalidf("base_max_energy must be positive, got %v", c.Energy.BaseMaxEnergy)
	case c.Genome.NearbyLimit <= 0:
		return enginerr.ConfigInvalidf("genome.nearby_limit must be positive, got %v", c.Genome.NearbyLimit)
	}
	return nil
}

// ResolveSeed returns the configured run seed, or one derived from OS time
// if unset (zero value), per §6 "Seed: run_seed [derived from OS time]".
func (c *Config) ResolveSeed() int64 {
	if c.Seed.RunSeed != 0 {
		return c.Seed.RunSeed
	}
	return time.Now().UnixNano()
}

// global holds the loaded configuration for the package-level convenience path.
// The engine itself never depends on this — see SPEC_FULL.md §10.1.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteYAML serializes the configuration to a file as YAML, nested in the
// same sections it is loaded from (population, physics, energy, ...); the
// option names are not flattened into a single record.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
