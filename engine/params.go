package engine

import (
	"github.com/evosim/engine/enginerr"
)

// Set applies a runtime parameter update (§6 "Parameter bus"). Unknown
// names are rejected with UnknownParameter; recognized names are
// clamped into a sane range and always accepted — an out-of-range value
// is a warning, never a rejection (§7 "ValueOutOfRange — clamped at the
// boundary; logged as a warning; not surfaced").
func (e *Engine) Set(name string, value float64) error {
	switch name {
	case "max_velocity":
		e.cfg.Physics.MaxVelocity = e.clampParam(name, value, 1e-6, 1000)
	case "center_pressure":
		e.cfg.Physics.CenterPressureStrength = e.clampParam(name, value, 0, 10)
	case "death_chance":
		e.cfg.Reproduction.DeathChanceFactor = e.clampParam(name, value, 0, 1)
	case "repro_threshold":
		e.cfg.Reproduction.EnergyThreshold = e.clampParam(name, value, 0, 1)
	case "energy_cost":
		e.cfg.Reproduction.EnergyCost = e.clampParam(name, value, 0, 1)
	case "bounce_factor":
		e.cfg.Physics.VelocityBounceFactor = e.clampParam(name, value, 0, 1)
	default:
		return enginerr.UnknownParameterf("unrecognized parameter %q", name)
	}
	return nil
}

func (e *Engine) clampParam(name string, value, lo, hi float64) float64 {
	if value < lo {
		e.log.Warn("parameter out of range, clamped", "name", name, "value", value, "clamped", lo)
		return lo
	}
	if value > hi {
		e.log.Warn("parameter out of range, clamped", "name", name, "value", value, "clamped", hi)
		return hi
	}
	return value
}
