package systems

import (
	"github.com/evosim/engine/config"
	"github.com/evosim/engine/entity"
)

// ResolveBoundary clamps pos back into the interior band and reflects
// any velocity component that pushed it past the band, scaled by
// velocity_bounce_factor (§4.8). worldSize is S; the interior band is
// [-S/2 + margin, S/2 - margin] on each axis.
func ResolveBoundary(pos *entity.Position, vel *entity.Velocity, worldSize float64, physCfg *config.PhysicsConfig) {
	half := worldSize/2 - physCfg.BoundaryMargin

	if pos.X > half {
		pos.X = half
		vel.X = -vel.X * physCfg.VelocityBounceFactor
	} else if pos.X < -half {
		pos.X = -half
		vel.X = -vel.X * physCfg.VelocityBounceFactor
	}

	if pos.Y > half {
		pos.Y = half
		vel.Y = -vel.Y * physCfg.VelocityBounceFactor
	} else if pos.Y < -half {
		pos.Y = -half
		vel.Y = -vel.Y * physCfg.VelocityBounceFactor
	}
}
