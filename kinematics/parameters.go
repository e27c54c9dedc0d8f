package kinematics

import (
	"github.com/pkg/errors"
)

// Parameters describes the wheel geometry of the robot and the tolerances used to classify motion.
type Parameters struct {
	// Wheelbase is the distance between the two steering pivots, in meters.
	Wheelbase float64 `json:"wheelbase_m"`
	// WheelOffset is the castor trail from steering pivot to wheel contact point, in meters.
	WheelOffset float64 `json:"wheel_offset_m"`
	// VelocityTolerance is the drive velocity difference (m/s) under which two wheels count as equal.
	VelocityTolerance float64 `json:"velocity_tolerance"`
	// SteeringTolerance is the steering angle difference (rad) under which two wheels count as parallel.
	SteeringTolerance float64 `json:"steering_tolerance"`
}

// Validate returns an error if the parameters cannot describe a real robot.
func (p Parameters) Validate() error {
	if !(p.Wheelbase > 0) {
		return errors.Errorf("wheelbase must be greater than zero, got %v", p.Wheelbase)
	}
	if !(p.WheelOffset >= 0) {
		return errors.Errorf("wheel offset cannot be less than zero, got %v", p.WheelOffset)
	}
	if !(p.VelocityTolerance >= 0) {
		return errors.Errorf("velocity tolerance cannot be less than zero, got %v", p.VelocityTolerance)
	}
	if !(p.SteeringTolerance >= 0) {
		return errors.Errorf("steering tolerance cannot be less than zero, got %v", p.SteeringTolerance)
	}
	return nil
}
