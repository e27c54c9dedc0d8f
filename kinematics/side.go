// Package kinematics computes the instantaneous center of curvature of a robot driven by two
// independently steered castor wheels.
package kinematics

import "fmt"

// Side identifies a wheel, or the robot body as a whole.
type Side int

const (
	// Left is the wheel on the positive body y axis.
	Left Side = iota
	// Right is the wheel on the negative body y axis.
	Right
	// Center is the aggregate robot-body quantity.
	Center
)

func (s Side) String() string {
	switch s {
	case Left:
		return "left"
	case Right:
		return "right"
	case Center:
		return "center"
	default:
		return fmt.Sprintf("side(%d)", int(s))
	}
}

// PerSide holds one value for each physical wheel.
type PerSide struct {
	Left  float64
	Right float64
}

// Get returns the value for the given wheel. Center has no per-wheel value and returns 0.
func (p PerSide) Get(s Side) float64 {
	switch s {
	case Left:
		return p.Left
	case Right:
		return p.Right
	default:
		return 0
	}
}

// Swapped returns the record with the left and right values exchanged.
func (p PerSide) Swapped() PerSide {
	return PerSide{Left: p.Right, Right: p.Left}
}

// WheelState is the instantaneous drive velocity (m/s) and steering angle (rad) of both wheels.
type WheelState struct {
	Velocity PerSide
	Steering PerSide
}

// Radii holds a turning radius per wheel and for the robot center. +Inf denotes straight motion.
type Radii struct {
	Left   float64
	Right  float64
	Center float64
}

// Get returns the radius for the given side.
func (r Radii) Get(s Side) float64 {
	switch s {
	case Left:
		return r.Left
	case Right:
		return r.Right
	default:
		return r.Center
	}
}
