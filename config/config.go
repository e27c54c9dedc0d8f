// Package config implements functions to assist with attribute evaluation in the castor odometry movement sensor.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
)

const (
	// DefaultVelocityTolerance is the drive velocity difference in m/s below which two wheels count as equal.
	DefaultVelocityTolerance = 1e-3
	// DefaultSteeringTolerance is the steering angle difference in radians below which two wheels count as parallel.
	DefaultSteeringTolerance = 1e-3
	// DefaultDataFrequencyHz is the rate at which the joint-state sensor is polled.
	DefaultDataFrequencyHz = 20
)

// newError returns an error specific to a failure in the castor odometry config.
func newError(configError string) error {
	return errors.Errorf("castor odometry configuration error: %s", configError)
}

// Config describes how to configure the castor odometry movement sensor.
type Config struct {
	JointStateSensor  string   `json:"joint_state_sensor"`
	WheelbaseM        float64  `json:"wheelbase_m"`
	WheelOffsetM      float64  `json:"wheel_offset_m,omitempty"`
	VelocityTolerance *float64 `json:"velocity_tolerance,omitempty"`
	SteeringTolerance *float64 `json:"steering_tolerance,omitempty"`
	Iterations        int      `json:"iterations,omitempty"`
	DataFrequencyHz   int      `json:"data_frequency_hz,omitempty"`
	WrapHeading       bool     `json:"wrap_heading,omitempty"`
	SwapRevolute      bool     `json:"swap_revolute,omitempty"`
	SwapSteering      bool     `json:"swap_steering,omitempty"`
	ParentFrame       string   `json:"parent_frame,omitempty"`
	ChildFrame        string   `json:"child_frame,omitempty"`
}

// Validate creates the list of implicit dependencies.
func (config *Config) Validate(path string) ([]string, error) {
	if config.JointStateSensor == "" {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "joint_state_sensor")
	}

	if config.WheelbaseM == 0 {
		return nil, utils.NewConfigValidationFieldRequiredError(path, "wheelbase_m")
	}

	if config.WheelbaseM < 0 {
		return nil, errors.New("cannot specify wheelbase_m less than zero")
	}

	if config.WheelOffsetM < 0 {
		return nil, errors.New("cannot specify wheel_offset_m less than zero")
	}

	if config.VelocityTolerance != nil && *config.VelocityTolerance < 0 {
		return nil, errors.New("cannot specify velocity_tolerance less than zero")
	}

	if config.SteeringTolerance != nil && *config.SteeringTolerance < 0 {
		return nil, errors.New("cannot specify steering_tolerance less than zero")
	}

	if config.Iterations < 0 {
		return nil, errors.New("cannot specify iterations less than zero")
	}

	if config.DataFrequencyHz < 0 {
		return nil, errors.New("cannot specify data_frequency_hz less than zero")
	}

	deps := []string{config.JointStateSensor}

	return deps, nil
}

// OptionalParameters holds the configured values with defaults filled in.
type OptionalParameters struct {
	Odometer        odometer.Config
	DataFrequencyHz int
	SwapRevolute    bool
	SwapSteering    bool
}

// GetOptionalParameters sets any unset optional config parameters to their defaults, and returns them.
func GetOptionalParameters(config *Config, logger logging.Logger) OptionalParameters {
	velocityTolerance := DefaultVelocityTolerance
	if config.VelocityTolerance == nil {
		logger.Debugf("no velocity_tolerance given, setting to default value of %v", DefaultVelocityTolerance)
	} else {
		velocityTolerance = *config.VelocityTolerance
	}

	steeringTolerance := DefaultSteeringTolerance
	if config.SteeringTolerance == nil {
		logger.Debugf("no steering_tolerance given, setting to default value of %v", DefaultSteeringTolerance)
	} else {
		steeringTolerance = *config.SteeringTolerance
	}

	iterations := config.Iterations
	if iterations == 0 {
		iterations = odometer.DefaultIterations
		logger.Debugf("no iterations given, setting to default value of %d", odometer.DefaultIterations)
	}

	dataFrequencyHz := config.DataFrequencyHz
	if dataFrequencyHz == 0 {
		dataFrequencyHz = DefaultDataFrequencyHz
		logger.Debugf("no data_frequency_hz given, setting to default value of %d", DefaultDataFrequencyHz)
	}

	parentFrame := config.ParentFrame
	if parentFrame == "" {
		parentFrame = odometer.DefaultParentFrame
	}

	childFrame := config.ChildFrame
	if childFrame == "" {
		childFrame = odometer.DefaultChildFrame
	}

	if config.WrapHeading {
		logger.Info("heading will be kept within (-pi, pi]")
	}

	return OptionalParameters{
		Odometer: odometer.Config{
			Parameters: kinematics.Parameters{
				Wheelbase:         config.WheelbaseM,
				WheelOffset:       config.WheelOffsetM,
				VelocityTolerance: velocityTolerance,
				SteeringTolerance: steeringTolerance,
			},
			Iterations:  iterations,
			WrapHeading: config.WrapHeading,
			ParentFrame: parentFrame,
			ChildFrame:  childFrame,
		},
		DataFrequencyHz: dataFrequencyHz,
		SwapRevolute:    config.SwapRevolute,
		SwapSteering:    config.SwapSteering,
	}
}
