// Package sensors defines the joint-state sensor that feeds the castor odometer.
package sensors

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/components/movementsensor/replay"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/utils/contextutils"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
)

const (
	// RevoluteKey is the readings key holding the wheel drive velocities in m/s, left first.
	RevoluteKey = "revolute"
	// SteeringKey is the readings key holding the steering angles in radians, left first.
	SteeringKey = "steering"

	replayTimestampErrorMessage = "replay sensor timestamp parse RFC3339Nano error"
)

// ErrMalformedReading denotes a joint-state reading without a left and right value for a joint group.
var ErrMalformedReading = errors.New("joint state reading is malformed")

// TimedJointStateSensor describes a sensor that reports wheel joint states, the time the reading is from
// and whether or not it is from a replay sensor.
type TimedJointStateSensor interface {
	Name() string
	DataFrequencyHz() int
	TimedJointStateSensorReading(ctx context.Context) (TimedJointStateReadingResponse, error)
}

// TimedJointStateReadingResponse represents a joint-state reading with a time & allows the caller
// to know if the reading is from a replay sensor.
type TimedJointStateReadingResponse struct {
	State          kinematics.WheelState
	ReadingTime    time.Time
	IsReplaySensor bool
}

// SideMapping decides which physical wheel is reported as left and which as right.
// The toggles may be flipped while readings are being taken.
type SideMapping struct {
	swapRevolute atomic.Bool
	swapSteering atomic.Bool
	logger       logging.Logger
}

// NewSideMapping returns a SideMapping with the given initial toggles.
func NewSideMapping(swapRevolute, swapSteering bool, logger logging.Logger) *SideMapping {
	m := &SideMapping{logger: logger}
	m.swapRevolute.Store(swapRevolute)
	m.swapSteering.Store(swapSteering)
	return m
}

// SwapRevolute reports whether drive velocities are swapped.
func (m *SideMapping) SwapRevolute() bool {
	return m.swapRevolute.Load()
}

// SwapSteering reports whether steering angles are swapped.
func (m *SideMapping) SwapSteering() bool {
	return m.swapSteering.Load()
}

// SetSwapRevolute sets whether drive velocities are swapped.
func (m *SideMapping) SetSwapRevolute(swap bool) {
	if m.swapRevolute.Swap(swap) != swap {
		m.logger.Infow("swapping revolute sides", "swapped", swap)
	}
}

// SetSwapSteering sets whether steering angles are swapped.
func (m *SideMapping) SetSwapSteering(swap bool) {
	if m.swapSteering.Swap(swap) != swap {
		m.logger.Infow("swapping steering sides", "swapped", swap)
	}
}

// Apply returns state with the configured swaps applied.
func (m *SideMapping) Apply(state kinematics.WheelState) kinematics.WheelState {
	if m.SwapRevolute() {
		state.Velocity = state.Velocity.Swapped()
	}
	if m.SwapSteering() {
		state.Steering = state.Steering.Swapped()
	}
	return state
}

// JointStateSensor represents a sensor component whose readings carry wheel joint states.
type JointStateSensor struct {
	name            string
	dataFrequencyHz int
	sides           *SideMapping
	Sensor          sensor.Sensor
}

// Name returns the name of the joint-state sensor.
func (js JointStateSensor) Name() string {
	return js.name
}

// DataFrequencyHz returns the rate at which the joint-state sensor is polled.
func (js JointStateSensor) DataFrequencyHz() int {
	return js.dataFrequencyHz
}

// TimedJointStateSensorReading returns the wheel state and the time the reading is from & whether
// it was a replay sensor or not.
func (js JointStateSensor) TimedJointStateSensorReading(ctx context.Context) (TimedJointStateReadingResponse, error) {
	isReplay := false

	ctxWithMetadata, md := contextutils.ContextWithMetadata(ctx)
	readings, err := js.Sensor.Readings(ctxWithMetadata, make(map[string]interface{}))
	if err != nil {
		return TimedJointStateReadingResponse{}, errors.Wrap(err, "Readings error")
	}
	readingTime := time.Now().UTC()

	state, err := ParseReadings(readings)
	if err != nil {
		return TimedJointStateReadingResponse{}, err
	}

	if timeRequestedMetadata, ok := md[contextutils.TimeRequestedMetadataKey]; ok {
		isReplay = true
		if readingTime, err = time.Parse(time.RFC3339Nano, timeRequestedMetadata[0]); err != nil {
			return TimedJointStateReadingResponse{}, errors.Wrap(err, replayTimestampErrorMessage)
		}
	}

	if js.sides != nil {
		state = js.sides.Apply(state)
	}
	return TimedJointStateReadingResponse{State: state, ReadingTime: readingTime, IsReplaySensor: isReplay}, nil
}

// ParseReadings extracts a wheel state from sensor readings. Values reaching the module over the
// network arrive as []interface{}, in-process sensors may return []float64.
func ParseReadings(readings map[string]interface{}) (kinematics.WheelState, error) {
	velocity, err := sidePair(readings, RevoluteKey)
	if err != nil {
		return kinematics.WheelState{}, err
	}
	steering, err := sidePair(readings, SteeringKey)
	if err != nil {
		return kinematics.WheelState{}, err
	}
	return kinematics.WheelState{Velocity: velocity, Steering: steering}, nil
}

func sidePair(readings map[string]interface{}, key string) (kinematics.PerSide, error) {
	raw, ok := readings[key]
	if !ok {
		return kinematics.PerSide{}, errors.Wrapf(ErrMalformedReading, "missing %q", key)
	}

	var values []float64
	switch typed := raw.(type) {
	case []float64:
		values = typed
	case []interface{}:
		values = make([]float64, 0, len(typed))
		for i, item := range typed {
			value, err := cast.ToFloat64E(item)
			if err != nil {
				return kinematics.PerSide{}, errors.Wrapf(ErrMalformedReading, "%s[%d]: %v", key, i, err)
			}
			values = append(values, value)
		}
	default:
		return kinematics.PerSide{}, errors.Wrapf(ErrMalformedReading, "%q has unsupported type %T", key, raw)
	}

	if len(values) < 2 {
		return kinematics.PerSide{}, errors.Wrapf(ErrMalformedReading, "%q needs a left and a right value, got %d", key, len(values))
	}
	for i, value := range values[:2] {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return kinematics.PerSide{}, errors.Wrapf(ErrMalformedReading, "%s[%d] is not finite: %v", key, i, value)
		}
	}
	return kinematics.PerSide{Left: values[0], Right: values[1]}, nil
}

// NewJointStateSensor returns a new JointStateSensor.
func NewJointStateSensor(
	ctx context.Context,
	deps resource.Dependencies,
	sensorName string,
	dataFrequencyHz int,
	sides *SideMapping,
	logger logging.Logger,
) (TimedJointStateSensor, error) {
	_, span := trace.StartSpan(ctx, "viamcastorodometry::sensors::NewJointStateSensor")
	defer span.End()

	jointSensor, err := sensor.FromDependencies(deps, sensorName)
	if err != nil {
		return JointStateSensor{}, errors.Wrapf(err, "error getting joint state sensor %v for castor odometry", sensorName)
	}

	logger.Debugw("using joint state sensor", "name", sensorName, "data_frequency_hz", dataFrequencyHz)
	return JointStateSensor{
		name:            sensorName,
		dataFrequencyHz: dataFrequencyHz,
		sides:           sides,
		Sensor:          jointSensor,
	}, nil
}

// ValidateGetJointStateData checks every sensorValidationInterval if the provided sensor
// returned a valid timed reading until either success or sensorValidationMaxTimeout has elapsed.
// Returns an error if no valid reading was returned.
func ValidateGetJointStateData(
	ctx context.Context,
	js TimedJointStateSensor,
	sensorValidationMaxTimeout time.Duration,
	sensorValidationInterval time.Duration,
	logger logging.Logger,
) error {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::sensors::ValidateGetJointStateData")
	defer span.End()

	startTime := time.Now().UTC()

	for {
		_, err := js.TimedJointStateSensorReading(ctx)
		if err == nil {
			break
		}

		logger.Debugw("ValidateGetJointStateData hit error: ", "error", err)
		// a replay sensor with no data left is not a configuration error
		if strings.Contains(err.Error(), replay.ErrEndOfDataset.Error()) {
			break
		}
		if time.Since(startTime) >= sensorValidationMaxTimeout {
			return errors.Wrap(err, "ValidateGetJointStateData timeout")
		}
		if !goutils.SelectContextOrWait(ctx, sensorValidationInterval) {
			return ctx.Err()
		}
	}

	return nil
}
