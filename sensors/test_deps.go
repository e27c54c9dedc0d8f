package sensors

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor/replay"
	"go.viam.com/rdk/components/sensor"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/testutils/inject"
	"go.viam.com/rdk/utils/contextutils"
)

// BadTime can be used to represent something that should cause an error while parsing it as a time.
const BadTime = "NOT A TIME"

var (
	// TestTimestamp can be used to test specific timestamps provided by a replay sensor.
	TestTimestamp = time.Now().UTC().Format("2006-01-02T15:04:05.999999Z")
	// ReplayStart is the time of the first reading of StraightReplayJointStateSensor.
	ReplayStart = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	// ReplayInterval is the time between readings of StraightReplayJointStateSensor.
	ReplayInterval = 100 * time.Millisecond
	// Revolute is the successful mock drive velocity result used for testing.
	Revolute = []interface{}{0.5, 1.5}
	// Steering is the successful mock steering angle result used for testing.
	Steering = []interface{}{0.0, 0.0}
)

// TestSensor represents sensors used for testing.
type TestSensor string

const (
	// InvalidSensorTestErrMsg represents an error message that indicates that the sensor is invalid.
	InvalidSensorTestErrMsg = "invalid test sensor"

	// GoodJointStateSensor is a sensor that works as expected and returns wheel joint states.
	GoodJointStateSensor TestSensor = "good_joint_state_sensor"
	// NativeJointStateSensor is a sensor that returns its joint states as []float64.
	NativeJointStateSensor TestSensor = "native_joint_state_sensor"
	// WarmingUpJointStateSensor is a sensor whose first reading fails.
	WarmingUpJointStateSensor TestSensor = "warming_up_joint_state_sensor"
	// JointStateSensorWithErroringFunctions is a sensor whose functions return errors.
	JointStateSensorWithErroringFunctions TestSensor = "joint_state_sensor_with_erroring_functions"
	// MalformedJointStateSensor is a sensor whose readings lack a right steering angle.
	MalformedJointStateSensor TestSensor = "malformed_joint_state_sensor"
	// GibberishJointStateSensor is a sensor that can't be found in the dependencies.
	GibberishJointStateSensor TestSensor = "gibberish_joint_state_sensor"
	// NoJointStateSensor represents that no sensor is set up or added.
	NoJointStateSensor TestSensor = ""

	// ReplayJointStateSensor is a replay sensor that returns wheel joint states.
	ReplayJointStateSensor TestSensor = "replay_joint_state_sensor"
	// InvalidReplayJointStateSensor is a replay sensor whose meta timestamp is invalid.
	InvalidReplayJointStateSensor TestSensor = "invalid_replay_joint_state_sensor"
	// FinishedReplayJointStateSensor is a replay sensor that returns an end of dataset error.
	FinishedReplayJointStateSensor TestSensor = "finished_replay_joint_state_sensor"
	// StraightReplayJointStateSensor is a replay sensor that drives straight at 1 m/s, one reading
	// every ReplayInterval starting at ReplayStart.
	StraightReplayJointStateSensor TestSensor = "straight_replay_joint_state_sensor"
)

var testJointStateSensors = map[TestSensor]func() *inject.Sensor{
	GoodJointStateSensor:                  getGoodJointStateSensor,
	NativeJointStateSensor:                getNativeJointStateSensor,
	WarmingUpJointStateSensor:             getWarmingUpJointStateSensor,
	JointStateSensorWithErroringFunctions: getJointStateSensorWithErroringFunctions,
	MalformedJointStateSensor:             getMalformedJointStateSensor,
	ReplayJointStateSensor:                func() *inject.Sensor { return getReplayJointStateSensor(TestTimestamp) },
	InvalidReplayJointStateSensor:         func() *inject.Sensor { return getReplayJointStateSensor(BadTime) },
	FinishedReplayJointStateSensor:        getFinishedReplayJointStateSensor,
	StraightReplayJointStateSensor:        getStraightReplayJointStateSensor,
}

// SetupDeps returns the dependencies based on the joint-state sensor name passed as argument.
func SetupDeps(jointStateSensorName TestSensor) resource.Dependencies {
	deps := make(resource.Dependencies)
	if getSensorFunc, ok := testJointStateSensors[jointStateSensorName]; ok {
		deps[sensor.Named(string(jointStateSensorName))] = getSensorFunc()
	}
	return deps
}

func setReplayTime(ctx context.Context, readingTime string) {
	md := ctx.Value(contextutils.MetadataContextKey)
	if mdMap, ok := md.(map[string][]string); ok {
		mdMap[contextutils.TimeRequestedMetadataKey] = []string{readingTime}
	}
}

func getGoodJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{RevoluteKey: Revolute, SteeringKey: Steering}, nil
	}
	return js
}

func getNativeJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			RevoluteKey: []float64{0.5, 1.5},
			SteeringKey: []float64{0.3, 0.1},
		}, nil
	}
	return js
}

func getWarmingUpJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	var mu sync.Mutex
	counter := 0
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		counter++
		if counter == 1 {
			return nil, errors.Errorf("warming up %d", counter)
		}
		return map[string]interface{}{RevoluteKey: Revolute, SteeringKey: Steering}, nil
	}
	return js
}

func getJointStateSensorWithErroringFunctions() *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New(InvalidSensorTestErrMsg)
	}
	return js
}

func getMalformedJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{RevoluteKey: Revolute, SteeringKey: []interface{}{0.0}}, nil
	}
	return js
}

func getReplayJointStateSensor(testTime string) *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		setReplayTime(ctx, testTime)
		return map[string]interface{}{RevoluteKey: Revolute, SteeringKey: Steering}, nil
	}
	return js
}

func getFinishedReplayJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		return nil, replay.ErrEndOfDataset
	}
	return js
}

func getStraightReplayJointStateSensor() *inject.Sensor {
	js := &inject.Sensor{}
	var mu sync.Mutex
	next := ReplayStart
	js.ReadingsFunc = func(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
		mu.Lock()
		readingTime := next
		next = next.Add(ReplayInterval)
		mu.Unlock()

		setReplayTime(ctx, readingTime.Format(time.RFC3339Nano))
		return map[string]interface{}{
			RevoluteKey: []interface{}{1.0, 1.0},
			SteeringKey: []interface{}{0.0, 0.0},
		}, nil
	}
	return js
}
