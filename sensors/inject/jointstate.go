// Package inject provides dependency injected structures for mocking interfaces.
package inject

import (
	"context"

	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

// TimedJointStateSensor is an injected TimedJointStateSensor.
type TimedJointStateSensor struct {
	s.JointStateSensor
	NameFunc                         func() string
	DataFrequencyHzFunc              func() int
	TimedJointStateSensorReadingFunc func(ctx context.Context) (s.TimedJointStateReadingResponse, error)
}

// Name calls the injected Name or the real version.
func (tjs *TimedJointStateSensor) Name() string {
	if tjs.NameFunc == nil {
		return tjs.JointStateSensor.Name()
	}
	return tjs.NameFunc()
}

// DataFrequencyHz calls the injected DataFrequencyHz or the real version.
func (tjs *TimedJointStateSensor) DataFrequencyHz() int {
	if tjs.DataFrequencyHzFunc == nil {
		return tjs.JointStateSensor.DataFrequencyHz()
	}
	return tjs.DataFrequencyHzFunc()
}

// TimedJointStateSensorReading calls the injected TimedJointStateSensorReading or the real version.
func (tjs *TimedJointStateSensor) TimedJointStateSensorReading(ctx context.Context) (s.TimedJointStateReadingResponse, error) {
	if tjs.TimedJointStateSensorReadingFunc == nil {
		return tjs.JointStateSensor.TimedJointStateSensorReading(ctx)
	}
	return tjs.TimedJointStateSensorReadingFunc(ctx)
}
