package sensorprocess

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor/replay"
	goutils "go.viam.com/utils"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

// StartJointStateSensor polls the joint-state sensor to get the next reading and ingests it through the facade.
// Stops when the context is Done.
func (config *Config) StartJointStateSensor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if err := config.addJointStateReading(ctx); err != nil {
				config.Logger.Warn(err)
			}
		}
	}
}

// addJointStateReading ingests the next joint-state reading and, for live sensors, sleeps the remainder
// of the polling interval.
func (config *Config) addJointStateReading(ctx context.Context) error {
	reading, err := config.JointStateSensor.TimedJointStateSensorReading(ctx)
	if err != nil {
		if strings.Contains(err.Error(), replay.ErrEndOfDataset.Error()) {
			goutils.SelectContextOrWait(ctx, endOfDatasetBackoff)
		}
		return err
	}

	timeToSleep := config.tryIngestOnce(ctx, reading)

	// replay data is consumed as fast as it can be read
	if !reading.IsReplaySensor {
		goutils.SelectContextOrWait(ctx, time.Duration(timeToSleep)*time.Millisecond)
		config.Logger.Debugf("joint state sleep for %vms", timeToSleep)
	}
	return nil
}

// tryIngestOnce ingests a reading and does not retry. Returns remainder of time interval in milliseconds.
func (config *Config) tryIngestOnce(ctx context.Context, reading s.TimedJointStateReadingResponse) int {
	startTime := time.Now().UTC()
	config.tryIngest(ctx, reading)
	frequencyHz := config.JointStateSensor.DataFrequencyHz()
	if frequencyHz <= 0 {
		return 0
	}
	timeElapsedMs := int(time.Since(startTime).Milliseconds())
	return int(math.Max(0, float64(1000/frequencyHz-timeElapsedMs)))
}

// tryIngest hands a reading to the facade and logs the outcome. It reports whether the pose was updated.
func (config *Config) tryIngest(ctx context.Context, reading s.TimedJointStateReadingResponse) bool {
	sample := odometer.JointSample{Time: reading.ReadingTime, State: reading.State}
	updated, err := config.Facade.Ingest(ctx, config.Timeout, sample)

	switch {
	case err == nil && updated:
		config.Logger.Debugf("%v \t | JOINT STATE | Success \t \t | %v", reading.ReadingTime, reading.ReadingTime.Unix())
	case err == nil:
		config.Logger.Debugw("joint state reading started a new integration interval", "time", reading.ReadingTime)
	case errors.Is(err, odometer.ErrNonMonotonicTime):
		config.Logger.Warnw("Skipping joint state reading that is not newer than the previous one", "error", err)
	case errors.Is(err, kinematics.ErrGeometryUndefined):
		config.Logger.Debugw("Skipping joint state reading with no center of curvature", "error", err)
	case errors.Is(err, kinematics.ErrInconsistentVelocity):
		config.Logger.Warnw("Skipping joint state reading with inconsistent wheel velocities", "error", err)
	default:
		config.Logger.Warnw("Skipping joint state reading due to error from odometer facade", "error", err)
	}
	return updated
}
