// Package sensorprocess contains the logic to feed joint-state sensor readings to the odometer facade.
package sensorprocess

import (
	"time"

	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-castor-odometry/odometerfacade"
	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

// endOfDatasetBackoff is how long to wait before polling a replay sensor that ran out of data again.
const endOfDatasetBackoff = time.Second

// Config holds config needed throughout the process of adding a sensor reading to the odometer facade.
type Config struct {
	Facade           odometerfacade.Interface
	JointStateSensor s.TimedJointStateSensor
	Timeout          time.Duration
	Logger           logging.Logger
}
