// Package testhelper builds castor odometry movement sensors against the test joint-state sensors.
package testhelper

import (
	"context"
	"testing"
	"time"

	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/test"

	viamcastorodometry "github.com/viam-modules/viam-castor-odometry"
	"github.com/viam-modules/viam-castor-odometry/config"
	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

const (
	testFacadeTimeout = 5 * time.Second
	pollInterval      = 5 * time.Millisecond
)

// CreateCastorOdometry validates cfg and builds a castor odometry movement sensor. cfg.JointStateSensor
// selects one of the sensors.TestSensor fixtures.
func CreateCastorOdometry(
	t *testing.T,
	cfg *config.Config,
	logger logging.Logger,
) (movementsensor.MovementSensor, error) {
	t.Helper()
	ctx := context.Background()
	cfgComponent := resource.Config{Name: "test", API: movementsensor.API, Model: viamcastorodometry.Model}
	cfgComponent.ConvertedAttributes = cfg

	deps := s.SetupDeps(s.TestSensor(cfg.JointStateSensor))

	sensorDeps, err := cfg.Validate("path")
	if err != nil {
		return nil, err
	}
	test.That(t, sensorDeps, test.ShouldResemble, []string{cfg.JointStateSensor})

	return viamcastorodometry.New(ctx, deps, cfgComponent, logger, testFacadeTimeout, nil)
}

// WaitForOdometry polls the odometry command until at least minSequence poses were integrated
// and returns that odometry response.
func WaitForOdometry(
	t *testing.T,
	ms movementsensor.MovementSensor,
	minSequence uint64,
	timeout time.Duration,
) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := ms.DoCommand(context.Background(), map[string]interface{}{viamcastorodometry.OdometryCommand: true})
		if err == nil {
			record := resp[viamcastorodometry.OdometryCommand].(map[string]interface{})
			if record["sequence"].(uint64) >= minSequence {
				return record
			}
		}
		time.Sleep(pollInterval)
	}
	t.Fatalf("odometry did not reach sequence %d within %v", minSequence, timeout)
	return nil
}
