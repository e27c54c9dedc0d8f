package viamcastorodometry

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/components/movementsensor"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/test"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
	"github.com/viam-modules/viam-castor-odometry/odometerfacade"
	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

func newTestCastorOdometry(t *testing.T, mockFacade *odometerfacade.Mock) *CastorOdometry {
	logger := logging.NewTestLogger(t)
	return &CastorOdometry{
		Named:         resource.NewName(movementsensor.API, "test").AsNamed(),
		facade:        mockFacade,
		facadeTimeout: time.Second,
		sides:         s.NewSideMapping(false, false, logger),
		logger:        logger,
	}
}

func setMockOdometryFunc(mockFacade *odometerfacade.Mock, record odometer.OdometryRecord, err error) {
	mockFacade.OdometryFunc = func(ctx context.Context, timeout time.Duration) (odometer.OdometryRecord, error) {
		return record, err
	}
}

func TestMovementSensorEndpoints(t *testing.T) {
	mockFacade := &odometerfacade.Mock{}
	svc := newTestCastorOdometry(t, mockFacade)
	ctx := context.Background()

	record := odometer.OdometryRecord{
		Session:         uuid.New(),
		Sequence:        7,
		Time:            time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
		Pose:            odometer.Pose{X: 1, Y: 2, Theta: math.Pi},
		LinearVelocity:  0.5,
		AngularVelocity: 0.25,
		ICC: kinematics.ICCResult{
			ICC:             r2.Point{X: 0.1, Y: 2},
			Radius:          kinematics.Radii{Left: 1.75, Right: 2.25, Center: 2},
			LinearVelocity:  0.5,
			LateralVelocity: -0.0125,
			AngularVelocity: 0.25,
		},
	}
	setMockOdometryFunc(mockFacade, record, nil)

	t.Run("position maps x and y onto the point", func(t *testing.T) {
		pt, alt, err := svc.Position(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pt.Lat(), test.ShouldEqual, 1.0)
		test.That(t, pt.Lng(), test.ShouldEqual, 2.0)
		test.That(t, alt, test.ShouldEqual, 0.0)
	})

	t.Run("orientation is the heading as yaw", func(t *testing.T) {
		orientation, err := svc.Orientation(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, orientation.EulerAngles().Yaw, test.ShouldEqual, math.Pi)
		test.That(t, orientation.EulerAngles().Roll, test.ShouldEqual, 0.0)
		test.That(t, orientation.EulerAngles().Pitch, test.ShouldEqual, 0.0)
	})

	t.Run("velocities are in the body frame", func(t *testing.T) {
		linVel, err := svc.LinearVelocity(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, linVel.X, test.ShouldEqual, 0.5)
		test.That(t, linVel.Y, test.ShouldEqual, -0.0125)
		test.That(t, linVel.Z, test.ShouldEqual, 0.0)

		angVel, err := svc.AngularVelocity(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, angVel.Z, test.ShouldAlmostEqual, 0.25*180/math.Pi)
		test.That(t, angVel.X, test.ShouldEqual, 0.0)
	})

	t.Run("compass heading is measured clockwise from y", func(t *testing.T) {
		heading, err := svc.CompassHeading(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, heading, test.ShouldAlmostEqual, 270.0)
	})

	t.Run("readings", func(t *testing.T) {
		readings, err := svc.Readings(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, readings["sequence"], test.ShouldEqual, uint64(7))
		test.That(t, readings["session"], test.ShouldEqual, record.Session.String())
		test.That(t, readings["altitude"], test.ShouldEqual, 0.0)
		test.That(t, readings["compass"], test.ShouldAlmostEqual, 270.0)
	})

	t.Run("properties and accuracy", func(t *testing.T) {
		props, err := svc.Properties(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, props.PositionSupported, test.ShouldBeTrue)
		test.That(t, props.OrientationSupported, test.ShouldBeTrue)
		test.That(t, props.LinearVelocitySupported, test.ShouldBeTrue)
		test.That(t, props.AngularVelocitySupported, test.ShouldBeTrue)
		test.That(t, props.CompassHeadingSupported, test.ShouldBeTrue)
		test.That(t, props.LinearAccelerationSupported, test.ShouldBeFalse)

		acc, err := svc.Accuracy(ctx, nil)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, acc, test.ShouldNotBeNil)
	})

	t.Run("odometry command", func(t *testing.T) {
		resp, err := svc.DoCommand(ctx, map[string]interface{}{OdometryCommand: true})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, resp[OdometryCommand], test.ShouldResemble, map[string]interface{}{
			"session":          record.Session.String(),
			"sequence":         uint64(7),
			"time":             "2023-05-01T12:00:00Z",
			"x_m":              1.0,
			"y_m":              2.0,
			"theta_rad":        math.Pi,
			"linear_velocity":  0.5,
			"angular_velocity": 0.25,
			"straight":         false,
			"icc_x_m":          0.1,
			"icc_y_m":          2.0,
			"radius_m":         2.0,
		})
	})

	t.Run("errors from the facade are returned", func(t *testing.T) {
		setMockOdometryFunc(mockFacade, odometer.OdometryRecord{}, odometer.ErrNotInitialized)

		pt, _, err := svc.Position(ctx, nil)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)
		test.That(t, pt, test.ShouldBeNil)

		orientation, err := svc.Orientation(ctx, nil)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)
		test.That(t, orientation, test.ShouldBeNil)

		readings, err := svc.Readings(ctx, nil)
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)
		test.That(t, readings, test.ShouldBeNil)

		resp, err := svc.DoCommand(ctx, map[string]interface{}{OdometryCommand: true})
		test.That(t, err, test.ShouldBeError, odometer.ErrNotInitialized)
		test.That(t, resp, test.ShouldBeNil)
	})
}

func TestStraightOdometryCommand(t *testing.T) {
	record := odometer.OdometryRecord{
		Sequence:       1,
		Pose:           odometer.Pose{X: 0.1},
		LinearVelocity: 1,
		ICC: kinematics.ICCResult{
			ICC:            r2.Point{X: math.Inf(1), Y: math.Inf(1)},
			Radius:         kinematics.Radii{Left: math.Inf(1), Right: math.Inf(1), Center: math.Inf(1)},
			LinearVelocity: 1,
		},
	}
	resp := odometryToMap(record)
	test.That(t, resp["straight"], test.ShouldBeTrue)
	_, ok := resp["radius_m"]
	test.That(t, ok, test.ShouldBeFalse)
	_, ok = resp["icc_x_m"]
	test.That(t, ok, test.ShouldBeFalse)
}

func TestCompassHeading(t *testing.T) {
	cases := map[float64]float64{
		0:                90,
		math.Pi / 4:      45,
		3 * math.Pi / 4:  315,
		math.Pi:          270,
		-math.Pi / 2:     180,
		2 * math.Pi:      90,
		-7 * math.Pi / 4: 45,
	}
	for theta, expected := range cases {
		test.That(t, compassHeading(theta), test.ShouldAlmostEqual, expected)
		test.That(t, compassHeading(theta), test.ShouldBeGreaterThanOrEqualTo, 0.0)
		test.That(t, compassHeading(theta), test.ShouldBeLessThan, 360.0)
	}
}

func TestDoCommandEndpoint(t *testing.T) {
	ctx := context.Background()

	t.Run("reset is applied before the other commands", func(t *testing.T) {
		mockFacade := &odometerfacade.Mock{}
		svc := newTestCastorOdometry(t, mockFacade)

		var calls []string
		mockFacade.ResetFunc = func(ctx context.Context, timeout time.Duration) error {
			calls = append(calls, "reset")
			return nil
		}
		mockFacade.SetIterationsFunc = func(ctx context.Context, timeout time.Duration, iterations int) error {
			calls = append(calls, "set_iterations")
			test.That(t, iterations, test.ShouldEqual, 3)
			test.That(t, timeout, test.ShouldEqual, time.Second)
			return nil
		}

		resp, err := svc.DoCommand(ctx, map[string]interface{}{SetIterationsCommand: "3", ResetCommand: true})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, calls, test.ShouldResemble, []string{"reset", "set_iterations"})
		test.That(t, resp, test.ShouldResemble, map[string]interface{}{ResetCommand: true, SetIterationsCommand: 3})
	})

	t.Run("set_parameters decodes onto the parameters in use", func(t *testing.T) {
		mockFacade := &odometerfacade.Mock{}
		svc := newTestCastorOdometry(t, mockFacade)

		current := kinematics.Parameters{Wheelbase: 0.5, WheelOffset: 0.1, VelocityTolerance: 1e-3, SteeringTolerance: 1e-3}
		mockFacade.ParametersFunc = func(ctx context.Context, timeout time.Duration) (kinematics.Parameters, error) {
			return current, nil
		}
		var applied kinematics.Parameters
		mockFacade.SetParametersFunc = func(ctx context.Context, timeout time.Duration, params kinematics.Parameters) error {
			applied = params
			return nil
		}

		_, err := svc.DoCommand(ctx, map[string]interface{}{
			SetParametersCommand: map[string]interface{}{"wheelbase_m": "0.6", "steering_tolerance": 0.01},
		})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, applied, test.ShouldResemble, kinematics.Parameters{
			Wheelbase:         0.6,
			WheelOffset:       0.1,
			VelocityTolerance: 1e-3,
			SteeringTolerance: 0.01,
		})

		_, err = svc.DoCommand(ctx, map[string]interface{}{SetParametersCommand: true})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "invalid set_parameters")
	})

	t.Run("facade errors stop the command", func(t *testing.T) {
		mockFacade := &odometerfacade.Mock{}
		svc := newTestCastorOdometry(t, mockFacade)
		mockFacade.TransformFunc = func(ctx context.Context, timeout time.Duration) (odometer.TransformRecord, error) {
			return odometer.TransformRecord{}, errors.New("timeout reading from odometer")
		}

		resp, err := svc.DoCommand(ctx, map[string]interface{}{TransformCommand: true})
		test.That(t, err, test.ShouldBeError, errors.New("timeout reading from odometer"))
		test.That(t, resp, test.ShouldBeNil)
	})

	t.Run("swap toggles reach the side mapping", func(t *testing.T) {
		svc := newTestCastorOdometry(t, &odometerfacade.Mock{})

		_, err := svc.DoCommand(ctx, map[string]interface{}{SwapRevoluteCommand: 1, SwapSteeringCommand: "true"})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, svc.sides.SwapRevolute(), test.ShouldBeTrue)
		test.That(t, svc.sides.SwapSteering(), test.ShouldBeTrue)
	})
}
