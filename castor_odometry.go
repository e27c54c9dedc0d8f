// Package viamcastorodometry implements a movement sensor that estimates the planar pose of a robot
// driven by two steerable castor wheels from their joint states.
// This is an Experimental package.
package viamcastorodometry

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"go.opencensus.io/trace"
	"go.viam.com/rdk/components/movementsensor"
	viamgrpc "go.viam.com/rdk/grpc"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
	rdkutils "go.viam.com/rdk/utils"

	"github.com/viam-modules/viam-castor-odometry/config"
	"github.com/viam-modules/viam-castor-odometry/kinematics"
	"github.com/viam-modules/viam-castor-odometry/odometer"
	"github.com/viam-modules/viam-castor-odometry/odometerfacade"
	"github.com/viam-modules/viam-castor-odometry/sensorprocess"
	s "github.com/viam-modules/viam-castor-odometry/sensors"
)

var (
	// Model is the model name of the castor odometry movement sensor.
	Model = resource.NewModel("viam", "movement_sensor", "castor-odometry")
	// ErrClosed denotes that a movement sensor method was called on a closed castor odometry resource.
	ErrClosed = errors.Errorf("resource (%s) is closed", Model.String())
)

// DoCommand keys.
const (
	ResetCommand         = "reset"
	ParametersCommand    = "parameters"
	SetParametersCommand = "set_parameters"
	SetIterationsCommand = "set_iterations"
	WrapHeadingCommand   = "wrap_heading"
	SwapRevoluteCommand  = "swap_revolute"
	SwapSteeringCommand  = "swap_steering"
	TransformCommand     = "transform"
	OdometryCommand      = "odometry"
)

const defaultFacadeTimeout = 10 * time.Second

var (
	sensorValidationMaxTimeout = 30 * time.Second
	sensorValidationInterval   = 500 * time.Millisecond
)

// SetSensorValidationMaxTimeoutForTesting sets how long New waits for a first valid joint state reading.
func SetSensorValidationMaxTimeoutForTesting(timeout time.Duration) {
	sensorValidationMaxTimeout = timeout
}

func init() {
	resource.RegisterComponent(movementsensor.API, Model, resource.Registration[movementsensor.MovementSensor, *config.Config]{
		Constructor: func(
			ctx context.Context,
			deps resource.Dependencies,
			c resource.Config,
			logger logging.Logger,
		) (movementsensor.MovementSensor, error) {
			return New(ctx, deps, c, logger, defaultFacadeTimeout, nil)
		},
	})
}

func initSensorProcess(cancelCtx context.Context, odom *CastorOdometry) {
	spConfig := sensorprocess.Config{
		Facade:           odom.facade,
		JointStateSensor: odom.jointStateSensor,
		Timeout:          odom.facadeTimeout,
		Logger:           odom.logger,
	}

	odom.sensorProcessWorkers.Add(1)
	go func() {
		defer odom.sensorProcessWorkers.Done()
		spConfig.StartJointStateSensor(cancelCtx)
	}()
}

// New returns a new castor odometry movement sensor.
func New(
	ctx context.Context,
	deps resource.Dependencies,
	c resource.Config,
	logger logging.Logger,
	facadeTimeout time.Duration,
	testJointStateSensorOverride s.TimedJointStateSensor,
) (movementsensor.MovementSensor, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::New")
	defer span.End()

	odomConfig, err := resource.NativeConfig[*config.Config](c)
	if err != nil {
		return nil, err
	}

	optionalConfigParams := config.GetOptionalParameters(odomConfig, logger)
	sides := s.NewSideMapping(optionalConfigParams.SwapRevolute, optionalConfigParams.SwapSteering, logger)

	// Override the joint state sensor for testing if the override sensor is not nil
	timedJointStateSensor := testJointStateSensorOverride
	if timedJointStateSensor == nil {
		if timedJointStateSensor, err = s.NewJointStateSensor(ctx, deps, odomConfig.JointStateSensor,
			optionalConfigParams.DataFrequencyHz, sides, logger); err != nil {
			return nil, err
		}
	}

	odom, err := odometer.New(optionalConfigParams.Odometer, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create odometer")
	}
	facade := odometerfacade.New(odom)

	// Need to be able to shut down the sensor process before the facade
	cancelSensorProcessCtx, cancelSensorProcessFunc := context.WithCancel(context.Background())
	cancelFacadeCtx, cancelFacadeFunc := context.WithCancel(context.Background())

	castorOdometry := &CastorOdometry{
		Named:                   c.ResourceName().AsNamed(),
		jointStateSensor:        timedJointStateSensor,
		sides:                   sides,
		facade:                  &facade,
		facadeTimeout:           facadeTimeout,
		cancelSensorProcessFunc: cancelSensorProcessFunc,
		cancelFacadeFunc:        cancelFacadeFunc,
		logger:                  logger,
	}

	defer func() {
		if err != nil {
			logger.Errorw("New() hit error, closing...", "error", err)
			if err := castorOdometry.Close(ctx); err != nil {
				logger.Errorw("error closing out after error", "error", err)
			}
		}
	}()

	if err = s.ValidateGetJointStateData(
		cancelSensorProcessCtx,
		timedJointStateSensor,
		sensorValidationMaxTimeout,
		sensorValidationInterval,
		logger); err != nil {
		err = errors.Wrap(err, "failed to get data from joint state sensor")
		return nil, err
	}

	castorOdometry.facade.Start(cancelFacadeCtx, &castorOdometry.facadeWorkers)
	initSensorProcess(cancelSensorProcessCtx, castorOdometry)

	return castorOdometry, nil
}

// CastorOdometry is the structure of the castor odometry movement sensor.
type CastorOdometry struct {
	resource.Named
	resource.AlwaysRebuild
	mu     sync.Mutex
	closed atomic.Bool

	jointStateSensor s.TimedJointStateSensor
	sides            *s.SideMapping

	facade        odometerfacade.Interface
	facadeTimeout time.Duration

	cancelSensorProcessFunc func()
	cancelFacadeFunc        func()
	logger                  logging.Logger
	sensorProcessWorkers    sync.WaitGroup
	facadeWorkers           sync.WaitGroup
}

func (co *CastorOdometry) odometry(ctx context.Context, method string) (odometer.OdometryRecord, error) {
	if co.closed.Load() {
		co.logger.Warnf("%s called after closed", method)
		return odometer.OdometryRecord{}, ErrClosed
	}
	return co.facade.Odometry(ctx, co.facadeTimeout)
}

// Position returns the odometry position as a planar point: latitude holds x and longitude holds y,
// both in meters from where odometry started.
func (co *CastorOdometry) Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::Position")
	defer span.End()

	record, err := co.odometry(ctx, "Position")
	if err != nil {
		return nil, 0, err
	}
	return geo.NewPoint(record.Pose.X, record.Pose.Y), 0, nil
}

// Orientation returns the heading of the robot as a yaw.
func (co *CastorOdometry) Orientation(ctx context.Context, extra map[string]interface{}) (spatialmath.Orientation, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::Orientation")
	defer span.End()

	record, err := co.odometry(ctx, "Orientation")
	if err != nil {
		return nil, err
	}
	return &spatialmath.EulerAngles{Yaw: record.Pose.Theta}, nil
}

// LinearVelocity returns the velocity of the robot center in the body frame, in m/s.
func (co *CastorOdometry) LinearVelocity(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::LinearVelocity")
	defer span.End()

	record, err := co.odometry(ctx, "LinearVelocity")
	if err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: record.LinearVelocity, Y: record.ICC.LateralVelocity}, nil
}

// AngularVelocity returns the yaw rate of the robot in degrees per second.
func (co *CastorOdometry) AngularVelocity(ctx context.Context, extra map[string]interface{}) (spatialmath.AngularVelocity, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::AngularVelocity")
	defer span.End()

	record, err := co.odometry(ctx, "AngularVelocity")
	if err != nil {
		return spatialmath.AngularVelocity{}, err
	}
	return spatialmath.AngularVelocity{Z: rdkutils.RadToDeg(record.AngularVelocity)}, nil
}

// LinearAcceleration is not measured by joint-state odometry.
func (co *CastorOdometry) LinearAcceleration(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	return r3.Vector{}, movementsensor.ErrMethodUnimplementedLinearAcceleration
}

// CompassHeading returns the heading in degrees, clockwise from the odometry frame's y axis.
func (co *CastorOdometry) CompassHeading(ctx context.Context, extra map[string]interface{}) (float64, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::CompassHeading")
	defer span.End()

	record, err := co.odometry(ctx, "CompassHeading")
	if err != nil {
		return 0, err
	}
	return compassHeading(record.Pose.Theta), nil
}

// compassHeading converts a counterclockwise heading from +x in radians to degrees in [0, 360)
// clockwise from +y.
func compassHeading(theta float64) float64 {
	heading := math.Mod(90-rdkutils.RadToDeg(theta), 360)
	if heading < 0 {
		heading += 360
	}
	return heading
}

// Properties returns the movement sensor methods this model supports.
func (co *CastorOdometry) Properties(ctx context.Context, extra map[string]interface{}) (*movementsensor.Properties, error) {
	return &movementsensor.Properties{
		PositionSupported:        true,
		OrientationSupported:     true,
		LinearVelocitySupported:  true,
		AngularVelocitySupported: true,
		CompassHeadingSupported:  true,
	}, nil
}

// Accuracy is not reported, odometry error grows without bound.
func (co *CastorOdometry) Accuracy(ctx context.Context, extra map[string]interface{}) (*movementsensor.Accuracy, error) {
	return movementsensor.UnimplementedOptionalAccuracies(), nil
}

// Readings returns every supported measurement from a single odometry snapshot.
func (co *CastorOdometry) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::Readings")
	defer span.End()

	record, err := co.odometry(ctx, "Readings")
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"position":         geo.NewPoint(record.Pose.X, record.Pose.Y),
		"altitude":         0.0,
		"orientation":      &spatialmath.EulerAngles{Yaw: record.Pose.Theta},
		"linear_velocity":  r3.Vector{X: record.LinearVelocity, Y: record.ICC.LateralVelocity},
		"angular_velocity": spatialmath.AngularVelocity{Z: rdkutils.RadToDeg(record.AngularVelocity)},
		"compass":          compassHeading(record.Pose.Theta),
		"session":          record.Session.String(),
		"sequence":         record.Sequence,
	}, nil
}

// DoCommand receives arbitrary commands. Every recognized key in req is handled and answered under the same key.
func (co *CastorOdometry) DoCommand(ctx context.Context, req map[string]interface{}) (map[string]interface{}, error) {
	ctx, span := trace.StartSpan(ctx, "viamcastorodometry::CastorOdometry::DoCommand")
	defer span.End()

	if co.closed.Load() {
		co.logger.Warn("DoCommand called after closed")
		return nil, ErrClosed
	}

	resp := map[string]interface{}{}

	// reset first so the remaining commands apply to the new session
	if _, ok := req[ResetCommand]; ok {
		if err := co.facade.Reset(ctx, co.facadeTimeout); err != nil {
			return nil, err
		}
		resp[ResetCommand] = true
	}

	if val, ok := req[SetParametersCommand]; ok {
		params, err := co.setParameters(ctx, val)
		if err != nil {
			return nil, err
		}
		resp[SetParametersCommand] = parametersToMap(params)
	}

	if val, ok := req[SetIterationsCommand]; ok {
		iterations, err := cast.ToIntE(val)
		if err != nil {
			return nil, errors.Wrapf(err, "%s must be an integer", SetIterationsCommand)
		}
		if err := co.facade.SetIterations(ctx, co.facadeTimeout, iterations); err != nil {
			return nil, err
		}
		resp[SetIterationsCommand] = iterations
	}

	if val, ok := req[WrapHeadingCommand]; ok {
		wrap, err := cast.ToBoolE(val)
		if err != nil {
			return nil, errors.Wrapf(err, "%s must be a bool", WrapHeadingCommand)
		}
		if err := co.facade.SetWrapHeading(ctx, co.facadeTimeout, wrap); err != nil {
			return nil, err
		}
		resp[WrapHeadingCommand] = wrap
	}

	if val, ok := req[SwapRevoluteCommand]; ok {
		swap, err := cast.ToBoolE(val)
		if err != nil {
			return nil, errors.Wrapf(err, "%s must be a bool", SwapRevoluteCommand)
		}
		co.sides.SetSwapRevolute(swap)
		resp[SwapRevoluteCommand] = swap
	}

	if val, ok := req[SwapSteeringCommand]; ok {
		swap, err := cast.ToBoolE(val)
		if err != nil {
			return nil, errors.Wrapf(err, "%s must be a bool", SwapSteeringCommand)
		}
		co.sides.SetSwapSteering(swap)
		resp[SwapSteeringCommand] = swap
	}

	if _, ok := req[ParametersCommand]; ok {
		params, err := co.facade.Parameters(ctx, co.facadeTimeout)
		if err != nil {
			return nil, err
		}
		resp[ParametersCommand] = parametersToMap(params)
	}

	if _, ok := req[TransformCommand]; ok {
		record, err := co.facade.Transform(ctx, co.facadeTimeout)
		if err != nil {
			return nil, err
		}
		resp[TransformCommand] = transformToMap(record)
	}

	if _, ok := req[OdometryCommand]; ok {
		record, err := co.facade.Odometry(ctx, co.facadeTimeout)
		if err != nil {
			return nil, err
		}
		resp[OdometryCommand] = odometryToMap(record)
	}

	if len(resp) == 0 {
		return nil, viamgrpc.UnimplementedError
	}
	return resp, nil
}

// setParameters overlays the given attributes on the parameters in use and applies the result.
func (co *CastorOdometry) setParameters(ctx context.Context, val interface{}) (kinematics.Parameters, error) {
	params, err := co.facade.Parameters(ctx, co.facadeTimeout)
	if err != nil {
		return kinematics.Parameters{}, err
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &params,
	})
	if err != nil {
		return kinematics.Parameters{}, err
	}
	if err := decoder.Decode(val); err != nil {
		return kinematics.Parameters{}, errors.Wrapf(err, "invalid %s", SetParametersCommand)
	}

	if err := co.facade.SetParameters(ctx, co.facadeTimeout, params); err != nil {
		return kinematics.Parameters{}, err
	}
	co.logger.Infow("kinematic parameters updated",
		"wheelbase_m", params.Wheelbase,
		"wheel_offset_m", params.WheelOffset,
		"velocity_tolerance", params.VelocityTolerance,
		"steering_tolerance", params.SteeringTolerance)
	return params, nil
}

func parametersToMap(params kinematics.Parameters) map[string]interface{} {
	return map[string]interface{}{
		"wheelbase_m":        params.Wheelbase,
		"wheel_offset_m":     params.WheelOffset,
		"velocity_tolerance": params.VelocityTolerance,
		"steering_tolerance": params.SteeringTolerance,
	}
}

func transformToMap(record odometer.TransformRecord) map[string]interface{} {
	poseInFrame := record.ToProtobuf()
	pose := poseInFrame.GetPose()
	return map[string]interface{}{
		"sequence":        record.Sequence,
		"time":            record.Time.Format(time.RFC3339Nano),
		"reference_frame": poseInFrame.GetReferenceFrame(),
		"child_frame":     record.ChildFrame,
		"pose": map[string]interface{}{
			"x":     pose.GetX(),
			"y":     pose.GetY(),
			"z":     pose.GetZ(),
			"o_x":   pose.GetOX(),
			"o_y":   pose.GetOY(),
			"o_z":   pose.GetOZ(),
			"theta": pose.GetTheta(),
		},
	}
}

func odometryToMap(record odometer.OdometryRecord) map[string]interface{} {
	resp := map[string]interface{}{
		"session":          record.Session.String(),
		"sequence":         record.Sequence,
		"time":             record.Time.Format(time.RFC3339Nano),
		"x_m":              record.Pose.X,
		"y_m":              record.Pose.Y,
		"theta_rad":        record.Pose.Theta,
		"linear_velocity":  record.LinearVelocity,
		"angular_velocity": record.AngularVelocity,
		"straight":         record.ICC.Straight(),
	}
	// an ICC at infinity has no finite coordinates to report
	if !record.ICC.Straight() {
		resp["icc_x_m"] = record.ICC.ICC.X
		resp["icc_y_m"] = record.ICC.ICC.Y
		resp["radius_m"] = record.ICC.Radius.Center
	}
	return resp
}

// Close stops the sensor process, then the odometer facade.
func (co *CastorOdometry) Close(ctx context.Context) error {
	co.mu.Lock()
	defer co.mu.Unlock()

	if co.closed.Load() {
		co.logger.Warn("Close() called multiple times")
		return nil
	}
	co.logger.Info("Closing castor odometry module")

	// stop sensor process workers
	co.cancelSensorProcessFunc()
	co.sensorProcessWorkers.Wait()

	// stop facade workers
	co.cancelFacadeFunc()
	co.facadeWorkers.Wait()
	co.closed.Store(true)

	co.logger.Info("Closing complete")
	return nil
}
