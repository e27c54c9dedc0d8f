// Package odometer integrates castor-wheel joint samples into a planar pose estimate.
package odometer

import (
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
)

const (
	// DefaultIterations is the number of chords each integration interval is split into.
	DefaultIterations = 10
	// DefaultParentFrame is the fixed frame the pose is expressed in.
	DefaultParentFrame = "odom"
	// DefaultChildFrame is the robot body frame.
	DefaultChildFrame = "base_link"
)

var (
	// ErrNotInitialized denotes that fewer than two samples have been integrated, so no pose exists yet.
	ErrNotInitialized = errors.New("odometry is not initialized")
	// ErrNonMonotonicTime denotes a joint sample that does not come strictly after the previous one.
	ErrNonMonotonicTime = errors.New("joint sample timestamps must be strictly increasing")
)

// Config describes how to build an Odometer.
type Config struct {
	Parameters  kinematics.Parameters
	Iterations  int
	WrapHeading bool
	ParentFrame string
	ChildFrame  string
}

// Odometer tracks the pose of the robot from successive joint samples.
// It is not safe for concurrent use; callers must serialize access.
type Odometer struct {
	solver      *kinematics.Solver
	iterations  int
	wrapHeading bool
	parentFrame string
	childFrame  string
	logger      logging.Logger

	previous    JointSample
	hasPrevious bool

	pose        Pose
	initialized bool
	latest      kinematics.ICCResult
	latestTime  time.Time
	sequence    uint64
	session     uuid.UUID
}

// New returns an Odometer with no samples observed.
func New(cfg Config, logger logging.Logger) (*Odometer, error) {
	solver, err := kinematics.NewSolver(cfg.Parameters)
	if err != nil {
		return nil, err
	}

	iterations := cfg.Iterations
	if iterations == 0 {
		iterations = DefaultIterations
	}
	if iterations < 0 {
		return nil, errors.Errorf("iterations cannot be less than zero, got %d", iterations)
	}

	parentFrame := cfg.ParentFrame
	if parentFrame == "" {
		parentFrame = DefaultParentFrame
	}
	childFrame := cfg.ChildFrame
	if childFrame == "" {
		childFrame = DefaultChildFrame
	}

	return &Odometer{
		solver:      solver,
		iterations:  iterations,
		wrapHeading: cfg.WrapHeading,
		parentFrame: parentFrame,
		childFrame:  childFrame,
		logger:      logger,
		session:     uuid.New(),
	}, nil
}

// Ingest integrates a joint sample into the pose estimate. It returns true when the pose was updated.
//
// The first sample after construction or Reset only primes the odometer and returns false with no error.
// A sample that is not strictly newer than the previous one is rejected with ErrNonMonotonicTime and
// leaves all state untouched. When the wheel state has no valid ICC the solver error is returned and the
// pose is left as is, but the sample still becomes the start of the next interval.
func (o *Odometer) Ingest(sample JointSample) (bool, error) {
	if !o.hasPrevious {
		o.previous = sample
		o.hasPrevious = true
		o.logger.Debugw("first joint sample received, waiting for a second one", "time", sample.Time)
		return false, nil
	}

	elapsed := sample.Time.Sub(o.previous.Time)
	if elapsed <= 0 {
		return false, errors.Wrapf(ErrNonMonotonicTime, "sample at %v is %v after the previous sample",
			sample.Time, elapsed)
	}

	// the later sample stands in for the whole interval
	result, err := o.solver.Solve(sample.State)
	o.previous = sample
	if err != nil {
		return false, err
	}

	o.pose = Advance(o.pose, result.LinearVelocity, result.AngularVelocity, elapsed.Seconds(), o.iterations)
	if o.wrapHeading {
		o.pose.Theta = WrapAngle(o.pose.Theta)
	}
	o.latest = result
	o.latestTime = sample.Time
	o.initialized = true
	o.sequence++
	return true, nil
}

// Advance moves pose along a constant body velocity for duration seconds, split into iterations chords.
// Each chord starts in the direction of the heading at its beginning.
func Advance(pose Pose, linearVelocity, angularVelocity, duration float64, iterations int) Pose {
	if iterations < 1 {
		iterations = 1
	}
	dt := duration / float64(iterations)
	step := linearVelocity * dt
	turn := angularVelocity * dt
	for i := 0; i < iterations; i++ {
		pose.X += step * math.Cos(pose.Theta)
		pose.Y += step * math.Sin(pose.Theta)
		pose.Theta += turn
	}
	return pose
}

// WrapAngle maps an angle in radians of any magnitude into (-pi, pi].
func WrapAngle(theta float64) float64 {
	wrapped := math.Mod(theta, 2*math.Pi)
	if wrapped <= -math.Pi {
		wrapped += 2 * math.Pi
	} else if wrapped > math.Pi {
		wrapped -= 2 * math.Pi
	}
	return wrapped
}

// Odometry returns a snapshot of the latest pose and velocity.
func (o *Odometer) Odometry() (OdometryRecord, error) {
	if !o.initialized {
		return OdometryRecord{}, ErrNotInitialized
	}
	return OdometryRecord{
		Session:         o.session,
		Sequence:        o.sequence,
		Time:            o.latestTime,
		Pose:            o.pose,
		LinearVelocity:  o.latest.LinearVelocity,
		AngularVelocity: o.latest.AngularVelocity,
		ICC:             o.latest,
	}, nil
}

// Transform returns a snapshot of the latest odometry frame transform.
func (o *Odometer) Transform() (TransformRecord, error) {
	if !o.initialized {
		return TransformRecord{}, ErrNotInitialized
	}
	record := TransformRecord{
		Sequence:    o.sequence,
		Time:        o.latestTime,
		ParentFrame: o.parentFrame,
		ChildFrame:  o.childFrame,
		Translation: r3.Vector{X: o.pose.X, Y: o.pose.Y},
		Rotation:    yawQuaternion(o.pose.Theta),
	}
	return record, nil
}

// Session identifies the current odometry run. It changes on every Reset.
func (o *Odometer) Session() uuid.UUID {
	return o.session
}

// Reset forgets all samples and the pose. The next sample is treated as a cold start.
func (o *Odometer) Reset() {
	o.previous = JointSample{}
	o.hasPrevious = false
	o.pose = Pose{}
	o.initialized = false
	o.latest = kinematics.ICCResult{}
	o.latestTime = time.Time{}
	o.sequence = 0
	o.session = uuid.New()
	o.logger.Infow("odometry reset", "session", o.session.String())
}

// Parameters returns the kinematic parameters in use.
func (o *Odometer) Parameters() kinematics.Parameters {
	return o.solver.Parameters()
}

// SetParameters replaces the kinematic parameters, effective from the next sample.
func (o *Odometer) SetParameters(params kinematics.Parameters) error {
	return o.solver.SetParameters(params)
}

// Iterations returns the number of chords per integration interval.
func (o *Odometer) Iterations() int {
	return o.iterations
}

// SetIterations sets the number of chords per integration interval.
func (o *Odometer) SetIterations(iterations int) error {
	if iterations < 1 {
		return errors.Errorf("iterations must be at least one, got %d", iterations)
	}
	o.iterations = iterations
	return nil
}

// SetWrapHeading selects whether the heading is kept in (-pi, pi] or accumulates without bound.
func (o *Odometer) SetWrapHeading(wrap bool) {
	o.wrapHeading = wrap
	if wrap {
		o.pose.Theta = WrapAngle(o.pose.Theta)
	}
}
