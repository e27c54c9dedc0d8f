package kinematics

import (
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats/scalar"
)

var (
	// ErrGeometryUndefined denotes that the wheel constraint lines do not meet in a single point,
	// so no instantaneous center of curvature exists for the given steering angles.
	ErrGeometryUndefined = errors.New("instantaneous center of curvature is undefined")
	// ErrInconsistentVelocity denotes that the two wheels imply different angular velocities
	// about the instantaneous center of curvature.
	ErrInconsistentVelocity = errors.New("wheel velocities are inconsistent with the steering geometry")
)

// degenerateEpsilon bounds the sine between two constraint lines below which they count as parallel,
// and the distance below which a contact point counts as lying on the ICC.
const degenerateEpsilon = 1e-9

// ICCResult is the rigid-body motion implied by one wheel state, expressed in the robot body frame
// (x forward, y left, origin midway between the wheel contact points when both wheels steer straight).
type ICCResult struct {
	// ICC is the instantaneous center of curvature. Both coordinates are +Inf for straight motion.
	ICC r2.Point
	// Radius is signed rather than a plain distance: positive when the ICC lies to the left of the
	// direction of travel, so that LinearVelocity = AngularVelocity * Radius.Center holds for turns
	// in both directions. For steered wheels the magnitudes are the distances from each contact
	// point and from the body origin to the ICC.
	Radius Radii
	// LinearVelocity is the speed of the robot center along its direction of travel, in m/s.
	// It is the velocity the pose is integrated with.
	LinearVelocity float64
	// LateralVelocity is the sideways (body y) component of the robot center's velocity, in m/s.
	// It is zero whenever the ICC lies on the body y axis. It is only reported and is never
	// integrated into the pose.
	LateralVelocity float64
	// AngularVelocity is the yaw rate of the robot body, in rad/s, counterclockwise positive.
	AngularVelocity float64
}

// Straight reports whether the result describes straight-line motion.
func (r ICCResult) Straight() bool {
	return math.IsInf(r.Radius.Center, 0)
}

// Solver computes ICC results for a fixed robot geometry. Parameters may be replaced at any time
// and take effect on the next call to Solve.
type Solver struct {
	mu     sync.RWMutex
	params Parameters
}

// NewSolver returns a solver for the given parameters.
func NewSolver(params Parameters) (*Solver, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Solver{params: params}, nil
}

// Parameters returns a copy of the parameters currently in use.
func (s *Solver) Parameters() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// SetParameters replaces all parameters.
func (s *Solver) SetParameters(params Parameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.params = params
	s.mu.Unlock()
	return nil
}

// SetVelocityTolerance replaces the drive velocity tolerance.
func (s *Solver) SetVelocityTolerance(tolerance float64) error {
	params := s.Parameters()
	params.VelocityTolerance = tolerance
	return s.SetParameters(params)
}

// SetSteeringTolerance replaces the steering angle tolerance.
func (s *Solver) SetSteeringTolerance(tolerance float64) error {
	params := s.Parameters()
	params.SteeringTolerance = tolerance
	return s.SetParameters(params)
}

// Solve computes the ICC result for the given wheel state with the solver's current parameters.
func (s *Solver) Solve(state WheelState) (ICCResult, error) {
	return Solve(state, s.Parameters())
}

// Solve computes the ICC result for the given wheel state. It has no side effects.
func Solve(state WheelState, params Parameters) (ICCResult, error) {
	if scalar.EqualWithinAbs(state.Steering.Left, state.Steering.Right, params.SteeringTolerance) {
		return solveParallel(state.Velocity, params), nil
	}
	return solveCastor(state, params)
}

func straight(velocity float64) ICCResult {
	inf := math.Inf(1)
	return ICCResult{
		ICC:            r2.Point{X: inf, Y: inf},
		Radius:         Radii{Left: inf, Right: inf, Center: inf},
		LinearVelocity: velocity,
	}
}

func solveParallel(v PerSide, params Parameters) ICCResult {
	mean := (v.Left + v.Right) / 2
	if scalar.EqualWithinAbs(v.Left, v.Right, params.VelocityTolerance) {
		return straight(mean)
	}

	halfBase := params.Wheelbase / 2
	radius := halfBase * (v.Left + v.Right) / (v.Right - v.Left)
	return ICCResult{
		ICC: r2.Point{X: 0, Y: radius},
		Radius: Radii{
			Left:   radius - halfBase,
			Right:  radius + halfBase,
			Center: radius,
		},
		LinearVelocity:  mean,
		AngularVelocity: (v.Right - v.Left) / params.Wheelbase,
	}
}

// contactPoint returns where a wheel touches the ground given its steering pivot and angle.
func contactPoint(pivot r2.Point, angle, offset float64) r2.Point {
	return pivot.Sub(heading(angle).Mul(offset))
}

func heading(angle float64) r2.Point {
	return r2.Point{X: math.Cos(angle), Y: math.Sin(angle)}
}

// intersect returns the point shared by the lines a + t*da and b + u*db.
func intersect(a, da, b, db r2.Point) (r2.Point, bool) {
	denominator := da.Cross(db)
	if math.Abs(denominator) <= degenerateEpsilon {
		return r2.Point{}, false
	}
	t := b.Sub(a).Cross(db) / denominator
	return a.Add(da.Mul(t)), true
}

func solveCastor(state WheelState, params Parameters) (ICCResult, error) {
	halfBase := params.Wheelbase / 2
	contactLeft := contactPoint(r2.Point{X: params.WheelOffset, Y: halfBase}, state.Steering.Left, params.WheelOffset)
	contactRight := contactPoint(r2.Point{X: params.WheelOffset, Y: -halfBase}, state.Steering.Right, params.WheelOffset)

	// each wheel can only rotate about a point on the line orthogonal to its rolling direction
	normalLeft := heading(state.Steering.Left).Ortho()
	normalRight := heading(state.Steering.Right).Ortho()

	icc, ok := intersect(contactLeft, normalLeft, contactRight, normalRight)
	if !ok {
		return ICCResult{}, errors.Wrapf(ErrGeometryUndefined,
			"steering left %.6f rad, right %.6f rad", state.Steering.Left, state.Steering.Right)
	}

	if scalar.EqualWithinAbs(state.Velocity.Left, 0, params.VelocityTolerance) &&
		scalar.EqualWithinAbs(state.Velocity.Right, 0, params.VelocityTolerance) {
		return straight(0), nil
	}

	radii := Radii{
		Left:   icc.Sub(contactLeft).Dot(normalLeft),
		Right:  icc.Sub(contactRight).Dot(normalRight),
		Center: icc.Norm(),
	}
	// an ICC on the body x axis counts as left
	if icc.Y < -degenerateEpsilon {
		radii.Center = -radii.Center
	}

	w, err := angularVelocity(state.Velocity, radii, params.VelocityTolerance)
	if err != nil {
		return ICCResult{}, err
	}

	return ICCResult{
		ICC:             icc,
		Radius:          radii,
		LinearVelocity:  w * radii.Center,
		LateralVelocity: -w * icc.X,
		AngularVelocity: w,
	}, nil
}

// angularVelocity resolves the body yaw rate from the wheel with the larger turning radius and
// checks that the other wheel agrees with it.
func angularVelocity(v PerSide, radii Radii, tolerance float64) (float64, error) {
	reference, other := Left, Right
	if math.Abs(radii.Right) > math.Abs(radii.Left) {
		reference, other = Right, Left
	}
	if math.Abs(radii.Get(reference)) <= degenerateEpsilon {
		return 0, errors.Wrap(ErrGeometryUndefined, "both contact points lie on the ICC")
	}

	w := v.Get(reference) / radii.Get(reference)
	expected := w * radii.Get(other)
	if !scalar.EqualWithinAbs(expected, v.Get(other), tolerance) {
		return 0, errors.Wrapf(ErrInconsistentVelocity,
			"%s wheel implies %.6f rad/s so %s wheel should drive %.6f m/s, measured %.6f m/s",
			reference, w, other, expected, v.Get(other))
	}
	return w, nil
}
