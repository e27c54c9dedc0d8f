package odometer

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	commonv1 "go.viam.com/api/common/v1"
	"go.viam.com/rdk/spatialmath"
	"gonum.org/v1/gonum/num/quat"

	"github.com/viam-modules/viam-castor-odometry/kinematics"
)

// JointSample is one measurement of both wheels' drive velocity and steering angle.
type JointSample struct {
	Time  time.Time
	State kinematics.WheelState
}

// Pose is a planar position in meters and a heading in radians, in the fixed odometry frame.
type Pose struct {
	X     float64
	Y     float64
	Theta float64
}

func (p Pose) String() string {
	return fmt.Sprintf("(x: %.4f m, y: %.4f m, theta: %.4f rad)", p.X, p.Y, p.Theta)
}

// Spatial returns the pose as an rdk pose. rdk poses are expressed in millimeters.
func (p Pose) Spatial() spatialmath.Pose {
	return spatialmath.NewPose(
		r3.Vector{X: p.X * 1000, Y: p.Y * 1000},
		&spatialmath.EulerAngles{Yaw: p.Theta},
	)
}

// yawQuaternion returns the rotation of theta radians about the z axis.
func yawQuaternion(theta float64) quat.Number {
	return quat.Number{Real: math.Cos(theta / 2), Kmag: math.Sin(theta / 2)}
}

// OdometryRecord is a snapshot of the pose estimate and the body velocity that produced it.
type OdometryRecord struct {
	Session         uuid.UUID
	Sequence        uint64
	Time            time.Time
	Pose            Pose
	LinearVelocity  float64
	AngularVelocity float64
	ICC             kinematics.ICCResult
}

// TransformRecord is the frame transform from the odometry frame to the robot body frame.
type TransformRecord struct {
	Sequence    uint64
	Time        time.Time
	ParentFrame string
	ChildFrame  string
	// Translation is in meters.
	Translation r3.Vector
	Rotation    quat.Number
}

// Pose returns the transform as an rdk pose, in millimeters.
func (t TransformRecord) Pose() spatialmath.Pose {
	rotation := spatialmath.Quaternion(t.Rotation)
	return spatialmath.NewPose(t.Translation.Mul(1000), &rotation)
}

// ToProtobuf returns the transform as a pose in the parent frame.
func (t TransformRecord) ToProtobuf() *commonv1.PoseInFrame {
	return &commonv1.PoseInFrame{
		ReferenceFrame: t.ParentFrame,
		Pose:           spatialmath.PoseToProtobuf(t.Pose()),
	}
}
