package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is a rigid transform: a rotation followed by a translation. A pose g_ab maps points
// expressed in frame b into frame a. The zero value is not valid; use NewZeroPose.
type Pose struct {
	orientation quat.Number
	point       r3.Vector
}

// NewZeroPose returns the identity transform.
func NewZeroPose() Pose {
	return Pose{orientation: quat.Number{Real: 1}}
}

// NewPose returns the pose with the given translation and rotation. The quaternion is
// normalized.
func NewPose(point r3.Vector, orientation quat.Number) Pose {
	return Pose{orientation: Normalize(orientation), point: point}
}

// NewPoseFromRotationVector builds a pose from a translation and a rotation vector.
func NewPoseFromRotationVector(point, rv r3.Vector) Pose {
	return Pose{orientation: ExpMap(rv), point: point}
}

// Point returns the translation.
func (p Pose) Point() r3.Vector {
	return p.point
}

// Orientation returns the rotation as a unit quaternion.
func (p Pose) Orientation() quat.Number {
	return p.orientation
}

// RotationMatrix returns the rotation as a 3x3 matrix.
func (p Pose) RotationMatrix() *mat.Dense {
	return QuatToRotationMatrix(p.orientation)
}

// RotationLog returns the rotation as a rotation vector.
func (p Pose) RotationLog() r3.Vector {
	return LogMap(p.orientation)
}

// Transform maps a point from the pose's child frame into its parent frame.
func (p Pose) Transform(pt r3.Vector) r3.Vector {
	return RotateVector(p.orientation, pt).Add(p.point)
}

// Invert returns the inverse transform.
func (p Pose) Invert() Pose {
	conj := quat.Conj(p.orientation)
	return Pose{orientation: conj, point: RotateVector(conj, p.point).Mul(-1)}
}

func (p Pose) String() string {
	rv := p.RotationLog()
	return fmt.Sprintf("{X:%.6f Y:%.6f Z:%.6f RX:%.6f RY:%.6f RZ:%.6f}", p.point.X, p.point.Y, p.point.Z, rv.X, rv.Y, rv.Z)
}

// Compose returns a∘b: applying b first, then a.
func Compose(a, b Pose) Pose {
	return Pose{
		orientation: Normalize(quat.Mul(a.orientation, b.orientation)),
		point:       a.Transform(b.point),
	}
}

// PoseBetween returns the transform from a to b, i.e. the pose c such that Compose(a, c) == b.
func PoseBetween(a, b Pose) Pose {
	return Compose(a.Invert(), b)
}

// PoseAlmostEqual reports whether two poses agree in translation and rotation to within tol.
func PoseAlmostEqual(a, b Pose, tol float64) bool {
	if a.point.Sub(b.point).Norm() > tol {
		return false
	}
	return PoseBetween(a, b).RotationLog().Norm() <= tol
}
