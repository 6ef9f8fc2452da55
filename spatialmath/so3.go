// Package spatialmath defines the rotation and rigid transform operations shared by the camera
// model and the estimator.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Below this angle (radians) the exponential and logarithm maps use their first order expansions.
const smallAngle = 1e-8

// ExpMap maps a rotation vector (axis scaled by angle) onto the corresponding unit quaternion.
func ExpMap(rv r3.Vector) quat.Number {
	theta := rv.Norm()
	if theta < smallAngle {
		return Normalize(quat.Number{Real: 1, Imag: rv.X / 2, Jmag: rv.Y / 2, Kmag: rv.Z / 2})
	}
	s := math.Sin(theta/2) / theta
	return quat.Number{Real: math.Cos(theta / 2), Imag: rv.X * s, Jmag: rv.Y * s, Kmag: rv.Z * s}
}

// LogMap is the inverse of ExpMap. The returned rotation vector has norm in [0, pi].
func LogMap(q quat.Number) r3.Vector {
	q = Normalize(q)
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	sinHalf := v.Norm()
	if sinHalf < smallAngle {
		return v.Mul(2 / q.Real)
	}
	angle := 2 * math.Atan2(sinHalf, q.Real)
	return v.Mul(angle / sinHalf)
}

// Normalize scales q to unit length. The zero quaternion becomes the identity.
func Normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// RotateVector applies the rotation q to v.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// QuatToRotationMatrix returns the 3x3 rotation matrix of the unit quaternion q.
func QuatToRotationMatrix(q quat.Number) *mat.Dense {
	q = Normalize(q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	})
}

// Skew returns the cross product matrix [v]x, so that Skew(v)*u == v.Cross(u).
func Skew(v r3.Vector) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		0, -v.Z, v.Y,
		v.Z, 0, -v.X,
		-v.Y, v.X, 0,
	})
}

// QuatFromTwoVectors returns the shortest rotation taking the direction of from onto the
// direction of to.
func QuatFromTwoVectors(from, to r3.Vector) quat.Number {
	a, b := from.Normalize(), to.Normalize()
	d := a.Dot(b)
	switch {
	case d > 1-1e-12:
		return quat.Number{Real: 1}
	case d < -1+1e-12:
		// Any axis perpendicular to a works for a half turn.
		axis := a.Cross(r3.Vector{X: 1})
		if axis.Norm2() < 1e-12 {
			axis = a.Cross(r3.Vector{Y: 1})
		}
		axis = axis.Normalize()
		return quat.Number{Imag: axis.X, Jmag: axis.Y, Kmag: axis.Z}
	}
	c := a.Cross(b)
	return Normalize(quat.Number{Real: 1 + d, Imag: c.X, Jmag: c.Y, Kmag: c.Z})
}

// R3ToVec copies v into a gonum column vector.
func R3ToVec(v r3.Vector) *mat.VecDense {
	return mat.NewVecDense(3, []float64{v.X, v.Y, v.Z})
}

// VecToR3 reads three consecutive entries of a gonum vector starting at offset.
func VecToR3(v mat.Vector, offset int) r3.Vector {
	return r3.Vector{X: v.AtVec(offset), Y: v.AtVec(offset + 1), Z: v.AtVec(offset + 2)}
}

// MulR3 multiplies a 3x3 matrix by v.
func MulR3(m mat.Matrix, v r3.Vector) r3.Vector {
	var out mat.VecDense
	out.MulVec(m, R3ToVec(v))
	return VecToR3(&out, 0)
}
