package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
	"go.viam.com/test"
)

func TestExpLogRoundTrip(t *testing.T) {
	for _, rv := range []r3.Vector{
		{},
		{X: 1e-10},
		{X: 0.1, Y: -0.2, Z: 0.3},
		{Z: math.Pi - 1e-6},
		{X: 1, Y: 1, Z: -1},
	} {
		back := LogMap(ExpMap(rv))
		test.That(t, back.X, test.ShouldAlmostEqual, rv.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, rv.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, rv.Z, 1e-9)
	}

	// q and -q are the same rotation.
	q := ExpMap(r3.Vector{X: 0.4})
	back := LogMap(quat.Scale(-1, q))
	test.That(t, back.X, test.ShouldAlmostEqual, 0.4, 1e-12)
}

func TestRotateVector(t *testing.T) {
	q := ExpMap(r3.Vector{Z: math.Pi / 2})
	v := RotateVector(q, r3.Vector{X: 1})
	test.That(t, v.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, v.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, v.Z, test.ShouldAlmostEqual, 0, 1e-12)

	// The matrix and quaternion forms agree.
	q = ExpMap(r3.Vector{X: 0.3, Y: -0.7, Z: 0.2})
	u := r3.Vector{X: 1.5, Y: -2, Z: 0.25}
	fromQuat := RotateVector(q, u)
	fromMat := MulR3(QuatToRotationMatrix(q), u)
	test.That(t, fromMat.Sub(fromQuat).Norm(), test.ShouldBeLessThan, 1e-12)
}

func TestSkew(t *testing.T) {
	a := r3.Vector{X: 1, Y: 2, Z: 3}
	b := r3.Vector{X: -4, Y: 0.5, Z: 2}
	got := MulR3(Skew(a), b)
	test.That(t, got.Sub(a.Cross(b)).Norm(), test.ShouldBeLessThan, 1e-12)

	var sum mat.Dense
	sum.Add(Skew(a), Skew(a).T())
	test.That(t, mat.Norm(&sum, 1), test.ShouldEqual, 0)
}

func TestQuatFromTwoVectors(t *testing.T) {
	for _, tc := range []struct{ from, to r3.Vector }{
		{r3.Vector{X: 1}, r3.Vector{Y: 2}},
		{r3.Vector{Z: 9.81}, r3.Vector{X: 0.3, Y: -0.2, Z: 9.7}},
		{r3.Vector{Z: 1}, r3.Vector{Z: 5}},
		{r3.Vector{X: 1}, r3.Vector{X: -1}},
	} {
		q := QuatFromTwoVectors(tc.from, tc.to)
		got := RotateVector(q, tc.from.Normalize())
		test.That(t, got.Sub(tc.to.Normalize()).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, quat.Abs(q), test.ShouldAlmostEqual, 1, 1e-12)
	}
}
