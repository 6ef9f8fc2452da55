package spatialmath

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestPoseCompose(t *testing.T) {
	gsb := NewPoseFromRotationVector(r3.Vector{X: 1, Y: 2, Z: 3}, r3.Vector{Z: 0.5})
	gbc := NewPoseFromRotationVector(r3.Vector{X: 0.1}, r3.Vector{X: -1.2, Y: 0.1})
	gsc := Compose(gsb, gbc)

	pc := r3.Vector{X: 0.3, Y: -0.4, Z: 2}
	direct := gsc.Transform(pc)
	chained := gsb.Transform(gbc.Transform(pc))
	test.That(t, direct.Sub(chained).Norm(), test.ShouldBeLessThan, 1e-12)

	test.That(t, PoseAlmostEqual(PoseBetween(gsb, gsc), gbc, 1e-12), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(Compose(gsc, gsc.Invert()), NewZeroPose(), 1e-12), test.ShouldBeTrue)
	test.That(t, PoseAlmostEqual(gsb, gsc, 1e-3), test.ShouldBeFalse)
}

func TestPoseInvert(t *testing.T) {
	p := NewPoseFromRotationVector(r3.Vector{X: 4, Y: -1, Z: 0.5}, r3.Vector{X: 0.2, Y: 0.3, Z: -0.1})
	pt := r3.Vector{X: 1, Y: 1, Z: 1}
	back := p.Invert().Transform(p.Transform(pt))
	test.That(t, back.Sub(pt).Norm(), test.ShouldBeLessThan, 1e-12)

	rv := p.RotationLog()
	test.That(t, rv.X, test.ShouldAlmostEqual, 0.2, 1e-12)
	test.That(t, rv.Y, test.ShouldAlmostEqual, 0.3, 1e-12)
	test.That(t, rv.Z, test.ShouldAlmostEqual, -0.1, 1e-12)
	test.That(t, NewZeroPose().String(), test.ShouldEqual,
		"{X:0.000000 Y:0.000000 Z:0.000000 RX:0.000000 RY:0.000000 RZ:0.000000}")
}
