package camera

import (
	"math"

	"github.com/golang/geo/r2"
)

// Tolerance on the distorted residual (normalized image units) at which the iterative inverses
// stop.
const undistortTolerance = 1e-10

// Below this normalized radius the radial models use their limits at r = 0.
const smallRadius = 1e-9

// jac2 is a row-major 2x2 matrix.
type jac2 [4]float64

var identity2 = jac2{1, 0, 0, 1}

// distort maps a normalized undistorted point to normalized distorted coordinates. When
// withJacobian is set it also returns d(xd)/d(xn). ok is false for an unknown model.
func (m *Model) distort(xn r2.Point, withJacobian bool) (r2.Point, jac2, bool) {
	switch m.kind {
	case KindPinhole:
		return xn, identity2, true
	case KindRadialTangential:
		xd, j := m.distortRadTan(xn)
		return xd, j, true
	case KindEquidistant:
		xd, j := radialDistort(xn, m.equidistantScale, withJacobian)
		return xd, j, true
	case KindFieldOfView:
		xd, j := radialDistort(xn, m.fovScale, withJacobian)
		return xd, j, true
	case KindUnknown:
	}
	return r2.Point{}, jac2{}, false
}

// undistort inverts distort.
func (m *Model) undistort(xd r2.Point) (r2.Point, bool) {
	switch m.kind {
	case KindPinhole:
		return xd, true
	case KindRadialTangential:
		return m.undistortRadTan(xd)
	case KindEquidistant:
		return m.undistortEquidistant(xd)
	case KindFieldOfView:
		return m.undistortFOV(xd)
	case KindUnknown:
	}
	return r2.Point{X: math.NaN(), Y: math.NaN()}, false
}

// radialScale returns s(r) and ds/dr for a model of the form xd = s(|xn|) * xn.
type radialScale func(r float64) (s, dsdr float64)

// radialDistort applies a radial model. Its Jacobian is s*I + (ds/dr) * xn*xn^T / r.
func radialDistort(xn r2.Point, scale radialScale, withJacobian bool) (r2.Point, jac2) {
	r := xn.Norm()
	s, dsdr := scale(r)
	xd := xn.Mul(s)
	if !withJacobian {
		return xd, jac2{}
	}
	if r < smallRadius {
		return xd, jac2{s, 0, 0, s}
	}
	c := dsdr / r
	return xd, jac2{
		s + c*xn.X*xn.X, c * xn.X * xn.Y,
		c * xn.Y * xn.X, s + c*xn.Y*xn.Y,
	}
}

// equidistantScale: theta = atan(r), theta_d = theta*(1 + k0 theta^2 + k1 theta^4 + k2 theta^6 + k3 theta^8),
// s = theta_d / r.
func (m *Model) equidistantScale(r float64) (float64, float64) {
	if r < smallRadius {
		return 1, 0
	}
	theta := math.Atan(r)
	thetaD, dThetaD := m.equidistantPoly(theta)
	dThetaDdr := dThetaD / (1 + r*r)
	return thetaD / r, (dThetaDdr*r - thetaD) / (r * r)
}

// equidistantPoly evaluates theta_d and d(theta_d)/d(theta).
func (m *Model) equidistantPoly(theta float64) (float64, float64) {
	t2 := theta * theta
	t4 := t2 * t2
	t6 := t4 * t2
	t8 := t4 * t4
	thetaD := theta * (1 + m.k[0]*t2 + m.k[1]*t4 + m.k[2]*t6 + m.k[3]*t8)
	dThetaD := 1 + 3*m.k[0]*t2 + 5*m.k[1]*t4 + 7*m.k[2]*t6 + 9*m.k[3]*t8
	return thetaD, dThetaD
}

// undistortEquidistant solves theta_d(theta) = |xd| with Newton's method and rescales by
// tan(theta).
func (m *Model) undistortEquidistant(xd r2.Point) (r2.Point, bool) {
	thetaD := xd.Norm()
	if thetaD < smallRadius {
		return xd, true
	}
	theta := thetaD
	converged := false
	for i := 0; i < m.maxIter; i++ {
		f, df := m.equidistantPoly(theta)
		if df == 0 {
			break
		}
		step := (f - thetaD) / df
		theta -= step
		if math.Abs(step) < undistortTolerance {
			converged = true
			break
		}
	}
	if theta < 0 || theta >= math.Pi/2 {
		converged = false
	}
	return xd.Mul(math.Tan(theta) / thetaD), converged
}

// fovScale: r_d = atan(2 r tan(w/2)) / w, s = r_d / r.
func (m *Model) fovScale(r float64) (float64, float64) {
	tanHalfW := math.Tan(m.w / 2)
	if r < smallRadius {
		return 2 * tanHalfW / m.w, 0
	}
	rd := math.Atan(2*r*tanHalfW) / m.w
	drd := 2 * tanHalfW / (m.w * (1 + 4*r*r*tanHalfW*tanHalfW))
	return rd / r, (drd*r - rd) / (r * r)
}

// undistortFOV is closed form: r_u = tan(r_d w) / (2 tan(w/2)). It fails for distorted radii
// at or beyond the edge of the field of view.
func (m *Model) undistortFOV(xd r2.Point) (r2.Point, bool) {
	tanHalfW := math.Tan(m.w / 2)
	rd := xd.Norm()
	if rd < smallRadius {
		return xd.Mul(m.w / (2 * tanHalfW)), true
	}
	if rd*m.w >= math.Pi/2 {
		return xd, false
	}
	ru := math.Tan(rd*m.w) / (2 * tanHalfW)
	return xd.Mul(ru / rd), true
}

// distortRadTan applies Brown-Conrady:
//
//	x_d = x (1 + k1 r^2 + k2 r^4 + k3 r^6) + 2 p1 x y + p2 (r^2 + 2 x^2)
//	y_d = y (1 + k1 r^2 + k2 r^4 + k3 r^6) + 2 p2 x y + p1 (r^2 + 2 y^2)
func (m *Model) distortRadTan(xn r2.Point) (r2.Point, jac2) {
	x, y := xn.X, xn.Y
	rsq := x*x + y*y
	r4 := rsq * rsq
	r6 := r4 * rsq
	radial := 1 + m.k1*rsq + m.k2*r4 + m.k3*r6
	xd := r2.Point{
		X: x*radial + 2*m.p1*x*y + m.p2*(rsq+2*x*x),
		Y: y*radial + 2*m.p2*x*y + m.p1*(rsq+2*y*y),
	}

	dRadial := 2 * (m.k1 + 2*m.k2*rsq + 3*m.k3*r4)
	return xd, jac2{
		radial + x*x*dRadial + 2*m.p1*y + 6*m.p2*x,
		x*y*dRadial + 2*m.p1*x + 2*m.p2*y,
		x*y*dRadial + 2*m.p2*y + 2*m.p1*x,
		radial + y*y*dRadial + 2*m.p2*x + 6*m.p1*y,
	}
}

// undistortRadTan inverts Brown-Conrady with 2-D Newton iterations starting from the distorted
// point.
func (m *Model) undistortRadTan(xd r2.Point) (r2.Point, bool) {
	xu := xd
	for i := 0; i < m.maxIter; i++ {
		est, j := m.distortRadTan(xu)
		errX, errY := est.X-xd.X, est.Y-xd.Y
		if errX*errX+errY*errY < undistortTolerance*undistortTolerance {
			return xu, true
		}
		det := j[0]*j[3] - j[1]*j[2]
		if det == 0 {
			return xu, false
		}
		xu.X -= (j[3]*errX - j[1]*errY) / det
		xu.Y -= (-j[2]*errX + j[0]*errY) / det
	}
	est, _ := m.distortRadTan(xu)
	return xu, est.Sub(xd).Norm() < undistortTolerance
}
