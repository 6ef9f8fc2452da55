// Package camera implements the geometric camera models: projection of camera-frame points to
// distorted pixels, its Jacobian, and the inverse back to unit-depth rays.
package camera

import (
	"math"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Kind identifies a camera model.
type Kind int

const (
	// KindUnknown is the zero value and never produced by NewModel.
	KindUnknown Kind = iota
	// KindPinhole is an undistorted perspective camera.
	KindPinhole
	// KindRadialTangential is the Brown-Conrady model.
	KindRadialTangential
	// KindEquidistant is the Kannala-Brandt style fisheye model.
	KindEquidistant
	// KindFieldOfView is the atan/FOV model of Devernay and Faugeras.
	KindFieldOfView
)

// KindFromString maps a configuration model name to its Kind.
func KindFromString(name string) Kind {
	switch strings.ToLower(name) {
	case "pinhole":
		return KindPinhole
	case "radtan":
		return KindRadialTangential
	case "equidistant":
		return KindEquidistant
	case "atan", "fov":
		return KindFieldOfView
	default:
		return KindUnknown
	}
}

func (k Kind) String() string {
	switch k {
	case KindPinhole:
		return "pinhole"
	case KindRadialTangential:
		return "radtan"
	case KindEquidistant:
		return "equidistant"
	case KindFieldOfView:
		return "fov"
	case KindUnknown:
	}
	return "unknown"
}

// Model is an immutable camera model. It is safe for concurrent use.
type Model struct {
	kind           Kind
	rows, cols     int
	fx, fy, cx, cy float64
	maxIter        int

	// fov
	w float64
	// equidistant
	k [4]float64
	// radial-tangential
	p1, p2, k1, k2, k3 float64
}

// NewModel validates cfg and builds the model it names.
func NewModel(cfg *Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Model{
		kind:    KindFromString(cfg.Model),
		rows:    cfg.Rows,
		cols:    cfg.Cols,
		fx:      cfg.Fx,
		fy:      cfg.Fy,
		cx:      cfg.Cx,
		cy:      cfg.Cy,
		maxIter: cfg.MaxIter,
	}
	if m.maxIter == 0 {
		m.maxIter = DefaultMaxIter
	}
	switch m.kind {
	case KindFieldOfView:
		m.w = *cfg.W
	case KindEquidistant:
		copy(m.k[:], cfg.K0123)
	case KindRadialTangential:
		m.p1, m.p2, m.k1, m.k2, m.k3 = cfg.P01K012[0], cfg.P01K012[1], cfg.P01K012[2], cfg.P01K012[3], cfg.P01K012[4]
	case KindPinhole, KindUnknown:
	}
	return m, nil
}

// Kind returns the model kind.
func (m *Model) Kind() Kind { return m.kind }

// Rows returns the image height in pixels.
func (m *Model) Rows() int { return m.rows }

// Cols returns the image width in pixels.
func (m *Model) Cols() int { return m.cols }

// Fx returns the horizontal focal length.
func (m *Model) Fx() float64 { return m.fx }

// Fy returns the vertical focal length.
func (m *Model) Fy() float64 { return m.fy }

// Cx returns the horizontal principal point.
func (m *Model) Cx() float64 { return m.cx }

// Cy returns the vertical principal point.
func (m *Model) Cy() float64 { return m.cy }

// MaxIter returns the iteration bound of the iterative inverses.
func (m *Model) MaxIter() int { return m.maxIter }

// FocalLength is the single focal length used to convert pixel thresholds into angles.
func (m *Model) FocalLength() float64 {
	return 0.5 * math.Sqrt(m.fx*m.fx+m.fy*m.fy)
}

// InImage reports whether px lies inside the image bounds.
func (m *Model) InImage(px r2.Point) bool {
	return px.X >= 0 && px.Y >= 0 && px.X < float64(m.cols) && px.Y < float64(m.rows)
}

// Project maps a point (or ray) in the camera frame to its distorted pixel.
func (m *Model) Project(p r3.Vector) r2.Point {
	xn := r2.Point{X: p.X / p.Z, Y: p.Y / p.Z}
	xd, _, ok := m.distort(xn, false)
	if !ok {
		return r2.Point{X: math.NaN(), Y: math.NaN()}
	}
	return m.toPixel(xd)
}

// ProjectJacobian returns the distorted pixel of p and the 2x3 Jacobian of that pixel with
// respect to p.
func (m *Model) ProjectJacobian(p r3.Vector) (r2.Point, *mat.Dense) {
	invZ := 1 / p.Z
	xn := r2.Point{X: p.X * invZ, Y: p.Y * invZ}
	xd, jd, ok := m.distort(xn, true)
	if !ok {
		nan := math.NaN()
		return r2.Point{X: nan, Y: nan}, mat.NewDense(2, 3, []float64{nan, nan, nan, nan, nan, nan})
	}

	// d(xn)/d(p)
	jn := mat.NewDense(2, 3, []float64{
		invZ, 0, -xn.X * invZ,
		0, invZ, -xn.Y * invZ,
	})
	// d(pixel)/d(xd) * d(xd)/d(xn)
	jpd := mat.NewDense(2, 2, []float64{
		m.fx * jd[0], m.fx * jd[1],
		m.fy * jd[2], m.fy * jd[3],
	})
	var jac mat.Dense
	jac.Mul(jpd, jn)
	return m.toPixel(xd), &jac
}

// UnProject maps a distorted pixel back to the ray with z = 1 that projects onto it. The bool
// is false when an iterative inverse did not converge within MaxIter iterations; the ray is then
// the best estimate found.
func (m *Model) UnProject(px r2.Point) (r3.Vector, bool) {
	xd := r2.Point{X: (px.X - m.cx) / m.fx, Y: (px.Y - m.cy) / m.fy}
	xn, converged := m.undistort(xd)
	return r3.Vector{X: xn.X, Y: xn.Y, Z: 1}, converged
}

func (m *Model) toPixel(xd r2.Point) r2.Point {
	return r2.Point{X: m.fx*xd.X + m.cx, Y: m.fy*xd.Y + m.cy}
}
