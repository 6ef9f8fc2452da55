package camera

import (
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func floatPtr(v float64) *float64 {
	return &v
}

func testConfigs() map[string]*Config {
	return map[string]*Config{
		"pinhole": {Model: "pinhole", Rows: 480, Cols: 640, Fx: 300, Fy: 300, Cx: 320, Cy: 240},
		"radtan": {
			Model: "radtan", Rows: 480, Cols: 752, Fx: 458.654, Fy: 457.296, Cx: 367.215, Cy: 248.375,
			P01K012: []float64{0.00019359, 1.76187114e-05, -0.28340811, 0.07395907, 0},
		},
		"equidistant": {
			Model: "equidistant", Rows: 512, Cols: 512, Fx: 190.978, Fy: 190.973, Cx: 254.932, Cy: 256.897,
			K0123: []float64{0.0034823894, 0.0007150348, -0.0020532361, 0.0002029367},
		},
		"fov": {Model: "fov", Rows: 480, Cols: 640, Fx: 275, Fy: 275, Cx: 315, Cy: 245, W: floatPtr(0.93)},
	}
}

func TestRoundTrip(t *testing.T) {
	for name, cfg := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			model, err := NewModel(cfg)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, model.Kind(), test.ShouldEqual, KindFromString(name))

			center := r2.Point{X: model.Cx(), Y: model.Cy()}
			radius := 0.45 * math.Min(float64(model.Rows()), float64(model.Cols()))
			for u := 0; u < model.Cols(); u += 37 {
				for v := 0; v < model.Rows(); v += 29 {
					px := r2.Point{X: float64(u), Y: float64(v)}
					if px.Sub(center).Norm() > radius {
						continue
					}
					ray, converged := model.UnProject(px)
					test.That(t, converged, test.ShouldBeTrue)
					test.That(t, ray.Z, test.ShouldEqual, 1)

					back := model.Project(ray)
					test.That(t, back.X, test.ShouldAlmostEqual, px.X, 1e-6)
					test.That(t, back.Y, test.ShouldAlmostEqual, px.Y, 1e-6)

					// Any point along the ray projects to the same pixel.
					far := model.Project(ray.Mul(7.5))
					test.That(t, far.X, test.ShouldAlmostEqual, px.X, 1e-6)
					test.That(t, far.Y, test.ShouldAlmostEqual, px.Y, 1e-6)
				}
			}
		})
	}
}

func TestProjectJacobian(t *testing.T) {
	points := []r3.Vector{
		{X: 0.1, Y: -0.2, Z: 1.5},
		{X: -0.6, Y: 0.3, Z: 2},
		{X: 0, Y: 0, Z: 3},
	}
	const h = 1e-6
	for name, cfg := range testConfigs() {
		t.Run(name, func(t *testing.T) {
			model, err := NewModel(cfg)
			test.That(t, err, test.ShouldBeNil)
			for _, p := range points {
				px, jac := model.ProjectJacobian(p)
				direct := model.Project(p)
				test.That(t, px.X, test.ShouldAlmostEqual, direct.X, 1e-9)
				test.That(t, px.Y, test.ShouldAlmostEqual, direct.Y, 1e-9)

				r, c := jac.Dims()
				test.That(t, r, test.ShouldEqual, 2)
				test.That(t, c, test.ShouldEqual, 3)

				for axis := 0; axis < 3; axis++ {
					var d r3.Vector
					switch axis {
					case 0:
						d.X = h
					case 1:
						d.Y = h
					default:
						d.Z = h
					}
					plus := model.Project(p.Add(d))
					minus := model.Project(p.Sub(d))
					test.That(t, jac.At(0, axis), test.ShouldAlmostEqual, (plus.X-minus.X)/(2*h), 1e-3)
					test.That(t, jac.At(1, axis), test.ShouldAlmostEqual, (plus.Y-minus.Y)/(2*h), 1e-3)
				}
			}
		})
	}
}

func TestPinholeProject(t *testing.T) {
	model, err := NewModel(testConfigs()["pinhole"])
	test.That(t, err, test.ShouldBeNil)

	px := model.Project(r3.Vector{X: 1, Y: -0.5, Z: 2})
	test.That(t, px.X, test.ShouldAlmostEqual, 470, 1e-12)
	test.That(t, px.Y, test.ShouldAlmostEqual, 165, 1e-12)
	test.That(t, model.InImage(px), test.ShouldBeTrue)
	test.That(t, model.InImage(r2.Point{X: 640, Y: 10}), test.ShouldBeFalse)
	test.That(t, model.FocalLength(), test.ShouldAlmostEqual, 0.5*math.Sqrt(2*300*300), 1e-12)
	test.That(t, model.MaxIter(), test.ShouldEqual, DefaultMaxIter)
}

func TestFOVEdgeOfView(t *testing.T) {
	model, err := NewModel(testConfigs()["fov"])
	test.That(t, err, test.ShouldBeNil)
	// Distorted radii beyond pi/(2w) have no ray in front of the camera.
	rd := math.Pi/(2*0.93) + 0.01
	_, converged := model.UnProject(r2.Point{X: model.Cx() + rd*model.Fx(), Y: model.Cy()})
	test.That(t, converged, test.ShouldBeFalse)
}

func TestUnProjectIterationBound(t *testing.T) {
	for _, name := range []string{"equidistant", "radtan"} {
		t.Run(name, func(t *testing.T) {
			full, err := NewModel(testConfigs()[name])
			test.That(t, err, test.ShouldBeNil)
			cfg := testConfigs()[name]
			cfg.MaxIter = 1
			bounded, err := NewModel(cfg)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, bounded.MaxIter(), test.ShouldEqual, 1)

			px := r2.Point{X: full.Cx() + 150, Y: full.Cy() + 120}
			want, converged := full.UnProject(px)
			test.That(t, converged, test.ShouldBeTrue)

			got, converged := bounded.UnProject(px)
			test.That(t, converged, test.ShouldBeFalse)
			for _, v := range []float64{got.X, got.Y, got.Z} {
				test.That(t, math.IsNaN(v) || math.IsInf(v, 0), test.ShouldBeFalse)
			}
			// The best-effort ray is one step toward the answer.
			test.That(t, got.Z, test.ShouldEqual, 1)
			test.That(t, got.Sub(want).Norm(), test.ShouldBeLessThan, 0.1)
			test.That(t, got.Sub(want).Norm(), test.ShouldBeGreaterThan, 0)
		})
	}
}

func TestUnknownModel(t *testing.T) {
	var model Model
	px := model.Project(r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, math.IsNaN(px.X), test.ShouldBeTrue)
	test.That(t, math.IsNaN(px.Y), test.ShouldBeTrue)

	_, jac := model.ProjectJacobian(r3.Vector{X: 1, Y: 1, Z: 1})
	test.That(t, math.IsNaN(jac.At(1, 2)), test.ShouldBeTrue)

	_, converged := model.UnProject(r2.Point{X: 1, Y: 1})
	test.That(t, converged, test.ShouldBeFalse)
	test.That(t, model.Kind().String(), test.ShouldEqual, "unknown")
}

func TestInvalidConfiguration(t *testing.T) {
	valid := testConfigs()
	tests := []struct {
		name   string
		mutate func(*Config)
		base   string
	}{
		{"unknown model", func(c *Config) { c.Model = "fisheye_v9" }, "pinhole"},
		{"empty model", func(c *Config) { c.Model = "" }, "pinhole"},
		{"zero rows", func(c *Config) { c.Rows = 0 }, "pinhole"},
		{"negative fy", func(c *Config) { c.Fy = -1 }, "pinhole"},
		{"missing w", func(c *Config) { c.W = nil }, "fov"},
		{"zero w", func(c *Config) { c.W = floatPtr(0) }, "fov"},
		{"short k0123", func(c *Config) { c.K0123 = c.K0123[:3] }, "equidistant"},
		{"short p01k012", func(c *Config) { c.P01K012 = c.P01K012[:4] }, "radtan"},
		{"negative max_iter", func(c *Config) { c.MaxIter = -2 }, "equidistant"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *valid[tc.base]
			tc.mutate(&cfg)
			model, err := NewModel(&cfg)
			test.That(t, model, test.ShouldBeNil)
			test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)
		})
	}

	_, err := NewModel(nil)
	test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)

	_, err = NewModel(&Config{Model: "fisheye_v9", Rows: 10, Cols: 10, Fx: 1, Fy: 1})
	test.That(t, err.Error(), test.ShouldContainSubstring, "fisheye_v9")
}

func TestDecodeConfig(t *testing.T) {
	attrs := map[string]interface{}{
		"model":    "equidistant",
		"rows":     512.0,
		"cols":     512.0,
		"fx":       190.97,
		"fy":       190.97,
		"cx":       254.93,
		"cy":       256.89,
		"k0123":    []interface{}{0.0034, 0.0007, -0.002, 0.0002},
		"max_iter": 20.0,
	}
	cfg, err := DecodeConfig(attrs)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Rows, test.ShouldEqual, 512)
	test.That(t, cfg.K0123, test.ShouldResemble, []float64{0.0034, 0.0007, -0.002, 0.0002})
	test.That(t, cfg.W, test.ShouldBeNil)

	model, err := NewModel(cfg)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.MaxIter(), test.ShouldEqual, 20)

	_, err = DecodeConfig(map[string]interface{}{"model": "fov", "w": "wide"})
	test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)

	_, err = DecodeConfig(nil)
	test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)
}
