package estimator

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/vio/spatialmath"
)

// Points closer than this to the camera plane (meters) are not projected.
const minProjectionDepth = 1e-3

// measurement is the linearized observation of one in-state feature.
type measurement struct {
	id       int
	h        *mat.Dense // 2 x dim
	residual r2.Point
}

// errBehindCamera is returned for features that cannot be projected into the current camera.
var errBehindCamera = errors.New("feature is behind the camera")

// predict projects feature index i of st into the current camera and returns the predicted pixel
// and the 2 x dim Jacobian of that pixel with respect to the error state.
func (e *Estimator) predict(st *state, i int) (r2.Point, *mat.Dense, error) {
	f := st.features[i]
	rsbT := spatialmath.QuatToRotationMatrix(st.rsb).T()
	rbcT := e.gbc.RotationMatrix().T()

	pw := f.worldPoint()
	d := pw.Sub(st.tsb)
	pb := spatialmath.MulR3(rsbT, d)
	pc := spatialmath.MulR3(rbcT, pb.Sub(e.gbc.Point()))
	if pc.Z < minProjectionDepth {
		return r2.Point{}, nil, errBehindCamera
	}

	px, jProj := e.model.ProjectJacobian(pc)

	// d(pc)/d(pb) = Rbc^T, so d(pixel)/d(pb) = jProj * Rbc^T.
	var jPb mat.Dense
	jPb.Mul(jProj, rbcT)

	// d(pb)/d(dtheta) = Rsb^T [pw - Tsb]x, d(pb)/d(dp) = -Rsb^T.
	var dTheta, dRho mat.Dense
	dTheta.Mul(rsbT, spatialmath.Skew(d))
	dRho.Mul(rsbT, spatialmath.R3ToVec(spatialmath.RotateVector(f.anchor.Orientation(), f.bearing).Mul(-1/(f.rho*f.rho))))

	h := mat.NewDense(2, st.dim(), nil)
	var block mat.Dense
	block.Mul(&jPb, &dTheta)
	h.Slice(0, 2, idxRotation, idxRotation+3).(*mat.Dense).Copy(&block)
	block.Reset()
	block.Mul(&jPb, rsbT)
	block.Scale(-1, &block)
	h.Slice(0, 2, idxPosition, idxPosition+3).(*mat.Dense).Copy(&block)
	block.Reset()
	block.Mul(&jPb, &dRho)
	h.Set(0, motionDim+i, block.At(0, 0))
	h.Set(1, motionDim+i, block.At(1, 0))
	return px, h, nil
}

// innovationCovariance returns H P H^T + sigma^2 I.
func innovationCovariance(h, cov *mat.Dense, variance float64) *mat.Dense {
	var hp, s mat.Dense
	hp.Mul(h, cov)
	s.Mul(&hp, h.T())
	r, _ := s.Dims()
	for i := 0; i < r; i++ {
		s.Set(i, i, s.At(i, i)+variance)
	}
	symmetrize(&s)
	return &s
}

// mahalanobis2 returns r^T S^-1 r for a 2-vector residual.
func mahalanobis2(s *mat.Dense, res r2.Point) (float64, bool) {
	a, b, c, d := s.At(0, 0), s.At(0, 1), s.At(1, 0), s.At(1, 1)
	det := a*d - b*c
	if det <= 0 {
		return 0, false
	}
	return (d*res.X*res.X - (b+c)*res.X*res.Y + a*res.Y*res.Y) / det, true
}

// gate reports whether the measurement passes the reprojection and chi-square tests.
func (e *Estimator) gate(m *measurement, cov *mat.Dense) bool {
	if m.residual.Norm() > e.cfg.MaxReprojectionError {
		return false
	}
	variance := e.cfg.MeasurementStd * e.cfg.MeasurementStd
	dist, ok := mahalanobis2(innovationCovariance(m.h, cov, variance), m.residual)
	return ok && dist <= e.chi2Gate
}

// update applies the stacked EKF update of the given inlier measurements to st.
func (e *Estimator) update(st *state, inliers []*measurement) error {
	n := st.dim()
	rows := 2 * len(inliers)
	h := mat.NewDense(rows, n, nil)
	res := mat.NewVecDense(rows, nil)
	norms := make([]float64, len(inliers))
	for k, m := range inliers {
		h.Slice(2*k, 2*k+2, 0, n).(*mat.Dense).Copy(m.h)
		res.SetVec(2*k, m.residual.X)
		res.SetVec(2*k+1, m.residual.Y)
		norms[k] = m.residual.Norm()
	}

	variance := e.cfg.MeasurementStd * e.cfg.MeasurementStd
	s := innovationCovariance(h, st.cov, variance)
	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(rows, s.RawMatrix().Data)); !ok {
		return errors.New("innovation covariance is not positive definite")
	}

	// K = P H^T S^-1, computed as (S^-1 H P)^T since P is symmetric.
	var hp, sInvHP mat.Dense
	hp.Mul(h, st.cov)
	if err := chol.SolveTo(&sInvHP, &hp); err != nil {
		return errors.Wrap(err, "solving for the gain")
	}
	gain := mat.DenseCopyOf(sInvHP.T())

	var dx mat.VecDense
	dx.MulVec(gain, res)

	// Joseph form: (I - K H) P (I - K H)^T + K R K^T.
	ikh := mat.NewDense(n, n, nil)
	ikh.Mul(gain, h)
	ikh.Scale(-1, ikh)
	for i := 0; i < n; i++ {
		ikh.Set(i, i, ikh.At(i, i)+1)
	}
	var tmp, cov, kkt mat.Dense
	tmp.Mul(ikh, st.cov)
	cov.Mul(&tmp, ikh.T())
	kkt.Mul(gain, gain.T())
	kkt.Scale(variance, &kkt)
	cov.Add(&cov, &kkt)
	symmetrize(&cov)
	st.cov = &cov

	e.applyCorrection(st, &dx)

	mean, _ := stats.Mean(norms)
	median, _ := stats.Median(norms)
	e.logger.Debugw("visual update", "ts", st.ts, "inliers", len(inliers),
		"residual_mean", mean, "residual_median", median, "correction", mat.Norm(&dx, 2))
	return nil
}

// applyCorrection folds the error state estimate into the nominal state.
func (e *Estimator) applyCorrection(st *state, dx *mat.VecDense) {
	dTheta := spatialmath.VecToR3(dx, idxRotation)
	st.rsb = spatialmath.Normalize(quat.Mul(spatialmath.ExpMap(dTheta), st.rsb))
	st.tsb = st.tsb.Add(spatialmath.VecToR3(dx, idxPosition))
	st.vsb = st.vsb.Add(spatialmath.VecToR3(dx, idxVelocity))
	st.bg = st.bg.Add(spatialmath.VecToR3(dx, idxGyroBias))
	st.ba = st.ba.Add(spatialmath.VecToR3(dx, idxAccelBias))
	for i, f := range st.features {
		f.rho += dx.AtVec(motionDim + i)
	}
}

// inDepthRange reports whether an inverse depth corresponds to a depth in [min_depth, max_depth].
func (e *Estimator) inDepthRange(rho float64) bool {
	return !math.IsNaN(rho) && rho >= 1/e.cfg.MaxDepth && rho <= 1/e.cfg.MinDepth
}

func r3Finite(v r3.Vector) bool {
	return !math.IsNaN(v.X+v.Y+v.Z) && !math.IsInf(v.X+v.Y+v.Z, 0)
}
