package estimator

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/vio/spatialmath"
)

// setBlock copies the 3x3 matrix m into dst at (row, col), scaled by s.
func setBlock(dst *mat.Dense, row, col int, m mat.Matrix, s float64) {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			dst.Set(row+i, col+j, s*m.At(i, j))
		}
	}
}

// propagate integrates the nominal state over dt seconds holding gyro and accel constant, and
// propagates the covariance with the discretized error dynamics
//
//	d(dtheta)/dt = -R dbg
//	d(dp)/dt     = dv
//	d(dv)/dt     = -[R (f - ba)]x dtheta - R dba
//
// with random walk biases and static features. The error convention is R = Exp(dtheta) * R_hat.
func (e *Estimator) propagate(st *state, gyro, accel r3.Vector, dt float64) {
	if dt <= 0 {
		return
	}
	rot := spatialmath.QuatToRotationMatrix(st.rsb)
	omega := gyro.Sub(st.bg)
	f := accel.Sub(st.ba)
	rf := spatialmath.MulR3(rot, f)
	aw := rf.Add(e.gravity)

	n := st.dim()
	phi := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		phi.Set(i, i, 1)
	}
	setBlock(phi, idxRotation, idxGyroBias, rot, -dt)
	setBlock(phi, idxPosition, idxVelocity, eye3, dt)
	setBlock(phi, idxVelocity, idxRotation, spatialmath.Skew(rf), -dt)
	setBlock(phi, idxVelocity, idxAccelBias, rot, -dt)

	var tmp, cov mat.Dense
	tmp.Mul(phi, st.cov)
	cov.Mul(&tmp, phi.T())

	addDiag := func(start int, variance float64) {
		for i := start; i < start+3; i++ {
			cov.Set(i, i, cov.At(i, i)+variance)
		}
	}
	addDiag(idxRotation, e.cfg.GyroNoise*e.cfg.GyroNoise*dt)
	addDiag(idxVelocity, e.cfg.AccelNoise*e.cfg.AccelNoise*dt)
	addDiag(idxGyroBias, e.cfg.GyroBiasNoise*e.cfg.GyroBiasNoise*dt)
	addDiag(idxAccelBias, e.cfg.AccelBiasNoise*e.cfg.AccelBiasNoise*dt)
	symmetrize(&cov)
	st.cov = &cov

	st.tsb = st.tsb.Add(st.vsb.Mul(dt)).Add(aw.Mul(0.5 * dt * dt))
	st.vsb = st.vsb.Add(aw.Mul(dt))
	st.rsb = spatialmath.Normalize(quat.Mul(st.rsb, spatialmath.ExpMap(omega.Mul(dt))))
}

var eye3 = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
