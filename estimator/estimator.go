// Package estimator implements a monocular visual-inertial error-state EKF. Inertial samples
// propagate the filter, images update it through features tracked across frames and kept in the
// state as inverse depths anchored at their first observation.
package estimator

import (
	"image"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"go.viam.com/vio/camera"
	"go.viam.com/vio/logging"
	"go.viam.com/vio/spatialmath"
	"go.viam.com/vio/tracker"
)

// Status is the phase of the filter.
type Status int

// The filter starts uninitialized and alternates between propagating and updating once the first
// inertial sample arrived.
const (
	StatusUninitialized Status = iota
	StatusPropagating
	StatusUpdating
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusPropagating:
		return "propagating"
	case StatusUpdating:
		return "updating"
	default:
		return "unknown"
	}
}

// Stats counts what the filter did with its input.
type Stats struct {
	InertialSamples int
	// StaleInertial samples were not after the state time and were dropped.
	StaleInertial int
	VisualFrames  int
	// StaleVisual frames were older than the state time or arrived before initialization.
	StaleVisual     int
	TrackerFailures int
	Updates         int

	FeaturesAdded    int
	FeaturesRejected int
	FeaturesLost     int
	FeaturesEvicted  int
}

// FeatureInfo describes an in-state feature.
type FeatureInfo struct {
	ID           int
	Position     r3.Vector
	InverseDepth float64
	// Age in frames since the feature entered the state.
	Age int
}

// snapshot is what readers see: the state as of the end of the last completed step.
type snapshot struct {
	st     *state
	gsb    spatialmath.Pose
	gsc    spatialmath.Pose
	status Status
	stats  Stats
	frame  int
}

// Estimator fuses inertial samples and images into a pose estimate. InertialMeas and VisualMeas
// must be fed in timestamp order by a single caller; the accessors may be called from any
// goroutine and never observe a partially applied step.
type Estimator struct {
	cfg      *Config
	model    *camera.Model
	tracker  tracker.Tracker
	gbc      spatialmath.Pose
	gravity  r3.Vector
	chi2Gate float64
	logger   logging.Logger
	// staleLog thins out the logs of dropped measurements, which come in bursts.
	staleLog rate.Sometimes

	stepMu    sync.Mutex
	st        *state
	status    Status
	stats     Stats
	frame     int
	lastGyro  r3.Vector
	lastAccel r3.Vector
	pending   map[int]*pendingTrack
	ignored   map[int]bool

	snapMu sync.RWMutex
	snap   snapshot
}

// New returns an uninitialized estimator. cfg is copied and its unset fields filled with
// defaults; the camera section of cfg is not used, model is.
func New(cfg *Config, model *camera.Model, tr tracker.Tracker, logger logging.Logger) (*Estimator, error) {
	if cfg == nil {
		return nil, errors.New("estimator config is required")
	}
	if model == nil || model.Kind() == camera.KindUnknown {
		return nil, errors.Wrap(camera.ErrInvalidConfiguration, "estimator needs a valid camera model")
	}
	if tr == nil {
		return nil, errors.New("estimator needs a feature tracker")
	}
	cfgCopy := *cfg
	cfgCopy.withDefaults()
	if err := cfgCopy.Validate("estimator"); err != nil {
		return nil, err
	}

	e := &Estimator{
		cfg:      &cfgCopy,
		model:    model,
		tracker:  tr,
		gbc:      spatialmath.NewPoseFromRotationVector(vec3(cfgCopy.Tbc), vec3(cfgCopy.Rbc)),
		gravity:  r3.Vector{Z: -cfgCopy.Gravity},
		chi2Gate: distuv.ChiSquared{K: 2}.Quantile(cfgCopy.OutlierProbability),
		logger:   logger,
		staleLog: rate.Sometimes{First: 5, Interval: time.Second},
		pending:  map[int]*pendingTrack{},
		ignored:  map[int]bool{},
	}
	gsb := e.initialPose()
	e.snap = snapshot{gsb: gsb, gsc: spatialmath.Compose(gsb, e.gbc)}
	logger.Debugw("estimator created", "camera", model.Kind().String(), "chi2_gate", e.chi2Gate,
		"max_features", cfgCopy.MaxFeatures)
	return e, nil
}

func (e *Estimator) initialPose() spatialmath.Pose {
	return spatialmath.NewPoseFromRotationVector(vec3(e.cfg.Tsb), vec3(e.cfg.Rsb))
}

// initialize builds the state from the configured priors and the first inertial sample.
func (e *Estimator) initialize(ts time.Duration, accel r3.Vector) {
	rsb := e.initialPose().Orientation()
	if e.cfg.AlignGravity && accel.Norm() > 0 {
		rsb = spatialmath.QuatFromTwoVectors(accel, r3.Vector{Z: 1})
	}
	cov := mat.NewDense(motionDim, motionDim, nil)
	for _, block := range []struct {
		idx int
		std float64
	}{
		{idxRotation, e.cfg.InitStdRotation},
		{idxPosition, e.cfg.InitStdPosition},
		{idxVelocity, e.cfg.InitStdVelocity},
		{idxGyroBias, e.cfg.InitStdGyroBias},
		{idxAccelBias, e.cfg.InitStdAccelBias},
	} {
		for i := block.idx; i < block.idx+3; i++ {
			cov.Set(i, i, block.std*block.std)
		}
	}
	e.st = &state{
		ts:  ts,
		rsb: rsb,
		tsb: vec3(e.cfg.Tsb),
		vsb: vec3(e.cfg.Vsb),
		bg:  vec3(e.cfg.Bg),
		ba:  vec3(e.cfg.Ba),
		cov: cov,
	}
	e.logger.Infow("filter initialized", "ts", ts, "gsb", e.st.gsb().String())
}

// InertialMeas propagates the filter to ts. The interval since the previous sample is integrated
// with the previous sample held constant. Samples not strictly after the state time are dropped.
func (e *Estimator) InertialMeas(ts time.Duration, gyro, accel r3.Vector) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	defer e.commit()

	e.stats.InertialSamples++
	if !r3Finite(gyro) || !r3Finite(accel) {
		e.stats.StaleInertial++
		e.logger.Warnw("dropping non-finite inertial sample", "ts", ts)
		return
	}
	if e.st == nil {
		e.initialize(ts, accel)
		e.lastGyro, e.lastAccel = gyro, accel
		e.status = StatusPropagating
		return
	}
	if ts <= e.st.ts {
		e.stats.StaleInertial++
		e.staleLog.Do(func() {
			e.logger.Debugw("dropping stale inertial sample", "ts", ts, "state_ts", e.st.ts,
				"dropped", e.stats.StaleInertial)
		})
		return
	}

	e.propagate(e.st, e.lastGyro, e.lastAccel, (ts - e.st.ts).Seconds())
	e.st.ts = ts
	e.lastGyro, e.lastAccel = gyro, accel
	e.status = StatusPropagating
}

// VisualMeas propagates the filter to ts, tracks the features of img and updates the filter
// with them. A tracker failure only skips the update.
func (e *Estimator) VisualMeas(ts time.Duration, img image.Image) {
	e.stepMu.Lock()
	defer e.stepMu.Unlock()
	defer e.commit()

	if e.st == nil || ts < e.st.ts {
		e.stats.StaleVisual++
		e.staleLog.Do(func() {
			e.logger.Debugw("dropping visual frame", "ts", ts, "initialized", e.st != nil,
				"dropped", e.stats.StaleVisual)
		})
		return
	}
	e.stats.VisualFrames++
	e.frame++
	e.propagate(e.st, e.lastGyro, e.lastAccel, (ts - e.st.ts).Seconds())
	e.st.ts = ts
	e.status = StatusPropagating

	obs, err := e.tracker.Track(ts, img)
	if err != nil {
		e.stats.TrackerFailures++
		e.logger.Warnw("feature tracking failed; skipping visual update", "ts", ts, "error", err)
		return
	}
	e.processObservations(obs)
}

func (e *Estimator) processObservations(obs []tracker.Observation) {
	st := e.st
	pixels := make(map[int]r2.Point, len(obs))
	for _, o := range obs {
		pixels[o.ID] = o.Pixel
	}

	lost := make(map[int]bool)
	for _, f := range st.features {
		if _, ok := pixels[f.id]; !ok {
			lost[f.id] = true
		}
	}
	e.stats.FeaturesLost += len(st.removeFeatures(lost))

	var inliers []*measurement
	rejected := make(map[int]bool)
	for i, f := range st.features {
		predicted, h, err := e.predict(st, i)
		if err != nil {
			e.logger.Debugw("rejecting feature", "id", f.id, "error", err)
			rejected[f.id] = true
			continue
		}
		m := &measurement{id: f.id, h: h, residual: pixels[f.id].Sub(predicted)}
		if !e.gate(m, st.cov) {
			e.logger.Debugw("rejecting outlier feature", "id", f.id, "residual", m.residual.Norm())
			rejected[f.id] = true
			continue
		}
		inliers = append(inliers, m)
	}

	if len(inliers) > 0 {
		if err := e.update(st, inliers); err != nil {
			e.logger.Warnw("visual update failed", "ts", st.ts, "error", err)
		} else {
			e.stats.Updates++
			e.status = StatusUpdating
		}
	}

	// Rejected features take no part in the update; dropping them afterwards marginalizes them.
	for id := range rejected {
		e.ignored[id] = true
	}
	e.stats.FeaturesRejected += len(st.removeFeatures(rejected))
	e.evictStale(st)

	e.manageTracks(st, spatialmath.Compose(st.gsb(), e.gbc), obs)
}

// commit publishes the current state to readers.
func (e *Estimator) commit() {
	snap := snapshot{status: e.status, stats: e.stats, frame: e.frame}
	if e.st != nil {
		snap.st = e.st.clone()
		snap.gsb = e.st.gsb()
	} else {
		snap.gsb = e.initialPose()
	}
	snap.gsc = spatialmath.Compose(snap.gsb, e.gbc)

	e.snapMu.Lock()
	e.snap = snap
	e.snapMu.Unlock()
}

func (e *Estimator) snapshot() snapshot {
	e.snapMu.RLock()
	defer e.snapMu.RUnlock()
	return e.snap
}

// Ts returns the time of the state, zero before initialization.
func (e *Estimator) Ts() time.Duration {
	snap := e.snapshot()
	if snap.st == nil {
		return 0
	}
	return snap.st.ts
}

// Gsb returns the pose of the body in the reference frame.
func (e *Estimator) Gsb() spatialmath.Pose {
	return e.snapshot().gsb
}

// Gsc returns the pose of the camera in the reference frame.
func (e *Estimator) Gsc() spatialmath.Pose {
	return e.snapshot().gsc
}

// Velocity returns the body velocity in the reference frame.
func (e *Estimator) Velocity() r3.Vector {
	snap := e.snapshot()
	if snap.st == nil {
		return vec3(e.cfg.Vsb)
	}
	return snap.st.vsb
}

// Biases returns the gyroscope and accelerometer bias estimates.
func (e *Estimator) Biases() (r3.Vector, r3.Vector) {
	snap := e.snapshot()
	if snap.st == nil {
		return vec3(e.cfg.Bg), vec3(e.cfg.Ba)
	}
	return snap.st.bg, snap.st.ba
}

// Status returns the phase of the filter.
func (e *Estimator) Status() Status {
	return e.snapshot().status
}

// Covariance returns a copy of the error covariance, ordered rotation, position, velocity,
// gyroscope bias, accelerometer bias, then one inverse depth per feature in Features order.
// It is nil before initialization.
func (e *Estimator) Covariance() *mat.Dense {
	snap := e.snapshot()
	if snap.st == nil {
		return nil
	}
	return mat.DenseCopyOf(snap.st.cov)
}

// NumFeatures returns the number of features in the state.
func (e *Estimator) NumFeatures() int {
	snap := e.snapshot()
	if snap.st == nil {
		return 0
	}
	return len(snap.st.features)
}

// Features describes the features in the state.
func (e *Estimator) Features() []FeatureInfo {
	snap := e.snapshot()
	if snap.st == nil {
		return nil
	}
	out := make([]FeatureInfo, 0, len(snap.st.features))
	for _, f := range snap.st.features {
		out = append(out, FeatureInfo{
			ID:           f.id,
			Position:     f.worldPoint(),
			InverseDepth: f.rho,
			Age:          snap.frame - f.added,
		})
	}
	return out
}

// Stats returns the counters of the filter.
func (e *Estimator) Stats() Stats {
	return e.snapshot().stats
}

// PositionStd returns the standard deviation of each position component.
func (e *Estimator) PositionStd() r3.Vector {
	snap := e.snapshot()
	if snap.st == nil {
		return r3.Vector{}
	}
	c := snap.st.cov
	return r3.Vector{
		X: math.Sqrt(c.At(idxPosition, idxPosition)),
		Y: math.Sqrt(c.At(idxPosition+1, idxPosition+1)),
		Z: math.Sqrt(c.At(idxPosition+2, idxPosition+2)),
	}
}
