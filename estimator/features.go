package estimator

import (
	"math"
	"slices"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/vio/spatialmath"
	"go.viam.com/vio/tracker"
)

// pendingTrack is a tracked feature that has not been triangulated yet. Only the first and the
// latest observations are kept.
type pendingTrack struct {
	anchorRay    r3.Vector
	anchorPose   spatialmath.Pose // gsc at the first observation
	latestRay    r3.Vector
	latestPose   spatialmath.Pose
	observations int
}

// parallax returns the angle between the two bearings of the track in the reference frame.
func (t *pendingTrack) parallax() float64 {
	a := spatialmath.RotateVector(t.anchorPose.Orientation(), t.anchorRay).Normalize()
	b := spatialmath.RotateVector(t.latestPose.Orientation(), t.latestRay).Normalize()
	return math.Atan2(a.Cross(b).Norm(), a.Dot(b))
}

// triangulate intersects two bearing rays (z = 1, in their camera frames) observed from camera
// poses g1 and g2 with the linear method: stack [x]x P X = 0 for both views and take the right
// singular vector of the smallest singular value.
func triangulate(g1, g2 spatialmath.Pose, x1, x2 r3.Vector) (r3.Vector, error) {
	rows := make([]*mat.Dense, 0, 2)
	for _, view := range []struct {
		g spatialmath.Pose
		x r3.Vector
	}{{g1, x1}, {g2, x2}} {
		// P = [R^T | -R^T T] maps reference points into the camera.
		inv := view.g.Invert()
		rot := inv.RotationMatrix()
		t := inv.Point()
		p := mat.NewDense(3, 4, []float64{
			rot.At(0, 0), rot.At(0, 1), rot.At(0, 2), t.X,
			rot.At(1, 0), rot.At(1, 1), rot.At(1, 2), t.Y,
			rot.At(2, 0), rot.At(2, 1), rot.At(2, 2), t.Z,
		})
		var crossP mat.Dense
		crossP.Mul(spatialmath.Skew(view.x), p)
		rows = append(rows, &crossP)
	}
	var a mat.Dense
	a.Stack(rows[0], rows[1])

	var svd mat.SVD
	if ok := svd.Factorize(&a, mat.SVDFull); !ok {
		return r3.Vector{}, errors.New("failed to factorize triangulation system")
	}
	const rcond = 1e-15
	if svd.Rank(rcond) == 0 {
		return r3.Vector{}, errors.New("zero rank triangulation system")
	}
	var v mat.Dense
	svd.VTo(&v)
	w := v.At(3, 3)
	if math.Abs(w) < 1e-12 {
		return r3.Vector{}, errors.New("triangulated point at infinity")
	}
	return r3.Vector{X: v.At(0, 3) / w, Y: v.At(1, 3) / w, Z: v.At(2, 3) / w}, nil
}

// manageTracks runs the feature lifecycle after the update of a frame: it advances pending
// tracks with this frame's observations, drops the ones that were not observed, and moves
// confirmed tracks into the state while there is room.
func (e *Estimator) manageTracks(st *state, gsc spatialmath.Pose, obs []tracker.Observation) {
	seen := make(map[int]bool, len(obs))
	for _, o := range obs {
		seen[o.ID] = true
	}
	for id := range e.pending {
		if !seen[id] {
			delete(e.pending, id)
		}
	}
	for id := range e.ignored {
		if !seen[id] {
			delete(e.ignored, id)
		}
	}

	for _, o := range obs {
		if e.ignored[o.ID] || st.featureIndex(o.ID) >= 0 {
			continue
		}
		ray, converged := e.model.UnProject(o.Pixel)
		if !converged || !r3Finite(ray) {
			continue
		}
		track, ok := e.pending[o.ID]
		if !ok {
			e.pending[o.ID] = &pendingTrack{
				anchorRay:    ray,
				anchorPose:   gsc,
				latestRay:    ray,
				latestPose:   gsc,
				observations: 1,
			}
			continue
		}
		track.latestRay, track.latestPose = ray, gsc
		track.observations++
	}

	minParallax := e.cfg.MinParallax / e.model.FocalLength()
	// Map order is random; confirm in ID order so runs are reproducible.
	ids := lo.Keys(e.pending)
	slices.Sort(ids)
	for _, id := range ids {
		if len(st.features) >= e.cfg.MaxFeatures {
			break
		}
		track := e.pending[id]
		if track.observations < e.cfg.MinTrackLength || track.parallax() < minParallax {
			continue
		}
		pw, err := triangulate(track.anchorPose, track.latestPose, track.anchorRay, track.latestRay)
		if err != nil {
			e.logger.Debugw("triangulation failed", "id", id, "error", err)
			delete(e.pending, id)
			continue
		}
		depth := track.anchorPose.Invert().Transform(pw).Z
		latestDepth := track.latestPose.Invert().Transform(pw).Z
		if latestDepth <= 0 || depth < e.cfg.MinDepth || depth > e.cfg.MaxDepth {
			e.logger.Debugw("rejecting triangulated depth", "id", id, "depth", depth, "latest_depth", latestDepth)
			delete(e.pending, id)
			continue
		}

		st.features = append(st.features, &feature{
			id:      id,
			anchor:  track.anchorPose,
			bearing: track.anchorRay,
			rho:     1 / depth,
			added:   e.frame,
		})
		st.cov = augmentCovariance(st.cov, e.cfg.InitInverseDepthStd*e.cfg.InitInverseDepthStd)
		delete(e.pending, id)
		e.stats.FeaturesAdded++
		e.logger.Debugw("feature added", "id", id, "depth", depth, "features", len(st.features))
	}
}

// evictStale removes features older than max_feature_age frames or whose inverse depth left
// the allowed range.
func (e *Estimator) evictStale(st *state) {
	evict := make(map[int]bool)
	for _, f := range st.features {
		switch {
		case e.frame-f.added > e.cfg.MaxFeatureAge:
			evict[f.id] = true
		case !e.inDepthRange(f.rho):
			evict[f.id] = true
		}
	}
	e.stats.FeaturesEvicted += len(st.removeFeatures(evict))
}
