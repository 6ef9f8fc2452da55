package estimator

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/vio/spatialmath"
)

// Error state layout. Every in-state feature adds one inverse depth after these.
const (
	idxRotation  = 0
	idxPosition  = 3
	idxVelocity  = 6
	idxGyroBias  = 9
	idxAccelBias = 12
	motionDim    = 15
)

// feature is a point anchored at the camera pose of its first observation and parametrized by
// its inverse depth along the anchor bearing.
type feature struct {
	id      int
	anchor  spatialmath.Pose // gsc at the first observation
	bearing r3.Vector        // z = 1 ray in the anchor camera
	rho     float64
	added   int // frame at which the feature entered the state
}

// worldPoint returns the feature position in the reference frame.
func (f *feature) worldPoint() r3.Vector {
	return f.anchor.Transform(f.bearing.Mul(1 / f.rho))
}

// state is the nominal state plus the error covariance, sized motionDim + len(features).
type state struct {
	ts  time.Duration
	rsb quat.Number
	tsb r3.Vector
	vsb r3.Vector
	bg  r3.Vector
	ba  r3.Vector

	features []*feature
	cov      *mat.Dense
}

func (st *state) dim() int {
	return motionDim + len(st.features)
}

func (st *state) gsb() spatialmath.Pose {
	return spatialmath.NewPose(st.tsb, st.rsb)
}

func (st *state) clone() *state {
	out := *st
	out.features = make([]*feature, len(st.features))
	for i, f := range st.features {
		fCopy := *f
		out.features[i] = &fCopy
	}
	out.cov = mat.DenseCopyOf(st.cov)
	return &out
}

// symmetrize replaces m with (m + m^T) / 2.
func symmetrize(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			m.Set(i, j, v)
			m.Set(j, i, v)
		}
	}
}

// augmentCovariance appends one uncorrelated dimension with the given variance.
func augmentCovariance(cov *mat.Dense, variance float64) *mat.Dense {
	n, _ := cov.Dims()
	out := mat.NewDense(n+1, n+1, nil)
	out.Slice(0, n, 0, n).(*mat.Dense).Copy(cov)
	out.Set(n, n, variance)
	return out
}

// removeDimensions drops the rows and columns listed in remove.
func removeDimensions(cov *mat.Dense, remove map[int]bool) *mat.Dense {
	n, _ := cov.Dims()
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if !remove[i] {
			keep = append(keep, i)
		}
	}
	out := mat.NewDense(len(keep), len(keep), nil)
	for i, ki := range keep {
		for j, kj := range keep {
			out.Set(i, j, cov.At(ki, kj))
		}
	}
	return out
}

// removeFeatures drops the features whose IDs are in ids, together with their covariance rows
// and columns. It returns the removed features.
func (st *state) removeFeatures(ids map[int]bool) []*feature {
	if len(ids) == 0 {
		return nil
	}
	remove := make(map[int]bool, len(ids))
	kept := st.features[:0:0]
	var removed []*feature
	for i, f := range st.features {
		if ids[f.id] {
			remove[motionDim+i] = true
			removed = append(removed, f)
			continue
		}
		kept = append(kept, f)
	}
	if len(removed) == 0 {
		return nil
	}
	st.features = kept
	st.cov = removeDimensions(st.cov, remove)
	return removed
}

// featureIndex returns the position of the feature with the given ID, or -1.
func (st *state) featureIndex(id int) int {
	for i, f := range st.features {
		if f.id == id {
			return i
		}
	}
	return -1
}
