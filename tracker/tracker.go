// Package tracker follows image corners from frame to frame and assigns every tracked corner a
// persistent identifier.
package tracker

import (
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/vio/logging"
)

// Observation is the pixel location of a tracked feature in the current frame.
type Observation struct {
	ID    int
	Pixel r2.Point
}

// Tracker produces the feature observations of a frame.
type Tracker interface {
	Track(ts time.Duration, img image.Image) ([]Observation, error)
}

type trackedFeature struct {
	id   int
	pt   image.Point
	desc Descriptor
}

// FeatureTracker detects FAST corners, describes them with BRIEF, and matches them against the
// previous frame. Features that fail to match are dropped and never come back under the same ID.
type FeatureTracker struct {
	cfg    *Config
	logger logging.Logger
	pairs  *samplePairs

	mu       sync.Mutex
	nextID   int
	frames   int
	lastTime time.Duration
	features []trackedFeature
}

// NewFeatureTracker validates cfg, filling unset fields with defaults. A nil cfg means all
// defaults.
func NewFeatureTracker(cfg *Config, logger logging.Logger) (*FeatureTracker, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	} else {
		cfgCopy := *cfg
		cfg = &cfgCopy
		cfg.withDefaults()
	}
	if err := cfg.Validate("tracker"); err != nil {
		return nil, err
	}
	return &FeatureTracker{
		cfg:    cfg,
		logger: logger,
		pairs:  newSamplePairs(cfg.DescriptorBits, cfg.PatchSize),
	}, nil
}

// Track processes the frame taken at ts and returns the observations in it: continuing features
// keep their ID, new corners get fresh IDs.
func (ft *FeatureTracker) Track(ts time.Duration, img image.Image) ([]Observation, error) {
	if img == nil {
		return nil, errors.New("no image to track")
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if ft.frames > 0 && ts <= ft.lastTime {
		return nil, errors.Errorf("frame timestamp %v is not after the previous frame %v", ts, ft.lastTime)
	}

	gray := toGray(img)
	blurred := gray
	if ft.cfg.BlurSigma > 0 {
		blurred = toGray(imaging.Blur(gray, ft.cfg.BlurSigma))
	}

	corners := detectCorners(gray, ft.cfg, ft.cfg.PatchSize/2+1)
	pts := lo.Map(corners, func(c corner, _ int) image.Point { return c.pt })
	descs := computeDescriptors(blurred, ft.pairs, pts)

	prevPts := lo.Map(ft.features, func(f trackedFeature, _ int) image.Point { return f.pt })
	prevDescs := lo.Map(ft.features, func(f trackedFeature, _ int) Descriptor { return f.desc })
	matches := matchDescriptors(prevDescs, descs, prevPts, pts, ft.cfg)

	next := make([]trackedFeature, 0, ft.cfg.MaxCorners)
	used := make([]bool, len(pts))
	for _, m := range matches {
		used[m.cur] = true
		next = append(next, trackedFeature{id: ft.features[m.prev].id, pt: pts[m.cur], desc: descs[m.cur]})
	}
	continued := len(next)

	// New corners fill the remaining budget.
	for i, pt := range pts {
		if len(next) >= ft.cfg.MaxCorners {
			break
		}
		if used[i] {
			continue
		}
		tooClose := lo.ContainsBy(next[:continued], func(f trackedFeature) bool {
			return distance(f.pt, pt) < ft.cfg.MinDistance
		})
		if tooClose {
			continue
		}
		next = append(next, trackedFeature{id: ft.nextID, pt: pt, desc: descs[i]})
		ft.nextID++
	}

	ft.logger.Debugw("tracked frame", "ts", ts, "corners", len(pts), "continued", continued,
		"lost", len(ft.features)-continued, "new", len(next)-continued)

	ft.features = next
	ft.frames++
	ft.lastTime = ts

	return observations(next), nil
}

// Last returns the observations of the most recent frame.
func (ft *FeatureTracker) Last() []Observation {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return observations(ft.features)
}

func observations(features []trackedFeature) []Observation {
	return lo.Map(features, func(f trackedFeature, _ int) Observation {
		return Observation{ID: f.id, Pixel: r2.Point{X: float64(f.pt.X), Y: float64(f.pt.Y)}}
	})
}

// Reset forgets every tracked feature. IDs are never reused.
func (ft *FeatureTracker) Reset() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.features = nil
	ft.frames = 0
}

// toGray converts any image to an 8 bit gray image with origin (0, 0).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Bounds().Min == (image.Point{}) {
		return g
	}
	nrgba := imaging.Grayscale(img)
	b := nrgba.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := nrgba.Pix[y*nrgba.Stride:]
		for x := 0; x < b.Dx(); x++ {
			gray.Pix[y*gray.Stride+x] = row[4*x]
		}
	}
	return gray
}
