package inject

import (
	"image"
	"time"

	"go.viam.com/vio/tracker"
)

// Tracker is an injected feature tracker.
type Tracker struct {
	tracker.Tracker
	TrackFunc func(ts time.Duration, img image.Image) ([]tracker.Observation, error)
}

// Track calls the injected Track or the real version.
func (t *Tracker) Track(ts time.Duration, img image.Image) ([]tracker.Observation, error) {
	if t.TrackFunc == nil {
		return t.Tracker.Track(ts, img)
	}
	return t.TrackFunc(ts, img)
}
