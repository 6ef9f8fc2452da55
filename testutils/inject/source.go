package inject

import (
	"image"

	"go.viam.com/vio/sensors"
)

// Source is an injected data source.
type Source struct {
	sensors.Source
	SizeFunc  func() int
	GetFunc   func(i int) (sensors.Record, error)
	ImageFunc func(sample sensors.VisualSample) (image.Image, error)
}

// Size calls the injected Size or the real version.
func (s *Source) Size() int {
	if s.SizeFunc == nil {
		return s.Source.Size()
	}
	return s.SizeFunc()
}

// Get calls the injected Get or the real version.
func (s *Source) Get(i int) (sensors.Record, error) {
	if s.GetFunc == nil {
		return s.Source.Get(i)
	}
	return s.GetFunc(i)
}

// Image calls the injected Image or the real version.
func (s *Source) Image(sample sensors.VisualSample) (image.Image, error) {
	if s.ImageFunc == nil {
		return s.Source.Image(sample)
	}
	return s.ImageFunc(sample)
}
