// Package sensors defines the timestamped measurements fed to the estimator.
package sensors

import (
	"fmt"
	"image"
	"sort"
	"time"

	"github.com/golang/geo/r3"
)

// Kind discriminates the payload of a Record.
type Kind int

const (
	// KindUnknown is an unrecognized record.
	KindUnknown Kind = iota
	// KindImage is a camera frame.
	KindImage
	// KindInertial is an IMU sample.
	KindInertial
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindInertial:
		return "inertial"
	case KindUnknown:
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// InertialSample is one IMU reading. Gyro is the angular velocity in rad/s and Accel the specific
// force in m/s^2, both in the body frame. Timestamp is in nanoseconds.
type InertialSample struct {
	Timestamp time.Duration
	Gyro      r3.Vector
	Accel     r3.Vector
}

// VisualSample is one camera frame. Image may be nil until decoded from Path.
type VisualSample struct {
	Timestamp time.Duration
	Path      string
	Image     image.Image
}

// Record is a single entry of a data source. Only the field matching Kind is meaningful.
type Record struct {
	Kind     Kind
	Inertial InertialSample
	Visual   VisualSample
}

// NewInertialRecord wraps an IMU sample.
func NewInertialRecord(sample InertialSample) Record {
	return Record{Kind: KindInertial, Inertial: sample}
}

// NewVisualRecord wraps a camera frame.
func NewVisualRecord(sample VisualSample) Record {
	return Record{Kind: KindImage, Visual: sample}
}

// Timestamp returns the timestamp of the payload, or zero for an unknown record.
func (r Record) Timestamp() time.Duration {
	switch r.Kind {
	case KindInertial:
		return r.Inertial.Timestamp
	case KindImage:
		return r.Visual.Timestamp
	case KindUnknown:
	}
	return 0
}

// SortRecords orders records by timestamp. On equal timestamps inertial records come first so
// the filter has propagated to a frame's time before it is used.
func SortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		ti, tj := records[i].Timestamp(), records[j].Timestamp()
		if ti != tj {
			return ti < tj
		}
		return records[i].Kind == KindInertial && records[j].Kind != KindInertial
	})
}

// Source is a finite, randomly accessible sequence of records ordered by timestamp.
type Source interface {
	Size() int
	Get(i int) (Record, error)
	// Image returns the decoded frame of a visual sample.
	Image(sample VisualSample) (image.Image, error)
}
