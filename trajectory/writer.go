// Package trajectory writes estimated poses as plain text, one pose per line:
//
//	<timestamp ns> tx ty tz rx ry rz
//
// where (rx, ry, rz) is the rotation vector (so(3) logarithm) of the orientation.
package trajectory

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/vio/spatialmath"
)

// Writer appends poses to an output and flushes after every line.
type Writer struct {
	mu     sync.Mutex
	w      *bufio.Writer
	closer io.Closer
	lines  int
}

// Create opens path for writing, creating its directory if needed. Failing here must stop the
// caller before it processes any measurement.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, errors.Wrap(err, "cannot create trajectory directory")
		}
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open trajectory output")
	}
	return &Writer{w: bufio.NewWriter(f), closer: f}, nil
}

// NewWriter writes to w. Closing the Writer does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write appends one pose.
func (tw *Writer) Write(ts time.Duration, pose spatialmath.Pose) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if _, err := tw.w.WriteString(FormatLine(ts, pose)); err != nil {
		return err
	}
	if err := tw.w.WriteByte('\n'); err != nil {
		return err
	}
	tw.lines++
	return tw.w.Flush()
}

// Lines returns the number of poses written.
func (tw *Writer) Lines() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.lines
}

// Close flushes and closes the output.
func (tw *Writer) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	err := tw.w.Flush()
	if tw.closer != nil {
		err = multierr.Combine(err, tw.closer.Close())
		tw.closer = nil
	}
	return err
}

// FormatLine renders a pose without the trailing newline.
func FormatLine(ts time.Duration, pose spatialmath.Pose) string {
	p := pose.Point()
	r := pose.RotationLog()
	return fmt.Sprintf("%d %s %s %s %s %s %s", ts.Nanoseconds(),
		formatFloat(p.X), formatFloat(p.Y), formatFloat(p.Z),
		formatFloat(r.X), formatFloat(r.Y), formatFloat(r.Z))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseLine reads a line written by FormatLine.
func ParseLine(line string) (time.Duration, spatialmath.Pose, error) {
	fields := strings.Fields(line)
	if len(fields) != 7 {
		return 0, spatialmath.Pose{}, errors.Errorf("expected 7 fields, got %d", len(fields))
	}
	ns, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, spatialmath.Pose{}, errors.Wrap(err, "bad timestamp")
	}
	var values [6]float64
	for i := range values {
		if values[i], err = strconv.ParseFloat(fields[i+1], 64); err != nil {
			return 0, spatialmath.Pose{}, errors.Wrapf(err, "bad value in field %d", i+2)
		}
	}
	pose := spatialmath.NewPoseFromRotationVector(
		r3.Vector{X: values[0], Y: values[1], Z: values[2]},
		r3.Vector{X: values[3], Y: values[4], Z: values[5]})
	return time.Duration(ns), pose, nil
}
