// Package runner drives an estimator with the records of a data source and writes the resulting
// trajectory.
package runner

import (
	"context"
	"image"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/vio/logging"
	"go.viam.com/vio/sensors"
	"go.viam.com/vio/spatialmath"
)

// ErrUnknownRecord is returned when the data source produces a record of no known kind. The two
// measurement streams would drift apart if it were skipped, so the run stops.
var ErrUnknownRecord = errors.New("unknown sensor record")

// DefaultProgressInterval is the number of records between verbose progress logs.
const DefaultProgressInterval = 1000

// Estimator consumes measurements and exposes the latest pose.
type Estimator interface {
	InertialMeas(ts time.Duration, gyro, accel r3.Vector)
	VisualMeas(ts time.Duration, img image.Image)
	Ts() time.Duration
	Gsb() spatialmath.Pose
}

// Sink receives one pose per processed frame.
type Sink interface {
	Write(ts time.Duration, pose spatialmath.Pose) error
}

// Waiter blocks between frames until the run may go on. Returning false stops the run.
type Waiter interface {
	Wait(ctx context.Context) bool
}

// FrameSaver stores a debug rendering of a processed frame.
type FrameSaver func(frame int, img image.Image) error

// Options configure a Runner.
type Options struct {
	// Verbose logs progress every ProgressInterval records.
	Verbose          bool
	ProgressInterval int
	// Waiter, when set, is consulted after every frame.
	Waiter Waiter
	// SaveFrame, when set, is called after every frame.
	SaveFrame FrameSaver
}

// Summary describes a finished run.
type Summary struct {
	Records         int
	InertialSamples int
	Frames          int
	SkippedFrames   int
	// Interrupted is set when the context ended the run early.
	Interrupted bool
	// Stopped is set when the waiter ended the run early.
	Stopped bool
	Elapsed time.Duration
}

// Runner feeds a source through an estimator in record order.
type Runner struct {
	src    sensors.Source
	est    Estimator
	sink   Sink
	opts   Options
	logger logging.Logger
}

// New returns a runner. The sink must already be open.
func New(src sensors.Source, est Estimator, sink Sink, opts Options, logger logging.Logger) *Runner {
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	return &Runner{src: src, est: est, sink: sink, opts: opts, logger: logger}
}

// Run processes every record of the source. The context is checked once per record, never in
// the middle of a measurement.
func (r *Runner) Run(ctx context.Context) (summary Summary, err error) {
	start := time.Now()
	defer func() {
		summary.Elapsed = time.Since(start)
	}()

	size := r.src.Size()
	for i := 0; i < size; i++ {
		if ctx.Err() != nil {
			r.logger.Infow("run interrupted", "record", i, "records", size)
			summary.Interrupted = true
			return summary, nil
		}
		if r.opts.Verbose && i%r.opts.ProgressInterval == 0 {
			r.logger.Infof("%d/%d", i, size)
		}

		rec, err := r.src.Get(i)
		if err != nil {
			return summary, errors.Wrapf(err, "reading record %d", i)
		}
		summary.Records++

		switch rec.Kind {
		case sensors.KindInertial:
			r.est.InertialMeas(rec.Inertial.Timestamp, rec.Inertial.Gyro, rec.Inertial.Accel)
			summary.InertialSamples++
		case sensors.KindImage:
			keepGoing, err := r.processFrame(ctx, rec.Visual, &summary)
			if err != nil {
				return summary, err
			}
			if !keepGoing {
				if ctx.Err() != nil {
					summary.Interrupted = true
				} else {
					summary.Stopped = true
				}
				r.logger.Infow("run stopped", "record", i, "records", size)
				return summary, nil
			}
		case sensors.KindUnknown:
			return summary, errors.Wrapf(ErrUnknownRecord, "record %d", i)
		default:
			return summary, errors.Wrapf(ErrUnknownRecord, "record %d has kind %s", i, rec.Kind)
		}
	}
	return summary, nil
}

func (r *Runner) processFrame(ctx context.Context, sample sensors.VisualSample, summary *Summary) (bool, error) {
	img, err := r.src.Image(sample)
	if err != nil {
		summary.SkippedFrames++
		r.logger.Warnw("skipping frame", "ts", sample.Timestamp, "error", err)
		return true, nil
	}
	r.est.VisualMeas(sample.Timestamp, img)
	summary.Frames++

	if err := r.sink.Write(r.est.Ts(), r.est.Gsb()); err != nil {
		return false, errors.Wrap(err, "writing trajectory")
	}
	if r.opts.SaveFrame != nil {
		if err := r.opts.SaveFrame(summary.Frames, img); err != nil {
			r.logger.Warnw("cannot save debug frame", "frame", summary.Frames, "error", err)
		}
	}
	if r.opts.Waiter != nil && !r.opts.Waiter.Wait(ctx) {
		return false, nil
	}
	return true, nil
}
