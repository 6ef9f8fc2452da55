// Package main runs visual-inertial odometry over a recorded dataset and writes the estimated
// trajectory.
package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/vio/camera"
	"go.viam.com/vio/config"
	"go.viam.com/vio/dataset"
	"go.viam.com/vio/estimator"
	"go.viam.com/vio/logging"
	"go.viam.com/vio/runner"
	"go.viam.com/vio/tracker"
	"go.viam.com/vio/trajectory"
	vioutils "go.viam.com/vio/utils"
)

var logger = logging.NewLogger("vio")

// Arguments for the command.
type Arguments struct {
	Config       string `flag:"cfg,default=cfg/vio.json,usage=application config file"`
	Root         string `flag:"root,required,usage=root directory of the datasets"`
	Dataset      string `flag:"dataset,default=euroc,usage=dataset layout: euroc or tumvi or xivo"`
	Seq          string `flag:"seq,required,usage=sequence name"`
	CamID        int    `flag:"cam-id,usage=index of the camera to use"`
	Out          string `flag:"out,default=out_state.txt,usage=trajectory output file"`
	WaitKeypress bool   `flag:"wait-keypress,usage=wait for enter after every frame; q stops"`
	Plot         string `flag:"plot,usage=save a plot of the trajectory to this png"`
	MapDir       string `flag:"map-dir,usage=write the in-state features of every frame to this directory"`
	Debug        bool   `flag:"debug,usage=log at debug level"`
}

func main() {
	utils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	var argsParsed Arguments
	if err := utils.ParseFlags(args, &argsParsed); err != nil {
		return err
	}
	return run(ctx, argsParsed, os.Stdin, os.Stdout, logger)
}

// loggers holds one named logger per component so the "log" section of the config can set them
// independently.
type loggers struct {
	registry  *logging.Registry
	logFile   io.Closer
	tracker   logging.Logger
	estimator logging.Logger
	dataset   logging.Logger
	runner    logging.Logger
}

func newLoggers(parent logging.Logger, cfg *config.Config, debug bool) (*loggers, error) {
	if debug || cfg.Debug {
		parent.SetLevel(logging.DEBUG)
	}
	var logFile io.Closer
	if cfg.LogFile != "" {
		maxSize := cfg.LogFileMaxSizeMB
		if maxSize == 0 {
			maxSize = 100
		}
		rotating := &lumberjack.Logger{Filename: cfg.LogFile, MaxSize: maxSize, MaxBackups: 3}
		// Subloggers share the appenders present when they are created.
		parent.AddAppender(logging.NewWriterAppender(rotating))
		logFile = rotating
	}
	l := &loggers{
		registry:  logging.NewRegistry(),
		logFile:   logFile,
		tracker:   parent.Sublogger("tracker"),
		estimator: parent.Sublogger("estimator"),
		dataset:   parent.Sublogger("dataset"),
		runner:    parent.Sublogger("runner"),
	}
	for _, sub := range []logging.Logger{l.tracker, l.estimator, l.dataset, l.runner} {
		if err := l.registry.Register(sub); err != nil {
			return nil, err
		}
	}
	if len(cfg.LogConfig) > 0 {
		if err := l.registry.UpdateConfig(cfg.LogConfig, parent); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func run(ctx context.Context, args Arguments, stdin io.Reader, stdout io.Writer, logger logging.Logger) (err error) {
	cfg, err := config.Read(args.Config, logger)
	if err != nil {
		return errors.Wrapf(err, "cannot read config %q", args.Config)
	}
	logs, err := newLoggers(logger, cfg, args.Debug)
	if err != nil {
		return err
	}
	if logs.logFile != nil {
		defer func() {
			err = multierr.Combine(err, logs.logFile.Close())
		}()
	}

	camCfg, err := cfg.CameraConfig()
	if err != nil {
		return err
	}
	model, err := camera.NewManager(logger).Create(camCfg)
	if err != nil {
		return err
	}
	ft, err := tracker.NewFeatureTracker(cfg.Tracker, logs.tracker)
	if err != nil {
		return err
	}
	est, err := estimator.New(cfg.Estimator, model, ft, logs.estimator)
	if err != nil {
		return err
	}

	src, err := dataset.Open(args.Dataset, args.Root, args.Seq, args.CamID, logs.dataset)
	if err != nil {
		return err
	}
	logger.Infow("dataset loaded", "layout", args.Dataset, "seq", args.Seq, "records", src.Size())

	out, err := trajectory.Create(args.Out)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, out.Close())
	}()

	opts := runner.Options{Verbose: cfg.Verbose}
	if args.WaitKeypress {
		if f, ok := stdin.(*os.File); ok && !term.IsTerminal(int(f.Fd())) {
			logger.Warn("stdin is not a terminal, reading keypresses from it as lines")
		}
		pauser := vioutils.NewPauser(ctx, stdin, nil, logger)
		defer func() {
			err = multierr.Combine(err, pauser.Close())
		}()
		opts.Waiter = pauser
	}
	var savers []runner.FrameSaver
	if cfg.DebugImageDir != "" {
		if err := os.MkdirAll(cfg.DebugImageDir, 0o750); err != nil {
			return errors.Wrap(err, "cannot create debug image directory")
		}
		savers = append(savers, func(frame int, img image.Image) error {
			_, err := tracker.SaveObservations(cfg.DebugImageDir, frame, img, ft.Last())
			return err
		})
	}
	if args.MapDir != "" {
		if err := os.MkdirAll(args.MapDir, 0o750); err != nil {
			return errors.Wrap(err, "cannot create map directory")
		}
		savers = append(savers, func(int, image.Image) error {
			_, err := trajectory.WriteMap(args.MapDir, est.Ts(), mapPoints(est.Features()))
			return err
		})
	}
	if len(savers) > 0 {
		opts.SaveFrame = func(frame int, img image.Image) error {
			var err error
			for _, save := range savers {
				err = multierr.Combine(err, save(frame, img))
			}
			return err
		}
	}

	summary, err := runner.New(src, est, out, opts, logs.runner).Run(ctx)
	if err != nil {
		return err
	}
	printSummary(stdout, summary, est)

	if args.Plot != "" {
		// Close is idempotent; the deferred call becomes a no-op.
		if err := out.Close(); err != nil {
			return err
		}
		entries, err := trajectory.ReadFile(args.Out)
		if err != nil {
			return err
		}
		if err := trajectory.SavePlot(entries, args.Seq, args.Plot); err != nil {
			return err
		}
		logger.Infow("saved trajectory plot", "path", args.Plot)
	}
	return nil
}

func mapPoints(features []estimator.FeatureInfo) []trajectory.MapPoint {
	return lo.Map(features, func(f estimator.FeatureInfo, _ int) trajectory.MapPoint {
		return trajectory.MapPoint{ID: f.ID, Position: f.Position}
	})
}

func printSummary(w io.Writer, summary runner.Summary, est *estimator.Estimator) {
	stats := est.Stats()
	std := est.PositionStd()
	pos := est.Gsb().Point()
	bg, ba := est.Biases()

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRow(table.Row{"records", summary.Records})
	t.AppendRow(table.Row{"elapsed", summary.Elapsed.String()})
	t.AppendRow(table.Row{"frames", summary.Frames})
	t.AppendRow(table.Row{"skipped frames", summary.SkippedFrames})
	t.AppendRow(table.Row{"stale inertial", stats.StaleInertial})
	t.AppendRow(table.Row{"stale frames", stats.StaleVisual})
	t.AppendRow(table.Row{"tracker failures", stats.TrackerFailures})
	t.AppendRow(table.Row{"updates", stats.Updates})
	t.AppendRow(table.Row{"features added", stats.FeaturesAdded})
	t.AppendRow(table.Row{"features rejected", stats.FeaturesRejected})
	t.AppendRow(table.Row{"features lost", stats.FeaturesLost})
	t.AppendRow(table.Row{"features evicted", stats.FeaturesEvicted})
	t.AppendRow(table.Row{"status", est.Status().String()})
	t.AppendRow(table.Row{"final position", fmt.Sprintf("%.3f %.3f %.3f", pos.X, pos.Y, pos.Z)})
	t.AppendRow(table.Row{"position std", fmt.Sprintf("%.3f %.3f %.3f", std.X, std.Y, std.Z)})
	t.AppendRow(table.Row{"gyro bias", fmt.Sprintf("%.4f %.4f %.4f", bg.X, bg.Y, bg.Z)})
	t.AppendRow(table.Row{"accel bias", fmt.Sprintf("%.4f %.4f %.4f", ba.X, ba.Y, ba.Z)})
	switch {
	case summary.Stopped:
		t.AppendRow(table.Row{"stopped", "by user"})
	case summary.Interrupted:
		t.AppendRow(table.Row{"stopped", "interrupted"})
	}
	fmt.Fprintln(w, t.Render())
}
