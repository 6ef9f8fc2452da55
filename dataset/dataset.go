// Package dataset reads visual-inertial sequences exported in the EuRoC layout.
package dataset

import (
	"encoding/csv"
	"image"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
	"go.viam.com/utils"
	_ "golang.org/x/image/bmp"  // register bmp
	_ "golang.org/x/image/tiff" // register tiff
	"golang.org/x/sync/errgroup"

	"go.viam.com/vio/logging"
	"go.viam.com/vio/sensors"
)

// Supported dataset layouts.
const (
	// EuRoC is <root>/<seq>/mav0/{cam<id>,imu0}.
	EuRoC = "euroc"
	// TUMVI is <root>/dataset-<seq>_512_16/mav0/{cam<id>,imu0}.
	TUMVI = "tumvi"
	// Flat is <root>/<seq>/{cam<id>,imu0}.
	Flat = "xivo"
)

// Dirs resolves the image and IMU directories of a sequence.
func Dirs(layout, root, seq string, camID int) (imageDir, imuDir string, err error) {
	cam := "cam" + strconv.Itoa(camID)
	var base string
	switch layout {
	case EuRoC:
		base = filepath.Join(root, seq, "mav0")
	case TUMVI:
		base = filepath.Join(root, "dataset-"+seq+"_512_16", "mav0")
	case Flat:
		base = filepath.Join(root, seq)
	default:
		return "", "", errors.Errorf("unknown dataset %q, expected one of %s, %s, %s", layout, EuRoC, TUMVI, Flat)
	}
	return filepath.Join(base, cam, "data"), filepath.Join(base, "imu0"), nil
}

// Loader holds the records of one sequence in timestamp order. Images are decoded on demand.
type Loader struct {
	records []sensors.Record
}

// Open resolves the directories of a sequence and loads it.
func Open(layout, root, seq string, camID int, logger logging.Logger) (*Loader, error) {
	imageDir, imuDir, err := Dirs(layout, root, seq, camID)
	if err != nil {
		return nil, err
	}
	return NewLoader(imageDir, imuDir, logger)
}

// NewLoader reads the IMU samples from imuDir/data.csv and the frame list from the data.csv next
// to imageDir, falling back to the image file names (nanosecond timestamps) when there is none.
func NewLoader(imageDir, imuDir string, logger logging.Logger) (*Loader, error) {
	var inertial []sensors.InertialSample
	var visual []sensors.VisualSample
	var g errgroup.Group
	g.Go(func() (err error) {
		inertial, err = readInertial(filepath.Join(imuDir, "data.csv"))
		return err
	})
	g.Go(func() (err error) {
		visual, err = readFrameList(imageDir)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	records := make([]sensors.Record, 0, len(inertial)+len(visual))
	for _, s := range inertial {
		records = append(records, sensors.NewInertialRecord(s))
	}
	for _, s := range visual {
		records = append(records, sensors.NewVisualRecord(s))
	}
	sensors.SortRecords(records)
	logger.Infow("dataset loaded", "image_dir", imageDir, "imu_dir", imuDir,
		"frames", len(visual), "inertial_samples", len(inertial))
	return &Loader{records: records}, nil
}

// Size returns the number of records.
func (l *Loader) Size() int {
	return len(l.records)
}

// Get returns record i.
func (l *Loader) Get(i int) (sensors.Record, error) {
	if i < 0 || i >= len(l.records) {
		return sensors.Record{}, errors.Errorf("record %d out of range [0, %d)", i, len(l.records))
	}
	return l.records[i], nil
}

// Image decodes the frame of sample unless it already carries one.
func (l *Loader) Image(sample sensors.VisualSample) (image.Image, error) {
	if sample.Image != nil {
		return sample.Image, nil
	}
	img, err := imaging.Open(sample.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot decode frame %s", sample.Path)
	}
	return img, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	return reader
}

func parseTimestamp(field string) (time.Duration, error) {
	ns, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "bad timestamp %q", field)
	}
	return time.Duration(ns), nil
}

// readInertial parses "timestamp [ns], wx, wy, wz [rad/s], ax, ay, az [m/s^2]" rows.
func readInertial(path string) ([]sensors.InertialSample, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open inertial data")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rows, err := newCSVReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", path)
	}
	samples := make([]sensors.InertialSample, 0, len(rows))
	for i, row := range rows {
		if len(row) < 7 {
			return nil, errors.Errorf("%s row %d: expected 7 fields, got %d", path, i+1, len(row))
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", path, i+1)
		}
		var values [6]float64
		for j := range values {
			values[j], err = strconv.ParseFloat(strings.TrimSpace(row[j+1]), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s row %d", path, i+1)
			}
		}
		samples = append(samples, sensors.InertialSample{
			Timestamp: ts,
			Gyro:      r3.Vector{X: values[0], Y: values[1], Z: values[2]},
			Accel:     r3.Vector{X: values[3], Y: values[4], Z: values[5]},
		})
	}
	return samples, nil
}

// readFrameList parses the "timestamp [ns], filename" rows of the data.csv beside imageDir.
func readFrameList(imageDir string) ([]sensors.VisualSample, error) {
	listPath := filepath.Join(filepath.Dir(imageDir), "data.csv")
	//nolint:gosec
	f, err := os.Open(listPath)
	if os.IsNotExist(err) {
		return listImages(imageDir)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot open frame list")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rows, err := newCSVReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", listPath)
	}
	samples := make([]sensors.VisualSample, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, errors.Errorf("%s row %d: expected 2 fields, got %d", listPath, i+1, len(row))
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			return nil, errors.Wrapf(err, "%s row %d", listPath, i+1)
		}
		samples = append(samples, sensors.VisualSample{
			Timestamp: ts,
			Path:      filepath.Join(imageDir, strings.TrimSpace(row[1])),
		})
	}
	return samples, nil
}

// listImages uses the names of the files in dir, which must be nanosecond timestamps.
func listImages(dir string) ([]sensors.VisualSample, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot list images")
	}
	samples := make([]sensors.VisualSample, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ts, err := parseTimestamp(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			return nil, errors.Wrapf(err, "image %s", name)
		}
		samples = append(samples, sensors.VisualSample{Timestamp: ts, Path: filepath.Join(dir, name)})
	}
	return samples, nil
}
