package trajectory

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/vio/spatialmath"
)

// Entry is one line of a trajectory file.
type Entry struct {
	Timestamp time.Duration
	Pose      spatialmath.Pose
}

// ReadFile parses a trajectory file. Blank lines are skipped.
func ReadFile(path string) ([]Entry, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		ts, pose, err := ParseLine(text)
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, line)
		}
		entries = append(entries, Entry{Timestamp: ts, Pose: pose})
	}
	return entries, scanner.Err()
}

// SavePlot renders the top-down (x, y) path of the trajectory to an image file whose format
// follows the extension of path.
func SavePlot(entries []Entry, title, path string) error {
	if len(entries) == 0 {
		return errors.New("no poses to plot")
	}
	pts := make(plotter.XYs, 0, len(entries))
	for _, e := range entries {
		p := e.Pose.Point()
		pts = append(pts, plotter.XY{X: p.X, Y: p.Y})
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"
	p.Add(plotter.NewGrid())

	line, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "cannot build trajectory line")
	}
	line.Width = vg.Points(1)
	p.Add(line)

	start, err := plotter.NewScatter(pts[:1])
	if err != nil {
		return errors.Wrap(err, "cannot mark trajectory start")
	}
	p.Add(start)
	p.Legend.Add("path", line)
	p.Legend.Add("start", start)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, path); err != nil {
		return errors.Wrap(err, "cannot save trajectory plot")
	}
	return nil
}
