package trajectory

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MapPoint is a feature position in the reference frame.
type MapPoint struct {
	ID       int
	Position r3.Vector
}

// MapFileName is the name of the map file of the frame at ts.
func MapFileName(ts time.Duration) string {
	return fmt.Sprintf("instate_features_%d.txt", ts.Nanoseconds())
}

// FormatMapLine renders a point as "<id>: x, y, z".
func FormatMapLine(p MapPoint) string {
	return fmt.Sprintf("%d: %s, %s, %s", p.ID,
		formatFloat(p.Position.X), formatFloat(p.Position.Y), formatFloat(p.Position.Z))
}

// WriteMap writes the points of the frame at ts into dir, one per line, and returns the file's
// path. A frame without points gets an empty file.
func WriteMap(dir string, ts time.Duration, points []MapPoint) (path string, err error) {
	path = filepath.Join(dir, MapFileName(ts))
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "cannot create map file")
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()

	w := bufio.NewWriter(f)
	for _, p := range points {
		if _, err := fmt.Fprintln(w, FormatMapLine(p)); err != nil {
			return "", err
		}
	}
	return path, w.Flush()
}
