package tracker

import (
	"fmt"
	"image"
	"math"
	"path/filepath"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
)

// featureColor spreads feature IDs around the hue circle so a feature keeps its color across
// frames and neighbors rarely share one.
func featureColor(id int) colorful.Color {
	const goldenAngle = 137.508
	return colorful.Hsv(math.Mod(float64(id)*goldenAngle, 360), 0.9, 1)
}

// DrawObservations renders img with a circle and the ID of every observation on top.
func DrawObservations(img image.Image, obs []Observation) image.Image {
	b := img.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(img, -b.Min.X, -b.Min.Y)

	for _, o := range obs {
		c := featureColor(o.ID)
		dc.SetRGBA(c.R, c.G, c.B, 0.8)
		dc.SetLineWidth(1.5)
		dc.DrawCircle(o.Pixel.X, o.Pixel.Y, 4)
		dc.Stroke()
		dc.SetRGB(1, 1, 0)
		dc.DrawString(strconv.Itoa(o.ID), o.Pixel.X+5, o.Pixel.Y-5)
	}
	return dc.Image()
}

// SaveObservations draws the observations over img and writes the result as a PNG named after
// the frame index into dir.
func SaveObservations(dir string, frame int, img image.Image, obs []Observation) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("frame_%06d.png", frame))
	if err := gg.SavePNG(path, DrawObservations(img, obs)); err != nil {
		return "", errors.Wrapf(err, "saving debug frame %d", frame)
	}
	return path, nil
}
