package tracker

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// circleOffsets is the radius 3 Bresenham circle, clockwise from the top.
var circleOffsets = [16]image.Point{
	{0, -3}, {1, -3}, {2, -2}, {3, -1}, {3, 0}, {3, 1}, {2, 2}, {1, 3},
	{0, 3}, {-1, 3}, {-2, 2}, {-3, 1}, {-3, 0}, {-3, -1}, {-2, -2}, {-1, -3},
}

// corner is a detected keypoint and its FAST score.
type corner struct {
	pt    image.Point
	score float64
}

// hasContiguousArc reports whether mask has at least n consecutive set entries, wrapping around.
func hasContiguousArc(mask *[16]bool, n int) bool {
	run := 0
	for i := 0; i < 32; i++ {
		if mask[i%16] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// fastScore returns the FAST score at p, or 0 if p is not a corner. The score sums how far the
// circle pixels of the winning arc exceed the threshold.
func fastScore(img *image.Gray, p image.Point, threshold, n int) float64 {
	center := int(img.GrayAt(p.X, p.Y).Y)
	var brighter, darker [16]bool
	var brightSum, darkSum int
	for i, off := range circleOffsets {
		v := int(img.GrayAt(p.X+off.X, p.Y+off.Y).Y)
		switch {
		case v > center+threshold:
			brighter[i] = true
			brightSum += v - center - threshold
		case v < center-threshold:
			darker[i] = true
			darkSum += center - threshold - v
		}
	}
	best := 0
	if hasContiguousArc(&brighter, n) {
		best = brightSum
	}
	if hasContiguousArc(&darker, n) && darkSum > best {
		best = darkSum
	}
	return float64(best)
}

// detectCorners finds FAST corners at least border pixels away from the image edge. Only 3x3
// local maxima are kept, then the best one per grid cell, then the maxCorners strongest.
func detectCorners(img *image.Gray, cfg *Config, border int) []corner {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	border = max(border, 3)
	if w <= 2*border || h <= 2*border {
		return nil
	}

	scores := make([]float64, w*h)
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			scores[y*w+x] = fastScore(img, image.Point{b.Min.X + x, b.Min.Y + y}, cfg.FASTThreshold, cfg.NMatchesCircle)
		}
	}

	cellsX := (w + cfg.GridSize - 1) / cfg.GridSize
	cellsY := (h + cfg.GridSize - 1) / cfg.GridSize
	best := make([]int, cellsX*cellsY)
	for i := range best {
		best[i] = -1
	}
	for y := border; y < h-border; y++ {
		for x := border; x < w-border; x++ {
			idx := y*w + x
			s := scores[idx]
			if s == 0 || !isLocalMax(scores, w, x, y) {
				continue
			}
			cell := (y/cfg.GridSize)*cellsX + x/cfg.GridSize
			if best[cell] < 0 || s > scores[best[cell]] {
				best[cell] = idx
			}
		}
	}

	corners := make([]corner, 0, len(best))
	for _, idx := range best {
		if idx < 0 {
			continue
		}
		corners = append(corners, corner{
			pt:    image.Point{b.Min.X + idx%w, b.Min.Y + idx/w},
			score: scores[idx],
		})
	}
	if len(corners) <= cfg.MaxCorners {
		return corners
	}

	negScores := make([]float64, len(corners))
	for i, c := range corners {
		negScores[i] = -c.score
	}
	order := make([]int, len(corners))
	floats.Argsort(negScores, order)
	strongest := make([]corner, 0, cfg.MaxCorners)
	for _, i := range order[:cfg.MaxCorners] {
		strongest = append(strongest, corners[i])
	}
	return strongest
}

// isLocalMax reports whether the score at (x, y) is the maximum of its 3x3 neighborhood. Ties go
// to the pixel first in scan order.
func isLocalMax(scores []float64, w, x, y int) bool {
	s := scores[y*w+x]
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			n := scores[(y+dy)*w+x+dx]
			if n > s {
				return false
			}
			// Earlier neighbors win ties.
			if n == s && (dy < 0 || (dy == 0 && dx < 0)) {
				return false
			}
		}
	}
	return true
}

func distance(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
