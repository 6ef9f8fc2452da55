package tracker

import (
	"image"
	"math"

	"gonum.org/v1/gonum/floats"
)

// match pairs index prev of the previous frame with index cur of the current one.
type match struct {
	prev, cur int
	dist      int
}

// matchDescriptors matches every previous descriptor to its nearest current descriptor within
// the motion gate. Matches above the Hamming limit, and with cross checking those that are not
// mutual nearest neighbors, are dropped. The result is sorted by increasing distance.
func matchDescriptors(
	prevDescs, curDescs []Descriptor,
	prevPts, curPts []image.Point,
	cfg *Config,
) []match {
	if len(prevDescs) == 0 || len(curDescs) == 0 {
		return nil
	}
	distances := make([][]int, len(prevDescs))
	for i := range prevDescs {
		distances[i] = make([]int, len(curDescs))
		for j := range curDescs {
			if distance(prevPts[i], curPts[j]) > cfg.MaxPixelMotion {
				distances[i][j] = math.MaxInt
				continue
			}
			distances[i][j] = HammingDistance(prevDescs[i], curDescs[j])
		}
	}

	bestCur := argMinPerRow(distances)
	var bestPrev []int
	if !cfg.SkipCrossCheck {
		bestPrev = argMinPerRow(transpose(distances))
	}

	matches := make([]match, 0, len(prevDescs))
	for i, j := range bestCur {
		if j < 0 {
			continue
		}
		d := distances[i][j]
		if d > cfg.MaxHammingDistance {
			continue
		}
		if bestPrev != nil && bestPrev[j] != i {
			continue
		}
		matches = append(matches, match{prev: i, cur: j, dist: d})
	}

	dists := make([]float64, len(matches))
	for i, m := range matches {
		dists[i] = float64(m.dist)
	}
	order := make([]int, len(matches))
	floats.Argsort(dists, order)
	sorted := make([]match, len(matches))
	for i, idx := range order {
		sorted[i] = matches[idx]
	}
	return sorted
}

// argMinPerRow returns the column of each row's minimum, or -1 when the row is all MaxInt.
func argMinPerRow(m [][]int) []int {
	out := make([]int, len(m))
	for i, row := range m {
		out[i] = -1
		best := math.MaxInt
		for j, v := range row {
			if v < best {
				best, out[i] = v, j
			}
		}
	}
	return out
}

func transpose(m [][]int) [][]int {
	if len(m) == 0 {
		return nil
	}
	out := make([][]int, len(m[0]))
	for j := range out {
		out[j] = make([]int, len(m))
		for i := range m {
			out[j][i] = m[i][j]
		}
	}
	return out
}
