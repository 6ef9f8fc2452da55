package tracker

import (
	"image"
	"math"
	"math/bits"
)

// Descriptor is a binary BRIEF descriptor, one bit per sample pair.
type Descriptor []uint64

// HammingDistance counts the differing bits of two descriptors of equal length.
func HammingDistance(d1, d2 Descriptor) int {
	n := 0
	for i := range d1 {
		n += bits.OnesCount64(d1[i] ^ d2[i])
	}
	return n
}

// samplePairs are the point pairs compared by every descriptor, as offsets from the keypoint.
type samplePairs struct {
	p0, p1 []image.Point
}

// goldenAngle spreads consecutive samples evenly around the keypoint.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

// newSamplePairs lays out n deterministic pairs inside a patch: both points of each pair sit on a
// sunflower spiral, with the second point taken from a permuted index so pairs span the patch.
func newSamplePairs(n, patchSize int) *samplePairs {
	half := float64(patchSize/2 - 1)
	at := func(i int) image.Point {
		r := half * math.Sqrt((float64(i)+0.5)/float64(n))
		a := float64(i) * goldenAngle
		return image.Point{int(math.Round(r * math.Cos(a))), int(math.Round(r * math.Sin(a)))}
	}
	sp := &samplePairs{p0: make([]image.Point, n), p1: make([]image.Point, n)}
	for i := 0; i < n; i++ {
		sp.p0[i] = at(i)
		// 7919 is prime and coprime with every power-of-two descriptor length.
		sp.p1[i] = at((i*7919 + n/2) % n)
	}
	return sp
}

// computeDescriptors samples the blurred image around each keypoint. Keypoints must lie at least
// half a patch away from the border.
func computeDescriptors(blurred *image.Gray, sp *samplePairs, kps []image.Point) []Descriptor {
	words := len(sp.p0) / 64
	descs := make([]Descriptor, len(kps))
	for k, kp := range kps {
		desc := make(Descriptor, words)
		for i := range sp.p0 {
			v0 := blurred.GrayAt(kp.X+sp.p0[i].X, kp.Y+sp.p0[i].Y).Y
			v1 := blurred.GrayAt(kp.X+sp.p1[i].X, kp.Y+sp.p1[i].Y).Y
			if v0 > v1 {
				desc[i/64] |= 1 << (i % 64)
			}
		}
		descs[k] = desc
	}
	return descs
}
